package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"testing"
)

func testResolver(playerNb uint8) (string, bool) {
	if playerNb == 3 {
		return "Bob", true
	}
	return "", false
}

func TestDecodeSimpleCommands(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want Command
	}{
		{
			name: "server started",
			buf:  []byte{CodeServerStarted},
			want: ServerStarted{},
		},
		{
			name: "server quit",
			buf:  []byte{CodeServerQuit},
			want: ServerQuit{},
		},
		{
			name: "server message",
			buf:  append([]byte{CodeServerMessage}, "hello"...),
			want: ServerMessage{Text: "hello"},
		},
		{
			name: "server warning",
			buf:  append([]byte{CodeServerWarning}, "careful"...),
			want: ServerWarning{Text: "careful"},
		},
		{
			name: "player joined",
			buf:  append([]byte{CodePlayerJoined, 3}, "Bob"...),
			want: PlayerJoined{PlayerNb: 3, Name: "Bob"},
		},
		{
			name: "player left kicked",
			buf:  []byte{CodePlayerLeft, 3, 2},
			want: PlayerLeft{PlayerNb: 3, Reason: CauseKicked},
		},
		{
			// Reason codes above 127 must survive as-is, not wrap negative.
			name: "player left unknown reason code",
			buf:  []byte{CodePlayerLeft, 3, 200},
			want: PlayerLeft{PlayerNb: 3, Reason: 200},
		},
		{
			name: "player ready",
			buf:  []byte{CodePlayerReady, 3, 1},
			want: PlayerReady{PlayerNb: 3, State: Ready},
		},
		{
			name: "player defeated",
			buf:  []byte{CodePlayerDefeated, 7},
			want: PlayerDefeated{PlayerNb: 7},
		},
		{
			name: "game over",
			buf:  []byte{CodeServerGameOver, 5, 3, 0, 2},
			want: ServerGameOver{PlayerNb: 3, WinningAllyTeams: []uint8{0, 2}},
		},
		{
			name: "start playing without params",
			buf:  []byte{CodeServerStartPlaying},
			want: ServerStartPlaying{},
		},
	}

	d := NewDecoder(testResolver)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmds, consumed := d.Decode(tc.buf)
			if !consumed {
				t.Fatalf("buffer not fully consumed")
			}
			if len(cmds) != 1 {
				t.Fatalf("got %d commands, want 1", len(cmds))
			}
			if !reflect.DeepEqual(cmds[0], tc.want) {
				t.Fatalf("got %#v, want %#v", cmds[0], tc.want)
			}
		})
	}
}

func TestDecodeStartPlayingWithParams(t *testing.T) {
	id := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef,
		0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xef}

	buf := NewDatagramBuilder().
		WriteByte(CodeServerStartPlaying).
		WriteUint32(0). // header
		WriteBytes(id).
		WriteString("demos/match.sdfz").
		Build()

	d := NewDecoder(nil)
	cmds, consumed := d.Decode(buf)
	if !consumed || len(cmds) != 1 {
		t.Fatalf("decode failed: %d commands, consumed=%v", len(cmds), consumed)
	}

	sp, ok := cmds[0].(ServerStartPlaying)
	if !ok {
		t.Fatalf("got %T, want ServerStartPlaying", cmds[0])
	}
	if !sp.HasParams {
		t.Fatalf("HasParams = false, want true")
	}
	if sp.GameID != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("GameID = %q", sp.GameID)
	}
	if sp.DemoName != "demos/match.sdfz" {
		t.Fatalf("DemoName = %q", sp.DemoName)
	}
}

func TestDecodeChatDestinations(t *testing.T) {
	cases := []struct {
		name string
		code byte
		want string
	}{
		{"public 125", 125, ""},
		{"public 254", 254, ""},
		{"spectators 126", 126, "spectators"},
		{"spectators 253", 253, "spectators"},
		{"allies 127", 127, "allies"},
		{"allies 252", 252, "allies"},
		{"known player", 3, "Bob"},
		{"unknown player", 9, "9"},
	}

	d := NewDecoder(testResolver)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			buf := append([]byte{CodePlayerChat, 3, tc.code}, "gl hf"...)
			cmds, consumed := d.Decode(buf)
			if !consumed || len(cmds) != 1 {
				t.Fatalf("decode failed")
			}
			chat := cmds[0].(PlayerChat)
			if chat.Destination != tc.want {
				t.Fatalf("Destination = %q, want %q", chat.Destination, tc.want)
			}
			if chat.DestinationCode != tc.code {
				t.Fatalf("DestinationCode = %d, want %d", chat.DestinationCode, tc.code)
			}
			if chat.Text != "gl hf" {
				t.Fatalf("Text = %q", chat.Text)
			}
		})
	}
}

func TestDecodeEmptyBuffer(t *testing.T) {
	d := NewDecoder(nil)
	cmds, consumed := d.Decode(nil)
	if len(cmds) != 0 {
		t.Fatalf("got %d commands, want 0", len(cmds))
	}
	if !consumed {
		t.Fatalf("empty buffer should count as fully consumed")
	}
}

func TestDecodeUnknownLeadingCode(t *testing.T) {
	d := NewDecoder(nil)
	cmds, consumed := d.Decode([]byte{99, 1, 2, 3})
	if len(cmds) != 0 {
		t.Fatalf("got %d commands, want 0", len(cmds))
	}
	if consumed {
		t.Fatalf("unknown code should abort with consumed=false")
	}
}

func TestDecodeKeepsCommandsBeforeUnknownCode(t *testing.T) {
	d := NewDecoder(nil)
	cmds, consumed := d.Decode([]byte{CodeServerStarted, 99, 1})
	if consumed {
		t.Fatalf("expected consumed=false")
	}
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if _, ok := cmds[0].(ServerStarted); !ok {
		t.Fatalf("got %T, want ServerStarted", cmds[0])
	}
}

// A trailing string must swallow every remaining byte, even ones that look
// like valid command codes.
func TestTrailingStringConsumesCommandLikeBytes(t *testing.T) {
	d := NewDecoder(nil)
	buf := append([]byte{CodeServerMessage}, []byte("a<b")...) // '<' is byte 60
	cmds, consumed := d.Decode(buf)
	if !consumed || len(cmds) != 1 {
		t.Fatalf("got %d commands, consumed=%v", len(cmds), consumed)
	}
	msg := cmds[0].(ServerMessage)
	if msg.Text != "a<b" {
		t.Fatalf("Text = %q, want %q", msg.Text, "a<b")
	}
}

func TestTrailingStringControlCharSubstitution(t *testing.T) {
	d := NewDecoder(nil)
	buf := append([]byte{CodeServerMessage}, []byte{'a', 0x01, 'b', 0x1f, 'c'}...)
	cmds, _ := d.Decode(buf)
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if got := cmds[0].(ServerMessage).Text; got != "a_b_c" {
		t.Fatalf("Text = %q, want %q", got, "a_b_c")
	}
}

func TestDecodeLuaMsg(t *testing.T) {
	d := NewDecoder(nil)
	buf := NewDatagramBuilder().
		WriteByte(CodeGameLuaMsg).
		WriteBytes([]byte{0, 0, 0}). // artifact prefix
		WriteByte(4).                // playerNb
		WriteByte(0x34).             // scriptLow
		WriteByte(0x12).             // scriptHigh
		WriteByte('b').              // mode
		WriteBytes([]byte{0xde, 0xad}).
		Build()

	cmds, consumed := d.Decode(buf)
	if !consumed || len(cmds) != 1 {
		t.Fatalf("decode failed")
	}
	lua := cmds[0].(GameLuaMsg)
	if lua.PlayerNb != 4 {
		t.Fatalf("PlayerNb = %d", lua.PlayerNb)
	}
	if lua.Script != 0x1234 {
		t.Fatalf("Script = %#x, want 0x1234", lua.Script)
	}
	if lua.Mode != "b" {
		t.Fatalf("Mode = %q", lua.Mode)
	}
	if !bytes.Equal(lua.Payload, []byte{0xde, 0xad}) {
		t.Fatalf("Payload = %v", lua.Payload)
	}
}

func buildTeamStatPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	stats := TeamStatistics{
		Frame:       9000,
		MetalUsed:   1.5,
		EnergySent:  42.25,
		UnitsDied:   7,
		UnitsKilled: 12,
	}
	if err := binary.Write(&buf, binary.LittleEndian, &stats); err != nil {
		t.Fatalf("binary.Write: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeTeamStat(t *testing.T) {
	payload := buildTeamStatPayload(t)
	if len(payload) != 80 {
		t.Fatalf("payload size = %d, want 80", len(payload))
	}

	buf := NewDatagramBuilder().
		WriteByte(CodeGameTeamStat).
		WriteBytes([]byte{0, 0, 0}).
		WriteByte(2). // teamNb
		WriteBytes(payload).
		Build()

	d := NewDecoder(nil)
	cmds, consumed := d.Decode(buf)
	if !consumed {
		t.Fatalf("datagram should decode without residue")
	}
	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}

	ts := cmds[0].(GameTeamStat)
	if ts.TeamNb != 2 {
		t.Fatalf("TeamNb = %d", ts.TeamNb)
	}
	if ts.Stats.Frame != 9000 {
		t.Fatalf("Frame = %d", ts.Stats.Frame)
	}
	if math.Abs(float64(ts.Stats.EnergySent-42.25)) > 1e-6 {
		t.Fatalf("EnergySent = %v", ts.Stats.EnergySent)
	}
	if ts.Stats.UnitsKilled != 12 {
		t.Fatalf("UnitsKilled = %d", ts.Stats.UnitsKilled)
	}
}

func TestDecodeTeamStatShortPayload(t *testing.T) {
	buf := NewDatagramBuilder().
		WriteByte(CodeGameTeamStat).
		WriteBytes([]byte{0, 0, 0}).
		WriteByte(2).
		WriteBytes(make([]byte, 40)). // half the block
		Build()

	d := NewDecoder(nil)
	cmds, consumed := d.Decode(buf)
	if consumed {
		t.Fatalf("short payload should abort decoding")
	}
	if len(cmds) != 0 {
		t.Fatalf("got %d commands, want 0", len(cmds))
	}
}

// Commands without trailing strings may be packed back-to-back in one
// datagram.
func TestDecodeMultipleCommandsPerDatagram(t *testing.T) {
	buf := []byte{
		CodeServerStarted,
		CodePlayerLeft, 3, 1,
		CodePlayerReady, 3, 0,
		CodePlayerDefeated, 3,
	}

	d := NewDecoder(nil)
	cmds, consumed := d.Decode(buf)
	if !consumed {
		t.Fatalf("buffer not fully consumed")
	}
	want := []string{
		SubjectServerStarted,
		SubjectPlayerLeft,
		SubjectPlayerReady,
		SubjectPlayerDefeated,
	}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands, want %d", len(cmds), len(want))
	}
	for i, cmd := range cmds {
		if cmd.Subject() != want[i] {
			t.Fatalf("cmds[%d] = %s, want %s", i, cmd.Subject(), want[i])
		}
	}
}

func TestDecodeIncompleteFixedFields(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{"player left missing reason", []byte{CodePlayerLeft, 3}},
		{"player ready missing state", []byte{CodePlayerReady, 3}},
		{"game over missing teams", []byte{CodeServerGameOver, 6, 3, 0}},
		{"lua msg truncated header", []byte{CodeGameLuaMsg, 0, 0}},
	}

	d := NewDecoder(nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmds, consumed := d.Decode(tc.buf)
			if consumed {
				t.Fatalf("expected consumed=false")
			}
			if len(cmds) != 0 {
				t.Fatalf("got %d commands, want 0", len(cmds))
			}
		})
	}
}
