package match

import (
	"path/filepath"
	"testing"

	"github.com/hostlink-project/hostlink/internal/client"
	"github.com/hostlink-project/hostlink/internal/protocol"
	"github.com/hostlink-project/hostlink/internal/session"
	"github.com/hostlink-project/hostlink/internal/store"
)

// fakeTransport queues canned datagrams for the client to pump.
type fakeTransport struct {
	queue [][]byte
}

func (f *fakeTransport) Open(host string, port int) error { return nil }

func (f *fakeTransport) Receive() []byte {
	if len(f.queue) == 0 {
		return nil
	}
	buf := f.queue[0]
	f.queue = f.queue[1:]
	return buf
}

func (f *fakeTransport) Send(payload []byte) bool { return true }

func (f *fakeTransport) Close() {}

func (f *fakeTransport) push(datagrams ...[]byte) {
	f.queue = append(f.queue, datagrams...)
}

func serverStarted() []byte {
	return protocol.NewDatagramBuilder().WriteByte(protocol.CodeServerStarted).Build()
}

func startPlaying() []byte {
	return protocol.NewDatagramBuilder().WriteByte(protocol.CodeServerStartPlaying).Build()
}

func playerJoined(nb uint8, name string) []byte {
	return protocol.NewDatagramBuilder().
		WriteByte(protocol.CodePlayerJoined).
		WriteByte(nb).
		WriteString(name).
		Build()
}

func playerLeft(nb uint8, cause protocol.DisconnectCause) []byte {
	return protocol.NewDatagramBuilder().
		WriteByte(protocol.CodePlayerLeft).
		WriteByte(nb).
		WriteByte(byte(cause)).
		Build()
}

func playerChat(nb, dst uint8, text string) []byte {
	return protocol.NewDatagramBuilder().
		WriteByte(protocol.CodePlayerChat).
		WriteByte(nb).
		WriteByte(dst).
		WriteString(text).
		Build()
}

func gameOver(nb uint8, winningTeams ...byte) []byte {
	return protocol.NewDatagramBuilder().
		WriteByte(protocol.CodeServerGameOver).
		WriteByte(byte(3 + len(winningTeams))).
		WriteByte(nb).
		WriteBytes(winningTeams).
		Build()
}

func teamStat(teamNb uint8, frame uint32) []byte {
	b := protocol.NewDatagramBuilder().
		WriteByte(protocol.CodeGameTeamStat).
		WriteBytes([]byte{0, 0, 0}).
		WriteByte(teamNb).
		WriteUint32(frame)
	for i := 0; i < 12; i++ {
		b.WriteFloat32(0)
	}
	for i := 0; i < 7; i++ {
		b.WriteUint32(0)
	}
	return b.Build()
}

func pumpAll(t *testing.T, c *client.Client, ft *fakeTransport) {
	t.Helper()
	for len(ft.queue) > 0 {
		if !c.Pump() {
			t.Fatalf("pump failed with %d datagrams left", len(ft.queue))
		}
	}
}

func TestTrackerMirrorsLiveMatch(t *testing.T) {
	ft := &fakeTransport{}
	c := client.New(ft, false)
	c.Open("", 8452)

	tr := NewTracker(c, nil)
	tr.Subscribe()

	ft.push(
		serverStarted(),
		playerJoined(2, "Alice"),
		playerChat(2, protocol.DestPublicA, "gl hf"),
		teamStat(1, 300),
	)
	pumpAll(t, c, ft)

	snap := tr.Snapshot()
	if snap.State != session.StateStarted {
		t.Fatalf("state = %v, want Started", snap.State)
	}
	if p, ok := snap.Players[2]; !ok || p.Name != "Alice" {
		t.Fatalf("Players[2] = %#v, %v", p, ok)
	}
	if len(snap.Chat) != 1 {
		t.Fatalf("chat lines = %d, want 1", len(snap.Chat))
	}
	line := snap.Chat[0]
	if line.PlayerName != "Alice" || line.Destination != protocol.DestPublic || line.Text != "gl hf" {
		t.Fatalf("chat line = %#v", line)
	}
	if stats, ok := snap.TeamStats[1]; !ok || stats.Frame != 300 {
		t.Fatalf("TeamStats[1] = %#v, %v", stats, ok)
	}
}

func TestTrackerResetsOnServerStarted(t *testing.T) {
	ft := &fakeTransport{}
	c := client.New(ft, false)
	c.Open("", 8452)

	tr := NewTracker(c, nil)
	tr.Subscribe()

	ft.push(
		serverStarted(),
		playerJoined(1, "Alice"),
		playerChat(1, protocol.DestPublicA, "hello"),
		teamStat(0, 100),
	)
	pumpAll(t, c, ft)

	// A new SERVER_STARTED opens a fresh match.
	ft.push(serverStarted())
	pumpAll(t, c, ft)

	snap := tr.Snapshot()
	if len(snap.Chat) != 0 {
		t.Fatalf("chat survived the reset: %#v", snap.Chat)
	}
	if len(snap.TeamStats) != 0 {
		t.Fatalf("team stats survived the reset: %#v", snap.TeamStats)
	}
}

func TestTrackerPersistsFinishedMatch(t *testing.T) {
	db, err := store.NewMatchStore(filepath.Join(t.TempDir(), "matches.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	ft := &fakeTransport{}
	c := client.New(ft, false)
	c.Open("", 8452)

	tr := NewTracker(c, db)
	tr.Subscribe()

	ft.push(
		serverStarted(),
		playerJoined(1, "Alice"),
		playerJoined(2, "Bob"),
		startPlaying(),
		teamStat(0, 9000),
		gameOver(1, 0),
		playerLeft(1, protocol.CauseLeft),
		playerLeft(2, protocol.CauseLeft),
	)
	pumpAll(t, c, ft)

	if got := tr.Snapshot().State; got != session.StateGameOver {
		t.Fatalf("state = %v, want GameOver", got)
	}

	matches, err := db.Recent(5)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("recorded matches = %d, want 1", len(matches))
	}
	if matches[0].PlayerCount != 2 {
		t.Fatalf("player count = %d, want 2", matches[0].PlayerCount)
	}

	stats, err := db.TeamStats(matches[0].ID)
	if err != nil {
		t.Fatalf("read team stats: %v", err)
	}
	if s, ok := stats[0]; !ok || s.Frame != 9000 {
		t.Fatalf("TeamStats[0] = %#v, %v", s, ok)
	}
}
