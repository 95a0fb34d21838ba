package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Some engine builds prepend three stray bytes to GAME_LUAMSG and
// GAME_TEAMSTAT payloads. They carry nothing and are discarded.
const artifactPrefixLen = 3

// teamStatPayloadLen is the fixed size of the packed TeamStatistics block:
// 1 uint32 + 12 float32 + 7 uint32.
const teamStatPayloadLen = 80

var (
	errUnknownCommand = errors.New("unknown command code")
	errIncomplete     = errors.New("incomplete command payload")
)

// PlayerNameResolver looks up a player name by playerNb in the live session.
// Used to resolve chat destination codes that address a single player.
type PlayerNameResolver func(playerNb uint8) (string, bool)

// Decoder turns raw datagrams into ordered command sequences. It holds no
// mutable state; the resolver is only consulted for chat destinations.
type Decoder struct {
	logger  zerolog.Logger
	resolve PlayerNameResolver
}

// NewDecoder creates a decoder. resolve may be nil, in which case chat
// destinations addressing a player stay in raw numeric form.
func NewDecoder(resolve PlayerNameResolver) *Decoder {
	return &Decoder{
		logger:  log.With().Str("component", "decoder").Logger(),
		resolve: resolve,
	}
}

// Decode consumes the datagram command-by-command from the front and returns
// the decoded sequence. The second result is true when the whole buffer was
// consumed; on an unrecognized code or a truncated payload the remainder is
// discarded, already-decoded commands are kept, and it is false.
func (d *Decoder) Decode(buf []byte) ([]Command, bool) {
	var cmds []Command
	r := newReader(buf)

	for r.remaining() > 0 {
		start := r.off
		code, _ := r.readByte()

		cmd, err := d.decodeOne(code, r)
		if err != nil {
			d.logger.Warn().
				Uint8("code", code).
				Int("offset", start).
				Int("discarded", len(buf)-start).
				Err(err).
				Msg("decoding aborted, rest of datagram discarded")
			return cmds, false
		}
		cmds = append(cmds, cmd)
	}

	return cmds, true
}

func (d *Decoder) decodeOne(code byte, r *reader) (Command, error) {
	switch code {
	case CodeServerStarted:
		return ServerStarted{}, nil
	case CodeServerQuit:
		return ServerQuit{}, nil
	case CodeServerStartPlaying:
		return d.decodeStartPlaying(r)
	case CodeServerGameOver:
		return d.decodeGameOver(r)
	case CodeServerMessage:
		return ServerMessage{Text: d.trailingString(r)}, nil
	case CodeServerWarning:
		return ServerWarning{Text: d.trailingString(r)}, nil
	case CodePlayerJoined:
		return d.decodePlayerJoined(r)
	case CodePlayerLeft:
		return d.decodePlayerLeft(r)
	case CodePlayerReady:
		return d.decodePlayerReady(r)
	case CodePlayerChat:
		return d.decodePlayerChat(r)
	case CodePlayerDefeated:
		return d.decodePlayerDefeated(r)
	case CodeGameLuaMsg:
		return d.decodeLuaMsg(r)
	case CodeGameTeamStat:
		return d.decodeTeamStat(r)
	default:
		return nil, errUnknownCommand
	}
}

// decodeStartPlaying handles code 2. Old engines send the bare code; newer
// ones append a 4-byte header, a 16-byte game id and the demo file name.
// The presence of a 4th payload byte is the extended-params signal.
func (d *Decoder) decodeStartPlaying(r *reader) (Command, error) {
	if r.remaining() < 4 {
		// No extended params. Leftover bytes, if any, belong to the
		// next command in the datagram.
		return ServerStartPlaying{}, nil
	}

	if !r.skip(4) {
		return nil, errIncomplete
	}
	id, ok := r.readBytes(16)
	if !ok {
		return nil, errIncomplete
	}

	return ServerStartPlaying{
		HasParams: true,
		GameID:    hex.EncodeToString(id),
		DemoName:  d.trailingString(r),
	}, nil
}

// decodeGameOver handles code 3. msgSize counts the code and size bytes plus
// the playerNb, so msgSize-3 bytes of winning ally-team ids follow.
func (d *Decoder) decodeGameOver(r *reader) (Command, error) {
	msgSize, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	playerNb, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	if int(msgSize) < 3 {
		return nil, errIncomplete
	}
	teams, ok := r.readBytes(int(msgSize) - 3)
	if !ok {
		return nil, errIncomplete
	}

	return ServerGameOver{PlayerNb: playerNb, WinningAllyTeams: teams}, nil
}

func (d *Decoder) decodePlayerJoined(r *reader) (Command, error) {
	playerNb, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	return PlayerJoined{PlayerNb: playerNb, Name: d.trailingString(r)}, nil
}

func (d *Decoder) decodePlayerLeft(r *reader) (Command, error) {
	playerNb, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	reason, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	return PlayerLeft{PlayerNb: playerNb, Reason: DisconnectCause(reason)}, nil
}

func (d *Decoder) decodePlayerReady(r *reader) (Command, error) {
	playerNb, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	state, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	return PlayerReady{PlayerNb: playerNb, State: ReadyState(state)}, nil
}

func (d *Decoder) decodePlayerChat(r *reader) (Command, error) {
	playerNb, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	dst, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}

	return PlayerChat{
		PlayerNb:        playerNb,
		DestinationCode: dst,
		Destination:     d.resolveDestination(dst),
		Text:            d.trailingString(r),
	}, nil
}

func (d *Decoder) decodePlayerDefeated(r *reader) (Command, error) {
	playerNb, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	return PlayerDefeated{PlayerNb: playerNb}, nil
}

// decodeLuaMsg handles code 20. The payload runs to the end of the datagram
// and is passed through opaque.
func (d *Decoder) decodeLuaMsg(r *reader) (Command, error) {
	if !r.skip(artifactPrefixLen) {
		return nil, errIncomplete
	}
	playerNb, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	scriptLow, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	scriptHigh, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	modeCode, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}

	payload := make([]byte, r.remaining())
	copy(payload, r.rest())

	return GameLuaMsg{
		PlayerNb: playerNb,
		Script:   uint16(scriptHigh)*256 + uint16(scriptLow),
		Mode:     string(rune(modeCode)),
		Payload:  payload,
	}, nil
}

// decodeTeamStat handles code 60: teamNb then the fixed 80-byte statistics
// block. Further commands may follow in the same datagram.
func (d *Decoder) decodeTeamStat(r *reader) (Command, error) {
	if !r.skip(artifactPrefixLen) {
		return nil, errIncomplete
	}
	teamNb, ok := r.readByte()
	if !ok {
		return nil, errIncomplete
	}
	payload, ok := r.readBytes(teamStatPayloadLen)
	if !ok {
		return nil, errIncomplete
	}

	var stats TeamStatistics
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &stats); err != nil {
		return nil, errIncomplete
	}

	return GameTeamStat{TeamNb: teamNb, Stats: stats}, nil
}

// resolveDestination maps a chat destination code to its audience: the fixed
// public/spectators/allies codes, a player name from the live session, or the
// raw numeric form when the player is unknown.
func (d *Decoder) resolveDestination(dst byte) string {
	switch dst {
	case DestPublicA, DestPublicB:
		return DestPublic
	case DestSpectatorsA, DestSpectatorsB:
		return DestSpectators
	case DestAlliesA, DestAlliesB:
		return DestAllies
	}

	if d.resolve != nil {
		if name, ok := d.resolve(dst); ok {
			return name
		}
	}
	return strconv.Itoa(int(dst))
}

// trailingString consumes every remaining byte of the datagram, translating
// each byte to its character. Control bytes are replaced with '_'; a command
// containing a trailing string is therefore always the last in its datagram.
func (d *Decoder) trailingString(r *reader) string {
	raw := r.rest()

	var sb strings.Builder
	sb.Grow(len(raw))
	control := 0
	for _, b := range raw {
		if b <= 31 {
			sb.WriteByte('_')
			control++
			continue
		}
		sb.WriteRune(rune(b))
	}

	if control > 0 {
		d.logger.Debug().
			Int("count", control).
			Msg("control characters in string field replaced with '_'")
	}
	return sb.String()
}
