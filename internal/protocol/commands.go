// Package protocol implements the binary autohost protocol spoken by the
// game engine over UDP. Each datagram carries one or more commands; the
// first byte of a command is its code, followed by a command-specific
// payload. Multi-byte numeric fields are little-endian.
package protocol

import "strconv"

// Command code bytes sent by the engine.
const (
	CodeServerStarted      byte = 0  // Engine process is up
	CodeServerQuit         byte = 1  // Engine is shutting down
	CodeServerStartPlaying byte = 2  // Match started (optionally gameId + demo name)
	CodeServerGameOver     byte = 3  // Per-player outcome with winning ally teams
	CodeServerMessage      byte = 4  // Free-text server message (incl. handshake lines)
	CodeServerWarning      byte = 5  // Free-text server warning
	CodePlayerJoined       byte = 10 // Player joined (playerNb + name)
	CodePlayerLeft         byte = 11 // Player left (playerNb + reason)
	CodePlayerReady        byte = 12 // Player ready-state change
	CodePlayerChat         byte = 13 // In-game chat line
	CodePlayerDefeated     byte = 14 // Player defeated
	CodeGameLuaMsg         byte = 20 // Opaque Lua message relayed by the engine
	CodeGameTeamStat       byte = 60 // Packed per-team statistics
)

// Command subjects, used as subscription keys in the dispatch registries.
const (
	SubjectServerStarted      = "SERVER_STARTED"
	SubjectServerQuit         = "SERVER_QUIT"
	SubjectServerStartPlaying = "SERVER_STARTPLAYING"
	SubjectServerGameOver     = "SERVER_GAMEOVER"
	SubjectServerMessage      = "SERVER_MESSAGE"
	SubjectServerWarning      = "SERVER_WARNING"
	SubjectPlayerJoined       = "PLAYER_JOINED"
	SubjectPlayerLeft         = "PLAYER_LEFT"
	SubjectPlayerReady        = "PLAYER_READY"
	SubjectPlayerChat         = "PLAYER_CHAT"
	SubjectPlayerDefeated     = "PLAYER_DEFEATED"
	SubjectGameLuaMsg         = "GAME_LUAMSG"
	SubjectGameTeamStat       = "GAME_TEAMSTAT"
)

// DisconnectCause describes why (or whether) a player is disconnected.
// The wire carries an unsigned reason byte and unknown codes are preserved
// as-is, so the type must hold the full 0-255 range alongside the negative
// client-side values.
type DisconnectCause int16

const (
	CauseLoading        DisconnectCause = -2
	CauseConnected      DisconnectCause = -1
	CauseConnectionLost DisconnectCause = 0
	CauseLeft           DisconnectCause = 1
	CauseKicked         DisconnectCause = 2
)

// disconnectCauseStrings maps known causes to their string representation.
var disconnectCauseStrings = map[DisconnectCause]string{
	CauseLoading:        "loading",
	CauseConnected:      "connected",
	CauseConnectionLost: "connection_lost",
	CauseLeft:           "left",
	CauseKicked:         "kicked",
}

// String returns the string representation of DisconnectCause. Unknown
// codes render as their numeric value.
func (c DisconnectCause) String() string {
	if s, ok := disconnectCauseStrings[c]; ok {
		return s
	}
	return strconv.Itoa(int(c))
}

// MarshalJSON serializes DisconnectCause as a JSON string (e.g. "connected").
func (c DisconnectCause) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// ReadyState is a player's reported readiness.
type ReadyState uint8

const (
	NotReady ReadyState = 0
	Ready    ReadyState = 1
	Unknown  ReadyState = 2
)

// String returns the string representation of ReadyState.
func (s ReadyState) String() string {
	switch s {
	case NotReady:
		return "not_ready"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes ReadyState as a JSON string (e.g. "ready").
func (s ReadyState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Chat destination codes. Two codes exist per audience; the engine uses one
// pair for messages it originates and the mirrored pair for relayed ones.
const (
	DestPublicA     byte = 125
	DestPublicB     byte = 254
	DestSpectatorsA byte = 126
	DestSpectatorsB byte = 253
	DestAlliesA     byte = 127
	DestAlliesB     byte = 252
)

// Chat destination labels after resolution.
const (
	DestPublic     = ""
	DestSpectators = "spectators"
	DestAllies     = "allies"
)

// Command is a decoded autohost command. Subject returns the command name
// used as the subscription key in the dispatch registries.
type Command interface {
	Subject() string
}

// ServerStarted is sent once when the engine process comes up.
type ServerStarted struct{}

// ServerQuit is sent when the engine shuts down.
type ServerQuit struct{}

// ServerStartPlaying is sent when the match leaves the lobby. Newer engines
// append a game identifier and the demo (replay) file name.
type ServerStartPlaying struct {
	HasParams bool   // extended params were present on the wire
	GameID    string // 32 hex digits, empty if HasParams is false
	DemoName  string
}

// ServerGameOver reports the match outcome for one player.
type ServerGameOver struct {
	PlayerNb         uint8
	WinningAllyTeams []uint8
}

// ServerMessage is a free-text message from the engine. Connection
// handshakes arrive as a multi-line sequence of these.
type ServerMessage struct {
	Text string
}

// ServerWarning is a free-text warning from the engine.
type ServerWarning struct {
	Text string
}

// PlayerJoined is sent when a player enters the session.
type PlayerJoined struct {
	PlayerNb uint8
	Name     string
}

// PlayerLeft is sent when a player leaves; Reason is a DisconnectCause code.
type PlayerLeft struct {
	PlayerNb uint8
	Reason   DisconnectCause
}

// PlayerReady reports a ready-state change.
type PlayerReady struct {
	PlayerNb uint8
	State    ReadyState
}

// PlayerChat is an in-game chat line. Destination is the resolved audience:
// empty string for public, "spectators", "allies", a player name, or the raw
// numeric code when the target player is unknown.
type PlayerChat struct {
	PlayerNb        uint8
	DestinationCode uint8
	Destination     string
	Text            string
}

// PlayerDefeated is sent when a player loses.
type PlayerDefeated struct {
	PlayerNb uint8
}

// GameLuaMsg is an opaque Lua message relayed by the engine. Script is the
// 16-bit script id, Mode the single mode character.
type GameLuaMsg struct {
	PlayerNb uint8
	Script   uint16
	Mode     string
	Payload  []byte
}

// TeamStatistics is the packed per-team statistics block: one frame counter,
// twelve resource/damage floats and seven unit counters, little-endian.
type TeamStatistics struct {
	Frame uint32

	MetalUsed      float32
	EnergyUsed     float32
	MetalProduced  float32
	EnergyProduced float32
	MetalExcess    float32
	EnergyExcess   float32
	MetalReceived  float32
	EnergyReceived float32
	MetalSent      float32
	EnergySent     float32
	DamageDealt    float32
	DamageReceived float32

	UnitsProduced    uint32
	UnitsDied        uint32
	UnitsReceived    uint32
	UnitsSent        uint32
	UnitsCaptured    uint32
	UnitsOutCaptured uint32
	UnitsKilled      uint32
}

// GameTeamStat carries the statistics block for one team.
type GameTeamStat struct {
	TeamNb uint8
	Stats  TeamStatistics
}

func (ServerStarted) Subject() string      { return SubjectServerStarted }
func (ServerQuit) Subject() string         { return SubjectServerQuit }
func (ServerStartPlaying) Subject() string { return SubjectServerStartPlaying }
func (ServerGameOver) Subject() string     { return SubjectServerGameOver }
func (ServerMessage) Subject() string      { return SubjectServerMessage }
func (ServerWarning) Subject() string      { return SubjectServerWarning }
func (PlayerJoined) Subject() string       { return SubjectPlayerJoined }
func (PlayerLeft) Subject() string         { return SubjectPlayerLeft }
func (PlayerReady) Subject() string        { return SubjectPlayerReady }
func (PlayerChat) Subject() string         { return SubjectPlayerChat }
func (PlayerDefeated) Subject() string     { return SubjectPlayerDefeated }
func (GameLuaMsg) Subject() string         { return SubjectGameLuaMsg }
func (GameTeamStat) Subject() string       { return SubjectGameTeamStat }
