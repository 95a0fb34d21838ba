// Package session maintains the live game session and player table, derived
// purely from the decoded autohost command stream. The engine is the only
// source of truth; every mutation here is a reaction to an observed command,
// applied defensively because the stream is untrusted and may be reordered.
package session

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostlink-project/hostlink/internal/protocol"
)

// State is the lifecycle state of the game session.
type State int

const (
	StateNotRunning State = iota
	StateStarted
	StatePlaying
	StateGameOver
)

// stateStrings maps State values to their lowercase JSON string representation.
var stateStrings = map[State]string{
	StateNotRunning: "not_running",
	StateStarted:    "started",
	StatePlaying:    "playing",
	StateGameOver:   "game_over",
}

// String returns the string representation of State.
func (s State) String() string {
	if str, ok := stateStrings[s]; ok {
		return str
	}
	return "not_running"
}

// MarshalJSON serializes State as a JSON string (e.g. "playing").
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Player is one entry in the player table, keyed by playerNb.
type Player struct {
	PlayerNb        uint8                    `json:"player_nb"`
	Name            string                   `json:"name"`
	DisconnectCause protocol.DisconnectCause `json:"disconnect_cause"`
	Ready           protocol.ReadyState      `json:"ready"`
	Lost            bool                     `json:"lost"`
	Version         string                   `json:"version"`
	Address         string                   `json:"address"`

	// WinningAllyTeams is only meaningful once HasOutcome is true.
	WinningAllyTeams []uint8 `json:"winning_ally_teams,omitempty"`
	HasOutcome       bool    `json:"has_outcome"`
}

// Handshake line markers emitted as SERVER_MESSAGE during a connection
// attempt, in arrival order.
const (
	msgConnAttempt     = "Connection attempt from "
	msgConnVersion     = " -> Version: "
	msgConnAddress     = " -> Address: "
	msgConnEstablished = " -> Connection established (given id "
)

// pendingConnection stages handshake fields across the multi-line sequence
// until the "established" line assigns a playerNb.
type pendingConnection struct {
	name    string
	version string
	address string
}

// Session owns the session state, the game identifier and the
// playerNb-keyed player table. It is single-threaded by contract: all
// mutations happen on the pump path.
type Session struct {
	logger zerolog.Logger

	state    State
	gameID   string
	demoName string
	players  map[uint8]*Player
	pending  pendingConnection
}

// New creates an empty session in the NotRunning state.
func New() *Session {
	return &Session{
		logger:  log.With().Str("component", "session").Logger(),
		state:   StateNotRunning,
		players: make(map[uint8]*Player),
	}
}

// HandleServerStarted marks the session started and clears the previous
// match identifiers.
func (s *Session) HandleServerStarted() {
	s.state = StateStarted
	s.gameID = ""
	s.demoName = ""
	s.logger.Info().Msg("server started")
}

// HandleServerQuit resets the session and drops the whole player table.
func (s *Session) HandleServerQuit() {
	s.state = StateNotRunning
	s.players = make(map[uint8]*Player)
	s.logger.Info().Msg("server quit")
}

// HandleStartPlaying marks the match as playing and stores the game id and
// demo name when the engine reported them.
func (s *Session) HandleStartPlaying(cmd protocol.ServerStartPlaying) {
	s.state = StatePlaying
	if cmd.HasParams {
		s.gameID = cmd.GameID
		s.demoName = cmd.DemoName
	}
	s.logger.Info().
		Str("game_id", s.gameID).
		Str("demo", s.demoName).
		Msg("match started")
}

// HandleServerMessage inspects a server message for connection-handshake
// lines; anything else is ignored here.
func (s *Session) HandleServerMessage(text string) {
	switch {
	case strings.HasPrefix(text, msgConnAttempt):
		s.pending = pendingConnection{name: strings.TrimPrefix(text, msgConnAttempt)}
	case strings.HasPrefix(text, msgConnVersion):
		s.pending.version = strings.TrimPrefix(text, msgConnVersion)
	case strings.HasPrefix(text, msgConnAddress):
		s.pending.address = strings.TrimPrefix(text, msgConnAddress)
	case strings.HasPrefix(text, msgConnEstablished):
		s.finalizeConnection(strings.TrimPrefix(text, msgConnEstablished))
	}
}

// finalizeConnection applies the staged handshake once the engine assigns a
// player id. The staging record is cleared regardless of the outcome.
func (s *Session) finalizeConnection(idPart string) {
	pending := s.pending
	s.pending = pendingConnection{}

	idStr := strings.TrimSuffix(strings.TrimSpace(idPart), ")")
	id, err := strconv.Atoi(idStr)
	if err != nil || id < 0 || id > 255 {
		s.logger.Warn().Str("id", idStr).Msg("unparseable player id in handshake")
		return
	}
	playerNb := uint8(id)

	if p, ok := s.players[playerNb]; ok {
		if p.Name != pending.name {
			s.logger.Warn().
				Uint8("player_nb", playerNb).
				Str("known", p.Name).
				Str("handshake", pending.name).
				Msg("handshake name mismatch, keeping existing record")
			return
		}
		p.Version = pending.version
		p.Address = pending.address
		p.DisconnectCause = protocol.CauseLoading
		return
	}

	s.players[playerNb] = &Player{
		PlayerNb:        playerNb,
		Name:            pending.name,
		Version:         pending.version,
		Address:         pending.address,
		DisconnectCause: protocol.CauseLoading,
		Ready:           protocol.Unknown,
	}
	s.logger.Info().
		Uint8("player_nb", playerNb).
		Str("name", pending.name).
		Str("address", pending.address).
		Msg("player connection established")
}

// HandlePlayerJoined creates the player if absent and marks it connected.
func (s *Session) HandlePlayerJoined(playerNb uint8, name string) {
	if p, ok := s.players[playerNb]; ok {
		if p.Name != name {
			s.logger.Warn().
				Uint8("player_nb", playerNb).
				Str("known", p.Name).
				Str("joined", name).
				Msg("join name mismatch, keeping existing record")
		}
		p.DisconnectCause = protocol.CauseConnected
		return
	}

	s.players[playerNb] = &Player{
		PlayerNb:        playerNb,
		Name:            name,
		DisconnectCause: protocol.CauseConnected,
		Ready:           protocol.Unknown,
	}
	s.logger.Info().Uint8("player_nb", playerNb).Str("name", name).Msg("player joined")
}

// HandlePlayerLeft records the reported disconnect cause and re-evaluates
// whether the match is over.
func (s *Session) HandlePlayerLeft(playerNb uint8, cause protocol.DisconnectCause) {
	p, ok := s.players[playerNb]
	if !ok {
		s.logger.Warn().Uint8("player_nb", playerNb).Msg("PLAYER_LEFT for unknown player")
		return
	}
	p.DisconnectCause = cause
	s.logger.Info().
		Uint8("player_nb", playerNb).
		Str("name", p.Name).
		Str("cause", cause.String()).
		Msg("player left")
	s.evaluateGameOver()
}

// HandlePlayerReady records a ready-state change. An Unknown report never
// overwrites a previously known state.
func (s *Session) HandlePlayerReady(playerNb uint8, state protocol.ReadyState) {
	p, ok := s.players[playerNb]
	if !ok {
		s.logger.Warn().Uint8("player_nb", playerNb).Msg("PLAYER_READY for unknown player")
		return
	}
	if state == protocol.Unknown {
		return
	}
	p.Ready = state
}

// HandlePlayerDefeated marks the player as having lost.
func (s *Session) HandlePlayerDefeated(playerNb uint8) {
	p, ok := s.players[playerNb]
	if !ok {
		s.logger.Warn().Uint8("player_nb", playerNb).Msg("PLAYER_DEFEATED for unknown player")
		return
	}
	p.Lost = true
}

// HandleGameOver records a player's winning ally teams and re-evaluates
// whether the match is over. An outcome for an unknown playerNb is logged
// but still recorded under that id; the engine has been observed reporting
// outcomes for ids it never announced.
func (s *Session) HandleGameOver(playerNb uint8, winningAllyTeams []uint8) {
	p, ok := s.players[playerNb]
	if !ok {
		s.logger.Warn().Uint8("player_nb", playerNb).Msg("SERVER_GAMEOVER for unknown player")
		p = &Player{
			PlayerNb:        playerNb,
			DisconnectCause: protocol.CauseConnectionLost,
			Ready:           protocol.Unknown,
		}
		s.players[playerNb] = p
	}

	if p.HasOutcome {
		s.logger.Warn().
			Uint8("player_nb", playerNb).
			Msg("duplicate SERVER_GAMEOVER for player, overwriting outcome")
	}

	teams := make([]uint8, len(winningAllyTeams))
	copy(teams, winningAllyTeams)
	p.WinningAllyTeams = teams
	p.HasOutcome = true

	s.evaluateGameOver()
}

// evaluateGameOver applies the completion heuristic: once more players have a
// recorded outcome than are still loading or connected, the match is over.
// Outcome messages are not guaranteed for every player, so this tolerates an
// incomplete set.
func (s *Session) evaluateGameOver() {
	finished := 0
	inProgress := 0
	for _, p := range s.players {
		if p.HasOutcome {
			finished++
		}
		if p.DisconnectCause < 0 {
			inProgress++
		}
	}

	if finished > inProgress && s.state != StateGameOver {
		s.state = StateGameOver
		s.logger.Info().
			Int("finished", finished).
			Int("in_progress", inProgress).
			Msg("game over")
	}
}

// Reset returns the session to its initial state: NotRunning, no match
// identifiers, empty player table, no staged handshake.
func (s *Session) Reset() {
	s.state = StateNotRunning
	s.gameID = ""
	s.demoName = ""
	s.players = make(map[uint8]*Player)
	s.pending = pendingConnection{}
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// GameID returns the 32-hex-digit game identifier, empty until reported.
func (s *Session) GameID() string {
	return s.gameID
}

// DemoName returns the demo file name, empty until reported.
func (s *Session) DemoName() string {
	return s.demoName
}

// Players returns a deep-copied snapshot of the player table.
func (s *Session) Players() map[uint8]Player {
	out := make(map[uint8]Player, len(s.players))
	for nb, p := range s.players {
		out[nb] = copyPlayer(p)
	}
	return out
}

// PlayerByName returns a snapshot of the player with the given name.
func (s *Session) PlayerByName(name string) (Player, bool) {
	for _, p := range s.players {
		if p.Name == name {
			return copyPlayer(p), true
		}
	}
	return Player{}, false
}

// PlayerName resolves a playerNb to its name. Satisfies
// protocol.PlayerNameResolver for chat destination lookup.
func (s *Session) PlayerName(playerNb uint8) (string, bool) {
	if p, ok := s.players[playerNb]; ok && p.Name != "" {
		return p.Name, true
	}
	return "", false
}

func copyPlayer(p *Player) Player {
	out := *p
	if p.WinningAllyTeams != nil {
		out.WinningAllyTeams = make([]uint8, len(p.WinningAllyTeams))
		copy(out.WinningAllyTeams, p.WinningAllyTeams)
	}
	return out
}
