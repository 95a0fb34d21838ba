// Package match follows the live autohost command stream, keeps a
// thread-safe snapshot of the running match for the API and CLI, and
// persists finished matches to the history store.
package match

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hostlink-project/hostlink/internal/client"
	"github.com/hostlink-project/hostlink/internal/dispatch"
	"github.com/hostlink-project/hostlink/internal/protocol"
	"github.com/hostlink-project/hostlink/internal/session"
	"github.com/hostlink-project/hostlink/internal/store"
	"github.com/hostlink-project/hostlink/internal/util"
)

// maxChatLines bounds the in-memory chat log.
const maxChatLines = 200

// subscriberPriority keys the tracker's dispatcher subscription.
const subscriberPriority = "match-tracker"

// ChatMessage is one chat line observed during the current match.
type ChatMessage struct {
	Timestamp   time.Time `json:"timestamp"`
	PlayerNb    uint8     `json:"player_nb"`
	PlayerName  string    `json:"player_name"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
}

// Snapshot is a consistent copy of the live match, safe to hand to other
// goroutines.
type Snapshot struct {
	State     session.State                     `json:"state"`
	GameID    string                            `json:"game_id"`
	DemoName  string                            `json:"demo_name"`
	StartedAt time.Time                         `json:"started_at"`
	Players   map[uint8]session.Player          `json:"players"`
	TeamStats map[uint8]protocol.TeamStatistics `json:"team_stats"`
	Chat      []ChatMessage                     `json:"chat"`
}

// Tracker mirrors the client's session into a lockable snapshot. The client
// itself is single-threaded; the tracker's callback runs on the pump
// goroutine and the mutex makes the copy readable from anywhere.
type Tracker struct {
	mu     sync.RWMutex
	logger zerolog.Logger

	ah *client.Client
	db *store.MatchStore // nil disables persistence

	state     session.State
	gameID    string
	demoName  string
	startedAt time.Time
	players   map[uint8]session.Player
	teamStats map[uint8]protocol.TeamStatistics
	chat      []ChatMessage

	recorded bool
}

// NewTracker creates a tracker over the given client. db may be nil.
func NewTracker(ah *client.Client, db *store.MatchStore) *Tracker {
	return &Tracker{
		logger:    util.ComponentLogger("match"),
		ah:        ah,
		db:        db,
		players:   make(map[uint8]session.Player),
		teamStats: make(map[uint8]protocol.TeamStatistics),
	}
}

// Subscribe registers the tracker on the client's dispatcher. Must be called
// from the pump goroutine before pumping starts.
func (t *Tracker) Subscribe() {
	t.ah.AddCallback(dispatch.Wildcard, subscriberPriority, 0, t.onCommand)
}

// onCommand refreshes the snapshot after every command's built-in handler
// has run, and reacts to the match boundary commands.
func (t *Tracker) onCommand(cmd protocol.Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prevState := t.state
	t.state = t.ah.State()
	t.gameID = t.ah.GameID()
	t.demoName = t.ah.DemoName()
	t.players = t.ah.Players()

	switch c := cmd.(type) {
	case protocol.ServerStarted:
		t.teamStats = make(map[uint8]protocol.TeamStatistics)
		t.chat = nil
		t.recorded = false
	case protocol.ServerStartPlaying:
		t.startedAt = time.Now()
	case protocol.ServerMessage:
		util.LogAt(t.logger, 3, c.Text)
	case protocol.ServerWarning:
		util.LogAt(t.logger, 2, c.Text)
	case protocol.PlayerChat:
		t.appendChat(c)
	case protocol.GameTeamStat:
		t.teamStats[c.TeamNb] = c.Stats
	}

	if t.state == session.StateGameOver && prevState != session.StateGameOver {
		t.record()
	}
	return true
}

func (t *Tracker) appendChat(c protocol.PlayerChat) {
	name := ""
	if p, ok := t.players[c.PlayerNb]; ok {
		name = p.Name
	}
	t.chat = append(t.chat, ChatMessage{
		Timestamp:   time.Now(),
		PlayerNb:    c.PlayerNb,
		PlayerName:  name,
		Destination: c.Destination,
		Text:        c.Text,
	})
	if len(t.chat) > maxChatLines {
		t.chat = t.chat[len(t.chat)-maxChatLines:]
	}
}

// record persists the finished match. Called with the lock held, on the
// pump goroutine.
func (t *Tracker) record() {
	if t.recorded || t.db == nil {
		return
	}
	t.recorded = true

	stats := make(map[uint8]protocol.TeamStatistics, len(t.teamStats))
	for nb, s := range t.teamStats {
		stats[nb] = s
	}

	startedAt := t.startedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err := t.db.RecordMatch(store.MatchRecord{
		GameID:    t.gameID,
		DemoName:  t.demoName,
		StartedAt: startedAt,
		EndedAt:   time.Now(),
		Players:   t.players,
		TeamStats: stats,
	})
	if err != nil {
		t.logger.Error().Err(err).Str("game_id", t.gameID).Msg("failed to persist match")
	}
}

// Snapshot returns a deep copy of the live match.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	players := make(map[uint8]session.Player, len(t.players))
	for nb, p := range t.players {
		players[nb] = p
	}
	stats := make(map[uint8]protocol.TeamStatistics, len(t.teamStats))
	for nb, s := range t.teamStats {
		stats[nb] = s
	}
	chat := make([]ChatMessage, len(t.chat))
	copy(chat, t.chat)

	return Snapshot{
		State:     t.state,
		GameID:    t.gameID,
		DemoName:  t.demoName,
		StartedAt: t.startedAt,
		Players:   players,
		TeamStats: stats,
		Chat:      chat,
	}
}
