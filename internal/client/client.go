package client

import (
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostlink-project/hostlink/internal/dispatch"
	"github.com/hostlink-project/hostlink/internal/protocol"
	"github.com/hostlink-project/hostlink/internal/session"
)

// Client is the autohost interface. It owns the session state machine and
// the dispatcher, and drives both from datagrams pulled off the Transport.
// All methods must be called from the same goroutine that calls Pump.
type Client struct {
	logger     zerolog.Logger
	transport  Transport
	session    *session.Session
	decoder    *protocol.Decoder
	dispatcher *dispatch.Dispatcher

	opened bool
}

// New creates a closed client around the given transport. warnUnhandled
// makes a command with no subscriber and no built-in handler fail the pump
// cycle that carried it.
func New(transport Transport, warnUnhandled bool) *Client {
	c := &Client{
		logger:     log.With().Str("component", "client").Logger(),
		transport:  transport,
		session:    session.New(),
		dispatcher: dispatch.NewDispatcher(warnUnhandled),
	}
	c.decoder = protocol.NewDecoder(c.session.PlayerName)
	c.registerBuiltins()
	return c
}

// registerBuiltins wires the session mutation entry points as the built-in
// handler of each command that carries state. SERVER_WARNING, PLAYER_CHAT,
// GAME_LUAMSG and GAME_TEAMSTAT mutate nothing and are subscriber-only.
func (c *Client) registerBuiltins() {
	d := c.dispatcher

	d.SetBuiltin(protocol.SubjectServerStarted, func(protocol.Command) bool {
		c.session.HandleServerStarted()
		return true
	})
	d.SetBuiltin(protocol.SubjectServerQuit, func(protocol.Command) bool {
		c.session.HandleServerQuit()
		return true
	})
	d.SetBuiltin(protocol.SubjectServerStartPlaying, func(cmd protocol.Command) bool {
		c.session.HandleStartPlaying(cmd.(protocol.ServerStartPlaying))
		return true
	})
	d.SetBuiltin(protocol.SubjectServerGameOver, func(cmd protocol.Command) bool {
		g := cmd.(protocol.ServerGameOver)
		c.session.HandleGameOver(g.PlayerNb, g.WinningAllyTeams)
		return true
	})
	d.SetBuiltin(protocol.SubjectServerMessage, func(cmd protocol.Command) bool {
		c.session.HandleServerMessage(cmd.(protocol.ServerMessage).Text)
		return true
	})
	d.SetBuiltin(protocol.SubjectPlayerJoined, func(cmd protocol.Command) bool {
		j := cmd.(protocol.PlayerJoined)
		c.session.HandlePlayerJoined(j.PlayerNb, j.Name)
		return true
	})
	d.SetBuiltin(protocol.SubjectPlayerLeft, func(cmd protocol.Command) bool {
		l := cmd.(protocol.PlayerLeft)
		c.session.HandlePlayerLeft(l.PlayerNb, l.Reason)
		return true
	})
	d.SetBuiltin(protocol.SubjectPlayerReady, func(cmd protocol.Command) bool {
		r := cmd.(protocol.PlayerReady)
		c.session.HandlePlayerReady(r.PlayerNb, r.State)
		return true
	})
	d.SetBuiltin(protocol.SubjectPlayerDefeated, func(cmd protocol.Command) bool {
		c.session.HandlePlayerDefeated(cmd.(protocol.PlayerDefeated).PlayerNb)
		return true
	})
}

// Open binds the transport endpoint. Opening an already-open client is a
// logged no-op reporting success.
func (c *Client) Open(host string, port int) error {
	if c.opened {
		c.logger.Debug().Msg("open called on open client")
		return nil
	}

	if err := c.transport.Open(host, port); err != nil {
		return err
	}
	c.opened = true
	return nil
}

// Close releases the endpoint and resets the session to NotRunning with an
// empty player table. Closing a closed client is a logged no-op.
func (c *Client) Close() {
	if !c.opened {
		c.logger.Debug().Msg("close called on closed client")
		return
	}

	c.transport.Close()
	c.opened = false
	c.session.Reset()
	c.logger.Info().Msg("client closed")
}

// Pump pulls at most one datagram, decodes it and dispatches each command in
// order. It returns true when nothing was pending or every command decoded
// and dispatched cleanly. The caller drives the cadence; there is no
// internal loop or goroutine.
func (c *Client) Pump() bool {
	if !c.opened {
		return false
	}

	buf := c.transport.Receive()
	if buf == nil {
		return true
	}

	cmds, consumed := c.decoder.Decode(buf)
	ok := consumed
	for _, cmd := range cmds {
		if !c.dispatcher.Dispatch(cmd) {
			ok = false
		}
	}
	return ok
}

// SendChatMessage sends the text verbatim to the engine. It fails without
// touching the transport when the client is closed or no server is running.
func (c *Client) SendChatMessage(text string) bool {
	if !c.opened {
		c.logger.Warn().Msg("chat message dropped, client not open")
		return false
	}
	if c.session.State() == session.StateNotRunning {
		c.logger.Warn().Msg("chat message dropped, no server running")
		return false
	}
	return c.transport.Send([]byte(text))
}

// State returns the current session state.
func (c *Client) State() session.State {
	return c.session.State()
}

// GameID returns the current match identifier, empty until reported.
func (c *Client) GameID() string {
	return c.session.GameID()
}

// DemoName returns the current demo file name, empty until reported.
func (c *Client) DemoName() string {
	return c.session.DemoName()
}

// Players returns a deep-copied snapshot of the player table.
func (c *Client) Players() map[uint8]session.Player {
	return c.session.Players()
}

// Player returns a snapshot of the player with the given name.
func (c *Client) Player(name string) (session.Player, bool) {
	return c.session.PlayerByName(name)
}

// AddPreCallback subscribes a handler to run before the built-in state
// update for the subject (or dispatch.Wildcard). An empty priority defaults
// to the caller's package name; maxCalls 0 means unlimited.
func (c *Client) AddPreCallback(subject, priority string, maxCalls int, h dispatch.Handler) {
	c.dispatcher.AddPreCallback(subject, c.priorityOrCaller(priority), maxCalls, h)
}

// RemovePreCallbacks drops the (subject, priority) pre-callback for each
// given subject.
func (c *Client) RemovePreCallbacks(subjects []string, priority string) {
	c.dispatcher.RemovePreCallbacks(subjects, priority)
}

// AddCallback subscribes a handler to run after the built-in state update.
func (c *Client) AddCallback(subject, priority string, maxCalls int, h dispatch.Handler) {
	c.dispatcher.AddCallback(subject, c.priorityOrCaller(priority), maxCalls, h)
}

// RemoveCallbacks drops the (subject, priority) callback for each given
// subject.
func (c *Client) RemoveCallbacks(subjects []string, priority string) {
	c.dispatcher.RemoveCallbacks(subjects, priority)
}

func (c *Client) priorityOrCaller(priority string) string {
	if priority != "" {
		return priority
	}
	return callerPackage()
}

// callerPackage derives a default priority token from the package of the
// code that registered the subscription, two frames up the stack.
func callerPackage() string {
	pc, _, _, ok := runtime.Caller(3)
	if !ok {
		return "subscriber"
	}
	name := runtime.FuncForPC(pc).Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[:i]
	}
	if name == "" {
		return "subscriber"
	}
	return name
}
