package dispatch

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hostlink-project/hostlink/internal/protocol"
)

// BuiltinHandler applies a command's built-in state mutation. It runs
// between the pre-callback and callback phases, exactly once per command.
type BuiltinHandler func(cmd protocol.Command) bool

// Dispatcher routes each decoded command through three ordered phases:
// pre-callbacks (wildcard first, then subject-specific), the built-in
// handler, and callbacks. Dispatch never short-circuits; every handler runs
// and the aggregate result is the AND of all their returns.
type Dispatcher struct {
	logger zerolog.Logger

	pre      *registry
	post     *registry
	builtins map[string]BuiltinHandler

	// warnUnhandled turns a command with no subscriber and no built-in
	// handler into a logged failure.
	warnUnhandled bool
}

// NewDispatcher creates a dispatcher with empty registries.
func NewDispatcher(warnUnhandled bool) *Dispatcher {
	logger := log.With().Str("component", "dispatch").Logger()
	return &Dispatcher{
		logger:        logger,
		pre:           newRegistry("pre-callbacks", logger),
		post:          newRegistry("callbacks", logger),
		builtins:      make(map[string]BuiltinHandler),
		warnUnhandled: warnUnhandled,
	}
}

// SetBuiltin installs the built-in state-machine handler for a subject.
func (d *Dispatcher) SetBuiltin(subject string, h BuiltinHandler) {
	d.builtins[subject] = h
}

// AddPreCallback subscribes a handler to run before the built-in state
// update. maxCalls limits the number of invocations; 0 means unlimited.
func (d *Dispatcher) AddPreCallback(subject, priority string, maxCalls int, h Handler) {
	d.pre.add(subject, priority, maxCalls, h)
}

// RemovePreCallbacks drops the (subject, priority) pre-callback for each
// given subject.
func (d *Dispatcher) RemovePreCallbacks(subjects []string, priority string) {
	d.pre.remove(subjects, priority)
}

// AddCallback subscribes a handler to run after the built-in state update.
func (d *Dispatcher) AddCallback(subject, priority string, maxCalls int, h Handler) {
	d.post.add(subject, priority, maxCalls, h)
}

// RemoveCallbacks drops the (subject, priority) callback for each given
// subject.
func (d *Dispatcher) RemoveCallbacks(subjects []string, priority string) {
	d.post.remove(subjects, priority)
}

// Dispatch runs one command through all three phases and returns the
// aggregate result.
func (d *Dispatcher) Dispatch(cmd protocol.Command) bool {
	subject := cmd.Subject()
	ok := true
	processed := false

	for _, key := range []string{Wildcard, subject} {
		ran, phaseOK := d.run(d.pre, key, cmd)
		processed = processed || ran
		ok = ok && phaseOK
	}

	if builtin, exists := d.builtins[subject]; exists {
		ok = builtin(cmd) && ok
		processed = true
	}

	for _, key := range []string{Wildcard, subject} {
		ran, phaseOK := d.run(d.post, key, cmd)
		processed = processed || ran
		ok = ok && phaseOK
	}

	if !processed && d.warnUnhandled {
		d.logger.Warn().Str("subject", subject).Msg("unprocessed command")
		return false
	}

	return ok
}

// run invokes every entry registered under key, in priority order,
// decrementing call-limited entries and retiring them at zero. It reports
// whether anything ran and whether every handler succeeded.
func (d *Dispatcher) run(reg *registry, key string, cmd protocol.Command) (bool, bool) {
	entries := reg.sorted(key)
	if len(entries) == 0 {
		return false, true
	}

	ok := true
	for _, e := range entries {
		if !e.handler(cmd) {
			ok = false
		}
		if e.remaining > 0 {
			e.remaining--
			if e.remaining == 0 {
				reg.removeEntry(key, e.priority.Token())
			}
		}
	}
	return true, ok
}
