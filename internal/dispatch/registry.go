package dispatch

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/hostlink-project/hostlink/internal/protocol"
)

// Wildcard is the subject that matches every command.
const Wildcard = "*"

// Handler processes one decoded command. The return value feeds the
// aggregate dispatch result; false marks the pump cycle failed without
// stopping any other handler.
type Handler func(cmd protocol.Command) bool

type entry struct {
	priority  Priority
	handler   Handler
	remaining int // calls left; 0 means unlimited
	seq       uint64
}

// registry holds subscriptions for one phase, keyed by subject then by
// priority token. The seq counter preserves registration order so label
// priorities stay stable.
type registry struct {
	logger   zerolog.Logger
	name     string
	subjects map[string]map[string]*entry
	nextSeq  uint64
}

func newRegistry(name string, logger zerolog.Logger) *registry {
	return &registry{
		logger:   logger,
		name:     name,
		subjects: make(map[string]map[string]*entry),
	}
}

// add registers a handler. Re-registering the same (subject, priority) pair
// replaces the previous handler in place, keeping its position in the order.
func (r *registry) add(subject, priority string, maxCalls int, h Handler) {
	byPriority, ok := r.subjects[subject]
	if !ok {
		byPriority = make(map[string]*entry)
		r.subjects[subject] = byPriority
	}

	if prev, exists := byPriority[priority]; exists {
		r.logger.Debug().
			Str("registry", r.name).
			Str("subject", subject).
			Str("priority", priority).
			Msg("replacing existing subscription")
		prev.handler = h
		prev.remaining = maxCalls
		return
	}

	byPriority[priority] = &entry{
		priority:  ParsePriority(priority),
		handler:   h,
		remaining: maxCalls,
		seq:       r.nextSeq,
	}
	r.nextSeq++

	r.logger.Debug().
		Str("registry", r.name).
		Str("subject", subject).
		Str("priority", priority).
		Int("max_calls", maxCalls).
		Msg("subscribed")
}

// remove drops the (subject, priority) subscription from each given subject.
func (r *registry) remove(subjects []string, priority string) {
	for _, subject := range subjects {
		byPriority, ok := r.subjects[subject]
		if !ok {
			continue
		}
		if _, exists := byPriority[priority]; !exists {
			continue
		}
		delete(byPriority, priority)
		if len(byPriority) == 0 {
			delete(r.subjects, subject)
		}
		r.logger.Debug().
			Str("registry", r.name).
			Str("subject", subject).
			Str("priority", priority).
			Msg("unsubscribed")
	}
}

// removeEntry drops a single spent subscription.
func (r *registry) removeEntry(subject, priority string) {
	byPriority, ok := r.subjects[subject]
	if !ok {
		return
	}
	delete(byPriority, priority)
	if len(byPriority) == 0 {
		delete(r.subjects, subject)
	}
}

// sorted returns the subject's entries ordered by priority: numeric tokens
// ascending, then labels in registration order.
func (r *registry) sorted(subject string) []*entry {
	byPriority, ok := r.subjects[subject]
	if !ok || len(byPriority) == 0 {
		return nil
	}

	entries := make([]*entry, 0, len(byPriority))
	for _, e := range byPriority {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].priority.Less(entries[j].priority) {
			return true
		}
		if entries[j].priority.Less(entries[i].priority) {
			return false
		}
		return entries[i].seq < entries[j].seq
	})
	return entries
}
