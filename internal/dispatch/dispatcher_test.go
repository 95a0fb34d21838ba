package dispatch

import (
	"reflect"
	"testing"

	"github.com/hostlink-project/hostlink/internal/protocol"
)

func TestPriorityOrdering(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want bool // a < b
	}{
		{"numeric ascending", "5", "50", true},
		{"numeric descending", "50", "5", false},
		{"numeric before label", "50", "z", true},
		{"label after numeric", "z", "5", false},
		{"labels unordered", "alpha", "beta", false},
		{"negative numeric first", "-1", "0", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParsePriority(tc.a).Less(ParsePriority(tc.b)); got != tc.want {
				t.Fatalf("Less(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestDispatchPriorityOrder(t *testing.T) {
	d := NewDispatcher(false)
	var order []string

	record := func(tag string) Handler {
		return func(protocol.Command) bool {
			order = append(order, tag)
			return true
		}
	}

	// Registration order deliberately scrambled.
	d.AddCallback(protocol.SubjectServerStarted, "z", 0, record("z"))
	d.AddCallback(protocol.SubjectServerStarted, "50", 0, record("50"))
	d.AddCallback(protocol.SubjectServerStarted, "5", 0, record("5"))

	if !d.Dispatch(protocol.ServerStarted{}) {
		t.Fatalf("dispatch failed")
	}
	if want := []string{"5", "50", "z"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestLabelPrioritiesStableByRegistration(t *testing.T) {
	d := NewDispatcher(false)
	var order []string
	record := func(tag string) Handler {
		return func(protocol.Command) bool {
			order = append(order, tag)
			return true
		}
	}

	d.AddCallback(protocol.SubjectServerStarted, "zulu", 0, record("zulu"))
	d.AddCallback(protocol.SubjectServerStarted, "alpha", 0, record("alpha"))
	d.AddCallback(protocol.SubjectServerStarted, "10", 0, record("10"))

	d.Dispatch(protocol.ServerStarted{})
	if want := []string{"10", "zulu", "alpha"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestDispatchPhaseOrder(t *testing.T) {
	d := NewDispatcher(false)
	var order []string
	record := func(tag string) Handler {
		return func(protocol.Command) bool {
			order = append(order, tag)
			return true
		}
	}

	d.AddPreCallback(Wildcard, "1", 0, record("pre-wildcard"))
	d.AddPreCallback(protocol.SubjectPlayerJoined, "1", 0, record("pre-subject"))
	d.SetBuiltin(protocol.SubjectPlayerJoined, func(protocol.Command) bool {
		order = append(order, "builtin")
		return true
	})
	d.AddCallback(Wildcard, "1", 0, record("post-wildcard"))
	d.AddCallback(protocol.SubjectPlayerJoined, "1", 0, record("post-subject"))

	d.Dispatch(protocol.PlayerJoined{PlayerNb: 1, Name: "Alice"})

	want := []string{"pre-wildcard", "pre-subject", "builtin", "post-wildcard", "post-subject"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestCallLimitedSubscriptionRetires(t *testing.T) {
	d := NewDispatcher(false)
	calls := 0
	d.AddCallback(protocol.SubjectServerStarted, "1", 2, func(protocol.Command) bool {
		calls++
		return true
	})

	// Keep a permanent subscriber so later dispatches stay processed.
	d.AddCallback(protocol.SubjectServerStarted, "2", 0, func(protocol.Command) bool {
		return true
	})

	for i := 0; i < 3; i++ {
		if !d.Dispatch(protocol.ServerStarted{}) {
			t.Fatalf("dispatch %d failed", i)
		}
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want exactly 2", calls)
	}
}

func TestResubscribeReplacesHandler(t *testing.T) {
	d := NewDispatcher(false)
	var order []string

	d.AddCallback(protocol.SubjectServerStarted, "1", 0, func(protocol.Command) bool {
		order = append(order, "old")
		return true
	})
	d.AddCallback(protocol.SubjectServerStarted, "1", 0, func(protocol.Command) bool {
		order = append(order, "new")
		return true
	})

	d.Dispatch(protocol.ServerStarted{})
	if want := []string{"new"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	d := NewDispatcher(false)
	calls := 0
	d.AddCallback(protocol.SubjectServerStarted, "1", 0, func(protocol.Command) bool {
		calls++
		return true
	})

	d.Dispatch(protocol.ServerStarted{})
	d.RemoveCallbacks([]string{protocol.SubjectServerStarted}, "1")
	d.Dispatch(protocol.ServerStarted{})

	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestFailingHandlerDoesNotShortCircuit(t *testing.T) {
	d := NewDispatcher(false)
	ran := 0

	d.AddCallback(protocol.SubjectServerStarted, "1", 0, func(protocol.Command) bool {
		ran++
		return false
	})
	d.AddCallback(protocol.SubjectServerStarted, "2", 0, func(protocol.Command) bool {
		ran++
		return true
	})

	if d.Dispatch(protocol.ServerStarted{}) {
		t.Fatalf("aggregate result should be false")
	}
	if ran != 2 {
		t.Fatalf("ran = %d, want 2 (no short-circuit)", ran)
	}
}

func TestUnprocessedCommand(t *testing.T) {
	strict := NewDispatcher(true)
	if strict.Dispatch(protocol.ServerWarning{Text: "hm"}) {
		t.Fatalf("unprocessed command should fail when warnings are enabled")
	}

	lenient := NewDispatcher(false)
	if !lenient.Dispatch(protocol.ServerWarning{Text: "hm"}) {
		t.Fatalf("unprocessed command should pass when warnings are disabled")
	}

	// A wildcard subscriber counts as processing.
	strict.AddCallback(Wildcard, "1", 0, func(protocol.Command) bool { return true })
	if !strict.Dispatch(protocol.ServerWarning{Text: "hm"}) {
		t.Fatalf("wildcard subscriber should count as processed")
	}
}
