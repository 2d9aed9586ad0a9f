package events_test

import (
	"testing"

	"github.com/tolelom/delegatechain/events"
)

func TestEmitDeliversToSubscriber(t *testing.T) {
	e := events.NewEmitter()
	var got events.Event
	count := 0
	e.Subscribe(events.EventTxApplied, func(ev events.Event) {
		got = ev
		count++
	})

	e.Emit(events.Event{Type: events.EventTxApplied, TxID: "abc"})
	if count != 1 {
		t.Fatalf("expected 1 delivery, got %d", count)
	}
	if got.TxID != "abc" {
		t.Errorf("TxID: got %q want abc", got.TxID)
	}
}

func TestEmitIgnoresUnsubscribedTypes(t *testing.T) {
	e := events.NewEmitter()
	called := false
	e.Subscribe(events.EventTxApplied, func(ev events.Event) { called = true })

	e.Emit(events.Event{Type: events.EventBlockCommit})
	if called {
		t.Error("handler for a different event type should not be invoked")
	}
}

func TestEmitDeliversToMultipleSubscribers(t *testing.T) {
	e := events.NewEmitter()
	var calls []int
	e.Subscribe(events.EventOrderFilled, func(ev events.Event) { calls = append(calls, 1) })
	e.Subscribe(events.EventOrderFilled, func(ev events.Event) { calls = append(calls, 2) })

	e.Emit(events.Event{Type: events.EventOrderFilled})
	if len(calls) != 2 {
		t.Fatalf("expected both subscribers invoked, got %d calls", len(calls))
	}
}

func TestEmitRecoversFromPanickingHandler(t *testing.T) {
	e := events.NewEmitter()
	secondCalled := false
	e.Subscribe(events.EventMarginCall, func(ev events.Event) { panic("boom") })
	e.Subscribe(events.EventMarginCall, func(ev events.Event) { secondCalled = true })

	e.Emit(events.Event{Type: events.EventMarginCall})
	if !secondCalled {
		t.Error("a panicking handler must not prevent later subscribers from running")
	}
}
