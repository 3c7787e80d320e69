package events

import (
	"errors"
	"testing"
)

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var got []string
	bus.Subscribe(EventScoreUpdate, func(Event) error { got = append(got, "a"); return nil })
	bus.Subscribe(EventScoreUpdate, func(Event) error { got = append(got, "b"); return errors.New("boom") })
	bus.Subscribe(EventScoreUpdate, func(Event) error { got = append(got, "c"); return nil })
	bus.Subscribe(EventBallUpdate, func(Event) error { got = append(got, "ball"); return nil })

	bus.Publish(New("m1", ScoreUpdatePayload{MatchID: "m1", Score: 10}))

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Wrong handler %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsub := bus.Subscribe(EventReconnected, func(Event) error { calls++; return nil })
	other := bus.Subscribe(EventReconnected, func(Event) error { return nil })

	bus.Publish(New("", ReconnectedPayload{Generation: 1}))
	unsub()
	unsub()
	bus.Publish(New("", ReconnectedPayload{Generation: 2}))

	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
	if n := bus.Count(EventReconnected); n != 1 {
		t.Errorf("Expected 1 handler left, got %d", n)
	}
	other()
	if n := bus.Count(EventReconnected); n != 0 {
		t.Errorf("Expected no handlers, got %d", n)
	}
}

func TestBusUnsubscribeDuringPublish(t *testing.T) {
	bus := NewBus()
	var second int
	var unsubSecond func()
	bus.Subscribe(EventMatchStatus, func(Event) error { unsubSecond(); return nil })
	unsubSecond = bus.Subscribe(EventMatchStatus, func(Event) error { second++; return nil })

	// the in-flight publish still sees the handler list it started with
	bus.Publish(New("m1", MatchStatusPayload{MatchID: "m1", Status: StatusLive1st}))
	bus.Publish(New("m1", MatchStatusPayload{MatchID: "m1", Status: StatusInningsBreak}))

	if second != 1 {
		t.Errorf("Expected second handler to run once, got %d", second)
	}
}

func TestNewStampsType(t *testing.T) {
	e := New("m1", PredictionWindowPayload{MatchID: "m1", IsOpen: true})
	if e.Type != EventPredictionWindow {
		t.Errorf("Wrong type: got %s", e.Type)
	}
	if e.MatchID != "m1" || e.Timestamp.IsZero() {
		t.Errorf("Wrong envelope: %+v", e)
	}
}
