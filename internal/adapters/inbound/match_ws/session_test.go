package match_ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charleschow/cricket-live/internal/events"
)

func newTestServer(handler func(n int, r *http.Request, conn *websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	var conns atomic.Int32

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(int(conns.Add(1)), r, conn)
	}))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func testConfig(url string) Config {
	return Config{URL: url, MinBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}
}

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("Timeout waiting for %s", what)
	}
	var zero T
	return zero
}

func TestSessionConnectSendReceive(t *testing.T) {
	auth := make(chan string, 1)
	commands := make(chan events.Command, 4)

	server := newTestServer(func(_ int, r *http.Request, conn *websocket.Conn) {
		auth <- r.Header.Get("Authorization")
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := DecodeCommand(raw)
		if err != nil {
			return
		}
		commands <- cmd
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"score_update","data":{"match_id":"m1","innings":1,"score":88,"wickets":2,"overs":10.0}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	bus := events.NewBus()
	connected := make(chan bool, 4)
	scores := make(chan events.ScoreUpdatePayload, 4)
	bus.Subscribe(events.EventConnectionStatus, func(e events.Event) error {
		connected <- e.Payload.(events.ConnectionStatusPayload).Connected
		return nil
	})
	bus.Subscribe(events.EventScoreUpdate, func(e events.Event) error {
		scores <- e.Payload.(events.ScoreUpdatePayload)
		return nil
	})

	s := NewSession(testConfig(wsURL(server)), bus, nil)
	s.Connect(context.Background(), "tok-1")
	defer s.Disconnect()

	if !waitFor(t, connected, "connect") {
		t.Fatal("First status should be connected")
	}
	if got := waitFor(t, auth, "auth header"); got != "Bearer tok-1" {
		t.Errorf("Wrong auth header: %q", got)
	}

	if err := s.Send(events.JoinMatch("m1")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if cmd := waitFor(t, commands, "join"); cmd != events.JoinMatch("m1") {
		t.Errorf("Wrong command: %+v", cmd)
	}

	score := waitFor(t, scores, "score update")
	if score.Score != 88 || score.Wickets != 2 {
		t.Errorf("Unexpected score: %+v", score)
	}
}

func TestSessionReconnectSignal(t *testing.T) {
	server := newTestServer(func(n int, _ *http.Request, conn *websocket.Conn) {
		if n == 1 {
			// drop the first connection straight away
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	bus := events.NewBus()
	order := make(chan string, 16)
	bus.Subscribe(events.EventConnectionStatus, func(e events.Event) error {
		if e.Payload.(events.ConnectionStatusPayload).Connected {
			order <- "up"
		} else {
			order <- "down"
		}
		return nil
	})
	bus.Subscribe(events.EventReconnected, func(e events.Event) error {
		if gen := e.Payload.(events.ReconnectedPayload).Generation; gen != 1 {
			t.Errorf("Wrong generation: %d", gen)
		}
		order <- "reconnected"
		return nil
	})

	s := NewSession(testConfig(wsURL(server)), bus, nil)
	s.Connect(context.Background(), "")
	defer s.Disconnect()

	want := []string{"up", "down", "reconnected", "up"}
	for i, w := range want {
		if got := waitFor(t, order, w); got != w {
			t.Fatalf("Step %d: got %s, want %s", i, got, w)
		}
	}
	if s.Generation() != 1 {
		t.Errorf("Generation: got %d, want 1", s.Generation())
	}
}

func TestSessionSendAfterDisconnect(t *testing.T) {
	server := newTestServer(func(_ int, _ *http.Request, conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	bus := events.NewBus()
	up := make(chan struct{}, 1)
	bus.Subscribe(events.EventConnectionStatus, func(e events.Event) error {
		if e.Payload.(events.ConnectionStatusPayload).Connected {
			select {
			case up <- struct{}{}:
			default:
			}
		}
		return nil
	})

	s := NewSession(testConfig(wsURL(server)), bus, nil)
	if err := s.Send(events.JoinMatch("m1")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send before connect: got %v, want ErrNotConnected", err)
	}

	s.Connect(context.Background(), "")
	waitFor(t, up, "connect")
	s.Disconnect()

	if s.Connected() {
		t.Error("Session should not be connected after Disconnect")
	}
	if err := s.Send(events.LeaveMatch("m1")); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send after disconnect: got %v, want ErrNotConnected", err)
	}

	// a second Disconnect is harmless
	s.Disconnect()
}

func TestSessionRefreshAuthUsedOnRedial(t *testing.T) {
	headers := make(chan string, 4)
	server := newTestServer(func(n int, r *http.Request, conn *websocket.Conn) {
		headers <- r.Header.Get("Authorization")
		if n == 1 {
			// hold until the test swaps the token, then drop
			time.Sleep(50 * time.Millisecond)
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	s := NewSession(testConfig(wsURL(server)), events.NewBus(), nil)
	s.Connect(context.Background(), "old")
	defer s.Disconnect()

	if got := waitFor(t, headers, "first dial"); got != "Bearer old" {
		t.Fatalf("First dial: %q", got)
	}
	s.RefreshAuth("new")
	if got := waitFor(t, headers, "redial"); got != "Bearer new" {
		t.Errorf("Redial should use refreshed token, got %q", got)
	}
}

func TestBackoff(t *testing.T) {
	lo, hi := time.Second, 10*time.Second
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt, lo, hi); got != tt.want {
			t.Errorf("Backoff(%d): got %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestSessionConnectAfterContextCancelled(t *testing.T) {
	server := newTestServer(func(_ int, _ *http.Request, conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	bus := events.NewBus()
	up := make(chan struct{}, 4)
	bus.Subscribe(events.EventConnectionStatus, func(e events.Event) error {
		if e.Payload.(events.ConnectionStatusPayload).Connected {
			up <- struct{}{}
		}
		return nil
	})

	s := NewSession(testConfig(wsURL(server)), bus, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Connect(ctx, "")
	waitFor(t, up, "first connect")

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Loop did not exit after context cancel")
	}
	if s.Connected() {
		t.Error("Session still connected after its context was cancelled")
	}

	s.Connect(context.Background(), "")
	defer s.Disconnect()
	waitFor(t, up, "connect after cancel")
}
