package match_ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/charleschow/cricket-live/internal/events"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

const (
	defaultMinBackoff   = 1 * time.Second
	defaultMaxBackoff   = 10 * time.Second
	defaultReadTimeout  = 60 * time.Second
	defaultPingInterval = 25 * time.Second
	writeTimeout        = 5 * time.Second
)

// ErrNotConnected is returned by Send while no live connection exists,
// including after Disconnect.
var ErrNotConnected = errors.New("match_ws: not connected")

type Config struct {
	URL          string
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinBackoff <= 0 {
		c.MinBackoff = defaultMinBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	return c
}

// Session owns the one authenticated websocket to the match server.
// Decoded pushes are published onto the bus in receipt order from a single
// goroutine, so bus handlers never run concurrently with each other.
//
// Gorilla/websocket supports one concurrent reader and one concurrent
// writer, so all writes are serialized through writeMu.
type Session struct {
	id      string
	cfg     Config
	bus     *events.Bus
	journal *Journal

	mu         sync.Mutex
	token      string
	conn       *websocket.Conn
	generation int64
	cancel     context.CancelFunc
	done       chan struct{}

	writeMu sync.Mutex
}

func NewSession(cfg Config, bus *events.Bus, journal *Journal) *Session {
	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg.withDefaults(),
		bus:     bus,
		journal: journal,
	}
}

// ID identifies this session in logs and in the frame journal.
func (s *Session) ID() string { return s.id }

// Connect starts the connection loop with the given token. It returns
// immediately; dial failures are logged and retried forever with capped
// exponential backoff. Calling Connect while a loop is running is a no-op.
func (s *Session) Connect(ctx context.Context, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	s.token = token
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.runLoop(loopCtx, s.done)
}

// Disconnect tears down the connection and stops reconnecting. Send fails
// with ErrNotConnected until the next Connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	cancel, done, conn := s.cancel, s.done, s.conn
	s.cancel, s.done, s.conn = nil, nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if conn != nil {
		conn.Close()
	}
	<-done
	telemetry.Infof("match_ws[%s]: disconnected", s.short())
}

// RefreshAuth swaps the credential used by future dials. The live
// connection is left alone.
func (s *Session) RefreshAuth(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
	telemetry.Debugf("match_ws[%s]: auth token refreshed", s.short())
}

// Connected reports whether a live connection currently exists.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Generation counts successful reconnects since the session was created.
func (s *Session) Generation() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Send writes a join/leave command on the live connection.
func (s *Session) Send(cmd events.Command) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", cmd.Name, err)
	}
	telemetry.Debugf("match_ws[%s]: sent %s match=%s", s.short(), cmd.Name, cmd.MatchID)
	return nil
}

// runLoop dials, reads until the connection drops, then backs off and
// redials. Every successful dial after the first publishes a reconnect
// signal before the connected status.
func (s *Session) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.loopExited(done)

	everConnected := false
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			backoff := Backoff(attempt, s.cfg.MinBackoff, s.cfg.MaxBackoff)
			telemetry.Warnf("match_ws[%s]: dial failed (attempt %d): %v, retrying in %s", s.short(), attempt, err, backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			continue
		}

		attempt = 0
		if !s.setConn(ctx, conn) {
			conn.Close()
			return
		}
		telemetry.Metrics.WSConnected.Set(1)

		if everConnected {
			gen := s.bumpGeneration()
			telemetry.Metrics.WSReconnects.Inc()
			telemetry.Infof("match_ws[%s]: reconnected (generation %d)", s.short(), gen)
			s.bus.Publish(events.New("", events.ReconnectedPayload{Generation: gen}))
		} else {
			telemetry.Infof("match_ws[%s]: connected to %s", s.short(), s.cfg.URL)
		}
		everConnected = true
		s.bus.Publish(events.New("", events.ConnectionStatusPayload{Connected: true}))

		err = s.readLoop(ctx, conn)

		s.clearConn(conn)
		telemetry.Metrics.WSConnected.Set(0)
		s.bus.Publish(events.New("", events.ConnectionStatusPayload{Connected: false}))

		if ctx.Err() != nil {
			return
		}

		attempt++
		backoff := Backoff(attempt, s.cfg.MinBackoff, s.cfg.MaxBackoff)
		telemetry.Warnf("match_ws[%s]: connection lost: %v, retrying in %s", s.short(), err, backoff)
		if !sleepCtx(ctx, backoff) {
			return
		}
	}
}

// loopExited forgets a loop that stopped on its own, e.g. because the
// caller's context was cancelled, so a later Connect starts a new one.
func (s *Session) loopExited(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done, s.conn = nil, nil, nil
}

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, header)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("auth rejected (%d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// setConn publishes the live connection unless Disconnect already ran.
func (s *Session) setConn(ctx context.Context, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	s.conn = conn
	return true
}

func (s *Session) clearConn(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

func (s *Session) bumpGeneration() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	readTimeout := s.cfg.ReadTimeout

	// Reset deadline on any control traffic so quiet periods don't trigger a timeout.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go s.pingLoop(conn, pingDone)

	// unblock ReadMessage when the loop is cancelled
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-pingDone:
		}
	}()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		telemetry.Metrics.WSFramesReceived.Inc()

		evt, err := DecodeFrame(raw)
		if err != nil {
			telemetry.Metrics.WSParseErrors.Inc()
			telemetry.Warnf("match_ws[%s]: %v", s.short(), err)
			s.journal.Insert(s.id, "", "", raw)
			continue
		}

		// Capture every raw frame before it is applied.
		s.journal.Insert(s.id, string(evt.Type), evt.MatchID, raw)
		s.bus.Publish(evt)
	}
}

func (s *Session) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				telemetry.Debugf("match_ws[%s]: ping failed: %v", s.short(), err)
				return
			}
		}
	}
}

func (s *Session) short() string {
	return s.id[:8]
}

// Backoff returns the capped exponential delay for a 1-based attempt.
func Backoff(attempt int, minDelay, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := minDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
