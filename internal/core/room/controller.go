package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/charleschow/cricket-live/internal/core/prediction"
	"github.com/charleschow/cricket-live/internal/core/state/match"
	"github.com/charleschow/cricket-live/internal/events"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

const defaultResyncTimeout = 10 * time.Second

// Transport is the command side of the live connection.
type Transport interface {
	Send(cmd events.Command) error
}

// MatchFetcher pulls the authoritative match record.
type MatchFetcher interface {
	GetMatch(ctx context.Context, matchID string) (*events.RawMatch, error)
}

// Observer is told after an event has been applied for the subscribed match.
type Observer interface {
	OnMatchEvent(matchID string, t events.EventType)
}

// SummarySyncer refreshes the prediction tally for the scoped match.
type SummarySyncer interface {
	SyncSummary(ctx context.Context) error
}

type Deps struct {
	Transport Transport
	Bus       *events.Bus
	Fetcher   MatchFetcher
	Store     *match.Store
	Window    *prediction.Controller
	Inbox     *prediction.Inbox
	Summary   SummarySyncer // optional
	Observers []Observer

	ResyncTimeout time.Duration
}

// Controller scopes the event stream to one match at a time. It joins the
// match room, routes pushes into the store and the prediction window, and
// after every reconnect re-joins and replaces local state with a fresh
// fetch, since pushes sent while offline are gone.
type Controller struct {
	transport Transport
	bus       *events.Bus
	fetcher   MatchFetcher
	store     *match.Store
	window    *prediction.Controller
	inbox     *prediction.Inbox
	summary   SummarySyncer
	observers []Observer
	timeout   time.Duration

	mu          sync.Mutex
	matchID     string
	gen         uint64
	pendingJoin bool
	unsubs      []func()
	epoch       uint64 // bumped on every disconnect and reconnect

	resyncGroup singleflight.Group
}

func New(d Deps) *Controller {
	if d.ResyncTimeout <= 0 {
		d.ResyncTimeout = defaultResyncTimeout
	}
	return &Controller{
		transport: d.Transport,
		bus:       d.Bus,
		fetcher:   d.Fetcher,
		store:     d.Store,
		window:    d.Window,
		inbox:     d.Inbox,
		summary:   d.Summary,
		observers: d.Observers,
		timeout:   d.ResyncTimeout,
	}
}

// MatchID is the subscribed match, empty when none.
func (c *Controller) MatchID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchID
}

// Subscribe joins matchID, replacing any current subscription, and loads
// its state. The returned func leaves the match; it is a no-op once the
// subscription has been replaced.
func (c *Controller) Subscribe(ctx context.Context, matchID string) (func(), error) {
	if matchID == "" {
		return nil, errors.New("room: empty match id")
	}

	c.mu.Lock()
	if c.matchID == matchID {
		gen := c.gen
		c.mu.Unlock()
		return c.handle(gen), nil
	}
	if c.matchID != "" {
		c.leaveLocked()
	}

	c.gen++
	gen := c.gen
	c.matchID = matchID
	c.store.Scope(matchID)
	c.window.Scope(matchID)
	c.registerLocked()

	if err := c.transport.Send(events.JoinMatch(matchID)); err != nil {
		c.pendingJoin = true
		telemetry.Warnf("room[%s]: join deferred until connected: %v", matchID, err)
	} else {
		c.pendingJoin = false
	}
	c.mu.Unlock()

	telemetry.Infof("room[%s]: subscribed", matchID)

	if err := c.resync(ctx, matchID, gen); err != nil {
		telemetry.Warnf("room[%s]: initial fetch failed, waiting for match_state: %v", matchID, err)
	}
	if c.summary != nil {
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			defer cancel()
			if err := c.summary.SyncSummary(sctx); err != nil {
				telemetry.Warnf("room[%s]: summary sync failed: %v", matchID, err)
			}
		}()
	}
	return c.handle(gen), nil
}

func (c *Controller) handle(gen uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.gen == gen && c.matchID != "" {
				c.leaveLocked()
			}
		})
	}
}

// Unsubscribe leaves the current match, if any.
func (c *Controller) Unsubscribe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.matchID != "" {
		c.leaveLocked()
	}
}

func (c *Controller) leaveLocked() {
	id := c.matchID
	if err := c.transport.Send(events.LeaveMatch(id)); err != nil {
		telemetry.Debugf("room[%s]: leave not sent: %v", id, err)
	}
	for _, u := range c.unsubs {
		u()
	}
	c.unsubs = nil
	c.store.Clear()
	c.window.Reset()
	c.matchID = ""
	c.pendingJoin = false
	c.gen++
	telemetry.Infof("room[%s]: left", id)
}

func (c *Controller) registerLocked() {
	apply := func(e events.Event) error {
		if c.store.Apply(e) {
			c.notify(e.Type)
		}
		return nil
	}
	for _, t := range []events.EventType{
		events.EventMatchState,
		events.EventBallUpdate,
		events.EventScoreUpdate,
		events.EventMatchStatus,
		events.EventAICommentary,
		events.EventOverSummary,
		events.EventLeaderboardUpdate,
	} {
		c.unsubs = append(c.unsubs, c.bus.Subscribe(t, apply))
	}

	c.unsubs = append(c.unsubs,
		c.bus.Subscribe(events.EventPredictionWindow, c.onWindow),
		c.bus.Subscribe(events.EventNotification, c.onNotification),
		c.bus.Subscribe(events.EventConnectionStatus, c.onConnectionStatus),
		c.bus.Subscribe(events.EventReconnected, c.onReconnected),
	)
}

func (c *Controller) onWindow(e events.Event) error {
	p, ok := e.Payload.(events.PredictionWindowPayload)
	if !ok {
		return fmt.Errorf("room: unexpected payload %T", e.Payload)
	}
	changed := c.store.Apply(e)
	if c.window.OnWindowEvent(p) || changed {
		c.notify(e.Type)
	}
	return nil
}

func (c *Controller) onNotification(e events.Event) error {
	p, ok := e.Payload.(events.NotificationPayload)
	if !ok {
		return fmt.Errorf("room: unexpected payload %T", e.Payload)
	}
	if c.inbox != nil {
		c.inbox.Deliver(p)
	} else {
		c.window.Resolve(p)
	}
	c.notify(e.Type)
	return nil
}

func (c *Controller) onConnectionStatus(e events.Event) error {
	p, ok := e.Payload.(events.ConnectionStatusPayload)
	if !ok {
		return fmt.Errorf("room: unexpected payload %T", e.Payload)
	}
	if !p.Connected {
		c.mu.Lock()
		c.epoch++
		c.mu.Unlock()
		c.store.MarkStale()
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.matchID == "" || !c.pendingJoin {
		return nil
	}
	if err := c.transport.Send(events.JoinMatch(c.matchID)); err != nil {
		return fmt.Errorf("room[%s]: deferred join: %w", c.matchID, err)
	}
	c.pendingJoin = false
	telemetry.Infof("room[%s]: deferred join sent", c.matchID)
	return nil
}

// onReconnected re-joins the subscribed match and replaces local state with
// one authoritative fetch. It runs on the delivery goroutine, so pushes that
// follow the reconnect are applied after the replacement.
func (c *Controller) onReconnected(e events.Event) error {
	c.mu.Lock()
	c.epoch++
	id, gen := c.matchID, c.gen
	if id == "" {
		c.mu.Unlock()
		return nil
	}
	c.store.MarkStale()
	if err := c.transport.Send(events.JoinMatch(id)); err != nil {
		c.pendingJoin = true
		telemetry.Warnf("room[%s]: re-join failed: %v", id, err)
	} else {
		c.pendingJoin = false
	}
	c.mu.Unlock()

	telemetry.Infof("room[%s]: reconnected, resyncing", id)
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.resync(ctx, id, gen); err != nil {
		telemetry.Warnf("room[%s]: resync failed, keeping last state: %v", id, err)
	}
	return nil
}

// Resync fetches and applies the full match state for the current
// subscription.
func (c *Controller) Resync(ctx context.Context) error {
	c.mu.Lock()
	id, gen := c.matchID, c.gen
	c.mu.Unlock()
	if id == "" {
		return prediction.ErrNotSubscribed
	}
	return c.resync(ctx, id, gen)
}

// resync deduplicates concurrent fetches for the same match within one
// connection epoch. A fetch that started before a disconnect never joins or
// overwrites the one issued after the reconnect, and a result is dropped if
// the subscription changed while it was in flight.
func (c *Controller) resync(ctx context.Context, id string, gen uint64) error {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	telemetry.Metrics.Resyncs.Inc()
	key := fmt.Sprintf("%s#%d", id, epoch)
	v, err, _ := c.resyncGroup.Do(key, func() (any, error) {
		return c.fetcher.GetMatch(ctx, id)
	})

	c.mu.Lock()
	current := c.gen == gen && c.matchID == id
	sameEpoch := c.epoch == epoch
	c.mu.Unlock()
	switch {
	case !current:
		telemetry.Debugf("room[%s]: dropping fetch for a replaced subscription", id)
		return nil
	case !sameEpoch:
		telemetry.Debugf("room[%s]: dropping fetch issued before the connection dropped", id)
		return nil
	}

	if err != nil {
		telemetry.Metrics.ResyncFailures.Inc()
		c.store.MarkStale()
		return err
	}
	raw := v.(*events.RawMatch)

	if !c.store.ApplyFullState(*raw) {
		return fmt.Errorf("room[%s]: fetched state for %q rejected", id, raw.ID)
	}
	if !raw.PredictionWindowOpen && c.window.View().Window != nil {
		c.window.OnWindowEvent(events.PredictionWindowPayload{MatchID: id, IsOpen: false})
	}
	c.notify(events.EventMatchState)
	return nil
}

func (c *Controller) notify(t events.EventType) {
	id := c.store.MatchID()
	if id == "" {
		return
	}
	for _, o := range c.observers {
		o.OnMatchEvent(id, t)
	}
}
