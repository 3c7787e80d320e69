package prediction

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/charleschow/cricket-live/internal/adapters/outbound/matchapi"
	"github.com/charleschow/cricket-live/internal/core/scoring"
	"github.com/charleschow/cricket-live/internal/events"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

type State string

const (
	StateIdle       State = "idle"
	StateWindowOpen State = "window_open"
	StateSubmitted  State = "submitted"
	StateResolved   State = "resolved"
)

var (
	ErrWindowClosed      = errors.New("prediction: window closed")
	ErrNoSelection       = errors.New("prediction: no outcome selected")
	ErrAlreadySubmitted  = errors.New("prediction: already submitted for this ball")
	ErrNoBoostsRemaining = errors.New("prediction: no confidence boosts remaining")
	ErrNotSubscribed     = errors.New("prediction: no match in scope")
	ErrInvalidOutcome    = errors.New("prediction: unknown outcome")
)

// Outcomes a ball prediction may name.
var Outcomes = []string{"dot", "1", "2", "3", "4", "6", "wicket"}

func ValidOutcome(o string) bool {
	for _, v := range Outcomes {
		if v == o {
			return true
		}
	}
	return false
}

// Window identifies the ball a prediction window is open for.
type Window struct {
	MatchID  string
	BallKey  string
	Innings  int
	Over     int
	Ball     int
	Deadline time.Time
}

// Ticket records which window a submission was made against, so the
// result can be reconciled after the controller has moved on.
type Ticket struct {
	MatchID string
	BallKey string
	Innings int
	Over    int
	Ball    int
	Outcome string
	Boost   bool
}

type Result struct {
	PredictionID  string
	BallKey       string // empty when the prediction was not made in this session
	IsCorrect     bool
	Points        float64
	ActualOutcome string
	At            time.Time
}

// Summary mirrors the server's per-match tally.
type Summary struct {
	CurrentStreak   int
	TotalPoints     float64
	BoostsUsed      int
	BoostsRemaining int
}

// View is a copy of the controller state for display.
type View struct {
	State           State
	Window          *Window
	Selection       string
	Boost           bool
	Remaining       time.Duration
	Streak          int
	TotalPoints     float64
	BoostsUsed      int
	BoostsRemaining int
	LastResult      *Result
}

// Controller is the per-match prediction state machine:
//
//	idle -> window_open -> submitted -> resolved -> idle
//
// A server close always wins and returns the machine to idle, even with a
// submission in flight. Results are matched by prediction id against the
// window recorded at submit time, never against the current window.
type Controller struct {
	mu    sync.Mutex
	clock clockwork.Clock
	rules *scoring.Rules

	matchID   string
	state     State
	window    *Window
	selection string
	boost     bool

	submitted map[string]string // ball key -> prediction id, "" while in flight
	pending   map[string]string // prediction id -> ball key
	resolved  map[string]struct{}

	streak          int
	totalPoints     float64
	boostsUsed      int
	boostsRemaining int
	lastResult      *Result

	countdown *Countdown
}

func NewController(clock clockwork.Clock) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Controller{
		clock: clock,
		rules: scoring.Default(),
	}
	c.resetLocked("")
	return c
}

// AttachCountdown makes the controller restart cd whenever a window's
// deadline is set and stop it when the window closes.
func (c *Controller) AttachCountdown(cd *Countdown) {
	c.mu.Lock()
	c.countdown = cd
	c.mu.Unlock()
}

// Scope resets all per-match state and accepts events for matchID only.
func (c *Controller) Scope(matchID string) {
	c.mu.Lock()
	cd := c.countdown
	c.resetLocked(matchID)
	c.mu.Unlock()
	if cd != nil {
		cd.Stop()
	}
}

// Reset forgets the match entirely.
func (c *Controller) Reset() { c.Scope("") }

func (c *Controller) resetLocked(matchID string) {
	c.matchID = matchID
	c.state = StateIdle
	c.window = nil
	c.selection = ""
	c.boost = false
	c.submitted = make(map[string]string)
	c.pending = make(map[string]string)
	c.resolved = make(map[string]struct{})
	c.streak = 0
	c.totalPoints = 0
	c.boostsUsed = 0
	c.boostsRemaining = c.rules.BoostsPerMatch()
	c.lastResult = nil
}

func (c *Controller) MatchID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchID
}

// OnWindowEvent applies a prediction_window push. It reports whether the
// controller changed.
func (c *Controller) OnWindowEvent(p events.PredictionWindowPayload) bool {
	c.mu.Lock()
	if c.matchID == "" || p.MatchID != c.matchID {
		c.mu.Unlock()
		telemetry.Metrics.EventsDiscarded.Inc()
		return false
	}

	if !p.IsOpen {
		changed := c.state != StateIdle || c.window != nil
		c.state = StateIdle
		c.window = nil
		c.selection = ""
		c.boost = false
		cd := c.countdown
		c.mu.Unlock()
		if cd != nil {
			cd.Stop()
		}
		return changed
	}

	deadline, err := time.Parse(time.RFC3339Nano, p.ClosesAt)
	if err != nil {
		telemetry.Warnf("prediction[%s]: bad closes_at %q for %s: %v", p.MatchID, p.ClosesAt, p.BallKey, err)
		deadline = c.clock.Now()
	}

	same := c.window != nil && c.window.BallKey == p.BallKey
	switch {
	case same && (c.state == StateWindowOpen || c.state == StateSubmitted):
		// redelivery of the live window: only the deadline may move
		c.window.Deadline = deadline
	default:
		c.window = &Window{
			MatchID:  p.MatchID,
			BallKey:  p.BallKey,
			Innings:  p.Innings,
			Over:     p.Over,
			Ball:     p.Ball,
			Deadline: deadline,
		}
		c.selection = ""
		c.boost = false
		c.state = StateWindowOpen
		if _, done := c.submitted[p.BallKey]; done {
			c.state = StateSubmitted
		}
		telemetry.Debugf("prediction[%s]: window open for %s, closes in %s", p.MatchID, p.BallKey, c.remainingLocked())
	}
	cd := c.countdown
	c.mu.Unlock()

	if cd != nil {
		cd.Start(deadline)
	}
	return true
}

// RemainingUntil is max(0, deadline - now).
func RemainingUntil(now, deadline time.Time) time.Duration {
	if d := deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Remaining is the time left on the current window, 0 when none is open.
func (c *Controller) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remainingLocked()
}

func (c *Controller) remainingLocked() time.Duration {
	if c.window == nil {
		return 0
	}
	return RemainingUntil(c.clock.Now(), c.window.Deadline)
}

// acceptingLocked reports why input is not accepted, or nil.
func (c *Controller) acceptingLocked() error {
	switch {
	case c.matchID == "":
		return ErrNotSubscribed
	case c.state == StateSubmitted:
		return ErrAlreadySubmitted
	case c.state != StateWindowOpen || c.remainingLocked() == 0:
		return ErrWindowClosed
	}
	return nil
}

// Select records the outcome, replacing any earlier choice for this window.
func (c *Controller) Select(outcome string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.acceptingLocked(); err != nil {
		return err
	}
	if !ValidOutcome(outcome) {
		return ErrInvalidOutcome
	}
	c.selection = outcome
	return nil
}

// ToggleBoost flips the confidence boost for this window. Turning it on is
// refused when the server reports no boosts left.
func (c *Controller) ToggleBoost() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.acceptingLocked(); err != nil {
		return c.boost, err
	}
	if !c.boost && c.boostsRemaining <= 0 {
		return false, ErrNoBoostsRemaining
	}
	c.boost = !c.boost
	return c.boost, nil
}

// BeginSubmit checks the guards and moves to submitted. Nothing should be
// sent to the server when it returns an error.
func (c *Controller) BeginSubmit() (Ticket, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.acceptingLocked(); err != nil {
		return Ticket{}, err
	}
	if c.selection == "" {
		return Ticket{}, ErrNoSelection
	}
	if _, done := c.submitted[c.window.BallKey]; done {
		return Ticket{}, ErrAlreadySubmitted
	}

	w := c.window
	c.submitted[w.BallKey] = ""
	c.state = StateSubmitted
	return Ticket{
		MatchID: w.MatchID,
		BallKey: w.BallKey,
		Innings: w.Innings,
		Over:    w.Over,
		Ball:    w.Ball,
		Outcome: c.selection,
		Boost:   c.boost,
	}, nil
}

// CompleteSubmit reconciles the server's answer to a submission.
//   - success: the prediction id is remembered for result matching
//   - "already exists": the window is locked as submitted
//   - anything else: the window reopens if it is still the live one
func (c *Controller) CompleteSubmit(t Ticket, predictionID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.MatchID != c.matchID {
		return
	}
	current := c.window != nil && c.window.BallKey == t.BallKey

	switch {
	case err == nil:
		c.submitted[t.BallKey] = predictionID
		if predictionID != "" {
			c.pending[predictionID] = t.BallKey
		}
		if t.Boost {
			c.boostsUsed++
			if c.boostsRemaining > 0 {
				c.boostsRemaining--
			}
		}
		telemetry.Infof("prediction[%s]: %s submitted for %s (boost=%v) id=%s", t.MatchID, t.Outcome, t.BallKey, t.Boost, predictionID)

	case matchapi.IsAlreadyExists(err):
		if current && c.state != StateIdle {
			c.state = StateSubmitted
		}
		telemetry.Warnf("prediction[%s]: server already has a prediction for %s, locking", t.MatchID, t.BallKey)

	default:
		delete(c.submitted, t.BallKey)
		if current && c.state == StateSubmitted && c.remainingLocked() > 0 {
			c.state = StateWindowOpen
		}
		telemetry.Warnf("prediction[%s]: submit for %s rejected: %v", t.MatchID, t.BallKey, err)
	}
}

// Track records a non-ball prediction made in matchID so its result can be
// attributed even when the notification omits the match id.
func (c *Controller) Track(matchID, predictionID string) {
	if predictionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if matchID != c.matchID {
		return
	}
	c.pending[predictionID] = ""
}

// Resolve applies a prediction_result notification once per prediction id.
// A result naming another match is dropped. A result naming no match is
// applied only when the prediction was submitted in the current scope.
func (c *Controller) Resolve(n events.NotificationPayload) bool {
	if n.Type != events.NotifyPredictionResult || n.Data.PredictionID == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	id := n.Data.PredictionID
	_, ours := c.pending[id]
	switch {
	case c.matchID == "":
		telemetry.Metrics.EventsDiscarded.Inc()
		return false
	case n.Data.MatchID != "" && n.Data.MatchID != c.matchID:
		telemetry.Metrics.EventsDiscarded.Inc()
		return false
	case n.Data.MatchID == "" && !ours:
		// Without a match id only predictions made in this scope can be attributed.
		telemetry.Metrics.EventsDiscarded.Inc()
		telemetry.Debugf("prediction[%s]: dropping result %s with no match id", c.matchID, id)
		return false
	}
	if _, dup := c.resolved[id]; dup {
		telemetry.Debugf("prediction[%s]: result %s already applied", c.matchID, id)
		return false
	}
	c.resolved[id] = struct{}{}

	r := &Result{
		PredictionID:  id,
		BallKey:       c.pending[id],
		ActualOutcome: n.Data.ActualOutcome,
		At:            c.clock.Now(),
	}
	if n.Data.IsCorrect != nil {
		r.IsCorrect = *n.Data.IsCorrect
	}
	if n.Data.Points != nil {
		r.Points = *n.Data.Points
	}
	delete(c.pending, id)

	if r.IsCorrect {
		c.streak++
	} else {
		c.streak = 0
	}
	c.totalPoints += r.Points
	c.lastResult = r

	if r.BallKey != "" && c.state == StateSubmitted && c.window != nil && c.window.BallKey == r.BallKey {
		c.state = StateResolved
	}
	telemetry.Metrics.ResolutionsApplied.Inc()
	telemetry.Infof("prediction[%s]: result %s correct=%v points=%.0f streak=%d", c.matchID, id, r.IsCorrect, r.Points, c.streak)
	return true
}

// SyncSummary overwrites the local tally with the server's.
func (c *Controller) SyncSummary(s Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streak = s.CurrentStreak
	c.totalPoints = s.TotalPoints
	c.boostsUsed = s.BoostsUsed
	c.boostsRemaining = s.BoostsRemaining
	if c.boostsRemaining <= 0 && c.boost && c.state == StateWindowOpen {
		c.boost = false
	}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:           c.state,
		Selection:       c.selection,
		Boost:           c.boost,
		Remaining:       c.remainingLocked(),
		Streak:          c.streak,
		TotalPoints:     c.totalPoints,
		BoostsUsed:      c.boostsUsed,
		BoostsRemaining: c.boostsRemaining,
	}
	if c.window != nil {
		w := *c.window
		v.Window = &w
	}
	if c.lastResult != nil {
		r := *c.lastResult
		v.LastResult = &r
	}
	return v
}
