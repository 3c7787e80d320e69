package prediction

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/charleschow/cricket-live/internal/adapters/outbound/matchapi"
	"github.com/charleschow/cricket-live/internal/events"
)

var t0 = time.Date(2026, 4, 1, 14, 0, 0, 0, time.UTC)

func openWindow(matchID, key string, over, ball int, closes time.Time) events.PredictionWindowPayload {
	return events.PredictionWindowPayload{
		MatchID: matchID, IsOpen: true, BallKey: key,
		Innings: 1, Over: over, Ball: ball,
		ClosesAt: closes.Format(time.RFC3339Nano),
	}
}

func closeWindow(matchID, key string) events.PredictionWindowPayload {
	return events.PredictionWindowPayload{MatchID: matchID, IsOpen: false, BallKey: key}
}

func result(matchID, id string, correct bool, points float64) events.NotificationPayload {
	return events.NotificationPayload{
		Type:  events.NotifyPredictionResult,
		Title: "Result",
		Data:  events.NotificationData{PredictionID: id, MatchID: matchID, IsCorrect: &correct, Points: &points},
	}
}

type fakeAPI struct {
	mu          sync.Mutex
	ballCalls   int
	lastBall    matchapi.BallPredictionRequest
	ballErr     error
	nextID      string
	summary     matchapi.Summary
	summaryHits int
}

func (f *fakeAPI) CreateBallPrediction(_ context.Context, req matchapi.BallPredictionRequest) (*matchapi.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ballCalls++
	f.lastBall = req
	if f.ballErr != nil {
		return nil, f.ballErr
	}
	return &matchapi.Prediction{ID: f.nextID, MatchID: req.MatchID, Type: matchapi.TypeBall, Prediction: req.Prediction}, nil
}

func (f *fakeAPI) CreateOverPrediction(_ context.Context, req matchapi.OverPredictionRequest) (*matchapi.Prediction, error) {
	return &matchapi.Prediction{ID: "over-1", MatchID: req.MatchID, Type: matchapi.TypeOver}, nil
}

func (f *fakeAPI) CreateMilestonePrediction(_ context.Context, req matchapi.MilestonePredictionRequest) (*matchapi.Prediction, error) {
	return &matchapi.Prediction{ID: "ms-1", MatchID: req.MatchID, Type: matchapi.TypeMilestone}, nil
}

func (f *fakeAPI) CreateMatchWinnerPrediction(_ context.Context, req matchapi.MatchWinnerRequest) (*matchapi.Prediction, error) {
	return &matchapi.Prediction{ID: "mw-1", MatchID: req.MatchID, Type: matchapi.TypeMatchWinner}, nil
}

func (f *fakeAPI) GetSummary(_ context.Context, matchID string) (*matchapi.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaryHits++
	s := f.summary
	s.MatchID = matchID
	return &s, nil
}

func newTestController() (*Controller, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(t0)
	c := NewController(clock)
	c.Scope("m1")
	return c, clock
}

// Ball 16.3: open with 15s, select at +3s, submit at +4s, server closes at
// +15s, result arrives at +20s and is then redelivered.
func TestBallScenario(t *testing.T) {
	c, clock := newTestController()
	api := &fakeAPI{nextID: "p1"}
	sub := NewSubmitter(api, c)
	inbox := NewInbox(clock, c)

	c.OnWindowEvent(openWindow("m1", "1.16.3", 16, 3, t0.Add(15*time.Second)))
	if v := c.View(); v.State != StateWindowOpen || v.Remaining != 15*time.Second {
		t.Fatalf("After open: state=%s remaining=%s", v.State, v.Remaining)
	}

	clock.Advance(3 * time.Second)
	if err := c.Select("4"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := sub.SubmitBall(context.Background()); err != nil {
		t.Fatalf("SubmitBall failed: %v", err)
	}
	if api.lastBall.Over != 16 || api.lastBall.Ball != 3 || api.lastBall.Prediction != "4" {
		t.Errorf("Unexpected request: %+v", api.lastBall)
	}
	if v := c.View(); v.State != StateSubmitted {
		t.Fatalf("After submit: state=%s", v.State)
	}

	clock.Advance(11 * time.Second)
	c.OnWindowEvent(closeWindow("m1", "1.16.3"))
	if v := c.View(); v.State != StateIdle || v.Remaining != 0 {
		t.Fatalf("After close: state=%s remaining=%s", v.State, v.Remaining)
	}

	clock.Advance(5 * time.Second)
	inbox.Deliver(result("m1", "p1", true, 20))
	inbox.Deliver(result("m1", "p1", true, 20))

	v := c.View()
	if v.Streak != 1 {
		t.Errorf("Streak: got %d, want 1", v.Streak)
	}
	if v.TotalPoints != 20 {
		t.Errorf("Points: got %.0f, want 20", v.TotalPoints)
	}
	if v.LastResult == nil || v.LastResult.BallKey != "1.16.3" || !v.LastResult.At.Equal(t0.Add(20*time.Second)) {
		t.Errorf("Result not matched to its window: %+v", v.LastResult)
	}
	if len(inbox.Recent()) != 2 {
		t.Errorf("Inbox should keep both deliveries, got %d", len(inbox.Recent()))
	}
}

func TestSubmitWithoutSelectionMakesNoCall(t *testing.T) {
	c, _ := newTestController()
	api := &fakeAPI{nextID: "p1"}
	sub := NewSubmitter(api, c)

	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))
	if _, err := sub.SubmitBall(context.Background()); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Expected ErrNoSelection, got %v", err)
	}
	if api.ballCalls != 0 {
		t.Errorf("Network call made: %d", api.ballCalls)
	}
}

func TestSubmitTwiceRejected(t *testing.T) {
	c, _ := newTestController()
	api := &fakeAPI{nextID: "p1"}
	sub := NewSubmitter(api, c)

	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))
	c.Select("dot")
	if _, err := sub.SubmitBall(context.Background()); err != nil {
		t.Fatalf("First submit failed: %v", err)
	}
	if _, err := sub.SubmitBall(context.Background()); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("Expected ErrAlreadySubmitted, got %v", err)
	}
	if err := c.Select("6"); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("Select after submit: got %v", err)
	}

	// redelivered open for the same ball keeps the submission locked
	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(12*time.Second)))
	if v := c.View(); v.State != StateSubmitted || v.Remaining != 12*time.Second {
		t.Errorf("Redelivered open: state=%s remaining=%s", v.State, v.Remaining)
	}
	if api.ballCalls != 1 {
		t.Errorf("Expected one network call, got %d", api.ballCalls)
	}
}

func TestExpiredWindowRejectsInput(t *testing.T) {
	c, clock := newTestController()

	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(5*time.Second)))
	c.Select("1")
	clock.Advance(5 * time.Second)

	if err := c.Select("2"); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("Select after deadline: got %v", err)
	}
	if _, err := c.BeginSubmit(); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("Submit after deadline: got %v", err)
	}
}

func TestSelectOverwritesAndValidates(t *testing.T) {
	c, _ := newTestController()
	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))

	c.Select("1")
	c.Select("wicket")
	if v := c.View(); v.Selection != "wicket" {
		t.Errorf("Selection: got %q", v.Selection)
	}
	if err := c.Select("5"); !errors.Is(err, ErrInvalidOutcome) {
		t.Errorf("Expected ErrInvalidOutcome, got %v", err)
	}
}

func TestNewWindowReplacesOld(t *testing.T) {
	c, _ := newTestController()
	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))
	c.Select("4")
	c.ToggleBoost()

	c.OnWindowEvent(openWindow("m1", "1.3.2", 3, 2, t0.Add(20*time.Second)))
	v := c.View()
	if v.Window.BallKey != "1.3.2" || v.Selection != "" || v.Boost || v.State != StateWindowOpen {
		t.Errorf("New window did not reset: %+v", v)
	}
}

func TestBoostBoundedByServerCount(t *testing.T) {
	c, _ := newTestController()
	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))

	if v := c.View(); v.BoostsRemaining != 3 {
		t.Fatalf("Default boosts: got %d", v.BoostsRemaining)
	}
	c.SyncSummary(Summary{BoostsUsed: 3, BoostsRemaining: 0})
	if _, err := c.ToggleBoost(); !errors.Is(err, ErrNoBoostsRemaining) {
		t.Errorf("Expected ErrNoBoostsRemaining, got %v", err)
	}

	c.SyncSummary(Summary{BoostsUsed: 2, BoostsRemaining: 1})
	on, err := c.ToggleBoost()
	if err != nil || !on {
		t.Fatalf("Toggle on: on=%v err=%v", on, err)
	}
	off, err := c.ToggleBoost()
	if err != nil || off {
		t.Errorf("Toggle off: on=%v err=%v", off, err)
	}
}

func TestBoostedSubmitRefreshesSummary(t *testing.T) {
	c, _ := newTestController()
	api := &fakeAPI{nextID: "p1", summary: matchapi.Summary{ConfidenceBoostsUsed: 1, ConfidenceBoostsRemaining: 2, CurrentStreak: 4, TotalPoints: 90}}
	sub := NewSubmitter(api, c)

	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))
	c.Select("6")
	c.ToggleBoost()
	if _, err := sub.SubmitBall(context.Background()); err != nil {
		t.Fatalf("SubmitBall failed: %v", err)
	}
	if !api.lastBall.ConfidenceBoost {
		t.Error("Boost flag not sent")
	}
	if api.summaryHits != 1 {
		t.Errorf("Expected one summary fetch, got %d", api.summaryHits)
	}
	if v := c.View(); v.BoostsRemaining != 2 || v.Streak != 4 || v.TotalPoints != 90 {
		t.Errorf("Summary not mirrored: %+v", v)
	}
}

func TestAlreadyExistsLocksWindow(t *testing.T) {
	c, _ := newTestController()
	api := &fakeAPI{ballErr: &matchapi.APIError{Status: 409, Detail: "Prediction already exists"}}
	sub := NewSubmitter(api, c)

	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))
	c.Select("1")
	if _, err := sub.SubmitBall(context.Background()); err == nil {
		t.Fatal("Expected error")
	}
	if v := c.View(); v.State != StateSubmitted {
		t.Errorf("Already-exists should lock, got %s", v.State)
	}
	if _, err := c.BeginSubmit(); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("Retry after lock: got %v", err)
	}
}

func TestOtherRejectionReopens(t *testing.T) {
	c, _ := newTestController()
	api := &fakeAPI{ballErr: &matchapi.APIError{Status: 422, Detail: "invalid ball"}}
	sub := NewSubmitter(api, c)

	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))
	c.Select("1")
	sub.SubmitBall(context.Background())

	v := c.View()
	if v.State != StateWindowOpen || v.Selection != "1" {
		t.Errorf("Rejected submit should reopen with selection: %+v", v)
	}

	api.ballErr = nil
	api.nextID = "p2"
	if _, err := sub.SubmitBall(context.Background()); err != nil {
		t.Errorf("Retry failed: %v", err)
	}
}

func TestCloseWinsOverInFlightSubmit(t *testing.T) {
	c, _ := newTestController()
	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))
	c.Select("2")

	ticket, err := c.BeginSubmit()
	if err != nil {
		t.Fatalf("BeginSubmit failed: %v", err)
	}
	c.OnWindowEvent(closeWindow("m1", "1.3.1"))
	c.CompleteSubmit(ticket, "p9", nil)

	if v := c.View(); v.State != StateIdle {
		t.Errorf("Close should win, got %s", v.State)
	}
	c.Resolve(result("m1", "p9", false, 0))
	if v := c.View(); v.State != StateIdle || v.LastResult.BallKey != "1.3.1" {
		t.Errorf("Late result: %+v", v)
	}
}

func TestResolveWhileSubmitted(t *testing.T) {
	c, _ := newTestController()
	c.OnWindowEvent(openWindow("m1", "1.3.1", 3, 1, t0.Add(10*time.Second)))
	c.Select("2")
	ticket, _ := c.BeginSubmit()
	c.CompleteSubmit(ticket, "p1", nil)

	c.Resolve(result("m1", "p1", true, 15))
	if v := c.View(); v.State != StateResolved {
		t.Errorf("Expected resolved, got %s", v.State)
	}

	c.OnWindowEvent(openWindow("m1", "1.3.2", 3, 2, t0.Add(20*time.Second)))
	if v := c.View(); v.State != StateWindowOpen {
		t.Errorf("Next window should open, got %s", v.State)
	}
}

func TestIncorrectResetsStreak(t *testing.T) {
	c, _ := newTestController()
	c.Resolve(result("m1", "a", true, 10))
	c.Resolve(result("m1", "b", true, 15))
	c.Resolve(result("m1", "c", false, 0))

	v := c.View()
	if v.Streak != 0 || v.TotalPoints != 25 {
		t.Errorf("got streak=%d points=%.0f", v.Streak, v.TotalPoints)
	}
}

func TestMatchScopeGuards(t *testing.T) {
	c, _ := newTestController()

	if c.OnWindowEvent(openWindow("m2", "1.1.1", 1, 1, t0.Add(10*time.Second))) {
		t.Error("Window for another match applied")
	}
	if c.Resolve(result("m2", "x", true, 10)) {
		t.Error("Result for another match applied")
	}

	c.OnWindowEvent(openWindow("m1", "1.1.1", 1, 1, t0.Add(10*time.Second)))
	c.Select("4")
	c.Resolve(result("m1", "y", true, 10))
	c.Reset()

	v := c.View()
	if v.State != StateIdle || v.Window != nil || v.Selection != "" || v.Streak != 0 || v.TotalPoints != 0 {
		t.Errorf("Reset left residue: %+v", v)
	}
	if err := c.Select("4"); !errors.Is(err, ErrNotSubscribed) {
		t.Errorf("Select without scope: got %v", err)
	}
}

func TestBadClosesAtOpensExpiredWindow(t *testing.T) {
	c, _ := newTestController()
	c.OnWindowEvent(events.PredictionWindowPayload{MatchID: "m1", IsOpen: true, BallKey: "1.1.1", ClosesAt: "soon"})
	if err := c.Select("1"); !errors.Is(err, ErrWindowClosed) {
		t.Errorf("Expected ErrWindowClosed, got %v", err)
	}
}

func TestResultAfterMatchSwitchDropped(t *testing.T) {
	c, _ := newTestController()
	sub := NewSubmitter(&fakeAPI{nextID: "p-A"}, c)

	c.OnWindowEvent(openWindow("m1", "1.4.1", 4, 1, t0.Add(10*time.Second)))
	c.Select("1")
	if _, err := sub.SubmitBall(context.Background()); err != nil {
		t.Fatalf("SubmitBall failed: %v", err)
	}
	c.Scope("m2")

	if c.Resolve(result("", "p-A", true, 20)) {
		t.Error("Result for a prediction made in m1 applied to m2")
	}
	if v := c.View(); v.Streak != 0 || v.TotalPoints != 0 || v.LastResult != nil {
		t.Errorf("m2 tally changed: %+v", v)
	}
}

func TestResultWithoutMatchID(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *Controller, sub *Submitter)
		id    string
		want  bool
	}{
		{
			name: "ball submitted in this scope",
			setup: func(c *Controller, sub *Submitter) {
				c.OnWindowEvent(openWindow("m1", "1.4.1", 4, 1, t0.Add(10*time.Second)))
				c.Select("6")
				sub.SubmitBall(context.Background())
			},
			id:   "p1",
			want: true,
		},
		{
			name: "over prediction in this scope",
			setup: func(c *Controller, sub *Submitter) {
				sub.SubmitOver(context.Background(), 1, 5, 9)
			},
			id:   "over-1",
			want: true,
		},
		{
			name:  "unknown prediction",
			setup: func(*Controller, *Submitter) {},
			id:    "elsewhere",
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestController()
			sub := NewSubmitter(&fakeAPI{nextID: "p1"}, c)
			tt.setup(c, sub)
			if got := c.Resolve(result("", tt.id, true, 10)); got != tt.want {
				t.Errorf("Resolve(%s): got %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestTrackIgnoresOtherMatch(t *testing.T) {
	c, _ := newTestController()
	c.Track("m0", "old")
	if c.Resolve(result("", "old", true, 10)) {
		t.Error("Prediction tracked for another match was attributed to m1")
	}
}
