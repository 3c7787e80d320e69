package display

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/charleschow/cricket-live/internal/core/prediction"
	"github.com/charleschow/cricket-live/internal/core/scoring"
	"github.com/charleschow/cricket-live/internal/core/state/match"
	"github.com/charleschow/cricket-live/internal/core/winprob"
	"github.com/charleschow/cricket-live/internal/events"
)

// Observer prints the scoreboard after match events and a countdown line
// once per second while a prediction window is open.
type Observer struct {
	out       io.Writer
	clock     clockwork.Clock
	store     *match.Store
	window    *prediction.Controller
	estimator *winprob.Estimator
	rules     *scoring.Rules
	tracker   *Tracker

	mu sync.Mutex // serializes prints from the read loop and the countdown
}

func NewObserver(out io.Writer, clock clockwork.Clock, store *match.Store, window *prediction.Controller, est *winprob.Estimator, rules *scoring.Rules) *Observer {
	if out == nil {
		out = os.Stderr
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rules == nil {
		rules = scoring.Default()
	}
	return &Observer{
		out:       out,
		clock:     clock,
		store:     store,
		window:    window,
		estimator: est,
		rules:     rules,
		tracker:   NewTracker(),
	}
}

// OnMatchEvent prints a frame for events that change what the scoreboard
// shows. Commentary and leaderboard pushes are not printed.
func (o *Observer) OnMatchEvent(matchID string, t events.EventType) {
	label := ""
	switch t {
	case events.EventMatchState:
		label = "STATE"
	case events.EventBallUpdate:
		label = "BALL"
	case events.EventScoreUpdate:
		label = "SCORE"
	case events.EventMatchStatus:
		label = "STATUS"
	case events.EventPredictionWindow:
		label = "WINDOW"
	case events.EventNotification:
		label = "RESULT"
	default:
		return
	}

	snap := o.store.Snapshot()
	if snap.Match == nil || snap.Match.ID != matchID {
		return
	}

	show := true
	o.tracker.Update(matchID, func(s *State) {
		switch {
		case snap.Match.Status.IsLive() && !s.DisplayedLive:
			s.DisplayedLive = true
			label = "LIVE"
		case snap.Match.Status == events.StatusCompleted || snap.Match.Status == events.StatusAbandoned:
			if s.Finaled && t != events.EventNotification {
				show = false
			}
			s.Finaled = true
			label = "FINAL"
		}
		if t == events.EventBallUpdate {
			if n := len(snap.Balls); n > 0 {
				key := snap.Balls[n-1].Key.String()
				if key == s.LastBallKey {
					show = false
				}
				s.LastBallKey = key
			}
		}
	})
	if !show {
		return
	}
	o.print(label, snap)
}

// OnCountdown is the countdown tick callback.
func (o *Observer) OnCountdown(remaining time.Duration) {
	matchID := o.window.MatchID()
	if matchID == "" {
		return
	}
	sec := int(math.Ceil(remaining.Seconds()))

	changed := false
	o.tracker.Update(matchID, func(s *State) {
		if sec != s.LastCountdownSec {
			s.LastCountdownSec = sec
			s.LastCountdownAt = o.clock.Now()
			changed = true
		}
	})
	if !changed {
		return
	}

	v := o.window.View()
	if v.Window == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, "  [%s] %s  closes in %s\n", v.Window.BallKey, v.State, FormatRemaining(remaining))
}

// Forget drops the display state for a match that is no longer followed.
func (o *Observer) Forget(matchID string) {
	o.tracker.Forget(matchID)
}

// BuildFrame assembles the scoreboard inputs for the current match.
func (o *Observer) BuildFrame(label string, snap match.Snapshot) Frame {
	f := Frame{
		Event:    label,
		At:       o.clock.Now(),
		Snapshot: snap,
		Window:   o.window.View(),
	}
	if o.estimator != nil {
		if p, ok := o.estimator.Estimate(snap.Match); ok {
			f.Prob = &p
		}
	}
	if w := f.Window.Window; w != nil {
		clutch := o.rules.IsClutch(w.Over, snap.Match.TotalOvers())
		bd := o.rules.Compute(scoring.Ball, f.Window.Streak, f.Window.Boost, clutch)
		f.Preview = &bd
	}
	return f
}

func (o *Observer) print(label string, snap match.Snapshot) {
	f := o.BuildFrame(label, snap)
	o.mu.Lock()
	defer o.mu.Unlock()
	PrintMatch(o.out, f)
}
