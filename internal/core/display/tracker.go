package display

import (
	"sync"
	"time"
)

// State holds per-match display flags.
type State struct {
	DisplayedLive    bool
	Finaled          bool
	LastBallKey      string
	LastCountdownSec int
	LastCountdownAt  time.Time
}

// Tracker maps match ids to their display state.
type Tracker struct {
	mu     sync.Mutex
	states map[string]*State
}

func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[string]*State),
	}
}

// Update runs fn against the display state for a match, creating one if it
// does not yet exist.
func (t *Tracker) Update(matchID string, fn func(*State)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[matchID]
	if !ok {
		s = &State{LastCountdownSec: -1}
		t.states[matchID] = s
	}
	fn(s)
}

// Forget drops a match's display state.
func (t *Tracker) Forget(matchID string) {
	t.mu.Lock()
	delete(t.states, matchID)
	t.mu.Unlock()
}
