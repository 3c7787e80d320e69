package match

import (
	"slices"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/charleschow/cricket-live/internal/events"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

// Store is the in-memory projection of the one match currently in scope.
//
// Events are applied one at a time from the transport's delivery goroutine;
// the RWMutex only protects readers (display, estimators) from seeing a
// half-applied event. Every applier checks the event's match id against the
// scoped match and discards anything else, so events that arrive after a
// room switch cannot leak into the next match.
type Store struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	matchID     string
	match       *State
	balls       []Ball
	ballIndex   map[BallKey]struct{}
	commentary  []Commentary
	leaderboard []events.LeaderboardEntry
	stale       bool
}

func NewStore(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:     clock,
		ballIndex: make(map[BallKey]struct{}),
	}
}

// Scope clears everything and accepts events for matchID only. An empty id
// discards every event until the next Scope.
func (s *Store) Scope(matchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matchID = matchID
	s.resetLocked()
}

// Clear drops all match data and stops accepting events.
func (s *Store) Clear() {
	s.Scope("")
}

func (s *Store) resetLocked() {
	s.match = nil
	s.balls = nil
	s.ballIndex = make(map[BallKey]struct{})
	s.commentary = nil
	s.leaderboard = nil
	s.stale = false
}

// MatchID is the match currently in scope.
func (s *Store) MatchID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchID
}

// MarkStale flags the projection as untrustworthy until the next full state.
func (s *Store) MarkStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

func (s *Store) Stale() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stale
}

// Apply routes an event to its applier. It reports whether the store changed.
func (s *Store) Apply(evt events.Event) bool {
	var applied bool
	switch p := evt.Payload.(type) {
	case events.MatchStatePayload:
		applied = s.ApplyFullState(p.Match)
	case events.BallUpdatePayload:
		applied = s.ApplyBall(p)
	case events.ScoreUpdatePayload:
		applied = s.ApplyScore(p)
	case events.MatchStatusPayload:
		applied = s.ApplyStatus(p.MatchID, p.Status)
	case events.PredictionWindowPayload:
		applied = s.ApplyWindowFlag(p.MatchID, p.IsOpen)
	case events.AICommentaryPayload:
		applied = s.ApplyCommentary(p)
	case events.OverSummaryPayload:
		applied = s.ApplyOverSummary(p)
	case events.LeaderboardUpdatePayload:
		applied = s.ApplyLeaderboard(p)
	case events.NotificationPayload, events.ConnectionStatusPayload, events.ReconnectedPayload:
		return false
	default:
		telemetry.Warnf("match_store: unhandled payload %T", p)
		return false
	}
	if applied {
		telemetry.Metrics.EventsApplied.Inc()
	}
	return applied
}

// inScope must be called with s.mu held.
func (s *Store) inScope(matchID string) bool {
	if s.matchID == "" || matchID != s.matchID {
		telemetry.Metrics.EventsDiscarded.Inc()
		telemetry.Debugf("match_store: discarding event for %q (scoped to %q)", matchID, s.matchID)
		return false
	}
	return true
}

// ApplyFullState replaces the match wholesale. The ball log is replaced only
// when the snapshot carries one; otherwise the balls already seen are kept.
func (s *Store) ApplyFullState(raw events.RawMatch) bool {
	next := Normalize(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(raw.ID) {
		return false
	}

	s.match = next
	if raw.BallLog != nil {
		s.balls = normalizeBalls(raw.BallLog)
		s.ballIndex = make(map[BallKey]struct{}, len(s.balls))
		for _, b := range s.balls {
			s.ballIndex[b.Key] = struct{}{}
		}
	}
	s.stale = false
	telemetry.Debugf("match_store[%s]: full state applied status=%s innings=%d balls=%d",
		raw.ID, next.Status, len(next.Innings), len(s.balls))
	return true
}

// ApplyBall appends a delivery unless its key is already in the log.
// Aggregates and the position pointers move only when the ball is the newest
// seen; a late ball is filed in order without rewinding the score.
func (s *Store) ApplyBall(p events.BallUpdatePayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(p.MatchID) || s.match == nil {
		return false
	}

	key := BallKey{Innings: p.Innings, Over: p.Over, Ball: p.Ball}
	if _, dup := s.ballIndex[key]; dup {
		telemetry.Metrics.DuplicateBalls.Inc()
		telemetry.Debugf("match_store[%s]: duplicate ball %s ignored", p.MatchID, key)
		return false
	}

	ball := Ball{
		Key:        key,
		ServerKey:  p.BallKey,
		Batter:     p.Batter,
		Bowler:     p.Bowler,
		Outcome:    p.Outcome,
		BatterRuns: p.BatterRuns,
		Extras:     p.Extras,
		TotalRuns:  p.TotalRuns,
		IsWicket:   p.IsWicket,
	}

	newest := len(s.balls) == 0 || s.balls[len(s.balls)-1].Key.Less(key)
	if newest {
		s.balls = append(s.balls, ball)
	} else {
		i, _ := slices.BinarySearchFunc(s.balls, key, func(b Ball, k BallKey) int { return compareKeys(b.Key, k) })
		s.balls = slices.Insert(s.balls, i, ball)
		telemetry.Debugf("match_store[%s]: late ball %s filed at %d", p.MatchID, key, i)
	}
	s.ballIndex[key] = struct{}{}

	if newest {
		in := s.inningsLocked(p.Innings, "")
		in.Score, in.Wickets, in.Overs, in.RunRate = p.Score, p.Wickets, p.Overs, p.RunRate
		s.match.HasPosition = true
		s.match.CurrentInnings, s.match.CurrentOver, s.match.CurrentBall = p.Innings, p.Over, p.Ball
	}
	return true
}

// ApplyScore updates innings aggregates without touching the ball log.
func (s *Store) ApplyScore(p events.ScoreUpdatePayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(p.MatchID) || s.match == nil {
		return false
	}
	in := s.inningsLocked(p.Innings, p.BattingTeam)
	in.Score, in.Wickets, in.Overs, in.RunRate = p.Score, p.Wickets, p.Overs, p.RunRate
	return true
}

// inningsLocked returns the entry for number n, creating it when the server
// reports an innings the snapshot did not have yet.
func (s *Store) inningsLocked(n int, battingTeam string) *Innings {
	if in := s.match.InningsByNumber(n); in != nil {
		if battingTeam != "" && in.BattingTeam == "" {
			in.BattingTeam = battingTeam
			in.BowlingTeam = s.otherTeam(battingTeam)
		}
		return in
	}

	in := Innings{Number: n, BattingTeam: battingTeam}
	if battingTeam != "" {
		in.BowlingTeam = s.otherTeam(battingTeam)
	} else if prev := s.match.InningsByNumber(n - 1); prev != nil {
		in.BattingTeam, in.BowlingTeam = prev.BowlingTeam, prev.BattingTeam
	}
	s.match.Innings = upsertInnings(s.match.Innings, in)
	return s.match.InningsByNumber(n)
}

func (s *Store) otherTeam(team string) string {
	if team == s.match.Team1 {
		return s.match.Team2
	}
	if team == s.match.Team2 {
		return s.match.Team1
	}
	return ""
}

// ApplyStatus sets the status unless it is unchanged. Regressions are
// logged but accepted since the server is authoritative.
func (s *Store) ApplyStatus(matchID string, status events.MatchStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(matchID) || s.match == nil {
		return false
	}
	prev := s.match.Status
	if prev == status {
		return false
	}
	if status != events.StatusAbandoned && status.Rank() < prev.Rank() {
		telemetry.Warnf("match_store[%s]: status regressed %s -> %s", matchID, prev, status)
	}
	s.match.Status = status
	telemetry.Infof("match_store[%s]: status %s -> %s", matchID, prev, status)
	return true
}

// ApplyWindowFlag mirrors the server's prediction window flag on the match.
func (s *Store) ApplyWindowFlag(matchID string, open bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(matchID) || s.match == nil {
		return false
	}
	if s.match.PredictionWindowOpen == open {
		return false
	}
	s.match.PredictionWindowOpen = open
	return true
}

func (s *Store) ApplyCommentary(p events.AICommentaryPayload) bool {
	return s.appendCommentary(p.MatchID, Commentary{Key: p.BallKey, Text: p.Commentary})
}

func (s *Store) ApplyOverSummary(p events.OverSummaryPayload) bool {
	return s.appendCommentary(p.MatchID, Commentary{
		Key:         OverSummaryKey(p.Innings, p.Over),
		Text:        p.Summary,
		OverSummary: true,
	})
}

func (s *Store) appendCommentary(matchID string, c Commentary) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(matchID) {
		return false
	}
	c.Received = s.clock.Now()
	s.commentary = append(s.commentary, c)
	return true
}

// ApplyLeaderboard keeps the latest leaderboard snapshot.
func (s *Store) ApplyLeaderboard(p events.LeaderboardUpdatePayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.inScope(p.MatchID) {
		return false
	}
	s.leaderboard = slices.Clone(p.Entries)
	return true
}

// Match returns a copy of the current state.
func (s *Store) Match() (*State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.match == nil {
		return nil, false
	}
	return s.match.clone(), true
}

func (s *Store) Balls() []Ball {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.balls)
}

func (s *Store) Commentary() []Commentary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.commentary)
}

// Snapshot returns a consistent copy of everything in the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		Balls:       slices.Clone(s.balls),
		Commentary:  slices.Clone(s.commentary),
		Leaderboard: slices.Clone(s.leaderboard),
		Stale:       s.stale,
	}
	if s.match != nil {
		snap.Match = s.match.clone()
	}
	return snap
}
