package winprob

import (
	"math"

	"github.com/charleschow/cricket-live/internal/core/state/match"
	"github.com/charleschow/cricket-live/internal/core/teams"
	"github.com/charleschow/cricket-live/internal/events"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

// Probability is a display split in whole percent. Team1+Team2+Draw == 100.
type Probability struct {
	Team1 int
	Team2 int
	Draw  int
}

var even = Probability{Team1: 50, Team2: 50}

// Estimator is a display-only heuristic. It has no statistical basis; it
// only moves in the intuitive directions.
type Estimator struct {
	teams *teams.Registry
}

func NewEstimator(reg *teams.Registry) *Estimator {
	return &Estimator{teams: reg}
}

// Estimate returns false when there is nothing to estimate yet (match not
// started or no innings recorded).
func (e *Estimator) Estimate(s *match.State) (Probability, bool) {
	if s == nil {
		return Probability{}, false
	}

	switch s.Status {
	case events.StatusCompleted, events.StatusAbandoned:
		return e.result(s), true
	case events.StatusUpcoming:
		return Probability{}, false
	}
	if len(s.Innings) == 0 {
		return Probability{}, false
	}

	current := s.CurrentInnings
	if !s.HasPosition {
		current = s.Innings[len(s.Innings)-1].Number
	}

	inn1 := s.InningsByNumber(1)
	inn2 := s.InningsByNumber(2)

	switch {
	case current == 1 && inn1 != nil:
		pct := FirstInningsBattingPct(inn1.RunRate, inn1.Wickets, inn1.Overs)
		return e.split(s, inn1.BattingTeam, pct), true

	case current == 2 && inn1 != nil && inn2 != nil:
		target := inn1.Score + 1
		if inn2.Target != nil && *inn2.Target > 0 {
			target = *inn2.Target
		}
		pct := ChasePct(target, inn2.Score, inn2.Wickets, inn2.Overs, inn2.RunRate, s.TotalOvers())
		return e.split(s, inn2.BattingTeam, pct), true
	}
	return even, true
}

func (e *Estimator) result(s *match.State) Probability {
	if s.Winner == "" {
		return Probability{Draw: 100}
	}
	switch e.side(s, s.Winner) {
	case teams.SideTeam1:
		return Probability{Team1: 100}
	case teams.SideTeam2:
		return Probability{Team2: 100}
	}
	telemetry.Warnf("winprob[%s]: winner %q matches neither team", s.ID, s.Winner)
	return Probability{Draw: 100}
}

// split assigns pct to the batting side. An unresolvable side gives an
// even split rather than a guess.
func (e *Estimator) split(s *match.State, battingTeam string, pct float64) Probability {
	p := int(math.Round(pct))
	switch e.side(s, battingTeam) {
	case teams.SideTeam1:
		return Probability{Team1: p, Team2: 100 - p}
	case teams.SideTeam2:
		return Probability{Team1: 100 - p, Team2: p}
	}
	telemetry.Debugf("winprob[%s]: cannot place batting team %q", s.ID, battingTeam)
	return even
}

func (e *Estimator) side(s *match.State, team string) teams.Side {
	return e.teams.SideOf(team,
		teams.Participant{Name: s.Team1, Code: s.Team1Code},
		teams.Participant{Name: s.Team2, Code: s.Team2Code},
	)
}

// FirstInningsBattingPct trends the batting side away from 50 with run rate
// and overs survived, and down with each wicket. Clamped to 25..75.
func FirstInningsBattingPct(runRate float64, wickets int, overs float64) float64 {
	rrFactor := math.Min(runRate/8, 1.5)
	pct := 50 + rrFactor*10 - float64(wickets)*5 + overs*0.2
	return clamp(pct, 25, 75)
}

// ChasePct is the chasing side's chance. It falls as the required rate
// outgrows the current rate and rises with wickets in hand and progress
// toward the target. 100 once the target is reached, 0 when all out,
// otherwise clamped to 5..95.
func ChasePct(target, score, wickets int, overs, runRate float64, totalOvers int) float64 {
	runsNeeded := target - score
	if runsNeeded <= 0 {
		return 100
	}
	if wickets >= 10 {
		return 0
	}

	ballsLeft := totalOvers*6 - match.OversToBalls(overs)
	oversLeft := math.Max(0.1, float64(ballsLeft)/6)
	required := float64(runsNeeded) / oversLeft

	rrRatio := 2.0
	if runRate > 0 {
		rrRatio = required / runRate
	}

	pct := 50.0
	pct -= (rrRatio - 1) * 20
	pct += float64(10-wickets-5) * 3
	if target > 0 {
		pct += float64(score) / float64(target) * 15
	}
	return clamp(pct, 5, 95)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
