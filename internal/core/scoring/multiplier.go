package scoring

import "github.com/shopspring/decimal"

type PredictionType string

const (
	Ball        PredictionType = "ball"
	Over        PredictionType = "over"
	Milestone   PredictionType = "milestone"
	MatchWinner PredictionType = "match_winner"
)

// Breakdown itemizes a projected award.
type Breakdown struct {
	Base       decimal.Decimal
	Streak     decimal.Decimal
	Boost      decimal.Decimal
	Clutch     decimal.Decimal
	Multiplier decimal.Decimal
	Points     decimal.Decimal
}

// ComputeMultiplier composes streak, boost and clutch multipliers using the
// embedded rules.
func ComputeMultiplier(streak int, boost, clutch bool) decimal.Decimal {
	return defaultRules.Multiplier(streak, boost, clutch)
}

// ProjectedPoints is base points for the type times ComputeMultiplier.
func ProjectedPoints(t PredictionType, streak int, boost, clutch bool) decimal.Decimal {
	return defaultRules.Compute(t, streak, boost, clutch).Points
}

// StreakMultiplier returns the tier multiplier for a streak length.
func (r *Rules) StreakMultiplier(streak int) decimal.Decimal {
	for _, t := range r.tiers {
		if streak >= t.minStreak {
			return t.multiplier
		}
	}
	return decimal.NewFromInt(1)
}

func (r *Rules) Multiplier(streak int, boost, clutch bool) decimal.Decimal {
	m := r.StreakMultiplier(streak)
	if boost {
		m = m.Mul(r.boost)
	}
	if clutch {
		m = m.Mul(r.clutch)
	}
	return m
}

// BasePoints returns the base value for a prediction type, 0 if unknown.
func (r *Rules) BasePoints(t PredictionType) int {
	return r.basePoints[t]
}

func (r *Rules) Compute(t PredictionType, streak int, boost, clutch bool) Breakdown {
	one := decimal.NewFromInt(1)
	b := Breakdown{
		Base:   decimal.NewFromInt(int64(r.BasePoints(t))),
		Streak: r.StreakMultiplier(streak),
		Boost:  one,
		Clutch: one,
	}
	if boost {
		b.Boost = r.boost
	}
	if clutch {
		b.Clutch = r.clutch
	}
	b.Multiplier = b.Streak.Mul(b.Boost).Mul(b.Clutch)
	b.Points = b.Base.Mul(b.Multiplier)
	return b
}

// IsClutch reports whether a zero-based over index falls in the last
// clutch overs of an innings of totalOvers.
func (r *Rules) IsClutch(over, totalOvers int) bool {
	if totalOvers <= 0 {
		return false
	}
	return over >= totalOvers-r.clutchOvers
}

func IsClutch(over, totalOvers int) bool {
	return defaultRules.IsClutch(over, totalOvers)
}
