package scoring

import (
	_ "embed"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesData []byte

type rulesFile struct {
	BasePoints map[PredictionType]int `yaml:"base_points"`
	StreakTiers []struct {
		MinStreak  int    `yaml:"min_streak"`
		Multiplier string `yaml:"multiplier"`
	} `yaml:"streak_tiers"`
	BoostMultiplier  string `yaml:"boost_multiplier"`
	ClutchMultiplier string `yaml:"clutch_multiplier"`
	ClutchOvers      int    `yaml:"clutch_overs"`
	BoostsPerMatch   int    `yaml:"boosts_per_match"`
}

type streakTier struct {
	minStreak  int
	multiplier decimal.Decimal
}

// Rules is the parsed scoring table.
type Rules struct {
	basePoints     map[PredictionType]int
	tiers          []streakTier // sorted by minStreak descending
	boost          decimal.Decimal
	clutch         decimal.Decimal
	clutchOvers    int
	boostsPerMatch int
}

var defaultRules = mustParseRules(rulesData)

// Default returns the embedded rules.
func Default() *Rules { return defaultRules }

func mustParseRules(data []byte) *Rules {
	r, err := ParseRules(data)
	if err != nil {
		panic(fmt.Sprintf("scoring: embedded rules: %v", err))
	}
	return r
}

// ParseRules reads a rules document in the rules.yaml layout.
func ParseRules(data []byte) (*Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse scoring rules: %w", err)
	}

	r := &Rules{
		basePoints:     f.BasePoints,
		clutchOvers:    f.ClutchOvers,
		boostsPerMatch: f.BoostsPerMatch,
	}
	if len(r.basePoints) == 0 {
		return nil, fmt.Errorf("scoring rules: no base points")
	}
	if len(f.StreakTiers) == 0 {
		return nil, fmt.Errorf("scoring rules: no streak tiers")
	}

	for _, t := range f.StreakTiers {
		m, err := decimal.NewFromString(t.Multiplier)
		if err != nil {
			return nil, fmt.Errorf("streak tier %d multiplier %q: %w", t.MinStreak, t.Multiplier, err)
		}
		r.tiers = append(r.tiers, streakTier{minStreak: t.MinStreak, multiplier: m})
	}
	slices.SortFunc(r.tiers, func(a, b streakTier) int { return b.minStreak - a.minStreak })

	var err error
	if r.boost, err = decimal.NewFromString(f.BoostMultiplier); err != nil {
		return nil, fmt.Errorf("boost multiplier %q: %w", f.BoostMultiplier, err)
	}
	if r.clutch, err = decimal.NewFromString(f.ClutchMultiplier); err != nil {
		return nil, fmt.Errorf("clutch multiplier %q: %w", f.ClutchMultiplier, err)
	}
	return r, nil
}

// BoostsPerMatch is the confidence boost allowance for one match.
func (r *Rules) BoostsPerMatch() int { return r.boostsPerMatch }
