package scoring

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestComputeMultiplier(t *testing.T) {
	tests := []struct {
		streak int
		boost  bool
		clutch bool
		want   string
	}{
		{0, false, false, "1"},
		{2, false, false, "1"},
		{3, false, false, "1.5"},
		{4, false, false, "1.5"},
		{5, false, false, "2"},
		{9, false, false, "2"},
		{10, false, false, "3"},
		{25, false, false, "3"},
		{5, true, false, "4"},
		{3, false, true, "3"},
		{10, true, true, "12"},
		{0, true, true, "4"},
	}

	for _, tt := range tests {
		got := ComputeMultiplier(tt.streak, tt.boost, tt.clutch)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("ComputeMultiplier(%d, %v, %v): got %s, want %s", tt.streak, tt.boost, tt.clutch, got, tt.want)
		}
	}
}

func TestProjectedPointsOnBallBase(t *testing.T) {
	if got := ProjectedPoints(Ball, 5, true, false); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("streak 5 + boost on ball: got %s, want 40", got)
	}
	if got := ProjectedPoints(Ball, 10, true, true); !got.Equal(decimal.NewFromInt(120)) {
		t.Errorf("streak 10 + boost + clutch on ball: got %s, want 120", got)
	}
	if got := ProjectedPoints(Ball, 3, false, false); !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("streak 3 on ball: got %s, want 15", got)
	}
}

func TestBasePoints(t *testing.T) {
	r := Default()
	want := map[PredictionType]int{Ball: 10, Over: 25, Milestone: 50, MatchWinner: 100, "unknown": 0}
	for typ, pts := range want {
		if got := r.BasePoints(typ); got != pts {
			t.Errorf("BasePoints(%s): got %d, want %d", typ, got, pts)
		}
	}
	if r.BoostsPerMatch() != 3 {
		t.Errorf("BoostsPerMatch: got %d, want 3", r.BoostsPerMatch())
	}
}

func TestComputeBreakdown(t *testing.T) {
	b := Default().Compute(MatchWinner, 6, false, true)
	if !b.Base.Equal(decimal.NewFromInt(100)) || !b.Multiplier.Equal(decimal.NewFromInt(4)) || !b.Points.Equal(decimal.NewFromInt(400)) {
		t.Errorf("Unexpected breakdown: base=%s mult=%s points=%s", b.Base, b.Multiplier, b.Points)
	}
	if !b.Boost.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Unboosted breakdown should carry 1x boost, got %s", b.Boost)
	}
}

func TestIsClutch(t *testing.T) {
	tests := []struct {
		over, total int
		want        bool
	}{
		{15, 20, false},
		{16, 20, true},
		{19, 20, true},
		{45, 50, false},
		{46, 50, true},
		{3, 0, false},
	}
	for _, tt := range tests {
		if got := IsClutch(tt.over, tt.total); got != tt.want {
			t.Errorf("IsClutch(%d, %d): got %v, want %v", tt.over, tt.total, got, tt.want)
		}
	}
}

func TestParseRulesErrors(t *testing.T) {
	bad := []string{
		`base_points: {}`,
		"base_points: {ball: 10}\nstreak_tiers: []",
		"base_points: {ball: 10}\nstreak_tiers: [{min_streak: 0, multiplier: \"x\"}]\nboost_multiplier: \"2\"\nclutch_multiplier: \"2\"",
		"base_points: {ball: 10}\nstreak_tiers: [{min_streak: 0, multiplier: \"1\"}]\nboost_multiplier: \"\"\nclutch_multiplier: \"2\"",
	}
	for _, doc := range bad {
		if _, err := ParseRules([]byte(doc)); err == nil {
			t.Errorf("Expected error for %q", doc)
		}
	}
}
