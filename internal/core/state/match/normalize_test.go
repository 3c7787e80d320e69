package match

import (
	"testing"

	"github.com/charleschow/cricket-live/internal/events"
)

func TestNormalizeScoreEntries(t *testing.T) {
	raw := events.RawMatch{
		ID:         "m9",
		Team1:      "Oman",
		Team2:      "Nepal",
		TossWinner: strp("oman"),
		Score: []events.RawScoreEntry{
			{R: 152, W: 7, O: 20, Inning: "Oman Inning 1"},
			{R: 98, W: 4, O: 13.3, Inning: "Nepal Inning 1"},
		},
	}

	s := Normalize(raw)
	if len(s.Innings) != 2 {
		t.Fatalf("Expected 2 innings, got %d", len(s.Innings))
	}
	first, second := s.Innings[0], s.Innings[1]
	if first.Number != 1 || first.BattingTeam != "Oman" || first.BowlingTeam != "Nepal" || first.RunRate != 7.6 {
		t.Errorf("Unexpected first innings: %+v", first)
	}
	if second.Number != 2 || second.BattingTeam != "Nepal" || second.BowlingTeam != "Oman" || second.RunRate != 7.37 {
		t.Errorf("Unexpected second innings: %+v", second)
	}
	if s.TossWinner != "Oman" {
		t.Errorf("Toss winner casing not normalized: %s", s.TossWinner)
	}
	if s.HasPosition {
		t.Error("No position pointers were sent")
	}
}

func TestNormalizePrefersInningsList(t *testing.T) {
	raw := events.RawMatch{
		ID:      "m1",
		Innings: []events.RawInnings{{InningsNumber: 1, BattingTeam: "A", Score: 10}},
		Score:   []events.RawScoreEntry{{R: 99, Inning: "A Inning 1"}},
	}
	s := Normalize(raw)
	if len(s.Innings) != 1 || s.Innings[0].Score != 10 {
		t.Errorf("Innings list should win over score list: %+v", s.Innings)
	}
}

func TestOversForFormat(t *testing.T) {
	tests := map[string]int{
		"T20":  20,
		"t20":  20,
		"ODI":  50,
		"T10":  10,
		"":     20,
		"Test": 20,
	}
	for in, want := range tests {
		if got := OversForFormat(in); got != want {
			t.Errorf("OversForFormat(%q): got %d, want %d", in, got, want)
		}
	}
}

func TestOversToBalls(t *testing.T) {
	tests := []struct {
		overs float64
		want  int
	}{
		{0, 0},
		{0.1, 1},
		{16.3, 99},
		{19.5, 119},
		{20, 120},
	}
	for _, tt := range tests {
		if got := OversToBalls(tt.overs); got != tt.want {
			t.Errorf("OversToBalls(%v): got %d, want %d", tt.overs, got, tt.want)
		}
	}
}
