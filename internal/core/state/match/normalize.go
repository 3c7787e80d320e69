package match

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/charleschow/cricket-live/internal/events"
)

var inningLabel = regexp.MustCompile(`(?i)\s+Inning\s+\d+$`)

// Normalize turns a raw API match into canonical state. When the innings
// list is empty but the compact score list is present, innings are derived
// from it. Toss winner casing is aligned with the team names.
func Normalize(raw events.RawMatch) *State {
	s := &State{
		ID:                   raw.ID,
		Name:                 raw.Name,
		MatchType:            raw.MatchType,
		Status:               raw.Status,
		Venue:                raw.Venue,
		Date:                 raw.Date,
		Team1:                raw.Team1,
		Team2:                raw.Team2,
		Team1Code:            raw.Team1Code,
		Team2Code:            raw.Team2Code,
		Winner:               deref(raw.Winner),
		ResultText:           deref(raw.ResultText),
		TossDecision:         deref(raw.TossDecision),
		UpdatedAt:            raw.UpdatedAt,
		PredictionWindowOpen: raw.PredictionWindowOpen,
	}

	if len(raw.Innings) > 0 {
		s.Innings = make([]Innings, 0, len(raw.Innings))
		for _, in := range raw.Innings {
			s.Innings = upsertInnings(s.Innings, Innings{
				Number:       in.InningsNumber,
				BattingTeam:  in.BattingTeam,
				BowlingTeam:  in.BowlingTeam,
				Score:        in.Score,
				Wickets:      in.Wickets,
				Overs:        in.Overs,
				RunRate:      in.RunRate,
				Target:       in.Target,
				RequiredRate: in.RequiredRate,
			})
		}
	} else if len(raw.Score) > 0 {
		s.Innings = scoreToInnings(raw.Score, raw.Team1, raw.Team2)
	}

	if tw := deref(raw.TossWinner); tw != "" {
		switch {
		case strings.EqualFold(tw, raw.Team1):
			tw = raw.Team1
		case strings.EqualFold(tw, raw.Team2):
			tw = raw.Team2
		}
		s.TossWinner = tw
	}

	if raw.CurrentInnings != nil && raw.CurrentOver != nil && raw.CurrentBall != nil {
		s.HasPosition = true
		s.CurrentInnings = *raw.CurrentInnings
		s.CurrentOver = *raw.CurrentOver
		s.CurrentBall = *raw.CurrentBall
	}
	return s
}

func scoreToInnings(entries []events.RawScoreEntry, team1, team2 string) []Innings {
	out := make([]Innings, 0, len(entries))
	for i, e := range entries {
		batting := strings.TrimSpace(inningLabel.ReplaceAllString(e.Inning, ""))
		bowling := team1
		if strings.EqualFold(batting, team1) {
			bowling = team2
		}
		rr := 0.0
		if e.O > 0 {
			rr = math.Round(float64(e.R)/e.O*100) / 100
		}
		out = append(out, Innings{
			Number:      i + 1,
			BattingTeam: batting,
			BowlingTeam: bowling,
			Score:       e.R,
			Wickets:     e.W,
			Overs:       e.O,
			RunRate:     rr,
		})
	}
	return out
}

// upsertInnings replaces the entry with the same number or inserts it in
// number order.
func upsertInnings(list []Innings, in Innings) []Innings {
	for i := range list {
		if list[i].Number == in.Number {
			list[i] = in
			return list
		}
	}
	list = append(list, in)
	slices.SortFunc(list, func(a, b Innings) int { return a.Number - b.Number })
	return list
}

func normalizeBalls(raw []events.RawBall) []Ball {
	out := make([]Ball, 0, len(raw))
	seen := make(map[BallKey]struct{}, len(raw))
	for _, b := range raw {
		k := BallKey{Innings: b.Innings, Over: b.Over, Ball: b.Ball}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, Ball{
			Key:        k,
			ServerKey:  b.BallKey,
			Batter:     b.Batter,
			Bowler:     b.Bowler,
			NonStriker: b.NonStriker,
			Outcome:    b.Outcome,
			BatterRuns: b.BatterRuns,
			Extras:     b.Extras,
			TotalRuns:  b.TotalRuns,
			IsWicket:   b.IsWicket,
			WicketKind: deref(b.WicketKind),
			PlayerOut:  deref(b.PlayerOut),
		})
	}
	slices.SortFunc(out, func(a, b Ball) int { return compareKeys(a.Key, b.Key) })
	return out
}

func compareKeys(a, b BallKey) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	}
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
