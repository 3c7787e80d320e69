package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charleschow/cricket-live/internal/core/prediction"
	"github.com/charleschow/cricket-live/internal/core/scoring"
	"github.com/charleschow/cricket-live/internal/core/state/match"
	"github.com/charleschow/cricket-live/internal/core/winprob"
)

const (
	dividerHeavy = "========================================================================"
	dividerLight = "~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~"
)

// Frame is everything one scoreboard print needs.
type Frame struct {
	Event    string
	At       time.Time
	Snapshot match.Snapshot
	Window   prediction.View
	Prob     *winprob.Probability
	Preview  *scoring.Breakdown
}

func PrintMatch(w io.Writer, f Frame) {
	m := f.Snapshot.Match
	if m == nil {
		return
	}

	divider := dividerHeavy
	if f.Event == "WINDOW" || f.Event == "RESULT" {
		divider = dividerLight
	}

	staleTag := ""
	if f.Snapshot.Stale {
		staleTag = "  [STALE]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s %s]  %s%s\n", f.Event, f.At.Format("3:04:05.000 PM"), m.ID, staleTag)
	fmt.Fprintf(&b, "%s\n", divider)
	fmt.Fprintf(&b, "  %s vs %s  (%s, %s)\n", m.Team1, m.Team2, strings.ToUpper(m.MatchType), m.Status)
	if m.TossWinner != "" {
		fmt.Fprintf(&b, "    %-22s%s chose to %s\n", "Toss:", m.TossWinner, m.TossDecision)
	}

	for _, inn := range m.Innings {
		line := fmt.Sprintf("%d/%d (%.1f ov)  RR %.2f", inn.Score, inn.Wickets, inn.Overs, inn.RunRate)
		if inn.Target != nil {
			line += fmt.Sprintf("  |  Target %d", *inn.Target)
		}
		if inn.RequiredRate != nil {
			line += fmt.Sprintf("  RRR %.2f", *inn.RequiredRate)
		}
		fmt.Fprintf(&b, "    %-22s%s\n", fmt.Sprintf("Inn %d %s:", inn.Number, shortName(inn.BattingTeam)), line)
	}

	if n := len(f.Snapshot.Balls); n > 0 {
		last := f.Snapshot.Balls[n-1]
		fmt.Fprintf(&b, "    %-22s%s  %s to %s  %s\n", "Last ball:", last.Key, last.Bowler, last.Batter, outcomeLabel(last))
	}

	if f.Prob != nil {
		fmt.Fprintf(&b, "    %-22s%s %d%%  |  %s %d%%", "Win probability:",
			shortName(m.Team1), f.Prob.Team1, shortName(m.Team2), f.Prob.Team2)
		if f.Prob.Draw > 0 {
			fmt.Fprintf(&b, "  |  Draw %d%%", f.Prob.Draw)
		}
		fmt.Fprintf(&b, "\n")
	}

	v := f.Window
	if v.Window != nil {
		sel := v.Selection
		if sel == "" {
			sel = "-"
		}
		fmt.Fprintf(&b, "    %-22s%s  %s  closes in %s  pick=%s\n", "Prediction:",
			v.Window.BallKey, v.State, FormatRemaining(v.Remaining), sel)
	}
	if f.Preview != nil {
		boostTag := ""
		if v.Boost {
			boostTag = "  [BOOST]"
		}
		fmt.Fprintf(&b, "    %-22sx%s = %s pts%s\n", "Multiplier:",
			f.Preview.Multiplier.StringFixed(1), f.Preview.Points.StringFixed(0), boostTag)
	}
	fmt.Fprintf(&b, "    %-22sstreak %d  |  %.0f pts  |  boosts %d left\n", "Tally:",
		v.Streak, v.TotalPoints, v.BoostsRemaining)
	if r := v.LastResult; r != nil {
		verdict := "MISS"
		if r.IsCorrect {
			verdict = "HIT"
		}
		fmt.Fprintf(&b, "    %-22s%s %s (%s) %+.0f\n", "Last result:", r.BallKey, verdict, r.ActualOutcome, r.Points)
	}

	if m.ResultText != "" {
		fmt.Fprintf(&b, "    >>> %s\n", m.ResultText)
	}
	fmt.Fprintf(&b, "%s\n", divider)

	fmt.Fprint(w, b.String())
}

// FormatRemaining renders a countdown as seconds with one decimal.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "0.0s"
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func outcomeLabel(b match.Ball) string {
	if b.IsWicket {
		if b.PlayerOut != "" {
			return fmt.Sprintf("WICKET (%s)", b.PlayerOut)
		}
		return "WICKET"
	}
	switch b.Outcome {
	case "dot":
		return "dot"
	case "wide", "no_ball", "bye", "leg_bye":
		return fmt.Sprintf("%s +%d", b.Outcome, b.TotalRuns)
	}
	return fmt.Sprintf("%d run(s)", b.TotalRuns)
}

// shortName keeps names that fit a column and abbreviates the rest to
// initials.
func shortName(name string) string {
	parts := strings.Fields(name)
	if len(name) <= 12 || len(parts) < 2 {
		return name
	}
	var b strings.Builder
	for _, p := range parts {
		b.WriteByte(strings.ToUpper(p[:1])[0])
	}
	return b.String()
}
