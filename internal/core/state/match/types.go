package match

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charleschow/cricket-live/internal/events"
)

// BallKey orders deliveries within a match.
type BallKey struct {
	Innings int
	Over    int
	Ball    int
}

func (k BallKey) Less(o BallKey) bool {
	if k.Innings != o.Innings {
		return k.Innings < o.Innings
	}
	if k.Over != o.Over {
		return k.Over < o.Over
	}
	return k.Ball < o.Ball
}

// String renders the key the way the server does: "innings.over.ball".
func (k BallKey) String() string {
	return fmt.Sprintf("%d.%d.%d", k.Innings, k.Over, k.Ball)
}

type Innings struct {
	Number       int
	BattingTeam  string
	BowlingTeam  string
	Score        int
	Wickets      int
	Overs        float64 // cricket notation: 16.3 is 16 overs and 3 balls
	RunRate      float64
	Target       *int
	RequiredRate *float64
}

// Ball is one entry of the ball-by-ball log.
type Ball struct {
	Key        BallKey
	ServerKey  string
	Batter     string
	Bowler     string
	NonStriker string
	Outcome    string
	BatterRuns int
	Extras     int
	TotalRuns  int
	IsWicket   bool
	WicketKind string
	PlayerOut  string
}

// Commentary is either AI commentary for a ball or an over summary. Entries
// keep arrival order.
type Commentary struct {
	Key         string
	Text        string
	OverSummary bool
	Received    time.Time
}

// OverSummaryKey is the pseudo ball key an over summary is filed under.
func OverSummaryKey(innings, over int) string {
	return fmt.Sprintf("summary_%d.%d", innings, over)
}

// State is the canonical projection of one match.
type State struct {
	ID           string
	Name         string
	MatchType    string
	Status       events.MatchStatus
	Venue        string
	Date         string
	Team1        string
	Team2        string
	Team1Code    string
	Team2Code    string
	TossWinner   string
	TossDecision string
	Innings      []Innings
	Winner       string
	ResultText   string
	UpdatedAt    string

	PredictionWindowOpen bool

	// Position of the latest delivery. HasPosition is false until one is known.
	HasPosition    bool
	CurrentInnings int
	CurrentOver    int
	CurrentBall    int
}

// InningsByNumber returns the innings entry, or nil.
func (s *State) InningsByNumber(n int) *Innings {
	for i := range s.Innings {
		if s.Innings[i].Number == n {
			return &s.Innings[i]
		}
	}
	return nil
}

// TotalOvers is the scheduled overs per innings for the match format.
func (s *State) TotalOvers() int {
	return OversForFormat(s.MatchType)
}

func (s *State) clone() *State {
	c := *s
	c.Innings = make([]Innings, len(s.Innings))
	copy(c.Innings, s.Innings)
	return &c
}

// OversForFormat maps a match_type to overs per innings. Unknown formats
// are treated as T20.
func OversForFormat(matchType string) int {
	switch strings.ToLower(strings.TrimSpace(matchType)) {
	case "odi", "one day", "one-day", "list a":
		return 50
	case "t10":
		return 10
	default:
		return 20
	}
}

// OversToBalls converts cricket overs notation to legal deliveries.
func OversToBalls(overs float64) int {
	whole := math.Floor(overs)
	part := int(math.Round((overs - whole) * 10))
	return int(whole)*6 + part
}

// Snapshot is a consistent copy of everything the store holds.
type Snapshot struct {
	Match       *State
	Balls       []Ball
	Commentary  []Commentary
	Leaderboard []events.LeaderboardEntry
	Stale       bool
}
