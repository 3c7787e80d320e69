package events

// MatchStatus is the lifecycle stage of a match as reported by the server.
type MatchStatus string

const (
	StatusUpcoming     MatchStatus = "upcoming"
	StatusToss         MatchStatus = "toss"
	StatusLive1st      MatchStatus = "live_1st"
	StatusInningsBreak MatchStatus = "innings_break"
	StatusLive2nd      MatchStatus = "live_2nd"
	StatusCompleted    MatchStatus = "completed"
	StatusAbandoned    MatchStatus = "abandoned"
)

var statusRank = map[MatchStatus]int{
	StatusUpcoming:     0,
	StatusToss:         1,
	StatusLive1st:      2,
	StatusInningsBreak: 3,
	StatusLive2nd:      4,
	StatusCompleted:    5,
	StatusAbandoned:    5,
}

// Rank orders statuses along the match lifecycle. Unknown statuses rank -1.
func (s MatchStatus) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return -1
}

// IsLive is true while a ball can be bowled.
func (s MatchStatus) IsLive() bool {
	return s == StatusLive1st || s == StatusLive2nd
}

// RawInnings is one innings entry as the API serializes it.
type RawInnings struct {
	InningsNumber int      `json:"innings_number"`
	BattingTeam   string   `json:"batting_team"`
	BowlingTeam   string   `json:"bowling_team"`
	Score         int      `json:"score"`
	Wickets       int      `json:"wickets"`
	Overs         float64  `json:"overs"`
	RunRate       float64  `json:"run_rate"`
	Target        *int     `json:"target,omitempty"`
	RequiredRate  *float64 `json:"required_rate,omitempty"`
}

// RawScoreEntry is the compact per-innings score some upstream feeds send
// instead of a full innings list. Inning looks like "Oman Inning 1".
type RawScoreEntry struct {
	R      int     `json:"r"`
	W      int     `json:"w"`
	O      float64 `json:"o"`
	Inning string  `json:"inning"`
}

// RawBall is one delivery as carried by scorecard payloads.
type RawBall struct {
	BallKey    string  `json:"ball_key"`
	Innings    int     `json:"innings"`
	Over       int     `json:"over"`
	Ball       int     `json:"ball"`
	Batter     string  `json:"batter"`
	Bowler     string  `json:"bowler"`
	NonStriker string  `json:"non_striker"`
	Outcome    string  `json:"outcome"`
	BatterRuns int     `json:"batter_runs"`
	Extras     int     `json:"extras"`
	TotalRuns  int     `json:"total_runs"`
	IsWicket   bool    `json:"is_wicket"`
	WicketKind *string `json:"wicket_kind,omitempty"`
	PlayerOut  *string `json:"player_out,omitempty"`
}

// RawMatch is the full match record: sent as match_state on join and
// returned by GET /matches/{id}.
type RawMatch struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	MatchType            string          `json:"match_type"`
	Status               MatchStatus     `json:"status"`
	Venue                string          `json:"venue"`
	Date                 string          `json:"date"`
	Team1                string          `json:"team1"`
	Team2                string          `json:"team2"`
	Team1Code            string          `json:"team1_code"`
	Team2Code            string          `json:"team2_code"`
	TossWinner           *string         `json:"toss_winner"`
	TossDecision         *string         `json:"toss_decision"`
	Innings              []RawInnings    `json:"innings"`
	Score                []RawScoreEntry `json:"score,omitempty"`
	BallLog              []RawBall       `json:"ball_log,omitempty"`
	Winner               *string         `json:"winner"`
	ResultText           *string         `json:"result_text"`
	PredictionWindowOpen bool            `json:"prediction_window_open"`
	CurrentInnings       *int            `json:"current_innings"`
	CurrentOver          *int            `json:"current_over"`
	CurrentBall          *int            `json:"current_ball"`
	UpdatedAt            string          `json:"updated_at"`
}

// MatchStatePayload is a full snapshot. The store replaces its state wholesale.
type MatchStatePayload struct {
	Match RawMatch
}

type BallUpdatePayload struct {
	MatchID    string  `json:"match_id"`
	BallKey    string  `json:"ball_key"`
	Innings    int     `json:"innings"`
	Over       int     `json:"over"`
	Ball       int     `json:"ball"`
	Batter     string  `json:"batter"`
	Bowler     string  `json:"bowler"`
	Outcome    string  `json:"outcome"`
	BatterRuns int     `json:"batter_runs"`
	Extras     int     `json:"extras"`
	TotalRuns  int     `json:"total_runs"`
	IsWicket   bool    `json:"is_wicket"`
	Score      int     `json:"score"`
	Wickets    int     `json:"wickets"`
	Overs      float64 `json:"overs"`
	RunRate    float64 `json:"run_rate"`
}

type ScoreUpdatePayload struct {
	MatchID     string  `json:"match_id"`
	Innings     int     `json:"innings"`
	Score       int     `json:"score"`
	Wickets     int     `json:"wickets"`
	Overs       float64 `json:"overs"`
	RunRate     float64 `json:"run_rate"`
	BattingTeam string  `json:"batting_team"`
}

type MatchStatusPayload struct {
	MatchID        string      `json:"match_id"`
	Status         MatchStatus `json:"status"`
	PreviousStatus MatchStatus `json:"previous_status"`
}

type PredictionWindowPayload struct {
	MatchID  string `json:"match_id"`
	IsOpen   bool   `json:"is_open"`
	BallKey  string `json:"ball_key"`
	Innings  int    `json:"innings"`
	Over     int    `json:"over"`
	Ball     int    `json:"ball"`
	ClosesAt string `json:"closes_at"` // ISO-8601
}

type NotificationType string

const (
	NotifyPredictionResult NotificationType = "prediction_result"
	NotifyStreak           NotificationType = "streak"
	NotifyBadge            NotificationType = "badge"
	NotifyLeague           NotificationType = "league"
	NotifyMatchStart       NotificationType = "match_start"
	NotifyMatchEnd         NotificationType = "match_end"
	NotifyLeaderboard      NotificationType = "leaderboard"
)

type NotificationPayload struct {
	Type  NotificationType `json:"type"`
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Data  NotificationData `json:"data"`
}

// NotificationData carries the fields used for resolution matching.
// Anything else the server adds is kept in Extra.
type NotificationData struct {
	PredictionID  string         `json:"prediction_id,omitempty"`
	MatchID       string         `json:"match_id,omitempty"`
	IsCorrect     *bool          `json:"is_correct,omitempty"`
	Points        *float64       `json:"points,omitempty"`
	ActualOutcome string         `json:"actual_outcome,omitempty"`
	StreakCount   *int           `json:"streak_count,omitempty"`
	Extra         map[string]any `json:"-"`
}

type AICommentaryPayload struct {
	MatchID    string `json:"match_id"`
	BallKey    string `json:"ball_key"`
	Commentary string `json:"commentary"`
}

type OverSummaryPayload struct {
	MatchID string `json:"match_id"`
	Innings int    `json:"innings"`
	Over    int    `json:"over"`
	Summary string `json:"summary"`
}

type LeaderboardEntry struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	TotalPoints float64 `json:"total_points"`
}

type LeaderboardUpdatePayload struct {
	MatchID string             `json:"match_id"`
	Entries []LeaderboardEntry `json:"entries"`
}

// ConnectionStatusPayload signals transport connect/disconnect.
type ConnectionStatusPayload struct {
	Connected bool `json:"connected"`
}

// ReconnectedPayload is emitted each time the transport re-establishes
// after a drop. Generation increases by one per reconnect.
type ReconnectedPayload struct {
	Generation int64 `json:"generation"`
}

func (MatchStatePayload) eventType() EventType        { return EventMatchState }
func (BallUpdatePayload) eventType() EventType        { return EventBallUpdate }
func (ScoreUpdatePayload) eventType() EventType       { return EventScoreUpdate }
func (MatchStatusPayload) eventType() EventType       { return EventMatchStatus }
func (PredictionWindowPayload) eventType() EventType  { return EventPredictionWindow }
func (NotificationPayload) eventType() EventType      { return EventNotification }
func (AICommentaryPayload) eventType() EventType      { return EventAICommentary }
func (OverSummaryPayload) eventType() EventType       { return EventOverSummary }
func (LeaderboardUpdatePayload) eventType() EventType { return EventLeaderboardUpdate }
func (ConnectionStatusPayload) eventType() EventType  { return EventConnectionStatus }
func (ReconnectedPayload) eventType() EventType       { return EventReconnected }
