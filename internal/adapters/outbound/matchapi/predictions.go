package matchapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/charleschow/cricket-live/internal/telemetry"
)

type PredictionType string

const (
	TypeBall        PredictionType = "ball"
	TypeOver        PredictionType = "over"
	TypeMilestone   PredictionType = "milestone"
	TypeMatchWinner PredictionType = "match_winner"
)

type MilestoneType string

const (
	MilestoneBatter50  MilestoneType = "batter_50"
	MilestoneBatter100 MilestoneType = "batter_100"
	MilestoneBowler3W  MilestoneType = "bowler_3w"
	MilestoneBowler5W  MilestoneType = "bowler_5w"
	MilestoneTeam200   MilestoneType = "team_200"
)

// Prediction is the server's record. Resolution fields stay empty until the
// outcome is known; the result itself arrives as a notification.
type Prediction struct {
	ID                   string         `json:"id"`
	UserID               string         `json:"user_id"`
	MatchID              string         `json:"match_id"`
	Type                 PredictionType `json:"type"`
	Innings              int            `json:"innings"`
	Over                 *int           `json:"over,omitempty"`
	Ball                 *int           `json:"ball,omitempty"`
	BallKey              string         `json:"ball_key,omitempty"`
	Prediction           string         `json:"prediction"`
	ConfidenceBoost      bool           `json:"confidence_boost,omitempty"`
	IsResolved           bool           `json:"is_resolved"`
	IsCorrect            *bool          `json:"is_correct"`
	ActualOutcome        *string        `json:"actual_outcome"`
	BasePoints           float64        `json:"base_points"`
	StreakMultiplier     float64        `json:"streak_multiplier"`
	ConfidenceMultiplier float64        `json:"confidence_multiplier"`
	ClutchMultiplier     float64        `json:"clutch_multiplier"`
	TotalPoints          float64        `json:"total_points"`
	CreatedAt            string         `json:"created_at"`
	ResolvedAt           *string        `json:"resolved_at"`
}

// Summary is the per-match running tally kept by the server.
type Summary struct {
	MatchID                   string       `json:"match_id"`
	UserID                    string       `json:"user_id"`
	TotalPredictions          int          `json:"total_predictions"`
	CorrectPredictions        int          `json:"correct_predictions"`
	Accuracy                  float64      `json:"accuracy"`
	TotalPoints               float64      `json:"total_points"`
	CurrentStreak             int          `json:"current_streak"`
	BestStreak                int          `json:"best_streak"`
	ConfidenceBoostsUsed      int          `json:"confidence_boosts_used"`
	ConfidenceBoostsRemaining int          `json:"confidence_boosts_remaining"`
	Predictions               []Prediction `json:"predictions"`
}

type BallPredictionRequest struct {
	MatchID         string `json:"match_id"`
	Innings         int    `json:"innings"`
	Over            int    `json:"over"`
	Ball            int    `json:"ball"`
	Prediction      string `json:"prediction"`
	ConfidenceBoost bool   `json:"confidence_boost,omitempty"`
}

type OverPredictionRequest struct {
	MatchID       string `json:"match_id"`
	Innings       int    `json:"innings"`
	Over          int    `json:"over"`
	PredictedRuns int    `json:"predicted_runs"`
}

type MilestonePredictionRequest struct {
	MatchID       string        `json:"match_id"`
	MilestoneType MilestoneType `json:"milestone_type"`
	PlayerName    string        `json:"player_name"`
	WillAchieve   bool          `json:"will_achieve"`
}

type MatchWinnerRequest struct {
	MatchID         string `json:"match_id"`
	PredictedWinner string `json:"predicted_winner"`
}

type createResponse struct {
	Prediction Prediction `json:"prediction"`
}

func (c *Client) CreateBallPrediction(ctx context.Context, req BallPredictionRequest) (*Prediction, error) {
	return c.create(ctx, "/predictions/ball", req)
}

func (c *Client) CreateOverPrediction(ctx context.Context, req OverPredictionRequest) (*Prediction, error) {
	return c.create(ctx, "/predictions/over", req)
}

func (c *Client) CreateMilestonePrediction(ctx context.Context, req MilestonePredictionRequest) (*Prediction, error) {
	return c.create(ctx, "/predictions/milestone", req)
}

func (c *Client) CreateMatchWinnerPrediction(ctx context.Context, req MatchWinnerRequest) (*Prediction, error) {
	return c.create(ctx, "/predictions/match-winner", req)
}

func (c *Client) create(ctx context.Context, path string, req any) (*Prediction, error) {
	// one key per logical submission, reused by the post-refresh retry
	header := http.Header{}
	header.Set("Idempotency-Key", uuid.NewString())

	var resp createResponse
	if err := c.post(ctx, path, req, header, &resp); err != nil {
		telemetry.Metrics.SubmissionRejects.Inc()
		return nil, fmt.Errorf("post %s: %w", path, err)
	}

	telemetry.Metrics.PredictionsSubmitted.Inc()
	telemetry.Infof("matchapi: prediction %s created type=%s match=%s", resp.Prediction.ID, resp.Prediction.Type, resp.Prediction.MatchID)
	return &resp.Prediction, nil
}

// GetSummary fetches the user's prediction summary for one match.
func (c *Client) GetSummary(ctx context.Context, matchID string) (*Summary, error) {
	var s Summary
	if err := c.get(ctx, "/predictions/match/"+url.PathEscape(matchID)+"/summary", &s); err != nil {
		return nil, fmt.Errorf("get summary %s: %w", matchID, err)
	}
	return &s, nil
}
