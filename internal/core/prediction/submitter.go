package prediction

import (
	"context"
	"fmt"

	"github.com/charleschow/cricket-live/internal/adapters/outbound/matchapi"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

// API is the slice of the REST client the submitter needs.
type API interface {
	CreateBallPrediction(ctx context.Context, req matchapi.BallPredictionRequest) (*matchapi.Prediction, error)
	CreateOverPrediction(ctx context.Context, req matchapi.OverPredictionRequest) (*matchapi.Prediction, error)
	CreateMilestonePrediction(ctx context.Context, req matchapi.MilestonePredictionRequest) (*matchapi.Prediction, error)
	CreateMatchWinnerPrediction(ctx context.Context, req matchapi.MatchWinnerRequest) (*matchapi.Prediction, error)
	GetSummary(ctx context.Context, matchID string) (*matchapi.Summary, error)
}

// Submitter sends predictions for the controller's match and feeds the
// server's answers back into it.
type Submitter struct {
	api  API
	ctrl *Controller
}

func NewSubmitter(api API, ctrl *Controller) *Submitter {
	return &Submitter{api: api, ctrl: ctrl}
}

// SubmitBall sends the current selection for the open window. Guard
// failures return before any request is made. A window close that lands
// while the request is in flight does not cancel it; the result is matched
// later by prediction id.
func (s *Submitter) SubmitBall(ctx context.Context) (*matchapi.Prediction, error) {
	t, err := s.ctrl.BeginSubmit()
	if err != nil {
		return nil, err
	}

	p, err := s.api.CreateBallPrediction(ctx, matchapi.BallPredictionRequest{
		MatchID:         t.MatchID,
		Innings:         t.Innings,
		Over:            t.Over,
		Ball:            t.Ball,
		Prediction:      t.Outcome,
		ConfidenceBoost: t.Boost,
	})
	id := ""
	if p != nil {
		id = p.ID
	}
	s.ctrl.CompleteSubmit(t, id, err)
	if err != nil {
		return nil, err
	}

	if t.Boost {
		if serr := s.SyncSummary(ctx); serr != nil {
			telemetry.Warnf("prediction[%s]: summary refresh after boost failed: %v", t.MatchID, serr)
		}
	}
	return p, nil
}

func (s *Submitter) SubmitOver(ctx context.Context, innings, over, predictedRuns int) (*matchapi.Prediction, error) {
	matchID, err := s.scoped()
	if err != nil {
		return nil, err
	}
	return s.track(matchID)(s.api.CreateOverPrediction(ctx, matchapi.OverPredictionRequest{
		MatchID: matchID, Innings: innings, Over: over, PredictedRuns: predictedRuns,
	}))
}

func (s *Submitter) SubmitMilestone(ctx context.Context, kind matchapi.MilestoneType, player string, willAchieve bool) (*matchapi.Prediction, error) {
	matchID, err := s.scoped()
	if err != nil {
		return nil, err
	}
	return s.track(matchID)(s.api.CreateMilestonePrediction(ctx, matchapi.MilestonePredictionRequest{
		MatchID: matchID, MilestoneType: kind, PlayerName: player, WillAchieve: willAchieve,
	}))
}

func (s *Submitter) SubmitMatchWinner(ctx context.Context, team string) (*matchapi.Prediction, error) {
	matchID, err := s.scoped()
	if err != nil {
		return nil, err
	}
	return s.track(matchID)(s.api.CreateMatchWinnerPrediction(ctx, matchapi.MatchWinnerRequest{
		MatchID: matchID, PredictedWinner: team,
	}))
}

// SyncSummary pulls the server's tally for the scoped match.
func (s *Submitter) SyncSummary(ctx context.Context) error {
	matchID, err := s.scoped()
	if err != nil {
		return err
	}
	sum, err := s.api.GetSummary(ctx, matchID)
	if err != nil {
		return fmt.Errorf("sync summary: %w", err)
	}
	if s.ctrl.MatchID() != matchID {
		return nil
	}
	s.ctrl.SyncSummary(Summary{
		CurrentStreak:   sum.CurrentStreak,
		TotalPoints:     sum.TotalPoints,
		BoostsUsed:      sum.ConfidenceBoostsUsed,
		BoostsRemaining: sum.ConfidenceBoostsRemaining,
	})
	return nil
}

func (s *Submitter) scoped() (string, error) {
	id := s.ctrl.MatchID()
	if id == "" {
		return "", ErrNotSubscribed
	}
	return id, nil
}

// track wraps a create call so the new prediction id is attributed to
// matchID for result matching.
func (s *Submitter) track(matchID string) func(*matchapi.Prediction, error) (*matchapi.Prediction, error) {
	return func(p *matchapi.Prediction, err error) (*matchapi.Prediction, error) {
		if err == nil && p != nil {
			s.ctrl.Track(matchID, p.ID)
		}
		return p, err
	}
}
