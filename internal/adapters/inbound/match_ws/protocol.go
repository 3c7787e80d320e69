package match_ws

import (
	"encoding/json"
	"fmt"

	"github.com/charleschow/cricket-live/internal/events"
)

// Frame is the wire format in both directions: an event name plus its data.
//
//	{"event":"ball_update","data":{"match_id":"m1","ball_key":"1.16.3",...}}
//	{"event":"join_match","data":{"match_id":"m1"}}
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type matchRef struct {
	MatchID string `json:"match_id"`
}

// EncodeCommand serializes a join/leave command.
func EncodeCommand(cmd events.Command) ([]byte, error) {
	return EncodeFrame(cmd.Name, matchRef{MatchID: cmd.MatchID})
}

// EncodeFrame serializes any event name and payload into a Frame.
func EncodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// DecodeCommand parses a client command frame. Used by servers and fakes.
func DecodeCommand(raw []byte) (events.Command, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return events.Command{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	var ref matchRef
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &ref); err != nil {
			return events.Command{}, fmt.Errorf("unmarshal %s: %w", f.Event, err)
		}
	}
	return events.Command{Name: f.Event, MatchID: ref.MatchID}, nil
}

// DecodeFrame parses a server push into a typed Event.
func DecodeFrame(raw []byte) (events.Event, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal frame: %w", err)
	}

	var (
		p       events.Payload
		matchID string
	)
	switch events.EventType(f.Event) {
	case events.EventMatchState:
		var m events.RawMatch
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return events.Event{}, fmt.Errorf("unmarshal match_state: %w", err)
		}
		p, matchID = events.MatchStatePayload{Match: m}, m.ID
	case events.EventBallUpdate:
		var b events.BallUpdatePayload
		if err := json.Unmarshal(f.Data, &b); err != nil {
			return events.Event{}, fmt.Errorf("unmarshal ball_update: %w", err)
		}
		p, matchID = b, b.MatchID
	case events.EventScoreUpdate:
		var s events.ScoreUpdatePayload
		if err := json.Unmarshal(f.Data, &s); err != nil {
			return events.Event{}, fmt.Errorf("unmarshal score_update: %w", err)
		}
		p, matchID = s, s.MatchID
	case events.EventMatchStatus:
		var s events.MatchStatusPayload
		if err := json.Unmarshal(f.Data, &s); err != nil {
			return events.Event{}, fmt.Errorf("unmarshal match_status: %w", err)
		}
		p, matchID = s, s.MatchID
	case events.EventPredictionWindow:
		var w events.PredictionWindowPayload
		if err := json.Unmarshal(f.Data, &w); err != nil {
			return events.Event{}, fmt.Errorf("unmarshal prediction_window: %w", err)
		}
		p, matchID = w, w.MatchID
	case events.EventNotification:
		n, err := decodeNotification(f.Data)
		if err != nil {
			return events.Event{}, err
		}
		p, matchID = n, n.Data.MatchID
	case events.EventAICommentary:
		var c events.AICommentaryPayload
		if err := json.Unmarshal(f.Data, &c); err != nil {
			return events.Event{}, fmt.Errorf("unmarshal ai_commentary: %w", err)
		}
		p, matchID = c, c.MatchID
	case events.EventOverSummary:
		var o events.OverSummaryPayload
		if err := json.Unmarshal(f.Data, &o); err != nil {
			return events.Event{}, fmt.Errorf("unmarshal over_summary: %w", err)
		}
		p, matchID = o, o.MatchID
	case events.EventLeaderboardUpdate:
		var l events.LeaderboardUpdatePayload
		if err := json.Unmarshal(f.Data, &l); err != nil {
			return events.Event{}, fmt.Errorf("unmarshal leaderboard_update: %w", err)
		}
		p, matchID = l, l.MatchID
	default:
		return events.Event{}, fmt.Errorf("unknown event type: %q", f.Event)
	}

	return events.New(matchID, p), nil
}

func decodeNotification(data json.RawMessage) (events.NotificationPayload, error) {
	var n events.NotificationPayload
	if err := json.Unmarshal(data, &n); err != nil {
		return n, fmt.Errorf("unmarshal notification: %w", err)
	}

	var envelope struct {
		Data map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		for _, k := range []string{"prediction_id", "match_id", "is_correct", "points", "actual_outcome", "streak_count"} {
			delete(envelope.Data, k)
		}
		if len(envelope.Data) > 0 {
			n.Data.Extra = envelope.Data
		}
	}
	return n, nil
}
