package events

import "time"

// Event is the envelope that flows through the event bus.
// Every server push (ball, score, window, notification) and every local
// transport signal (reconnect, connection status) is wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	MatchID   string
	Timestamp time.Time
	Payload   Payload
}

type EventType string

const (
	// Server → client pushes
	EventMatchState        EventType = "match_state"
	EventBallUpdate        EventType = "ball_update"
	EventScoreUpdate       EventType = "score_update"
	EventMatchStatus       EventType = "match_status"
	EventPredictionWindow  EventType = "prediction_window"
	EventNotification      EventType = "notification"
	EventAICommentary      EventType = "ai_commentary"
	EventOverSummary       EventType = "over_summary"
	EventLeaderboardUpdate EventType = "leaderboard_update"

	// Local transport signals
	EventConnectionStatus EventType = "connection_status"
	EventReconnected      EventType = "reconnected"
)

// Payload is implemented by every event kind. The unexported method keeps
// the set closed so consumers can switch over it exhaustively.
type Payload interface {
	eventType() EventType
}

// New wraps a payload in an envelope stamped with the payload's type.
func New(matchID string, p Payload) Event {
	return Event{
		Type:      p.eventType(),
		MatchID:   matchID,
		Timestamp: time.Now(),
		Payload:   p,
	}
}

// Command is a client → server request.
type Command struct {
	Name    string
	MatchID string
}

const (
	CmdJoinMatch  = "join_match"
	CmdLeaveMatch = "leave_match"
)

func JoinMatch(matchID string) Command  { return Command{Name: CmdJoinMatch, MatchID: matchID} }
func LeaveMatch(matchID string) Command { return Command{Name: CmdLeaveMatch, MatchID: matchID} }
