// match_ws_mock simulates the live match server locally. It serves the
// websocket feed, the REST endpoints the engine calls, and plays a T20
// match ball by ball: each delivery opens a prediction window, closes it,
// pushes the ball and score, then resolves any predictions made on it.
//
// Usage:
//
//	go run cmd/match_ws_mock/main.go
//
// Then set these env vars before running cmd/main.go:
//
//	MATCH_WS_URL=ws://localhost:9300/ws
//	MATCH_API_URL=http://localhost:9300/api/v1
//	MATCH_ID=MOCK-C1
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/charleschow/cricket-live/internal/adapters/inbound/match_ws"
	"github.com/charleschow/cricket-live/internal/adapters/outbound/matchapi"
	"github.com/charleschow/cricket-live/internal/core/state/match"
	"github.com/charleschow/cricket-live/internal/events"
)

const (
	listenAddr = ":9300"
	mockID     = "MOCK-C1"
	windowFor  = 8 * time.Second
	ballGap    = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// client is one websocket connection and the match it joined.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	matchID string
}

func (c *client) send(event string, data any) {
	frame, err := match_ws.EncodeFrame(event, data)
	if err != nil {
		return
	}
	c.sendRaw(frame)
}

func (c *client) sendRaw(frame []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.WriteMessage(websocket.TextMessage, frame)
}

type pendingPrediction struct {
	id      string
	outcome string
	boost   bool
}

type mockServer struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	match   events.RawMatch
	pending map[string][]pendingPrediction // ball key -> predictions
	made    map[string]bool                // ball key -> already predicted
	summary matchapi.Summary
	history []matchapi.Prediction
}

func newMockServer() *mockServer {
	one, zero := 1, 0
	return &mockServer{
		clients: make(map[*client]struct{}),
		pending: make(map[string][]pendingPrediction),
		made:    make(map[string]bool),
		match: events.RawMatch{
			ID:             mockID,
			Name:           "India vs Australia, 1st T20I",
			MatchType:      "t20",
			Status:         events.StatusLive1st,
			Venue:          "Wankhede Stadium, Mumbai",
			Date:           time.Now().Format("2006-01-02"),
			Team1:          "India",
			Team2:          "Australia",
			Team1Code:      "IND",
			Team2Code:      "AUS",
			Innings:        []events.RawInnings{{InningsNumber: 1, BattingTeam: "India", BowlingTeam: "Australia"}},
			BallLog:        []events.RawBall{},
			CurrentInnings: &one,
			CurrentOver:    &zero,
			CurrentBall:    &zero,
			UpdatedAt:      time.Now().UTC().Format(time.RFC3339),
		},
		summary: matchapi.Summary{MatchID: mockID, UserID: "mock-user", ConfidenceBoostsRemaining: 3},
	}
}

func main() {
	s := newMockServer()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/v1/matches/", s.handleMatch)
	mux.HandleFunc("/api/v1/predictions/ball", s.handleBallPrediction)
	mux.HandleFunc("/api/v1/predictions/match/", s.handleSummary)
	mux.HandleFunc("/api/v1/auth/refresh", handleRefresh)

	fmt.Fprintf(os.Stderr, "Match WS Mock listening on %s\n", listenAddr)
	fmt.Fprintf(os.Stderr, "  WS:   ws://localhost%s/ws\n", listenAddr)
	fmt.Fprintf(os.Stderr, "  API:  http://localhost%s/api/v1\n", listenAddr)
	fmt.Fprintf(os.Stderr, "  Match: %s\n", mockID)

	go s.play()

	if err := http.ListenAndServe(listenAddr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func (s *mockServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	fmt.Fprintf(os.Stderr, "client connected (auth=%t)\n", r.Header.Get("Authorization") != "")

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		cmd, err := match_ws.DecodeCommand(raw)
		if err != nil {
			continue
		}
		switch cmd.Name {
		case events.CmdJoinMatch:
			s.mu.Lock()
			c.matchID = cmd.MatchID
			frame, err := match_ws.EncodeFrame(string(events.EventMatchState), s.match)
			s.mu.Unlock()
			fmt.Fprintf(os.Stderr, "client joined %s\n", cmd.MatchID)
			if cmd.MatchID == mockID && err == nil {
				c.sendRaw(frame)
			}
		case events.CmdLeaveMatch:
			s.mu.Lock()
			c.matchID = ""
			s.mu.Unlock()
		}
	}
}

func (s *mockServer) broadcast(event events.EventType, data any) {
	s.mu.Lock()
	var targets []*client
	for c := range s.clients {
		if c.matchID == mockID {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()
	for _, c := range targets {
		c.send(string(event), data)
	}
}

func (s *mockServer) handleMatch(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/matches/")
	if id != mockID {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Match not found"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.match)
}

func (s *mockServer) handleBallPrediction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req matchapi.BallPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": []map[string]string{{"msg": err.Error()}}})
		return
	}
	key := fmt.Sprintf("%d.%d.%d", req.Innings, req.Over, req.Ball)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.match.PredictionWindowOpen {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Prediction window is closed"})
		return
	}
	if s.made[key] {
		writeJSON(w, http.StatusConflict, map[string]string{"detail": "Prediction already exists for this ball"})
		return
	}
	if req.ConfidenceBoost && s.summary.ConfidenceBoostsRemaining == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "No confidence boosts remaining"})
		return
	}
	if req.ConfidenceBoost {
		s.summary.ConfidenceBoostsUsed++
		s.summary.ConfidenceBoostsRemaining--
	}
	s.made[key] = true

	p := matchapi.Prediction{
		ID:              uuid.NewString(),
		UserID:          s.summary.UserID,
		MatchID:         req.MatchID,
		Type:            matchapi.TypeBall,
		Innings:         req.Innings,
		Over:            &req.Over,
		Ball:            &req.Ball,
		BallKey:         key,
		Prediction:      req.Prediction,
		ConfidenceBoost: req.ConfidenceBoost,
		CreatedAt:       time.Now().UTC().Format(time.RFC3339),
	}
	s.pending[key] = append(s.pending[key], pendingPrediction{id: p.ID, outcome: req.Prediction, boost: req.ConfidenceBoost})
	s.summary.TotalPredictions++
	s.history = append(s.history, p)
	writeJSON(w, http.StatusCreated, map[string]any{"prediction": p})
}

func (s *mockServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sum := s.summary
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, sum)
}

func handleRefresh(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  "mock-access-" + fmt.Sprint(time.Now().Unix()),
		"refresh_token": "mock-refresh-" + fmt.Sprint(time.Now().Unix()),
		"token_type":    "bearer",
		"expires_in":    1800,
	})
}

// play bowls one delivery per cycle until both innings are done.
func (s *mockServer) play() {
	time.Sleep(3 * time.Second)
	for {
		s.mu.Lock()
		inn := *s.match.CurrentInnings
		over, ball := *s.match.CurrentOver, *s.match.CurrentBall+1
		s.mu.Unlock()

		key := fmt.Sprintf("%d.%d.%d", inn, over, ball)
		closes := time.Now().Add(windowFor)
		s.setWindow(true)
		s.broadcast(events.EventPredictionWindow, events.PredictionWindowPayload{
			MatchID: mockID, IsOpen: true, BallKey: key, Innings: inn, Over: over, Ball: ball,
			ClosesAt: closes.UTC().Format(time.RFC3339Nano),
		})
		time.Sleep(windowFor)
		s.setWindow(false)
		s.broadcast(events.EventPredictionWindow, events.PredictionWindowPayload{MatchID: mockID, IsOpen: false, BallKey: key})

		if done := s.bowl(inn, over, ball, key); done {
			fmt.Fprintf(os.Stderr, "match complete\n")
			return
		}
		time.Sleep(ballGap)
	}
}

func (s *mockServer) setWindow(open bool) {
	s.mu.Lock()
	s.match.PredictionWindowOpen = open
	s.mu.Unlock()
}

var outcomeWeights = []struct {
	outcome string
	runs    int
	weight  float64
}{
	{"dot", 0, 0.35}, {"1", 1, 0.30}, {"2", 2, 0.10}, {"3", 3, 0.02},
	{"4", 4, 0.12}, {"6", 6, 0.06}, {"wicket", 0, 0.05},
}

func randomOutcome() (string, int) {
	x := rand.Float64()
	for _, o := range outcomeWeights {
		if x < o.weight {
			return o.outcome, o.runs
		}
		x -= o.weight
	}
	return "dot", 0
}

// bowl applies one delivery and pushes everything it causes. It reports
// whether the match is over.
func (s *mockServer) bowl(inn, over, ball int, key string) bool {
	outcome, runs := randomOutcome()

	s.mu.Lock()
	cur := &s.match.Innings[len(s.match.Innings)-1]
	cur.Score += runs
	if outcome == "wicket" {
		cur.Wickets++
	}
	cur.Overs = float64(over) + float64(ball)/10
	if ball == 6 {
		cur.Overs = float64(over + 1)
	}
	legal := match.OversToBalls(cur.Overs)
	if legal > 0 {
		cur.RunRate = float64(cur.Score) * 6 / float64(legal)
	}
	batter, bowler := batterFor(cur.BattingTeam, cur.Wickets), bowlerFor(cur.BowlingTeam, over)
	s.match.BallLog = append(s.match.BallLog, events.RawBall{
		BallKey: key, Innings: inn, Over: over, Ball: ball,
		Batter: batter, Bowler: bowler, Outcome: outcome,
		BatterRuns: runs, TotalRuns: runs, IsWicket: outcome == "wicket",
	})
	nextOver, nextBall := over, ball
	if ball == 6 {
		nextOver, nextBall = over+1, 0
	}
	*s.match.CurrentOver, *s.match.CurrentBall = nextOver, nextBall
	s.match.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	inningsDone := cur.Wickets >= 10 || nextOver >= 20 || (cur.Target != nil && cur.Score >= *cur.Target)
	update := events.BallUpdatePayload{
		MatchID: mockID, BallKey: key, Innings: inn, Over: over, Ball: ball,
		Batter: batter, Bowler: bowler, Outcome: outcome, BatterRuns: runs, TotalRuns: runs,
		IsWicket: outcome == "wicket", Score: cur.Score, Wickets: cur.Wickets, Overs: cur.Overs, RunRate: cur.RunRate,
	}
	score := events.ScoreUpdatePayload{
		MatchID: mockID, Innings: inn, Score: cur.Score, Wickets: cur.Wickets, Overs: cur.Overs,
		RunRate: cur.RunRate, BattingTeam: cur.BattingTeam,
	}
	results := s.resolveLocked(key, outcome)
	s.mu.Unlock()

	s.broadcast(events.EventBallUpdate, update)
	s.broadcast(events.EventScoreUpdate, score)
	s.broadcast(events.EventAICommentary, events.AICommentaryPayload{
		MatchID: mockID, BallKey: key, Commentary: commentaryFor(bowler, batter, outcome),
	})
	for _, n := range results {
		s.broadcast(events.EventNotification, n)
	}
	if ball == 6 {
		s.broadcast(events.EventOverSummary, events.OverSummaryPayload{
			MatchID: mockID, Innings: inn, Over: over,
			Summary: fmt.Sprintf("End of over %d: %s %d/%d", over+1, score.BattingTeam, score.Score, score.Wickets),
		})
	}
	if inningsDone {
		return s.endInnings(inn)
	}
	return false
}

func (s *mockServer) resolveLocked(key, actual string) []events.NotificationPayload {
	var out []events.NotificationPayload
	for _, p := range s.pending[key] {
		correct := p.outcome == actual
		var points float64
		if correct {
			s.summary.CurrentStreak++
			s.summary.CorrectPredictions++
			mult := 1.0
			if p.boost {
				mult = 2
			}
			points = 10 * mult
			s.summary.TotalPoints += points
		} else {
			s.summary.CurrentStreak = 0
		}
		if s.summary.CurrentStreak > s.summary.BestStreak {
			s.summary.BestStreak = s.summary.CurrentStreak
		}
		streak := s.summary.CurrentStreak
		out = append(out, events.NotificationPayload{
			Type:  events.NotifyPredictionResult,
			Title: "Prediction result",
			Body:  fmt.Sprintf("Ball %s was %s", key, actual),
			Data: events.NotificationData{
				PredictionID: p.id, MatchID: mockID, IsCorrect: &correct, Points: &points,
				ActualOutcome: actual, StreakCount: &streak,
			},
		})
	}
	delete(s.pending, key)
	return out
}

func (s *mockServer) endInnings(inn int) bool {
	s.mu.Lock()
	first := s.match.Innings[0]
	if inn == 1 {
		target := first.Score + 1
		s.match.Status = events.StatusLive2nd
		s.match.Innings = append(s.match.Innings, events.RawInnings{
			InningsNumber: 2, BattingTeam: first.BowlingTeam, BowlingTeam: first.BattingTeam, Target: &target,
		})
		two, zero := 2, 0
		s.match.CurrentInnings, s.match.CurrentOver, s.match.CurrentBall = &two, &zero, &zero
		s.mu.Unlock()
		s.broadcast(events.EventMatchStatus, events.MatchStatusPayload{
			MatchID: mockID, Status: events.StatusLive2nd, PreviousStatus: events.StatusLive1st,
		})
		return false
	}

	second := s.match.Innings[1]
	winner := first.BattingTeam
	text := fmt.Sprintf("%s won by %d runs", winner, first.Score-second.Score)
	if second.Score > first.Score {
		winner = second.BattingTeam
		text = fmt.Sprintf("%s won by %d wickets", winner, 10-second.Wickets)
	}
	s.match.Status = events.StatusCompleted
	s.match.Winner = &winner
	s.match.ResultText = &text
	s.mu.Unlock()
	s.broadcast(events.EventMatchStatus, events.MatchStatusPayload{
		MatchID: mockID, Status: events.StatusCompleted, PreviousStatus: events.StatusLive2nd,
	})
	return true
}

func batterFor(team string, wickets int) string {
	return fmt.Sprintf("%s Batter %d", team, wickets+1)
}

func bowlerFor(team string, over int) string {
	return fmt.Sprintf("%s Bowler %d", team, over%5+1)
}

func commentaryFor(bowler, batter, outcome string) string {
	switch outcome {
	case "wicket":
		return fmt.Sprintf("%s strikes! %s has to go.", bowler, batter)
	case "4":
		return fmt.Sprintf("%s finds the gap, four runs.", batter)
	case "6":
		return fmt.Sprintf("%s launches %s into the stands!", batter, bowler)
	case "dot":
		return fmt.Sprintf("%s beats the bat.", bowler)
	}
	return fmt.Sprintf("%s works it away for %s.", batter, outcome)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
