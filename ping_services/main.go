// Ping the match server to measure network latency.
//
// Times GetMatch against the REST API through the same client the engine
// uses and, with --ws, ping/pong round-trips on the live feed.
//
// Usage:
//
//	MATCH_ID=m1 go run ./ping_services          # 20 fetches
//	MATCH_ID=m1 go run ./ping_services -n 50    # 50 fetches
//	MATCH_ID=m1 go run ./ping_services --ws     # also websocket ping/pong
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/charleschow/cricket-live/internal/adapters/outbound/matchapi"
	"github.com/charleschow/cricket-live/internal/config"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

func main() {
	n := flag.Int("n", 20, "Number of samples per endpoint")
	ws := flag.Bool("ws", false, "Also measure websocket ping/pong latency")
	flag.Parse()

	cfg := config.Load()
	if cfg.MatchID == "" {
		fmt.Fprintln(os.Stderr, "MATCH_ID is required")
		os.Exit(2)
	}

	api := matchapi.NewClient(cfg.APIURL, *n, cfg.AccessToken, cfg.RefreshToken)
	fmt.Printf("\n  GET %s/matches/%s  x%d\n", cfg.APIURL, cfg.MatchID, *n)
	for i := 1; i <= *n; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		m, err := api.GetMatch(ctx, cfg.MatchID)
		cancel()
		if err != nil {
			fmt.Printf("  [%d] FAILED: %v\n", i, err)
			continue
		}
		if i == 1 {
			fmt.Printf("  %s (%s)\n", m.Name, m.Status)
		}
	}
	printStats("Match API", telemetry.Metrics.APILatency)

	if *ws {
		fmt.Printf("\n  WS ping/pong %s  x%d\n", cfg.WSURL, *n)
		printStats("Match WebSocket", measureWS(cfg.WSURL, cfg.AccessToken, *n))
	}
	fmt.Println()
}

func measureWS(url, token string, n int) *telemetry.LatencyTracker {
	lt := telemetry.NewLatencyTracker(n)
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		fmt.Printf("  dial failed: %v\n", err)
		return lt
	}
	defer conn.Close()

	pong := make(chan struct{}, 1)
	conn.SetPongHandler(func(string) error {
		select {
		case pong <- struct{}{}:
		default:
		}
		return nil
	})
	// pongs are only handled while a read is pending
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < n; i++ {
		start := time.Now()
		if err := conn.WriteControl(websocket.PingMessage, nil, start.Add(5*time.Second)); err != nil {
			fmt.Printf("  ping failed: %v\n", err)
			break
		}
		select {
		case <-pong:
			lt.Record(time.Since(start))
		case <-time.After(5 * time.Second):
			fmt.Println("  pong timeout")
			return lt
		}
	}
	return lt
}

func printStats(label string, lt *telemetry.LatencyTracker) {
	if lt.Count() == 0 {
		fmt.Printf("  %s: no samples\n", label)
		return
	}
	fmt.Printf("  %s (%d): min=%s p50=%s p95=%s p99=%s max=%s\n",
		label, lt.Count(), lt.Min(), lt.P50(), lt.P95(), lt.P99(), lt.Max())
}
