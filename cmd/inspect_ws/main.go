package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/charleschow/cricket-live/internal/adapters/inbound/match_ws"
)

func main() {
	contains := flag.String("q", "", "substring to search for in the raw frame")
	matchID := flag.String("match", "", "filter by match id")
	event := flag.String("event", "", "filter by event name (ball_update, prediction_window, ...)")
	n := flag.Int("n", 10, "max results to return")
	pretty := flag.Bool("pretty", false, "pretty-print JSON")
	dbPath := flag.String("db", "data/match_ws.db", "path to frame journal")
	flag.Parse()

	if *contains == "" && *matchID == "" && *event == "" {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/inspect_ws [-match <id>] [-event <name>] [-q <text>] [-n 10] [-pretty]")
		os.Exit(1)
	}

	frames, err := match_ws.ReadJournal(*dbPath, match_ws.JournalFilter{
		MatchID:  *matchID,
		Event:    *event,
		Contains: *contains,
		Limit:    *n,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	for _, fr := range frames {
		raw := string(fr.Raw)
		if *pretty {
			var buf bytes.Buffer
			if err := json.Indent(&buf, fr.Raw, "", "  "); err == nil {
				raw = buf.String()
			}
		}
		fmt.Printf("--- id=%d session=%.8s event=%s match=%s received=%s bytes=%d ---\n%s\n\n",
			fr.ID, fr.SessionID, fr.Event, fr.MatchID, fr.Received, fr.ByteSize, raw)
	}
	if len(frames) == 0 {
		fmt.Println("(no frames found)")
	} else {
		fmt.Printf("(%d results)\n", len(frames))
	}
}
