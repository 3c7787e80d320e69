package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/charleschow/cricket-live/internal/adapters/inbound/match_ws"
	"github.com/charleschow/cricket-live/internal/adapters/outbound/matchapi"
	"github.com/charleschow/cricket-live/internal/config"
	"github.com/charleschow/cricket-live/internal/core/display"
	"github.com/charleschow/cricket-live/internal/core/prediction"
	"github.com/charleschow/cricket-live/internal/core/room"
	"github.com/charleschow/cricket-live/internal/core/scoring"
	"github.com/charleschow/cricket-live/internal/core/state/match"
	"github.com/charleschow/cricket-live/internal/core/teams"
	"github.com/charleschow/cricket-live/internal/core/winprob"
	"github.com/charleschow/cricket-live/internal/events"
	"github.com/charleschow/cricket-live/internal/telemetry"
)

// Engine holds the wired components of one live client.
type Engine struct {
	Bus       *events.Bus
	Session   *match_ws.Session
	API       *matchapi.Client
	Store     *match.Store
	Window    *prediction.Controller
	Countdown *prediction.Countdown
	Inbox     *prediction.Inbox
	Submitter *prediction.Submitter
	Room      *room.Controller
	Display   *display.Observer

	journal *match_ws.Journal
	cfg     *config.Config
}

// Build wires every component from cfg. out receives the scoreboard; nil
// means stderr.
func Build(cfg *config.Config, clock clockwork.Clock, out io.Writer) (*Engine, error) {
	if cfg.WSURL == "" || cfg.APIURL == "" {
		return nil, errors.New("process: MATCH_WS_URL and MATCH_API_URL are required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	e := &Engine{cfg: cfg, Bus: events.NewBus()}

	// ── Raw frame journal ─────────────────────────────────────
	if cfg.JournalPath != "" {
		j, err := match_ws.OpenJournal(cfg.JournalPath)
		if err != nil {
			telemetry.Warnf("Frame journal disabled: %v", err)
		} else {
			e.journal = j
		}
	}

	// ── Team registry ─────────────────────────────────────────
	var entries []config.TeamEntry
	if cfg.TeamsConfigPath != "" {
		f, err := config.LoadTeams(cfg.TeamsConfigPath)
		if err != nil {
			telemetry.Warnf("Team registry not loaded, falling back to exact names: %v", err)
		} else {
			entries = f.Teams
			telemetry.Infof("Team registry: %d teams", len(entries))
		}
	}
	registry := teams.NewRegistry(entries)

	// ── Transport + REST ──────────────────────────────────────
	e.Session = match_ws.NewSession(match_ws.Config{
		URL:        cfg.WSURL,
		MinBackoff: cfg.ReconnectMin,
		MaxBackoff: cfg.ReconnectMax,
	}, e.Bus, e.journal)

	e.API = matchapi.NewClient(cfg.APIURL, cfg.APIRatePerSec, cfg.AccessToken, cfg.RefreshToken)
	e.API.OnTokenRefresh(e.Session.RefreshAuth)

	// ── Match state + prediction window ──────────────────────
	e.Store = match.NewStore(clock)
	e.Window = prediction.NewController(clock)
	e.Inbox = prediction.NewInbox(clock, e.Window)
	e.Submitter = prediction.NewSubmitter(e.API, e.Window)

	e.Display = display.NewObserver(out, clock, e.Store, e.Window, winprob.NewEstimator(registry), scoring.Default())
	e.Countdown = prediction.NewCountdown(clock, cfg.CountdownTick, e.Display.OnCountdown)
	e.Window.AttachCountdown(e.Countdown)

	// ── Room ──────────────────────────────────────────────────
	e.Room = room.New(room.Deps{
		Transport:     e.Session,
		Bus:           e.Bus,
		Fetcher:       e.API,
		Store:         e.Store,
		Window:        e.Window,
		Inbox:         e.Inbox,
		Summary:       e.Submitter,
		Observers:     []room.Observer{e.Display},
		ResyncTimeout: cfg.ResyncTimeout,
	})

	return e, nil
}

// Start connects the session and, if configured, follows the startup match.
func (e *Engine) Start(ctx context.Context) {
	e.Session.Connect(ctx, e.API.AccessToken())
	if e.cfg.MatchID == "" {
		telemetry.Infof("No MATCH_ID set, type 'join <match_id>' to follow a match")
		return
	}
	if _, err := e.Room.Subscribe(ctx, e.cfg.MatchID); err != nil {
		telemetry.Warnf("Subscribe %s: %v", e.cfg.MatchID, err)
	}
}

// Close leaves the match, drops the connection and flushes the journal.
func (e *Engine) Close() {
	e.Room.Unsubscribe()
	e.Countdown.Stop()
	e.Session.Disconnect()
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			telemetry.Warnf("Frame journal close: %v", err)
		}
	}
}

// Run boots the live client, reads console commands from stdin and blocks
// until SIGINT/SIGTERM or end of input.
func Run() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting cricket live client  ws=%s  api=%s", cfg.WSURL, cfg.APIURL)

	e, err := Build(cfg, nil, os.Stderr)
	if err != nil {
		telemetry.Errorf("Build: %v", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)

	consoleDone := make(chan struct{})
	go func() {
		defer close(consoleDone)
		NewConsole(e, os.Stdout).Run(ctx, os.Stdin)
	}()

	// ── Shutdown ───────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-consoleDone:
	}

	telemetry.Infof("Shutting down...")
	cancel()
	e.Close()

	telemetry.Infof("Shutdown complete  frames=%d  applied=%d  discarded=%d  dupes=%d  resyncs=%d/%d  predictions=%d  rejects=%d  resolved=%d  api_p50=%s",
		telemetry.Metrics.WSFramesReceived.Value(),
		telemetry.Metrics.EventsApplied.Value(),
		telemetry.Metrics.EventsDiscarded.Value(),
		telemetry.Metrics.DuplicateBalls.Value(),
		telemetry.Metrics.Resyncs.Value()-telemetry.Metrics.ResyncFailures.Value(),
		telemetry.Metrics.Resyncs.Value(),
		telemetry.Metrics.PredictionsSubmitted.Value(),
		telemetry.Metrics.SubmissionRejects.Value(),
		telemetry.Metrics.ResolutionsApplied.Value(),
		telemetry.Metrics.APILatency.P50(),
	)
}
