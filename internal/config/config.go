package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Live feed
	WSURL string

	// REST API (resync fetch, prediction submission)
	APIURL        string
	APIRatePerSec int

	// Credentials issued by the auth service
	AccessToken  string
	RefreshToken string

	// Match to follow on startup
	MatchID string

	// Team identity registry (YAML)
	TeamsConfigPath string

	// Raw frame journal, empty disables it
	JournalPath string

	// Reconnect backoff
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Resync fetch after reconnect
	ResyncTimeout time.Duration

	// Countdown recompute interval
	CountdownTick time.Duration

	// Telemetry
	LogLevel string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		WSURL: envStr("MATCH_WS_URL", "ws://localhost:8000/ws"),

		APIURL:        envStr("MATCH_API_URL", "http://localhost:8000/api/v1"),
		APIRatePerSec: envInt("API_RATE_PER_SEC", 10),

		AccessToken:  envStr("MATCH_ACCESS_TOKEN", ""),
		RefreshToken: envStr("MATCH_REFRESH_TOKEN", ""),

		MatchID: envStr("MATCH_ID", ""),

		TeamsConfigPath: envStr("TEAMS_CONFIG_PATH", "internal/config/teams.yaml"),

		JournalPath: envStr("WS_JOURNAL_PATH", ""),

		// 1s initial, 10s ceiling, unbounded attempts.
		ReconnectMin: time.Duration(envInt("WS_RECONNECT_MIN_MS", 1000)) * time.Millisecond,
		ReconnectMax: time.Duration(envInt("WS_RECONNECT_MAX_MS", 10000)) * time.Millisecond,

		ResyncTimeout: time.Duration(envInt("RESYNC_TIMEOUT_SEC", 10)) * time.Second,

		CountdownTick: time.Duration(envInt("COUNTDOWN_TICK_MS", 100)) * time.Millisecond,

		LogLevel: envStr("LOG_LEVEL", "info"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
