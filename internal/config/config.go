// Package config collects every tunable of the service into one struct,
// populated from environment variables with production defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime settings for the coordinator process.
type Config struct {
	// Transport.
	ListenAddr     string        // HTTP + WebSocket listen address
	WorkerPoolSize int           // max concurrent WS read workers
	MaxConnections int           // hard cap on WS connections
	ReadTimeout    time.Duration // WS frame read timeout
	SendQueue      int           // per-connection outbound buffer
	SendTimeout    time.Duration // per-event delivery deadline

	// Matchmaking.
	TickInterval time.Duration // matcher cadence
	BallotTTL    time.Duration // pending-match deadline

	// Messages.
	MaxContentBytes int // reject message content above this
	PageSizeMax     int // hard upper bound for pagination

	// Auth.
	JWTSecret string
	TokenTTL  time.Duration

	// Backing services. Empty PostgresDSN selects the in-memory store;
	// empty RedisAddr disables rate limiting, blocks and bans; empty
	// NATSURL disables the moderation pipeline.
	PostgresDSN string
	RedisAddr   string
	NATSURL     string
}

// Default returns the production defaults.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		WorkerPoolSize:  256,
		MaxConnections:  100000,
		ReadTimeout:     10 * time.Second,
		SendQueue:       256,
		SendTimeout:     5 * time.Second,
		TickInterval:    3 * time.Second,
		BallotTTL:       120 * time.Second,
		MaxContentBytes: 4096,
		PageSizeMax:     100,
		JWTSecret:       "dev-secret-change-me",
		TokenTTL:        24 * time.Hour,
	}
}

// FromEnv builds a Config from the environment on top of Default.
func FromEnv() Config {
	cfg := Default()

	stringVar(&cfg.ListenAddr, "LISTEN_ADDR")
	intVar(&cfg.WorkerPoolSize, "WORKER_POOL_SIZE")
	intVar(&cfg.MaxConnections, "MAX_CONNECTIONS")
	durationVar(&cfg.ReadTimeout, "READ_TIMEOUT")
	intVar(&cfg.SendQueue, "CONN_SEND_QUEUE")
	durationVar(&cfg.SendTimeout, "CONN_SEND_TIMEOUT")

	durationVar(&cfg.TickInterval, "MATCH_TICK_INTERVAL")
	durationVar(&cfg.BallotTTL, "MATCH_BALLOT_TTL")

	intVar(&cfg.MaxContentBytes, "MSG_MAX_CONTENT_BYTES")
	intVar(&cfg.PageSizeMax, "MSG_PAGE_SIZE_MAX")

	stringVar(&cfg.JWTSecret, "JWT_SECRET")
	durationVar(&cfg.TokenTTL, "TOKEN_TTL")

	stringVar(&cfg.PostgresDSN, "POSTGRES_DSN")
	stringVar(&cfg.RedisAddr, "REDIS_ADDR")
	stringVar(&cfg.NATSURL, "NATS_URL")

	return cfg
}

func stringVar(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intVar(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}

func durationVar(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			*dst = d
		}
	}
}
