// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load(ctx) layers YAML file and environment variables on top.
// - External errors must be wrapped via this package's error helpers.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file. ":memory:" keeps everything
	// in process memory.
	DBPath string `koanf:"db_path"`

	// ChunkSize sets how many batch events share one transaction.
	ChunkSize int `koanf:"chunk_size"`

	// ChunkTimeoutMS bounds each chunk transaction.
	ChunkTimeoutMS int `koanf:"chunk_timeout_ms"`

	// MaxAttempts caps whole-submission retries for a batch.
	MaxAttempts int `koanf:"max_attempts"`

	// RetryBackoffMS is the base of the linear retry backoff.
	RetryBackoffMS int `koanf:"retry_backoff_ms"`

	// EventQueueSize bounds the in-memory async ingestion queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingestion workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the event deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxRecommendLimit caps GET /recommendations?limit.
	MaxRecommendLimit int `koanf:"max_recommend_limit"`

	// HistoryLimit caps rating history reads per track.
	HistoryLimit int `koanf:"history_limit"`
}

// New creates a Config with service defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		DBPath:            "harmonia.db",
		ChunkSize:         10,
		ChunkTimeoutMS:    5_000,
		MaxAttempts:       3,
		RetryBackoffMS:    2_000,
		EventQueueSize:    100_000,
		WorkerCount:       runtime.NumCPU() * 2,
		DedupeSize:        50_000,
		MaxRecommendLimit: 100,
		HistoryLimit:      50,
	}
}
