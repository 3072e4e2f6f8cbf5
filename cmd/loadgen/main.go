package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/harmonia-fm/harmonia/internal/loadgen"
	"github.com/harmonia-fm/harmonia/pkg/logger"
)

// Default configuration constants.
const (
	defaultNumTracks  = 200
	defaultNumEvents  = 10000
	defaultBatchSize  = 25
	defaultTimeout    = 30 * time.Second
	defaultRunTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numTracks = flag.Int("tracks", defaultNumTracks, "Number of catalog tracks to seed")
		numEvents = flag.Int("events", defaultNumEvents, "Number of events to generate and submit")
		batchSize = flag.Int("batch", defaultBatchSize, "Events per batch submission (1 = single async events)")
		workers   = flag.Int("workers", runtime.NumCPU()*2, "Number of concurrent workers")
		timeout   = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "Random seed for reproducible runs")
		verbose   = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	runner := loadgen.NewRunner(loadgen.Config{
		BaseURL:   *baseURL,
		NumTracks: *numTracks,
		NumEvents: *numEvents,
		BatchSize: *batchSize,
		Workers:   *workers,
		Timeout:   *timeout,
		Seed:      *seed,
		Verbose:   *verbose,
	})
	if err := runner.Run(ctx); err != nil {
		os.Stderr.WriteString("load generation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
