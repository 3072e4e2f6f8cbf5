// Package loadgen drives a running service with synthetic catalog and
// listening-event traffic, then cross-checks the rating ledger.
package loadgen

import (
	"bytes"
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/harmonia-fm/harmonia/pkg/logger"
)

// Config controls one load generation run.
type Config struct {
	BaseURL   string
	NumTracks int
	NumEvents int
	BatchSize int
	Workers   int
	Timeout   time.Duration
	Seed      int64
	Verbose   bool
}

// Runner executes one load generation run against a live service.
type Runner struct {
	cfg    Config
	client *http.Client
	rng    *rand.Rand
	log    logger.Logger

	mu        sync.Mutex
	submitted int
	failed    int
}

// NewRunner creates a runner for the given config.
func NewRunner(cfg Config, opts ...Option) *Runner {
	r := &Runner{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.Get().Named("loadgen")
	}
	return r
}

// Run seeds the catalog, fires event traffic and verifies the ledger.
func (r *Runner) Run(ctx context.Context) error {
	tracks := r.generateTracks()
	r.log.Info(ctx, "seeding catalog", logger.Int("tracks", len(tracks)))
	if err := r.seedCatalog(ctx, tracks); err != nil {
		return fmt.Errorf("seeding catalog: %w", err)
	}

	events := r.generateEvents(tracks)
	r.log.Info(ctx, "submitting events",
		logger.Int("events", len(events)),
		logger.Int("workers", r.cfg.Workers),
	)
	start := time.Now()
	r.submitEvents(ctx, events)
	elapsed := time.Since(start)

	r.mu.Lock()
	submitted, failed := r.submitted, r.failed
	r.mu.Unlock()
	r.log.Info(ctx, "submission finished",
		logger.Int("submitted", submitted),
		logger.Int("failed", failed),
		logger.String("elapsed", elapsed.String()),
	)

	// Give the async pipeline a moment to drain before verifying.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(2 * time.Second):
	}

	if err := r.verify(ctx, tracks); err != nil {
		return fmt.Errorf("verification: %w", err)
	}
	r.log.Info(ctx, "verification passed", logger.Int("tracks", len(tracks)))
	return nil
}

func (r *Runner) seedCatalog(ctx context.Context, tracks []trackSpec) error {
	for _, t := range tracks {
		if err := r.putJSON(ctx, "/tracks/"+t.ID, t.body()); err != nil {
			return err
		}
	}
	return nil
}

// submitEvents pushes events through a worker pool, mixing the async
// endpoint with batch submissions.
func (r *Runner) submitEvents(ctx context.Context, events []eventSpec) {
	jobs := make(chan []eventSpec)
	var wg sync.WaitGroup

	for range r.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range jobs {
				r.submitGroup(ctx, group)
			}
		}()
	}

	batch := r.cfg.BatchSize
	if batch < 1 {
		batch = 1
	}
	for i := 0; i < len(events); i += batch {
		end := min(i+batch, len(events))
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case jobs <- events[i:end]:
		}
	}
	close(jobs)
	wg.Wait()
}

// submitGroup sends a group as one batch call, or as a single async
// event when the group has exactly one member.
func (r *Runner) submitGroup(ctx context.Context, group []eventSpec) {
	var err error
	if len(group) == 1 {
		err = r.postJSON(ctx, "/events", group[0].body(), http.StatusAccepted, http.StatusOK)
	} else {
		items := make([]map[string]any, len(group))
		for i, e := range group {
			items[i] = e.body()
		}
		err = r.postJSON(ctx, "/events/batch", map[string]any{"events": items}, http.StatusOK)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed += len(group)
		return
	}
	r.submitted += len(group)
}

// verify replays each track's ledger and checks that the chain of
// changes is internally consistent and lands on the current rating.
func (r *Runner) verify(ctx context.Context, tracks []trackSpec) error {
	for _, t := range tracks {
		var hist struct {
			Events []struct {
				OldRating float64 `json:"old_rating"`
				NewRating float64 `json:"new_rating"`
				Change    float64 `json:"rating_change"`
			} `json:"events"`
		}
		if err := r.getJSON(ctx, "/tracks/"+t.ID+"/rating/history", &hist); err != nil {
			return err
		}

		var track struct {
			Rating     float64 `json:"rating"`
			Confidence int     `json:"rating_confidence"`
		}
		if err := r.getJSON(ctx, "/tracks/"+t.ID, &track); err != nil {
			return err
		}

		// History rows are newest first.
		for i, ev := range hist.Events {
			if got := ev.OldRating + ev.Change; !closeEnough(got, ev.NewRating) {
				return fmt.Errorf("track %s: ledger row %d does not add up (%.4f + %.4f != %.4f)",
					t.ID, i, ev.OldRating, ev.Change, ev.NewRating)
			}
		}
		if len(hist.Events) > 0 && !closeEnough(hist.Events[0].NewRating, track.Rating) {
			return fmt.Errorf("track %s: newest ledger rating %.4f != aggregate rating %.4f",
				t.ID, hist.Events[0].NewRating, track.Rating)
		}
		if r.cfg.Verbose {
			r.log.Info(ctx, "track verified",
				logger.String("track", t.ID),
				logger.Int("ledgerRows", len(hist.Events)),
				logger.Float64("rating", track.Rating),
			)
		}
	}
	return nil
}

const ratingEpsilon = 1e-6

func closeEnough(a, b float64) bool {
	d := a - b
	return d < ratingEpsilon && d > -ratingEpsilon
}

func (r *Runner) putJSON(ctx context.Context, path string, body any) error {
	return r.do(ctx, http.MethodPut, path, body, nil, http.StatusOK)
}

func (r *Runner) postJSON(ctx context.Context, path string, body any, want ...int) error {
	return r.do(ctx, http.MethodPost, path, body, nil, want...)
}

func (r *Runner) getJSON(ctx context.Context, path string, out any) error {
	return r.do(ctx, http.MethodGet, path, nil, out, http.StatusOK)
}

func (r *Runner) do(ctx context.Context, method, path string, body, out any, want ...int) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding %s %s: %w", method, path, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	ok := false
	for _, code := range want {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding %s %s: %w", method, path, err)
		}
	}
	return nil
}

// eventID keeps generated event ids unique per run.
func (r *Runner) eventID() string {
	return uuid.NewString()
}
