package app

import (
	"time"

	"github.com/harmonia-fm/harmonia/internal/adapters/repository"
	"github.com/harmonia-fm/harmonia/internal/domain/recommend"
	"github.com/harmonia-fm/harmonia/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStores injects a store bundle. When unset, Start opens the SQLite
// stores at the configured path. Tests inject in-memory stores here.
func WithStores(stores repository.Stores) Option {
	return func(s *Service) {
		if stores != nil {
			s.stores = stores
		}
	}
}

// WithDBPath sets the SQLite database path.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithRecommender injects a recommendation scorer (tests pin its
// randomness).
func WithRecommender(r *recommend.Scorer) Option {
	return func(s *Service) {
		if r != nil {
			s.recommender = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithChunkSize bounds how many events one batch transaction covers.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithChunkTimeout bounds each chunk's storage operation.
func WithChunkTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.chunkTimeout = d
		}
	}
}

// WithRetryBackoffBase sets the whole-submission retry backoff unit.
// Attempt n waits (n-1) * base; the default base of 2s gives 0s/2s/4s.
func WithRetryBackoffBase(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.backoffBase = d
		}
	}
}

// WithMaxAttempts sets the whole-submission attempt budget.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithMaxRecommendLimit caps the recommendation result count.
func WithMaxRecommendLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRecommendLimit = n
		}
	}
}

// WithHistoryLimit sets how many ledger rows the history read returns.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithWorkerCount sets the number of async ingestion workers.
func WithWorkerCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workerCount = n
		}
	}
}

// WithQueueSize bounds the async ingestion queue.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithDedupeSize sets the idempotency cache size.
func WithDedupeSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dedupeSize = n
		}
	}
}
