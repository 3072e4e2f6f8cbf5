package loadgen

import "github.com/harmonia-fm/harmonia/pkg/logger"

// Option applies a configuration option to a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}
