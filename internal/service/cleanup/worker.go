package cleanup

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper removes records idle for longer than ttl and reports how many.
type Sweeper interface {
	CleanupStale(ctx context.Context, ttl time.Duration) (int, error)
}

type Worker struct {
	Sweeper  Sweeper
	TTL      time.Duration
	Interval time.Duration
	logger   zerolog.Logger
}

func NewWorker(s Sweeper, ttl, interval time.Duration, logger zerolog.Logger) *Worker {
	return &Worker{
		Sweeper:  s,
		TTL:      ttl,
		Interval: interval,
		logger:   logger.With().Str("component", "cleanup").Logger(),
	}
}

// Start runs one sweep immediately and then every Interval until ctx ends.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Dur("ttl", w.TTL).Dur("interval", w.Interval).Msg("background worker started")
	w.runCleanup(ctx)

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("background worker stopped")
			return
		case <-ticker.C:
			w.runCleanup(ctx)
		}
	}
}

func (w *Worker) runCleanup(ctx context.Context) {
	removed, err := w.Sweeper.CleanupStale(ctx, w.TTL)
	if err != nil {
		w.logger.Error().Err(err).Msg("error cleaning up stale games")
		return
	}
	if removed > 0 {
		w.logger.Info().Int("removed", removed).Msg("removed stale games")
	}
}
