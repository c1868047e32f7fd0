package worker

// sweep_cron.go
// Periodically advances Ready batches past the retention window to Completed.
// The sweep is idempotent, so overlapping runs across replicas are harmless.

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper runs one Ready → Completed pass and reports how many batches moved.
type Sweeper interface {
	SweepReady(ctx context.Context) (int, error)
}

// StartSweepCron ticks every interval until ctx is cancelled.
func StartSweepCron(ctx context.Context, interval time.Duration, s Sweeper) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info().Dur("interval", interval).Msg("sweep_cron: started")
		runSweep(ctx, s)

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("sweep_cron: shutting down")
				return
			case <-ticker.C:
				runSweep(ctx, s)
			}
		}
	}()
}

func runSweep(ctx context.Context, s Sweeper) {
	n, err := s.SweepReady(ctx)
	if err != nil {
		log.Error().Err(err).Msg("sweep_cron: sweep failed")
		return
	}
	if n > 0 {
		log.Info().Int("completed", n).Msg("sweep_cron: batches completed")
	}
}
