package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// runScheduler sweeps uncategorized sessions every SweepInterval. A zero
// interval disables the schedule.
func (s *Service) runScheduler(ctx context.Context) {
	interval := s.config.SweepInterval
	if interval <= 0 {
		log.Info().Msg("Scheduled sweep disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, 0); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("Scheduled sweep failed")
			}
		}
	}
}
