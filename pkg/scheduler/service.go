// Package scheduler drives the pipeline stages on an interval for standalone
// deployments that have no external cron. Each tick invokes the stages with
// an explicit as-of timestamp, same as the HTTP triggers.
package scheduler

import (
	"context"
	"time"

	"github.com/gridmeld/gridmeld/pkg/aggregator"
	"github.com/gridmeld/gridmeld/pkg/cleaner"
	"github.com/gridmeld/gridmeld/pkg/normalizer"
	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog/log"
)

type Scheduler struct {
	Cleaner    *cleaner.Cleaner
	Normalizer *normalizer.Normalizer
	Hourly     *aggregator.Hourly
	Daily      *aggregator.Daily
	Store      *pipedb.Store
	Retention  time.Duration

	// StageInterval paces the clean/normalize passes and must match their
	// lookback window, or readings slip through uncovered.
	StageInterval time.Duration

	// OnHourly receives each non-empty hourly batch (realtime broadcast)
	OnHourly func([]types.HourlyAggregate)
}

// Run blocks until ctx is cancelled. Stage errors are logged and the loop
// keeps going; retries are left to the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	stageTicker := time.NewTicker(s.StageInterval)
	defer stageTicker.Stop()
	hourlyTicker := time.NewTicker(time.Hour)
	defer hourlyTicker.Stop()

	log.Info().
		Dur("stage_interval", s.StageInterval).
		Msg("pipeline scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("pipeline scheduler stopped")
			return

		case t := <-stageTicker.C:
			asOf := t.UTC()
			if _, err := s.Cleaner.Run(asOf); err != nil {
				log.Error().Err(err).Msg("scheduled clean pass failed")
				continue
			}
			if _, err := s.Normalizer.Run(asOf); err != nil {
				log.Error().Err(err).Msg("scheduled normalize pass failed")
			}

		case t := <-hourlyTicker.C:
			asOf := t.UTC()
			aggregates, err := s.Hourly.Run(asOf)
			if err != nil {
				log.Error().Err(err).Msg("scheduled hourly aggregation failed")
			} else if len(aggregates) > 0 && s.OnHourly != nil {
				s.OnHourly(aggregates)
			}

			// Baselines for yesterday once the day has rolled over
			if asOf.Hour() == 0 {
				if _, err := s.Daily.Run(asOf); err != nil {
					log.Error().Err(err).Msg("scheduled daily aggregation failed")
				}
				if _, err := aggregator.Cleanup(s.Store, s.Retention, asOf); err != nil {
					log.Error().Err(err).Msg("scheduled cleanup failed")
				}
			}
		}
	}
}
