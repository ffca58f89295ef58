// Pipeline API exposes every pipeline stage as an HTTP-triggered function,
// serves the dashboard read endpoints and the realtime feed, and optionally
// runs the built-in interval scheduler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gridmeld/gridmeld/pkg/aggregator"
	"github.com/gridmeld/gridmeld/pkg/cleaner"
	"github.com/gridmeld/gridmeld/pkg/config"
	"github.com/gridmeld/gridmeld/pkg/normalizer"
	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/scheduler"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/gridmeld/gridmeld/pkg/webapi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.LoadPipelineAPIConfig(); err != nil {
		log.Fatal().Err(err).Msg("failed to load pipeline API config")
	}
	cfg := config.ActivePipelineAPIConfig

	store, err := pipedb.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open telemetry database")
	}
	defer store.Close()

	windows := webapi.Windows{
		CleanLookback:     time.Duration(cfg.CleanLookbackMinutes) * time.Minute,
		NormalizeLookback: time.Duration(cfg.NormalizeLookbackMinutes) * time.Minute,
		HourlyLookback:    time.Duration(cfg.HourlyLookbackMinutes) * time.Minute,
		Retention:         time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}
	handler := webapi.NewHandler(store, windows)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if cfg.RunScheduler {
		sched := &scheduler.Scheduler{
			Cleaner:       cleaner.New(store, windows.CleanLookback),
			Normalizer:    normalizer.New(store, windows.NormalizeLookback),
			Hourly:        aggregator.NewHourly(store, windows.HourlyLookback),
			Daily:         aggregator.NewDaily(store),
			Store:         store,
			Retention:     windows.Retention,
			StageInterval: windows.CleanLookback,
			OnHourly: func(aggregates []types.HourlyAggregate) {
				handler.Hub().Broadcast(map[string]any{
					"type":     "hourly_aggregates",
					"readings": aggregates,
				})
			},
		}
		go sched.Run(ctx)
	}

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	server := &http.Server{Addr: listener, Handler: handler.Router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("listener", listener).Msg("starting gridmeld pipeline API")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("pipeline API server failed")
	}
}
