// Feed collector subscribes to a gateway websocket feed and stores every raw
// reading. Depends on the gateway being online.
package main

import (
	"os"

	"github.com/gridmeld/gridmeld/pkg/config"
	"github.com/gridmeld/gridmeld/pkg/gateway"
	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.LoadFeedCollectorConfig(); err != nil {
		log.Fatal().Err(err).Msg("failed to load feed collector config")
	}
	cfg := config.ActiveFeedCollectorConfig

	store, err := pipedb.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open telemetry database")
	}
	defer store.Close()

	// Registry writes only happen on first sight of a device
	seen := make(map[string]bool)

	gateway.StartListener(cfg.GatewayHost, cfg.TLSEnabled, func(reading *types.RawReading) {
		log.Debug().RawJSON("reading", reading.ToJsonBytes()).Msg("received raw reading")

		if !seen[reading.DeviceID] {
			device := &types.Device{
				DeviceID:  reading.DeviceID,
				Name:      reading.DeviceID,
				FirstSeen: reading.Timestamp,
			}
			if err := store.RegisterDevice(device); err != nil {
				log.Error().Err(err).Str("device_id", reading.DeviceID).Msg("failed to register device")
			} else {
				seen[reading.DeviceID] = true
			}
		}

		if err := store.InsertRawReading(reading); err != nil {
			log.Error().Err(err).Str("device_id", reading.DeviceID).Msg("failed to store raw reading")
		}
	})
}
