// Modbus agent polls an energy meter's holding registers on an interval and
// stores every sample as a raw reading.
package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/gridmeld/gridmeld/pkg/config"
	"github.com/gridmeld/gridmeld/pkg/modbuspoll"
	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.LoadModbusAgentConfig(); err != nil {
		log.Fatal().Err(err).Msg("failed to load modbus agent config")
	}
	cfg := config.ActiveModbusAgentConfig

	store, err := pipedb.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open telemetry database")
	}
	defer store.Close()

	device := &types.Device{
		DeviceID:  cfg.DeviceID,
		Name:      cfg.DeviceName,
		FirstSeen: time.Now().UTC(),
	}
	if err := store.RegisterDevice(device); err != nil {
		log.Fatal().Err(err).Msg("failed to register device")
	}

	poller := modbuspoll.New(cfg)
	if err := poller.Connect(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to modbus device")
	}
	defer poller.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	poller.Run(ctx, func(reading *types.RawReading) {
		if err := store.InsertRawReading(reading); err != nil {
			log.Error().Err(err).Str("device_id", reading.DeviceID).Msg("failed to store raw reading")
		}
	})
}
