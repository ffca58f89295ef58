// Package cleaner filters raw gateway readings through the validity-range
// policy and deduplicates them into the cleaned store.
package cleaner

import (
	"fmt"
	"time"

	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog/log"
)

// Physically plausible ranges for field readings. Anything outside is a
// sensor glitch or wire noise and never enters the cleaned store.
const (
	MinVoltage = 100.0
	MaxVoltage = 500.0
	MinCurrent = 0.0
	MaxCurrent = 200.0
	MinPowerKW = 0.0
	MaxPowerKW = 1000.0
)

type Cleaner struct {
	store    *pipedb.Store
	lookback time.Duration
}

func New(store *pipedb.Store, lookback time.Duration) *Cleaner {
	return &Cleaner{store: store, lookback: lookback}
}

// IsValid reports whether a raw reading passes every validity predicate.
// Readings stamped after asOf are clock-skewed and rejected.
func IsValid(r *types.RawReading, asOf time.Time) bool {
	if r.Voltage < MinVoltage || r.Voltage > MaxVoltage {
		return false
	}
	if r.Current < MinCurrent || r.Current > MaxCurrent {
		return false
	}
	if r.PowerKW < MinPowerKW || r.PowerKW > MaxPowerKW {
		return false
	}
	if r.EnergyKWH < 0 {
		return false
	}
	if r.Timestamp.After(asOf) {
		return false
	}
	return true
}

// Run processes the trailing window ending at asOf and returns the number of
// cleaned rows written. A failed fetch is fatal; a failed insert for one row
// is logged and the rest of the batch continues.
func (c *Cleaner) Run(asOf time.Time) (int, error) {
	raw, err := c.store.RawReadingsSince(asOf.Add(-c.lookback))
	if err != nil {
		return 0, fmt.Errorf("fetch raw readings: %w", err)
	}

	inserted := 0
	for i := range raw {
		r := &raw[i]
		if !IsValid(r, asOf) {
			log.Debug().
				Str("device_id", r.DeviceID).
				Time("timestamp", r.Timestamp).
				Msg("dropping out-of-range reading")
			continue
		}

		exists, err := c.store.CleanedReadingExists(r.DeviceID, r.Timestamp)
		if err != nil {
			log.Warn().Err(err).
				Str("device_id", r.DeviceID).
				Msg("duplicate check failed, skipping reading")
			continue
		}
		if exists {
			continue
		}

		cleaned := types.CleanedReading{
			DeviceID:      r.DeviceID,
			Timestamp:     r.Timestamp,
			Voltage:       r.Voltage,
			Current:       r.Current,
			PowerKW:       r.PowerKW,
			EnergyKWH:     r.EnergyKWH,
			Frequency:     r.Frequency,
			Temperature:   r.Temperature,
			StateOfCharge: r.StateOfCharge,
		}
		if err := c.store.InsertCleanedReading(&cleaned); err != nil {
			// The unique (device_id, timestamp) index also lands here when
			// a concurrent run won the race. Either way the row is skipped.
			log.Warn().Err(err).
				Str("device_id", r.DeviceID).
				Time("timestamp", r.Timestamp).
				Msg("failed to insert cleaned reading")
			continue
		}
		inserted++
	}

	log.Info().
		Int("fetched", len(raw)).
		Int("inserted", inserted).
		Time("as_of", asOf).
		Msg("clean pass completed")
	return inserted, nil
}
