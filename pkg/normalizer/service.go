// Package normalizer rescales cleaned readings to canonical precision before
// they reach the aggregation stages.
package normalizer

import (
	"fmt"
	"time"

	"github.com/gridmeld/gridmeld/pkg/gmutils"
	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog/log"
)

type Normalizer struct {
	store    *pipedb.Store
	lookback time.Duration
}

func New(store *pipedb.Store, lookback time.Duration) *Normalizer {
	return &Normalizer{store: store, lookback: lookback}
}

// Normalize rounds a cleaned reading to canonical precision: 2 decimals for
// electrical quantities, 1 for temperature.
func Normalize(r *types.CleanedReading, asOf time.Time) types.NormalizedReading {
	n := types.NormalizedReading{
		DeviceID:     r.DeviceID,
		Timestamp:    r.Timestamp,
		Voltage:      gmutils.Round2(r.Voltage),
		Current:      gmutils.Round2(r.Current),
		PowerKW:      gmutils.Round2(r.PowerKW),
		EnergyKWH:    gmutils.Round2(r.EnergyKWH),
		NormalizedAt: asOf,
	}
	if r.Frequency != nil {
		v := gmutils.Round2(*r.Frequency)
		n.Frequency = &v
	}
	if r.Temperature != nil {
		v := gmutils.Round1(*r.Temperature)
		n.Temperature = &v
	}
	if r.StateOfCharge != nil {
		v := gmutils.Round2(*r.StateOfCharge)
		n.StateOfCharge = &v
	}
	return n
}

// Run normalizes the trailing window ending at asOf and returns the number of
// rows written. The insert is a single all-or-nothing batch.
//
// No dedup happens here: overlapping runs produce duplicate normalized rows.
// Downstream aggregation averages over the window, so duplicates skew weights
// rather than break correctness. TODO: key the batch on the source window
// bounds so reruns become idempotent.
func (n *Normalizer) Run(asOf time.Time) (int, error) {
	cleaned, err := n.store.CleanedReadingsSince(asOf.Add(-n.lookback))
	if err != nil {
		return 0, fmt.Errorf("fetch cleaned readings: %w", err)
	}

	normalized := make([]types.NormalizedReading, 0, len(cleaned))
	for i := range cleaned {
		normalized = append(normalized, Normalize(&cleaned[i], asOf))
	}

	if err := n.store.InsertNormalizedReadings(normalized); err != nil {
		return 0, fmt.Errorf("insert normalized batch: %w", err)
	}

	log.Info().
		Int("normalized", len(normalized)).
		Time("as_of", asOf).
		Msg("normalize pass completed")
	return len(normalized), nil
}
