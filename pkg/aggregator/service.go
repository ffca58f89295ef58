// Package aggregator computes the UI-facing summary tables: hourly per-device
// means over normalized readings and daily per-device energy sums over
// cleaned readings.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/gridmeld/gridmeld/pkg/gmutils"
	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog/log"
)

// Hourly averages normalized readings per device over a trailing window and
// appends one energy_readings row per device per run.
type Hourly struct {
	store    *pipedb.Store
	lookback time.Duration
}

func NewHourly(store *pipedb.Store, lookback time.Duration) *Hourly {
	return &Hourly{store: store, lookback: lookback}
}

type metricAccumulator struct {
	voltage   []float64
	current   []float64
	power     []float64
	energy    []float64
	frequency []float64
	temp      []float64
}

// Run aggregates the trailing window ending at asOf and returns the rows it
// wrote, one per device present in the window. An empty window is a valid
// run that writes nothing.
func (h *Hourly) Run(asOf time.Time) ([]types.HourlyAggregate, error) {
	readings, err := h.store.NormalizedReadingsSince(asOf.Add(-h.lookback))
	if err != nil {
		return nil, fmt.Errorf("fetch normalized readings: %w", err)
	}

	groups := make(map[string]*metricAccumulator)
	for i := range readings {
		r := &readings[i]
		acc, ok := groups[r.DeviceID]
		if !ok {
			acc = &metricAccumulator{}
			groups[r.DeviceID] = acc
		}
		acc.voltage = append(acc.voltage, r.Voltage)
		acc.current = append(acc.current, r.Current)
		acc.power = append(acc.power, r.PowerKW)
		acc.energy = append(acc.energy, r.EnergyKWH)
		if r.Frequency != nil {
			acc.frequency = append(acc.frequency, *r.Frequency)
		}
		if r.Temperature != nil {
			acc.temp = append(acc.temp, *r.Temperature)
		}
	}

	deviceIDs := make([]string, 0, len(groups))
	for id := range groups {
		deviceIDs = append(deviceIDs, id)
	}
	sort.Strings(deviceIDs)

	aggregates := make([]types.HourlyAggregate, 0, len(groups))
	for _, id := range deviceIDs {
		acc := groups[id]
		a := types.HourlyAggregate{
			ID:        uuid.NewString(),
			DeviceID:  id,
			Timestamp: asOf,
			Voltage:   gmutils.Round2(gmutils.Mean(acc.voltage)),
			Current:   gmutils.Round2(gmutils.Mean(acc.current)),
			Power:     gmutils.Round2(gmutils.Mean(acc.power)),
			Energy:    gmutils.Round2(gmutils.Mean(acc.energy)),
		}
		// Optional metrics are averaged over the readings that carry them
		if len(acc.frequency) > 0 {
			v := gmutils.Round2(gmutils.Mean(acc.frequency))
			a.Frequency = &v
		}
		if len(acc.temp) > 0 {
			v := gmutils.Round2(gmutils.Mean(acc.temp))
			a.Temperature = &v
		}
		aggregates = append(aggregates, a)
	}

	if err := h.store.InsertHourlyAggregates(aggregates); err != nil {
		return nil, fmt.Errorf("insert hourly aggregates: %w", err)
	}

	log.Info().
		Int("devices", len(aggregates)).
		Int("readings", len(readings)).
		Time("as_of", asOf).
		Msg("hourly aggregation completed")
	return aggregates, nil
}

// Daily sums cleaned energy readings per device over the previous UTC
// calendar day and upserts one energy_baselines row per device. The
// (device_id, date) conflict key makes reruns overwrite rather than
// double-count.
type Daily struct {
	store *pipedb.Store
}

func NewDaily(store *pipedb.Store) *Daily {
	return &Daily{store: store}
}

// Run computes baselines for the calendar day before asOf and returns the
// number of devices upserted.
func (d *Daily) Run(asOf time.Time) (int, error) {
	yesterday := asOf.UTC().AddDate(0, 0, -1)
	dayStart := time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)
	date := dayStart.Format("2006-01-02")

	readings, err := d.store.CleanedReadingsBetween(dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("fetch cleaned readings for %s: %w", date, err)
	}

	sums := make(map[string]float64)
	for i := range readings {
		sums[readings[i].DeviceID] += readings[i].EnergyKWH
	}

	deviceIDs := make([]string, 0, len(sums))
	for id := range sums {
		deviceIDs = append(deviceIDs, id)
	}
	sort.Strings(deviceIDs)

	for _, id := range deviceIDs {
		baseline := types.DailyBaseline{
			DeviceID:       id,
			Date:           date,
			TotalEnergyKWH: gmutils.Round2(sums[id]),
			CreatedAt:      asOf,
		}
		if err := d.store.UpsertDailyBaseline(&baseline); err != nil {
			return 0, fmt.Errorf("upsert baseline for %s: %w", id, err)
		}
	}

	log.Info().
		Int("devices", len(deviceIDs)).
		Str("date", date).
		Msg("daily baseline aggregation completed")
	return len(deviceIDs), nil
}

// Cleanup removes raw, cleaned and normalized rows older than the retention
// horizon, but only once hourly aggregation has covered that data. Aggregate
// tables are kept indefinitely.
func Cleanup(store *pipedb.Store, retention time.Duration, asOf time.Time) (int64, error) {
	cutoff := asOf.Add(-retention)

	lastAggregate, ok, err := store.LatestHourlyTimestamp()
	if err != nil {
		return 0, fmt.Errorf("check aggregate coverage: %w", err)
	}
	if !ok || lastAggregate.Before(cutoff) {
		// Not aggregated far enough yet, keep the source rows
		return 0, nil
	}

	pruned, err := store.PruneReadingsBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		log.Info().
			Int64("rows", pruned).
			Time("cutoff", cutoff).
			Msg("pruned expired readings")
	}
	return pruned, nil
}
