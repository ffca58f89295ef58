package aggregator

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/gridmeld/gridmeld/pkg/pipedb"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *pipedb.Store {
	t.Helper()
	store, err := pipedb.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func floatp(v float64) *float64 { return &v }

func normalizedAt(device string, ts time.Time, power float64) types.NormalizedReading {
	return types.NormalizedReading{
		DeviceID:     device,
		Timestamp:    ts,
		Voltage:      230,
		Current:      10,
		PowerKW:      power,
		EnergyKWH:    1.15,
		NormalizedAt: ts,
	}
}

func TestHourlyMeanPerDevice(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertNormalizedReadings([]types.NormalizedReading{
		normalizedAt("a", asOf.Add(-30*time.Minute), 2.0),
		normalizedAt("a", asOf.Add(-20*time.Minute), 3.0),
		normalizedAt("a", asOf.Add(-10*time.Minute), 4.5),
		normalizedAt("b", asOf.Add(-10*time.Minute), 1.0),
	}))

	aggregates, err := NewHourly(store, time.Hour).Run(asOf)
	require.NoError(t, err)
	require.Len(t, aggregates, 2)

	// Deterministic device order
	require.Equal(t, "a", aggregates[0].DeviceID)
	require.Equal(t, "b", aggregates[1].DeviceID)

	// mean(2.0, 3.0, 4.5) = 3.1666... -> 3.17
	require.Equal(t, 3.17, aggregates[0].Power)
	require.Equal(t, 1.0, aggregates[1].Power)
	require.Equal(t, asOf, aggregates[0].Timestamp)
	require.NotEmpty(t, aggregates[0].ID)

	stored, err := store.HourlyAggregates("a", 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, 3.17, stored[0].Power)
}

func TestHourlyOptionalMetricsAveragedOverPresentValues(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	withTemp := normalizedAt("a", asOf.Add(-30*time.Minute), 2.0)
	withTemp.Temperature = floatp(20.0)
	withoutTemp := normalizedAt("a", asOf.Add(-20*time.Minute), 2.0)
	require.NoError(t, store.InsertNormalizedReadings([]types.NormalizedReading{withTemp, withoutTemp}))

	aggregates, err := NewHourly(store, time.Hour).Run(asOf)
	require.NoError(t, err)
	require.Len(t, aggregates, 1)
	require.NotNil(t, aggregates[0].Temperature)
	require.Equal(t, 20.0, *aggregates[0].Temperature)
	require.Nil(t, aggregates[0].Frequency)
}

func TestHourlyEmptyWindow(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	aggregates, err := NewHourly(store, time.Hour).Run(asOf)
	require.NoError(t, err)
	require.Empty(t, aggregates)
}

func TestHourlyAppendsOnRerun(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertNormalizedReadings([]types.NormalizedReading{
		normalizedAt("a", asOf.Add(-10*time.Minute), 2.0),
	}))

	h := NewHourly(store, time.Hour)
	_, err := h.Run(asOf)
	require.NoError(t, err)
	_, err = h.Run(asOf.Add(time.Minute))
	require.NoError(t, err)

	// Overlapping windows append new rows, they never merge
	stored, err := store.HourlyAggregates("a", 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
}

func cleanedAt(device string, ts time.Time, energy float64) *types.CleanedReading {
	return &types.CleanedReading{
		DeviceID:  device,
		Timestamp: ts,
		Voltage:   230,
		Current:   10,
		PowerKW:   2.3,
		EnergyKWH: energy,
	}
}

func TestDailySumsYesterday(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 0, 5, 0, 0, time.UTC)
	yesterday := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertCleanedReading(cleanedAt("a", yesterday.Add(1*time.Hour), 1.25)))
	require.NoError(t, store.InsertCleanedReading(cleanedAt("a", yesterday.Add(13*time.Hour), 2.5)))
	require.NoError(t, store.InsertCleanedReading(cleanedAt("b", yesterday.Add(2*time.Hour), 0.755)))
	// Today's readings must not count
	require.NoError(t, store.InsertCleanedReading(cleanedAt("a", asOf.Add(-time.Minute), 9.0)))
	// Neither must the day before yesterday's
	require.NoError(t, store.InsertCleanedReading(cleanedAt("a", yesterday.Add(-2*time.Hour), 9.0)))

	count, err := NewDaily(store).Run(asOf)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	baselines, err := store.DailyBaselines("a", 0)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	require.Equal(t, "2026-08-29", baselines[0].Date)
	require.Equal(t, 3.75, baselines[0].TotalEnergyKWH)

	baselines, err = store.DailyBaselines("b", 0)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	require.Equal(t, 0.76, baselines[0].TotalEnergyKWH)
}

func TestDailyRerunDoesNotDoubleCount(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 0, 5, 0, 0, time.UTC)
	yesterday := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertCleanedReading(cleanedAt("a", yesterday.Add(6*time.Hour), 4.2)))

	d := NewDaily(store)
	_, err := d.Run(asOf)
	require.NoError(t, err)
	_, err = d.Run(asOf.Add(2 * time.Hour))
	require.NoError(t, err)

	baselines, err := store.DailyBaselines("a", 0)
	require.NoError(t, err)
	require.Len(t, baselines, 1)
	require.Equal(t, 4.2, baselines[0].TotalEnergyKWH)
}

func TestDailyEmptyDay(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 0, 5, 0, 0, time.UTC)

	count, err := NewDaily(store).Run(asOf)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestCleanupRequiresAggregateCoverage(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	old := asOf.Add(-100 * 24 * time.Hour)

	require.NoError(t, store.InsertRawReading(&types.RawReading{DeviceID: "a", Timestamp: old, Voltage: 230, Current: 1, PowerKW: 0.2, EnergyKWH: 0.1}))

	// No aggregates yet: nothing may be pruned
	pruned, err := Cleanup(store, 90*24*time.Hour, asOf)
	require.NoError(t, err)
	require.Zero(t, pruned)

	raw, err := store.RawReadingsSince(time.Time{})
	require.NoError(t, err)
	require.Len(t, raw, 1)

	// Once aggregation has covered the cutoff, pruning proceeds
	require.NoError(t, store.InsertHourlyAggregates([]types.HourlyAggregate{
		{ID: "agg-1", DeviceID: "a", Timestamp: asOf, Voltage: 230, Current: 1, Power: 0.2, Energy: 0.1},
	}))

	pruned, err = Cleanup(store, 90*24*time.Hour, asOf)
	require.NoError(t, err)
	require.EqualValues(t, 1, pruned)
}
