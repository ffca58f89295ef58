package cleaner

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

func rawAt(device string, ts time.Time) *types.RawReading {
	return &types.RawReading{
		DeviceID:  device,
		Timestamp: ts,
		Voltage:   230,
		Current:   10,
		PowerKW:   2.3,
		EnergyKWH: 1.15,
	}
}

func TestIsValid(t *testing.T) {
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	base := rawAt("a", asOf.Add(-time.Minute))

	tests := []struct {
		name   string
		mutate func(r *types.RawReading)
		want   bool
	}{
		{"in range", func(r *types.RawReading) {}, true},
		{"voltage at lower bound", func(r *types.RawReading) { r.Voltage = 100 }, true},
		{"voltage at upper bound", func(r *types.RawReading) { r.Voltage = 500 }, true},
		{"voltage too low", func(r *types.RawReading) { r.Voltage = 99.9 }, false},
		{"voltage too high", func(r *types.RawReading) { r.Voltage = 600 }, false},
		{"negative current", func(r *types.RawReading) { r.Current = -0.1 }, false},
		{"current too high", func(r *types.RawReading) { r.Current = 200.5 }, false},
		{"negative power", func(r *types.RawReading) { r.PowerKW = -1 }, false},
		{"power too high", func(r *types.RawReading) { r.PowerKW = 1001 }, false},
		{"negative energy", func(r *types.RawReading) { r.EnergyKWH = -0.01 }, false},
		{"zero energy", func(r *types.RawReading) { r.EnergyKWH = 0 }, true},
		{"future timestamp", func(r *types.RawReading) { r.Timestamp = asOf.Add(time.Minute) }, false},
		{"timestamp exactly now", func(r *types.RawReading) { r.Timestamp = asOf }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := *base
			tt.mutate(&r)
			require.Equal(t, tt.want, IsValid(&r, asOf))
		})
	}
}

func TestRunFiltersOutOfRangeReadings(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	valid := rawAt("a", asOf.Add(-time.Minute))
	require.NoError(t, store.InsertRawReading(valid))

	spike := rawAt("a", asOf.Add(-2*time.Minute))
	spike.Voltage = 600
	require.NoError(t, store.InsertRawReading(spike))

	future := rawAt("a", asOf.Add(time.Minute))
	require.NoError(t, store.InsertRawReading(future))

	count, err := New(store, 5*time.Minute).Run(asOf)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	cleaned, err := store.CleanedReadingsSince(asOf.Add(-5 * time.Minute))
	require.NoError(t, err)
	require.Len(t, cleaned, 1)
	require.Equal(t, valid.Timestamp, cleaned[0].Timestamp)
}

func TestRunIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertRawReading(rawAt("a", asOf.Add(-time.Minute))))

	c := New(store, 5*time.Minute)

	count, err := c.Run(asOf)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Second pass over the same window inserts nothing
	count, err = c.Run(asOf)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	cleaned, err := store.CleanedReadingsSince(asOf.Add(-5 * time.Minute))
	require.NoError(t, err)
	require.Len(t, cleaned, 1)
}

func TestRunKeepsSubSecondReadings(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	// Websocket gateways can deliver multiple readings within one second;
	// both must survive cleaning as distinct rows.
	base := asOf.Add(-time.Minute)
	require.NoError(t, store.InsertRawReading(rawAt("a", base)))
	require.NoError(t, store.InsertRawReading(rawAt("a", base.Add(500*time.Millisecond))))

	count, err := New(store, 5*time.Minute).Run(asOf)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	cleaned, err := store.CleanedReadingsSince(asOf.Add(-5 * time.Minute))
	require.NoError(t, err)
	require.Len(t, cleaned, 2)
	require.Equal(t, base, cleaned[0].Timestamp)
	require.Equal(t, base.Add(500*time.Millisecond), cleaned[1].Timestamp)
}

func TestRunIgnoresReadingsOutsideWindow(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.InsertRawReading(rawAt("a", asOf.Add(-10*time.Minute))))

	count, err := New(store, 5*time.Minute).Run(asOf)
	require.NoError(t, err)
	require.Equal(t, 0, count)
}

func TestRunKeepsOptionalChannels(t *testing.T) {
	store := newTestStore(t)
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	temp := 21.52
	r := rawAt("a", asOf.Add(-time.Minute))
	r.Temperature = &temp
	require.NoError(t, store.InsertRawReading(r))

	_, err := New(store, 5*time.Minute).Run(asOf)
	require.NoError(t, err)

	cleaned, err := store.CleanedReadingsSince(asOf.Add(-5 * time.Minute))
	require.NoError(t, err)
	require.Len(t, cleaned, 1)
	require.NotNil(t, cleaned[0].Temperature)
	require.Equal(t, 21.52, *cleaned[0].Temperature)
}
