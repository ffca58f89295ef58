package pipedb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gridmeld/gridmeld/pkg/types"
)

// floatPtr converts a scanned nullable column to the optional-field
// representation used by the entity structs.
func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// RegisterDevice inserts a registry entry if the device is not known yet.
// Existing entries are left untouched.
func (s *Store) RegisterDevice(device *types.Device) error {
	_, err := s.db.Exec(
		"INSERT INTO devices (device_id, name, first_seen) VALUES (?, ?, ?) "+
			"ON CONFLICT (device_id) DO NOTHING",
		device.DeviceID,
		device.Name,
		device.FirstSeen.UTC().UnixMilli(),
	)
	return err
}

func (s *Store) DeviceExists(deviceID string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM devices WHERE device_id = ?", deviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListDevices() ([]types.Device, error) {
	rows, err := s.db.Query("SELECT device_id, name, first_seen FROM devices ORDER BY device_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []types.Device
	for rows.Next() {
		var d types.Device
		var firstSeen int64
		if err := rows.Scan(&d.DeviceID, &d.Name, &firstSeen); err != nil {
			return nil, err
		}
		d.FirstSeen = time.UnixMilli(firstSeen).UTC()
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *Store) InsertRawReading(reading *types.RawReading) error {
	_, err := s.db.Exec(
		"INSERT INTO modbus_raw "+
			"(device_id, timestamp, voltage, current, power_kw, energy_kwh, frequency, temperature, state_of_charge) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		reading.DeviceID,
		reading.Timestamp.UTC().UnixMilli(),
		reading.Voltage,
		reading.Current,
		reading.PowerKW,
		reading.EnergyKWH,
		reading.Frequency,
		reading.Temperature,
		reading.StateOfCharge,
	)
	return err
}

// RawReadingsSince returns raw readings with timestamp >= since, oldest first.
func (s *Store) RawReadingsSince(since time.Time) ([]types.RawReading, error) {
	rows, err := s.db.Query(
		"SELECT device_id, timestamp, voltage, current, power_kw, energy_kwh, frequency, temperature, state_of_charge "+
			"FROM modbus_raw WHERE timestamp >= ? ORDER BY timestamp",
		since.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []types.RawReading
	for rows.Next() {
		var r types.RawReading
		var ts int64
		var freq, temp, soc sql.NullFloat64
		if err := rows.Scan(&r.DeviceID, &ts, &r.Voltage, &r.Current, &r.PowerKW, &r.EnergyKWH, &freq, &temp, &soc); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		r.Frequency = floatPtr(freq)
		r.Temperature = floatPtr(temp)
		r.StateOfCharge = floatPtr(soc)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// CleanedReadingExists reports whether a cleaned row already exists for the
// (device_id, timestamp) pair.
func (s *Store) CleanedReadingExists(deviceID string, timestamp time.Time) (bool, error) {
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM modbus_cleaned WHERE device_id = ? AND timestamp = ?",
		deviceID,
		timestamp.UTC().UnixMilli(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) InsertCleanedReading(reading *types.CleanedReading) error {
	_, err := s.db.Exec(
		"INSERT INTO modbus_cleaned "+
			"(device_id, timestamp, voltage, current, power_kw, energy_kwh, frequency, temperature, state_of_charge) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		reading.DeviceID,
		reading.Timestamp.UTC().UnixMilli(),
		reading.Voltage,
		reading.Current,
		reading.PowerKW,
		reading.EnergyKWH,
		reading.Frequency,
		reading.Temperature,
		reading.StateOfCharge,
	)
	return err
}

func scanCleanedRows(rows *sql.Rows) ([]types.CleanedReading, error) {
	var readings []types.CleanedReading
	for rows.Next() {
		var r types.CleanedReading
		var ts int64
		var freq, temp, soc sql.NullFloat64
		if err := rows.Scan(&r.DeviceID, &ts, &r.Voltage, &r.Current, &r.PowerKW, &r.EnergyKWH, &freq, &temp, &soc); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		r.Frequency = floatPtr(freq)
		r.Temperature = floatPtr(temp)
		r.StateOfCharge = floatPtr(soc)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

const cleanedColumns = "device_id, timestamp, voltage, current, power_kw, energy_kwh, frequency, temperature, state_of_charge"

// CleanedReadingsSince returns cleaned readings with timestamp >= since.
func (s *Store) CleanedReadingsSince(since time.Time) ([]types.CleanedReading, error) {
	rows, err := s.db.Query(
		"SELECT "+cleanedColumns+" FROM modbus_cleaned WHERE timestamp >= ? ORDER BY timestamp",
		since.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCleanedRows(rows)
}

// CleanedReadingsBetween returns cleaned readings in [start, end).
func (s *Store) CleanedReadingsBetween(start, end time.Time) ([]types.CleanedReading, error) {
	rows, err := s.db.Query(
		"SELECT "+cleanedColumns+" FROM modbus_cleaned WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp",
		start.UTC().UnixMilli(),
		end.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCleanedRows(rows)
}

// InsertNormalizedReadings inserts the batch in a single transaction.
// A failure rolls back the whole batch.
func (s *Store) InsertNormalizedReadings(readings []types.NormalizedReading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO modbus_normalized " +
			"(device_id, timestamp, voltage, current, power_kw, energy_kwh, frequency, temperature, state_of_charge, normalized_at) " +
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range readings {
		r := &readings[i]
		_, err = stmt.Exec(
			r.DeviceID,
			r.Timestamp.UTC().UnixMilli(),
			r.Voltage,
			r.Current,
			r.PowerKW,
			r.EnergyKWH,
			r.Frequency,
			r.Temperature,
			r.StateOfCharge,
			r.NormalizedAt.UTC().UnixMilli(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert normalized reading for %s: %w", r.DeviceID, err)
		}
	}

	return tx.Commit()
}

// NormalizedReadingsSince returns normalized readings with timestamp >= since.
func (s *Store) NormalizedReadingsSince(since time.Time) ([]types.NormalizedReading, error) {
	rows, err := s.db.Query(
		"SELECT device_id, timestamp, voltage, current, power_kw, energy_kwh, frequency, temperature, state_of_charge, normalized_at "+
			"FROM modbus_normalized WHERE timestamp >= ? ORDER BY timestamp",
		since.UTC().UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var readings []types.NormalizedReading
	for rows.Next() {
		var r types.NormalizedReading
		var ts, normalizedAt int64
		var freq, temp, soc sql.NullFloat64
		if err := rows.Scan(&r.DeviceID, &ts, &r.Voltage, &r.Current, &r.PowerKW, &r.EnergyKWH, &freq, &temp, &soc, &normalizedAt); err != nil {
			return nil, err
		}
		r.Timestamp = time.UnixMilli(ts).UTC()
		r.NormalizedAt = time.UnixMilli(normalizedAt).UTC()
		r.Frequency = floatPtr(freq)
		r.Temperature = floatPtr(temp)
		r.StateOfCharge = floatPtr(soc)
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// InsertHourlyAggregates appends the batch in a single transaction.
func (s *Store) InsertHourlyAggregates(aggregates []types.HourlyAggregate) error {
	if len(aggregates) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(
		"INSERT INTO energy_readings " +
			"(id, device_id, timestamp, voltage, current, power, energy, frequency, temperature) " +
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range aggregates {
		a := &aggregates[i]
		_, err = stmt.Exec(
			a.ID,
			a.DeviceID,
			a.Timestamp.UTC().UnixMilli(),
			a.Voltage,
			a.Current,
			a.Power,
			a.Energy,
			a.Frequency,
			a.Temperature,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert hourly aggregate for %s: %w", a.DeviceID, err)
		}
	}

	return tx.Commit()
}

// HourlyAggregates returns the newest aggregates first. deviceID filters when
// non-empty; limit <= 0 means no limit.
func (s *Store) HourlyAggregates(deviceID string, limit int) ([]types.HourlyAggregate, error) {
	query := "SELECT id, device_id, timestamp, voltage, current, power, energy, frequency, temperature FROM energy_readings"
	args := []any{}
	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY timestamp DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggregates []types.HourlyAggregate
	for rows.Next() {
		var a types.HourlyAggregate
		var ts int64
		var freq, temp sql.NullFloat64
		if err := rows.Scan(&a.ID, &a.DeviceID, &ts, &a.Voltage, &a.Current, &a.Power, &a.Energy, &freq, &temp); err != nil {
			return nil, err
		}
		a.Timestamp = time.UnixMilli(ts).UTC()
		a.Frequency = floatPtr(freq)
		a.Temperature = floatPtr(temp)
		aggregates = append(aggregates, a)
	}
	return aggregates, rows.Err()
}

// UpsertDailyBaseline overwrites the existing row for (device_id, date), so
// re-running a day never double-counts.
func (s *Store) UpsertDailyBaseline(baseline *types.DailyBaseline) error {
	_, err := s.db.Exec(
		"INSERT INTO energy_baselines (device_id, date, total_energy_kwh, created_at) "+
			"VALUES (?, ?, ?, ?) "+
			"ON CONFLICT (device_id, date) DO UPDATE SET "+
			"total_energy_kwh = excluded.total_energy_kwh, created_at = excluded.created_at",
		baseline.DeviceID,
		baseline.Date,
		baseline.TotalEnergyKWH,
		baseline.CreatedAt.UTC().UnixMilli(),
	)
	return err
}

// DailyBaselines returns the newest baselines first. deviceID filters when
// non-empty; limit <= 0 means no limit.
func (s *Store) DailyBaselines(deviceID string, limit int) ([]types.DailyBaseline, error) {
	query := "SELECT device_id, date, total_energy_kwh, created_at FROM energy_baselines"
	args := []any{}
	if deviceID != "" {
		query += " WHERE device_id = ?"
		args = append(args, deviceID)
	}
	query += " ORDER BY date DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var baselines []types.DailyBaseline
	for rows.Next() {
		var b types.DailyBaseline
		var createdAt int64
		if err := rows.Scan(&b.DeviceID, &b.Date, &b.TotalEnergyKWH, &createdAt); err != nil {
			return nil, err
		}
		b.CreatedAt = time.UnixMilli(createdAt).UTC()
		baselines = append(baselines, b)
	}
	return baselines, rows.Err()
}

// LatestHourlyTimestamp returns the newest aggregate timestamp, or ok=false
// when no aggregates exist yet.
func (s *Store) LatestHourlyTimestamp() (time.Time, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow("SELECT MAX(timestamp) FROM energy_readings").Scan(&ts)
	if err != nil {
		return time.Time{}, false, err
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ts.Int64).UTC(), true, nil
}

// PruneReadingsBefore deletes raw, cleaned and normalized rows older than
// cutoff and returns the total number of rows removed. Aggregate tables are
// never pruned here.
func (s *Store) PruneReadingsBefore(cutoff time.Time) (int64, error) {
	var total int64
	cutoffMillis := cutoff.UTC().UnixMilli()

	for _, table := range []string{"modbus_raw", "modbus_cleaned", "modbus_normalized"} {
		res, err := s.db.Exec("DELETE FROM "+table+" WHERE timestamp < ?", cutoffMillis)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}
