package types

import (
	"encoding/json"
	"time"
)

// RawReading is a telemetry sample as received from a field gateway.
// Optional sensor channels are nil when the device does not report them.
type RawReading struct {
	DeviceID      string    `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	Voltage       float64   `json:"voltage"`
	Current       float64   `json:"current"`
	PowerKW       float64   `json:"power_kw"`
	EnergyKWH     float64   `json:"energy_kwh"`
	Frequency     *float64  `json:"frequency,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	StateOfCharge *float64  `json:"state_of_charge,omitempty"`
}

// CleanedReading is a RawReading that passed range validation and
// deduplication. At most one exists per (device_id, timestamp).
type CleanedReading struct {
	DeviceID      string    `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	Voltage       float64   `json:"voltage"`
	Current       float64   `json:"current"`
	PowerKW       float64   `json:"power_kw"`
	EnergyKWH     float64   `json:"energy_kwh"`
	Frequency     *float64  `json:"frequency,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	StateOfCharge *float64  `json:"state_of_charge,omitempty"`
}

// NormalizedReading carries the cleaned values rounded to canonical
// precision: 2 decimals for electrical quantities, 1 for temperature.
type NormalizedReading struct {
	DeviceID      string    `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	Voltage       float64   `json:"voltage"`
	Current       float64   `json:"current"`
	PowerKW       float64   `json:"power_kw"`
	EnergyKWH     float64   `json:"energy_kwh"`
	Frequency     *float64  `json:"frequency,omitempty"`
	Temperature   *float64  `json:"temperature,omitempty"`
	StateOfCharge *float64  `json:"state_of_charge,omitempty"`
	NormalizedAt  time.Time `json:"normalized_at"`
}

// HourlyAggregate is one summary row per device per aggregation run,
// holding the arithmetic mean of each metric over the trailing window.
// Stored in energy_readings and consumed directly by the dashboard.
type HourlyAggregate struct {
	ID          string    `json:"id"`
	DeviceID    string    `json:"device_id"`
	Timestamp   time.Time `json:"timestamp"`
	Voltage     float64   `json:"voltage"`
	Current     float64   `json:"current"`
	Power       float64   `json:"power"`
	Energy      float64   `json:"energy"`
	Frequency   *float64  `json:"frequency,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// DailyBaseline is the per-device energy sum for one UTC calendar day.
// Stored in energy_baselines, unique on (device_id, date).
type DailyBaseline struct {
	DeviceID       string    `json:"device_id"`
	Date           string    `json:"date"` // "2006-01-02", UTC
	TotalEnergyKWH float64   `json:"total_energy_kwh"`
	CreatedAt      time.Time `json:"created_at"`
}

// Device is a registry entry. The pipeline only reads it; gateway
// agents register devices on first sight.
type Device struct {
	DeviceID  string    `json:"device_id"`
	Name      string    `json:"name"`
	FirstSeen time.Time `json:"first_seen"`
}

func (r *RawReading) ToJsonBytes() []byte {
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return data
}

// RawReadingFromJsonBytes returns nil if the payload does not parse.
func RawReadingFromJsonBytes(data []byte) *RawReading {
	var reading RawReading
	if err := json.Unmarshal(data, &reading); err != nil {
		return nil
	}
	return &reading
}
