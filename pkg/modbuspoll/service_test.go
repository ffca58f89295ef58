package modbuspoll

import (
	"testing"
	"time"

	"github.com/gridmeld/gridmeld/pkg/config"
	"github.com/stretchr/testify/require"
)

func uint16p(v uint16) *uint16 { return &v }

func testConfig() *config.ModbusAgentConfig {
	return &config.ModbusAgentConfig{
		DeviceID:         "meter-01",
		VoltageScale:     0.1,
		CurrentScale:     0.01,
		PowerScale:       0.001,
		EnergyScale:      0.01,
		FrequencyScale:   0.01,
		TemperatureScale: 0.1,
		SocScale:         1,
	}
}

func TestBuildReadingAppliesScales(t *testing.T) {
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	vals := RegisterValues{
		Voltage:   2304, // 230.4 V at 0.1 scale
		Current:   1020, // 10.2 A at 0.01 scale
		Power:     2350, // 2.35 kW at 0.001 scale
		Energy:    115,  // 1.15 kWh at 0.01 scale
		Frequency: uint16p(4998),
	}

	reading := BuildReading(testConfig(), vals, asOf)
	require.Equal(t, "meter-01", reading.DeviceID)
	require.Equal(t, asOf, reading.Timestamp)
	require.InDelta(t, 230.4, reading.Voltage, 1e-9)
	require.InDelta(t, 10.2, reading.Current, 1e-9)
	require.InDelta(t, 2.35, reading.PowerKW, 1e-9)
	require.InDelta(t, 1.15, reading.EnergyKWH, 1e-9)
	require.NotNil(t, reading.Frequency)
	require.InDelta(t, 49.98, *reading.Frequency, 1e-9)
	require.Nil(t, reading.Temperature)
	require.Nil(t, reading.StateOfCharge)
}

func TestBuildReadingOptionalChannels(t *testing.T) {
	asOf := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	vals := RegisterValues{
		Voltage:     2304,
		Current:     1020,
		Power:       2350,
		Energy:      115,
		Temperature: uint16p(215),
		Soc:         uint16p(88),
	}

	reading := BuildReading(testConfig(), vals, asOf)
	require.NotNil(t, reading.Temperature)
	require.InDelta(t, 21.5, *reading.Temperature, 1e-9)
	require.NotNil(t, reading.StateOfCharge)
	require.InDelta(t, 88.0, *reading.StateOfCharge, 1e-9)
}
