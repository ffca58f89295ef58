// Package modbuspoll reads holding registers from a Modbus TCP energy meter
// and turns them into raw readings.
package modbuspoll

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/goburrow/modbus"
	"github.com/gridmeld/gridmeld/pkg/config"
	"github.com/gridmeld/gridmeld/pkg/types"
	"github.com/rs/zerolog/log"
)

// RegisterValues holds one poll's worth of raw register words. Optional
// channels are nil when the device has no register configured for them.
type RegisterValues struct {
	Voltage     uint16
	Current     uint16
	Power       uint16
	Energy      uint16
	Frequency   *uint16
	Temperature *uint16
	Soc         *uint16
}

// BuildReading applies the configured scale factors to raw register words.
func BuildReading(cfg *config.ModbusAgentConfig, vals RegisterValues, asOf time.Time) *types.RawReading {
	reading := &types.RawReading{
		DeviceID:  cfg.DeviceID,
		Timestamp: asOf,
		Voltage:   float64(vals.Voltage) * cfg.VoltageScale,
		Current:   float64(vals.Current) * cfg.CurrentScale,
		PowerKW:   float64(vals.Power) * cfg.PowerScale,
		EnergyKWH: float64(vals.Energy) * cfg.EnergyScale,
	}
	if vals.Frequency != nil {
		v := float64(*vals.Frequency) * cfg.FrequencyScale
		reading.Frequency = &v
	}
	if vals.Temperature != nil {
		v := float64(*vals.Temperature) * cfg.TemperatureScale
		reading.Temperature = &v
	}
	if vals.Soc != nil {
		v := float64(*vals.Soc) * cfg.SocScale
		reading.StateOfCharge = &v
	}
	return reading
}

type Poller struct {
	cfg     *config.ModbusAgentConfig
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

func New(cfg *config.ModbusAgentConfig) *Poller {
	handler := modbus.NewTCPClientHandler(cfg.TargetAddress)
	handler.Timeout = 5 * time.Second
	handler.SlaveId = byte(cfg.SlaveID)
	return &Poller{
		cfg:     cfg,
		handler: handler,
		client:  modbus.NewClient(handler),
	}
}

func (p *Poller) Connect() error {
	if err := p.handler.Connect(); err != nil {
		return fmt.Errorf("connect to %s: %w", p.cfg.TargetAddress, err)
	}
	log.Info().Str("target", p.cfg.TargetAddress).Msg("connected to modbus device")
	return nil
}

func (p *Poller) Close() {
	p.handler.Close()
}

func (p *Poller) readRegister(register int) (uint16, error) {
	results, err := p.client.ReadHoldingRegisters(uint16(register), 1)
	if err != nil {
		return 0, fmt.Errorf("read register %d: %w", register, err)
	}
	if len(results) < 2 {
		return 0, fmt.Errorf("read register %d: short response", register)
	}
	return binary.BigEndian.Uint16(results), nil
}

func (p *Poller) readOptionalRegister(register int) (*uint16, error) {
	if register < 0 {
		return nil, nil
	}
	v, err := p.readRegister(register)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Poll reads one sample from the device.
func (p *Poller) Poll(asOf time.Time) (*types.RawReading, error) {
	var (
		vals RegisterValues
		err  error
	)

	if vals.Voltage, err = p.readRegister(p.cfg.VoltageRegister); err != nil {
		return nil, err
	}
	if vals.Current, err = p.readRegister(p.cfg.CurrentRegister); err != nil {
		return nil, err
	}
	if vals.Power, err = p.readRegister(p.cfg.PowerRegister); err != nil {
		return nil, err
	}
	if vals.Energy, err = p.readRegister(p.cfg.EnergyRegister); err != nil {
		return nil, err
	}
	if vals.Frequency, err = p.readOptionalRegister(p.cfg.FrequencyRegister); err != nil {
		return nil, err
	}
	if vals.Temperature, err = p.readOptionalRegister(p.cfg.TemperatureRegister); err != nil {
		return nil, err
	}
	if vals.Soc, err = p.readOptionalRegister(p.cfg.SocRegister); err != nil {
		return nil, err
	}

	return BuildReading(p.cfg, vals, asOf), nil
}

// Run polls on the configured interval until ctx is cancelled, passing every
// sample to sink. Poll errors are logged and the loop keeps going.
func (p *Poller) Run(ctx context.Context, sink func(reading *types.RawReading)) {
	interval := time.Duration(p.cfg.PollIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().
		Str("device_id", p.cfg.DeviceID).
		Dur("interval", interval).
		Msg("modbus poller started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("modbus poller stopped")
			return
		case t := <-ticker.C:
			reading, err := p.Poll(t.UTC())
			if err != nil {
				log.Error().Err(err).Msg("modbus poll failed")
				continue
			}
			sink(reading)
		}
	}
}
