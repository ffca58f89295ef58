package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/gridmeld/gridmeld/pkg/pathing"
)

var (
	ActivePipelineAPIConfig   *PipelineAPIConfig
	ActiveModbusAgentConfig   *ModbusAgentConfig
	ActiveFeedCollectorConfig *FeedCollectorConfig
)

func LoadPipelineAPIConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "pipeline_api.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &PipelineAPIConfig{
			ListenAddress:            "0.0.0.0",
			ListenPort:               9040,
			DatabasePath:             pathing.GetTelemetryDbPath(),
			CleanLookbackMinutes:     5,
			NormalizeLookbackMinutes: 5,
			HourlyLookbackMinutes:    60,
			RetentionDays:            90,
			RunScheduler:             false,
		}
		if err := writeDefault(configPath, cfg); err != nil {
			return err
		}
		ActivePipelineAPIConfig = cfg
		return nil
	}

	// Load existing config
	var cfg PipelineAPIConfig
	_, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return err
	}
	ActivePipelineAPIConfig = &cfg
	return nil
}

func LoadModbusAgentConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "modbus_agent.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &ModbusAgentConfig{
			DeviceID:            "meter-01",
			DeviceName:          "Main feed meter",
			TargetAddress:       "192.168.1.50:502",
			SlaveID:             1,
			PollIntervalSeconds: 30,
			DatabasePath:        pathing.GetTelemetryDbPath(),
			// Common single-phase energy meter layout
			VoltageRegister:     0,
			CurrentRegister:     1,
			PowerRegister:       2,
			EnergyRegister:      3,
			FrequencyRegister:   4,
			TemperatureRegister: -1,
			SocRegister:         -1,
			VoltageScale:        0.1,
			CurrentScale:        0.01,
			PowerScale:          0.001,
			EnergyScale:         0.01,
			FrequencyScale:      0.01,
			TemperatureScale:    0.1,
			SocScale:            1,
		}
		if err := writeDefault(configPath, cfg); err != nil {
			return err
		}
		ActiveModbusAgentConfig = cfg
		return nil
	}

	// Load existing config
	var cfg ModbusAgentConfig
	_, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return err
	}
	ActiveModbusAgentConfig = &cfg
	return nil
}

func LoadFeedCollectorConfig() error {
	configPath := filepath.Join(pathing.GetConfigDir(), "feed_collector.toml")

	// Create default if not exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := &FeedCollectorConfig{
			GatewayHost:  "localhost:9039",
			TLSEnabled:   false,
			DatabasePath: pathing.GetTelemetryDbPath(),
		}
		if err := writeDefault(configPath, cfg); err != nil {
			return err
		}
		ActiveFeedCollectorConfig = cfg
		return nil
	}

	// Load existing config
	var cfg FeedCollectorConfig
	_, err := toml.DecodeFile(configPath, &cfg)
	if err != nil {
		return err
	}
	ActiveFeedCollectorConfig = &cfg
	return nil
}

func writeDefault(configPath string, cfg any) error {
	cfgFile, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer cfgFile.Close()
	return toml.NewEncoder(cfgFile).Encode(cfg)
}
