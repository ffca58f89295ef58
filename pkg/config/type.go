package config

type PipelineAPIConfig struct {
	ListenAddress string `toml:"listen_address"`
	ListenPort    int    `toml:"listen_port"`
	DatabasePath  string `toml:"database_path"`

	// Stage lookback windows, matched to the scheduled invocation interval
	CleanLookbackMinutes     int `toml:"clean_lookback_minutes"`
	NormalizeLookbackMinutes int `toml:"normalize_lookback_minutes"`
	HourlyLookbackMinutes    int `toml:"hourly_lookback_minutes"`

	// Raw/cleaned/normalized rows older than this are eligible for cleanup
	RetentionDays int `toml:"retention_days"`

	// When true the API runs its own interval scheduler instead of relying
	// on an external one (cron, systemd timers).
	RunScheduler bool `toml:"run_scheduler"`
}

type ModbusAgentConfig struct {
	DeviceID            string `toml:"device_id"`
	DeviceName          string `toml:"device_name"`
	TargetAddress       string `toml:"target_address"`
	SlaveID             int    `toml:"slave_id"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	DatabasePath        string `toml:"database_path"`

	// Holding register layout of the target device.
	// A register of -1 disables the channel.
	VoltageRegister     int `toml:"voltage_register"`
	CurrentRegister     int `toml:"current_register"`
	PowerRegister       int `toml:"power_register"`
	EnergyRegister      int `toml:"energy_register"`
	FrequencyRegister   int `toml:"frequency_register"`
	TemperatureRegister int `toml:"temperature_register"`
	SocRegister         int `toml:"soc_register"`

	// Raw register value * scale = engineering unit
	VoltageScale     float64 `toml:"voltage_scale"`
	CurrentScale     float64 `toml:"current_scale"`
	PowerScale       float64 `toml:"power_scale"`
	EnergyScale      float64 `toml:"energy_scale"`
	FrequencyScale   float64 `toml:"frequency_scale"`
	TemperatureScale float64 `toml:"temperature_scale"`
	SocScale         float64 `toml:"soc_scale"`
}

type FeedCollectorConfig struct {
	GatewayHost  string `toml:"gateway_host"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	DatabasePath string `toml:"database_path"`
}
