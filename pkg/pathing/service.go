package pathing

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Ensure directories exist on startup
func init() {
	// Directories that must exist:
	dirs := []string{
		GetDataDir(),
		GetConfigDir(),
	}

	if err := EnsureDirs(dirs...); err != nil {
		log.Fatal().Err(err).Msg("failed to create required directories")
	}
}

// EnsureDirs creates every listed directory that does not exist yet.
func EnsureDirs(dirs ...string) error {
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetTelemetryDbPath() string {
	// Join path
	return filepath.Join(GetDataDir(), "gridmeld-telemetry.db")
}

// GRIDMELD_DATA_DIR overrides the default so containers can relocate it.
func GetDataDir() string {
	if dir := os.Getenv("GRIDMELD_DATA_DIR"); dir != "" {
		return dir
	}
	return "/var/lib/gridmeld"
}

// GRIDMELD_CONFIG_DIR overrides the default so containers can relocate it.
func GetConfigDir() string {
	if dir := os.Getenv("GRIDMELD_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "/etc/gridmeld"
}
