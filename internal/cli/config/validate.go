package config

import (
	"fmt"
	"os"
)

// Validate checks that the configuration is internally consistent.
// Filesystem checks are deferred so help and init still work in an
// empty directory.
func (c *Config) Validate() error {
	if c.DatasetsFile == "" {
		return fmt.Errorf("datasets_file is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	return nil
}

// ValidateDataDir checks that the source data directory exists.
func (c *Config) ValidateDataDir() error {
	if _, err := os.Stat(c.DataDir); os.IsNotExist(err) {
		return fmt.Errorf("data directory does not exist: %s\nHint: create it or pass --data-dir", c.DataDir)
	}
	return nil
}
