// Package config provides configuration management for the nhstage CLI.
package config

// Config holds all CLI configuration options.
type Config struct {
	DataDir      string       `koanf:"data_dir"`
	DatabasePath string       `koanf:"database"`
	DatasetsFile string       `koanf:"datasets_file"`
	StatePath    string       `koanf:"state_path"`
	OutputDir    string       `koanf:"output_dir"`
	Environment  string       `koanf:"environment"`
	Verbose      bool         `koanf:"verbose"`
	Upload       UploadConfig `koanf:"upload"`

	// ProjectRoot is the resolved project directory (not a config key).
	ProjectRoot string `koanf:"-"`
}

// UploadConfig holds object storage settings for the upload command.
type UploadConfig struct {
	Endpoint  string   `koanf:"endpoint"`
	AccessKey string   `koanf:"access_key"`
	SecretKey string   `koanf:"secret_key"`
	Region    string   `koanf:"region"`
	UseSSL    bool     `koanf:"use_ssl"`
	Bucket    string   `koanf:"bucket"`
	Prefix    string   `koanf:"prefix"`
	Include   []string `koanf:"include"`
	Exclude   []string `koanf:"exclude"`
	MaxSizeMB int64    `koanf:"max_size_mb"`
}

// Default configuration values.
const (
	DefaultDataDir      = "data"
	DefaultDatabase     = "nh.duckdb"
	DefaultDatasetsFile = "datasets.yml"
	DefaultStateFile    = ".nhstage/state.db"
	DefaultOutputDir    = "out"
	DefaultEnv          = "dev"
)
