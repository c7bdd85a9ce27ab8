package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

type Config struct {
	Input      InputConfig      `yaml:"input"`
	Output     OutputConfig     `yaml:"output"`
	Geo        GeoConfig        `yaml:"geo"`
	Features   FeaturesConfig   `yaml:"features"`
	Split      SplitConfig      `yaml:"split"`
	Oversample OversampleConfig `yaml:"oversample"`
	EDA        EDAConfig        `yaml:"eda"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Upload     UploadConfig     `yaml:"upload"`
}

type InputConfig struct {
	FraudPath       string `yaml:"fraud_path"`
	IPCountryPath   string `yaml:"ip_country_path"`
	CreditCardPath  string `yaml:"creditcard_path"`
	CreditCardLabel string `yaml:"creditcard_label"`
}

type OutputConfig struct {
	ProcessedDir string `yaml:"processed_dir"`
	FiguresDir   string `yaml:"figures_dir"`
	Compression  string `yaml:"compression"`
}

type GeoConfig struct {
	// MMDBPath, when set, resolves countries from a MaxMind database instead of the
	// IP range CSV.
	MMDBPath      string        `yaml:"mmdb_path"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	CacheCapacity uint64        `yaml:"cache_capacity"`
}

type FeaturesConfig struct {
	HighRiskCountries []string `yaml:"high_risk_countries"`
}

type SplitConfig struct {
	TestSize float64 `yaml:"test_size"`
	Seed     uint64  `yaml:"seed"`
}

type OversampleConfig struct {
	Enabled    bool   `yaml:"enabled"`
	KNeighbors int    `yaml:"k_neighbors"`
	Seed       uint64 `yaml:"seed"`
}

type EDAConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LogConfig struct {
	File    string `yaml:"file"`
	Verbose bool   `yaml:"verbose"`
}

type MetricsConfig struct {
	// Textfile is a node-exporter textfile collector path. Empty disables it.
	Textfile string `yaml:"textfile"`
}

type UploadConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Bucket     string `yaml:"bucket"`
	Prefix     string `yaml:"prefix"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	MaxRetries int    `yaml:"max_retries"`
}

// Default returns the configuration used when no file or environment overrides are given.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			FraudPath:       DefaultFraudPath,
			IPCountryPath:   DefaultIPCountryPath,
			CreditCardPath:  DefaultCreditCardPath,
			CreditCardLabel: DefaultCreditCardLabel,
		},
		Output: OutputConfig{
			ProcessedDir: DefaultProcessedDir,
			FiguresDir:   DefaultFiguresDir,
			Compression:  CompressionNone,
		},
		Geo: GeoConfig{
			CacheTTL:      DefaultGeoCacheTTL,
			CacheCapacity: DefaultGeoCacheCapacity,
		},
		Features: FeaturesConfig{
			HighRiskCountries: slices.Clone(DefaultHighRiskCountries),
		},
		Split: SplitConfig{
			TestSize: DefaultTestSize,
			Seed:     DefaultSeed,
		},
		Oversample: OversampleConfig{
			KNeighbors: DefaultKNeighbors,
			Seed:       DefaultSeed,
		},
		EDA: EDAConfig{Enabled: true},
		Log: LogConfig{File: DefaultLogFile},
		Upload: UploadConfig{
			Region:     DefaultUploadRegion,
			MaxRetries: DefaultUploadMaxRetries,
		},
	}
}

// Load builds a config from defaults, an optional YAML file and FRAUDPREP_* environment
// variables, in that order of precedence.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := ApplyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Input.FraudPath == "" {
		return fmt.Errorf("%w: input.fraud_path is required", ErrInvalidConfig)
	}
	if c.Input.IPCountryPath == "" && c.Geo.MMDBPath == "" {
		return fmt.Errorf("%w: one of input.ip_country_path or geo.mmdb_path is required", ErrInvalidConfig)
	}
	if c.Input.CreditCardPath == "" {
		return fmt.Errorf("%w: input.creditcard_path is required", ErrInvalidConfig)
	}
	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return fmt.Errorf("%w: split.test_size must be in (0, 1), got %v", ErrInvalidConfig, c.Split.TestSize)
	}
	switch c.Output.Compression {
	case "":
		c.Output.Compression = CompressionNone
	case CompressionNone, CompressionGzip, CompressionZstd:
	default:
		return fmt.Errorf("%w: unknown output.compression %q", ErrInvalidConfig, c.Output.Compression)
	}
	if c.Oversample.Enabled && c.Oversample.KNeighbors < 1 {
		return fmt.Errorf("%w: oversample.k_neighbors must be at least 1", ErrInvalidConfig)
	}
	if c.Upload.Enabled && c.Upload.Bucket == "" {
		return fmt.Errorf("%w: upload.bucket is required when upload is enabled", ErrInvalidConfig)
	}

	// Optional configuration.
	if c.Input.CreditCardLabel == "" {
		c.Input.CreditCardLabel = DefaultCreditCardLabel
	}
	if c.Output.ProcessedDir == "" {
		c.Output.ProcessedDir = DefaultProcessedDir
	}
	if c.Output.FiguresDir == "" {
		c.Output.FiguresDir = DefaultFiguresDir
	}
	if c.Geo.CacheTTL <= 0 {
		c.Geo.CacheTTL = DefaultGeoCacheTTL
	}
	if c.Geo.CacheCapacity == 0 {
		c.Geo.CacheCapacity = DefaultGeoCacheCapacity
	}
	if c.Features.HighRiskCountries == nil {
		c.Features.HighRiskCountries = slices.Clone(DefaultHighRiskCountries)
	}
	if c.Oversample.KNeighbors <= 0 {
		c.Oversample.KNeighbors = DefaultKNeighbors
	}
	if c.Upload.Region == "" {
		c.Upload.Region = DefaultUploadRegion
	}
	if c.Upload.MaxRetries <= 0 {
		c.Upload.MaxRetries = DefaultUploadMaxRetries
	}
	return nil
}
