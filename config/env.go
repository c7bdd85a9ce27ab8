package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg fields from FRAUDPREP_* variables.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %v", ErrInvalidConfig, EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	str("FRAUD_PATH", &cfg.Input.FraudPath)
	str("IP_COUNTRY_PATH", &cfg.Input.IPCountryPath)
	str("CREDITCARD_PATH", &cfg.Input.CreditCardPath)
	str("CREDITCARD_LABEL", &cfg.Input.CreditCardLabel)
	str("PROCESSED_DIR", &cfg.Output.ProcessedDir)
	str("FIGURES_DIR", &cfg.Output.FiguresDir)
	str("COMPRESSION", &cfg.Output.Compression)
	str("GEOIP_MMDB_PATH", &cfg.Geo.MMDBPath)
	str("LOG_FILE", &cfg.Log.File)
	str("METRICS_TEXTFILE", &cfg.Metrics.Textfile)
	str("UPLOAD_BUCKET", &cfg.Upload.Bucket)
	str("UPLOAD_PREFIX", &cfg.Upload.Prefix)
	str("UPLOAD_REGION", &cfg.Upload.Region)
	str("UPLOAD_ENDPOINT", &cfg.Upload.Endpoint)
	str("UPLOAD_ACCESS_KEY", &cfg.Upload.AccessKey)
	str("UPLOAD_SECRET_KEY", &cfg.Upload.SecretKey)

	for key, dst := range map[string]*bool{
		"OVERSAMPLE":     &cfg.Oversample.Enabled,
		"EDA":            &cfg.EDA.Enabled,
		"VERBOSE":        &cfg.Log.Verbose,
		"UPLOAD_ENABLED": &cfg.Upload.Enabled,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "HIGH_RISK_COUNTRIES"); ok && v != "" {
		var countries []string
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				countries = append(countries, c)
			}
		}
		cfg.Features.HighRiskCountries = countries
	}
	if v, ok := lookup(EnvPrefix + "TEST_SIZE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %sTEST_SIZE: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		cfg.Split.TestSize = f
	}
	if v, ok := lookup(EnvPrefix + "SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sSEED: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		cfg.Split.Seed = seed
		cfg.Oversample.Seed = seed
	}
	if v, ok := lookup(EnvPrefix + "GEO_CACHE_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %sGEO_CACHE_TTL: %v", ErrInvalidConfig, EnvPrefix, err)
		}
		cfg.Geo.CacheTTL = d
	}
	return nil
}
