package config

import "time"

const (
	// Input defaults mirror the raw dataset layout under data/raw.
	DefaultFraudPath      = "data/raw/Fraud_Data.csv"
	DefaultIPCountryPath  = "data/raw/IpAddress_to_Country.csv"
	DefaultCreditCardPath = "data/raw/creditcard.csv"

	// Output defaults.
	DefaultProcessedDir = "data/processed"
	DefaultFiguresDir   = "reports/figures"
	DefaultLogFile      = "logs/preprocessing.log"

	DefaultCreditCardLabel = "Class"
	DefaultTestSize        = 0.2
	DefaultSeed            = 42
	DefaultKNeighbors      = 5

	DefaultGeoCacheTTL      = 1 * time.Hour
	DefaultGeoCacheCapacity = 100_000

	DefaultUploadRegion     = "us-east-1"
	DefaultUploadMaxRetries = 5

	CompressionNone = "none"
	CompressionGzip = "gzip"
	CompressionZstd = "zstd"

	EnvPrefix = "FRAUDPREP_"
)

// DefaultHighRiskCountries are the countries flagged by the high_risk_country feature.
var DefaultHighRiskCountries = []string{"Luxembourg", "Ecuador", "Tunisia", "Peru", "Bolivia"}
