package main

import (
	"github.com/spf13/pflag"

	"github.com/malbeclabs/fraudprep/config"
)

// Flags override the config file and environment only when set explicitly.
const (
	flagFraud           = "fraud"
	flagIPCountry       = "ip-country"
	flagCreditCard      = "creditcard"
	flagMMDB            = "mmdb"
	flagOutputDir       = "output-dir"
	flagFiguresDir      = "figures-dir"
	flagCompression     = "compression"
	flagTestSize        = "test-size"
	flagSeed            = "seed"
	flagOversample      = "oversample"
	flagKNeighbors      = "k-neighbors"
	flagNoEDA           = "no-eda"
	flagLogFile         = "log-file"
	flagMetricsTextfile = "metrics-textfile"
	flagUploadBucket    = "upload-bucket"
	flagUploadPrefix    = "upload-prefix"
	flagUploadEndpoint  = "upload-endpoint"
)

func addInputFlags(fs *pflag.FlagSet) {
	fs.String(flagFraud, config.DefaultFraudPath, "Fraud_Data CSV path")
	fs.String(flagIPCountry, config.DefaultIPCountryPath, "IP range to country CSV path")
	fs.String(flagCreditCard, config.DefaultCreditCardPath, "creditcard CSV path")
	fs.String(flagMMDB, "", "MaxMind country database used instead of the IP range CSV")
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.String(flagOutputDir, config.DefaultProcessedDir, "Directory for processed arrays and transformers")
	fs.String(flagFiguresDir, config.DefaultFiguresDir, "Directory for EDA figures")
	fs.String(flagCompression, config.CompressionNone, "CSV output compression (none, gzip, zstd)")
	fs.Float64(flagTestSize, config.DefaultTestSize, "Fraction of rows held out for testing")
	fs.Uint64(flagSeed, config.DefaultSeed, "Seed for the split and oversampling")
	fs.Bool(flagOversample, false, "Oversample the minority class of the training sets with SMOTE")
	fs.Int(flagKNeighbors, config.DefaultKNeighbors, "SMOTE nearest neighbors")
	fs.Bool(flagNoEDA, false, "Skip EDA figures")
	fs.String(flagLogFile, config.DefaultLogFile, "Log file, empty to disable")
	fs.String(flagMetricsTextfile, "", "Write run metrics to this node-exporter textfile")
	fs.String(flagUploadBucket, "", "Upload artifacts to this S3 bucket")
	fs.String(flagUploadPrefix, "", "Key prefix for uploaded artifacts")
	fs.String(flagUploadEndpoint, "", "Custom S3 endpoint, e.g. MinIO")
}

func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	str(flagFraud, &cfg.Input.FraudPath)
	str(flagIPCountry, &cfg.Input.IPCountryPath)
	str(flagCreditCard, &cfg.Input.CreditCardPath)
	str(flagMMDB, &cfg.Geo.MMDBPath)
	str(flagOutputDir, &cfg.Output.ProcessedDir)
	str(flagFiguresDir, &cfg.Output.FiguresDir)
	str(flagCompression, &cfg.Output.Compression)
	str(flagLogFile, &cfg.Log.File)
	str(flagMetricsTextfile, &cfg.Metrics.Textfile)
	str(flagUploadPrefix, &cfg.Upload.Prefix)
	str(flagUploadEndpoint, &cfg.Upload.Endpoint)
	if err != nil {
		return err
	}

	changed := func(name string) bool { return fs.Lookup(name) != nil && fs.Changed(name) }
	if changed(flagUploadBucket) {
		if cfg.Upload.Bucket, err = fs.GetString(flagUploadBucket); err != nil {
			return err
		}
		cfg.Upload.Enabled = cfg.Upload.Bucket != ""
	}
	if changed(flagTestSize) {
		if cfg.Split.TestSize, err = fs.GetFloat64(flagTestSize); err != nil {
			return err
		}
	}
	if changed(flagSeed) {
		seed, err := fs.GetUint64(flagSeed)
		if err != nil {
			return err
		}
		cfg.Split.Seed, cfg.Oversample.Seed = seed, seed
	}
	if changed(flagOversample) {
		if cfg.Oversample.Enabled, err = fs.GetBool(flagOversample); err != nil {
			return err
		}
	}
	if changed(flagKNeighbors) {
		if cfg.Oversample.KNeighbors, err = fs.GetInt(flagKNeighbors); err != nil {
			return err
		}
	}
	if changed(flagNoEDA) {
		noEDA, err := fs.GetBool(flagNoEDA)
		if err != nil {
			return err
		}
		cfg.EDA.Enabled = !noEDA
	}
	return nil
}
