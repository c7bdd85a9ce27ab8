package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/fraudprep/config"
)

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addInputFlags(fs)
	addRunFlags(fs)
	return fs
}

func TestFraudPrep_CLI_ApplyFlags_OnlyChanged(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Input.FraudPath = "from-config.csv"
	cfg.Oversample.Enabled = true

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"--output-dir", "out", "--seed", "7", "--no-eda", "--test-size", "0.3"}))
	require.NoError(t, applyFlags(fs, cfg))

	require.Equal(t, "from-config.csv", cfg.Input.FraudPath)
	require.True(t, cfg.Oversample.Enabled)
	require.Equal(t, "out", cfg.Output.ProcessedDir)
	require.Equal(t, uint64(7), cfg.Split.Seed)
	require.Equal(t, uint64(7), cfg.Oversample.Seed)
	require.False(t, cfg.EDA.Enabled)
	require.InDelta(t, 0.3, cfg.Split.TestSize, 1e-12)
}

func TestFraudPrep_CLI_ApplyFlags_Upload(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{
		"--upload-bucket", "fraud-artifacts",
		"--upload-endpoint", "http://localhost:9000",
		"--compression", "zstd",
		"--mmdb", "country.mmdb",
	}))
	require.NoError(t, applyFlags(fs, cfg))
	require.True(t, cfg.Upload.Enabled)
	require.Equal(t, "fraud-artifacts", cfg.Upload.Bucket)
	require.Equal(t, "http://localhost:9000", cfg.Upload.Endpoint)
	require.Equal(t, config.CompressionZstd, cfg.Output.Compression)
	require.Equal(t, "country.mmdb", cfg.Geo.MMDBPath)
	require.NoError(t, cfg.Validate())
}

func TestFraudPrep_CLI_ApplyFlags_InputOnly(t *testing.T) {
	t.Parallel()

	fs := pflag.NewFlagSet("lookup", pflag.ContinueOnError)
	addInputFlags(fs)
	require.NoError(t, fs.Parse([]string{"--ip-country", "ranges.csv"}))

	cfg := config.Default()
	require.NoError(t, applyFlags(fs, cfg))
	require.Equal(t, "ranges.csv", cfg.Input.IPCountryPath)
	require.Equal(t, config.DefaultProcessedDir, cfg.Output.ProcessedDir)
}
