package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/fraudprep/internal/logging"
)

func TestFraudPrep_Logging_ConsoleOnly(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, closeFn, err := logging.New(logging.Options{Console: &buf})
	require.NoError(t, err)
	defer closeFn()

	log.Debug("hidden")
	log.Info("dataset: loaded csv", "rows", 3)
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "dataset: loaded csv")
}

func TestFraudPrep_Logging_FileFanout(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "preprocessing.log")
	log, closeFn, err := logging.New(logging.Options{Console: &buf, File: path})
	require.NoError(t, err)

	log.With("stage", "load").Debug("dataset: staged", "rows", 5)
	log.WithGroup("geo").Info("resolved", "unknown", 2)
	require.NoError(t, closeFn())

	require.NotContains(t, buf.String(), "dataset: staged")
	require.Contains(t, buf.String(), "resolved")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.Equal(t, "dataset: staged", first["msg"])
	require.Equal(t, "load", first["stage"])
	require.EqualValues(t, 5, first["rows"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	require.Equal(t, map[string]any{"unknown": float64(2)}, second["geo"])
}

func TestFraudPrep_Logging_Fanout_Enabled(t *testing.T) {
	t.Parallel()

	warn := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	info := slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelInfo})
	h := logging.Fanout(warn, info)
	require.True(t, h.Enabled(t.Context(), slog.LevelInfo))
	require.False(t, h.Enabled(t.Context(), slog.LevelDebug))
}
