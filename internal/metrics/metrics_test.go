package metrics_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/fraudprep/internal/metrics"
)

func TestFraudPrep_Metrics_WriteTextfile(t *testing.T) {
	metrics.RowsRead.WithLabelValues("metrics_test").Set(202)
	metrics.RowsDropped.WithLabelValues("metrics_test", metrics.ReasonDuplicate).Set(1)
	metrics.StageDuration.WithLabelValues("metrics_test").Set(0.5)

	require.Equal(t, 202.0, testutil.ToFloat64(metrics.RowsRead.WithLabelValues("metrics_test")))

	path := filepath.Join(t.TempDir(), "fraudprep.prom")
	require.NoError(t, metrics.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	require.Contains(t, out, `fraudprep_rows_read{dataset="metrics_test"} 202`)
	require.Contains(t, out, `fraudprep_rows_dropped{dataset="metrics_test",reason="duplicate"} 1`)
	require.Contains(t, out, `fraudprep_stage_duration_seconds{stage="metrics_test"} 0.5`)
}

func TestFraudPrep_Metrics_WriteTextfile_BadDir(t *testing.T) {
	err := metrics.WriteTextfile(filepath.Join(t.TempDir(), "missing", "fraudprep.prom"))
	require.Error(t, err)
}
