package artifact_test

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/fraudprep/config"
	"github.com/malbeclabs/fraudprep/internal/artifact"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	r, err := artifact.Open(path)
	require.NoError(t, err)
	defer r.Close()
	recs, err := csv.NewReader(r).ReadAll()
	require.NoError(t, err)
	return recs
}

func TestFraudPrep_Artifact_FileNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "X_fraud_train.csv", artifact.MatrixFile("fraud", "train"))
	require.Equal(t, "y_creditcard_test.csv", artifact.LabelFile("creditcard", "test"))
	require.Equal(t, "", artifact.Suffix(config.CompressionNone))
	require.Equal(t, ".gz", artifact.Suffix(config.CompressionGzip))
	require.Equal(t, ".zst", artifact.Suffix(config.CompressionZstd))
}

func TestFraudPrep_Artifact_WriteMatrixAndLabels(t *testing.T) {
	t.Parallel()

	for _, compression := range []string{config.CompressionNone, config.CompressionGzip, config.CompressionZstd} {
		t.Run(compression, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			w, err := artifact.NewWriter(slog.New(slog.DiscardHandler), dir, compression)
			require.NoError(t, err)

			require.NoError(t, w.WriteMatrix("X_fraud_train.csv", [][]float64{{1.5, -0.25, 0}, {1e-05, 2, 3}}))
			require.NoError(t, w.WriteLabels("y_fraud_train.csv", "class", []int{0, 1}))

			files := w.Files()
			require.Len(t, files, 2)
			suffix := artifact.Suffix(compression)
			require.Equal(t, "X_fraud_train.csv"+suffix, files[0].Name)
			require.Equal(t, 2, files[0].Rows)

			require.Equal(t, [][]string{
				{"0", "1", "2"},
				{"1.5", "-0.25", "0"},
				{"1e-05", "2", "3"},
			}, readCSV(t, files[0].Path))
			require.Equal(t, [][]string{{"class"}, {"0"}, {"1"}}, readCSV(t, files[1].Path))

			for _, f := range files {
				raw, err := os.ReadFile(f.Path)
				require.NoError(t, err)
				sum := sha256.Sum256(raw)
				require.Equal(t, hex.EncodeToString(sum[:]), f.SHA256)
				require.Equal(t, int64(len(raw)), f.Bytes)
			}
		})
	}
}

func TestFraudPrep_Artifact_WriteMatrix_Ragged(t *testing.T) {
	t.Parallel()

	w, err := artifact.NewWriter(slog.New(slog.DiscardHandler), t.TempDir(), "")
	require.NoError(t, err)
	require.Error(t, w.WriteMatrix("X.csv", [][]float64{{1, 2}, {3}}))
	require.Empty(t, w.Files())
}

func TestFraudPrep_Artifact_WriteJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := artifact.NewWriter(slog.New(slog.DiscardHandler), dir, config.CompressionGzip)
	require.NoError(t, err)

	type scaler struct {
		Mean []float64 `json:"mean"`
	}
	require.NoError(t, w.WriteJSON(artifact.FileScaler, scaler{Mean: []float64{1, 2}}))

	f, err := artifact.Open(filepath.Join(dir, artifact.FileScaler))
	require.NoError(t, err)
	defer f.Close()
	raw, err := io.ReadAll(f)
	require.NoError(t, err)

	var got scaler
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, []float64{1, 2}, got.Mean)
	require.Equal(t, artifact.FileScaler, w.Files()[0].Name)
}

func TestFraudPrep_Artifact_NewWriter_Errors(t *testing.T) {
	t.Parallel()

	_, err := artifact.NewWriter(nil, t.TempDir(), "")
	require.Error(t, err)

	_, err = artifact.NewWriter(slog.New(slog.DiscardHandler), t.TempDir(), "lz4")
	require.Error(t, err)
}
