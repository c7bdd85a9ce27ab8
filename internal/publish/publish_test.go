package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/fraudprep/internal/artifact"
)

type fakeS3 struct {
	failures int
	calls    int
	objects  map[string][]byte
	md5s     map[string]string
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("slow down")
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.md5s = map[string]string{}
	}
	f.objects[aws.ToString(in.Key)] = body
	f.md5s[aws.ToString(in.Key)] = aws.ToString(in.ContentMD5)
	return &s3.PutObjectOutput{}, nil
}

func writeArtifact(t *testing.T, dir, name, content string) artifact.File {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return artifact.File{Name: name, Path: p}
}

func TestFraudPrep_Publish_Upload_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	files := []artifact.File{
		writeArtifact(t, dir, "X_fraud_train.csv", "0,1\n1.5,2\n"),
		writeArtifact(t, dir, "manifest.json", "{}"),
	}
	client := &fakeS3{failures: 2}
	u, err := NewWithClient(slog.New(slog.DiscardHandler), client, Config{
		Bucket:          "fraud",
		Prefix:          "/processed/",
		MaxRetries:      5,
		InitialInterval: time.Millisecond,
	})
	require.NoError(t, err)

	urls, err := u.Upload(context.Background(), "run-1", files)
	require.NoError(t, err)
	require.Equal(t, []string{
		"s3://fraud/processed/run-1/X_fraud_train.csv",
		"s3://fraud/processed/run-1/manifest.json",
	}, urls)
	require.Equal(t, 4, client.calls)
	require.Equal(t, "0,1\n1.5,2\n", string(client.objects["processed/run-1/X_fraud_train.csv"]))
	require.Equal(t, "mZFLkyvTelC5g8XnyQrpOw==", client.md5s["processed/run-1/manifest.json"])
}

func TestFraudPrep_Publish_Upload_GivesUp(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	client := &fakeS3{failures: 100}
	u, err := NewWithClient(slog.New(slog.DiscardHandler), client, Config{
		Bucket:          "fraud",
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
	})
	require.NoError(t, err)

	urls, err := u.Upload(context.Background(), "run-1", []artifact.File{writeArtifact(t, dir, "a.csv", "x")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "3 attempt(s)")
	require.Empty(t, urls)
	require.Equal(t, 3, client.calls)
}

func TestFraudPrep_Publish_Upload_MissingFile(t *testing.T) {
	t.Parallel()

	client := &fakeS3{}
	u, err := NewWithClient(slog.New(slog.DiscardHandler), client, Config{Bucket: "fraud"})
	require.NoError(t, err)

	_, err = u.Upload(context.Background(), "run-1", []artifact.File{{Name: "a.csv", Path: filepath.Join(t.TempDir(), "a.csv")}})
	require.Error(t, err)
	require.Zero(t, client.calls)
}

func TestFraudPrep_Publish_KeyAndURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      Config
		wantKey  string
		wantURL  string
		fileName string
	}{
		{
			name:     "no prefix",
			cfg:      Config{Bucket: "b"},
			fileName: "scaler.json",
			wantKey:  "r/scaler.json",
			wantURL:  "s3://b/r/scaler.json",
		},
		{
			name:     "prefix and custom endpoint",
			cfg:      Config{Bucket: "b", Prefix: "out", Endpoint: "http://localhost:9000/"},
			fileName: "scaler.json",
			wantKey:  "out/r/scaler.json",
			wantURL:  "http://localhost:9000/b/out/r/scaler.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := NewWithClient(slog.New(slog.DiscardHandler), &fakeS3{}, tt.cfg)
			require.NoError(t, err)
			key := u.Key("r", tt.fileName)
			require.Equal(t, tt.wantKey, key)
			require.Equal(t, tt.wantURL, u.URL(key))
		})
	}
}

func TestFraudPrep_Publish_Config_Validate(t *testing.T) {
	t.Parallel()

	cfg := Config{}
	require.Error(t, cfg.Validate())

	cfg = Config{Bucket: "b"}
	require.NoError(t, cfg.Validate())
	require.Equal(t, uint(5), cfg.MaxRetries)
	require.Positive(t, cfg.InitialInterval)

	_, err := NewWithClient(nil, &fakeS3{}, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = NewWithClient(slog.New(slog.DiscardHandler), nil, Config{Bucket: "b"})
	require.Error(t, err)
}
