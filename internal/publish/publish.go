// Package publish uploads run artifacts to S3 or an S3-compatible object store.
package publish

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"

	"github.com/malbeclabs/fraudprep/internal/artifact"
)

// PutObjectAPI is the subset of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	MaxRetries      uint
	InitialInterval time.Duration
}

func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 5
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = backoff.DefaultInitialInterval
	}
	return nil
}

type Uploader struct {
	log    *slog.Logger
	client PutObjectAPI
	cfg    Config
}

// New builds an S3 client from cfg. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain applies.
func New(ctx context.Context, log *slog.Logger, cfg Config) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	if cfg.Endpoint != "" {
		log.Info("publish: using custom s3 endpoint", "endpoint", cfg.Endpoint)
	}
	return NewWithClient(log, client, cfg)
}

func NewWithClient(log *slog.Logger, client PutObjectAPI, cfg Config) (*Uploader, error) {
	if log == nil {
		return nil, fmt.Errorf("log is nil")
	}
	if client == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Uploader{log: log, client: client, cfg: cfg}, nil
}

// Key returns the object key of a file for a run: <prefix>/<run-id>/<name>.
func (u *Uploader) Key(runID, name string) string {
	return path.Join(strings.Trim(u.cfg.Prefix, "/"), runID, name)
}

func (u *Uploader) URL(key string) string {
	if u.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(u.cfg.Endpoint, "/"), u.cfg.Bucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", u.cfg.Bucket, key)
}

// Upload puts every file under the run's prefix and returns the object URLs in file
// order. It stops at the first file that fails after retries.
func (u *Uploader) Upload(ctx context.Context, runID string, files []artifact.File) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return urls, fmt.Errorf("failed to read %s: %w", f.Path, err)
		}
		key := u.Key(runID, f.Name)
		if err := u.put(ctx, key, data); err != nil {
			return urls, err
		}
		urls = append(urls, u.URL(key))
		u.log.Debug("publish: uploaded", "key", key, "bytes", len(data))
	}
	u.log.Info("publish: uploaded artifacts", "bucket", u.cfg.Bucket, "files", len(urls))
	return urls, nil
}

func (u *Uploader) put(ctx context.Context, key string, data []byte) error {
	sum := md5.Sum(data)
	contentMD5 := base64.StdEncoding.EncodeToString(sum[:])

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = u.cfg.InitialInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:     aws.String(u.cfg.Bucket),
			Key:        aws.String(key),
			Body:       bytes.NewReader(data),
			ContentMD5: aws.String(contentMD5),
		})
		if err != nil {
			u.log.Warn("publish: put object failed", "key", key, "attempt", attempt, "error", err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(u.cfg.MaxRetries))
	if err != nil {
		return fmt.Errorf("failed to upload %s after %d attempt(s): %w", key, attempt, err)
	}
	return nil
}
