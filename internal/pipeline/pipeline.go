// Package pipeline runs the data preparation stages in order: load and clean the raw
// datasets, geolocate transactions, derive features, optionally plot, then split,
// transform, persist and optionally publish the results.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/malbeclabs/fraudprep/config"
	"github.com/malbeclabs/fraudprep/internal/artifact"
	"github.com/malbeclabs/fraudprep/internal/dataset"
	"github.com/malbeclabs/fraudprep/internal/eda"
	"github.com/malbeclabs/fraudprep/internal/features"
	"github.com/malbeclabs/fraudprep/internal/geo"
	"github.com/malbeclabs/fraudprep/internal/metrics"
	"github.com/malbeclabs/fraudprep/internal/preprocess"
	"github.com/malbeclabs/fraudprep/internal/publish"
)

const runIDFormat = "20060102T150405Z"

// Uploader publishes the files of a run.
type Uploader interface {
	Upload(ctx context.Context, runID string, files []artifact.File) ([]string, error)
}

type Option func(*Pipeline)

func WithClock(clock clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = clock }
}

// WithResolver overrides country resolution from the configured range table or MMDB.
func WithResolver(r geo.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithUploader replaces the S3 uploader and enables the upload stage.
func WithUploader(u Uploader) Option {
	return func(p *Pipeline) { p.uploader = u }
}

// WithConsole sets where the class balance table is printed. Defaults to io.Discard.
func WithConsole(w io.Writer) Option {
	return func(p *Pipeline) { p.console = w }
}

type Pipeline struct {
	cfg      *config.Config
	log      *slog.Logger
	clock    clockwork.Clock
	resolver geo.Resolver
	uploader Uploader
	console  io.Writer
}

func New(cfg *config.Config, log *slog.Logger, opts ...Option) (*Pipeline, error) {
	if log == nil {
		return nil, fmt.Errorf("log is nil")
	}
	if cfg == nil {
		return nil, NewError(ErrorTypeConfig, "config", "config is nil", nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, NewError(ErrorTypeConfig, "config", "invalid configuration", err)
	}
	p := &Pipeline{
		cfg:     cfg,
		log:     log,
		clock:   clockwork.NewRealClock(),
		console: io.Discard,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type stage struct {
	name string
	fn   func(ctx context.Context, r *run) error
}

type splitSet struct {
	trainX, testX [][]float64
	trainY, testY []int
}

// run carries the data threaded through the stages of one invocation.
type run struct {
	result  *Result
	closers []func() error

	txs     []dataset.Transaction
	ranges  []geo.Range
	cc      *dataset.LabeledTable
	records []features.Record

	fraud       splitSet
	creditcard  splitSet
	transformer *preprocess.ColumnTransformer
	scaler      *preprocess.StandardScaler
}

func (r *run) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

// Run executes the full pipeline and returns the run manifest.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	stages := []stage{
		{"load", p.load},
		{"geo", p.geolocate},
		{"features", p.derive},
	}
	if p.cfg.EDA.Enabled {
		stages = append(stages, stage{"eda", p.explore})
	}
	stages = append(stages,
		stage{"transform", p.transform},
		stage{"save", p.save},
	)
	if p.cfg.Upload.Enabled || p.uploader != nil {
		stages = append(stages, stage{"upload", p.upload})
	}
	return p.execute(ctx, stages)
}

// Explore loads, enriches and plots the datasets without splitting or writing arrays.
func (p *Pipeline) Explore(ctx context.Context) (*Result, error) {
	return p.execute(ctx, []stage{
		{"load", p.load},
		{"geo", p.geolocate},
		{"features", p.derive},
		{"eda", p.explore},
	})
}

func (p *Pipeline) execute(ctx context.Context, stages []stage) (*Result, error) {
	started := p.clock.Now().UTC()
	r := &run{result: &Result{RunID: started.Format(runIDFormat), StartedAt: started}}
	defer r.close()

	p.log.Info("pipeline: starting run", "run_id", r.result.RunID, "stages", len(stages))
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			metrics.RunsTotal.WithLabelValues(metrics.StatusFailure).Inc()
			return nil, fmt.Errorf("run cancelled before %s: %w", s.name, err)
		}
		start := p.clock.Now()
		if err := s.fn(ctx, r); err != nil {
			metrics.RunsTotal.WithLabelValues(metrics.StatusFailure).Inc()
			var perr *Error
			if errors.As(err, &perr) {
				p.log.Error("pipeline: stage failed", perr.LogAttrs()...)
			}
			_ = p.writeMetrics()
			return nil, err
		}
		elapsed := p.clock.Since(start)
		metrics.StageDuration.WithLabelValues(s.name).Set(elapsed.Seconds())
		p.log.Debug("pipeline: stage complete", "stage", s.name, "duration", elapsed)
	}
	r.result.FinishedAt = p.clock.Now().UTC()

	metrics.RunsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	if err := p.writeMetrics(); err != nil {
		return nil, NewError(ErrorTypeFileIO, "metrics", "failed to write metrics textfile", err).
			WithContext("path", p.cfg.Metrics.Textfile)
	}
	p.log.Info("pipeline: run complete",
		"run_id", r.result.RunID,
		"duration", r.result.FinishedAt.Sub(r.result.StartedAt),
		"files", len(r.result.Files))
	return r.result, nil
}

func (p *Pipeline) writeMetrics() error {
	if p.cfg.Metrics.Textfile == "" {
		return nil
	}
	if err := metrics.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
		p.log.Warn("pipeline: failed to write metrics", "error", err)
		return err
	}
	return nil
}

func loadError(err error, path string) error {
	errType := ErrorTypeFileIO
	if errors.Is(err, dataset.ErrMissingColumn) || errors.Is(err, dataset.ErrNonBinaryLabel) || errors.Is(err, dataset.ErrEmptyDataset) {
		errType = ErrorTypeValidation
	}
	return NewError(errType, "load", "failed to load dataset", err).WithContext("path", path)
}

func recordClean(name string, stats dataset.CleanStats) {
	metrics.RowsRead.WithLabelValues(name).Set(float64(stats.Read))
	metrics.RowsDropped.WithLabelValues(name, metrics.ReasonMissing).Set(float64(stats.DroppedMissing))
	metrics.RowsDropped.WithLabelValues(name, metrics.ReasonDuplicate).Set(float64(stats.DroppedDuplicate))
	metrics.RowsKept.WithLabelValues(name).Set(float64(stats.Kept))
}

func (p *Pipeline) load(ctx context.Context, r *run) error {
	loader, err := dataset.Open(ctx, p.log)
	if err != nil {
		return NewError(ErrorTypeFileIO, "load", "failed to open loader", err)
	}
	r.closers = append(r.closers, loader.Close)

	in := p.cfg.Input
	txs, stats, err := loader.LoadTransactions(ctx, in.FraudPath)
	if err != nil {
		return loadError(err, in.FraudPath)
	}
	r.txs = txs
	r.result.Fraud.Clean = stats
	r.result.Fraud.Balance = eda.Summarize(DatasetFraud, dataset.Labels(txs))
	recordClean(DatasetFraud, stats)

	if p.resolver == nil && p.cfg.Geo.MMDBPath == "" {
		ranges, err := loader.LoadIPRanges(ctx, in.IPCountryPath)
		if err != nil {
			return loadError(err, in.IPCountryPath)
		}
		r.ranges = ranges
	}

	cc, ccStats, err := loader.LoadLabeled(ctx, in.CreditCardPath, in.CreditCardLabel)
	if err != nil {
		return loadError(err, in.CreditCardPath)
	}
	r.cc = cc
	r.result.CreditCard.Clean = ccStats
	r.result.CreditCard.Balance = eda.Summarize(DatasetCreditCard, cc.Y)
	recordClean(DatasetCreditCard, ccStats)
	return nil
}

func (p *Pipeline) geolocate(_ context.Context, r *run) error {
	resolver := p.resolver
	name := "custom"
	var cached *geo.CachedResolver

	switch {
	case resolver != nil:
	case p.cfg.Geo.MMDBPath != "":
		mmdb, err := geo.OpenMMDB(p.log, p.cfg.Geo.MMDBPath)
		if err != nil {
			return NewError(ErrorTypeFileIO, "geo", "failed to open geoip database", err).
				WithContext("path", p.cfg.Geo.MMDBPath)
		}
		r.closers = append(r.closers, mmdb.Close)
		cached = geo.NewCachedResolver(mmdb, p.cfg.Geo.CacheTTL, p.cfg.Geo.CacheCapacity)
		resolver, name = cached, "mmdb"
	default:
		table := geo.NewTable(r.ranges)
		if n := table.Overlaps(); n > 0 {
			p.log.Warn("geo: ip ranges overlap, later ranges shadow earlier ones", "overlaps", n)
		}
		r.result.IPRanges = table.Len()
		r.result.IPRangeOverlaps = table.Overlaps()
		resolver, name = table, "ip_ranges"
	}

	unknown := features.Geolocate(resolver, r.txs)
	r.result.Resolver = name
	r.result.UnknownCountry = unknown
	metrics.UnknownCountryRows.Set(float64(unknown))

	attrs := []any{"resolver", name, "transactions", len(r.txs), "unknown", unknown}
	if cached != nil {
		hits, misses := cached.Stats()
		attrs = append(attrs, "cache_hits", hits, "cache_misses", misses)
	}
	p.log.Info("geo: resolved countries", attrs...)
	return nil
}

func (p *Pipeline) derive(_ context.Context, r *run) error {
	r.records = features.Derive(r.txs, p.cfg.Features.HighRiskCountries)
	p.log.Info("features: derived", "records", len(r.records))
	return nil
}

func (p *Pipeline) explore(_ context.Context, r *run) error {
	plotter, err := eda.NewPlotter(p.log, p.cfg.Output.FiguresDir)
	if err != nil {
		return NewError(ErrorTypeFileIO, "eda", "failed to prepare figures directory", err).
			WithContext("path", p.cfg.Output.FiguresDir)
	}
	defer plotter.Close()
	cc := r.result.CreditCard.Balance
	figures, err := plotter.All(r.records, &cc)
	if err != nil {
		return NewError(ErrorTypeFileIO, "eda", "failed to render figures", err)
	}
	r.result.Figures = figures
	eda.RenderTable(p.console, []eda.ClassBalance{r.result.Fraud.Balance, cc})
	p.log.Info("eda: wrote figures", "dir", p.cfg.Output.FiguresDir, "count", len(figures))
	return nil
}

func splitError(err error, ds string) error {
	errType := ErrorTypeTransform
	if errors.Is(err, preprocess.ErrStratify) || errors.Is(err, preprocess.ErrTooFewMinority) {
		errType = ErrorTypeValidation
	}
	return NewError(errType, "transform", "failed to prepare "+ds, err).WithContext("dataset", ds)
}

func pick[T any](src []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, k := range idx {
		out[i] = src[k]
	}
	return out
}

func (p *Pipeline) transform(_ context.Context, r *run) error {
	split := p.cfg.Split

	frame, err := preprocess.Select(r.records, features.NumericColumns, features.CategoricalColumns)
	if err != nil {
		return splitError(err, DatasetFraud)
	}
	y := features.Labels(r.records)
	trainIdx, testIdx, err := preprocess.StratifiedSplit(y, split.TestSize, split.Seed)
	if err != nil {
		return splitError(err, DatasetFraud)
	}
	ct := preprocess.NewColumnTransformer(features.NumericColumns, features.CategoricalColumns)
	trainX, err := ct.FitTransform(frame.Subset(trainIdx))
	if err != nil {
		return splitError(err, DatasetFraud)
	}
	testX, err := ct.Transform(frame.Subset(testIdx))
	if err != nil {
		return splitError(err, DatasetFraud)
	}
	r.transformer = ct
	r.fraud = splitSet{trainX: trainX, testX: testX, trainY: pick(y, trainIdx), testY: pick(y, testIdx)}
	r.result.Fraud.Features = ct.FeatureNames()

	trainIdx, testIdx, err = preprocess.StratifiedSplit(r.cc.Y, split.TestSize, split.Seed)
	if err != nil {
		return splitError(err, DatasetCreditCard)
	}
	scaler := &preprocess.StandardScaler{Columns: r.cc.Columns}
	ccTrainX, err := scaler.FitTransform(pick(r.cc.X, trainIdx))
	if err != nil {
		return splitError(err, DatasetCreditCard)
	}
	ccTestX, err := scaler.Transform(pick(r.cc.X, testIdx))
	if err != nil {
		return splitError(err, DatasetCreditCard)
	}
	r.scaler = scaler
	r.creditcard = splitSet{trainX: ccTrainX, testX: ccTestX, trainY: pick(r.cc.Y, trainIdx), testY: pick(r.cc.Y, testIdx)}
	r.result.CreditCard.Features = r.cc.Columns

	for _, ds := range []struct {
		name   string
		set    *splitSet
		report *DatasetReport
	}{
		{DatasetFraud, &r.fraud, &r.result.Fraud},
		{DatasetCreditCard, &r.creditcard, &r.result.CreditCard},
	} {
		ds.report.TrainRows = len(ds.set.trainY)
		ds.report.TestRows = len(ds.set.testY)
		if !p.cfg.Oversample.Enabled {
			continue
		}
		smote := preprocess.SMOTE{K: p.cfg.Oversample.KNeighbors, Seed: p.cfg.Oversample.Seed}
		X, y, err := smote.Resample(ds.set.trainX, ds.set.trainY)
		if err != nil {
			return splitError(err, ds.name)
		}
		ds.report.SyntheticRows = len(y) - len(ds.set.trainY)
		ds.set.trainX, ds.set.trainY = X, y
		metrics.SyntheticRows.WithLabelValues(ds.name).Set(float64(ds.report.SyntheticRows))
		p.log.Info("preprocess: oversampled training set", "dataset", ds.name, "synthetic", ds.report.SyntheticRows)
	}

	p.log.Info("preprocess: split and transformed",
		"fraud_train", r.result.Fraud.TrainRows, "fraud_test", r.result.Fraud.TestRows,
		"fraud_features", len(r.result.Fraud.Features),
		"creditcard_train", r.result.CreditCard.TrainRows, "creditcard_test", r.result.CreditCard.TestRows)
	return nil
}

func (p *Pipeline) save(_ context.Context, r *run) error {
	w, err := artifact.NewWriter(p.log, p.cfg.Output.ProcessedDir, p.cfg.Output.Compression)
	if err != nil {
		return NewError(ErrorTypeFileIO, "save", "failed to prepare output directory", err).
			WithContext("path", p.cfg.Output.ProcessedDir)
	}

	for _, ds := range []struct {
		name  string
		label string
		set   splitSet
	}{
		{DatasetFraud, dataset.ColClass, r.fraud},
		{DatasetCreditCard, r.cc.Label, r.creditcard},
	} {
		for _, part := range []struct {
			split string
			X     [][]float64
			y     []int
		}{
			{SplitTrain, ds.set.trainX, ds.set.trainY},
			{SplitTest, ds.set.testX, ds.set.testY},
		} {
			if err := w.WriteMatrix(artifact.MatrixFile(ds.name, part.split), part.X); err != nil {
				return NewError(ErrorTypeFileIO, "save", "failed to write features", err)
			}
			if err := w.WriteLabels(artifact.LabelFile(ds.name, part.split), ds.label, part.y); err != nil {
				return NewError(ErrorTypeFileIO, "save", "failed to write labels", err)
			}
		}
	}
	if err := w.WriteJSON(artifact.FilePreprocessor, r.transformer); err != nil {
		return NewError(ErrorTypeFileIO, "save", "failed to write preprocessor", err)
	}
	if err := w.WriteJSON(artifact.FileScaler, r.scaler); err != nil {
		return NewError(ErrorTypeFileIO, "save", "failed to write scaler", err)
	}

	r.result.FinishedAt = p.clock.Now().UTC()
	r.result.Files = w.Files()
	if err := w.WriteJSON(artifact.FileManifest, r.result); err != nil {
		return NewError(ErrorTypeFileIO, "save", "failed to write manifest", err)
	}
	r.result.Files = w.Files()
	metrics.ArtifactsWritten.Set(float64(len(r.result.Files)))
	p.log.Info("artifact: saved outputs", "dir", p.cfg.Output.ProcessedDir, "files", len(r.result.Files))
	return nil
}

func (p *Pipeline) upload(ctx context.Context, r *run) error {
	u := p.uploader
	if u == nil {
		up := p.cfg.Upload
		pub, err := publish.New(ctx, p.log, publish.Config{
			Bucket:     up.Bucket,
			Prefix:     up.Prefix,
			Region:     up.Region,
			Endpoint:   up.Endpoint,
			AccessKey:  up.AccessKey,
			SecretKey:  up.SecretKey,
			MaxRetries: uint(up.MaxRetries),
		})
		if err != nil {
			return NewError(ErrorTypeUpload, "upload", "failed to create uploader", err)
		}
		u = pub
	}

	start := p.clock.Now()
	urls, err := u.Upload(ctx, r.result.RunID, r.result.Files)
	metrics.ArtifactsUploaded.Add(float64(len(urls)))
	if err != nil {
		return NewError(ErrorTypeUpload, "upload", "failed to upload artifacts", err).
			WithContext("uploaded", len(urls))
	}
	r.result.Uploaded = urls
	p.log.Info("publish: run uploaded", "files", len(urls), "duration", p.clock.Since(start).Round(time.Millisecond))
	return nil
}
