package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	ReasonMissing   = "missing"
	ReasonDuplicate = "duplicate"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fraudprep_build_info",
		Help: "Build information of the fraud data preparation pipeline",
	}, []string{"version", "commit", "date"})

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fraudprep_runs_total",
		Help: "Total number of pipeline runs by outcome",
	}, []string{"status"})

	RowsRead = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fraudprep_rows_read",
		Help: "Rows read from each raw dataset in the last run",
	}, []string{"dataset"})

	RowsDropped = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fraudprep_rows_dropped",
		Help: "Rows removed while cleaning each dataset in the last run",
	}, []string{"dataset", "reason"})

	RowsKept = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fraudprep_rows_kept",
		Help: "Rows left after cleaning each dataset in the last run",
	}, []string{"dataset"})

	UnknownCountryRows = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fraudprep_unknown_country_rows",
		Help: "Transactions whose IP address matched no known range in the last run",
	})

	SyntheticRows = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fraudprep_synthetic_rows",
		Help: "Minority rows synthesised by oversampling in the last run",
	}, []string{"dataset"})

	StageDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fraudprep_stage_duration_seconds",
		Help: "Wall time of each pipeline stage in the last run",
	}, []string{"stage"})

	ArtifactsWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fraudprep_artifacts_written",
		Help: "Files written to the output directory in the last run",
	})

	ArtifactsUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraudprep_artifacts_uploaded_total",
		Help: "Total number of artifacts uploaded to object storage",
	})
)

// WriteTextfile writes every registered metric in the text exposition format to path,
// for pickup by the node exporter textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
