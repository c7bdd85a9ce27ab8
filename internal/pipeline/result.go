package pipeline

import (
	"time"

	"github.com/malbeclabs/fraudprep/internal/artifact"
	"github.com/malbeclabs/fraudprep/internal/dataset"
	"github.com/malbeclabs/fraudprep/internal/eda"
)

const (
	DatasetFraud      = "fraud"
	DatasetCreditCard = "creditcard"

	SplitTrain = "train"
	SplitTest  = "test"
)

type DatasetReport struct {
	Clean         dataset.CleanStats `json:"clean"`
	Balance       eda.ClassBalance   `json:"balance"`
	TrainRows     int                `json:"train_rows,omitempty"`
	TestRows      int                `json:"test_rows,omitempty"`
	SyntheticRows int                `json:"synthetic_rows,omitempty"`
	Features      []string           `json:"features,omitempty"`
}

// Result is the manifest of a run. It is written as manifest.json next to the processed
// arrays, listing every other artifact of the run.
type Result struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Resolver        string    `json:"resolver"`
	IPRanges        int       `json:"ip_ranges,omitempty"`
	IPRangeOverlaps int       `json:"ip_range_overlaps,omitempty"`
	UnknownCountry  int       `json:"unknown_country"`

	Fraud      DatasetReport `json:"fraud"`
	CreditCard DatasetReport `json:"creditcard"`

	Figures  []string        `json:"figures,omitempty"`
	Files    []artifact.File `json:"files,omitempty"`
	Uploaded []string        `json:"uploaded,omitempty"`
}
