// Package preprocess holds the fitted transformations applied to model inputs: standard
// scaling, one-hot encoding, the column transformer combining them, the stratified
// train/test split and SMOTE oversampling.
package preprocess

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	ErrNotFitted       = errors.New("transformer is not fitted")
	ErrEmptyInput      = errors.New("empty input")
	ErrWidthMismatch   = errors.New("row width does not match fitted width")
	ErrUnknownCategory = errors.New("unknown category")
	ErrStratify        = errors.New("cannot stratify split")
	ErrTooFewMinority  = errors.New("too few minority samples")
)

// StandardScaler removes the mean and scales each column to unit population variance.
// Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean     []float64 `json:"mean"`
	Var      []float64 `json:"var"`
	Scale    []float64 `json:"scale"`
	NSamples int       `json:"n_samples_seen"`
	Columns  []string  `json:"feature_names_in,omitempty"`
}

func (s *StandardScaler) Fitted() bool {
	return s.Scale != nil
}

func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return ErrEmptyInput
	}
	width := len(X[0])
	col := make([]float64, len(X))
	mean := make([]float64, width)
	variance := make([]float64, width)
	scale := make([]float64, width)
	for j := range width {
		for i, row := range X {
			if len(row) != width {
				return fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), width, ErrWidthMismatch)
			}
			col[i] = row[j]
		}
		mean[j], variance[j] = stat.PopMeanVariance(col, nil)
		scale[j] = math.Sqrt(variance[j])
		if scale[j] == 0 || math.IsNaN(scale[j]) {
			scale[j] = 1
		}
	}
	s.Mean, s.Var, s.Scale, s.NSamples = mean, variance, scale, len(X)
	return nil
}

func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	if !s.Fitted() {
		return nil, ErrNotFitted
	}
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(s.Scale) {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), len(s.Scale), ErrWidthMismatch)
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

func (s *StandardScaler) FitTransform(X [][]float64) ([][]float64, error) {
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}
