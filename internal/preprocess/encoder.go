package preprocess

import (
	"fmt"
	"slices"
)

// OneHotEncoder expands categorical columns into indicator columns. Categories are the
// sorted distinct values seen during Fit.
type OneHotEncoder struct {
	DropFirst     bool       `json:"drop_first"`
	IgnoreUnknown bool       `json:"ignore_unknown"`
	Categories    [][]string `json:"categories"`
}

func (e *OneHotEncoder) Fitted() bool {
	return e.Categories != nil
}

func (e *OneHotEncoder) Fit(X [][]string) error {
	if len(X) == 0 || len(X[0]) == 0 {
		return ErrEmptyInput
	}
	width := len(X[0])
	seen := make([]map[string]struct{}, width)
	for j := range seen {
		seen[j] = make(map[string]struct{})
	}
	for i, row := range X {
		if len(row) != width {
			return fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), width, ErrWidthMismatch)
		}
		for j, v := range row {
			seen[j][v] = struct{}{}
		}
	}
	cats := make([][]string, width)
	for j, set := range seen {
		cats[j] = make([]string, 0, len(set))
		for v := range set {
			cats[j] = append(cats[j], v)
		}
		slices.Sort(cats[j])
	}
	e.Categories = cats
	return nil
}

// Width is the number of output columns.
func (e *OneHotEncoder) Width() int {
	n := 0
	for _, cats := range e.Categories {
		n += len(cats) - e.dropped()
	}
	return n
}

func (e *OneHotEncoder) dropped() int {
	if e.DropFirst {
		return 1
	}
	return 0
}

func (e *OneHotEncoder) Transform(X [][]string) ([][]float64, error) {
	if !e.Fitted() {
		return nil, ErrNotFitted
	}
	width := e.Width()
	drop := e.dropped()
	out := make([][]float64, len(X))
	for i, row := range X {
		if len(row) != len(e.Categories) {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), len(e.Categories), ErrWidthMismatch)
		}
		encoded := make([]float64, width)
		offset := 0
		for j, v := range row {
			cats := e.Categories[j]
			idx, found := slices.BinarySearch(cats, v)
			switch {
			case !found && !e.IgnoreUnknown:
				return nil, fmt.Errorf("column %d value %q: %w", j, v, ErrUnknownCategory)
			case found && idx >= drop:
				encoded[offset+idx-drop] = 1
			}
			offset += len(cats) - drop
		}
		out[i] = encoded
	}
	return out, nil
}

// FeatureNames returns "<column>_<category>" for every output column.
func (e *OneHotEncoder) FeatureNames(columns []string) []string {
	names := make([]string, 0, e.Width())
	for j, cats := range e.Categories {
		col := fmt.Sprintf("x%d", j)
		if j < len(columns) {
			col = columns[j]
		}
		for _, c := range cats[min(e.dropped(), len(cats)):] {
			names = append(names, col+"_"+c)
		}
	}
	return names
}
