package preprocess

import (
	"fmt"
	"slices"
)

// Row is a record that exposes named numeric and categorical fields.
type Row interface {
	Numeric(name string) (float64, bool)
	Categorical(name string) (string, bool)
}

// Frame holds the selected model inputs of a set of rows.
type Frame struct {
	Numeric     [][]float64
	Categorical [][]string
}

func (f *Frame) Len() int {
	return max(len(f.Numeric), len(f.Categorical))
}

// Subset returns the rows at idx, in idx order.
func (f *Frame) Subset(idx []int) *Frame {
	out := &Frame{}
	if f.Numeric != nil {
		out.Numeric = make([][]float64, len(idx))
		for i, k := range idx {
			out.Numeric[i] = f.Numeric[k]
		}
	}
	if f.Categorical != nil {
		out.Categorical = make([][]string, len(idx))
		for i, k := range idx {
			out.Categorical[i] = f.Categorical[k]
		}
	}
	return out
}

// Select extracts the named columns from rows.
func Select[R Row](rows []R, numeric, categorical []string) (*Frame, error) {
	f := &Frame{}
	if len(numeric) > 0 {
		f.Numeric = make([][]float64, len(rows))
	}
	if len(categorical) > 0 {
		f.Categorical = make([][]string, len(rows))
	}
	for i, r := range rows {
		if f.Numeric != nil {
			vals := make([]float64, len(numeric))
			for j, name := range numeric {
				v, ok := r.Numeric(name)
				if !ok {
					return nil, fmt.Errorf("unknown numeric column %q", name)
				}
				vals[j] = v
			}
			f.Numeric[i] = vals
		}
		if f.Categorical != nil {
			vals := make([]string, len(categorical))
			for j, name := range categorical {
				v, ok := r.Categorical(name)
				if !ok {
					return nil, fmt.Errorf("unknown categorical column %q", name)
				}
				vals[j] = v
			}
			f.Categorical[i] = vals
		}
	}
	return f, nil
}

// ColumnTransformer scales numeric columns and one-hot encodes categorical columns,
// emitting the scaled block first.
type ColumnTransformer struct {
	NumericFeatures     []string        `json:"numeric_features"`
	CategoricalFeatures []string        `json:"categorical_features"`
	Scaler              *StandardScaler `json:"scaler"`
	Encoder             *OneHotEncoder  `json:"encoder"`
}

// NewColumnTransformer returns a transformer that drops the first category of each
// categorical column and encodes unseen categories as all zeros.
func NewColumnTransformer(numeric, categorical []string) *ColumnTransformer {
	return &ColumnTransformer{
		NumericFeatures:     slices.Clone(numeric),
		CategoricalFeatures: slices.Clone(categorical),
		Scaler:              &StandardScaler{Columns: slices.Clone(numeric)},
		Encoder:             &OneHotEncoder{DropFirst: true, IgnoreUnknown: true},
	}
}

func (ct *ColumnTransformer) Fit(f *Frame) error {
	if f.Len() == 0 {
		return ErrEmptyInput
	}
	if len(ct.NumericFeatures) > 0 {
		if err := ct.Scaler.Fit(f.Numeric); err != nil {
			return fmt.Errorf("failed to fit scaler: %w", err)
		}
	}
	if len(ct.CategoricalFeatures) > 0 {
		if err := ct.Encoder.Fit(f.Categorical); err != nil {
			return fmt.Errorf("failed to fit encoder: %w", err)
		}
	}
	return nil
}

func (ct *ColumnTransformer) Transform(f *Frame) ([][]float64, error) {
	var num, cat [][]float64
	var err error
	if len(ct.NumericFeatures) > 0 {
		if num, err = ct.Scaler.Transform(f.Numeric); err != nil {
			return nil, fmt.Errorf("failed to scale: %w", err)
		}
	}
	if len(ct.CategoricalFeatures) > 0 {
		if cat, err = ct.Encoder.Transform(f.Categorical); err != nil {
			return nil, fmt.Errorf("failed to encode: %w", err)
		}
	}

	out := make([][]float64, f.Len())
	for i := range out {
		var row []float64
		if num != nil {
			row = append(row, num[i]...)
		}
		if cat != nil {
			row = append(row, cat[i]...)
		}
		out[i] = row
	}
	return out, nil
}

func (ct *ColumnTransformer) FitTransform(f *Frame) ([][]float64, error) {
	if err := ct.Fit(f); err != nil {
		return nil, err
	}
	return ct.Transform(f)
}

// FeatureNames names the output columns "num__<column>" and "cat__<column>_<category>".
func (ct *ColumnTransformer) FeatureNames() []string {
	names := make([]string, 0, len(ct.NumericFeatures)+ct.Encoder.Width())
	for _, n := range ct.NumericFeatures {
		names = append(names, "num__"+n)
	}
	if len(ct.CategoricalFeatures) > 0 {
		for _, n := range ct.Encoder.FeatureNames(ct.CategoricalFeatures) {
			names = append(names, "cat__"+n)
		}
	}
	return names
}
