package eda_test

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/fraudprep/internal/eda"
	"github.com/malbeclabs/fraudprep/internal/features"
)

func records() []features.Record {
	out := make([]features.Record, 0, 40)
	for i := range 40 {
		var r features.Record
		r.HourOfDay = i % 4
		r.PurchaseValue = float64(10 + i)
		r.Country = []string{"Peru", "Japan", "Japan", "China"}[i%4]
		if i%4 == 0 || i%10 == 1 {
			r.Class = 1
		}
		out = append(out, r)
	}
	return out
}

func TestFraudPrep_EDA_Summarize(t *testing.T) {
	t.Parallel()

	b := eda.Summarize("fraud", []int{0, 0, 0, 1, 0, 0, 1, 0})
	require.Equal(t, eda.ClassBalance{
		Dataset:        "fraud",
		Total:          8,
		Legit:          6,
		Fraud:          2,
		FraudRatio:     0.25,
		ImbalanceRatio: 3,
	}, b)

	empty := eda.Summarize("none", nil)
	require.Zero(t, empty.FraudRatio)
	require.Zero(t, empty.ImbalanceRatio)

	oneClass := eda.Summarize("legit", []int{0, 0})
	require.Zero(t, oneClass.ImbalanceRatio)
}

func TestFraudPrep_EDA_RenderTable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	eda.RenderTable(&buf, []eda.ClassBalance{
		eda.Summarize("fraud", []int{0, 0, 0, 1}),
		eda.Summarize("creditcard", []int{0, 1}),
	})
	out := buf.String()
	require.Contains(t, out, "Dataset")
	require.Contains(t, out, "fraud")
	require.Contains(t, out, "creditcard")
	require.Contains(t, out, "25.00%")
	require.Contains(t, out, "50.00%")
}

func TestFraudPrep_EDA_FraudRateByHour(t *testing.T) {
	t.Parallel()

	rates := eda.FraudRateByHour(records())
	// Hour 0 holds i%4==0, always fraud.
	require.InDelta(t, 1.0, rates[0], 1e-12)
	// Hour 1 holds i in {1,5,...,37}; i%10==1 for 1, 21.
	require.InDelta(t, 0.2, rates[1], 1e-12)
	require.InDelta(t, 0.0, rates[2], 1e-12)
	require.InDelta(t, 0.0, rates[23], 1e-12)
}

func TestFraudPrep_EDA_TopCountries(t *testing.T) {
	t.Parallel()

	top := eda.TopCountries(records(), 2)
	require.Len(t, top, 2)
	require.Equal(t, "Japan", top[0].Country)
	require.Equal(t, 20, top[0].Transactions)
	require.Equal(t, "China", top[1].Country)
	require.Equal(t, 10, top[1].Transactions)

	all := eda.TopCountries(records(), 10)
	require.Len(t, all, 3)
	require.Equal(t, "Peru", all[2].Country)
	require.InDelta(t, 1.0, all[2].Rate, 1e-12)
}

func TestFraudPrep_EDA_Plotter_All(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "figures")
	p, err := eda.NewPlotter(slog.New(slog.DiscardHandler), dir)
	require.NoError(t, err)
	t.Cleanup(p.Close)

	cc := eda.Summarize("creditcard", []int{0, 0, 0, 1})
	written, err := p.All(records(), &cc)
	require.NoError(t, err)
	require.Len(t, written, 5)

	for _, name := range []string{
		eda.FileFraudClassDistribution,
		eda.FileCreditCardClassDistribution,
		eda.FilePurchaseValueByClass,
		eda.FileFraudRateByHour,
		eda.FileFraudRateTopCountries,
	} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err, name)
		require.True(t, bytes.HasPrefix(data, []byte("\x89PNG")), name)
	}
}

func TestFraudPrep_EDA_Plotter_SkipsCreditCard(t *testing.T) {
	t.Parallel()

	p, err := eda.NewPlotter(slog.New(slog.DiscardHandler), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(p.Close)
	written, err := p.All(records(), nil)
	require.NoError(t, err)
	require.Len(t, written, 4)
	require.Equal(t, eda.FileFraudClassDistribution, filepath.Base(written[0]))
	require.Equal(t, eda.FileFraudRateTopCountries, filepath.Base(written[3]))

	_, err = eda.NewPlotter(nil, t.TempDir())
	require.Error(t, err)
}
