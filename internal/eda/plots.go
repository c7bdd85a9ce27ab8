package eda

import (
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alitto/pond/v2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/malbeclabs/fraudprep/internal/features"
)

const (
	FileFraudClassDistribution      = "fraud_class_distribution.png"
	FileCreditCardClassDistribution = "creditcard_class_distribution.png"
	FilePurchaseValueByClass        = "purchase_value_by_class.png"
	FileFraudRateByHour             = "fraud_rate_by_hour.png"
	FileFraudRateTopCountries       = "fraud_rate_top_countries.png"

	topCountries = 10

	defaultRenderWorkers = 4
)

var (
	legitColor = color.RGBA{R: 66, G: 133, B: 244, A: 255}
	fraudColor = color.RGBA{R: 219, G: 68, B: 55, A: 255}
)

type Plotter struct {
	log    *slog.Logger
	dir    string
	width  vg.Length
	height vg.Length
	pool   pond.ResultPool[string]
}

func NewPlotter(log *slog.Logger, dir string) (*Plotter, error) {
	if log == nil {
		return nil, fmt.Errorf("log is nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create figures dir: %w", err)
	}
	return &Plotter{
		log:    log,
		dir:    dir,
		width:  8 * vg.Inch,
		height: 5 * vg.Inch,
		pool:   pond.NewResultPool[string](defaultRenderWorkers),
	}, nil
}

// All renders every figure concurrently and returns the written paths in a stable
// order. A nil credit-card balance skips its figure.
func (p *Plotter) All(fraud []features.Record, creditcard *ClassBalance) ([]string, error) {
	group := p.pool.NewGroup()
	group.SubmitErr(func() (string, error) {
		fb := Summarize("fraud", features.Labels(fraud))
		return p.ClassDistribution(FileFraudClassDistribution, "E-commerce transactions by class", fb)
	})
	if creditcard != nil {
		cb := *creditcard
		group.SubmitErr(func() (string, error) {
			return p.ClassDistribution(FileCreditCardClassDistribution, "Credit card transactions by class", cb)
		})
	}
	group.SubmitErr(func() (string, error) { return p.PurchaseValueByClass(fraud) })
	group.SubmitErr(func() (string, error) { return p.FraudRateByHour(fraud) })
	group.SubmitErr(func() (string, error) { return p.FraudRateTopCountries(fraud) })

	written, err := group.Wait()
	if err != nil {
		return nil, err
	}
	return written, nil
}

// Close waits for in-flight renders and releases the worker pool.
func (p *Plotter) Close() {
	p.pool.StopAndWait()
}

func (p *Plotter) ClassDistribution(file, title string, b ClassBalance) (string, error) {
	pl := plot.New()
	pl.Title.Text = title
	pl.Y.Label.Text = "Transactions"

	legit, err := plotter.NewBarChart(plotter.Values{float64(b.Legit), 0}, vg.Points(60))
	if err != nil {
		return "", fmt.Errorf("failed to build bar chart: %w", err)
	}
	legit.Color = legitColor
	fraud, err := plotter.NewBarChart(plotter.Values{0, float64(b.Fraud)}, vg.Points(60))
	if err != nil {
		return "", fmt.Errorf("failed to build bar chart: %w", err)
	}
	fraud.Color = fraudColor
	pl.Add(legit, fraud)
	pl.NominalX("Legit (0)", "Fraud (1)")

	return p.save(pl, file)
}

func (p *Plotter) PurchaseValueByClass(records []features.Record) (string, error) {
	var legit, fraud plotter.Values
	for _, r := range records {
		if r.Class == 1 {
			fraud = append(fraud, r.PurchaseValue)
		} else {
			legit = append(legit, r.PurchaseValue)
		}
	}

	pl := plot.New()
	pl.Title.Text = "Purchase value by class"
	pl.Y.Label.Text = "Purchase value"
	for i, vals := range []plotter.Values{legit, fraud} {
		if len(vals) == 0 {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(50), float64(i), vals)
		if err != nil {
			return "", fmt.Errorf("failed to build box plot: %w", err)
		}
		box.FillColor = []color.Color{legitColor, fraudColor}[i]
		pl.Add(box)
	}
	pl.NominalX("Legit (0)", "Fraud (1)")

	return p.save(pl, FilePurchaseValueByClass)
}

func (p *Plotter) FraudRateByHour(records []features.Record) (string, error) {
	rates := FraudRateByHour(records)
	values := make(plotter.Values, len(rates))
	labels := make([]string, len(rates))
	for h, r := range rates {
		values[h] = r * 100
		labels[h] = fmt.Sprintf("%d", h)
	}

	pl := plot.New()
	pl.Title.Text = "Fraud rate by hour of purchase"
	pl.X.Label.Text = "Hour of day"
	pl.Y.Label.Text = "Fraud rate (%)"
	bars, err := plotter.NewBarChart(values, vg.Points(12))
	if err != nil {
		return "", fmt.Errorf("failed to build bar chart: %w", err)
	}
	bars.Color = fraudColor
	pl.Add(bars)
	pl.NominalX(labels...)

	return p.save(pl, FileFraudRateByHour)
}

func (p *Plotter) FraudRateTopCountries(records []features.Record) (string, error) {
	top := TopCountries(records, topCountries)
	values := make(plotter.Values, len(top))
	labels := make([]string, len(top))
	for i, c := range top {
		values[i] = c.Rate * 100
		labels[i] = c.Country
	}

	pl := plot.New()
	pl.Title.Text = fmt.Sprintf("Fraud rate in the %d busiest countries", len(top))
	pl.Y.Label.Text = "Fraud rate (%)"
	if len(top) > 0 {
		bars, err := plotter.NewBarChart(values, vg.Points(30))
		if err != nil {
			return "", fmt.Errorf("failed to build bar chart: %w", err)
		}
		bars.Color = fraudColor
		pl.Add(bars)
		pl.NominalX(labels...)
	}

	return p.save(pl, FileFraudRateTopCountries)
}

func (p *Plotter) save(pl *plot.Plot, file string) (string, error) {
	path := filepath.Join(p.dir, file)
	if err := pl.Save(p.width, p.height, path); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", file, err)
	}
	p.log.Debug("eda: wrote figure", "path", path)
	return path, nil
}
