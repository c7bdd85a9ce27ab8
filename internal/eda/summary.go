// Package eda summarizes class imbalance and renders exploratory plots of the cleaned
// datasets.
package eda

import (
	"cmp"
	"fmt"
	"io"
	"slices"

	"github.com/olekukonko/tablewriter"

	"github.com/malbeclabs/fraudprep/internal/features"
)

type ClassBalance struct {
	Dataset        string  `json:"dataset"`
	Total          int     `json:"total"`
	Legit          int     `json:"legit"`
	Fraud          int     `json:"fraud"`
	FraudRatio     float64 `json:"fraud_ratio"`
	ImbalanceRatio float64 `json:"imbalance_ratio"`
}

// Summarize counts the binary labels. ImbalanceRatio is majority over minority count,
// zero when a class is absent.
func Summarize(name string, labels []int) ClassBalance {
	b := ClassBalance{Dataset: name, Total: len(labels)}
	for _, y := range labels {
		if y == 1 {
			b.Fraud++
		} else {
			b.Legit++
		}
	}
	if b.Total > 0 {
		b.FraudRatio = float64(b.Fraud) / float64(b.Total)
	}
	if lo := min(b.Fraud, b.Legit); lo > 0 {
		b.ImbalanceRatio = float64(max(b.Fraud, b.Legit)) / float64(lo)
	}
	return b
}

func RenderTable(w io.Writer, balances []ClassBalance) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader([]string{"Dataset", "Rows (#)", "Legit (#)", "Fraud (#)", "Fraud\n(%)", "Imbalance\nRatio"})
	for _, b := range balances {
		table.Append([]string{
			b.Dataset,
			fmt.Sprintf("%d", b.Total),
			fmt.Sprintf("%d", b.Legit),
			fmt.Sprintf("%d", b.Fraud),
			fmt.Sprintf("%.2f%%", b.FraudRatio*100),
			fmt.Sprintf("%.1f", b.ImbalanceRatio),
		})
	}
	table.Render()
}

// FraudRateByHour returns the share of fraudulent purchases per hour of day.
func FraudRateByHour(records []features.Record) [24]float64 {
	var total, fraud [24]int
	for _, r := range records {
		total[r.HourOfDay]++
		fraud[r.HourOfDay] += r.Class
	}
	var out [24]float64
	for h := range out {
		if total[h] > 0 {
			out[h] = float64(fraud[h]) / float64(total[h])
		}
	}
	return out
}

type CountryRate struct {
	Country      string
	Transactions int
	Fraud        int
	Rate         float64
}

// TopCountries returns the n countries with the most transactions, busiest first.
func TopCountries(records []features.Record, n int) []CountryRate {
	byCountry := make(map[string]*CountryRate)
	for _, r := range records {
		c, ok := byCountry[r.Country]
		if !ok {
			c = &CountryRate{Country: r.Country}
			byCountry[r.Country] = c
		}
		c.Transactions++
		c.Fraud += r.Class
	}

	out := make([]CountryRate, 0, len(byCountry))
	for _, c := range byCountry {
		c.Rate = float64(c.Fraud) / float64(c.Transactions)
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b CountryRate) int {
		if r := cmp.Compare(b.Transactions, a.Transactions); r != 0 {
			return r
		}
		return cmp.Compare(a.Country, b.Country)
	})
	return out[:min(n, len(out))]
}
