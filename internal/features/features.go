// Package features derives behavioral features from cleaned transactions.
package features

import (
	"slices"
	"time"

	"github.com/malbeclabs/fraudprep/internal/dataset"
	"github.com/malbeclabs/fraudprep/internal/geo"
)

const (
	ColTimeSinceSignupHours = "time_since_signup_hours"
	ColHourOfDay            = "hour_of_day"
	ColDayOfWeek            = "day_of_week"
	ColTransactionFrequency = "transaction_frequency"
	ColVelocity             = "velocity"
	ColHighRiskCountry      = "high_risk_country"
)

// NumericColumns are the scaled model inputs.
var NumericColumns = []string{
	dataset.ColPurchaseValue,
	dataset.ColAge,
	ColTimeSinceSignupHours,
	ColVelocity,
	ColTransactionFrequency,
}

// CategoricalColumns are the one-hot encoded model inputs.
var CategoricalColumns = []string{
	dataset.ColSource,
	dataset.ColBrowser,
	dataset.ColSex,
	dataset.ColCountry,
}

type Record struct {
	dataset.Transaction

	TimeSinceSignupHours float64
	HourOfDay            int
	DayOfWeek            int
	TransactionFrequency int
	Velocity             float64
	HighRiskCountry      int
}

func (r Record) Numeric(name string) (float64, bool) {
	switch name {
	case dataset.ColPurchaseValue:
		return r.PurchaseValue, true
	case dataset.ColAge:
		return float64(r.Age), true
	case dataset.ColUserID:
		return float64(r.UserID), true
	case dataset.ColIPAddress:
		return float64(r.IPAddress), true
	case ColTimeSinceSignupHours:
		return r.TimeSinceSignupHours, true
	case ColHourOfDay:
		return float64(r.HourOfDay), true
	case ColDayOfWeek:
		return float64(r.DayOfWeek), true
	case ColTransactionFrequency:
		return float64(r.TransactionFrequency), true
	case ColVelocity:
		return r.Velocity, true
	case ColHighRiskCountry:
		return float64(r.HighRiskCountry), true
	}
	return 0, false
}

func (r Record) Categorical(name string) (string, bool) {
	switch name {
	case dataset.ColSource:
		return r.Source, true
	case dataset.ColBrowser:
		return r.Browser, true
	case dataset.ColSex:
		return r.Sex, true
	case dataset.ColCountry:
		return r.Country, true
	case dataset.ColDeviceID:
		return r.DeviceID, true
	}
	return "", false
}

// Geolocate sets the country of every transaction and returns how many could not be
// resolved.
func Geolocate(resolver geo.Resolver, txs []dataset.Transaction) int {
	unknown := 0
	for i := range txs {
		txs[i].Country = resolver.Country(txs[i].IPAddress)
		if txs[i].Country == geo.Unknown {
			unknown++
		}
	}
	return unknown
}

// Derive computes the behavioral features of each transaction. Transaction frequency
// counts rows sharing a user id across the whole input.
func Derive(txs []dataset.Transaction, highRisk []string) []Record {
	perUser := make(map[int64]int, len(txs))
	for _, tx := range txs {
		perUser[tx.UserID]++
	}

	out := make([]Record, len(txs))
	for i, tx := range txs {
		hours := tx.PurchaseTime.Sub(tx.SignupTime).Hours()
		out[i] = Record{
			Transaction:          tx,
			TimeSinceSignupHours: hours,
			HourOfDay:            tx.PurchaseTime.Hour(),
			DayOfWeek:            Weekday(tx.PurchaseTime),
			TransactionFrequency: perUser[tx.UserID],
			Velocity:             Velocity(tx.PurchaseValue, hours),
		}
		if slices.Contains(highRisk, tx.Country) {
			out[i].HighRiskCountry = 1
		}
	}
	return out
}

// Weekday returns the day of the week with Monday as 0 and Sunday as 6.
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// Velocity is the purchase value per hour since signup, offset by one hour. Purchases
// recorded before signup use a zero elapsed time.
func Velocity(value, hours float64) float64 {
	return value / (max(hours, 0) + 1)
}

// Labels returns the fraud label of every record.
func Labels(records []Record) []int {
	out := make([]int, len(records))
	for i := range records {
		out[i] = records[i].Class
	}
	return out
}
