// Package dataset loads and cleans the raw CSV inputs of the preparation pipeline.
//
// Loading goes through an in-memory DuckDB instance: every file is read with all columns
// as text, rows with a missing field are dropped, exact duplicate rows are dropped while
// keeping the first occurrence in file order, and only then are values cast to their
// typed form. Malformed values fail the load.
package dataset

import (
	"errors"
	"time"
)

var (
	ErrMissingColumn  = errors.New("missing required column")
	ErrEmptyDataset   = errors.New("dataset has no rows after cleaning")
	ErrNonBinaryLabel = errors.New("label is not binary")
)

// Transaction columns, in the order of the raw e-commerce dataset.
const (
	ColUserID        = "user_id"
	ColSignupTime    = "signup_time"
	ColPurchaseTime  = "purchase_time"
	ColPurchaseValue = "purchase_value"
	ColDeviceID      = "device_id"
	ColSource        = "source"
	ColBrowser       = "browser"
	ColSex           = "sex"
	ColAge           = "age"
	ColIPAddress     = "ip_address"
	ColClass         = "class"

	ColLowerBound = "lower_bound_ip_address"
	ColUpperBound = "upper_bound_ip_address"
	ColCountry    = "country"
)

var TransactionColumns = []string{
	ColUserID, ColSignupTime, ColPurchaseTime, ColPurchaseValue, ColDeviceID,
	ColSource, ColBrowser, ColSex, ColAge, ColIPAddress, ColClass,
}

var IPRangeColumns = []string{ColLowerBound, ColUpperBound, ColCountry}

// MissingTokens are field values treated as missing in addition to empty text, matching
// the default NA markers of common dataframe readers.
var MissingTokens = []string{
	"#N/A", "#N/A N/A", "#NA", "-1.#IND", "-1.#QNAN", "-NaN", "-nan", "1.#IND", "1.#QNAN",
	"<NA>", "N/A", "NA", "NULL", "NaN", "None", "n/a", "nan", "null",
}

type Transaction struct {
	UserID        int64
	SignupTime    time.Time
	PurchaseTime  time.Time
	PurchaseValue float64
	DeviceID      string
	Source        string
	Browser       string
	Sex           string
	Age           int64
	IPAddress     int64
	Class         int

	// Country is filled by geolocation, empty until then.
	Country string
}

// LabeledTable is a numeric feature matrix with a binary label, such as the
// anonymized credit-card dataset.
type LabeledTable struct {
	Columns []string
	Label   string
	X       [][]float64
	Y       []int
}

func (t *LabeledTable) Len() int {
	return len(t.Y)
}

// CleanStats reports how many rows each cleaning step removed.
type CleanStats struct {
	Read             int `json:"read"`
	DroppedMissing   int `json:"dropped_missing"`
	DroppedDuplicate int `json:"dropped_duplicate"`
	Kept             int `json:"kept"`
}

// Labels returns the class column of txs.
func Labels(txs []Transaction) []int {
	y := make([]int, len(txs))
	for i, tx := range txs {
		y[i] = tx.Class
	}
	return y
}

// binaryLabel accepts a label only when it is exactly 0 or 1. Fractional values are
// rejected rather than truncated.
func binaryLabel(v float64) (int, error) {
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	}
	return 0, ErrNonBinaryLabel
}
