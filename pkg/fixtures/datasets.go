// Package fixtures writes small synthetic versions of the raw datasets for tests.
package fixtures

import (
	"fmt"
	"path/filepath"
	"time"
)

const fraudTemplate = `user_id,signup_time,purchase_time,purchase_value,device_id,source,browser,sex,age,ip_address,class
{{range .}}{{.UserID}},{{.Signup}},{{.Purchase}},{{.Value}},{{.Device}},{{.Source}},{{.Browser}},{{.Sex}},{{.Age}},{{.IP}},{{.Class}}
{{end}}`

const ipCountryTemplate = `lower_bound_ip_address,upper_bound_ip_address,country
{{range $i, $c := .}}{{add 16777216 (mul $i 256)}}.0,{{add 16777471 (mul $i 256)}},{{$c}}
{{end}}`

const creditCardTemplate = `Time,V1,V2,V3,Amount,Class
{{range $i := seq 0 (add .Rows -1)}}{{$i}}.0,{{mod (mul $i 7) 11}}.5,-{{mod (mul $i 3) 5}}.25,{{mod $i 13}},{{add 10 (mod (mul $i 37) 200)}}.99,{{if eq (mod $i 10) 0}}1{{else}}0{{end}}
{{end}}`

// Countries assigned, in order, to consecutive /24 blocks starting at 1.0.0.0.
var Countries = []string{"Australia", "China", "Japan", "Peru", "United States", "Luxembourg", "Germany", "Ecuador"}

type FraudRow struct {
	UserID   int
	Signup   string
	Purchase string
	Value    string
	Device   string
	Source   string
	Browser  string
	Sex      string
	Age      string
	IP       string
	Class    int
}

type Paths struct {
	Fraud      string
	IPCountry  string
	CreditCard string
}

// FraudRows builds n synthetic transactions. Every fifth row is fraud and every
// seventh row uses an IP outside all ranges.
func FraudRows(n int) []FraudRow {
	sources := []string{"SEO", "Ads", "Direct"}
	browsers := []string{"Chrome", "Safari", "FireFox", "IE", "Opera"}
	base := time.Date(2015, 1, 5, 8, 0, 0, 0, time.UTC)

	rows := make([]FraudRow, 0, n)
	for i := 0; i < n; i++ {
		signup := base.Add(time.Duration(i) * 37 * time.Minute)
		purchase := signup.Add(time.Duration(1+i%48) * time.Hour)
		ip := fmt.Sprintf("%d.0", 16777216+(i%len(Countries))*256+i%200)
		if i%7 == 3 {
			ip = "1000.5"
		}
		class := 0
		if i%5 == 0 {
			class = 1
		}
		rows = append(rows, FraudRow{
			UserID:   1000 + i%(n-n/10),
			Signup:   signup.Format("2006-01-02 15:04:05"),
			Purchase: purchase.Format("2006-01-02 15:04:05"),
			Value:    fmt.Sprintf("%d", 10+(i*13)%90),
			Device:   fmt.Sprintf("DEV%04d", i),
			Source:   sources[i%len(sources)],
			Browser:  browsers[i%len(browsers)],
			Sex:      []string{"M", "F"}[i%2],
			Age:      fmt.Sprintf("%d", 18+i%50),
			IP:       ip,
			Class:    class,
		})
	}
	return rows
}

// WriteFraud writes the rows as a Fraud_Data shaped CSV.
func WriteFraud(path string, rows []FraudRow) error {
	return writeCSV(path, tmplFraud, rows)
}

// WriteIPCountry writes one /24 range per country.
func WriteIPCountry(path string, countries []string) error {
	return writeCSV(path, tmplIPCountry, countries)
}

// WriteCreditCard writes a creditcard shaped CSV with rows records, 10% labeled fraud.
func WriteCreditCard(path string, rows int) error {
	return writeCSV(path, tmplCreditCard, struct{ Rows int }{rows})
}

// WriteDatasets writes all three raw datasets into dir. The fraud dataset carries one
// exact duplicate and one row with a missing field on top of n generated rows.
func WriteDatasets(dir string, n int) (*Paths, error) {
	p := &Paths{
		Fraud:      filepath.Join(dir, "Fraud_Data.csv"),
		IPCountry:  filepath.Join(dir, "IpAddress_to_Country.csv"),
		CreditCard: filepath.Join(dir, "creditcard.csv"),
	}

	rows := FraudRows(n)
	dup := rows[1]
	missing := rows[2]
	missing.Device = ""
	missing.UserID = 999999
	rows = append(rows, dup, missing)

	if err := WriteFraud(p.Fraud, rows); err != nil {
		return nil, fmt.Errorf("failed to write fraud fixture: %w", err)
	}
	if err := WriteIPCountry(p.IPCountry, Countries); err != nil {
		return nil, fmt.Errorf("failed to write ip country fixture: %w", err)
	}
	if err := WriteCreditCard(p.CreditCard, n); err != nil {
		return nil, fmt.Errorf("failed to write creditcard fixture: %w", err)
	}
	return p, nil
}
