package fixtures

import (
	"bytes"
	"fmt"
	"os"
	"text/template"
)

const (
	tmplFraud      = "fraud"
	tmplIPCountry  = "ip_country"
	tmplCreditCard = "creditcard"
)

// Integer helpers available to the CSV templates. seq is inclusive on both ends.
var templateFuncs = template.FuncMap{
	"seq": func(start, end int) []int {
		var out []int
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out
	},
	"add": func(a, b int) int { return a + b },
	"mul": func(a, b int) int { return a * b },
	"mod": func(a, b int) int { return a % b },
}

var csvTemplates = func() *template.Template {
	root := template.New("csv").Funcs(templateFuncs)
	template.Must(root.New(tmplFraud).Parse(fraudTemplate))
	template.Must(root.New(tmplIPCountry).Parse(ipCountryTemplate))
	template.Must(root.New(tmplCreditCard).Parse(creditCardTemplate))
	return root
}()

// writeCSV executes the named dataset template and writes the result to path.
func writeCSV(path, name string, data any) error {
	var buf bytes.Buffer
	if err := csvTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return fmt.Errorf("failed to render %s fixture: %w", name, err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
