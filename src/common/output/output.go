// Package output formats command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Format selects how results are printed
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// Printer writes command results in one format
type Printer struct {
	w      io.Writer
	format Format
}

// New creates a printer. Unknown formats fall back to table.
func New(w io.Writer, format string) *Printer {
	f := Format(format)
	if f != FormatJSON {
		f = FormatTable
	}
	return &Printer{w: w, format: f}
}

// JSON reports whether the printer emits JSON
func (p *Printer) JSON() bool {
	return p.format == FormatJSON
}

// PrintJSON writes data as indented JSON
func (p *Printer) PrintJSON(data interface{}) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// PrintTable writes tabular data
func (p *Printer) PrintTable(headers []string, rows [][]string) error {
	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)

	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, h)
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, col := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, col)
		}
		fmt.Fprintln(w)
	}

	return w.Flush()
}

// PrintFields writes key/value pairs, or data as JSON in JSON mode
func (p *Printer) PrintFields(data interface{}, fields [][2]string) error {
	if p.JSON() {
		return p.PrintJSON(data)
	}
	w := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		fmt.Fprintf(w, "%s:\t%s\n", f[0], f[1])
	}
	return w.Flush()
}
