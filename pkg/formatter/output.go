// Package formatter renders human-facing command output.
package formatter

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Icons for different message types
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "→"
)

// Output provides formatted output methods
type Output struct {
	verbose bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

// New creates a new Output formatter
func New(verbose, noColor bool) *Output {
	if noColor {
		color.NoColor = true
	}
	return &Output{
		verbose: verbose,
		green:   color.New(color.FgGreen),
		red:     color.New(color.FgRed),
		yellow:  color.New(color.FgYellow),
		cyan:    color.New(color.FgCyan),
		bold:    color.New(color.Bold),
		dim:     color.New(color.Faint),
	}
}

// Success prints a success message
func (o *Output) Success(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", o.green.Sprint(IconSuccess), fmt.Sprintf(format, args...))
}

// Error prints an error message
func (o *Output) Error(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", o.red.Sprint(IconError), fmt.Sprintf(format, args...))
}

// Warning prints a warning message
func (o *Output) Warning(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", o.yellow.Sprint(IconWarning), fmt.Sprintf(format, args...))
}

// Info prints an info message
func (o *Output) Info(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", o.cyan.Sprint(IconInfo), fmt.Sprintf(format, args...))
}

// Step prints a step message
func (o *Output) Step(format string, args ...interface{}) {
	fmt.Printf("%s %s\n", o.cyan.Sprint(IconInfo), fmt.Sprintf(format, args...))
}

// Verbose prints a message only if verbose mode is enabled
func (o *Output) Verbose(format string, args ...interface{}) {
	if o.verbose {
		fmt.Printf("  %s\n", o.dim.Sprintf(format, args...))
	}
}

// Section prints a section header
func (o *Output) Section(title string) {
	fmt.Printf("\n%s\n\n", o.bold.Sprint("=== "+title+" ==="))
}

// Plain prints plain text without formatting
func (o *Output) Plain(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
}

// KeyValue prints a key-value pair
func (o *Output) KeyValue(key, value string) {
	fmt.Printf("  %s: %s\n", o.bold.Sprint(key), value)
}

// Progress prints a progress message
func (o *Output) Progress(current, total int, format string, args ...interface{}) {
	fmt.Printf("[%d/%d] %s\n", current, total, fmt.Sprintf(format, args...))
}

// Table prints a simple table
func (o *Output) Table(headers []string, rows [][]string) {
	if len(rows) == 0 {
		return
	}

	colWidths := make([]int, len(headers))
	for i, header := range headers {
		colWidths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(colWidths) && len(cell) > colWidths[i] {
				colWidths[i] = len(cell)
			}
		}
	}

	headerStr := ""
	for i, header := range headers {
		headerStr += fmt.Sprintf("%-*s  ", colWidths[i], header)
	}
	fmt.Println(o.bold.Sprint(headerStr))
	fmt.Println(strings.Repeat("─", len(headerStr)))

	for _, row := range rows {
		rowStr := ""
		for i, cell := range row {
			if i < len(colWidths) {
				rowStr += fmt.Sprintf("%-*s  ", colWidths[i], cell)
			}
		}
		fmt.Println(rowStr)
	}
}
