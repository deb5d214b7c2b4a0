package ui

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/trbr/internal/decode"
	"github.com/muurk/trbr/internal/gdb"
	"github.com/muurk/trbr/internal/urls"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// resultLooks holds the marker, label and border colour of each box.
var resultLooks = map[ResultType]struct {
	marker string
	label  string
	color  lipgloss.Color
}{
	ResultSuccess: {SuccessMarker, "SUCCESS", SuccessColor},
	ResultFailure: {FailureMarker, "FAILED", ErrorColor},
	ResultWarning: {"⚠", "WARNING", WarningColor},
}

// detailOrder lists the decode details shown first, in this order. Other
// details follow sorted by key.
var detailOrder = []string{"Fault", "Threads", "Frames", "Globals", "Duration"}

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType        // Success, failure, or warning
	Title           string            // e.g., "Panic Decode complete"
	Details         map[string]string // Key-value details to display
	Error           error             // Error (for failure results)
	Troubleshooting []string          // Troubleshooting tips (for failure results)
	Width           int               // Terminal width
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details map[string]string) *Result {
	return &Result{Type: ResultSuccess, Title: title, Details: details, Width: GetTerminalWidth()}
}

// NewFailureResult creates a failure result box. Tips specific to err come
// before the general troubleshooting list.
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	tips := append(errorTips(err), troubleshooting...)
	if errors.Is(err, gdb.ErrAborted) {
		tips = nil
	}
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: tips,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details map[string]string) *Result {
	return &Result{Type: ResultWarning, Title: title, Details: details, Width: GetTerminalWidth()}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	look, ok := resultLooks[r.Type]
	if !ok {
		look = resultLooks[ResultSuccess]
	}
	width := max(r.Width, MinTerminalWidth)

	title := lipgloss.NewStyle().Foreground(look.color).Bold(true).
		Render(fmt.Sprintf("   %s  %s  ─  %s", look.marker, look.label, r.Title))
	lines := []string{"", title, ""}

	if r.Error != nil {
		msg := strings.ReplaceAll(r.Error.Error(), "\n", "\n          ")
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+msg), "")
	}
	if details := r.detailLines(); len(details) > 0 {
		lines = append(lines, details...)
		lines = append(lines, "")
	}
	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(width), "")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(look.color).
		Width(width - 2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

// detailKeys returns the detail keys in display order.
func (r *Result) detailKeys() []string {
	keys := make([]string, 0, len(r.Details))
	for _, key := range detailOrder {
		if _, ok := r.Details[key]; ok {
			keys = append(keys, key)
		}
	}
	var rest []string
	for key := range r.Details {
		if !isOrderedDetail(key) {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

func isOrderedDetail(key string) bool {
	for _, k := range detailOrder {
		if k == key {
			return true
		}
	}
	return false
}

// detailLines renders the details. The fault is shown in the fault line
// style.
func (r *Result) detailLines() []string {
	keys := r.detailKeys()
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value := ResultValueStyle.Render(r.Details[key])
		if key == "Fault" {
			value = FaultLineStyle.Render(r.Details[key])
		}
		lines = append(lines, ResultKeyStyle.Render(fmt.Sprintf("   %s:", key))+" "+value)
	}
	return lines
}

// errorTips returns the tips that apply to err alone.
func errorTips(err error) []string {
	var timeout *gdb.TimeoutError
	var prereq *gdb.PrerequisiteError
	switch {
	case errors.As(err, &timeout):
		return []string{
			"GDB ran longer than " + timeout.Timeout + ": raise --timeout",
			"Large firmware lists globals slowly: try --skip-globals",
		}
	case errors.As(err, &prereq):
		return []string{"Install the toolchain GDB: " + urls.Toolchain}
	case errors.Is(err, decode.ErrNoPanic):
		return []string{
			"Paste the whole panic: the register dump and the Backtrace: line",
			"Panic output format: " + urls.FatalErrors,
		}
	}
	return nil
}

// renderTroubleshootingBox renders the inner troubleshooting box
func (r *Result) renderTroubleshootingBox(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(max(width-12, 40)).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}
