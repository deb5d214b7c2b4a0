package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// StepStatus represents the current state of a step
type StepStatus int

const (
	StepPending  StepStatus = iota // Not yet started
	StepRunning                    // Currently executing
	StepComplete                   // Successfully completed
	StepFailed                     // Failed
	StepSkipped                    // Skipped
)

// finished reports whether the step will not change again.
func (s StepStatus) finished() bool {
	return s == StepComplete || s == StepFailed || s == StepSkipped
}

// stepLooks holds the marker and style of each status.
var stepLooks = map[StepStatus]struct {
	marker string
	style  lipgloss.Style
}{
	StepPending:  {StepMarkerPending, StepPendingStyle},
	StepRunning:  {StepMarkerRunning, StepRunningStyle},
	StepComplete: {StepMarkerComplete, StepCompleteStyle},
	StepFailed:   {FailureMarker, ErrorTitleStyle},
	StepSkipped:  {StepMarkerSkipped, StepPendingStyle},
}

// stepNameColumn is where the status marker starts.
const stepNameColumn = 45

// Step is one phase of a decode, such as reading the input or running GDB.
type Step struct {
	Number  int           // Step number (1-based)
	Name    string        // Step description
	Status  StepStatus    // Current status
	Note    string        // Optional note (e.g., "12 frames", "3 threads")
	Started time.Time     // When the step started running
	Elapsed time.Duration // Run time, set once the step finished
}

// Progress tracks the steps of a decode. Each step is printed as a line
// when it changes; the bar summarizes the run once it is over.
type Progress struct {
	Steps []Step
	bar   progress.Model
	now   func() time.Time
}

// NewProgress creates a progress tracker with total steps, named from names
// where given.
func NewProgress(total int, names []string) *Progress {
	steps := make([]Step, total)
	for i := range steps {
		steps[i] = Step{Number: i + 1, Status: StepPending}
		if i < len(names) {
			steps[i].Name = names[i]
		}
	}
	p := &Progress{Steps: steps, now: time.Now}
	return p.SetWidth(GetTerminalWidth())
}

// SetWidth sizes the bar for the terminal width, leaving room for the
// percentage and step count.
func (p *Progress) SetWidth(width int) *Progress {
	barWidth := min(max(width-30, 20), 50)
	p.bar = progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(barWidth),
	)
	return p
}

// Update moves step n to status with an optional note, renaming it when
// name is set. Run time is measured from the last StepRunning update. It
// returns the updated step, or false when n is out of range.
func (p *Progress) Update(n int, name string, status StepStatus, note string) (Step, bool) {
	if n < 1 || n > len(p.Steps) {
		return Step{}, false
	}
	s := &p.Steps[n-1]
	if name != "" {
		s.Name = name
	}

	now := p.now()
	if status == StepRunning || s.Started.IsZero() {
		s.Started = now
	}
	if status.finished() {
		s.Elapsed = now.Sub(s.Started)
	}
	s.Status = status
	s.Note = note
	return *s, true
}

// count returns the number of steps with one of the given statuses.
func (p *Progress) count(statuses ...StepStatus) int {
	n := 0
	for _, s := range p.Steps {
		for _, st := range statuses {
			if s.Status == st {
				n++
				break
			}
		}
	}
	return n
}

// Fraction is the share of steps completed or skipped.
func (p *Progress) Fraction() float64 {
	if len(p.Steps) == 0 {
		return 0
	}
	return float64(p.count(StepComplete, StepSkipped)) / float64(len(p.Steps))
}

// BarLine renders "<bar>  NN%  [done/total]", followed by the failed step
// count when there is one.
func (p *Progress) BarLine() string {
	frac := p.Fraction()
	line := fmt.Sprintf("%s  %3.0f%%  [%d/%d]",
		p.bar.ViewAs(frac), frac*100, p.count(StepComplete, StepSkipped), len(p.Steps))
	if failed := p.count(StepFailed); failed > 0 {
		line += "  " + ErrorTitleStyle.Render(fmt.Sprintf("%d failed", failed))
	}
	return lipgloss.NewStyle().PaddingLeft(2).Render(line)
}

// StepLine renders "[n/total] name  marker  (note, elapsed)".
func (p *Progress) StepLine(s Step) string {
	look, ok := stepLooks[s.Status]
	if !ok {
		look = stepLooks[StepPending]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  [%d/%d] ", s.Number, len(p.Steps))
	b.WriteString(look.style.Render(s.Name))
	b.WriteString(strings.Repeat(" ", max(stepNameColumn-lipgloss.Width(s.Name), 1)))
	b.WriteString(look.style.Render(look.marker))

	var notes []string
	if s.Note != "" {
		notes = append(notes, s.Note)
	}
	if s.Status == StepComplete || s.Status == StepFailed {
		if d := formatElapsed(s.Elapsed); d != "" {
			notes = append(notes, d)
		}
	}
	if len(notes) > 0 {
		b.WriteString("  ")
		b.WriteString(StepNoteStyle.Render("(" + strings.Join(notes, ", ") + ")"))
	}
	return b.String()
}

// formatElapsed renders step run times: milliseconds below a second,
// tenths of a second above. Sub-millisecond times render as "".
func formatElapsed(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return ""
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// StepCallback is the function signature for step progress updates.
// Decode commands call this between the parse, debugger and render phases.
type StepCallback func(stepNumber int, name string, status StepStatus, message string)
