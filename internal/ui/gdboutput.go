package ui

import (
	"bytes"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// GDBOutput represents a box for displaying raw GDB output.
// Used in verbose mode to show the scripts trbr fed to GDB and what came back.
type GDBOutput struct {
	Title    string   // e.g., "GDB Output"
	Content  string   // The raw GDB output
	Lines    []string // Parsed output lines (for filtering)
	Width    int      // Terminal width
	MaxLines int      // Maximum lines to display (0 = unlimited)
}

// NewGDBOutput creates a new GDB output box
func NewGDBOutput(content string) *GDBOutput {
	return &GDBOutput{
		Title:    "GDB Output",
		Content:  content,
		Lines:    strings.Split(content, "\n"),
		Width:    GetTerminalWidth(),
		MaxLines: 0,
	}
}

// SetWidth sets the terminal width for responsive rendering
func (g *GDBOutput) SetWidth(width int) *GDBOutput {
	g.Width = width
	return g
}

// SetTitle sets a custom title for the box
func (g *GDBOutput) SetTitle(title string) *GDBOutput {
	g.Title = title
	return g
}

// SetMaxLines limits the number of lines displayed
func (g *GDBOutput) SetMaxLines(max int) *GDBOutput {
	g.MaxLines = max
	return g
}

// Render returns the styled GDB output box as a string
func (g *GDBOutput) Render() string {
	width := g.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	// Apply max lines limit
	lines := g.Lines
	if g.MaxLines > 0 && len(lines) > g.MaxLines {
		lines = lines[:g.MaxLines]
		lines = append(lines, "... (output truncated)")
	}

	// Title styled
	titleStyled := GDBOutputTitleStyle.Render(g.Title)

	// Content styled (preserve monospace formatting)
	contentStyled := GDBOutputContentStyle.Render(strings.Join(lines, "\n"))

	// Combine title and content
	inner := lipgloss.JoinVertical(lipgloss.Left, titleStyled, "", contentStyled)

	// Box with muted border
	boxWidth := width - 4
	if boxWidth < 40 {
		boxWidth = 40
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(boxWidth).
		Padding(0, 1).
		MarginLeft(2).
		Render(inner)
}

// String implements fmt.Stringer
func (g *GDBOutput) String() string {
	return g.Render()
}

// OutputBuffer collects GDB output for the verbose box. Concurrent GDB
// runs may write to it at the same time.
type OutputBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer
func (b *OutputBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far
func (b *OutputBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
