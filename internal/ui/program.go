package ui

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
)

// RunOnceModel is a Bubble Tea model that renders once and exits.
// This is used for "run once and exit" output patterns rather than
// interactive TUIs.
type RunOnceModel struct {
	content string
	width   int
	height  int
}

// NewRunOnceModel creates a model that will render the given content and exit
func NewRunOnceModel(content string) RunOnceModel {
	width, height := GetTerminalSize()
	return RunOnceModel{
		content: content,
		width:   width,
		height:  height,
	}
}

// Init implements tea.Model
func (m RunOnceModel) Init() tea.Cmd {
	// Immediately signal we're done after first render
	return tea.Quit
}

// Update implements tea.Model
func (m RunOnceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(tea.WindowSizeMsg); ok {
		m.width, m.height = GetTerminalSize()
	}
	return m, nil
}

// View implements tea.Model
func (m RunOnceModel) View() string {
	return m.content
}

// RenderOnce renders content using Bubble Tea's rendering engine and
// immediately exits. Output that is not a terminal gets the content as is.
func RenderOnce(w io.Writer, content string) error {
	f, ok := w.(*os.File)
	if !ok || !IsTerminal(f) {
		_, err := io.WriteString(w, content)
		return err
	}
	p := tea.NewProgram(NewRunOnceModel(content), tea.WithOutput(f), tea.WithInput(nil))
	_, err := p.Run()
	return err
}

// PrintSuccess prints a styled success result
func PrintSuccess(w io.Writer, title string, details map[string]string) {
	result := NewSuccessResult(title, details)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, result.Render())
}

// PrintFailure prints a styled failure result to stderr
func PrintFailure(title string, err error, troubleshooting []string) {
	result := NewFailureResult(title, err, troubleshooting)
	_, _ = fmt.Fprintln(os.Stderr)
	_, _ = fmt.Fprintln(os.Stderr, result.Render())
}

// PrintWarning prints a styled warning result
func PrintWarning(w io.Writer, title string, details map[string]string) {
	result := NewWarningResult(title, details)
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, result.Render())
}
