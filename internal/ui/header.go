package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Param is one key/value line of a header. Params keep the order they were
// given in.
type Param struct {
	Key   string
	Value string
}

// Header is the banner printed when a long running command starts.
type Header struct {
	Title   string  // e.g., "SCENEBRIDGE SERVER"
	Command string  // e.g., "scenebridge serve --port 9876"
	Params  []Param // e.g., {"Address", "localhost:9876"}
	Width   int     // Terminal width for responsive rendering
}

// NewHeader creates a new header with the given values
func NewHeader(title, command string, params ...Param) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := clampWidth(h.Width)

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	commandLine := HeaderCommandStyle.Render(h.Command)
	top := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	content := top
	if len(h.Params) > 0 {
		dividerWidth := width - 6
		if dividerWidth < 10 {
			dividerWidth = 10
		}
		lines := make([]string, 0, len(h.Params))
		for _, p := range h.Params {
			lines = append(lines, HeaderParamKeyStyle.Render(p.Key+":")+" "+HeaderParamValueStyle.Render(p.Value))
		}
		content = lipgloss.JoinVertical(lipgloss.Left,
			top,
			RenderHorizontalDivider(dividerWidth, "─"),
			strings.Join(lines, "\n"),
		)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2). // Account for border characters
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}
