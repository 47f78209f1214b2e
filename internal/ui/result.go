package ui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/scenebridge/internal/protocol"
	"github.com/muurk/scenebridge/internal/remote"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result is a bordered box summarising the outcome of a command.
type Result struct {
	Type            ResultType // Success, failure, or warning
	Title           string     // e.g., "create_object"
	Details         []Param    // Key-value details, in display order
	Body            string     // Free text below the details (e.g., JSON)
	Error           error      // Error (for failure results)
	Troubleshooting []string   // Troubleshooting tips (for failure results)
	Width           int        // Terminal width
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Param) *Result {
	return &Result{
		Type:    ResultSuccess,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box
func NewFailureResult(title string, err error, troubleshooting []string) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: troubleshooting,
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Param) *Result {
	return &Result{
		Type:    ResultWarning,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewResponseResult summarises a server response to cmdType. Scalar fields
// of an object result become details; anything nested is shown as JSON.
func NewResponseResult(cmdType string, resp protocol.Response, elapsed time.Duration) *Result {
	if !resp.OK() {
		r := NewFailureResult(cmdType, resp.Err(), nil)
		r.AddDetail("Duration", elapsed.Round(time.Millisecond).String())
		return r
	}

	r := NewSuccessResult(cmdType)
	if obj, ok := resp.Result.(map[string]any); ok {
		nested := map[string]any{}
		for _, k := range sortedKeys(obj) {
			if s, ok := scalar(obj[k]); ok {
				r.AddDetail(k, s)
			} else {
				nested[k] = obj[k]
			}
		}
		if len(nested) > 0 {
			r.Body = indentJSON(nested)
		}
	} else if resp.Result != nil {
		r.Body = indentJSON(resp.Result)
	}
	r.AddDetail("Duration", elapsed.Round(time.Millisecond).String())
	return r
}

// NewErrorResult builds a failure box for a transport error, splitting the
// remote troubleshooting hint into bullet points.
func NewErrorResult(title string, err error) *Result {
	return NewFailureResult(title, fmt.Errorf("%s", remote.Short(err)), hintLines(remote.Hint(err)))
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// AddDetail adds a detail key-value pair
func (r *Result) AddDetail(key, value string) *Result {
	r.Details = append(r.Details, Param{Key: key, Value: value})
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	switch r.Type {
	case ResultFailure:
		return r.renderFailure()
	case ResultWarning:
		return r.box(WarningColor, lipgloss.NewStyle().Foreground(WarningColor).Bold(true).
			Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, r.Title)))
	default:
		return r.box(SuccessColor, SuccessTitleStyle.
			Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title)))
	}
}

func (r *Result) box(color lipgloss.Color, title string) string {
	width := clampWidth(r.Width)

	lines := []string{"", title, ""}
	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	if r.Body != "" {
		lines = append(lines, "")
		for _, l := range strings.Split(r.Body, "\n") {
			lines = append(lines, ResultValueStyle.Render("   "+l))
		}
	}
	lines = append(lines, "")

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(color).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

func (r *Result) renderFailure() string {
	width := clampWidth(r.Width)

	lines := []string{
		"",
		ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)),
		"",
	}
	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}
	for _, d := range r.Details {
		lines = append(lines, ResultKeyStyle.Render("   "+d.Key+":")+" "+ResultValueStyle.Render(d.Value))
	}
	if len(r.Details) > 0 {
		lines = append(lines, "")
	}
	if len(r.Troubleshooting) > 0 {
		lines = append(lines, r.renderTroubleshootingBox(width), "")
	}

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(ErrorColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))
}

// renderTroubleshootingBox renders the inner troubleshooting box
func (r *Result) renderTroubleshootingBox(width int) string {
	lines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
	for _, tip := range r.Troubleshooting {
		lines = append(lines, TroubleshootingItemStyle.Render("  • "+tip))
	}

	innerWidth := width - 12 // Indent within outer box
	if innerWidth < 40 {
		innerWidth = 40
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(innerWidth).
		Padding(0, 1).
		MarginLeft(3).
		Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// hintLines extracts the bullet points of a remote.Hint. A hint without
// bullets becomes a single tip.
func hintLines(hint string) []string {
	var tips []string
	for _, l := range strings.Split(hint, "\n") {
		l = strings.TrimSpace(l)
		if rest, ok := strings.CutPrefix(l, "•"); ok {
			tips = append(tips, strings.TrimSpace(rest))
		}
	}
	if len(tips) == 0 && hint != "" {
		tips = []string{hint}
	}
	return tips
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "null", true
	case string:
		return x, true
	case bool:
		return fmt.Sprintf("%t", x), true
	case float64:
		return fmt.Sprintf("%g", x), true
	}
	return "", false
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
