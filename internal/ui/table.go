package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/scenebridge/internal/discovery"
	"github.com/muurk/scenebridge/internal/journal"
)

// Table renders aligned columns without borders.
type Table struct {
	Headers []string
	Rows    [][]string
	Width   int
}

// Render returns the table as a string. The last column absorbs whatever
// width is left and is truncated with an ellipsis.
func (t *Table) Render() string {
	if len(t.Headers) == 0 {
		return ""
	}
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.Rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	last := len(widths) - 1
	used := 0
	for _, w := range widths[:last] {
		used += w + 2
	}
	if avail := clampWidth(t.Width) - used - 2; avail > 8 && widths[last] > avail {
		widths[last] = avail
	}

	var b strings.Builder
	b.WriteString(t.line(t.Headers, widths, TableHeaderStyle))
	b.WriteString("\n")
	b.WriteString(RenderHorizontalDivider(used+widths[last]+2, "─"))
	for _, row := range t.Rows {
		b.WriteString("\n")
		b.WriteString(t.line(row, widths, TableCellStyle))
	}
	return b.String()
}

func (t *Table) line(cells []string, widths []int, style lipgloss.Style) string {
	parts := make([]string, len(widths))
	for i, w := range widths {
		cell := ""
		if i < len(cells) {
			cell = truncate(cells[i], w)
		}
		parts[i] = style.Width(w).Render(cell)
	}
	return "  " + strings.Join(parts, "  ")
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width <= 1 || len(r) <= 1 {
		return string(r[:1])
	}
	if width > len(r) {
		width = len(r)
	}
	return string(r[:width-1]) + "…"
}

// RenderHistory renders journal entries, newest first as returned by
// journal.Recent.
func RenderHistory(entries []journal.Entry) string {
	if len(entries) == 0 {
		return TableMutedStyle.Render("  No commands recorded yet.")
	}
	t := &Table{
		Headers: []string{"ID", "TIME", "TRANSPORT", "TYPE", "STATUS", "MS", "MESSAGE"},
		Width:   GetTerminalWidth(),
	}
	for _, e := range entries {
		status := SuccessMarker + " " + e.Status
		if e.Status != "success" {
			status = FailureMarker + " " + e.Status
		}
		t.Rows = append(t.Rows, []string{
			fmt.Sprintf("%d", e.ID),
			e.Time.Local().Format(time.DateTime),
			e.Transport,
			e.Type,
			status,
			fmt.Sprintf("%.1f", e.DurationMs),
			e.Message,
		})
	}
	return t.Render()
}

// RenderInstances renders servers found by discovery.
func RenderInstances(instances []*discovery.Instance) string {
	if len(instances) == 0 {
		return TableMutedStyle.Render("  No scenebridge servers found on the local network.")
	}
	t := &Table{
		Headers: []string{"NAME", "ADDRESS", "HOST", "VERSION", "FEATURES"},
		Width:   GetTerminalWidth(),
	}
	for _, inst := range instances {
		features := strings.Join(inst.Features, ",")
		if features == "" {
			features = "-"
		}
		t.Rows = append(t.Rows, []string{
			inst.Name,
			inst.Address(),
			strings.TrimSuffix(inst.Hostname, "."),
			inst.Version,
			features,
		})
	}
	return t.Render()
}
