package ui

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// ConfirmPhrase must be typed exactly to accept a Confirm prompt.
const ConfirmPhrase = "I AGREE"

// Confirm prints a warning box to out and reads one line from in. It returns
// true only if the line is ConfirmPhrase.
func Confirm(in io.Reader, out io.Writer, title string, warnings []string, disclaimer string) bool {
	width := GetTerminalWidth()

	lines := []string{
		"",
		lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true).
			Render(fmt.Sprintf("   %s  WARNING  ─  %s", WarningMarker, title)),
		"",
	}
	for _, w := range warnings {
		lines = append(lines, lipgloss.NewStyle().Foreground(TextColor).Render("   • "+w))
	}
	lines = append(lines, "")

	if disclaimer != "" {
		lines = append(lines, lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			Width(width-12).
			PaddingLeft(3).
			Render(disclaimer), "")
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(WarningColor).
		Width(width-2).
		Padding(0, 2).
		Render(strings.Join(lines, "\n"))

	fmt.Fprintln(out, box)
	fmt.Fprintln(out)
	fmt.Fprint(out, lipgloss.NewStyle().
		Foreground(WarningColor).
		Bold(true).
		Render(fmt.Sprintf("To proceed, type %q and press Enter: ", ConfirmPhrase)))

	input, err := bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
	if err != nil && input == "" {
		return false
	}
	if strings.TrimSpace(input) == ConfirmPhrase {
		return true
	}

	fmt.Fprintln(out, TableMutedStyle.Render("  Operation cancelled."))
	fmt.Fprintln(out)
	return false
}

// ConfirmRemoteExposure asks before binding a server that runs arbitrary
// scripts to a non-loopback address.
func ConfirmRemoteExposure(in io.Reader, out io.Writer, addr string) bool {
	return Confirm(in, out,
		"NETWORK EXPOSED SERVER",
		[]string{
			fmt.Sprintf("The command server will listen on %s", addr),
			"The protocol has no authentication or encryption",
			"execute_code lets any client run scripts against the scene",
			"Set scripting.enabled: false to refuse execute_code",
		},
		"Anyone who can reach this address can modify the scene and, through "+
			"the asset commands, write files into the download directories.",
	)
}
