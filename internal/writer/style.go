package writer

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

var commentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

// comment styles a comment line for console output. The styling is
// stripped again before the line reaches the output file.
func comment(text string) string {
	return commentStyle.Render(text)
}

// unstyle removes any ANSI styling from a line.
func unstyle(line string) string {
	return ansi.Strip(line)
}
