package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
)

// Brand color palette
var (
	colorPrimary      = lipgloss.Color("#3FA34D") // Sprout green
	colorPrimaryLight = lipgloss.Color("#7BC96F")
	colorPrimaryDark  = lipgloss.Color("#2A7A36")

	colorText  = lipgloss.Color("#F4F1E8")
	colorMuted = lipgloss.Color("240")

	colorSuccess = lipgloss.Color("#22C55E")
	colorWarning = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")
)

// Styles
var (
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(colorWarning).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(colorPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	labelStyle   = lipgloss.NewStyle().Foreground(colorPrimaryLight).Bold(true)
	valueStyle   = lipgloss.NewStyle().Foreground(colorText)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPrimaryDark).
			Padding(0, 1)
	errorPanelStyle = panelStyle.BorderForeground(colorError)
	tableHeader     = lipgloss.NewStyle().Foreground(colorPrimaryLight).Bold(true).Padding(0, 1)
	tableCell       = lipgloss.NewStyle().Foreground(colorText).Padding(0, 1)
)

// Icons
const (
	iconSuccess = "✓"
	iconError   = "✗"
	iconWarning = "⚠"
	iconInfo    = "●"
)

// Tests force TTY detection through testIsTTYOverride.
var (
	testIsTTYMutex    sync.Mutex
	testIsTTYOverride *bool
)

// isTTY returns true if stdout is a terminal
func isTTY() bool {
	testIsTTYMutex.Lock()
	override := testIsTTYOverride
	testIsTTYMutex.Unlock()
	if override != nil {
		return *override
	}
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// printStyled prints a message with an icon, applying style only in TTY mode
func printStyled(w io.Writer, icon string, style lipgloss.Style, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if isTTY() {
		fmt.Fprintf(w, "%s %s\n", style.Render(icon), msg)
	} else {
		fmt.Fprintf(w, "%s %s\n", icon, msg)
	}
}

func printSuccess(w io.Writer, format string, args ...interface{}) {
	printStyled(w, iconSuccess, successStyle, format, args...)
}

func printError(w io.Writer, format string, args ...interface{}) {
	printStyled(w, iconError, errorStyle, format, args...)
}

func printWarning(w io.Writer, format string, args ...interface{}) {
	printStyled(w, iconWarning, warningStyle, format, args...)
}

func printInfo(w io.Writer, format string, args ...interface{}) {
	printStyled(w, iconInfo, infoStyle, format, args...)
}

// printMuted prints muted/secondary text
func printMuted(w io.Writer, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if isTTY() {
		fmt.Fprintln(w, mutedStyle.Render(msg))
	} else {
		fmt.Fprintln(w, msg)
	}
}

// printField prints "label value" with the label padded to width.
func printField(w io.Writer, label string, width int, format string, args ...interface{}) {
	padded := fmt.Sprintf("%-*s", width, label)
	value := fmt.Sprintf(format, args...)
	if isTTY() {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(padded), valueStyle.Render(value))
	} else {
		fmt.Fprintf(w, "%s %s\n", padded, value)
	}
}

// renderTable renders rows under headers. TTY output uses a rounded
// lipgloss table; plain output is space aligned.
func renderTable(headers []string, rows [][]string) string {
	if isTTY() {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(colorPrimaryDark)).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return tableHeader
				}
				return tableCell
			}).
			Rows(rows...)
		if len(headers) > 0 {
			t = t.Headers(headers...)
		}
		return t.Render()
	}

	cols := len(headers)
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	widths := make([]int, cols)
	measure := func(r []string) {
		for i, c := range r {
			if len(c) > widths[i] {
				widths[i] = len(c)
			}
		}
	}
	measure(headers)
	for _, r := range rows {
		measure(r)
	}

	var sb strings.Builder
	line := func(r []string) {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = fmt.Sprintf("%-*s", widths[i], c)
		}
		sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
		sb.WriteString("\n")
	}
	if len(headers) > 0 {
		line(headers)
	}
	for _, r := range rows {
		line(r)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// renderPanel boxes content under an optional title.
func renderPanel(title, content string) string {
	if !isTTY() {
		if title == "" {
			return content
		}
		return title + "\n" + strings.Repeat("-", len(title)) + "\n" + content
	}
	body := content
	if title != "" {
		body = labelStyle.Render(title) + "\n\n" + content
	}
	return panelStyle.Render(body)
}

// renderErrorPanel formats an error with optional context and suggestion.
func renderErrorPanel(msg, context, suggestion string) string {
	var sb strings.Builder
	if isTTY() {
		sb.WriteString(errorStyle.Render(iconError + " " + msg))
	} else {
		sb.WriteString(iconError + " " + msg)
	}
	if context != "" {
		sb.WriteString("\n\nContext: " + context)
	}
	if suggestion != "" {
		sb.WriteString("\nSuggestion: " + suggestion)
	}
	if !isTTY() {
		return sb.String()
	}
	return errorPanelStyle.Render(sb.String())
}

// renderMarkdown renders markdown content with glamour
func renderMarkdown(content string) string {
	if !isTTY() || !hasMarkdown(content) {
		return content
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

// hasMarkdown checks if content contains markdown-like syntax.
// Ordered from most specific to least to reduce false positives.
func hasMarkdown(content string) bool {
	markers := []string{
		"```",
		"## ",
		"# ",
		"**",
		"1. ",
		"- ",
		"* ",
		"](http",
		"`",
	}
	for _, marker := range markers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
