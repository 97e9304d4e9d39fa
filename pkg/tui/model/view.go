package model

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modoterra/tailcast/pkg/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	degradedStyle = statusStyle.
			Background(lipgloss.Color("160"))

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Severity styles, shared with the plain tail command.
var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	WarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	InfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	DebugStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	PlainStyle   = lipgloss.NewStyle()
)

// SeverityStyle returns the style for sev.
func SeverityStyle(sev core.Severity) lipgloss.Style {
	switch sev {
	case core.SeverityError:
		return ErrorStyle
	case core.SeverityWarning:
		return WarningStyle
	case core.SeverityInfo:
		return InfoStyle
	case core.SeverityDebug:
		return DebugStyle
	default:
		return PlainStyle
	}
}

// RenderLine styles one raw line by its severity.
func RenderLine(text string) string {
	return SeverityStyle(core.Classify(text)).Render(text)
}

func renderLines(lines []core.LogLine) string {
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(RenderLine(line.Text))
	}
	return b.String()
}

// View renders the TUI.
func (a *App) View() string {
	if a.width == 0 || a.height == 0 {
		return "loading..."
	}

	title := titleStyle.Render(" tailcast ") + dimStyle.Render(a.opts.URL)

	var body string
	if a.state.Len() == 0 {
		body = dimStyle.Render("waiting for log lines...")
		body += strings.Repeat("\n", max(0, a.vp.Height-1))
	} else {
		body = a.vp.View()
	}

	style := statusStyle
	if a.degraded || a.conn == ConnReconnecting {
		style = degradedStyle
	}
	status := style.Width(a.width).Render(a.statusLine())

	return lipgloss.JoinVertical(lipgloss.Left, title, body, status, a.help.View(a.keys))
}

// chromeHeight is the number of rows not used by the log body.
func (a *App) chromeHeight() int {
	return 2 + lipgloss.Height(a.help.View(a.keys))
}
