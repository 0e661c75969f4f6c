package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/xlttj/kportfwd/pkg/session"
)

var (
	logStdoutStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess))
	logStderrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	logTimeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
)

// tabTitle is the label of a running forwarder, or the idle title,
// truncated to fit the tab strip.
func tabTitle(t *tab) string {
	title := t.sup.Label()
	if title == "" {
		title = IdleTabTitle
	}
	return truncate(title, MaxTabTitleWidth)
}

// truncate shortens s to at most width terminal cells, marking the cut.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width-1, "") + "…"
}

// refreshLog renders events the tab has not seen yet and keeps the viewport
// pinned to the bottom when it already was.
func (m *Model) refreshLog(t *tab) {
	events := t.sup.Log().Events(t.logSeen)
	atBottom := t.log.AtBottom() || t.logSeen == 0
	for _, ev := range events {
		for _, line := range strings.Split(ev.Text, "\n") {
			t.lines = append(t.lines, renderLogLine(ev, strings.TrimRight(line, "\r"), t.log.Width))
		}
		t.logSeen = ev.Seq + 1
	}
	t.log.SetContent(strings.Join(t.lines, "\n"))
	if atBottom {
		t.log.GotoBottom()
	}
}

// renderLogLine colours a line by severity: stdout green, stderr red and
// info in the default colour.
func renderLogLine(ev session.LogEvent, line string, width int) string {
	stamp := ev.Time.Format(LogTimeFormat) + " "
	if width > 0 {
		line = truncate(line, width-runewidth.StringWidth(stamp))
	}

	switch ev.Severity {
	case session.SeverityStdout:
		line = logStdoutStyle.Render(line)
	case session.SeverityStderr:
		line = logStderrStyle.Render(line)
	}
	return logTimeStyle.Render(stamp) + line
}
