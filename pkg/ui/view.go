package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/session"
)

var (
	titleStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTitle)).Bold(true)
	helpStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorSuccess))
	focusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorFocus)).Bold(true)
	labelStyle     = lipgloss.NewStyle().Width(14)
	activeTabStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, true, false, true).
			BorderForeground(lipgloss.Color(ColorSelectedBg)).
			Foreground(lipgloss.Color(ColorSelectedFg)).
			Background(lipgloss.Color(ColorSelectedBg)).
			Padding(0, 1)
	inactiveTabStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, true, false, true).
				BorderForeground(lipgloss.Color(ColorBorder)).
				Padding(0, 1)
	buttonStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 2)
	logBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder))
)

// View renders the current model state
func (m *Model) View() string {
	if m.quitting {
		return statusStyle.Render(m.statusMsg) + "\n"
	}

	t := m.activeTab()
	title := titleStyle.Render(AppTitle)

	sections := []string{
		title,
		m.renderTabBar(),
		m.renderForm(t),
		m.renderLog(t),
	}
	if msg := m.renderMessage(); msg != "" {
		sections = append(sections, msg)
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderTabBar() string {
	rendered := make([]string, len(m.tabs))
	for i, t := range m.tabs {
		style := inactiveTabStyle
		if i == m.active {
			style = activeTabStyle
		}
		rendered[i] = style.Render(tabTitle(t))
	}
	return lipgloss.JoinHorizontal(lipgloss.Bottom, rendered...)
}

func (m *Model) renderForm(t *tab) string {
	ctxName, svcName := m.selection(t)
	ctxShown, svcShown := ctxName, svcName
	if ctxShown == "" {
		ctxShown = "(none)"
	}
	if svcShown == "" {
		svcShown = "(none)"
	}

	state := t.sup.State()
	idle := state == session.Idle

	rows := []string{
		m.renderField(t, FocusContext, LabelContext, chooser(ctxShown, idle, t.focus == FocusContext)),
		m.renderField(t, FocusService, LabelService, chooser(svcShown, idle, t.focus == FocusService)),
		m.renderField(t, FocusAddress, LabelAddress, t.address.View()),
	}

	label := ButtonConnect
	if state != session.Idle {
		label = ButtonDisconnect
	}
	button := buttonStyle
	if t.focus == FocusButton {
		button = button.BorderForeground(lipgloss.Color(ColorFocus))
	}
	stateLine := fmt.Sprintf("State: %s", state)
	if endpoint := t.sup.Endpoint(); endpoint != "" {
		stateLine += "  Endpoint: " + endpoint
	}
	rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Center, button.Render(label), "  ", helpStyle.Render(stateLine)))

	if preview := m.commandPreview(ctxName, svcName, t.address.Value()); preview != "" && idle && ctxName != "" {
		rows = append(rows, helpStyle.Render(truncate(preview, m.width)))
	}
	return strings.Join(rows, "\n")
}

func (m *Model) renderField(t *tab, f Focus, label, value string) string {
	l := labelStyle.Render(label + ":")
	if t.focus == f {
		l = focusStyle.Inherit(labelStyle).Render(label + ":")
	}
	return l + value
}

func chooser(value string, editable, focused bool) string {
	if !editable {
		return value
	}
	if focused {
		return focusStyle.Render("‹ " + value + " ›")
	}
	return "‹ " + value + " ›"
}

// commandPreview shows the command Connect would run for the current form.
func (m *Model) commandPreview(ctxName, svcName, address string) string {
	svc, err := m.catalog.Lookup(svcName)
	if err != nil {
		return ""
	}
	cmd, err := k8s.BuildCommand(m.settings.Kubectl, ctxName, svc, address)
	if err != nil {
		return err.Error()
	}
	return "$ " + cmd.String()
}

func (m *Model) renderLog(t *tab) string {
	box := logBoxStyle
	if t.focus == FocusLog {
		box = box.BorderForeground(lipgloss.Color(ColorFocus))
	}
	return box.Render(t.log.View())
}

func (m *Model) renderMessage() string {
	switch {
	case m.errorMsg != "":
		return errorStyle.Render(fmt.Sprintf("ERROR: %s", m.errorMsg))
	case m.contextErr != "":
		return errorStyle.Render(m.contextErr)
	case m.statusMsg != "":
		return statusStyle.Render(m.statusMsg)
	}
	return ""
}
