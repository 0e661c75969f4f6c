package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xlttj/kportfwd/pkg/logging"
	"github.com/xlttj/kportfwd/pkg/session"
)

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

// updateTabs handles key presses for the tab strip and the active tab's form.
func (m *Model) updateTabs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.NewTab):
		m.errorMsg = ""
		t := m.addTab()
		return m, waitForLogCmd(t)

	case key.Matches(msg, m.keys.CloseTab):
		return m.closeActiveTab()

	case key.Matches(msg, m.keys.NextTab):
		m.active = (m.active + 1) % len(m.tabs)
		return m, nil

	case key.Matches(msg, m.keys.PrevTab):
		m.active = (m.active - 1 + len(m.tabs)) % len(m.tabs)
		return m, nil

	case key.Matches(msg, m.keys.Reload):
		m.statusMsg = "Reloading contexts..."
		return m, loadContextsCmd(m.directory)
	}

	t := m.activeTab()
	idle := t.sup.State() == session.Idle

	switch {
	case key.Matches(msg, m.keys.NextField):
		m.setFocus(t, (t.focus+1)%focusCount)
		return m, nil

	case key.Matches(msg, m.keys.PrevField):
		m.setFocus(t, (t.focus-1+focusCount)%focusCount)
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		return m.toggleConnection(t)
	}

	editingAddress := idle && t.focus == FocusAddress
	if !editingAddress && key.Matches(msg, m.keys.CopyEndpoint) {
		return m.copyEndpoint(t)
	}

	switch t.focus {
	case FocusAddress:
		if !editingAddress {
			break
		}
		var cmd tea.Cmd
		t.address, cmd = t.address.Update(msg)
		return m, cmd

	case FocusContext, FocusService:
		if !idle {
			// Selections only change while disconnected.
			break
		}
		delta := 0
		if key.Matches(msg, m.keys.Left) {
			delta = -1
		} else if key.Matches(msg, m.keys.Right) {
			delta = 1
		}
		if delta == 0 {
			break
		}
		if t.focus == FocusContext {
			t.contextIdx = cycle(t.contextIdx, delta, len(m.contexts.Names))
		} else {
			t.serviceIdx = cycle(t.serviceIdx, delta, len(m.services))
		}
		return m, nil

	case FocusLog:
		var cmd tea.Cmd
		t.log, cmd = t.log.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) setFocus(t *tab, f Focus) {
	t.focus = f
	if f == FocusAddress && t.sup.State() == session.Idle {
		t.address.Focus()
	} else {
		t.address.Blur()
	}
}

func cycle(idx, delta, n int) int {
	if n == 0 {
		return 0
	}
	return ((idx+delta)%n + n) % n
}

// selection returns the tab's chosen context and service names.
func (m *Model) selection(t *tab) (string, string) {
	var ctxName, svcName string
	if t.contextIdx < len(m.contexts.Names) {
		ctxName = m.contexts.Names[t.contextIdx]
	}
	if t.serviceIdx < len(m.services) {
		svcName = m.services[t.serviceIdx]
	}
	return ctxName, svcName
}

// toggleConnection connects an idle tab and disconnects a running one.
func (m *Model) toggleConnection(t *tab) (tea.Model, tea.Cmd) {
	m.errorMsg = ""

	switch t.sup.State() {
	case session.Running:
		return m, disconnectCmd(t.sup, 2*m.settings.StopTimeout+time.Second)
	case session.Idle:
	default:
		return m, nil
	}

	ctxName, svcName := m.selection(t)
	if ctxName == "" {
		m.errorMsg = "No context selected"
		return m, nil
	}
	if svcName == "" {
		m.errorMsg = "No service selected"
		return m, nil
	}
	address := strings.TrimSpace(t.address.Value())
	if address == "" {
		address = m.settings.DefaultAddress
		t.address.SetValue(address)
	}

	params := session.Params{Context: ctxName, Service: svcName, Address: address}
	if err := t.sup.Connect(context.Background(), params); err != nil {
		logging.LogError("Connect %+v: %v", params, err)
		m.errorMsg = fmt.Sprintf("Connect failed: %v", err)
		return m, nil
	}
	t.address.Blur()
	return m, nil
}

func (m *Model) closeActiveTab() (tea.Model, tea.Cmd) {
	t := m.activeTab()
	close(t.closed)
	m.tabs = append(m.tabs[:m.active], m.tabs[m.active+1:]...)

	cmds := []tea.Cmd{closeTabCmd(m.registry, t.sup.ID(), 2*m.settings.StopTimeout+time.Second)}
	if len(m.tabs) == 0 {
		nt := m.addTab()
		cmds = append(cmds, waitForLogCmd(nt))
	} else if m.active >= len(m.tabs) {
		m.active = len(m.tabs) - 1
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) copyEndpoint(t *tab) (tea.Model, tea.Cmd) {
	endpoint := t.sup.Endpoint()
	if endpoint == "" {
		m.errorMsg = "Nothing to copy: forwarder is not running"
		return m, nil
	}
	if err := writeClipboard(endpoint); err != nil {
		logging.LogError("Failed to copy endpoint: %v", err)
		m.errorMsg = "Copy failed: " + err.Error()
		return m, nil
	}
	m.statusMsg = fmt.Sprintf("Copied %s", endpoint)
	return m, clearStatusCmd()
}
