package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/xlttj/kportfwd/pkg/config"
	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/logging"
	"github.com/xlttj/kportfwd/pkg/session"
)

// Deps are the collaborators the TUI drives.
type Deps struct {
	Registry  *session.Registry
	Catalog   config.ServiceCatalog
	Directory k8s.Directory
	Settings  config.Settings
}

// Model represents the state of the UI
type Model struct {
	registry  *session.Registry
	catalog   config.ServiceCatalog
	directory k8s.Directory
	settings  config.Settings

	keys KeyMap
	help help.Model

	tabs     []*tab
	active   int
	contexts k8s.ContextList
	services []string

	width  int
	height int

	// Central error message
	errorMsg string
	// Status/info message (non-error feedback)
	statusMsg string
	// Last context query failure, shown until a reload succeeds
	contextErr string

	quitting bool
}

// NewModel builds the TUI with a single idle forwarder tab.
func NewModel(deps Deps) *Model {
	m := &Model{
		registry:  deps.Registry,
		catalog:   deps.Catalog,
		directory: deps.Directory,
		settings:  deps.Settings,
		keys:      DefaultKeyMap(),
		help:      help.New(),
		services:  deps.Catalog.Names(),
		width:     80, // Default width, will be updated on first WindowSizeMsg
		height:    24, // Default height, will be updated on first WindowSizeMsg
	}
	if len(m.services) == 0 {
		m.errorMsg = "No services in catalog"
	}
	m.addTab()
	return m
}

func (m *Model) sessionOptions() session.Options {
	return session.Options{
		Debug:       m.settings.Debug,
		StopTimeout: m.settings.StopTimeout,
		Kubectl:     m.settings.Kubectl,
	}
}

// addTab opens a new forwarder tab, makes it active and returns it.
func (m *Model) addTab() *tab {
	ti := textinput.New()
	ti.Placeholder = config.DefaultAddress
	ti.CharLimit = 253
	ti.Width = 30
	ti.SetValue(m.settings.DefaultAddress)

	t := &tab{
		sup:        m.registry.Create(m.sessionOptions()),
		contextIdx: m.contexts.ActiveIndex(),
		address:    ti,
		focus:      FocusService,
		log:        viewport.New(m.logWidth(), m.logHeight()),
		closed:     make(chan struct{}),
	}
	m.tabs = append(m.tabs, t)
	m.active = len(m.tabs) - 1
	logging.LogDebug("UI: opened tab %d for session %s", m.active, t.sup.ID())
	return t
}

func (m *Model) activeTab() *tab {
	if len(m.tabs) == 0 {
		return nil
	}
	return m.tabs[m.active]
}

func (m *Model) tabByID(id string) (int, *tab) {
	for i, t := range m.tabs {
		if t.sup.ID() == id {
			return i, t
		}
	}
	return -1, nil
}

func (m *Model) logWidth() int {
	// The log box border takes one cell on each side.
	if m.width < 4 {
		return 2
	}
	return m.width - 2
}

func (m *Model) logHeight() int {
	h := m.height - FormHeight - 4
	if h < MinLogHeight {
		h = MinLogHeight
	}
	return h
}

// Cleanup shuts every session down. Safe to call after the program exits.
func (m *Model) Cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*m.settings.StopTimeout+time.Second)
	defer cancel()
	if err := m.registry.ShutdownAll(ctx); err != nil {
		logging.LogError("Shutdown on exit: %v", err)
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{loadContextsCmd(m.directory)}
	for _, t := range m.tabs {
		cmds = append(cmds, waitForLogCmd(t))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		for _, t := range m.tabs {
			t.log.Width = m.logWidth()
			t.log.Height = m.logHeight()
			t.lines, t.logSeen = nil, 0
			m.refreshLog(t)
		}
		return m, nil

	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		// Global shortcuts that work in any state
		if key.Matches(msg, m.keys.Quit) {
			m.quitting = true
			m.statusMsg = "Shutting down forwarders..."
			return m, shutdownAllCmd(m.registry, 2*m.settings.StopTimeout+time.Second)
		}
		return m.updateTabs(msg)

	case contextsLoadedMsg:
		return m.handleContextsLoaded(msg)

	case logChangedMsg:
		_, t := m.tabByID(msg.id)
		if t == nil {
			return m, nil
		}
		m.refreshLog(t)
		return m, waitForLogCmd(t)

	case disconnectedMsg:
		if msg.err != nil {
			m.errorMsg = "Disconnect: " + msg.err.Error()
		}
		return m, nil

	case tabClosedMsg:
		if msg.err != nil {
			m.errorMsg = "Close tab: " + msg.err.Error()
		}
		return m, nil

	case shutdownCompleteMsg:
		if msg.err != nil {
			logging.LogError("Shutdown: %v", msg.err)
		}
		return m, tea.Quit

	case clearStatusMsg:
		m.statusMsg = ""
		return m, nil
	}

	return m, nil
}

func (m *Model) handleContextsLoaded(msg contextsLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		// Not fatal: the user can retry with ctrl+r.
		m.contexts = k8s.ContextList{}
		m.contextErr = "No contexts available: " + msg.err.Error()
		return m, nil
	}

	previous := m.contexts
	m.contexts = msg.list
	for _, t := range m.tabs {
		if t.sup.State() != session.Idle {
			continue
		}
		t.contextIdx = reselect(previous, msg.list, t.contextIdx)
	}

	m.contextErr = ""
	if len(msg.list.Names) == 0 {
		m.contextErr = "No contexts available"
	}
	return m, nil
}

// reselect keeps a tab's context choice across reloads, falling back to the
// active context.
func reselect(previous, current k8s.ContextList, idx int) int {
	if idx >= 0 && idx < len(previous.Names) {
		name := previous.Names[idx]
		for i, n := range current.Names {
			if n == name {
				return i
			}
		}
	}
	return current.ActiveIndex()
}

// Commands

func loadContextsCmd(dir k8s.Directory) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), ContextTimeout)
		defer cancel()
		list, err := dir.ListContexts(ctx)
		return contextsLoadedMsg{list: list, err: err}
	}
}

// waitForLogCmd blocks until the tab's log grows or the tab is closed.
func waitForLogCmd(t *tab) tea.Cmd {
	log := t.sup.Log()
	changed := log.Changed()
	seen := t.logSeen
	id := t.sup.ID()
	closed := t.closed
	return func() tea.Msg {
		if log.Len() > seen {
			return logChangedMsg{id: id}
		}
		select {
		case <-changed:
			return logChangedMsg{id: id}
		case <-closed:
			return nil
		}
	}
}

func disconnectCmd(sup *session.Supervisor, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return disconnectedMsg{id: sup.ID(), err: sup.Disconnect(ctx)}
	}
}

func closeTabCmd(registry *session.Registry, id string, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return tabClosedMsg{id: id, err: registry.Close(ctx, id)}
	}
}

func shutdownAllCmd(registry *session.Registry, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return shutdownCompleteMsg{err: registry.ShutdownAll(ctx)}
	}
}

func clearStatusCmd() tea.Cmd {
	return tea.Tick(StatusTTL, func(time.Time) tea.Msg { return clearStatusMsg{} })
}
