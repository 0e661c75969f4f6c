package ui

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/xlttj/kportfwd/pkg/k8s"
	"github.com/xlttj/kportfwd/pkg/session"
)

// Focus is the form field of a tab that receives keys.
type Focus int

const (
	FocusContext Focus = iota
	FocusService
	FocusAddress
	FocusButton
	FocusLog
	focusCount
)

// tab is one forwarder: a session plus the form that drives it.
type tab struct {
	sup *session.Supervisor

	contextIdx int
	serviceIdx int
	address    textinput.Model
	focus      Focus

	log     viewport.Model
	lines   []string // rendered log lines
	logSeen int      // events already rendered
	closed  chan struct{}
}

// KeyMap holds the bindings shown in the help line.
type KeyMap struct {
	NewTab       key.Binding
	CloseTab     key.Binding
	NextTab      key.Binding
	PrevTab      key.Binding
	NextField    key.Binding
	PrevField    key.Binding
	Left         key.Binding
	Right        key.Binding
	Toggle       key.Binding
	CopyEndpoint key.Binding
	Reload       key.Binding
	Quit         key.Binding
}

// DefaultKeyMap returns the bindings used by the TUI.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		NewTab: key.NewBinding(
			key.WithKeys(ShortcutNewTab),
			key.WithHelp("ctrl+t", "new forwarder"),
		),
		CloseTab: key.NewBinding(
			key.WithKeys(ShortcutCloseTab),
			key.WithHelp("ctrl+w", "close tab"),
		),
		NextTab: key.NewBinding(
			key.WithKeys(ShortcutNextTab),
			key.WithHelp("ctrl+→", "next tab"),
		),
		PrevTab: key.NewBinding(
			key.WithKeys(ShortcutPrevTab),
			key.WithHelp("ctrl+←", "previous tab"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous field"),
		),
		Left: key.NewBinding(
			key.WithKeys("left"),
			key.WithHelp("←", "previous choice"),
		),
		Right: key.NewBinding(
			key.WithKeys("right"),
			key.WithHelp("→", "next choice"),
		),
		Toggle: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect/disconnect"),
		),
		CopyEndpoint: key.NewBinding(
			key.WithKeys(ShortcutCopyEndpoint),
			key.WithHelp("y", "copy endpoint"),
		),
		Reload: key.NewBinding(
			key.WithKeys(ShortcutReload),
			key.WithHelp("ctrl+r", "reload contexts"),
		),
		Quit: key.NewBinding(
			key.WithKeys(ShortcutQuit, ShortcutExit),
			key.WithHelp("ctrl+x", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.NewTab, k.CloseTab, k.NextTab, k.NextField, k.CopyEndpoint, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Toggle, k.Left, k.Right, k.NextField, k.PrevField},
		{k.NewTab, k.CloseTab, k.NextTab, k.PrevTab},
		{k.CopyEndpoint, k.Reload, k.Quit},
	}
}

// Messages

type contextsLoadedMsg struct {
	list k8s.ContextList
	err  error
}

type logChangedMsg struct {
	id string
}

type disconnectedMsg struct {
	id  string
	err error
}

type tabClosedMsg struct {
	id  string
	err error
}

type shutdownCompleteMsg struct {
	err error
}

type clearStatusMsg struct{}
