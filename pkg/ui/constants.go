package ui

import "time"

// Titles and labels
const (
	AppTitle         = "Kubernetes Port Forwarder"
	IdleTabTitle     = "Available Forwarder"
	LabelContext     = "Context"
	LabelService     = "Service"
	LabelAddress     = "Bind address"
	ButtonConnect    = "Connect"
	ButtonDisconnect = "Disconnect"
)

// Keyboard shortcuts
const (
	ShortcutExit         = "ctrl+x"
	ShortcutQuit         = "ctrl+c"
	ShortcutNewTab       = "ctrl+t"
	ShortcutCloseTab     = "ctrl+w"
	ShortcutNextTab      = "ctrl+right"
	ShortcutPrevTab      = "ctrl+left"
	ShortcutReload       = "ctrl+r"
	ShortcutCopyEndpoint = "y"
)

// Numeric Constants for Layout
const (
	MaxTabTitleWidth = 28 // Tab titles are truncated to this many cells
	FormHeight       = 8  // Lines used by the tab bar and form above the log
	MinLogHeight     = 3
	LogTimeFormat    = "15:04:05"
	ContextTimeout   = 10 * time.Second
	StatusTTL        = 3 * time.Second
)

// Lipgloss Colors
const (
	ColorBorder     = "240"
	ColorSelectedFg = "229"
	ColorSelectedBg = "57"
	ColorTitle      = "14"  // Cyan for titles
	ColorHelp       = "245" // Grey for help text
	ColorError      = "9"   // Red for errors and stderr
	ColorSuccess    = "10"  // Green for status messages and stdout
	ColorFocus      = "11"  // Yellow for the focused field
)
