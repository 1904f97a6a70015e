package ui

import (
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Theme represents the current color scheme
type Theme string

const (
	ThemeDark  Theme = "dark"
	ThemeLight Theme = "light"
	// ThemeAuto picks light or dark from the terminal background at startup.
	ThemeAuto Theme = "auto"
)

// currentTheme holds the active theme (set at init)
var currentTheme Theme = ThemeLight

type palette struct {
	Bg, Window, Header, Panel lipgloss.Color
	Text, TextDim, Border     lipgloss.Color
	AccentOn, AccentOff, Glow lipgloss.Color
	Error                     lipgloss.Color
}

// Light Theme - clinical grey
var lightColors = palette{
	Bg:        lipgloss.Color("#e8e8e8"),
	Window:    lipgloss.Color("#f7f7f7"),
	Header:    lipgloss.Color("#ffffff"),
	Panel:     lipgloss.Color("#ffffff"),
	Text:      lipgloss.Color("#2a2a2a"),
	TextDim:   lipgloss.Color("#888888"),
	Border:    lipgloss.Color("#a0a0a0"),
	AccentOn:  lipgloss.Color("#2a2a2a"),
	AccentOff: lipgloss.Color("#d0d0d0"),
	Glow:      lipgloss.Color("#2a2a2a"),
	Error:     lipgloss.Color("#b3261e"),
}

// Dark Theme - cyan glow
var darkColors = palette{
	Bg:        lipgloss.Color("#0f0f0f"),
	Window:    lipgloss.Color("#1a1a1a"),
	Header:    lipgloss.Color("#141414"),
	Panel:     lipgloss.Color("#222222"),
	Text:      lipgloss.Color("#e0e0e0"),
	TextDim:   lipgloss.Color("#5c5c5c"),
	Border:    lipgloss.Color("#333333"),
	AccentOn:  lipgloss.Color("#00bcd4"),
	AccentOff: lipgloss.Color("#333333"),
	Glow:      lipgloss.Color("#00bcd4"),
	Error:     lipgloss.Color("#ff7979"),
}

// Active color variables (set by InitTheme)
var (
	ColorBg        lipgloss.Color
	ColorWindow    lipgloss.Color
	ColorHeader    lipgloss.Color
	ColorPanel     lipgloss.Color
	ColorText      lipgloss.Color
	ColorTextDim   lipgloss.Color
	ColorBorder    lipgloss.Color
	ColorAccentOn  lipgloss.Color
	ColorAccentOff lipgloss.Color
	ColorGlow      lipgloss.Color
	ColorError     lipgloss.Color
)

// themeMu protects the color and style variables during live theme switches.
var themeMu sync.RWMutex

// InitTheme sets the active color palette based on theme name.
// "auto" asks the terminal for its background color.
func InitTheme(theme string) {
	themeMu.Lock()
	defer themeMu.Unlock()

	resolved := ThemeLight
	switch Theme(theme) {
	case ThemeDark:
		resolved = ThemeDark
	case ThemeAuto:
		if lipgloss.HasDarkBackground() {
			resolved = ThemeDark
		}
	}

	p := lightColors
	if resolved == ThemeDark {
		p = darkColors
	}
	currentTheme = resolved
	ColorBg = p.Bg
	ColorWindow = p.Window
	ColorHeader = p.Header
	ColorPanel = p.Panel
	ColorText = p.Text
	ColorTextDim = p.TextDim
	ColorBorder = p.Border
	ColorAccentOn = p.AccentOn
	ColorAccentOff = p.AccentOff
	ColorGlow = p.Glow
	ColorError = p.Error

	initStyles()
}

// GetCurrentTheme returns the active theme
func GetCurrentTheme() Theme {
	themeMu.RLock()
	defer themeMu.RUnlock()
	return currentTheme
}

// ToggleTheme switches between light and dark and returns the new theme.
func ToggleTheme() Theme {
	next := ThemeDark
	if GetCurrentTheme() == ThemeDark {
		next = ThemeLight
	}
	InitTheme(string(next))
	return next
}

func init() {
	InitTheme(string(ThemeLight))
}

// Cached styles, rebuilt by initStyles on every theme change.
var (
	HeaderStyle       lipgloss.Style
	TitleStyle        lipgloss.Style
	IndicatorStyle    lipgloss.Style
	ThemeButtonStyle  lipgloss.Style
	SectionStyle      lipgloss.Style
	RowStyle          lipgloss.Style
	RowSelectedStyle  lipgloss.Style
	NameStyle         lipgloss.Style
	MetaStyle         lipgloss.Style
	SwitchOnStyle     lipgloss.Style
	SwitchOffStyle    lipgloss.Style
	StatusBarStyle    lipgloss.Style
	StatusErrorStyle  lipgloss.Style
	EmptyPathStyle    lipgloss.Style
	FilterPromptStyle lipgloss.Style
	HelpKeyStyle      lipgloss.Style
	HelpDescStyle     lipgloss.Style
)

func initStyles() {
	HeaderStyle = lipgloss.NewStyle().
		Background(ColorHeader).
		Foreground(ColorText).
		Padding(0, 2)

	TitleStyle = lipgloss.NewStyle().
		Foreground(ColorText).
		Bold(true)

	// The status dot glows in dark mode and stays plain in light mode.
	IndicatorStyle = lipgloss.NewStyle().Foreground(ColorText)
	if currentTheme == ThemeDark {
		IndicatorStyle = lipgloss.NewStyle().Foreground(ColorGlow)
	}

	ThemeButtonStyle = lipgloss.NewStyle().
		Background(ColorPanel).
		Foreground(ColorTextDim).
		Padding(0, 1)

	SectionStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	RowStyle = lipgloss.NewStyle().
		Background(ColorPanel).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(ColorTextDim).
		Padding(0, 2)

	RowSelectedStyle = RowStyle.
		BorderForeground(ColorGlow)

	NameStyle = lipgloss.NewStyle().
		Foreground(ColorText).
		Bold(true)

	MetaStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	SwitchOnStyle = lipgloss.NewStyle().
		Background(ColorAccentOn).
		Foreground(ColorWindow).
		Bold(true).
		Padding(0, 1)

	SwitchOffStyle = lipgloss.NewStyle().
		Background(ColorAccentOff).
		Foreground(ColorTextDim).
		Padding(0, 1)

	StatusBarStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim)

	StatusErrorStyle = lipgloss.NewStyle().
		Foreground(ColorError).
		Bold(true)

	EmptyPathStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim).
		PaddingLeft(2)

	FilterPromptStyle = lipgloss.NewStyle().
		Foreground(ColorGlow).
		Bold(true)

	HelpKeyStyle = lipgloss.NewStyle().
		Foreground(ColorText).
		Bold(true)

	HelpDescStyle = lipgloss.NewStyle().
		Foreground(ColorTextDim)
}
