package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/horken7/your-mail-buddy/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for the application title bar.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// DetailPanelStyle wraps overlay panels (help, command palette).
var DetailPanelStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the focused inbox row.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

var DimmedStyle = lipgloss.NewStyle().
	Foreground(ColorGray)

// SectionTitleStyle heads the blocks of the detail view.
var SectionTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite)

// ImportanceBadge returns the emoji shown next to a message of the given
// importance. Failed analysis gets ❌.
func ImportanceBadge(i model.Importance) string {
	switch i {
	case 5:
		return "🔥"
	case 4:
		return "🔴"
	case 3:
		return "🟠"
	case 2:
		return "🟡"
	case 1:
		return "🟢"
	default:
		return "❌"
	}
}

// ImportanceStyle returns a color-coded style for the given importance.
func ImportanceStyle(i model.Importance) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch i {
	case 5, 4:
		return base.Foreground(ColorRed)
	case 3:
		return base.Foreground(ColorOrange)
	case 2:
		return base.Foreground(ColorYellow)
	case 1:
		return base.Foreground(ColorGreen)
	default:
		return base.Foreground(ColorGray)
	}
}

// NoticeStyle colors a notice according to its level.
func NoticeStyle(level model.NoticeLevel) lipgloss.Style {
	base := StatusBarStyle.Bold(true)

	switch level {
	case model.NoticeSuccess:
		return base.Foreground(ColorGreen)
	case model.NoticeWarning:
		return base.Foreground(ColorYellow)
	case model.NoticeError:
		return base.Foreground(ColorRed)
	default:
		return base
	}
}

// Apply selects the adaptive color variant. "dark" and "light" force it;
// anything else keeps lipgloss's terminal detection.
func Apply(name string) {
	switch name {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetHasDarkBackground(false)
	}
}
