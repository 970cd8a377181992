package formatter

import (
	"fmt"
	"strings"

	"github.com/alexanderramin/branchplan/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Gruvbox-inspired color palette.
var (
	ColorGreen  = lipgloss.Color("#8ec07c")
	ColorYellow = lipgloss.Color("#fabd2f")
	ColorRed    = lipgloss.Color("#fb4934")
	ColorBlue   = lipgloss.Color("#83a598")
	ColorPurple = lipgloss.Color("#d3869b")
	ColorDim    = lipgloss.Color("#928374")
	ColorFg     = lipgloss.Color("#ebdbb2")
	ColorHeader = lipgloss.Color("#fe8019")
)

// Predefined lipgloss styles.
var (
	StyleGreen      = lipgloss.NewStyle().Foreground(ColorGreen)
	StyleYellow     = lipgloss.NewStyle().Foreground(ColorYellow)
	StyleYellowBold = lipgloss.NewStyle().Foreground(ColorYellow).Bold(true)
	StyleRed        = lipgloss.NewStyle().Foreground(ColorRed)
	StyleBlue       = lipgloss.NewStyle().Foreground(ColorBlue)
	StylePurple     = lipgloss.NewStyle().Foreground(ColorPurple)
	StyleDim        = lipgloss.NewStyle().Foreground(ColorDim)
	StyleFg         = lipgloss.NewStyle().Foreground(ColorFg)
	StyleHeader     = lipgloss.NewStyle().Foreground(ColorHeader).Bold(true)
	StyleBold       = lipgloss.NewStyle().Foreground(ColorFg).Bold(true)
)

// StatusColor returns the lipgloss style for a scenario status.
func StatusColor(status domain.ScenarioStatus) lipgloss.Style {
	switch status {
	case domain.ScenarioSelected:
		return StyleGreen
	case domain.ScenarioProposed:
		return StyleYellow
	case domain.ScenarioFrozen:
		return StyleBlue
	default:
		return StyleDim
	}
}

// StatusPill returns a colored status indicator such as "● selected".
func StatusPill(status domain.ScenarioStatus) string {
	mark := ""
	switch status {
	case domain.ScenarioSelected:
		mark = "● "
	case domain.ScenarioProposed:
		mark = "◆ "
	case domain.ScenarioFrozen:
		mark = "❄ "
	case domain.ScenarioDraft:
		mark = "○ "
	}
	return StatusColor(status).Render(mark + string(status))
}

// RoleBadge returns a capitalized, purple-styled creator role label.
func RoleBadge(role domain.CreatorRole) string {
	if role == "" {
		return StyleDim.Render("--")
	}
	r := string(role)
	return StylePurple.Render(strings.ToUpper(r[:1]) + r[1:])
}

// Header renders a section header with the orange header style and an underline.
func Header(text string) string {
	upper := strings.ToUpper(text)
	line := strings.Repeat("─", len(upper))
	return fmt.Sprintf("%s\n%s", StyleHeader.Render(upper), StyleDim.Render(line))
}

// Dim renders text in the muted/dim color.
func Dim(text string) string {
	return StyleDim.Render(text)
}

// Bold renders text in bold with the foreground color.
func Bold(text string) string {
	return StyleBold.Render(text)
}
