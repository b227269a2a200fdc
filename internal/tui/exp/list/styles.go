package list

import (
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/lucasb-eyer/go-colorful"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	bodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#BFBCC8"))
	focusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B50FF"))
	statusStyle = lipgloss.NewStyle().Faint(true)
)

// headerStyle picks a color per section, walking around the hue circle.
func headerStyle(section int) lipgloss.Style {
	hue := float64((section * 47) % 360)
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(colorful.Hcl(hue, 0.6, 0.7).Clamped())
}
