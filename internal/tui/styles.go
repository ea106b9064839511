package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/aquarius1905/care-support/internal/notify"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("63")).
			Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	rowStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	timeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(10)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(1, 3)

	pickerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Padding(0, 2)
)

func toastStyle(severity notify.Severity) lipgloss.Style {
	style := lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("231"))
	switch severity {
	case notify.Success:
		return style.Background(lipgloss.Color("28"))
	case notify.Error:
		return style.Background(lipgloss.Color("124"))
	default:
		return style.Background(lipgloss.Color("24"))
	}
}
