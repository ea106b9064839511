package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Spinner represents a loading spinner
type Spinner struct {
	frames []string
	frame  int
}

// NewSpinner creates a new spinner
func NewSpinner() *Spinner {
	return &Spinner{
		frames: []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"},
	}
}

// Next advances the spinner to the next frame
func (s *Spinner) Next() {
	s.frame = (s.frame + 1) % len(s.frames)
}

// View returns the current spinner frame
func (s *Spinner) View() string {
	return s.frames[s.frame]
}

// LoadingIndicator is a spinner with a message
type LoadingIndicator struct {
	spinner *Spinner
	message string
}

func NewLoadingIndicator(message string) *LoadingIndicator {
	return &LoadingIndicator{
		spinner: NewSpinner(),
		message: message,
	}
}

func (l *LoadingIndicator) SetMessage(message string) {
	l.message = message
}

// Tick advances the spinner animation
func (l *LoadingIndicator) Tick() {
	l.spinner.Next()
}

func (l *LoadingIndicator) View() string {
	return fmt.Sprintf("%s %s",
		spinnerStyle.Render(l.spinner.View()),
		dimStyle.Render(l.message))
}

// LoadingOverlay centers the indicator in the given area
func LoadingOverlay(width, height int, indicator *LoadingIndicator) string {
	hint := hintStyle.Render("[ctrl+c to quit]")
	content := fmt.Sprintf("%s\n\n%s", indicator.View(), hint)

	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Render(content)
}
