package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aquarius1905/care-support/internal/notify"
)

// Notices carries notifications raised outside the event loop into it
type Notices struct {
	ch chan NoticeMsg
}

func NewNotices() *Notices {
	return &Notices{ch: make(chan NoticeMsg, 16)}
}

// Notify queues a toast. It never blocks; when the queue is full the
// notification is dropped.
func (n *Notices) Notify(message string, severity notify.Severity) {
	select {
	case n.ch <- NoticeMsg{Message: message, Severity: severity}:
	default:
	}
}

// wait delivers the next queued notification to the program
func (n *Notices) wait() tea.Cmd {
	return func() tea.Msg {
		return <-n.ch
	}
}
