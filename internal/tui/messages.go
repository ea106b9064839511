package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aquarius1905/care-support/internal/notify"
	"github.com/aquarius1905/care-support/internal/schedule"
	"github.com/aquarius1905/care-support/pkg/models"
)

// Message types for async operations
type (
	// SessionReadyMsg is sent once the stored token has been read
	SessionReadyMsg struct {
		RequestID string
	}

	// LoginDoneMsg reports the outcome of a credential exchange
	LoginDoneMsg struct {
		RequestID string
		Error     error
	}

	// ScheduleLoadedMsg contains today's pickups
	ScheduleLoadedMsg struct {
		RequestID string
		Result    schedule.FetchResult
		Error     error
	}

	// TimeUpdatedMsg reports a submitted time edit
	TimeUpdatedMsg struct {
		RequestID string
		Edit      models.PendingEdit
		Error     error
	}

	// LogoutDoneMsg reports the removal of the stored token
	LogoutDoneMsg struct {
		RequestID string
		Error     error
	}

	// NoticeMsg is a toast to show
	NoticeMsg struct {
		Message  string
		Severity notify.Severity
	}

	// toastExpiredMsg hides the toast with the same sequence number
	toastExpiredMsg struct {
		seq int
	}

	// TickMsg is sent periodically for spinner animation
	TickMsg time.Time
)

const toastDuration = 3 * time.Second

func initSessionCmd(ctx context.Context, id string, sess Session) tea.Cmd {
	return func() tea.Msg {
		sess.Initialize(ctx)
		return SessionReadyMsg{RequestID: id}
	}
}

// loginCmd exchanges credentials and stores the token
func loginCmd(ctx context.Context, id string, auth Authenticator, sess Session, username, password string) tea.Cmd {
	return func() tea.Msg {
		token, err := auth.Login(ctx, username, password)
		if err == nil {
			err = sess.Login(ctx, token)
		}
		return LoginDoneMsg{RequestID: id, Error: err}
	}
}

func fetchCmd(ctx context.Context, id string, list Schedule) tea.Cmd {
	return func() tea.Msg {
		result, err := list.FetchToday(ctx)
		return ScheduleLoadedMsg{RequestID: id, Result: result, Error: err}
	}
}

// submitEditCmd sends an edit already taken off the list
func submitEditCmd(ctx context.Context, id string, list Schedule, edit models.PendingEdit) tea.Cmd {
	return func() tea.Msg {
		return TimeUpdatedMsg{RequestID: id, Edit: edit, Error: list.SubmitEdit(ctx, edit)}
	}
}

func logoutCmd(ctx context.Context, id string, sess Session) tea.Cmd {
	return func() tea.Msg {
		return LogoutDoneMsg{RequestID: id, Error: sess.Logout(ctx)}
	}
}

func toastExpireCmd(seq int, ttl time.Duration) tea.Cmd {
	return tea.Tick(ttl, func(time.Time) tea.Msg {
		return toastExpiredMsg{seq: seq}
	})
}

// tickCmd creates a ticker for spinner animation
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
