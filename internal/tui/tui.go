package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aquarius1905/care-support/internal/api"
	"github.com/aquarius1905/care-support/internal/notify"
	"github.com/aquarius1905/care-support/internal/schedule"
	"github.com/aquarius1905/care-support/internal/tokenstore"
	"github.com/aquarius1905/care-support/pkg/models"
)

// Session is the token lifecycle the UI drives
type Session interface {
	Initialize(ctx context.Context)
	IsAuthenticated() bool
	Login(ctx context.Context, token string) error
	Logout(ctx context.Context) error
}

// Authenticator exchanges credentials for a token
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

// Schedule is the day's pickup list
type Schedule interface {
	FetchToday(ctx context.Context) (schedule.FetchResult, error)
	Entries() []models.ScheduleEntry
	Entry(id int64) (models.ScheduleEntry, bool)
	BeginEdit(id int64) (models.PendingEdit, error)
	SetProposed(t models.ClockTime) error
	Pending() (models.PendingEdit, bool)
	CancelEdit()
	TakePending() (models.PendingEdit, bool)
	SubmitEdit(ctx context.Context, edit models.PendingEdit) error
	Clear()
}

// Deps wires the model to the rest of the client
type Deps struct {
	Session  Session
	Auth     Authenticator
	Schedule Schedule
	// Notices must be the notifier the schedule list reports to
	Notices    *Notices
	MinuteStep int
	Logger     *slog.Logger
}

type viewMode int

const (
	loadingView viewMode = iota
	loginView
	listView
)

const (
	fieldUsername = iota
	fieldPassword
)

type model struct {
	ctx        context.Context
	sess       Session
	auth       Authenticator
	list       Schedule
	notices    *Notices
	requests   *Requests
	log        *slog.Logger
	minuteStep int

	mode     viewMode
	width    int
	height   int
	ready    bool
	viewport viewport.Model
	loading  *LoadingIndicator
	ticking  bool

	inputs     []textinput.Model
	focus      int
	loginErr   string
	submitting bool

	entries    []models.ScheduleEntry
	cursor     int
	date       string
	empty      bool
	loaded     bool
	fetching   bool
	fetchErr   string
	saving     int
	loggingOut bool

	confirmLogout bool

	toast    *NoticeMsg
	toastSeq int
	toastTTL time.Duration
}

func newModel(ctx context.Context, deps Deps) model {
	step := deps.MinuteStep
	if step <= 0 {
		step = 10
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notices := deps.Notices
	if notices == nil {
		notices = NewNotices()
	}

	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 150
	username.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.CharLimit = 128
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return model{
		ctx:        ctx,
		sess:       deps.Session,
		auth:       deps.Auth,
		list:       deps.Schedule,
		notices:    notices,
		requests:   NewRequests(),
		log:        logger.With("component", "tui"),
		minuteStep: step,
		mode:       loadingView,
		loading:    NewLoadingIndicator("Restoring session..."),
		inputs:     []textinput.Model{username, password},
		toastTTL:   toastDuration,
	}
}

func (m model) Init() tea.Cmd {
	id, ctx := m.requests.Begin(m.ctx, kindInit)
	return tea.Batch(
		initSessionCmd(ctx, id, m.sess),
		m.notices.wait(),
		tickCmd(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := msg.Height - 4
		if bodyHeight < 1 {
			bodyHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, bodyHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = bodyHeight
		}
		m.refreshViewport()
		return m, nil

	case TickMsg:
		if !m.busy() {
			m.ticking = false
			return m, nil
		}
		m.loading.Tick()
		return m, tickCmd()

	case NoticeMsg:
		return m, tea.Batch(m.showToast(msg.Message, msg.Severity), m.notices.wait())

	case toastExpiredMsg:
		if msg.seq == m.toastSeq {
			m.toast = nil
		}
		return m, nil

	case SessionReadyMsg:
		if !m.requests.Finish(msg.RequestID) {
			return m, nil
		}
		if m.sess.IsAuthenticated() {
			m.mode = listView
			return m, m.startFetch()
		}
		return m, m.toLogin()

	case LoginDoneMsg:
		return m.handleLoginDone(msg)

	case ScheduleLoadedMsg:
		return m.handleScheduleLoaded(msg)

	case TimeUpdatedMsg:
		return m.handleTimeUpdated(msg)

	case LogoutDoneMsg:
		if !m.requests.Finish(msg.RequestID) {
			return m, nil
		}
		m.loggingOut = false
		cmd := m.toLogin()
		if msg.Error != nil {
			m.log.Warn("failed to remove stored token", "error", msg.Error)
			return m, tea.Batch(cmd, m.showToast("Logged out, but the saved session could not be removed", notify.Error))
		}
		return m, tea.Batch(cmd, m.showToast("Logged out", notify.Info))

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.requests.Close()
			return m, tea.Quit
		}
		switch m.mode {
		case loginView:
			return m.updateLogin(msg)
		case listView:
			return m.updateList(msg)
		}
	}

	return m, nil
}

func (m model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "down":
		return m, m.setFocus((m.focus + 1) % len(m.inputs))
	case "shift+tab", "up":
		return m, m.setFocus((m.focus + len(m.inputs) - 1) % len(m.inputs))
	case "enter":
		if m.focus == fieldUsername {
			return m, m.setFocus(fieldPassword)
		}
		return m, m.submitLogin()
	}

	if m.submitting {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *model) setFocus(i int) tea.Cmd {
	m.inputs[m.focus].Blur()
	m.focus = i
	return m.inputs[m.focus].Focus()
}

func (m *model) submitLogin() tea.Cmd {
	if m.submitting {
		return nil
	}
	username := strings.TrimSpace(m.inputs[fieldUsername].Value())
	password := m.inputs[fieldPassword].Value()
	if username == "" || password == "" {
		m.loginErr = "Username and password are required"
		return m.showToast(m.loginErr, notify.Error)
	}

	m.loginErr = ""
	m.submitting = true
	m.loading.SetMessage("Signing in...")
	id, ctx := m.requests.Begin(m.ctx, kindLogin)
	return m.withSpinner(loginCmd(ctx, id, m.auth, m.sess, username, password))
}

func (m model) handleLoginDone(msg LoginDoneMsg) (tea.Model, tea.Cmd) {
	if !m.requests.Finish(msg.RequestID) {
		return m, nil
	}
	m.submitting = false

	if msg.Error != nil {
		m.loginErr = loginFailureMessage(msg.Error)
		m.log.Info("login failed", "error", msg.Error)
		return m, m.showToast(m.loginErr, notify.Error)
	}

	m.inputs[fieldPassword].SetValue("")
	m.mode = listView
	return m, tea.Batch(m.showToast("Logged in", notify.Success), m.startFetch())
}

func loginFailureMessage(err error) string {
	var failed *api.RequestFailedError
	var storage *tokenstore.StorageError
	switch {
	case errors.As(err, &failed) && failed.Detail != "":
		return failed.Detail
	case errors.As(err, &failed):
		return "Invalid username or password"
	case errors.Is(err, api.ErrNetwork):
		return "Connection error"
	case errors.As(err, &storage):
		return "Failed to save the session"
	default:
		return "Login failed"
	}
}

func (m model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.confirmLogout {
		switch msg.String() {
		case "y", "Y":
			m.confirmLogout = false
			m.loggingOut = true
			m.loading.SetMessage("Logging out...")
			id, ctx := m.requests.Begin(m.ctx, kindLogout)
			return m, m.withSpinner(logoutCmd(ctx, id, m.sess))
		case "n", "N", "esc":
			m.confirmLogout = false
		}
		return m, nil
	}

	if edit, ok := m.list.Pending(); ok {
		return m.updatePicker(msg, edit)
	}

	switch msg.String() {
	case "q":
		m.requests.Close()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.refreshViewport()
		}
	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
			m.refreshViewport()
		}
	case "enter", "e":
		if m.cursor < len(m.entries) {
			if _, err := m.list.BeginEdit(m.entries[m.cursor].ID); err != nil {
				return m, m.showToast("That pickup is no longer in the list", notify.Error)
			}
		}
	case "r":
		return m, m.startFetch()
	case "x":
		if !m.loggingOut {
			m.confirmLogout = true
		}
	}
	return m, nil
}

func (m model) updatePicker(msg tea.KeyMsg, edit models.PendingEdit) (tea.Model, tea.Cmd) {
	delta := 0
	switch msg.String() {
	case "up", "k":
		delta = m.minuteStep
	case "down", "j":
		delta = -m.minuteStep
	case "right", "l":
		delta = 60
	case "left", "h":
		delta = -60
	case "esc":
		m.list.CancelEdit()
		return m, nil
	case "enter":
		taken, ok := m.list.TakePending()
		if !ok {
			return m, nil
		}
		m.saving++
		m.loading.SetMessage("Saving...")
		id, ctx := m.requests.Begin(m.ctx, kindUpdate)
		return m, m.withSpinner(submitEditCmd(ctx, id, m.list, taken))
	}
	if delta != 0 {
		if err := m.list.SetProposed(edit.ProposedTime.Add(delta)); err != nil {
			m.log.Debug("edit closed before change", "error", err)
		}
	}
	return m, nil
}

func (m model) handleScheduleLoaded(msg ScheduleLoadedMsg) (tea.Model, tea.Cmd) {
	if !m.requests.Finish(msg.RequestID) {
		m.log.Debug("discarding stale schedule result", "request_id", msg.RequestID)
		return m, nil
	}
	m.fetching = m.requests.Pending(kindFetch) > 0

	if msg.Error != nil {
		if !api.IsRecoverable(msg.Error) {
			return m, m.toLogin()
		}
		m.fetchErr = "Could not load today's schedule. Press r to retry."
		m.refreshViewport()
		return m, nil
	}

	m.fetchErr = ""
	m.loaded = true
	m.date = msg.Result.Date
	m.empty = msg.Result.Empty
	m.entries = msg.Result.Entries
	if m.cursor >= len(m.entries) {
		m.cursor = max(len(m.entries)-1, 0)
	}
	m.refreshViewport()
	return m, nil
}

func (m model) handleTimeUpdated(msg TimeUpdatedMsg) (tea.Model, tea.Cmd) {
	if !m.requests.Finish(msg.RequestID) {
		return m, nil
	}
	if m.saving > 0 {
		m.saving--
	}
	if !api.IsRecoverable(msg.Error) {
		return m, m.toLogin()
	}
	m.entries = m.list.Entries()
	m.refreshViewport()
	return m, nil
}

func (m *model) startFetch() tea.Cmd {
	m.fetching = true
	m.loading.SetMessage("Loading today's pickups...")
	id, ctx := m.requests.Begin(m.ctx, kindFetch)
	return m.withSpinner(fetchCmd(ctx, id, m.list))
}

// toLogin drops everything tied to the previous session and shows the form
func (m *model) toLogin() tea.Cmd {
	m.requests.CancelAll()
	m.list.Clear()
	m.mode = loginView
	m.entries = nil
	m.cursor = 0
	m.date = ""
	m.loaded = false
	m.empty = false
	m.fetching = false
	m.fetchErr = ""
	m.saving = 0
	m.submitting = false
	m.loggingOut = false
	m.confirmLogout = false
	m.inputs[fieldPassword].SetValue("")
	return m.setFocus(fieldUsername)
}

func (m *model) showToast(message string, severity notify.Severity) tea.Cmd {
	m.toastSeq++
	m.toast = &NoticeMsg{Message: message, Severity: severity}
	return toastExpireCmd(m.toastSeq, m.toastTTL)
}

func (m *model) withSpinner(cmd tea.Cmd) tea.Cmd {
	if m.ticking {
		return cmd
	}
	m.ticking = true
	return tea.Batch(cmd, tickCmd())
}

func (m model) busy() bool {
	return m.mode == loadingView || m.submitting || m.fetching || m.saving > 0 || m.loggingOut
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderEntries())
	if m.cursor < m.viewport.YOffset {
		m.viewport.SetYOffset(m.cursor)
	} else if m.cursor >= m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(m.cursor - m.viewport.Height + 1)
	}
}

func (m model) renderEntries() string {
	if m.fetchErr != "" && len(m.entries) == 0 {
		return errorStyle.Render(m.fetchErr)
	}
	if m.empty {
		return emptyStyle.Render("No pickups scheduled for today")
	}

	var s strings.Builder
	for i, e := range m.entries {
		cursor := "  "
		style := rowStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		s.WriteString(style.Render(cursor) + timeStyle.Render(e.ScheduledTime.String()) + "  " + style.Render(e.SubjectName))
		if i < len(m.entries)-1 {
			s.WriteString("\n")
		}
	}
	return s.String()
}

func (m model) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	var body string
	switch m.mode {
	case loadingView:
		body = LoadingOverlay(m.width, m.viewport.Height, m.loading)
	case loginView:
		body = m.renderLogin()
	case listView:
		body = m.renderList()
	}

	return fmt.Sprintf("%s\n%s\n%s\n%s", m.renderHeader(), body, m.renderStatus(), m.renderFooter())
}

func (m model) renderHeader() string {
	title := "Care Support"
	switch m.mode {
	case loginView:
		title += " - Login"
	case listView:
		title += " - Today's Pickups"
		if m.date != "" {
			title += " (" + m.date + ")"
		}
	}
	return titleStyle.Render(title)
}

func (m model) renderLogin() string {
	var s strings.Builder
	s.WriteString("\n")
	s.WriteString(labelStyle.Render("Username") + m.inputs[fieldUsername].View() + "\n")
	s.WriteString(labelStyle.Render("Password") + m.inputs[fieldPassword].View() + "\n\n")
	if m.submitting {
		s.WriteString(m.loading.View())
	} else if m.loginErr != "" {
		s.WriteString(errorStyle.Render(m.loginErr))
	}
	return lipgloss.NewStyle().Height(m.viewport.Height).Padding(0, 2).Render(s.String())
}

func (m model) renderList() string {
	if !m.loaded && m.fetchErr == "" {
		return LoadingOverlay(m.width, m.viewport.Height, m.loading)
	}
	if m.confirmLogout {
		return m.place(modalStyle.Render("Log out?\n\n" + hintStyle.Render("y: yes • n: no")))
	}
	if edit, ok := m.list.Pending(); ok {
		return m.place(m.renderPicker(edit))
	}
	return m.viewport.View()
}

func (m model) renderPicker(edit models.PendingEdit) string {
	name := ""
	current := ""
	if e, ok := m.list.Entry(edit.TargetEntryID); ok {
		name = e.SubjectName
		current = e.ScheduledTime.String()
	}
	hint := fmt.Sprintf("↑/↓: ±%d min • ←/→: ±1 hour • enter: save • esc: cancel", m.minuteStep)
	content := fmt.Sprintf("Change pickup time\n%s\n\n%s  →  %s\n\n%s",
		dimStyle.Render(name),
		dimStyle.Render(current),
		pickerStyle.Render(edit.ProposedTime.String()),
		hintStyle.Render(hint))
	return modalStyle.Render(content)
}

func (m model) place(content string) string {
	return lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, content)
}

func (m model) renderStatus() string {
	if m.toast != nil {
		return toastStyle(m.toast.Severity).Render(m.toast.Message)
	}
	if m.mode == listView && m.loaded && (m.fetching || m.saving > 0 || m.loggingOut) {
		return m.loading.View()
	}
	if m.mode == listView && m.fetchErr != "" && len(m.entries) > 0 {
		return errorStyle.Render(m.fetchErr)
	}
	return ""
}

func (m model) renderFooter() string {
	var info string
	switch m.mode {
	case loginView:
		info = "tab: next field • enter: sign in • ctrl+c: quit"
	case listView:
		info = "↑/↓: navigate • enter: change time • r: refresh • x: logout • q: quit"
	default:
		info = "ctrl+c: quit"
	}
	return hintStyle.Render(info)
}

// Run starts the terminal UI and blocks until the user quits
func Run(ctx context.Context, deps Deps) error {
	m := newModel(ctx, deps)
	defer m.requests.Close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run terminal UI: %w", err)
	}
	return nil
}
