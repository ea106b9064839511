// Package schedule holds the in-memory state of the day's pickups and the
// operations that read and edit it through the authenticated client.
package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aquarius1905/care-support/internal/api"
	"github.com/aquarius1905/care-support/internal/notify"
	"github.com/aquarius1905/care-support/pkg/models"
)

const schedulesPath = "/transport-schedules/"

var (
	// ErrUnknownEntry is returned when an id is not in the collection
	ErrUnknownEntry = errors.New("unknown schedule entry")
	// ErrNoPendingEdit is returned when no edit is open
	ErrNoPendingEdit = errors.New("no pending edit")
	// ErrSessionChanged is returned when the session that issued a fetch
	// ended before its result arrived. The result is discarded.
	ErrSessionChanged = errors.New("session changed during fetch")
)

// Requester is the part of the api client the list needs
type Requester interface {
	Request(ctx context.Context, method, path string, body any) (json.RawMessage, error)
}

// Gate reports the token requests are currently made with
type Gate interface {
	Token() (string, bool)
}

// FetchResult is the outcome of a successful FetchToday
type FetchResult struct {
	Date    string
	Entries []models.ScheduleEntry
	// Empty is set when the backend has no pickups for the day. It is a
	// notice, not an error.
	Empty bool
}

// List is the day's schedule keyed by entry id
type List struct {
	client   Requester
	gate     Gate
	notifier notify.Notifier
	log      *slog.Logger
	now      func() time.Time

	mu        sync.RWMutex
	entries   map[int64]models.ScheduleEntry
	pending   *models.PendingEdit
	// editSeq numbers successful time updates; confirmed keeps the latest
	// one per entry until a fetch sent after it has been applied.
	editSeq   uint64
	confirmed map[int64]confirmedTime

	fetches singleflight.Group

	editMu sync.Mutex
	// tails holds, per entry, the completion channel of the newest edit
	tails map[int64]chan struct{}
}

// Option configures a List
type Option func(*List)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *List) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *List) {
		if logger != nil {
			l.log = logger
		}
	}
}

// NewList creates an empty schedule list
func NewList(client Requester, gate Gate, notifier notify.Notifier, opts ...Option) *List {
	if notifier == nil {
		notifier = notify.Discard
	}
	l := &List{
		client:    client,
		gate:      gate,
		notifier:  notifier,
		log:       slog.Default(),
		now:       time.Now,
		entries:   make(map[int64]models.ScheduleEntry),
		confirmed: make(map[int64]confirmedTime),
		tails:     make(map[int64]chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("component", "schedule")
	return l
}

// Today returns the local calendar date as YYYY-MM-DD
func (l *List) Today() string {
	return l.now().Format("2006-01-02")
}

type confirmedTime struct {
	seq  uint64
	time models.ClockTime
}

// fetched is the shared outcome of one GET together with the edit sequence
// observed before it was sent
type fetched struct {
	entries []models.ScheduleEntry
	editSeq uint64
}

// FetchToday loads today's pickups and replaces the collection. Concurrent
// calls made with the same token share one request.
func (l *List) FetchToday(ctx context.Context) (FetchResult, error) {
	token, ok := l.gate.Token()
	if !ok {
		return FetchResult{}, api.ErrNotAuthenticated
	}

	date := l.Today()
	// The shared request outlives any single caller; the client timeout
	// still bounds it.
	shared := context.WithoutCancel(ctx)
	ch := l.fetches.DoChan(date+"|"+token, func() (interface{}, error) {
		l.mu.RLock()
		seq := l.editSeq
		l.mu.RUnlock()
		entries, err := l.fetch(shared, date)
		if err != nil {
			return nil, err
		}
		return fetched{entries: entries, editSeq: seq}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return FetchResult{}, ctx.Err()
	}
	if res.Err != nil {
		if errors.Is(res.Err, api.ErrSessionExpired) && l.replaced(token) {
			return FetchResult{}, ErrSessionChanged
		}
		l.reportFetchError(res.Err)
		return FetchResult{}, res.Err
	}

	f := res.Val.(fetched)
	if !l.replace(token, f) {
		l.log.Info("discarding schedules fetched by an ended session", "date", date)
		return FetchResult{}, ErrSessionChanged
	}

	result := FetchResult{Date: date, Entries: l.Entries(), Empty: len(f.entries) == 0}
	if result.Empty {
		l.notifier.Notify("No pickups scheduled for today", notify.Info)
	}
	return result, nil
}

// replaced reports whether another token has been logged in since token
func (l *List) replaced(token string) bool {
	current, ok := l.gate.Token()
	return ok && current != token
}

func (l *List) fetch(ctx context.Context, date string) ([]models.ScheduleEntry, error) {
	path := schedulesPath + "?date=" + url.QueryEscape(date)
	raw, err := l.client.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var page schedulePage
	if err := api.DecodeInto(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode schedules for %s: %w", date, err)
	}

	entries := make([]models.ScheduleEntry, 0, len(page.Results))
	seen := make(map[int64]bool, len(page.Results))
	for _, rec := range page.Results {
		if seen[rec.ID] {
			l.log.Warn("duplicate schedule id in response", "entry_id", rec.ID)
			continue
		}
		entry, err := rec.toEntry()
		if err != nil {
			l.log.Warn("skipping schedule record", "entry_id", rec.ID, "error", err)
			continue
		}
		seen[rec.ID] = true
		entries = append(entries, entry)
	}
	l.log.Info("fetched schedules", "date", date, "count", len(entries))
	return entries, nil
}

func (l *List) reportFetchError(err error) {
	switch {
	case errors.Is(err, api.ErrSessionExpired):
		l.notifier.Notify("Session expired: please log in again", notify.Error)
	case errors.Is(err, api.ErrNotAuthenticated):
	case errors.Is(err, context.Canceled):
	default:
		l.notifier.Notify("Failed to load today's schedule", notify.Error)
	}
}

// replace installs a fetch result unless the session that made it has ended.
// Times confirmed after the fetch was sent win over the fetched ones.
func (l *List) replace(token string, f fetched) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.gate.Token(); !ok || current != token {
		return false
	}

	next := make(map[int64]models.ScheduleEntry, len(f.entries))
	for _, e := range f.entries {
		if c, ok := l.confirmed[e.ID]; ok && c.seq > f.editSeq {
			e.ScheduledTime = c.time
		}
		next[e.ID] = e
	}
	for id, c := range l.confirmed {
		if c.seq <= f.editSeq {
			delete(l.confirmed, id)
		}
	}

	l.entries = next
	if l.pending != nil {
		if _, ok := next[l.pending.TargetEntryID]; !ok {
			l.pending = nil
		}
	}
	return true
}

// Entries returns a copy of the collection ordered by time, then name
func (l *List) Entries() []models.ScheduleEntry {
	l.mu.RLock()
	out := make([]models.ScheduleEntry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ScheduledTime != b.ScheduledTime {
			return a.ScheduledTime.Minutes() < b.ScheduledTime.Minutes()
		}
		if a.SubjectName != b.SubjectName {
			return a.SubjectName < b.SubjectName
		}
		return a.ID < b.ID
	})
	return out
}

// Entry looks up one entry
func (l *List) Entry(id int64) (models.ScheduleEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	return e, ok
}

// Clear drops the collection and any pending edit, e.g. on logout
func (l *List) Clear() {
	l.mu.Lock()
	l.entries = make(map[int64]models.ScheduleEntry)
	l.confirmed = make(map[int64]confirmedTime)
	l.pending = nil
	l.mu.Unlock()
}

// UpdateTime asks the backend to move entry id to newTime and applies the
// change locally only after the backend accepted it. Edits of the same entry
// run one at a time in the order they were issued.
func (l *List) UpdateTime(ctx context.Context, id int64, newTime models.ClockTime) error {
	prev, done := l.enqueueEdit(id)
	defer func() { l.finishEdit(id, done) }()

	select {
	case <-prev:
	case <-ctx.Done():
		// Keep the chain intact for later edits of this entry.
		pending := done
		go func() { <-prev; l.finishEdit(id, pending) }()
		done = nil
		return ctx.Err()
	}

	path := fmt.Sprintf("%s%d/", schedulesPath, id)
	if _, err := l.client.Request(ctx, http.MethodPatch, path, patchBody{Time: newTime}); err != nil {
		l.log.Warn("failed to update schedule time", "entry_id", id, "time", newTime.String(), "error", err)
		return err
	}

	l.mu.Lock()
	l.editSeq++
	l.confirmed[id] = confirmedTime{seq: l.editSeq, time: newTime}
	if e, ok := l.entries[id]; ok {
		e.ScheduledTime = newTime
		l.entries[id] = e
	}
	l.mu.Unlock()
	l.log.Info("updated schedule time", "entry_id", id, "time", newTime.String())
	return nil
}

func (l *List) enqueueEdit(id int64) (prev <-chan struct{}, done chan struct{}) {
	l.editMu.Lock()
	defer l.editMu.Unlock()

	p, ok := l.tails[id]
	if !ok {
		closed := make(chan struct{})
		close(closed)
		p = closed
	}
	done = make(chan struct{})
	l.tails[id] = done
	return p, done
}

func (l *List) finishEdit(id int64, done chan struct{}) {
	if done == nil {
		return
	}
	l.editMu.Lock()
	if l.tails[id] == done {
		delete(l.tails, id)
	}
	l.editMu.Unlock()
	close(done)
}

// BeginEdit opens the time editor for id, replacing any open edit
func (l *List) BeginEdit(id int64) (models.PendingEdit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[id]
	if !ok {
		return models.PendingEdit{}, fmt.Errorf("failed to begin edit of %d: %w", id, ErrUnknownEntry)
	}
	l.pending = &models.PendingEdit{TargetEntryID: id, ProposedTime: e.ScheduledTime}
	return *l.pending, nil
}

// SetProposed changes the time of the open edit
func (l *List) SetProposed(t models.ClockTime) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return ErrNoPendingEdit
	}
	l.pending.ProposedTime = t
	return nil
}

// Pending returns the open edit, if any
func (l *List) Pending() (models.PendingEdit, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.pending == nil {
		return models.PendingEdit{}, false
	}
	return *l.pending, true
}

// CancelEdit discards the open edit
func (l *List) CancelEdit() {
	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
}

// TakePending closes the open edit and returns it
func (l *List) TakePending() (models.PendingEdit, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return models.PendingEdit{}, false
	}
	edit := *l.pending
	l.pending = nil
	return edit, true
}

// ConfirmEdit submits the open edit. The edit is closed whatever the outcome.
func (l *List) ConfirmEdit(ctx context.Context) (models.PendingEdit, error) {
	edit, ok := l.TakePending()
	if !ok {
		return models.PendingEdit{}, ErrNoPendingEdit
	}
	return edit, l.SubmitEdit(ctx, edit)
}

// SubmitEdit applies edit and reports the outcome to the notifier
func (l *List) SubmitEdit(ctx context.Context, edit models.PendingEdit) error {
	err := l.UpdateTime(ctx, edit.TargetEntryID, edit.ProposedTime)
	switch {
	case err == nil:
		l.notifier.Notify("Pickup time updated", notify.Success)
	case errors.Is(err, api.ErrSessionExpired):
		l.notifier.Notify("Session expired: please log in again", notify.Error)
	case errors.Is(err, context.Canceled):
	default:
		l.notifier.Notify("Failed to update pickup time", notify.Error)
	}
	return err
}
