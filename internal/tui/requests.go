package tui

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// requestKind groups in-flight requests so a newer one can supersede older ones
type requestKind int

const (
	kindInit requestKind = iota
	kindLogin
	kindFetch
	kindUpdate
	kindLogout
)

type request struct {
	kind   requestKind
	cancel context.CancelFunc
}

// Requests tracks in-flight background work by id. A result whose id is no
// longer tracked is stale and must be discarded.
type Requests struct {
	mu     sync.Mutex
	active map[string]request
	closed bool
}

// NewRequests creates an empty tracker
func NewRequests() *Requests {
	return &Requests{active: make(map[string]request)}
}

// Begin registers a request and returns its id and context. Starting a fetch
// cancels any fetch still running.
func (r *Requests) Begin(parent context.Context, kind requestKind) (string, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.New().String()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		cancel()
		return id, ctx
	}
	if kind == kindFetch {
		for other, req := range r.active {
			if req.kind == kindFetch {
				req.cancel()
				delete(r.active, other)
			}
		}
	}
	r.active[id] = request{kind: kind, cancel: cancel}
	return id, ctx
}

// Finish releases the request and reports whether its result is still wanted
func (r *Requests) Finish(id string) bool {
	r.mu.Lock()
	req, ok := r.active[id]
	delete(r.active, id)
	r.mu.Unlock()

	if ok {
		req.cancel()
	}
	return ok
}

// CancelAll cancels every active request
func (r *Requests) CancelAll() {
	r.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(r.active))
	for id, req := range r.active {
		cancels = append(cancels, req.cancel)
		delete(r.active, id)
	}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// Close cancels everything and refuses new work
func (r *Requests) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.CancelAll()
}

// Pending reports how many requests of kind are in flight
func (r *Requests) Pending(kind requestKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.active {
		if req.kind == kind {
			n++
		}
	}
	return n
}
