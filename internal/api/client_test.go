package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aquarius1905/care-support/internal/devserver"
	"github.com/aquarius1905/care-support/internal/session"
	"github.com/aquarius1905/care-support/internal/tokenstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newSession(t *testing.T, token string) *session.Store {
	t.Helper()
	s := session.New(tokenstore.NewMemoryStore(), discardLogger())
	s.Initialize(context.Background())
	if token != "" {
		if err := s.Login(context.Background(), token); err != nil {
			t.Fatalf("Login() error: %v", err)
		}
	}
	return s
}

func newBackend(t *testing.T) (*devserver.Server, *httptest.Server) {
	t.Helper()
	backend := devserver.New(
		devserver.WithBcryptCost(bcrypt.MinCost),
		devserver.WithLocation(time.UTC),
		devserver.WithLogger(discardLogger()),
	)
	if err := backend.AddUser("staff", "secret"); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)
	return backend, srv
}

func TestRequestWithoutTokenSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newSession(t, ""), WithLogger(discardLogger()))
	_, err := c.Request(context.Background(), http.MethodGet, "/transport-schedules/?date=2024-01-01", nil)
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no network I/O, got %d requests", hits.Load())
	}
}

func TestRequestAttachesHeaders(t *testing.T) {
	var got http.Header
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", newSession(t, "tok-1"), WithLogger(discardLogger()))
	raw, err := c.Request(context.Background(), http.MethodPatch, "/transport-schedules/1/", map[string]string{"time": "09:15"})
	if err != nil {
		t.Fatalf("Patch() error: %v", err)
	}
	if string(raw) != `{"id":1}` {
		t.Fatalf("unexpected result %s", raw)
	}
	if got.Get("Authorization") != "Bearer tok-1" {
		t.Errorf("expected bearer header, got %q", got.Get("Authorization"))
	}
	if got.Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type, got %q", got.Get("Content-Type"))
	}
	if got.Get("X-Request-Id") == "" {
		t.Errorf("expected X-Request-Id header")
	}
	if gotBody["time"] != "09:15" {
		t.Errorf("expected body time 09:15, got %v", gotBody)
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	backend, srv := newBackend(t)
	sess := newSession(t, backend.IssueToken("staff"))
	c := NewClient(srv.URL+"/api", sess, WithLogger(discardLogger()))

	if _, err := c.Request(context.Background(), http.MethodGet, "/transport-schedules/?date=2024-01-01", nil); err != nil {
		t.Fatalf("Get() with valid token error: %v", err)
	}

	backend.RevokeTokens()
	_, err := c.Request(context.Background(), http.MethodGet, "/transport-schedules/?date=2024-01-01", nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if sess.IsAuthenticated() {
		t.Fatal("expected session cleared after 401")
	}
	if IsRecoverable(err) {
		t.Fatal("session expiry must not be recoverable")
	}

	_, err = c.Request(context.Background(), http.MethodGet, "/transport-schedules/?date=2024-01-01", nil)
	if !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated on the next call, got %v", err)
	}
}

func TestUnauthorizedFromAnyMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodPost, http.MethodDelete} {
		sess := newSession(t, "tok")
		c := NewClient(srv.URL, sess, WithLogger(discardLogger()))
		_, err := c.Request(context.Background(), method, "/anything/", nil)
		if !errors.Is(err, ErrSessionExpired) {
			t.Errorf("%s: expected ErrSessionExpired, got %v", method, err)
		}
		if sess.IsAuthenticated() {
			t.Errorf("%s: expected session cleared", method)
		}
	}
}

func TestNoContentReturnsNil(t *testing.T) {
	backend, srv := newBackend(t)
	backend.AddSchedule("A", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC))
	c := NewClient(srv.URL+"/api", newSession(t, backend.IssueToken("staff")), WithLogger(discardLogger()))

	raw, err := c.Request(context.Background(), http.MethodDelete, "/transport-schedules/1/", nil)
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if raw != nil {
		t.Fatalf("expected nil result for 204, got %s", raw)
	}
}

func TestRequestFailedCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail":"time is invalid"}`))
	}))
	defer srv.Close()

	sess := newSession(t, "tok")
	c := NewClient(srv.URL, sess, WithLogger(discardLogger()))
	_, err := c.Request(context.Background(), http.MethodPatch, "/transport-schedules/1/", map[string]string{"time": "x"})

	var rf *RequestFailedError
	if !errors.As(err, &rf) {
		t.Fatalf("expected *RequestFailedError, got %v", err)
	}
	if rf.Status != http.StatusBadRequest || rf.Detail != "time is invalid" {
		t.Fatalf("unexpected error %+v", rf)
	}
	if !sess.IsAuthenticated() {
		t.Fatal("application failures must not touch the session")
	}
	if !IsRecoverable(err) {
		t.Fatal("expected request failure to be recoverable")
	}
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	sess := newSession(t, "tok")
	c := NewClient(url, sess, WithLogger(discardLogger()))
	_, err := c.Request(context.Background(), http.MethodGet, "/transport-schedules/", nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	var ne *NetworkError
	if !errors.As(err, &ne) || ne.Method != http.MethodGet {
		t.Fatalf("expected *NetworkError for GET, got %v", err)
	}
	if !sess.IsAuthenticated() {
		t.Fatal("network failures must not touch the session")
	}
}

func TestRequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, newSession(t, "tok"), WithTimeout(50*time.Millisecond), WithLogger(discardLogger()))
	_, err := c.Request(context.Background(), http.MethodGet, "/slow/", nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected ErrNetwork on timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded cause, got %v", err)
	}
}

func TestInvalidJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, newSession(t, "tok"), WithLogger(discardLogger()))
	if _, err := c.Request(context.Background(), http.MethodGet, "/", nil); err == nil {
		t.Fatal("expected parse error for non-JSON body")
	}
}

func TestLogin(t *testing.T) {
	_, srv := newBackend(t)
	sess := newSession(t, "")
	c := NewClient(srv.URL+"/api", sess, WithLogger(discardLogger()))

	token, err := c.Login(context.Background(), "staff", "secret")
	if err != nil {
		t.Fatalf("Login() error: %v", err)
	}
	if token == "" {
		t.Fatal("expected token")
	}
	if sess.IsAuthenticated() {
		t.Fatal("client Login must not store the token itself")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	_, srv := newBackend(t)
	sess := newSession(t, "")
	c := NewClient(srv.URL+"/api", sess, WithLogger(discardLogger()))

	_, err := c.Login(context.Background(), "staff", "nope")
	var rf *RequestFailedError
	if !errors.As(err, &rf) {
		t.Fatalf("expected *RequestFailedError, got %v", err)
	}
	if rf.Detail != "invalid credentials" {
		t.Fatalf("expected detail 'invalid credentials', got %q", rf.Detail)
	}
	if sess.IsAuthenticated() {
		t.Fatal("session must remain unauthenticated")
	}
}

func TestRequestFailedErrorMessage(t *testing.T) {
	e := newRequestFailed(500, []byte("boom"))
	if e.Error() != "request failed with status 500: boom" {
		t.Errorf("unexpected message %q", e.Error())
	}
	e = newRequestFailed(502, nil)
	if e.Error() != "request failed with status 502" {
		t.Errorf("unexpected message %q", e.Error())
	}
}
