package devserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(
		WithBcryptCost(bcrypt.MinCost),
		WithLocation(time.UTC),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err := s.AddUser("staff", "secret"); err != nil {
		t.Fatalf("AddUser() error: %v", err)
	}
	return s
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestTokenEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/token/", "", map[string]string{"username": "staff", "password": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var ok struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ok); err != nil || ok.Access == "" {
		t.Fatalf("expected access token, got %s", rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/api/token/", "", map[string]string{"username": "staff", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	var fail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fail); err != nil || fail.Detail != "invalid credentials" {
		t.Fatalf("unexpected failure body %s", rec.Body.String())
	}
}

func TestListRequiresToken(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/api/transport-schedules/?date=2024-01-01", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestListFiltersByDate(t *testing.T) {
	s := newTestServer(t)
	s.AddSchedule("A", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC))
	s.AddSchedule("B", time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC))
	token := s.IssueToken("staff")

	rec := do(t, s.Handler(), http.MethodGet, "/api/transport-schedules/?date=2024-01-01", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body struct {
		Results []scheduleJSON `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Results) != 1 || body.Results[0].UserName != "A" {
		t.Fatalf("unexpected results %+v", body.Results)
	}
	if body.Results[0].ScheduledTransportDatetime != "2024-01-01T08:30:00Z" {
		t.Fatalf("unexpected timestamp %q", body.Results[0].ScheduledTransportDatetime)
	}

	rec = do(t, s.Handler(), http.MethodGet, "/api/transport-schedules/?date=bad", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for bad date, got %d", rec.Code)
	}
}

func TestPatchAndDelete(t *testing.T) {
	s := newTestServer(t)
	id := s.AddSchedule("A", time.Date(2024, 1, 1, 8, 30, 0, 0, time.UTC))
	token := s.IssueToken("staff")
	h := s.Handler()

	rec := do(t, h, http.MethodPatch, "/api/transport-schedules/1/", token, map[string]string{"time": "09:15"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	sc, _ := s.Schedule(id)
	if sc.ScheduledAt.Hour() != 9 || sc.ScheduledAt.Minute() != 15 {
		t.Fatalf("expected 09:15, got %v", sc.ScheduledAt)
	}

	rec = do(t, h, http.MethodPatch, "/api/transport-schedules/1/", token, map[string]string{"time": "25:00"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/transport-schedules/1/", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
	rec = do(t, h, http.MethodPatch, "/api/transport-schedules/1/", token, map[string]string{"time": "09:15"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 after delete, got %d", rec.Code)
	}
}

func TestRevokeTokens(t *testing.T) {
	s := newTestServer(t)
	token := s.IssueToken("staff")
	s.RevokeTokens()

	rec := do(t, s.Handler(), http.MethodGet, "/api/transport-schedules/?date=2024-01-01", token, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 after revoke, got %d", rec.Code)
	}
}

func TestSeed(t *testing.T) {
	s := newTestServer(t)
	if err := s.Seed(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "demo", "demo"); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	if _, ok := s.Schedule(1); !ok {
		t.Fatal("expected seeded schedule")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	s := New(WithBcryptCost(bcrypt.MinCost), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	resp, err := http.Get("http://" + l.Addr().String() + "/api/transport-schedules/?date=2024-01-01")
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve() error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
}
