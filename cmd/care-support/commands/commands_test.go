package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/aquarius1905/care-support/internal/devserver"
	"github.com/aquarius1905/care-support/pkg/models"
)

type env struct {
	backend *devserver.Server
	apiURL  string
	dir     string
}

func setup(t *testing.T) env {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	for _, key := range []string{
		"CARE_SUPPORT_API_BASE_URL",
		"CARE_SUPPORT_STORAGE_DRIVER",
		"CARE_SUPPORT_STORAGE_PATH",
		"CARE_SUPPORT_LOG_FILE",
		"CARE_SUPPORT_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}

	backend := devserver.New(
		devserver.WithBcryptCost(bcrypt.MinCost),
		devserver.WithLocation(time.Local),
		devserver.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err := backend.Seed(time.Now(), "staff", "secret"); err != nil {
		t.Fatalf("Seed() error: %v", err)
	}
	srv := httptest.NewServer(backend.Handler())
	t.Cleanup(srv.Close)

	return env{backend: backend, apiURL: srv.URL + "/api", dir: filepath.Join(home, "care-support")}
}

func (e env) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--api-url", e.apiURL))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusWithoutSession(t *testing.T) {
	e := setup(t)

	out, err := e.run(t, "", "status")
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if !strings.Contains(out, "Session: unauthenticated") {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.Contains(out, e.apiURL) {
		t.Fatalf("expected api url in %q", out)
	}
}

func TestTodayRequiresLogin(t *testing.T) {
	e := setup(t)

	_, err := e.run(t, "", "today")
	if err == nil || !strings.Contains(err.Error(), "not logged in") {
		t.Fatalf("expected not logged in error, got %v", err)
	}
}

func TestLoginRejected(t *testing.T) {
	e := setup(t)

	_, err := e.run(t, "", "login", "-u", "staff", "-p", "wrong")
	if err == nil || !strings.Contains(err.Error(), "invalid credentials") {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(e.dir, "token.json")); statErr == nil {
		t.Fatal("expected no token stored after a rejected login")
	}
}

func TestLoginRequiresFields(t *testing.T) {
	e := setup(t)

	_, err := e.run(t, "", "login", "-u", "staff")
	if err == nil || !strings.Contains(err.Error(), "username and password are required") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	e := setup(t)

	out, err := e.run(t, "secret\n", "login", "-u", "staff")
	if err != nil {
		t.Fatalf("login error: %v", err)
	}
	if !strings.Contains(out, "Logged in as staff") {
		t.Fatalf("unexpected login output %q", out)
	}

	out, err = e.run(t, "", "status")
	if err != nil {
		t.Fatalf("status error: %v", err)
	}
	if !strings.Contains(out, "Session: authenticated") {
		t.Fatalf("expected authenticated, got %q", out)
	}

	out, err = e.run(t, "", "today")
	if err != nil {
		t.Fatalf("today error: %v", err)
	}
	if !strings.Contains(out, "08:30") || !strings.Contains(out, "Sato Hanako") {
		t.Fatalf("expected seeded pickups in %q", out)
	}

	var id int64
	for i := int64(1); i <= 4; i++ {
		if sc, ok := e.backend.Schedule(i); ok && sc.UserName == "Sato Hanako" {
			id = sc.ID
		}
	}
	out, err = e.run(t, "", "set-time", strconv.FormatInt(id, 10), "9:15")
	if err != nil {
		t.Fatalf("set-time error: %v", err)
	}
	if !strings.Contains(out, "08:30 -> 09:15") {
		t.Fatalf("unexpected set-time output %q", out)
	}
	sc, _ := e.backend.Schedule(id)
	if models.ClockTimeOf(sc.ScheduledAt).String() != "09:15" {
		t.Fatalf("expected backend at 09:15, got %v", sc.ScheduledAt)
	}

	if _, err := e.run(t, "", "set-time", "999", "10:00"); err == nil {
		t.Fatal("expected error for an entry not scheduled today")
	}
	if _, err := e.run(t, "", "set-time", strconv.FormatInt(id, 10), "25:00"); err == nil {
		t.Fatal("expected error for an invalid time")
	}

	out, err = e.run(t, "", "logout")
	if err != nil {
		t.Fatalf("logout error: %v", err)
	}
	if !strings.Contains(out, "Logged out") {
		t.Fatalf("unexpected logout output %q", out)
	}

	out, _ = e.run(t, "", "status")
	if !strings.Contains(out, "Session: unauthenticated") {
		t.Fatalf("expected unauthenticated after logout, got %q", out)
	}
}

func TestRevokedTokenClearsStoredSession(t *testing.T) {
	e := setup(t)
	if _, err := e.run(t, "", "login", "-u", "staff", "-p", "secret"); err != nil {
		t.Fatalf("login error: %v", err)
	}

	e.backend.RevokeTokens()
	if _, err := e.run(t, "", "today"); err == nil || !strings.Contains(err.Error(), "session expired") {
		t.Fatalf("expected session expired, got %v", err)
	}

	out, _ := e.run(t, "", "status")
	if !strings.Contains(out, "Session: unauthenticated") {
		t.Fatalf("expected stored token removed, got %q", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	e := setup(t)
	t.Setenv("CARE_SUPPORT_STORAGE_DRIVER", "redis")

	if _, err := e.run(t, "", "status"); err == nil || !strings.Contains(err.Error(), "storage.driver") {
		t.Fatalf("expected config error, got %v", err)
	}
}
