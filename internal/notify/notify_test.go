package notify

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestMultiFansOut(t *testing.T) {
	var got []string
	record := Func(func(msg string, sev Severity) {
		got = append(got, sev.String()+":"+msg)
	})

	Multi{record, nil, record}.Notify("saved", Success)

	if len(got) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(got))
	}
	if got[0] != "success:saved" {
		t.Errorf("unexpected delivery %q", got[0])
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := Log{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	n.Notify("failed to update pickup time", Error)

	out := buf.String()
	if !strings.Contains(out, "level=WARN") {
		t.Errorf("expected warn level, got %s", out)
	}
	if !strings.Contains(out, "severity=error") {
		t.Errorf("expected severity attribute, got %s", out)
	}
}

func TestSeverityString(t *testing.T) {
	if Info.String() != "info" || Success.String() != "success" || Error.String() != "error" {
		t.Error("unexpected severity names")
	}
}
