package logx

import (
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" info ", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in, zerolog.InfoLevel); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRenderLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"2026-01-02T03:04:05.000Z","caller":"x.go:1",` +
		`"message":"catalog fetch failed","err":"http 502"}`
	got := renderLine([]byte(line))
	if !strings.HasPrefix(got, "[WARN] catalog fetch failed") {
		t.Fatalf("rendered = %q", got)
	}
	if !strings.Contains(got, "err=http 502") {
		t.Fatalf("missing field: %q", got)
	}
	if strings.Contains(got, "caller") || strings.Contains(got, "2026-01-02") {
		t.Fatalf("noise fields leaked: %q", got)
	}

	// Non-JSON input falls back to the raw line.
	if got := renderLine([]byte("plain text\n")); got != "plain text" {
		t.Fatalf("raw fallback = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("short", 100); got != "short" {
		t.Fatalf("truncate short = %q", got)
	}
	long := strings.Repeat("a", 50)
	got := truncate(long, 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncate long = %q (len %d)", got, len(got))
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var zero Logger
	zero.Info("must not panic", String("k", "v"))
	Nop().Error("also fine", Err(nil))
	if zero.IsZero() != true {
		t.Fatal("zero logger should report IsZero")
	}
	if Nop().IsZero() {
		t.Fatal("nop logger is initialized, not zero")
	}
}

func TestLoggerWithAccumulatesFields(t *testing.T) {
	t.Parallel()
	base := Nop().With(String("a", "1"))
	child := base.With(String("b", "2"))
	if len(child.fields) != 2 {
		t.Fatalf("child fields = %d, want 2", len(child.fields))
	}
	// The parent is unchanged.
	if len(base.fields) != 1 {
		t.Fatalf("base fields = %d, want 1", len(base.fields))
	}
}
