package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_AllLevelsReachTheHandler(t *testing.T) {
	log, buf := newBufferLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "consume race lost", "token_id", "t1")
	log.Info(ctx, "session created", "session_id", "s1")
	log.Warn(ctx, "audit append failed", "attempts", 2)
	log.Error(ctx, "mail delivery failed", "to", "a@example.com")

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=\"consume race lost\"", "token_id=t1",
		"level=INFO", "msg=\"session created\"", "session_id=s1",
		"level=WARN", "msg=\"audit append failed\"", "attempts=2",
		"level=ERROR", "msg=\"mail delivery failed\"", "to=a@example.com",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestSlogLogger_WithPinsModuleTag(t *testing.T) {
	log, buf := newBufferLogger(t)

	child := log.With("module", "ratelimit")
	child.Info(context.Background(), "lockout extended", "scope", "email")

	out := buf.String()
	for _, want := range []string{"module=ratelimit", "scope=email", "msg=\"lockout extended\""} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(out, "module=ratelimit") && strings.Count(out, "\n") != 1 {
		t.Fatalf("expected a single record, got:\n%s", out)
	}

	// the parent stays untagged
	buf.Reset()
	log.Info(context.Background(), "plain")
	if strings.Contains(buf.String(), "module=") {
		t.Fatalf("parent logger picked up child attributes:\n%s", buf.String())
	}
}
