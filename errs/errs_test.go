package errs

import (
	"errors"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesCodeAndFields(t *testing.T) {
	err := New(
		"bus/publish",
		CodeHandler,
		WithMessage("handler exhausted retries"),
		WithField("subscription", "sub-123"),
		WithField("attempts", "3"),
		WithCause(errors.New("connection refused")),
	)

	out := err.Error()
	if !strings.Contains(out, "op=bus/publish") {
		t.Fatalf("expected op marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=handler_failed") {
		t.Fatalf("expected code in error string: %s", out)
	}
	expectedFields := "fields=attempts=\"3\",subscription=\"sub-123\""
	if !strings.Contains(out, expectedFields) {
		t.Fatalf("expected fields %q in error string: %s", expectedFields, out)
	}
	if !strings.Contains(out, "cause=\"connection refused\"") {
		t.Fatalf("expected cause in error string: %s", out)
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := New("telemetry/persist", CodePersistence, WithCause(cause))

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match the cause")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(New("bus/subscribe", CodeInvalid)); got != CodeInvalid {
		t.Fatalf("expected %q, got %q", CodeInvalid, got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Fatalf("expected empty code for plain error, got %q", got)
	}
	if got := CodeOf(nil); got != "" {
		t.Fatalf("expected empty code for nil error, got %q", got)
	}
}
