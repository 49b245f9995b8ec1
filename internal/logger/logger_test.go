package logger

import (
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTruncateForLog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		limit int
		want  string
	}{
		{name: "short", input: "hello", limit: 10, want: "hello"},
		{name: "trimmed", input: "  hello  ", limit: 10, want: "hello"},
		{name: "truncated", input: "abcdefgh", limit: 3, want: "abc..."},
		{name: "multibyte", input: "привет", limit: 2, want: "пр..."},
		{name: "zero limit", input: "abc", limit: 0, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TruncateForLog(tt.input, tt.limit); got != tt.want {
				t.Fatalf("TruncateForLog(%q, %d) = %q, want %q", tt.input, tt.limit, got, tt.want)
			}
		})
	}
}

func TestWithJobAddsField(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	id := uuid.New()

	WithJob(zap.New(core), id).Info("hello")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()[FieldJobID]; got != id.String() {
		t.Fatalf("unexpected job id field %v", got)
	}
}

func TestWithJobNilLogger(t *testing.T) {
	WithJob(nil, uuid.New()).Info("does not panic")
}

func TestNewBuildsLogger(t *testing.T) {
	for _, json := range []bool{false, true} {
		l, err := New(json, true)
		if err != nil {
			t.Fatalf("New(%v, true) returned error: %v", json, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Fatalf("expected debug level to be enabled")
		}
	}
}
