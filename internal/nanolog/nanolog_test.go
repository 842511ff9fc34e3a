package nanolog

import (
	"bytes"
	"strings"
	"testing"
)

func TestTerminalHandlerOutput(t *testing.T) {
	out := new(bytes.Buffer)
	l := New(NewTerminalHandlerWithLevel(out, LevelTrace, false))
	l.Trace("a message", "foo", "bar")
	have := out.String()
	have = strings.SplitN(have, "]", 2)[1]
	want := " a message                foo=bar caller=github.com/gonano/nanod/internal/nanolog/nanolog_test.go:12\n"
	if have != want {
		t.Errorf("\nhave: %q\nwant: %q\n", have, want)
	}
}

func TestTerminalHandlerRespectsLevel(t *testing.T) {
	out := new(bytes.Buffer)
	l := New(NewTerminalHandlerWithLevel(out, LevelCrit, false))
	l.Warn("should not be seen")
	if out.Len() != 0 {
		t.Fatalf("expected no output, got %q", out.String())
	}
}

func TestWithAttrs(t *testing.T) {
	out := new(bytes.Buffer)
	l := New(NewTerminalHandlerWithLevel(out, LevelTrace, false)).With("baz", "bat")
	l.Trace("a message")
	have := out.String()
	if !strings.Contains(have, "baz=bat") {
		t.Fatalf("expected baz=bat in output, got %q", have)
	}
}

func TestJSONHandlerLevelFilter(t *testing.T) {
	out := new(bytes.Buffer)
	l := New(JSONHandlerWithLevel(out, LevelInfo.slog()))
	l.Debug("hidden")
	if out.Len() != 0 {
		t.Fatalf("expected debug line filtered out, got %q", out.String())
	}
	l.Info("shown")
	if out.Len() == 0 {
		t.Fatalf("expected info line to be emitted")
	}
}
