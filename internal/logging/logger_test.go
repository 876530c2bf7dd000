package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestLoggerLevelsAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("warn")
	defer SetLevel("info")

	log := NewLogger("Pipeline")
	log.Info("hidden message")
	log.Warn("span dropped", "span", 2)

	out := buf.String()
	if strings.Contains(out, "hidden message") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, "span dropped") || !strings.Contains(out, "span=2") {
		t.Errorf("warn record missing: %q", out)
	}
	if !strings.Contains(out, "component=Pipeline") {
		t.Errorf("component attribute missing: %q", out)
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel("debug")
	defer SetLevel("info")

	NewLogger("Capture").With("session", "abc").Debug("grabbed")

	if !strings.Contains(buf.String(), "session=abc") {
		t.Errorf("With field missing: %q", buf.String())
	}
}
