package logging

import "testing"

func TestNewLoggerLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "INFO", "warn", "error"} {
		l, err := NewLogger(lvl)
		if err != nil {
			t.Fatalf("level %s: unexpected error: %v", lvl, err)
		}
		_ = l.Sync()
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
