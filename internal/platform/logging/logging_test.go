package logging

import "testing"

func TestNewDefaults(t *testing.T) {
	logger, err := New("authgate", Config{Level: "info", Format: "json"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if !logger.Core().Enabled(0) {
		t.Fatal("expected info level to be enabled")
	}
	if logger.Core().Enabled(-1) {
		t.Fatal("expected debug level to be disabled")
	}
}

func TestNewConsoleFormat(t *testing.T) {
	if _, err := New("authgate", Config{Level: "debug", Format: "console"}); err != nil {
		t.Fatalf("new console logger: %v", err)
	}
}

func TestNewRejectsInvalidInput(t *testing.T) {
	if _, err := New("authgate", Config{Level: "loud", Format: "json"}); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := New("authgate", Config{Level: "info", Format: "xml"}); err == nil {
		t.Fatal("expected invalid format error")
	}
}
