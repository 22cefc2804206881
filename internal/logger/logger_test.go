package logger

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		format string
	}{
		{"debug level", "debug", "console"},
		{"info level", "info", "console"},
		{"warn level", "warn", "console"},
		{"error level", "error", "console"},
		{"json format", "info", "json"},
		{"uppercase level", "DEBUG", "console"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Setup(tt.level, tt.format)
			if Log == nil {
				t.Error("expected Log to be initialized")
			}
		})
	}
}

func TestLoggerLevelConstants(t *testing.T) {
	tests := []struct {
		level  string
		expect zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"unknown", zerolog.InfoLevel}, // default case
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			Setup(tt.level, "console")
			got := zerolog.GlobalLevel()
			if got != tt.expect {
				t.Errorf("level %s: expected %v, got %v", tt.level, tt.expect, got)
			}
		})
	}
}

func TestLoggerFieldHandling(t *testing.T) {
	Setup("debug", "console")

	// None of these may panic, whatever the argument shape.
	Log.Info("multi-field", "layer", "dense1", "outputs", 2, "duration_ms", 3.14, "final", true)
	Log.Debug("no fields")
	Log.Warn("odd args", "key1", "value1", "orphan_key")
	Log.Error("non-string key", 123, "value")
	Log.Info("nil value", "key", nil)
}

func TestWithComponent(t *testing.T) {
	Setup("info", "console")

	child := Log.WithComponent("engine")
	if child == nil {
		t.Fatal("WithComponent() returned nil")
	}
	if child == Log {
		t.Error("WithComponent() returned the parent logger")
	}
	child.Info("component-tagged entry", "key", "value")
}
