package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}

	if cfg.Pretty != false {
		t.Error("Expected default pretty to be false")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		pretty    bool
		emit      func(l zerolog.Logger)
		wantShown bool
		wantJSON  bool
	}{
		{"info json", "info", false, func(l zerolog.Logger) { l.Info().Msg("cart updated") }, true, true},
		{"debug hidden at info", "info", false, func(l zerolog.Logger) { l.Debug().Msg("cart updated") }, false, true},
		{"debug shown at debug", "debug", false, func(l zerolog.Logger) { l.Debug().Msg("cart updated") }, true, true},
		{"warn hidden at error", "error", false, func(l zerolog.Logger) { l.Warn().Msg("cart updated") }, false, true},
		{"pretty console", "warning", true, func(l zerolog.Logger) { l.Warn().Msg("cart updated") }, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := Setup(Config{
				Level:  ParseLevel(tt.level),
				Pretty: tt.pretty,
				Output: buf,
			})

			tt.emit(logger)

			output := buf.String()
			if got := strings.Contains(output, "cart updated"); got != tt.wantShown {
				t.Errorf("message shown = %v, want %v (output %q)", got, tt.wantShown, output)
			}
			if tt.wantShown && tt.wantJSON && !strings.HasPrefix(output, "{") {
				t.Errorf("Expected JSON output, got %q", output)
			}
			if tt.wantShown && !tt.wantJSON && strings.HasPrefix(output, "{") {
				t.Errorf("Expected console output, got %q", output)
			}
		})
	}
}

func TestLogLevel_Zerolog(t *testing.T) {
	tests := []struct {
		input    LogLevel
		expected zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{LevelError, zerolog.ErrorLevel},
		{"WARNING", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"invalid", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := tt.input.Zerolog(); got != tt.expected {
				t.Errorf("LogLevel(%q).Zerolog() = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSetup_ServiceField(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf, Service: "storefront-proxy"})

	logger := NewLogger("cart")
	logger.Info().Msg("cart updated")

	output := buf.String()
	if !strings.Contains(output, `"service":"storefront-proxy"`) {
		t.Errorf("Expected service field, got %q", output)
	}
	if !strings.Contains(output, `"component":"cart"`) {
		t.Errorf("Expected component field, got %q", output)
	}
}

func TestSetup_NilOutput(t *testing.T) {
	defer Setup(DefaultConfig())

	logger := Setup(Config{Level: LevelError})
	logger.Error().Msg("written to stderr")
	if zerolog.GlobalLevel() != zerolog.ErrorLevel {
		t.Errorf("Expected global level error, got %v", zerolog.GlobalLevel())
	}
}

func TestParseLevelFromConfig(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"Error":   LevelError,
		"":        LevelInfo,
		"verbose": LevelInfo,
	}

	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("offline")
	logger.Info().Msg("test message")

	output := buf.String()
	if !strings.Contains(output, "offline") {
		t.Errorf("Expected output to contain 'offline', got %q", output)
	}
	if !strings.Contains(output, "test message") {
		t.Errorf("Expected output to contain 'test message', got %q", output)
	}
}

func TestLogLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{
		Level:  LevelWarn,
		Pretty: false,
		Output: buf,
	})

	logger := NewLogger("test")

	// These should NOT appear (below warn level)
	logger.Debug().Msg("debug message")
	logger.Info().Msg("info message")

	// These SHOULD appear (warn level and above)
	logger.Warn().Msg("warn message")
	logger.Error().Msg("error message")

	output := buf.String()

	if strings.Contains(output, "debug message") {
		t.Error("Debug message should be filtered out at Warn level")
	}
	if strings.Contains(output, "info message") {
		t.Error("Info message should be filtered out at Warn level")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("Warn message should be included at Warn level")
	}
	if !strings.Contains(output, "error message") {
		t.Error("Error message should be included at Warn level")
	}
}
