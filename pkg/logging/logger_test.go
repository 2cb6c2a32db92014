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
		t.Errorf("default level = %s, want info", cfg.Level)
	}
	if cfg.Pretty {
		t.Error("default config should write JSON")
	}
	if cfg.Output == nil {
		t.Error("default output should be set")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  zerolog.Level
	}{
		{LevelDebug, zerolog.DebugLevel},
		{LevelInfo, zerolog.InfoLevel},
		{LevelWarn, zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" ERROR ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger_TagsComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelInfo, Output: buf})

	logger := NewLogger(ComponentCache)
	logger.Info().Str("url", "http://ps.local/ps/service").Msg("stored")

	out := buf.String()
	if !strings.Contains(out, `"component":"ps-cache"`) {
		t.Errorf("output missing component field: %q", out)
	}
	if !strings.Contains(out, "stored") {
		t.Errorf("output missing message: %q", out)
	}
}

func TestSetup_FiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	Setup(Config{Level: LevelWarn, Output: buf})
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger := NewLogger(ComponentClient)
	logger.Debug().Msg("cache lookup")
	logger.Info().Msg("entry stored")
	logger.Warn().Msg("revalidation failed")

	out := buf.String()
	if strings.Contains(out, "cache lookup") || strings.Contains(out, "entry stored") {
		t.Errorf("messages below warn should be dropped: %q", out)
	}
	if !strings.Contains(out, "revalidation failed") {
		t.Errorf("warn message missing: %q", out)
	}
}

func TestSetup_Pretty(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := Setup(Config{Level: LevelInfo, Pretty: true, Output: buf})

	logger.Info().Msg("proxy started")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("pretty output should not be JSON: %q", out)
	}
	if !strings.Contains(out, "proxy started") {
		t.Errorf("pretty output missing message: %q", out)
	}
}
