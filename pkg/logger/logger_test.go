package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wonny/renewcast/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *config.Config
		wantLevel zerolog.Level
	}{
		{"debug level", &config.Config{Env: "development", LogLevel: "debug", LogFormat: "json"}, zerolog.DebugLevel},
		{"info level", &config.Config{Env: "production", LogLevel: "info", LogFormat: "json"}, zerolog.InfoLevel},
		{"warn level", &config.Config{Env: "staging", LogLevel: "warn", LogFormat: "console"}, zerolog.WarnLevel},
		{"error level", &config.Config{Env: "production", LogLevel: "error", LogFormat: "json"}, zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if New(tt.cfg) == nil {
				t.Fatal("Expected logger to be created")
			}

			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("Expected global level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLogLevel(tt.input); got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to parse log output: %v", err)
	}
	return entry
}

func TestNewWithWriterCarriesServiceFields(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "development")
	log.Info("pipeline started")

	entry := decode(t, &buf)
	if entry["service"] != "renewcast" {
		t.Errorf("Expected service renewcast, got %v", entry["service"])
	}
	if entry["env"] != "development" {
		t.Errorf("Expected env development, got %v", entry["env"])
	}
	if entry["message"] != "pipeline started" {
		t.Errorf("Expected message 'pipeline started', got %v", entry["message"])
	}
}

func TestWithFieldsAndComponent(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var buf bytes.Buffer
	log := NewWithWriter(&buf, "test").
		WithComponent("pipeline.runner").
		WithFields(map[string]interface{}{
			"site_id":         42,
			"generation_type": "wind",
		})
	log.Warn("retrying")

	entry := decode(t, &buf)
	if entry["component"] != "pipeline.runner" {
		t.Errorf("Expected component pipeline.runner, got %v", entry["component"])
	}
	if entry["site_id"] != float64(42) {
		t.Errorf("Expected site_id 42, got %v", entry["site_id"])
	}
	if entry["generation_type"] != "wind" {
		t.Errorf("Expected generation_type wind, got %v", entry["generation_type"])
	}
	if entry["level"] != "warn" {
		t.Errorf("Expected level warn, got %v", entry["level"])
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "test")

	log.WithError(errors.New("provider unreachable")).Error("ingestion failed")

	entry := decode(t, &buf)
	if entry["error"] != "provider unreachable" {
		t.Errorf("Expected error field, got %v", entry["error"])
	}
}

func TestNopDiscards(t *testing.T) {
	// must not panic or write anywhere
	Nop().WithField("k", "v").Info("ignored")
}
