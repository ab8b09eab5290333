package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger
	Logger = New(&buf)
	defer func() { Logger = prev }()

	l := WithComponent("engine")
	l.Info().Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["component"] != "engine" {
		t.Errorf("component = %v, want engine", entry["component"])
	}
	if entry["message"] != "hello" {
		t.Errorf("message = %v, want hello", entry["message"])
	}
}

func TestWithSubject(t *testing.T) {
	var buf bytes.Buffer
	l := WithSubject(New(&buf), "user-1", "pet-1")
	l.Warn().Msg("check")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if entry["user_id"] != "user-1" || entry["pet_id"] != "pet-1" {
		t.Errorf("entry = %v, want user_id and pet_id fields", entry)
	}
}

func TestInitLevel(t *testing.T) {
	prev := Logger
	defer func() {
		Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}()

	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{level: "debug", want: zerolog.DebugLevel},
		{level: "warn", want: zerolog.WarnLevel},
		{level: "bogus", want: zerolog.InfoLevel},
		{level: "", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			Init(Options{Level: tt.level, File: filepath.Join(t.TempDir(), "pawwatch.log")})
			if got := zerolog.GlobalLevel(); got != tt.want {
				t.Errorf("global level = %s, want %s", got, tt.want)
			}
		})
	}
}
