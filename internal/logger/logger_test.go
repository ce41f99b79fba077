package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewDefaultLoggerCreatesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "test.log")

	l, err := NewDefaultLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: 1024,
		MaxBackups:  3,
		Level:       LevelDebug,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("Log file was not created")
	}
}

func TestLoggerWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewDefaultLogger(&Config{Level: LevelInfo, Output: &buf})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Close()

	l.Info("hello", String("page", "1"))
	if !strings.Contains(buf.String(), "[INFO] hello page=1") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewDefaultLogger(&Config{Level: LevelDebug, Output: &buf})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	l.Debug("debug message", String("key", "value"))
	l.Info("info message", Int("count", 42))
	l.Warn("warn message", Bool("flag", true))
	l.Error("error message", errors.New("test error"), Float64("rate", 3.14))
	l.Close()

	out := buf.String()
	for _, want := range []string{
		"[DEBUG] debug message key=value",
		"[INFO] info message count=42",
		"[WARN] warn message flag=true",
		`[ERROR] error message error="test error" rate=3.14`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewDefaultLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")

	out := buf.String()
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Errorf("messages below WARN were written: %q", out)
	}
	if !strings.Contains(out, "warn message") {
		t.Error("WARN message should be logged")
	}

	l.SetLevel(LevelDebug)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("SetLevel did not lower the threshold")
	}
}

func TestWithAddsFields(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewDefaultLogger(&Config{Level: LevelDebug, Output: &buf})

	child := l.With(String("run", "r1")).With(Int("page", 2))
	child.Info("composed", Duration("took", 1500*time.Millisecond))

	if !strings.Contains(buf.String(), "composed run=r1 page=2 took=1.5s") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}

func TestQuotedValues(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewDefaultLogger(&Config{Level: LevelInfo, Output: &buf})

	l.Info("parsed", String("path", "my file.pdf"))
	if !strings.Contains(buf.String(), `path="my file.pdf"`) {
		t.Errorf("value with spaces should be quoted: %q", buf.String())
	}
}

func TestLogRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	l, err := NewDefaultLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: 100,
		MaxBackups:  2,
		Level:       LevelDebug,
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	for i := 0; i < 20; i++ {
		l.Info("this message is long enough to trigger rotation", Int("i", i))
	}
	l.Close()

	if _, err := os.Stat(logPath + ".1"); os.IsNotExist(err) {
		t.Error("Backup file .1 should exist after rotation")
	}
	if _, err := os.Stat(logPath + ".3"); !os.IsNotExist(err) {
		t.Error("Backup file .3 should not exist with MaxBackups=2")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGlobalLogger(t *testing.T) {
	defer Close()

	// 未初始化时为 no-op
	Info("ignored")

	if err := Init(&Config{LogFilePath: filepath.Join(t.TempDir(), "global.log"), Level: LevelInfo}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if _, ok := GetLogger().(*DefaultLogger); !ok {
		t.Error("GetLogger should return the initialised logger")
	}

	With(String("k", "v")).Info("child message")
	Warn("warn message")
	Error("error message", errors.New("boom"))
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewDefaultLogger(&Config{Level: LevelInfo, Format: FormatJSON, Output: &buf})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	defer l.Close()

	l.Error("write failed", errors.New("disk full"), String("file", "mono.pdf"), Int("page", 2))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("entry is not JSON: %v (%q)", err, buf.String())
	}
	if entry["level"] != "ERROR" || entry["msg"] != "write failed" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["error"] != "disk full" || entry["file"] != "mono.pdf" || entry["page"] != float64(2) {
		t.Errorf("unexpected fields: %v", entry)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, " json ": FormatJSON} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
