package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"postflow/internal/config"
	"postflow/internal/logging"
	"postflow/internal/services"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestConsoleHeaderCarriesSubject(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithContentID(context.Background(), "c-42")
	ctx = services.WithStage(ctx, "validation")
	ctx = services.WithPlatform(ctx, "twitter")
	logger = logging.NewComponentLogger(logging.WithContext(ctx, logger), "orchestrator")
	logger.Info("verdict recorded", logging.Int("round", 2))

	content := readFile(t, logPath)
	if !strings.Contains(content, "[orchestrator] c-42 validation/twitter: verdict recorded") {
		t.Fatalf("unexpected header: %q", content)
	}
	if !strings.Contains(content, "    - round: 2") {
		t.Fatalf("expected field bullet, got %q", content)
	}
	if strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
	if strings.Contains(content, "\033[") {
		t.Fatalf("expected no color codes in file output, got %q", content)
	}
}

func TestJSONLoggerFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.ErrorWithContext(logger, "publish failed", "publish_failed",
		logging.String(logging.FieldErrorKind, string(services.KindPermanent)),
		logging.Error(errors.New("http 400")),
	)

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readFile(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["level"] != "error" || entry["msg"] != "publish failed" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry[logging.FieldEventType] != "publish_failed" || entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected enforced context fields: %v", entry)
	}
	if entry[logging.FieldErrorKind] != "permanent" {
		t.Fatalf("unexpected error kind: %v", entry[logging.FieldErrorKind])
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key: %v", entry)
	}
}

func TestDebugSuppressedAtInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("hidden")
	logger.Warn("shown")
	content := readFile(t, logPath)
	if strings.Contains(content, "hidden") || !strings.Contains(content, "WARN") {
		t.Fatalf("unexpected level filtering: %q", content)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewFromConfigWritesJSONCopy(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Logging.Format = "console"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("daemon started", logging.String(logging.FieldEventType, "daemon_start"))

	content := readFile(t, cfg.DaemonLogPath())
	if !strings.Contains(content, `"event_type":"daemon_start"`) {
		t.Fatalf("expected JSON copy in log dir, got %q", content)
	}
}

func TestArchiveAndPrune(t *testing.T) {
	dir := t.TempDir()
	active := filepath.Join(dir, "postflow.log")
	if err := os.WriteFile(active, []byte("previous run\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	archived, err := logging.ArchiveLog(active, now)
	if err != nil {
		t.Fatalf("ArchiveLog: %v", err)
	}
	if filepath.Base(archived) != "postflow-20260301T120000.log" {
		t.Fatalf("unexpected archive name %q", archived)
	}

	old := now.AddDate(0, 0, -45)
	if err := os.Chtimes(archived, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	fresh := filepath.Join(dir, "postflow-20260228T000000.log")
	if err := os.WriteFile(fresh, []byte("x"), 0o644); err != nil {
		t.Fatalf("write fresh: %v", err)
	}
	if err := os.Chtimes(fresh, now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	removed := logging.PruneLogs(logging.NewNop(), dir, "postflow-*.log", active, 30, now)
	if removed != 1 {
		t.Fatalf("removed %d files, want 1", removed)
	}
	if _, err := os.Stat(archived); !os.IsNotExist(err) {
		t.Fatalf("expected old archive removed, stat err=%v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh archive kept: %v", err)
	}
}
