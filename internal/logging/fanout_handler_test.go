package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTeeHandlerRespectsPerHandlerLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	debugLevel := new(slog.LevelVar)
	debugLevel.Set(slog.LevelDebug)
	warnLevel := new(slog.LevelVar)
	warnLevel.Set(slog.LevelWarn)

	logger := slog.New(newTeeHandler(
		newPrettyHandler(&debugBuf, debugLevel, false, false),
		newJSONHandler(&warnBuf, warnLevel, false),
	)).With(slog.String(FieldStage, "publishing"))

	logger.Info("claimed job")
	logger.Warn("publish slow")

	if !strings.Contains(debugBuf.String(), "claimed job") || !strings.Contains(debugBuf.String(), "publish slow") {
		t.Fatalf("debug handler missing records: %q", debugBuf.String())
	}
	if strings.Contains(warnBuf.String(), "claimed job") {
		t.Fatalf("warn handler received info record: %q", warnBuf.String())
	}
	if !strings.Contains(warnBuf.String(), `"stage":"publishing"`) {
		t.Fatalf("warn handler missing attrs: %q", warnBuf.String())
	}
}

func TestTeeHandlerCollapses(t *testing.T) {
	if _, ok := newTeeHandler().(noopHandler); !ok {
		t.Fatal("expected noop handler for empty tee")
	}
	single := newJSONHandler(&bytes.Buffer{}, new(slog.LevelVar), false)
	if newTeeHandler(nil, single) != single {
		t.Fatal("expected single handler to be returned directly")
	}
}
