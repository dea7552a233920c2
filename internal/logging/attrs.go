package logging

import (
	"log/slog"
	"time"
)

type Attr = slog.Attr

func Any(key string, value any) Attr { return slog.Any(key, value) }

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// ContentID tags a line with the content item it concerns.
func ContentID(id string) Attr { return slog.String(FieldContentID, id) }

// JobID tags a line with the stage job it concerns.
func JobID(id int64) Attr { return slog.Int64(FieldJobID, id) }

// Stage tags a line with a pipeline stage name.
func Stage(name string) Attr { return slog.String(FieldStage, name) }

func Alert(value string) Attr { return slog.String(FieldAlert, value) }

func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attributes to the variadic form accepted by slog.Logger methods.
func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(noopHandler{})
}

// NewComponentLogger scopes logger to one component; nil yields a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// ErrorWithContext logs an error, filling event_type and error_hint when the caller omitted them.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...Attr) {
	if logger == nil {
		return
	}
	var haveEvent, haveHint bool
	for _, a := range attrs {
		switch a.Key {
		case FieldEventType:
			haveEvent = true
		case FieldErrorHint:
			haveHint = true
		}
	}
	if !haveEvent {
		attrs = append(attrs, String(FieldEventType, eventType))
	}
	if !haveHint {
		attrs = append(attrs, String(FieldErrorHint, "inspect the item with `postflow show`"))
	}
	logger.Error(msg, Args(attrs...)...)
}
