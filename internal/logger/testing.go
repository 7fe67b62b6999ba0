package logger

import (
	"io"
	"log/slog"
)

// NewDiscard returns a Logger that drops everything. Used by tests and as
// the default when a component is constructed without a logger.
func NewDiscard() Logger {
	return &moduleLogger{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		level:  slog.LevelError + 1,
	}
}

// NewBuffer returns a Logger writing JSON records at debug level and above
// to w, so tests can assert on emitted fields.
func NewBuffer(w io.Writer) Logger {
	return &moduleLogger{
		logger: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: traceLevelValue})),
		level:  traceLevelValue,
	}
}

// OrDiscard returns l, or a discard logger when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return NewDiscard()
	}
	return l
}
