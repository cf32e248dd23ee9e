package bootstrap

import (
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger is the go-logger root handed to every component. Components derive
// their named loggers from it through GetLogger.
type Logger = glog.BaseLogger

// NewLogger builds a JSON logger writing to out, or stdout when out is nil.
func NewLogger(level string, out io.Writer) *Logger {
	return glog.NewLogger(
		glog.WithLevel(normalizeLevel(level)),
		glog.WithLoggerTypeJSON(),
		glog.WithWriter(out),
	)
}

func normalizeLevel(level string) string {
	switch level = strings.ToLower(strings.TrimSpace(level)); level {
	case "warning":
		return "warn"
	case "":
		return "info"
	default:
		return level
	}
}
