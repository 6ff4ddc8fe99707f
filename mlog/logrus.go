package mlog

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LogrusHandler adapts a *logrus.Logger as a Handler, for operators who want
// JSON-formatted logs shipped off-box rather than the default TextHandler
// lines. Enabled via --log-format json (see cmd/redikit-server).
type LogrusHandler struct {
	l *logrus.Logger
}

// NewJSONLogrusHandler returns a Handler backed by a JSON-formatting logrus
// logger writing to logrus's default output (stderr).
func NewJSONLogrusHandler() *LogrusHandler {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	return &LogrusHandler{l: l}
}

// Handle implements Handler.
func (h *LogrusHandler) Handle(t time.Time, lvl Level, ns []string, descr string, kv map[string]string) error {
	fields := make(logrus.Fields, len(kv)+1)
	for k, v := range kv {
		fields[k] = v
	}
	if len(ns) > 0 {
		fields["ns"] = ns
	}

	entry := h.l.WithFields(fields).WithTime(t)
	switch lvl {
	case LevelFatal:
		entry.Error(descr) // os.Exit is handled by Logger.log, not logrus
	case LevelError:
		entry.Error(descr)
	case LevelWarn:
		entry.Warn(descr)
	case LevelDebug:
		entry.Debug(descr)
	default:
		entry.Info(descr)
	}
	return nil
}
