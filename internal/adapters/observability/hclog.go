// Package observability bridges the engine's slog-based logging into hosts
// standardized on hashicorp's hclog.
package observability

import (
	"context"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// HCLogHandler is an slog.Handler that forwards records to an hclog.Logger,
// so an embedding application keeps one log pipeline.
type HCLogHandler struct {
	logger hclog.Logger
	attrs  []slog.Attr
	group  string
}

func NewHCLogHandler(logger hclog.Logger) *HCLogHandler {
	return &HCLogHandler{logger: logger}
}

// NewHCLogger builds an *slog.Logger backed by an hclog.Logger, the form
// the engine's constructors accept.
func NewHCLogger(logger hclog.Logger) *slog.Logger {
	return slog.New(NewHCLogHandler(logger))
}

func (h *HCLogHandler) Enabled(_ context.Context, level slog.Level) bool {
	switch {
	case level < slog.LevelInfo:
		return h.logger.IsDebug()
	case level < slog.LevelWarn:
		return h.logger.IsInfo()
	case level < slog.LevelError:
		return h.logger.IsWarn()
	default:
		return h.logger.IsError()
	}
}

func (h *HCLogHandler) Handle(_ context.Context, record slog.Record) error {
	args := make([]interface{}, 0, (len(h.attrs)+record.NumAttrs())*2)
	for _, attr := range h.attrs {
		args = append(args, h.key(attr.Key), attr.Value.Any())
	}
	record.Attrs(func(attr slog.Attr) bool {
		args = append(args, h.key(attr.Key), attr.Value.Any())
		return true
	})

	switch {
	case record.Level < slog.LevelInfo:
		h.logger.Debug(record.Message, args...)
	case record.Level < slog.LevelWarn:
		h.logger.Info(record.Message, args...)
	case record.Level < slog.LevelError:
		h.logger.Warn(record.Message, args...)
	default:
		h.logger.Error(record.Message, args...)
	}
	return nil
}

func (h *HCLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *HCLogHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if clone.group != "" {
		clone.group += "."
	}
	clone.group += name
	return &clone
}

func (h *HCLogHandler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}
