package simpleimage

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// AssetIngested does nothing and returns nil
func (n *NoopEventSink) AssetIngested(ctx context.Context, asset *Asset) error {
	return nil
}

// AssetRemoved does nothing and returns nil
func (n *NoopEventSink) AssetRemoved(ctx context.Context, asset *Asset) error {
	return nil
}

// LogEventSink writes every event to a structured logger
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink that logs through logger, or
// slog.Default() when logger is nil
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) AssetIngested(ctx context.Context, asset *Asset) error {
	l.logger.InfoContext(ctx, "Asset ingested", "id", asset.ID, "name", asset.Name, "key", asset.Key.String())
	return nil
}

func (l *LogEventSink) AssetRemoved(ctx context.Context, asset *Asset) error {
	l.logger.InfoContext(ctx, "Asset removed", "id", asset.ID, "name", asset.Name, "key", asset.Key.String())
	return nil
}

// MultiEventSink fans events out to several sinks, returning the first error
type MultiEventSink []EventSink

func (m MultiEventSink) AssetIngested(ctx context.Context, asset *Asset) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.AssetIngested(ctx, asset); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiEventSink) AssetRemoved(ctx context.Context, asset *Asset) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.AssetRemoved(ctx, asset); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
