package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/remote-job-crawler/internal/progress"
)

// LogSink writes every event at debug level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.logger.Debug("progress event",
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.Int("page", evt.Page),
			zap.String("url", evt.URL),
			zap.String("title", evt.Title),
			zap.Int("listings", evt.Listings),
			zap.String("reason", evt.Reason),
			zap.Duration("dur", evt.Dur),
			zap.String("note", evt.Note),
		)
	}
	return nil
}

// Close implements progress.Sink.
func (s *LogSink) Close(context.Context) error {
	return nil
}
