// Package deadletter records best-effort tasks that could not be
// completed, so they can be inspected after the fact.
package deadletter

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Entry is one failed task.
type Entry struct {
	ID        int64
	Task      string
	Reason    string
	Payload   []byte
	CreatedAt time.Time
}

// Sink accepts failed tasks. Implementations must not block for long;
// they are called from worker goroutines.
type Sink interface {
	Record(ctx context.Context, entry Entry) error
}

// LogSink only logs entries.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, entry Entry) error {
	s.logger.Warn("dead letter",
		zap.String("task", entry.Task),
		zap.String("reason", entry.Reason),
		zap.ByteString("payload", entry.Payload),
	)
	return nil
}
