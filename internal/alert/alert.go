// Package alert delivers operator-facing monitor reports.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is where structure reports are published for operators.
const DefaultStream = "stream:structure_alerts"

// LogSink writes reports to the service log. It is the fallback when no
// Redis connection is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "alert")}
}

func (s *LogSink) Notify(_ context.Context, report string) error {
	s.logger.Warn("structure report", "report", report)
	return nil
}

// Streamer is the Redis surface the stream sink needs.
type Streamer interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// StreamSink publishes reports to a Redis stream so external consumers
// (bots, dashboards) can pick them up.
type StreamSink struct {
	redis  Streamer
	stream string
	logger *slog.Logger
}

func NewStreamSink(client Streamer, stream string, logger *slog.Logger) *StreamSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamSink{
		redis:  client,
		stream: stream,
		logger: logger.With("component", "alert"),
	}
}

func (s *StreamSink) Notify(ctx context.Context, report string) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"report":    report,
			"timestamp": fmt.Sprintf("%d", time.Now().UnixNano()),
			"source":    "trendcord",
		},
	}

	if _, err := s.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}

	s.logger.Info("structure report published", "stream", s.stream)
	return nil
}
