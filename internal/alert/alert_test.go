package alert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStreamer struct {
	err  error
	args *redis.XAddArgs
}

func (s *stubStreamer) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	s.args = args
	cmd := redis.NewStringCmd(ctx)
	if s.err != nil {
		cmd.SetErr(s.err)
	} else {
		cmd.SetVal("1-0")
	}
	return cmd
}

func TestStreamSinkNotify(t *testing.T) {
	streamer := &stubStreamer{}
	sink := NewStreamSink(streamer, "", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := sink.Notify(context.Background(), "price selector removed")
	require.NoError(t, err)

	require.NotNil(t, streamer.args)
	assert.Equal(t, DefaultStream, streamer.args.Stream)
	assert.Equal(t, "price selector removed", streamer.args.Values.(map[string]interface{})["report"])
}

func TestStreamSinkNotifyFailure(t *testing.T) {
	streamer := &stubStreamer{err: errors.New("connection refused")}
	sink := NewStreamSink(streamer, "alerts", slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := sink.Notify(context.Background(), "report")
	assert.Error(t, err)
}

func TestLogSinkNeverFails(t *testing.T) {
	sink := NewLogSink(slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, sink.Notify(context.Background(), "report"))
}
