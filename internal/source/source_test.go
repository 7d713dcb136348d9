package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seven320/pose-net-correction/internal/model"
)

func TestPushSourceQueue(t *testing.T) {
	s := NewPushSource(1)
	ctx := context.Background()

	require.NoError(t, s.Offer(model.Frame{Timestamp: 1}))
	assert.ErrorIs(t, s.Offer(model.Frame{Timestamp: 2}), ErrQueueFull)

	f, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.Timestamp)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.ErrorIs(t, s.Offer(model.Frame{}), ErrClosed)
}

func TestPushSourceNextHonoursContext(t *testing.T) {
	s := NewPushSource(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplaySource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	data := `{"poses":[{"score":0.9,"keypoints":[{"position":{"x":1,"y":2},"score":0.8}]}],"timestamp":7}

{"poses":[]}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	s := NewReplaySource(path)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	f, err := s.Next(ctx)
	require.NoError(t, err)
	require.Len(t, f.Poses, 1)
	assert.Equal(t, int64(7), f.Timestamp)
	assert.Equal(t, 2.0, f.Poses[0].Keypoints[0].Position.Y)

	f, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, f.Poses)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplaySourceSkipsBadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frames.jsonl")
	data := `{"timestamp":1}
{"poses":[{"score":
not json at all
{"timestamp":4}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	s := NewReplaySource(path)
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	defer s.Close()

	f, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.Timestamp)

	f, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), f.Timestamp)
	assert.Equal(t, int64(2), s.Skipped())

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplaySourceMissingFile(t *testing.T) {
	s := NewReplaySource(filepath.Join(t.TempDir(), "absent.jsonl"))
	assert.ErrorIs(t, s.Open(context.Background()), ErrCameraUnavailable)
}

func TestNew(t *testing.T) {
	s, err := New("", 4)
	require.NoError(t, err)
	assert.IsType(t, &PushSource{}, s)

	s, err = New("replay:/tmp/x.jsonl", 4)
	require.NoError(t, err)
	assert.IsType(t, &ReplaySource{}, s)

	_, err = New("webcam", 4)
	assert.Error(t, err)
}
