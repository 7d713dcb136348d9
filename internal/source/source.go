package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/seven320/pose-net-correction/internal/model"
)

var (
	ErrCameraUnavailable = errors.New("camera unavailable")
	ErrQueueFull         = errors.New("frame queue full")
	ErrClosed            = errors.New("source closed")
)

// PoseSource yields one pose-estimation result per frame. Open performs the
// one-time camera handshake; Next blocks until a frame is available and
// returns io.EOF once the source is exhausted.
type PoseSource interface {
	Open(ctx context.Context) error
	Next(ctx context.Context) (model.Frame, error)
	Close() error
}

// New builds a source from a POSE_SOURCE value: "push" or "replay:<path>".
func New(name string, queueSize int) (PoseSource, error) {
	switch {
	case name == "" || name == "push":
		return NewPushSource(queueSize), nil
	case strings.HasPrefix(name, "replay:"):
		return NewReplaySource(strings.TrimPrefix(name, "replay:")), nil
	default:
		return nil, fmt.Errorf("unknown pose source %q", name)
	}
}

// PushSource is fed by network clients that run the pose model themselves.
type PushSource struct {
	queue  chan model.Frame
	closed chan struct{}
	once   sync.Once
}

func NewPushSource(queueSize int) *PushSource {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &PushSource{
		queue:  make(chan model.Frame, queueSize),
		closed: make(chan struct{}),
	}
}

func (s *PushSource) Open(context.Context) error {
	return nil
}

// Offer enqueues a frame without blocking.
func (s *PushSource) Offer(f model.Frame) error {
	select {
	case <-s.closed:
		return ErrClosed
	default:
	}

	select {
	case s.queue <- f:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *PushSource) Next(ctx context.Context) (model.Frame, error) {
	select {
	case <-ctx.Done():
		return model.Frame{}, ctx.Err()
	case <-s.closed:
		return model.Frame{}, io.EOF
	case f := <-s.queue:
		return f, nil
	}
}

func (s *PushSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
