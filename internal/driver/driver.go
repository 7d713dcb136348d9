package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/seven320/pose-net-correction/internal/analytics"
	"github.com/seven320/pose-net-correction/internal/model"
	"github.com/seven320/pose-net-correction/internal/source"
	"github.com/seven320/pose-net-correction/internal/windowstats"
	"github.com/seven320/pose-net-correction/pkg/log"
)

var ErrNotRunning = errors.New("frame loop is not running")

// Publisher receives every frame's outcome and the snapshot that follows it,
// plus the snapshot after each successful arm.
type Publisher interface {
	PublishFrame(ctx context.Context, res analytics.Result, snap model.Snapshot, elapsed time.Duration, err error)
	PublishArm(ctx context.Context, baseline float64, snap model.Snapshot)
}

type armReply struct {
	baseline float64
	err      error
}

// Driver runs the tracker on a single goroutine. Frames and arm commands
// are both serialized through Run, so the tracker is never shared.
type Driver struct {
	tracker    *analytics.Tracker
	src        source.PoseSource
	publishers []Publisher
	arm        chan chan armReply
	running    chan struct{}
	stopped    chan struct{}

	mu     sync.RWMutex
	latest model.Snapshot
}

func New(tracker *analytics.Tracker, src source.PoseSource, publishers ...Publisher) *Driver {
	return &Driver{
		tracker:    tracker,
		src:        src,
		publishers: publishers,
		arm:        make(chan chan armReply),
		running:    make(chan struct{}),
		stopped:    make(chan struct{}),
		latest:     tracker.Snapshot(),
	}
}

// Run opens the source and processes frames until ctx is cancelled or the
// source is exhausted. A source that cannot be opened stops startup.
// Run must be called at most once.
func (d *Driver) Run(ctx context.Context) error {
	defer close(d.stopped)
	if err := d.src.Open(ctx); err != nil {
		if errors.Is(err, source.ErrCameraUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", source.ErrCameraUnavailable, err)
	}
	defer d.src.Close()

	loopCtx, cancel := context.WithCancel(ctx)
	pulled := make(chan struct{})
	defer func() {
		cancel()
		<-pulled
	}()

	frames := make(chan frameOrErr)
	go func() {
		defer close(pulled)
		d.pull(loopCtx, frames)
	}()

	close(d.running)
	log.Info(nil, "[driver.Run] frame loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case reply := <-d.arm:
			baseline, err := d.tracker.Arm()
			reply <- armReply{baseline: baseline, err: err}
			if err != nil {
				continue
			}
			snap := d.tracker.Snapshot()
			d.store(snap)
			for _, p := range d.publishers {
				p.PublishArm(ctx, baseline, snap)
			}
		case next := <-frames:
			if next.err != nil {
				if errors.Is(next.err, io.EOF) || errors.Is(next.err, context.Canceled) {
					log.Info(nil, "[driver.Run] pose source exhausted")
					return nil
				}
				return fmt.Errorf("next frame: %w", next.err)
			}
			d.process(ctx, next.frame)
		}
	}
}

type frameOrErr struct {
	frame model.Frame
	err   error
}

// pull is the only suspension point of the loop: awaiting the next frame.
func (d *Driver) pull(ctx context.Context, out chan<- frameOrErr) {
	for {
		f, err := d.src.Next(ctx)
		select {
		case out <- frameOrErr{frame: f, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (d *Driver) process(ctx context.Context, f model.Frame) {
	start := time.Now()
	res, err := d.tracker.Ingest(ctx, f.Poses)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, windowstats.ErrEmptyWindow) {
			log.Warn(log.Fields{"error": err.Error()}, "[driver.process] window closed without accepted samples")
		} else {
			log.Error(log.Fields{"error": err.Error()}, "[driver.process] ingest failed")
		}
	}
	if res.Reset {
		log.Info(nil, "[driver.process] history exceeded limit and was reset")
	}

	snap := d.tracker.Snapshot()
	d.store(snap)
	for _, p := range d.publishers {
		p.PublishFrame(ctx, res, snap, elapsed, err)
	}
}

func (d *Driver) store(snap model.Snapshot) {
	d.mu.Lock()
	d.latest = snap
	d.mu.Unlock()
}

// Arm asks the frame loop to arm the threshold and waits for the outcome.
func (d *Driver) Arm(ctx context.Context) (float64, error) {
	select {
	case <-d.running:
	default:
		return 0, ErrNotRunning
	}

	reply := make(chan armReply, 1)
	select {
	case d.arm <- reply:
	case <-d.stopped:
		return 0, ErrNotRunning
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.baseline, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (d *Driver) Latest() model.Snapshot {
	d.mu.RLock()
	res := d.latest
	d.mu.RUnlock()
	return res
}

// Running is closed once the frame loop has started.
func (d *Driver) Running() <-chan struct{} {
	return d.running
}
