package main

import (
	"context"
	"sync"
	"time"
)

const (
	storeQueueSize = 256
	storeTimeout   = 2 * time.Second
)

type storeJob struct {
	name string
	run  func(ctx context.Context) error
}

// storeWriter runs Redis writes on its own goroutine so the frame loop never
// waits on the network. Jobs offered while the queue is full are dropped.
type storeWriter struct {
	jobs    chan storeJob
	done    chan struct{}
	onError func(name string, err error)

	mu     sync.RWMutex
	closed bool
}

func newStoreWriter(size int, onError func(name string, err error)) *storeWriter {
	w := &storeWriter{
		jobs:    make(chan storeJob, size),
		done:    make(chan struct{}),
		onError: onError,
	}
	go w.loop()
	return w
}

func (w *storeWriter) loop() {
	defer close(w.done)
	for job := range w.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := job.run(ctx); err != nil {
			w.onError(job.name, err)
		}
		cancel()
	}
}

// submit reports false when the job was dropped.
func (w *storeWriter) submit(name string, run func(ctx context.Context) error) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.jobs <- storeJob{name: name, run: run}:
		return true
	default:
		return false
	}
}

// Close stops accepting jobs and waits for the queued ones to finish.
func (w *storeWriter) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.jobs)
	}
	w.mu.Unlock()
	<-w.done
}
