package windowstats

import (
	"errors"

	"github.com/montanaflynn/stats"
)

var ErrEmptyWindow = errors.New("window closed without samples")

// Window collects accepted values until a fixed number of frames has been
// seen, then reduces them to one rounded mean. Closure is driven by frames,
// not by accepted values, so a window may close short.
type Window struct {
	capacity int
	values   []float64
	frames   int
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 1
	}
	return &Window{
		capacity: capacity,
		values:   make([]float64, 0, capacity),
	}
}

// Push adds an accepted value to the open window.
func (w *Window) Push(v float64) {
	w.values = append(w.values, v)
}

// Tick records one processed frame and reports whether the window is due.
func (w *Window) Tick() bool {
	w.frames++
	return w.frames >= w.capacity
}

// Reduce returns the rounded mean of the open window and clears it. The
// window is cleared even when it was empty.
func (w *Window) Reduce() (int, error) {
	defer w.reset()

	if len(w.values) == 0 {
		return 0, ErrEmptyWindow
	}

	mean, err := stats.Mean(w.values)
	if err != nil {
		return 0, err
	}
	rounded, err := stats.Round(mean, 0)
	if err != nil {
		return 0, err
	}
	return int(rounded), nil
}

func (w *Window) reset() {
	w.values = w.values[:0]
	w.frames = 0
}

func (w *Window) Size() int {
	return len(w.values)
}

func (w *Window) Frames() int {
	return w.frames
}

func (w *Window) Capacity() int {
	return w.capacity
}
