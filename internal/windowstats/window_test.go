package windowstats

import (
	"errors"
	"testing"
)

func TestWindowStats(t *testing.T) {
	w := NewWindow(3)
	w.Push(1)
	w.Push(2)
	w.Push(4)

	if w.Size() != 3 {
		t.Fatalf("expected count 3, got %d", w.Size())
	}
	if w.Tick() || w.Tick() {
		t.Fatalf("window closed before capacity")
	}
	if !w.Tick() {
		t.Fatalf("expected window to close on third frame")
	}

	v, err := w.Reduce()
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	// mean 2.333 rounds down
	if v != 2 {
		t.Fatalf("expected mean 2, got %d", v)
	}
	if w.Size() != 0 || w.Frames() != 0 {
		t.Fatalf("expected cleared window, got size %d frames %d", w.Size(), w.Frames())
	}
}

func TestWindowRoundsHalfUp(t *testing.T) {
	w := NewWindow(2)
	w.Push(10)
	w.Push(11)

	v, err := w.Reduce()
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if v != 11 {
		t.Fatalf("expected 10.5 to round to 11, got %d", v)
	}
}

func TestWindowEmptyReduce(t *testing.T) {
	w := NewWindow(2)
	w.Tick()
	w.Tick()

	if _, err := w.Reduce(); !errors.Is(err, ErrEmptyWindow) {
		t.Fatalf("expected ErrEmptyWindow, got %v", err)
	}
	if w.Frames() != 0 {
		t.Fatalf("expected frame count reset, got %d", w.Frames())
	}

	w.Push(7)
	v, err := w.Reduce()
	if err != nil || v != 7 {
		t.Fatalf("expected 7 after empty window, got %d (%v)", v, err)
	}
}

func TestHistoryResetOnOverflow(t *testing.T) {
	h := NewHistory(50)
	for i := 1; i <= 50; i++ {
		if h.Append(i) {
			t.Fatalf("unexpected reset at %d", i)
		}
	}
	if h.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", h.Len())
	}
	if last, _ := h.Last(); last != 50 {
		t.Fatalf("expected last 50, got %d", last)
	}

	if !h.Append(51) {
		t.Fatalf("expected reset on 51st append")
	}
	if h.Len() != 0 {
		t.Fatalf("expected empty history after reset, got %d", h.Len())
	}
	if _, ok := h.Last(); ok {
		t.Fatalf("expected no last value after reset")
	}
}

func TestHistoryValuesIsCopy(t *testing.T) {
	h := NewHistory(5)
	h.Append(1)
	h.Append(2)

	vals := h.Values()
	vals[0] = 99
	if got := h.Values(); got[0] != 1 || len(got) != 2 {
		t.Fatalf("history mutated through copy: %v", got)
	}
}
