package windowstats

import "github.com/gammazero/deque"

// History holds smoothed values of closed windows. Once it grows past its
// limit it is emptied completely rather than trimmed.
type History struct {
	limit  int
	values deque.Deque[int]
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = 1
	}
	return &History{limit: limit}
}

// Append adds v and reports whether the overflow reset emptied the history.
func (h *History) Append(v int) bool {
	h.values.PushBack(v)
	return h.checkOverflow()
}

func (h *History) checkOverflow() bool {
	if h.values.Len() > h.limit {
		h.values.Clear()
		return true
	}
	return false
}

func (h *History) Last() (int, bool) {
	if h.values.Len() == 0 {
		return 0, false
	}
	return h.values.Back(), true
}

func (h *History) Len() int {
	return h.values.Len()
}

// Values returns a copy in insertion order.
func (h *History) Values() []int {
	out := make([]int, h.values.Len())
	for i := range out {
		out[i] = h.values.At(i)
	}
	return out
}
