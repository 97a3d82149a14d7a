package chat

import "sync"

// History is the replay log of one room. With a positive limit it is a ring
// that keeps only the newest lines; a zero limit keeps everything.
type History struct {
	mu    sync.Mutex
	limit int
	lines []string
	head  int // oldest line once the ring is full
}

// NewHistory returns an empty log. Negative limits are treated as zero.
func NewHistory(limit int) *History {
	if limit < 0 {
		limit = 0
	}
	return &History{limit: limit}
}

func (h *History) Append(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.limit > 0 && len(h.lines) == h.limit {
		h.lines[h.head] = line
		h.head = (h.head + 1) % h.limit
		return
	}
	h.lines = append(h.lines, line)
}

// Snapshot returns the stored lines, oldest first.
func (h *History) Snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.lines))
	out = append(out, h.lines[h.head:]...)
	return append(out, h.lines[:h.head]...)
}

func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lines)
}
