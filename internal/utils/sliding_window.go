package utils

import (
	"sort"
	"time"
)

// SlidingWindow counts events inside a trailing window. Events must be
// added in time order. It is not safe for concurrent use; kv.Memory guards
// every window with its own lock.
type SlidingWindow struct {
	size time.Duration
	hits []time.Time
}

func NewSlidingWindow(size time.Duration) *SlidingWindow {
	return &SlidingWindow{size: size}
}

// Add records an event at now and returns the number of events in the
// window ending at now, including this one.
func (w *SlidingWindow) Add(now time.Time) int {
	w.prune(now)
	w.hits = append(w.hits, now)
	return len(w.hits)
}

func (w *SlidingWindow) Count(now time.Time) int {
	w.prune(now)
	return len(w.hits)
}

// prune drops events at or before now minus the window size.
func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.size)
	keep := sort.Search(len(w.hits), func(i int) bool { return w.hits[i].After(cutoff) })
	if keep == len(w.hits) {
		w.hits = w.hits[:0]
		return
	}
	w.hits = w.hits[keep:]
}
