package observability

import (
	"sync"
	"time"
)

const throughputWindow = 60

// ThroughputTracker counts requests over a sliding one-minute window with
// one-second resolution and remembers the highest count seen.
type ThroughputTracker struct {
	mu      sync.Mutex
	counts  [throughputWindow]int64
	seconds [throughputWindow]int64
	peak    int64
}

// NewThroughputTracker creates an empty tracker.
func NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{}
}

// Add counts one request at the given time and returns the current
// requests-per-minute.
func (t *ThroughputTracker) Add(at time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	sec := at.Unix()
	i := slot(sec)
	if t.seconds[i] != sec {
		t.seconds[i] = sec
		t.counts[i] = 0
	}
	t.counts[i]++

	current := t.sumLocked(sec)
	if current > t.peak {
		t.peak = current
	}
	return current
}

// Current returns the requests counted in the minute ending at the given time.
func (t *ThroughputTracker) Current(at time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sumLocked(at.Unix())
}

// Peak returns the highest requests-per-minute observed.
func (t *ThroughputTracker) Peak() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

func (t *ThroughputTracker) sumLocked(now int64) int64 {
	var sum int64
	for i := range t.counts {
		age := now - t.seconds[i]
		if age >= 0 && age < throughputWindow {
			sum += t.counts[i]
		}
	}
	return sum
}

func slot(sec int64) int {
	i := sec % throughputWindow
	if i < 0 {
		i += throughputWindow
	}
	return int(i)
}
