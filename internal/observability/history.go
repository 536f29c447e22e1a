package observability

import (
	"container/list"
	"sync"
	"time"
)

// DefaultMaxCompletedRequests bounds the request log when no size is given.
const DefaultMaxCompletedRequests = 1000

// CompletedRequest is one entry of the request log.
type CompletedRequest struct {
	RequestID       string    `json:"request_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Organization    string    `json:"organization"`
	App             string    `json:"app"`
	Method          string    `json:"method"`
	Endpoint        string    `json:"endpoint"`
	ServiceType     string    `json:"service_type"`
	StatusCode      int       `json:"status_code"`
	DurationSeconds float64   `json:"duration_seconds"`
	UsageKind       string    `json:"usage_kind,omitempty"`
	UsageQuantity   float64   `json:"usage_quantity,omitempty"`
}

// RequestLog keeps the most recent completed requests, evicting the oldest
// once full.
type RequestLog struct {
	mu      sync.Mutex
	entries *list.List
	maxSize int
	total   uint64
}

// NewRequestLog creates a log holding at most maxSize entries.
func NewRequestLog(maxSize int) *RequestLog {
	if maxSize <= 0 {
		maxSize = DefaultMaxCompletedRequests
	}
	return &RequestLog{
		entries: list.New(),
		maxSize: maxSize,
	}
}

// Add appends a request, dropping the oldest when over capacity.
func (l *RequestLog) Add(req CompletedRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries.PushFront(req)
	l.total++
	for l.entries.Len() > l.maxSize {
		l.entries.Remove(l.entries.Back())
	}
}

// Snapshot returns up to limit entries, newest first. limit <= 0 returns all.
func (l *RequestLog) Snapshot(limit int) []CompletedRequest {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.entries.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]CompletedRequest, 0, n)
	for e := l.entries.Front(); e != nil && len(out) < n; e = e.Next() {
		out = append(out, e.Value.(CompletedRequest))
	}
	return out
}

// Len returns the number of retained entries.
func (l *RequestLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries.Len()
}

// Total returns how many requests were ever added.
func (l *RequestLog) Total() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Capacity returns the maximum number of retained entries.
func (l *RequestLog) Capacity() int {
	return l.maxSize
}
