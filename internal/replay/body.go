// Package replay captures a request body once and hands the same bytes to
// the downstream handler as if the body had never been read.
package replay

import (
	"bytes"
	"io"
	"net/http"
	"sync"
)

// DefaultLimit caps how much of a body is buffered for inspection.
const DefaultLimit int64 = 10 << 20

// Body wraps a request body. It starts pending; the first call to Bytes moves
// it to consumed. That transition happens at most once.
type Body struct {
	mu       sync.Mutex
	original io.ReadCloser
	limit    int64
	consumed bool
	data     []byte
	err      error
	// tail holds the byte read past limit, if any
	tail      []byte
	truncated bool
	handedOut bool
}

// New wraps body. A non-positive limit selects DefaultLimit.
func New(body io.ReadCloser, limit int64) *Body {
	if body == nil {
		body = http.NoBody
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Body{original: body, limit: limit}
}

// Bytes reads the original body on the first call and returns the cached
// bytes afterwards. The returned slice must not be modified.
func (b *Body) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.consumed {
		return b.data, b.err
	}
	b.consumed = true

	var buf bytes.Buffer
	// read one byte past the limit to learn whether the stream continues
	n, err := buf.ReadFrom(io.LimitReader(b.original, b.limit+1))
	if err != nil {
		b.err = err
	}
	data := buf.Bytes()
	if n > b.limit {
		b.truncated = true
		b.data = data[:b.limit]
		b.tail = data[b.limit:]
	} else {
		b.data = data
	}
	return b.data, b.err
}

// Consumed reports whether Bytes has been called.
func (b *Body) Consumed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumed
}

// Truncated reports whether Bytes returned a prefix of a longer body.
func (b *Body) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// ReadCloser returns the stream the downstream handler should read. While
// pending it is the original body untouched; once consumed it replays the
// cached bytes, then whatever was left unread, then the original read error
// or EOF. It may be called once; later calls return an exhausted reader.
func (b *Body) ReadCloser() io.ReadCloser {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handedOut {
		return &replayReader{Reader: bytes.NewReader(nil), closer: b.original}
	}
	b.handedOut = true

	if !b.consumed {
		return b.original
	}

	readers := []io.Reader{bytes.NewReader(b.data)}
	if b.truncated {
		readers = append(readers, bytes.NewReader(b.tail), b.original)
	}
	if b.err != nil {
		readers = append(readers, errReader{err: b.err})
	}
	return &replayReader{Reader: io.MultiReader(readers...), closer: b.original}
}

type replayReader struct {
	io.Reader
	closer io.Closer
	once   sync.Once
	err    error
}

func (r *replayReader) Close() error {
	r.once.Do(func() {
		r.err = r.closer.Close()
	})
	return r.err
}

type errReader struct {
	err error
}

func (e errReader) Read([]byte) (int, error) {
	return 0, e.err
}
