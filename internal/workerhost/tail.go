package workerhost

import "sync"

// TailBuffer is an io.Writer that keeps only the last limit bytes written.
type TailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	limit     int
	truncated bool
}

// NewTailBuffer returns a buffer holding at most limit bytes. A non-positive
// limit discards everything.
func NewTailBuffer(limit int) *TailBuffer {
	return &TailBuffer{limit: max(limit, 0)}
}

// Write implements io.Writer. It never fails.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	if t.limit == 0 {
		t.truncated = t.truncated || n > 0
		return n, nil
	}
	if n >= t.limit {
		t.truncated = t.truncated || n > t.limit || len(t.buf) > 0
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}
	if over := len(t.buf) + n - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
		t.truncated = true
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

// String returns the retained bytes, prefixed with "..." when earlier output
// was dropped.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.truncated && len(t.buf) > 0 {
		return "..." + string(t.buf)
	}
	return string(t.buf)
}
