package media

import (
	"bytes"
	"sync"
)

// TailBuffer is an io.Writer that keeps only the last limit bytes written.
// It is safe for concurrent use.
type TailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func NewTailBuffer(limit int) *TailBuffer {
	if limit <= 0 {
		limit = maxStderrBytes
	}
	return &TailBuffer{limit: limit}
}

func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := len(p)
	t.buf.Write(p)
	if t.buf.Len() > t.limit {
		// Keep only the tail
		b := t.buf.Bytes()
		t.buf.Reset()
		t.buf.Write(b[len(b)-t.limit:])
	}
	return n, nil
}

func (t *TailBuffer) WriteString(s string) (int, error) {
	return t.Write([]byte(s))
}

func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// LastLine returns the final non-empty line of the buffered text.
func (t *TailBuffer) LastLine() string {
	return lastLine(t.String())
}
