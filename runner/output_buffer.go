package runner

import (
	"sync"
)

// tailBuffer keeps only the last N bytes written to it so a chatty or looping
// test cannot exhaust memory while its output is captured.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxOutputBytes
	}
	return &tailBuffer{maxBytes: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	if len(p) >= b.maxBytes {
		b.contents = append(b.contents[:0], p[len(p)-b.maxBytes:]...)
		return len(p), nil
	}
	b.contents = append(b.contents, p...)
	if over := len(b.contents) - b.maxBytes; over > 0 {
		b.contents = append(b.contents[:0], b.contents[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.contents)
}

// Truncated reports whether earlier output was dropped.
func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.contents)) < b.total
}
