// Package ring holds the most recent log lines in a fixed-capacity buffer.
package ring

import (
	"sync"

	"github.com/modoterra/tailcast/pkg/core"
)

// Buffer is a fixed-capacity ring of log lines. When full, appending
// overwrites the oldest line. It is safe for one writer and many readers.
type Buffer struct {
	lines []core.LogLine
	head  int // index of the oldest line
	size  int
	mu    sync.RWMutex
}

// New creates a buffer holding at most capacity lines.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{lines: make([]core.LogLine, capacity)}
}

// Append adds line at the tail, evicting the oldest line when full.
func (b *Buffer) Append(line core.LogLine) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.lines)
	if b.size < capacity {
		b.lines[(b.head+b.size)%capacity] = line
		b.size++
		return
	}
	b.lines[b.head] = line
	b.head = (b.head + 1) % capacity
}

// Snapshot returns an ordered copy of the current contents, oldest first.
func (b *Buffer) Snapshot() []core.LogLine {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.LogLine, b.size)
	capacity := len(b.lines)
	for i := 0; i < b.size; i++ {
		out[i] = b.lines[(b.head+i)%capacity]
	}
	return out
}

// Last returns the most recently appended line.
func (b *Buffer) Last() (core.LogLine, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return core.LogLine{}, false
	}
	return b.lines[(b.head+b.size-1)%len(b.lines)], true
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.lines)
}
