package audio

import (
	"sync"
	"time"
)

// ChunkBuffer accumulates the fragments emitted during one capture session.
// Fragments are kept in arrival order; Bytes returns their concatenation.
type ChunkBuffer struct {
	data       []byte
	chunkCount int

	firstChunk time.Time
	lastUpdate time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Chunks      int       `json:"chunks"`
	Bytes       int       `json:"bytes"`
	FirstChunk  time.Time `json:"first_chunk"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewChunkBuffer creates an empty buffer, one per capture session
func NewChunkBuffer(sizeHint int) *ChunkBuffer {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &ChunkBuffer{
		data: make([]byte, 0, sizeHint),
	}
}

// Append adds a fragment after every fragment already buffered. The bytes are
// copied so callers may reuse their slice. Empty fragments are counted but add
// no data.
func (b *ChunkBuffer) Append(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.chunkCount == 0 {
		b.firstChunk = now
	}
	b.lastUpdate = now
	b.chunkCount++
	b.data = append(b.data, chunk...)
}

// Bytes returns a copy of the concatenated fragments
func (b *ChunkBuffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Len returns the number of buffered bytes
func (b *ChunkBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.data)
}

// Chunks returns the number of fragments appended
func (b *ChunkBuffer) Chunks() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.chunkCount
}

// GetStats returns current buffer statistics
func (b *ChunkBuffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		Chunks:      b.chunkCount,
		Bytes:       len(b.data),
		FirstChunk:  b.firstChunk,
		LastUpdated: b.lastUpdate,
	}
}
