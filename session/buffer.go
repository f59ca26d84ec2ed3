// Copyright 2026 The Gatebox Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "sync"

// MaxBufferBytes is the default output ring buffer ceiling.
const MaxBufferBytes = 128 * 1024

// OutputBuffer is a byte-capped, chunk-granular ring buffer. Chunks
// stay in arrival order; once the total exceeds the ceiling the
// oldest bytes are evicted, splitting the front chunk when only part
// of it needs to go. Safe for concurrent use.
type OutputBuffer struct {
	mu         sync.Mutex
	chunks     [][]byte
	totalBytes int
	maxBytes   int
}

// NewOutputBuffer returns a buffer with the default ceiling.
func NewOutputBuffer() *OutputBuffer {
	return NewOutputBufferSize(MaxBufferBytes)
}

// NewOutputBufferSize returns a buffer with an explicit ceiling.
func NewOutputBufferSize(maxBytes int) *OutputBuffer {
	return &OutputBuffer{maxBytes: maxBytes}
}

// PushChunk appends chunk and evicts from the front until the total
// is back under the ceiling. The buffer owns chunk after the call.
func (b *OutputBuffer) PushChunk(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalBytes += len(chunk)
	b.chunks = append(b.chunks, chunk)

	excess := b.totalBytes - b.maxBytes
	for excess > 0 && len(b.chunks) > 0 {
		front := b.chunks[0]
		if excess >= len(front) {
			excess -= len(front)
			b.totalBytes -= len(front)
			b.chunks = b.chunks[1:]
			continue
		}
		// Partial trim: only the front of the oldest chunk is excess.
		b.chunks[0] = front[excess:]
		b.totalBytes -= excess
		break
	}
}

// Drain returns all buffered chunks in order and resets the buffer.
func (b *OutputBuffer) Drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.chunks
	b.chunks = nil
	b.totalBytes = 0
	return drained
}

// Snapshot returns the buffered bytes concatenated, without draining.
func (b *OutputBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]byte, 0, b.totalBytes)
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	return out
}

// TotalBytes returns the current buffered byte count.
func (b *OutputBuffer) TotalBytes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalBytes
}

// ChunkCount returns the number of buffered chunks.
func (b *OutputBuffer) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}
