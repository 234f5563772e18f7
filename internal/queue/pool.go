package queue

import "sync"

// GetBuffer and PutBuffer provide pooled scratch byte slices for the I/O
// loop's fd reads, avoiding a fresh allocation on every read off a driver
// fd.
// Uses size-bucketed pools with power-of-2 sizes (1KB, 4KB, 16KB, 64KB) to
// balance memory efficiency with allocation reduction; 64KB matches
// constants.ScratchBufferSize, the largest single-call payload the loop
// expects from a parse-style driver.
//
// Uses *[]byte pattern to avoid sync.Pool interface allocation overhead.

// Buffer size thresholds
const (
	size1k  = 1024
	size4k  = 4 * 1024
	size16k = 16 * 1024
	size64k = 64 * 1024
)

// globalPool is the shared buffer pool behind GetBuffer/PutBuffer.
// Uses pointer-to-slice pattern for efficient sync.Pool usage.
var globalPool = struct {
	pool1k  sync.Pool
	pool4k  sync.Pool
	pool16k sync.Pool
	pool64k sync.Pool
}{
	pool1k:  sync.Pool{New: func() any { b := make([]byte, size1k); return &b }},
	pool4k:  sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	pool16k: sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
	pool64k: sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
}

// GetBuffer returns a pooled buffer of at least the requested size.
// Caller must call PutBuffer when done.
func GetBuffer(size uint32) []byte {
	switch {
	case size <= size1k:
		return (*globalPool.pool1k.Get().(*[]byte))[:size]
	case size <= size4k:
		return (*globalPool.pool4k.Get().(*[]byte))[:size]
	case size <= size16k:
		return (*globalPool.pool16k.Get().(*[]byte))[:size]
	case size <= size64k:
		return (*globalPool.pool64k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer to the pool.
// The buffer's capacity determines which pool it goes to.
func PutBuffer(buf []byte) {
	c := cap(buf)
	// Restore full capacity before returning to pool
	buf = buf[:c]
	switch c {
	case size1k:
		globalPool.pool1k.Put(&buf)
	case size4k:
		globalPool.pool4k.Put(&buf)
	case size16k:
		globalPool.pool16k.Put(&buf)
	case size64k:
		globalPool.pool64k.Put(&buf)
		// Buffers with non-standard capacity are not returned to pool
	}
}
