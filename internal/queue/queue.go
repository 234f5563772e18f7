package queue

import (
	"context"
	"sync"

	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/record"
)

// Ring is a bounded, single-reader/multi-writer queue of record.Ref
// pointers. When full, Push drops the oldest entry rather than blocking the
// producer (the I/O loop) or the newest sample (the consumer wants fresh
// data over complete history). Each dropped entry has Release called on it
// so its refcount still reaches zero promptly.
type Ring struct {
	mu       sync.Mutex
	notEmpty sync.Cond
	buf      []*record.Ref
	head     int
	size     int
	dropped  uint64
	closed   bool
	paused   bool
	logger   *logging.Logger
}

// NewRing allocates a Ring with room for capacity entries. capacity must be
// positive; AllocCtx substitutes DefaultQueueCapacity for zero and rejects
// a negative capacity before reaching here.
func NewRing(capacity int) *Ring {
	r := &Ring{buf: make([]*record.Ref, capacity)}
	r.notEmpty.L = &r.mu
	return r
}

// SetLogger installs logger for diagnostics (records dropped for being
// full). A nil logger silences these diagnostics; callers can still read
// Dropped().
func (r *Ring) SetLogger(logger *logging.Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Push appends ref to the queue, dropping and releasing the oldest entry
// first if the queue is already at capacity.
func (r *Ring) Push(ref *record.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		ref.Release()
		return
	}
	if r.size == len(r.buf) {
		old := r.buf[r.head]
		r.buf[r.head] = nil
		r.head = (r.head + 1) % len(r.buf)
		r.size--
		r.dropped++
		if r.logger != nil {
			r.logger.Warnf("queue full at capacity %d, dropping oldest record", len(r.buf))
		}
		old.Release()
	}
	idx := (r.head + r.size) % len(r.buf)
	r.buf[idx] = ref
	r.size++
	r.notEmpty.Signal()
}

// PopWait removes and returns the oldest entry, blocking until one is
// available, ctx is cancelled, or the queue is closed.
func (r *Ring) PopWait(ctx context.Context) (*record.Ref, bool) {
	done := make(chan struct{})
	if ctx != nil {
		stop := context.AfterFunc(ctx, func() {
			close(done)
			r.mu.Lock()
			r.notEmpty.Broadcast()
			r.mu.Unlock()
		})
		defer stop()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for r.size == 0 && !r.closed && !r.paused {
		select {
		case <-done:
			return nil, false
		default:
		}
		r.notEmpty.Wait()
	}
	return r.popLocked()
}

// PopNoWait removes and returns the oldest entry if one is immediately
// available, without blocking.
func (r *Ring) PopNoWait() (*record.Ref, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.popLocked()
}

func (r *Ring) popLocked() (*record.Ref, bool) {
	if r.size == 0 {
		return nil, false
	}
	ref := r.buf[r.head]
	r.buf[r.head] = nil
	r.head = (r.head + 1) % len(r.buf)
	r.size--
	return ref, true
}

// DrainUpTo removes and returns up to max entries, oldest first, without
// blocking. It never blocks even if the queue is empty.
func (r *Ring) DrainUpTo(max int) []*record.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	if max > r.size {
		max = r.size
	}
	out := make([]*record.Ref, 0, max)
	for i := 0; i < max; i++ {
		ref, ok := r.popLocked()
		if !ok {
			break
		}
		out = append(out, ref)
	}
	return out
}

// DrainBytesUpTo removes and returns entries, oldest first, while their
// cumulative payload size does not exceed maxBytes. It always removes at
// least one entry if the queue is non-empty, even if that single entry's
// payload alone exceeds maxBytes, so callers make progress.
func (r *Ring) DrainBytesUpTo(maxBytes int) []*record.Ref {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*record.Ref
	total := 0
	for r.size > 0 {
		next := r.buf[r.head]
		n := len(next.Record().Payload)
		if len(out) > 0 && total+n > maxBytes {
			break
		}
		ref, _ := r.popLocked()
		out = append(out, ref)
		total += n
		if total >= maxBytes {
			break
		}
	}
	return out
}

// Pause interrupts any callers currently blocked in PopWait, returning
// them (nil, false), without closing the queue permanently. Resume lets
// PopWait block normally again.
func (r *Ring) Pause() {
	r.mu.Lock()
	r.paused = true
	r.notEmpty.Broadcast()
	r.mu.Unlock()
}

// Resume reverses a prior Pause.
func (r *Ring) Resume() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
}

// Len reports the number of entries currently queued.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap reports the queue's fixed capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Dropped reports the cumulative count of entries evicted by Push because
// the queue was full.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close marks the queue closed and wakes any blocked PopWait callers. Any
// entries still queued are released and discarded.
func (r *Ring) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for r.size > 0 {
		ref, _ := r.popLocked()
		ref.Release()
	}
	r.notEmpty.Broadcast()
}
