// Package record implements reference-counted fan-out of a single produced
// sample to the many per-context queues subscribed to it. A Ref is created
// once per sample by the I/O loop with the number of subscriber contexts as
// its initial count; each context decrements it independently after it has
// drained the record from its queue, and the last decrement runs the
// optional release hook, if one was given to New.
package record

import "sync/atomic"

import "github.com/behrlich/hound/internal/model"

// Ref is a reference-counted handle to one produced Record.
type Ref struct {
	rec     model.Record
	count   atomic.Int32
	release func(model.Record)
}

// New wraps rec in a Ref held by n independent owners. release, if non-nil,
// is invoked exactly once, after the last owner calls Release, to return
// rec.Payload to whatever pool produced it.
func New(rec model.Record, n int, release func(model.Record)) *Ref {
	r := &Ref{rec: rec, release: release}
	r.count.Store(int32(n))
	return r
}

// Record returns the wrapped sample. It is valid to call Record from any
// owner for as long as that owner has not yet called Release.
func (r *Ref) Record() *model.Record {
	return &r.rec
}

// Release drops one ownership reference. Go's atomic package guarantees
// sequential consistency, so the goroutine observing the count reach zero
// is guaranteed to see every write the other owners made before their own
// Release call; no extra fence is needed before invoking release.
func (r *Ref) Release() {
	if r.count.Add(-1) == 0 && r.release != nil {
		r.release(r.rec)
	}
}

// Retain increments the ownership count; each Retain needs its own
// matching Release.
func (r *Ref) Retain() {
	r.count.Add(1)
}
