// Package barrier implements the pause/resume handshake the I/O loop uses
// so a caller can safely mutate its polled fd set (adding or removing a
// driver) without racing the loop's own poll/read cycle. The loop checks
// for a pending pause request once per iteration and blocks in Acknowledge
// until the pauser calls the resume function Pause returned; Pause itself
// blocks (up to its timeout) until the loop has acknowledged
// the request, so the caller never mutates shared state concurrently with
// the loop actually touching it.
package barrier

import (
	"sync"
	"time"
)

// Barrier coordinates one I/O loop goroutine with any number of callers
// requesting a pause. Only one pause may be outstanding at a time; a
// second concurrent Pause call blocks until the first Resumes.
type Barrier struct {
	pauseMu   sync.Mutex // held from Pause until its resume function runs
	mu        sync.Mutex
	pauseReq  chan struct{}
	pausedAck chan struct{}
	resumeReq chan struct{}
	paused    bool
}

// New returns a ready Barrier.
func New() *Barrier {
	return &Barrier{
		pauseReq:  make(chan struct{}, 1),
		pausedAck: make(chan struct{}),
		resumeReq: make(chan struct{}),
	}
}

// PauseRequested returns a channel that becomes readable when a caller has
// called Pause. The I/O loop selects on this alongside its poll wait.
func (b *Barrier) PauseRequested() <-chan struct{} {
	return b.pauseReq
}

// Acknowledge is called by the I/O loop after it observes PauseRequested
// and has stopped touching shared state. It blocks until the pauser's
// resume function is called, then returns so the loop can continue.
func (b *Barrier) Acknowledge() {
	b.mu.Lock()
	ack := b.pausedAck
	resumeCh := b.resumeReq
	b.mu.Unlock()

	select {
	case <-ack:
	default:
		close(ack)
	}
	<-resumeCh
}

// Pause requests the loop pause, waits up to timeout for its
// acknowledgment, and returns a resume function the caller must call
// exactly once to let the loop continue. Only one Pause may be
// outstanding: concurrent callers serialize on the internal mutex.
func (b *Barrier) Pause(timeout time.Duration) (resume func(), acked bool) {
	b.pauseMu.Lock()
	b.mu.Lock()
	b.pausedAck = make(chan struct{})
	b.resumeReq = make(chan struct{})
	b.paused = true
	ack := b.pausedAck
	resumeCh := b.resumeReq
	b.mu.Unlock()

	select {
	case b.pauseReq <- struct{}{}:
	default:
	}

	select {
	case <-ack:
		return func() { b.doResume(resumeCh) }, true
	case <-time.After(timeout):
		return func() { b.doResume(resumeCh) }, false
	}
}

func (b *Barrier) doResume(resumeCh chan struct{}) {
	b.mu.Lock()
	b.paused = false
	// drain any stale pause request that arrived while paused
	select {
	case <-b.pauseReq:
	default:
	}
	b.mu.Unlock()
	close(resumeCh)
	b.pauseMu.Unlock()
}

// Paused reports whether a pause is currently in effect.
func (b *Barrier) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}
