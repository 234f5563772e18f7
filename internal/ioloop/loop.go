// Package ioloop implements hound's single background I/O event loop: one
// goroutine, pinned to its OS thread, that polls every push-mode driver fd,
// plus one time.AfterFunc timer per pull-mode periodic subscription that
// ticks it, turning produced bytes and poll results into
// reference-counted records fanned out to whichever
// context queues subscribed to them. Mutating the polled fd set (adding or
// removing a driver) goes through internal/barrier so it never races a
// poll(2) call already in flight.
package ioloop

import (
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/behrlich/hound/internal/barrier"
	"github.com/behrlich/hound/internal/constants"
	"github.com/behrlich/hound/internal/driver"
	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/model"
	"github.com/behrlich/hound/internal/queue"
	"github.com/behrlich/hound/internal/record"
)

// Observer mirrors hound.Observer's method set so this package can accept
// one without importing the root package (which imports this one).
type Observer interface {
	ObserveProduced(devID uint8, dataID uint32, bytes uint64, success bool)
	ObserveDelivered(devID uint8, dataID uint32, latencyNs uint64)
	ObserveDropped(devID uint8, dataID uint32)
	ObserveQueueDepth(devID uint8, depth uint32)
}

type noopObserver struct{}

func (noopObserver) ObserveProduced(uint8, uint32, uint64, bool) {}
func (noopObserver) ObserveDelivered(uint8, uint32, uint64)      {}
func (noopObserver) ObserveDropped(uint8, uint32)                {}
func (noopObserver) ObserveQueueDepth(uint8, uint32)             {}

// subscriber is one context's interest in one (device, dataID) stream.
type subscriber struct {
	id     uint64
	q      *queue.Ring
	period model.Period
}

// pushSource is a push-mode driver instance currently polled by the loop.
type pushSource struct {
	devID model.DeviceID
	drv   driver.Driver
	fd    int
}

// pullSource is a pull-mode (on-demand/periodic) subscription ticking on
// its own timer.
type pullSource struct {
	devID  model.DeviceID
	drv    driver.Driver
	dataID model.DataID
	period model.Period
	timer  *time.Timer
}

// Loop is hound's I/O event loop. The zero value is not usable; construct
// with New.
type Loop struct {
	barrier  *barrier.Barrier
	observer Observer
	logger   *logging.Logger

	mu       sync.Mutex
	push     map[model.DeviceID]*pushSource
	pull     map[model.DeviceID]map[model.DataID]*pullSource
	fanout   map[model.DeviceID]map[model.DataID][]subscriber
	seqByDev map[model.DeviceID]*model.SeqNo

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
}

// New returns a Loop that does not yet poll anything; drivers are added
// with AddPushSource/AddPullSource once Run is running.
func New(observer Observer) *Loop {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Loop{
		barrier:  barrier.New(),
		observer: observer,
		push:     make(map[model.DeviceID]*pushSource),
		pull:     make(map[model.DeviceID]map[model.DataID]*pullSource),
		fanout:   make(map[model.DeviceID]map[model.DataID][]subscriber),
		seqByDev: make(map[model.DeviceID]*model.SeqNo),
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// SetLogger installs logger for diagnostics (poll/parse/poll-call
// failures, record-ceiling truncation). A nil logger silences these
// diagnostics; parse and Driver.Poll failures are still reported to the
// Observer, poll(2) failures are not.
func (l *Loop) SetLogger(logger *logging.Logger) {
	l.mu.Lock()
	l.logger = logger
	l.mu.Unlock()
}

func (l *Loop) logf(format string, args ...any) {
	l.mu.Lock()
	logger := l.logger
	l.mu.Unlock()
	if logger != nil {
		logger.Warnf(format, args...)
	}
}

func (l *Loop) nextSeq(devID model.DeviceID) model.SeqNo {
	s, ok := l.seqByDev[devID]
	if !ok {
		s = new(model.SeqNo)
		l.seqByDev[devID] = s
	}
	cur := *s
	*s++
	return cur
}

// Run pins the calling goroutine to its OS thread and services push-mode
// fds via poll(2) until Stop is called. It is meant to be started with
// `go loop.Run()`.
func (l *Loop) Run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.stopped)

	for {
		select {
		case <-l.stop:
			return
		case <-l.barrier.PauseRequested():
			l.barrier.Acknowledge()
			continue
		default:
		}

		fds := l.pollFds()
		if len(fds) == 0 {
			// nothing push-mode to poll; wait for a wake signal (a
			// source was added) or stop, briefly, to avoid busy-looping.
			select {
			case <-l.stop:
				return
			case <-l.barrier.PauseRequested():
				l.barrier.Acknowledge()
			case <-l.wake:
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		n, err := unix.Poll(fds, 100)
		if err != nil {
			l.logf("poll(2) failed: %v", err)
			continue // EINTR or other transient poll failure: retry next iteration
		}
		if n == 0 {
			continue
		}
		for _, pfd := range fds {
			if pfd.Revents&unix.POLLIN == 0 {
				continue
			}
			l.readReadyFd(int(pfd.Fd))
		}
	}
}

// pollFds snapshots the current push sources into a unix.PollFd slice.
func (l *Loop) pollFds() []unix.PollFd {
	l.mu.Lock()
	defer l.mu.Unlock()
	fds := make([]unix.PollFd, 0, len(l.push))
	for _, ps := range l.push {
		fds = append(fds, unix.PollFd{Fd: int32(ps.fd), Events: unix.POLLIN})
	}
	return fds
}

// sourceByFd finds the push source currently registered under fd, or nil.
func (l *Loop) sourceByFd(fd int) *pushSource {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ps := range l.push {
		if ps.fd == fd {
			return ps
		}
	}
	return nil
}

// readReadyFd reads and parses the bytes available on fd and fans out the
// resulting records.
func (l *Loop) readReadyFd(fd int) {
	ps := l.sourceByFd(fd)
	if ps == nil {
		return
	}
	buf := queue.GetBuffer(constants.ScratchBufferSize)
	defer queue.PutBuffer(buf)

	n, err := unix.Read(fd, buf)
	if err != nil || n <= 0 {
		return
	}
	recs, err := ps.drv.Parse(buf[:n])
	if err != nil {
		l.logf("device %d: parse failed: %v", ps.devID, err)
		l.observer.ObserveProduced(uint8(ps.devID), 0, 0, false)
		return
	}
	l.emit(ps.devID, recs)
}

// Stop halts the loop and waits for Run to return.
func (l *Loop) Stop() {
	close(l.stop)
	<-l.stopped
}

// Pause blocks the loop at its next iteration boundary and returns a
// resume function the caller must invoke to let it continue.
func (l *Loop) Pause(timeout time.Duration) (resume func(), ok bool) {
	return l.barrier.Pause(timeout)
}

// AddPushSource registers a push-mode driver instance's fd for polling.
// Must be called while the loop is paused.
func (l *Loop) AddPushSource(devID model.DeviceID, drv driver.Driver) {
	fd, ok := drv.FD()
	if !ok {
		return
	}
	l.mu.Lock()
	l.push[devID] = &pushSource{devID: devID, drv: drv, fd: fd}
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RemovePushSource stops polling devID's fd. Must be called while the loop
// is paused.
func (l *Loop) RemovePushSource(devID model.DeviceID) {
	l.mu.Lock()
	delete(l.push, devID)
	l.mu.Unlock()
}

// AddPullSource starts a periodic timer that calls drv.Poll for
// (devID, dataID) every period, fanning out each result. A period of
// model.OnDemand is not ticked automatically; callers drive it via Poll
// directly through Context.Read.
func (l *Loop) AddPullSource(devID model.DeviceID, drv driver.Driver, req model.DataRequest) {
	if req.Period == model.OnDemand {
		return
	}
	l.mu.Lock()
	if l.pull[devID] == nil {
		l.pull[devID] = make(map[model.DataID]*pullSource)
	}
	if existing, ok := l.pull[devID][req.DataID]; ok {
		existing.timer.Stop()
	}
	ps := &pullSource{devID: devID, drv: drv, dataID: req.DataID, period: req.Period}
	ps.timer = time.AfterFunc(time.Duration(req.Period), func() { l.tick(ps) })
	l.pull[devID][req.DataID] = ps
	l.mu.Unlock()
}

// RemovePullSource stops the periodic timer for (devID, dataID).
func (l *Loop) RemovePullSource(devID model.DeviceID, dataID model.DataID) {
	l.mu.Lock()
	if m, ok := l.pull[devID]; ok {
		if ps, ok := m[dataID]; ok {
			ps.timer.Stop()
			delete(m, dataID)
		}
	}
	l.mu.Unlock()
}

func (l *Loop) tick(ps *pullSource) {
	recs, err := ps.drv.Poll(model.DataRequest{DataID: ps.dataID, Period: ps.period})
	if err != nil {
		l.logf("device %d data id %d: poll failed: %v", ps.devID, ps.dataID, err)
		l.observer.ObserveProduced(uint8(ps.devID), uint32(ps.dataID), 0, false)
	} else {
		l.emit(ps.devID, recs)
	}

	l.mu.Lock()
	if m, ok := l.pull[ps.devID]; ok {
		if cur, ok := m[ps.dataID]; ok && cur == ps {
			ps.timer.Reset(time.Duration(ps.period))
		}
	}
	l.mu.Unlock()
}

// emit stamps sequence numbers onto recs and fans each one out to every
// context subscribed to its DataID under devID.
func (l *Loop) emit(devID model.DeviceID, recs []model.Record) {
	if len(recs) > constants.MaxRecordsPerCall {
		l.logf("device %d: call emitted %d records, truncating to %d", devID, len(recs), constants.MaxRecordsPerCall)
		recs = recs[:constants.MaxRecordsPerCall]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range recs {
		rec.DevID = devID
		rec.SeqNo = l.nextSeq(devID)
		rec.Timestamp = time.Now()

		l.observer.ObserveProduced(uint8(devID), uint32(rec.DataID), uint64(len(rec.Payload)), true)

		subs := l.fanout[devID][rec.DataID]
		if len(subs) == 0 {
			continue
		}
		ref := record.New(rec, len(subs), nil)
		for _, s := range subs {
			before := s.q.Len()
			s.q.Push(ref)
			after := s.q.Len()
			if after <= before {
				l.observer.ObserveDropped(uint8(devID), uint32(rec.DataID))
			}
			l.observer.ObserveQueueDepth(uint8(devID), uint32(after))
		}
	}
}

// Subscribe registers q to receive every future record produced for
// (devID, dataID).
func (l *Loop) Subscribe(devID model.DeviceID, dataID model.DataID, subscriberID uint64, period model.Period, q *queue.Ring) {
	l.mu.Lock()
	if l.fanout[devID] == nil {
		l.fanout[devID] = make(map[model.DataID][]subscriber)
	}
	l.fanout[devID][dataID] = append(l.fanout[devID][dataID], subscriber{id: subscriberID, q: q, period: period})
	l.mu.Unlock()
}

// Unsubscribe removes subscriberID's interest in (devID, dataID).
func (l *Loop) Unsubscribe(devID model.DeviceID, dataID model.DataID, subscriberID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	subs := l.fanout[devID][dataID]
	for i, s := range subs {
		if s.id == subscriberID {
			l.fanout[devID][dataID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(l.fanout[devID][dataID]) == 0 {
		delete(l.fanout[devID], dataID)
	}
}

// UnsubscribeAll removes subscriberID's interest across every device and
// data id. Context does not call it; it unsubscribes request by request.
func (l *Loop) UnsubscribeAll(subscriberID uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for devID, byData := range l.fanout {
		for dataID, subs := range byData {
			for i, s := range subs {
				if s.id == subscriberID {
					l.fanout[devID][dataID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(l.fanout[devID][dataID]) == 0 {
				delete(l.fanout[devID], dataID)
			}
		}
	}
}

// EmitForTesting lets package-external tests drive emit without a real fd,
// exercising fan-out and drop-oldest behavior deterministically.
func (l *Loop) EmitForTesting(devID model.DeviceID, recs []model.Record) {
	l.emit(devID, recs)
}
