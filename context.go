package hound

import (
	"context"
	"sync"
	"time"

	"github.com/behrlich/hound/internal/constants"
	"github.com/behrlich/hound/internal/model"
	"github.com/behrlich/hound/internal/queue"
	"github.com/behrlich/hound/internal/record"
)

// Context is one consumer's subscription to a set of data streams on a
// single device. Records it is subscribed to arrive in a bounded queue
// that drops the oldest entry when full; on-demand (OnDemand period)
// subscriptions instead produce synchronously as each slot is drained.
// Every drained record is presented to cb before its reference is
// released.
type Context struct {
	h           *Hound
	id          uint64
	devID       DeviceID
	reqs        RequestList
	onDemand    []DataID
	q           *queue.Ring
	maxQueueCap int
	cb          Callback
	cbCtx       any

	mu      sync.Mutex
	active  bool
	stopped bool
	freed   bool
}

// AllocCtx validates reqs, subscribes them against devID's driver
// instance, and returns a Context ready to Start. queueCapacity 0 uses
// DefaultQueueCapacity; a negative queueCapacity fails with
// queue-too-small. cb must not be nil: every record this Context
// drains, whether from its queue or from an on-demand poll, is presented
// to cb (with cbCtx) before its reference is released.
func (h *Hound) AllocCtx(devID DeviceID, reqs RequestList, queueCapacity int, cb Callback, cbCtx any) (*Context, error) {
	if cb == nil {
		return nil, NewDeviceError("AllocCtx", uint8(devID), ErrCodeMissingCallback, "callback must not be nil")
	}
	if len(reqs) == 0 {
		return nil, NewDeviceError("AllocCtx", uint8(devID), ErrCodeNoDataRequested, "no data requested")
	}
	if err := reqs.Validate(MaxDataRequests); err != nil {
		code := ErrCodeTooMuchDataRequested
		if model.IsDuplicateRequest(err) {
			code = ErrCodeDuplicateData
		}
		return nil, NewDeviceError("AllocCtx", uint8(devID), code, err.Error())
	}
	if queueCapacity < 0 {
		return nil, NewDeviceError("AllocCtx", uint8(devID), ErrCodeQueueTooSmall, "capacity must not be negative")
	}
	if queueCapacity == 0 {
		queueCapacity = DefaultQueueCapacity
	}

	inst, err := h.reg.Instance(devID)
	if err != nil {
		return nil, NewDeviceError("AllocCtx", uint8(devID), mapRegistryErr(err), err.Error())
	}

	descs, err := inst.Driver().DataDesc()
	if err != nil {
		return nil, NewDeviceError("AllocCtx", uint8(devID), ErrCodeDriverFail, err.Error())
	}
	descByID := make(map[DataID]DriverDescriptor, len(descs))
	for _, d := range descs {
		descByID[d.Schema.DataID] = d
	}
	for _, r := range reqs {
		desc, ok := descByID[r.DataID]
		if !ok {
			return nil, NewDeviceError("AllocCtx", uint8(devID), ErrCodeIDNotInSchema, "data id not in schema")
		}
		if r.Period != OnDemand && !periodAdvertised(desc.AdvertisedPeriods, r.Period) {
			return nil, NewDeviceError("AllocCtx", uint8(devID), ErrCodePeriodUnsupported, "period not advertised for data id")
		}
	}

	id := h.nextSubscriberID.Add(1)
	q := queue.NewRing(queueCapacity)
	q.SetLogger(h.logger)

	_, pushMode := inst.Driver().FD()

	var onDemand []DataID
	for i, r := range reqs {
		if err := inst.Subscribe(id, r.DataID, r.Period); err != nil {
			// Roll back every subscription already issued for this
			// AllocCtx call, the failed one included, before surfacing
			// the failure.
			for _, done := range reqs[:i+1] {
				_ = inst.Unsubscribe(id, done.DataID)
			}
			for _, done := range reqs[:i] {
				h.loop.Unsubscribe(devID, done.DataID, id)
				if !pushMode && inst.SubscriberCount(done.DataID) == 0 {
					h.loop.RemovePullSource(devID, done.DataID)
				}
			}
			return nil, NewDeviceError("AllocCtx", uint8(devID), ErrCodeDriverFail, err.Error())
		}
		if r.Period == OnDemand && !pushMode {
			onDemand = append(onDemand, r.DataID)
			continue
		}
		h.loop.Subscribe(devID, r.DataID, id, r.Period, q)
		if !pushMode {
			h.loop.AddPullSource(devID, inst.Driver(), r)
		}
	}

	return &Context{
		h:           h,
		id:          id,
		devID:       devID,
		reqs:        reqs,
		onDemand:    onDemand,
		q:           q,
		maxQueueCap: queueCapacity,
		cb:          cb,
		cbCtx:       cbCtx,
	}, nil
}

func periodAdvertised(periods []Period, p Period) bool {
	for _, ap := range periods {
		if ap == p {
			return true
		}
	}
	return false
}

// Start marks the Context active. It is an error to Start an already
// active Context, and a Context cannot be Started again once Stopped.
func (c *Context) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return NewError("Start", ErrCodeCtxNotActive, "context already stopped")
	}
	if c.active {
		return NewError("Start", ErrCodeCtxActive, "context already active")
	}
	c.active = true
	return nil
}

// Stop is the symmetric counterpart of AllocCtx's subscribe step: it
// unrefs this Context from every driver partition it subscribed to (which
// may cause the driver's aggregated SetData to shrink, and its push-mode
// fd or pull-mode timers to be removed once no subscriber remains),
// drains and releases any residual records left in the queue, and wakes
// any reader currently blocked in Read with an empty/cancelled result.
// Free still performs final, idempotent teardown.
func (c *Context) Stop() error {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return NewError("Stop", ErrCodeCtxNotActive, "context not active")
	}
	c.active = false
	c.stopped = true
	c.mu.Unlock()

	c.unsubscribe()

	for {
		ref, ok := c.q.PopNoWait()
		if !ok {
			break
		}
		ref.Release()
	}
	c.q.Pause()
	return nil
}

// unsubscribe removes this Context's interest from every driver partition
// it holds. It is idempotent: Free calls it again only if Stop never ran.
func (c *Context) unsubscribe() {
	inst, err := c.h.reg.Instance(c.devID)
	if err != nil {
		return
	}
	_, pushMode := inst.Driver().FD()
	for _, r := range c.reqs {
		isOnDemand := r.Period == OnDemand && !pushMode
		if !isOnDemand {
			c.h.loop.Unsubscribe(c.devID, r.DataID, c.id)
		}
		if err := inst.Unsubscribe(c.id, r.DataID); err != nil {
			c.logf("unsubscribe device %d data id %d: %v", c.devID, r.DataID, err)
			continue
		}
		if !pushMode && !isOnDemand && inst.SubscriberCount(r.DataID) == 0 {
			c.h.loop.RemovePullSource(c.devID, r.DataID)
		}
	}
	if pushMode && inst.Empty() {
		resume, _ := c.h.loop.Pause(constants.PauseAckTimeout)
		c.h.loop.RemovePushSource(c.devID)
		resume()
	}
}

func (c *Context) logf(format string, args ...any) {
	if c.h.logger != nil {
		c.h.logger.Warnf(format, args...)
	}
}

// Free releases any queued records and tears down the Context. It must be
// preceded by Stop (or never Started at all); calling Free while the
// Context is active fails with ctx-active. The Context must not be used
// after Free returns.
func (c *Context) Free() error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return NewError("Free", ErrCodeCtxActive, "context must be stopped before free")
	}
	if c.freed {
		c.mu.Unlock()
		return nil
	}
	c.freed = true
	alreadyStopped := c.stopped
	c.mu.Unlock()

	if !alreadyStopped {
		c.unsubscribe()
	}
	c.q.Close()
	return nil
}

// Read drains exactly n records, presenting each to the Context's
// callback in order. It blocks until each record is available: for
// partitions backed by the driver's own cadence it waits on the queue;
// for on-demand partitions it triggers one driver.Poll call per drained
// slot. Read returns once n callbacks have fired, ctx is cancelled, or
// the Context is stopped while waiting.
func (c *Context) Read(ctx context.Context, n int) error {
	if !c.isActive() {
		return NewError("Read", ErrCodeCtxNotActive, "context not active")
	}
	for i := 0; i < n; i++ {
		if ref, ok := c.q.PopNoWait(); ok {
			c.dispatchRef(ref)
			continue
		}
		if len(c.onDemand) > 0 {
			rec, err := c.pollOnDemand()
			if err != nil {
				return err
			}
			c.dispatchRecord(rec)
			continue
		}
		ref, ok := c.q.PopWait(ctx)
		if !ok {
			return NewError("Read", ErrCodeInterrupted, "wait cancelled")
		}
		c.dispatchRef(ref)
	}
	return nil
}

// ReadNowait drains up to n already-queued records without blocking and
// without triggering on-demand production, presenting each to the
// callback. It returns the number of records delivered.
func (c *Context) ReadNowait(n int) (int, error) {
	if !c.isActive() {
		return 0, NewError("ReadNowait", ErrCodeCtxNotActive, "context not active")
	}
	refs := c.q.DrainUpTo(n)
	for _, ref := range refs {
		c.dispatchRef(ref)
	}
	return len(refs), nil
}

// ReadBytesNowait drains already-queued records, oldest first, while
// their cumulative payload size does not exceed maxBytes, presenting each
// to the callback. If the queue is non-empty it always drains at least
// the oldest record, even when that record's payload alone exceeds
// maxBytes. It never blocks and never triggers on-demand
// production. It returns the number of records delivered and their total
// payload bytes.
func (c *Context) ReadBytesNowait(maxBytes int) (records int, bytes int, err error) {
	if !c.isActive() {
		return 0, 0, NewError("ReadBytesNowait", ErrCodeCtxNotActive, "context not active")
	}
	refs := c.q.DrainBytesUpTo(maxBytes)
	total := 0
	for _, ref := range refs {
		total += len(ref.Record().Payload)
		c.dispatchRef(ref)
	}
	return len(refs), total, nil
}

// ReadAllNowait drains every record currently queued without blocking and
// without triggering on-demand production, presenting each to the
// callback. It returns the number of records delivered.
func (c *Context) ReadAllNowait() (int, error) {
	if !c.isActive() {
		return 0, NewError("ReadAllNowait", ErrCodeCtxNotActive, "context not active")
	}
	refs := c.q.DrainUpTo(c.q.Cap())
	for _, ref := range refs {
		c.dispatchRef(ref)
	}
	return len(refs), nil
}

func (c *Context) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// dispatchRef presents ref's record to the callback and releases the
// reference once the callback returns.
func (c *Context) dispatchRef(ref *record.Ref) {
	defer ref.Release()
	c.dispatchRecord(*ref.Record())
}

// dispatchRecord presents rec to the callback and records the delivery,
// with the time spent inside the callback, in the engine's Metrics.
func (c *Context) dispatchRecord(rec Record) {
	start := time.Now()
	c.cb(c.cbCtx, &rec)
	c.h.metrics.RecordDelivered(uint64(time.Since(start).Nanoseconds()))
}

// pollOnDemand synchronously polls the Context's first on-demand data id
// and returns the produced record, stamped with this device id and the
// current time.
func (c *Context) pollOnDemand() (Record, error) {
	inst, err := c.h.reg.Instance(c.devID)
	if err != nil {
		return Record{}, NewDeviceError("Read", uint8(c.devID), mapRegistryErr(err), err.Error())
	}
	recs, err := inst.Driver().Poll(DataRequest{DataID: c.onDemand[0], Period: OnDemand})
	if err != nil {
		return Record{}, NewDeviceError("Read", uint8(c.devID), ErrCodeDriverFail, err.Error())
	}
	if len(recs) > constants.MaxRecordsPerCall {
		c.logf("device %d: poll returned %d records, truncating to %d", c.devID, len(recs), constants.MaxRecordsPerCall)
		recs = recs[:constants.MaxRecordsPerCall]
	}
	if len(recs) == 0 {
		return Record{}, NewError("Read", ErrCodeEmptyQueue, "driver returned no data")
	}
	rec := recs[0]
	rec.DevID = c.devID
	rec.Timestamp = time.Now()
	return rec, nil
}

// QueueLength reports the number of records currently queued and waiting
// to be drained by Read/ReadNowait/ReadBytesNowait/ReadAllNowait.
func (c *Context) QueueLength() int { return c.q.Len() }

// MaxQueueLength reports the Context's queue capacity.
func (c *Context) MaxQueueLength() int { return c.maxQueueCap }
