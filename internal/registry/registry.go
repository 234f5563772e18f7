// Package registry implements the one-shot driver name registry and the
// per-instance lifecycle state machine: Unregistered -> Initialized ->
// Started -> Stopped -> Destroyed. It also owns subscription refcounting,
// aggregating every Context's requested (DataID, Period) pairs into the
// single SetData call a driver instance sees.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/behrlich/hound/internal/driver"
	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/model"
)

// Sentinel errors, wrapped by the public hound package into *hound.Error
// values carrying the matching ErrorCode.
var (
	ErrAlreadyRegistered = errors.New("driver name already registered")
	ErrNotRegistered      = errors.New("driver name not registered")
	ErrInUse              = errors.New("driver instance in use")
	ErrAlreadyPresent     = errors.New("device id already present")
	ErrConflicting        = errors.New("conflicting drivers for device id")
	ErrMissingDeviceIDs   = errors.New("missing device ids")
	ErrDevDoesNotExist    = errors.New("device does not exist")
	ErrInvalidState       = errors.New("operation invalid in current state")
)

// State is the lifecycle of one driver instance.
type State int

const (
	Unregistered State = iota
	Initialized
	Started
	Stopped
	Destroyed
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case Initialized:
		return "initialized"
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	case Destroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Instance is one registered, initialized driver bound to a DeviceID.
type Instance struct {
	mu    sync.Mutex
	name  string
	devID model.DeviceID
	drv   driver.Driver
	path  string
	state State

	// subs[dataID][subscriberID] = requested period. Recomputed into a
	// RequestList and pushed to drv.SetData on every change.
	subs map[model.DataID]map[uint64]model.Period
}

// Name returns the registered driver name this instance was created from.
func (i *Instance) Name() string { return i.name }

// DeviceID returns the id the registry assigned this instance.
func (i *Instance) DeviceID() model.DeviceID { return i.devID }

// State returns the instance's current lifecycle state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Driver returns the underlying driver vtable, for the I/O loop's use.
func (i *Instance) Driver() driver.Driver { return i.drv }

// Path returns the device path this instance was initialized with, or ""
// if it was not initialized with one.
func (i *Instance) Path() string { return i.path }

// SubscriberCount reports how many subscribers currently hold an interest
// in dataID.
func (i *Instance) SubscriberCount(dataID model.DataID) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.subs[dataID])
}

// Empty reports whether no subscriber holds an interest in any data id.
func (i *Instance) Empty() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, subs := range i.subs {
		if len(subs) > 0 {
			return false
		}
	}
	return true
}

func (i *Instance) transition(from, to State) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.state != from {
		return fmt.Errorf("%w: want state %s, have %s", ErrInvalidState, from, i.state)
	}
	i.state = to
	return nil
}

// Start transitions Initialized -> Started and calls the driver hook.
func (i *Instance) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.state != Initialized && i.state != Stopped {
		defer i.mu.Unlock()
		return fmt.Errorf("%w: want state initialized or stopped, have %s", ErrInvalidState, i.state)
	}
	i.mu.Unlock()
	if err := i.drv.Start(); err != nil {
		return err
	}
	return i.transition(i.State(), Started)
}

// Stop transitions Started -> Stopped and calls the driver hook.
func (i *Instance) Stop() error {
	if err := i.drv.Stop(); err != nil {
		return err
	}
	i.mu.Lock()
	i.state = Stopped
	i.mu.Unlock()
	return nil
}

// Destroy transitions to Destroyed and calls the driver hook. It fails
// with ErrInUse if any subscriber is still registered.
func (i *Instance) Destroy() error {
	i.mu.Lock()
	for _, subs := range i.subs {
		if len(subs) > 0 {
			i.mu.Unlock()
			return ErrInUse
		}
	}
	i.state = Destroyed
	i.mu.Unlock()
	return i.drv.Destroy()
}

// Subscribe registers subscriberID's interest in dataID at period,
// recomputes the aggregated request for dataID, and pushes the full
// RequestList to the driver.
func (i *Instance) Subscribe(subscriberID uint64, dataID model.DataID, period model.Period) error {
	i.mu.Lock()
	if i.subs[dataID] == nil {
		i.subs[dataID] = make(map[uint64]model.Period)
	}
	i.subs[dataID][subscriberID] = period
	list := i.aggregateLocked()
	i.mu.Unlock()
	return i.drv.SetData(list)
}

// Unsubscribe removes subscriberID's interest in dataID and pushes the
// recomputed RequestList to the driver.
func (i *Instance) Unsubscribe(subscriberID uint64, dataID model.DataID) error {
	i.mu.Lock()
	if subs, ok := i.subs[dataID]; ok {
		delete(subs, subscriberID)
		if len(subs) == 0 {
			delete(i.subs, dataID)
		}
	}
	list := i.aggregateLocked()
	i.mu.Unlock()
	return i.drv.SetData(list)
}

// UnsubscribeAll removes every interest subscriberID holds across all
// data ids. Context does not call it; it unsubscribes request by request.
func (i *Instance) UnsubscribeAll(subscriberID uint64) error {
	i.mu.Lock()
	changed := false
	for dataID, subs := range i.subs {
		if _, ok := subs[subscriberID]; ok {
			delete(subs, subscriberID)
			changed = true
			if len(subs) == 0 {
				delete(i.subs, dataID)
			}
		}
	}
	if !changed {
		i.mu.Unlock()
		return nil
	}
	list := i.aggregateLocked()
	i.mu.Unlock()
	return i.drv.SetData(list)
}

// aggregateLocked builds the RequestList the driver should see: one entry
// per subscribed DataID, at the minimum (fastest) period any subscriber
// requested. Callers must hold i.mu.
func (i *Instance) aggregateLocked() model.RequestList {
	list := make(model.RequestList, 0, len(i.subs))
	for dataID, subs := range i.subs {
		if len(subs) == 0 {
			continue
		}
		list = append(list, model.DataRequest{DataID: dataID, Period: fastestPeriod(subs)})
	}
	sort.Slice(list, func(a, b int) bool { return list[a].DataID < list[b].DataID })
	return list
}

// fastestPeriod returns the smallest non-OnDemand period among subs, or
// OnDemand if every subscriber requested pull-mode delivery.
func fastestPeriod(subs map[uint64]model.Period) model.Period {
	best := model.OnDemand
	found := false
	for _, p := range subs {
		if p == model.OnDemand {
			continue
		}
		if !found || p < best {
			best = p
			found = true
		}
	}
	return best
}

// Registry holds the one-shot name->driver-template map and the live
// instances created from it.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]driver.Driver
	instances map[model.DeviceID]*Instance
	nextDevID model.DeviceID

	// paths tracks which device path each live instance occupies, and
	// claimedDataIDs tracks which live instance has claimed each DataID
	// across its advertised schema. Both enforce the "at most one driver
	// instance" invariants at InitDriver time.
	paths          map[string]model.DeviceID
	claimedDataIDs map[model.DataID]model.DeviceID

	logger *logging.Logger
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		factories:      make(map[string]driver.Driver),
		instances:      make(map[model.DeviceID]*Instance),
		paths:          make(map[string]model.DeviceID),
		claimedDataIDs: make(map[model.DataID]model.DeviceID),
	}
}

// SetLogger installs logger for diagnostics (conflicting drivers, path
// contention). A nil logger silences these diagnostics.
func (r *Registry) SetLogger(logger *logging.Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// RegisterDriver registers drv under name. A name may be registered only
// once for the lifetime of the Registry.
func (r *Registry) RegisterDriver(name string, drv driver.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return ErrAlreadyRegistered
	}
	r.factories[name] = drv
	return nil
}

// InitDriver creates and initializes a new instance of the driver
// registered under name, assigning it the next free DeviceID. path, if
// non-empty, must not already be occupied by another live instance
// (ErrAlreadyPresent). Once initialized, none of the driver's advertised
// DataIDs may already be claimed by another live instance
// (ErrConflicting); on either failure the freshly initialized driver is
// torn down via Destroy before InitDriver returns.
func (r *Registry) InitDriver(ctx context.Context, name, path string, args []string) (*Instance, error) {
	r.mu.Lock()
	drv, ok := r.factories[name]
	if !ok {
		r.mu.Unlock()
		return nil, ErrNotRegistered
	}
	if path != "" {
		if _, occupied := r.paths[path]; occupied {
			r.mu.Unlock()
			return nil, ErrAlreadyPresent
		}
	}
	devID := r.nextDevID
	r.nextDevID++
	r.mu.Unlock()

	if err := drv.Init(ctx, path, args); err != nil {
		return nil, err
	}

	descs, err := drv.DataDesc()
	if err != nil {
		_ = drv.Destroy()
		return nil, err
	}

	r.mu.Lock()
	if path != "" {
		if _, occupied := r.paths[path]; occupied {
			r.mu.Unlock()
			_ = drv.Destroy()
			return nil, ErrAlreadyPresent
		}
	}
	for _, d := range descs {
		if owner, claimed := r.claimedDataIDs[d.Schema.DataID]; claimed {
			r.mu.Unlock()
			if r.logger != nil {
				r.logger.Warnf("init driver %q rejected: data id %d already claimed by device %d", name, d.Schema.DataID, owner)
			}
			_ = drv.Destroy()
			return nil, ErrConflicting
		}
	}

	inst := &Instance{
		name:  name,
		devID: devID,
		drv:   drv,
		path:  path,
		state: Initialized,
		subs:  make(map[model.DataID]map[uint64]model.Period),
	}

	r.instances[devID] = inst
	if path != "" {
		r.paths[path] = devID
	}
	for _, d := range descs {
		r.claimedDataIDs[d.Schema.DataID] = devID
	}
	r.mu.Unlock()
	return inst, nil
}

// Instance looks up a live instance by DeviceID.
func (r *Registry) Instance(devID model.DeviceID) (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[devID]
	if !ok {
		return nil, ErrDevDoesNotExist
	}
	return inst, nil
}

// DestroyDriver tears down the instance at devID and removes it from the
// registry, releasing its claimed path and DataIDs so a future InitDriver
// call can reclaim them. It fails with ErrInUse, leaving the instance
// registered, while any subscriber remains.
func (r *Registry) DestroyDriver(devID model.DeviceID) error {
	r.mu.Lock()
	inst, ok := r.instances[devID]
	if !ok {
		r.mu.Unlock()
		return ErrDevDoesNotExist
	}
	if !inst.Empty() {
		r.mu.Unlock()
		return ErrInUse
	}
	delete(r.instances, devID)
	if inst.path != "" {
		delete(r.paths, inst.path)
	}
	for dataID, owner := range r.claimedDataIDs {
		if owner == devID {
			delete(r.claimedDataIDs, dataID)
		}
	}
	r.mu.Unlock()
	return inst.Destroy()
}

// Snapshot returns every live instance, for diagnostics and tests.
func (r *Registry) Snapshot() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].devID < out[b].devID })
	return out
}
