// Package hound implements a sensor and telemetry ingestion and fan-out
// engine: drivers produce timestamped records, either pushed through a
// polled file descriptor or pulled on demand, and a single background I/O
// loop reference-counts each record out to every Context subscribed to
// it.
package hound

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/behrlich/hound/internal/constants"
	"github.com/behrlich/hound/internal/ioloop"
	"github.com/behrlich/hound/internal/logging"
	"github.com/behrlich/hound/internal/registry"
)

// Hound is one instance of the ingestion engine: a driver registry bound
// to a single background I/O loop. Construct with New, call Run once to
// start the loop, and Shutdown to tear it down.
type Hound struct {
	reg     *registry.Registry
	loop    *ioloop.Loop
	metrics *Metrics
	logger  *logging.Logger

	nextSubscriberID atomic.Uint64
	running          atomic.Bool
}

// New returns a ready Hound instance. If observer is nil, metrics are
// still collected internally (via Metrics/Snapshot) but nothing external
// is notified. Diagnostic logging defaults to logging.Default(); override
// with SetLogger.
func New(observer Observer) *Hound {
	m := NewMetrics()
	if observer == nil {
		observer = NewMetricsObserver(m)
	}
	h := &Hound{
		reg:     registry.New(),
		loop:    ioloop.New(observer),
		metrics: m,
		logger:  logging.Default(),
	}
	h.loop.SetLogger(h.logger)
	h.reg.SetLogger(h.logger)
	return h
}

// SetLogger replaces the engine's diagnostic logger and propagates it to
// every subsystem that logs (the I/O loop and the driver registry). A nil
// logger silences diagnostics.
func (h *Hound) SetLogger(logger *logging.Logger) {
	h.logger = logger
	h.loop.SetLogger(logger)
	h.reg.SetLogger(logger)
}

// Run starts the background I/O loop. Call it before any driver is
// started; further calls while the loop is running have no effect.
func (h *Hound) Run() {
	if h.running.CompareAndSwap(false, true) {
		go h.loop.Run()
	}
}

// Shutdown stops the background I/O loop and waits for it to exit.
func (h *Hound) Shutdown() {
	if h.running.CompareAndSwap(true, false) {
		h.loop.Stop()
	}
}

// Metrics returns the engine's built-in metrics collector.
func (h *Hound) Metrics() *Metrics { return h.metrics }

// RegisterDriver registers drv under name. A name may only be registered
// once for the lifetime of the Hound instance.
func (h *Hound) RegisterDriver(name string, drv Driver) error {
	if drv == nil {
		return NewError("RegisterDriver", ErrCodeNullValue, "driver must not be nil")
	}
	if name == "" {
		return NewError("RegisterDriver", ErrCodeInvalidString, "name must not be empty")
	}
	if err := h.reg.RegisterDriver(name, drv); err != nil {
		return NewError("RegisterDriver", mapRegistryErr(err), err.Error())
	}
	return nil
}

// InitDriver creates and initializes a new instance of the driver
// registered under name, returning its assigned DeviceID. path identifies
// the physical or logical device this instance binds to and is forwarded
// to the driver's Init hook; it is also the unit the "at most one driver
// instance per device path" invariant is enforced against. schemaBaseDir
// and schemaFile are accepted for ABI parity with deployments that
// describe a driver's schema on disk, but hound itself does not parse
// schema files, so they are not forwarded anywhere. args are free-form
// driver-specific arguments forwarded to Init verbatim.
func (h *Hound) InitDriver(ctx context.Context, name, path, schemaBaseDir, schemaFile string, args []string) (DeviceID, error) {
	inst, err := h.reg.InitDriver(ctx, name, path, args)
	if err != nil {
		return 0, NewError("InitDriver", mapRegistryErr(err), err.Error())
	}
	return inst.DeviceID(), nil
}

// StartDriver transitions devID's driver to the Started state. For a
// push-mode driver, this also pauses the I/O loop just long enough to add
// its fd to the polled set.
func (h *Hound) StartDriver(ctx context.Context, devID DeviceID) error {
	inst, err := h.reg.Instance(devID)
	if err != nil {
		return NewDeviceError("StartDriver", uint8(devID), mapRegistryErr(err), err.Error())
	}
	if err := inst.Start(ctx); err != nil {
		return NewDeviceError("StartDriver", uint8(devID), ErrCodeDriverFail, err.Error())
	}
	if _, ok := inst.Driver().FD(); ok {
		resume, _ := h.loop.Pause(constants.PauseAckTimeout)
		h.loop.AddPushSource(devID, inst.Driver())
		resume()
	}
	return nil
}

// StopDriver transitions devID's driver to the Stopped state and removes
// it from the I/O loop's polled fd set if it was push-mode.
func (h *Hound) StopDriver(devID DeviceID) error {
	inst, err := h.reg.Instance(devID)
	if err != nil {
		return NewDeviceError("StopDriver", uint8(devID), mapRegistryErr(err), err.Error())
	}
	resume, _ := h.loop.Pause(constants.PauseAckTimeout)
	h.loop.RemovePushSource(devID)
	resume()
	if err := inst.Stop(); err != nil {
		return NewDeviceError("StopDriver", uint8(devID), ErrCodeDriverFail, err.Error())
	}
	return nil
}

// DestroyDriver releases devID's driver instance. It fails with
// ErrDriverInUse if any Context is still subscribed to it.
func (h *Hound) DestroyDriver(devID DeviceID) error {
	if err := h.reg.DestroyDriver(devID); err != nil {
		return NewDeviceError("DestroyDriver", uint8(devID), mapRegistryErr(err), err.Error())
	}
	return nil
}

// GetDataDesc reports the data streams devID's driver instance exposes.
func (h *Hound) GetDataDesc(devID DeviceID) ([]DriverDescriptor, error) {
	inst, err := h.reg.Instance(devID)
	if err != nil {
		return nil, NewDeviceError("GetDataDesc", uint8(devID), mapRegistryErr(err), err.Error())
	}
	descs, err := inst.Driver().DataDesc()
	if err != nil {
		return nil, NewDeviceError("GetDataDesc", uint8(devID), ErrCodeDriverFail, err.Error())
	}
	return descs, nil
}

// GetDeviceName returns the name devID's driver instance reports for
// itself via its DeviceName hook, which may differ from the name it was
// registered under.
func (h *Hound) GetDeviceName(devID DeviceID) (string, error) {
	inst, err := h.reg.Instance(devID)
	if err != nil {
		return "", NewDeviceError("GetDeviceName", uint8(devID), mapRegistryErr(err), err.Error())
	}
	return inst.Driver().DeviceName(), nil
}

// mapRegistryErr converts an internal/registry sentinel error to the
// matching public ErrorCode.
func mapRegistryErr(err error) ErrorCode {
	switch {
	case errors.Is(err, registry.ErrAlreadyRegistered):
		return ErrCodeDriverAlreadyRegistered
	case errors.Is(err, registry.ErrNotRegistered):
		return ErrCodeDriverNotRegistered
	case errors.Is(err, registry.ErrInUse):
		return ErrCodeDriverInUse
	case errors.Is(err, registry.ErrAlreadyPresent):
		return ErrCodeDriverAlreadyPresent
	case errors.Is(err, registry.ErrConflicting):
		return ErrCodeConflictingDrivers
	case errors.Is(err, registry.ErrMissingDeviceIDs):
		return ErrCodeMissingDeviceIDs
	case errors.Is(err, registry.ErrDevDoesNotExist):
		return ErrCodeDevDoesNotExist
	default:
		return ErrCodeDriverFail
	}
}
