// Package testdrivers provides small driver.Driver implementations used to
// exercise the registry and I/O loop in tests without any real hardware
// behind them.
package testdrivers

import (
	"context"
	"sync"

	"github.com/behrlich/hound/internal/model"
)

// NOP is a driver that registers one data stream but never produces
// anything on its own; tests use it to exercise registration, lifecycle
// and subscription bookkeeping in isolation from production.
type NOP struct {
	mu       sync.Mutex
	schema   model.SchemaDescriptor
	lastReqs model.RequestList
	started  bool
}

// NewNOP returns a NOP driver exposing one schema entry under dataID.
func NewNOP(dataID model.DataID, name string) *NOP {
	return &NOP{schema: model.SchemaDescriptor{DataID: dataID, Name: name}}
}

func (d *NOP) Init(context.Context, string, []string) error { return nil }

// DeviceName returns the name this driver was constructed with.
func (d *NOP) DeviceName() string { return d.schema.Name }
func (d *NOP) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	return nil
}
func (d *NOP) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}
func (d *NOP) Destroy() error { return nil }

func (d *NOP) DataDesc() ([]model.DriverDescriptor, error) {
	return []model.DriverDescriptor{{
		Enabled:           true,
		AdvertisedPeriods: []model.Period{model.OnDemand},
		Schema:            d.schema,
	}}, nil
}

func (d *NOP) SetData(reqs model.RequestList) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastReqs = reqs
	return nil
}

func (d *NOP) FD() (int, bool) { return 0, false }

func (d *NOP) Parse([]byte) ([]model.Record, error) { return nil, nil }

func (d *NOP) Poll(req model.DataRequest) ([]model.Record, error) {
	return []model.Record{{DataID: d.schema.DataID, Payload: nil}}, nil
}

// LastRequests returns the most recent RequestList SetData was called
// with, for assertions.
func (d *NOP) LastRequests() model.RequestList {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastReqs
}

// Started reports whether Start has been called more recently than Stop.
func (d *NOP) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}
