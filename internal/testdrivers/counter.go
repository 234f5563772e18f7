package testdrivers

import (
	"context"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/behrlich/hound/internal/model"
)

// Counter is a pull-mode driver (no FD) whose Poll returns an 8-byte
// little-endian payload containing a value that increments by one on
// every call. It is used to exercise periodic production through the I/O
// loop without any real sensor.
type Counter struct {
	mu     sync.Mutex
	dataID model.DataID
	n      atomic.Uint64
	reqs   model.RequestList
}

// NewCounter returns a Counter driver exposing one schema entry under
// dataID.
func NewCounter(dataID model.DataID) *Counter {
	return &Counter{dataID: dataID}
}

func (c *Counter) Init(context.Context, string, []string) error { return nil }
func (c *Counter) Start() error                                 { return nil }
func (c *Counter) Stop() error                                  { return nil }
func (c *Counter) Destroy() error                               { return nil }

// DeviceName returns the fixed name this driver reports to the registry.
func (c *Counter) DeviceName() string { return "counter" }

func (c *Counter) DataDesc() ([]model.DriverDescriptor, error) {
	return []model.DriverDescriptor{{
		Enabled: true,
		AdvertisedPeriods: []model.Period{
			model.Period(1_000_000),   // 1ms
			model.Period(10_000_000),  // 10ms
			model.Period(100_000_000), // 100ms
		},
		Schema: model.SchemaDescriptor{
			DataID: c.dataID,
			Name:   "counter",
			Formats: []model.DataFormat{
				{Name: "value", Offset: 0, Length: 8, Type: model.TypeUint64},
			},
		},
	}}, nil
}

func (c *Counter) SetData(reqs model.RequestList) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = reqs
	return nil
}

func (c *Counter) FD() (int, bool) { return 0, false }

func (c *Counter) Parse([]byte) ([]model.Record, error) { return nil, nil }

func (c *Counter) Poll(req model.DataRequest) ([]model.Record, error) {
	v := c.n.Add(1)
	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, v)
	return []model.Record{{DataID: c.dataID, Payload: payload}}, nil
}

// Value returns the most recently produced counter value.
func (c *Counter) Value() uint64 {
	return c.n.Load()
}
