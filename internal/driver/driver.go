// Package driver declares the vtable every hound driver implements. It is
// kept separate from internal/model so that internal/registry and
// internal/ioloop can depend on driver behavior without importing the
// public hound package, which in turn re-exports Driver by alias.
package driver

import (
	"context"

	"github.com/behrlich/hound/internal/model"
)

// Driver is implemented by every sensor/telemetry source hound can manage.
// A single Driver value is registered once under a stable name and then
// instantiated (Init) per physical or logical device.
type Driver interface {
	// Init prepares the driver instance for use. It is called exactly once,
	// before any other method, with the instance in the Unregistered state.
	// path identifies the physical or logical device this instance binds to
	// (e.g. a file path, a bus address, a URL); it may be empty for drivers
	// with no addressable device. args are free-form driver-specific
	// arguments forwarded verbatim from InitDriver.
	Init(ctx context.Context, path string, args []string) error

	// Start begins production. For a push-mode driver this arms whatever
	// fd FD returns; for a pull-mode driver it is a no-op hook the
	// registry still calls for lifecycle symmetry.
	Start() error

	// Stop halts production without releasing driver resources; a stopped
	// driver can be Started again.
	Stop() error

	// DeviceName returns the name this instance reports for itself,
	// independent of the name it was registered under.
	DeviceName() string

	// Destroy releases all driver resources. No other method is called
	// after Destroy.
	Destroy() error

	// DataDesc reports which data streams this driver instance exposes and
	// at what periods, reflecting any runtime capability negotiation
	// (e.g. a sensor that only appears once an I2C probe succeeds).
	DataDesc() ([]model.DriverDescriptor, error)

	// SetData is called by the registry with the full aggregated set of
	// requests across every subscribed context whenever that set changes
	// (a context subscribes, unsubscribes, or changes a requested period).
	SetData(reqs model.RequestList) error

	// FD returns the file descriptor the I/O loop should poll for this
	// driver instance's push-mode data, or ok=false if the driver is
	// pull-only and produces only through Poll.
	FD() (fd int, ok bool)

	// Parse consumes bytes read from FD and returns the records they
	// decode to. Called only for push-mode drivers.
	Parse(data []byte) ([]model.Record, error)

	// Poll returns the records produced synchronously for req. The I/O
	// loop calls it once per period for a periodic request on a driver
	// without an FD; Context.Read calls it for an OnDemand request.
	Poll(req model.DataRequest) ([]model.Record, error)
}
