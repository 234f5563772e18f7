package hound

import "github.com/behrlich/hound/internal/driver"

// Driver is the vtable every sensor/telemetry source implements to plug
// into hound. See internal/driver for the per-method contract; it is
// aliased here so third-party driver packages implement a type from this
// module's public API rather than an internal one.
type Driver = driver.Driver
