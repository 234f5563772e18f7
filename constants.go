package hound

import (
	"time"

	"github.com/behrlich/hound/internal/constants"
)

// Re-exported limits, kept in internal/constants so internal packages can
// depend on them without importing the root package.
const (
	MaxRecordsPerCall    = constants.MaxRecordsPerCall
	MaxDataRequests      = constants.MaxDataRequests
	DeviceNameMax        = constants.DeviceNameMax
	DefaultQueueCapacity = constants.DefaultQueueCapacity
	ScratchBufferSize    = constants.ScratchBufferSize
)

// PauseAckTimeout bounds how long a pause of the I/O loop waits for the
// loop to acknowledge quiescence. On timeout the pause reports that it was
// not acknowledged; the engine's own callers apply their fd-set change
// either way.
const PauseAckTimeout time.Duration = constants.PauseAckTimeout
