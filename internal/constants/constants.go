// Package constants holds ABI-stable limits shared across the hound tree.
package constants

import "time"

const (
	// MaxRecordsPerCall bounds how many records a single driver Parse/Poll
	// invocation may emit. The I/O loop allocates its scratch record slice
	// at this size.
	MaxRecordsPerCall = 1000

	// MaxDataRequests bounds the size of a RequestList accepted by AllocCtx.
	MaxDataRequests = 1000

	// DeviceNameMax is the maximum length, including the NUL terminator,
	// of a driver-reported device name.
	DeviceNameMax = 32

	// DefaultQueueCapacity is used when a Context is allocated without an
	// explicit capacity override.
	DefaultQueueCapacity = 256

	// ScratchBufferSize is the size of the per-fd scratch buffer the I/O
	// loop reads parse-style driver bytes into before invoking Parse.
	ScratchBufferSize = 64 * 1024
)

// PauseAckTimeout bounds how long Pause() waits for the I/O loop to
// acknowledge quiescence; on timeout Pause returns acked=false.
const PauseAckTimeout = 5 * time.Second
