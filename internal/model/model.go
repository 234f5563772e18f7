// Package model holds the wire-level types shared by every hound
// subsystem: the registry, the I/O loop, the bounded queue and the public
// API all speak these same structs, so they live in one internal package
// that everything else imports rather than being redeclared per layer.
package model

import "time"

// DataID is an opaque identifier of a semantic data stream, unique within
// a single driver's schema (e.g. "accelerometer X").
type DataID uint32

// DeviceID is assigned by the registry when a driver instance registers
// and is stable for the lifetime of that instance.
type DeviceID uint8

// SeqNo is a per-driver-instance monotonically increasing sequence number,
// starting at 0 when the driver starts producing.
type SeqNo uint64

// Period is the nanosecond interval between successive samples. A zero
// Period means on-demand (pull) production.
type Period time.Duration

// OnDemand is the Period value denoting pull-mode production.
const OnDemand Period = 0

// Unit is the closed set of physical units a DataFormat field can carry.
type Unit int

const (
	UnitNone Unit = iota
	UnitDegree
	UnitKelvin
	UnitKgPerSecond
	UnitMeter
	UnitMetersPerSecond
	UnitMetersPerSecondSquared
	UnitPascal
	UnitPercent
	UnitRadian
	UnitRadianPerSecond
	UnitNanosecond
)

func (u Unit) String() string {
	switch u {
	case UnitNone:
		return "none"
	case UnitDegree:
		return "degree"
	case UnitKelvin:
		return "kelvin"
	case UnitKgPerSecond:
		return "kg/s"
	case UnitMeter:
		return "meter"
	case UnitMetersPerSecond:
		return "m/s"
	case UnitMetersPerSecondSquared:
		return "m/s^2"
	case UnitPascal:
		return "pascal"
	case UnitPercent:
		return "percent"
	case UnitRadian:
		return "rad"
	case UnitRadianPerSecond:
		return "rad/s"
	case UnitNanosecond:
		return "nanosecond"
	default:
		return "unknown"
	}
}

// Type is the closed set of scalar widths a DataFormat field can carry.
type Type int

const (
	TypeFloat Type = iota
	TypeDouble
	TypeInt8
	TypeUint8
	TypeInt16
	TypeUint16
	TypeInt32
	TypeUint32
	TypeInt64
	TypeUint64
	TypeBytes
)

// Size returns the width in bytes of fixed-width types, or 0 for TypeBytes
// (whose width is carried by the enclosing DataFormat.Length instead).
func (t Type) Size() int {
	switch t {
	case TypeFloat, TypeInt32, TypeUint32:
		return 4
	case TypeDouble, TypeInt64, TypeUint64:
		return 8
	case TypeInt8, TypeUint8:
		return 1
	case TypeInt16, TypeUint16:
		return 2
	default:
		return 0
	}
}

func (t Type) String() string {
	switch t {
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeInt8:
		return "i8"
	case TypeUint8:
		return "u8"
	case TypeInt16:
		return "i16"
	case TypeUint16:
		return "u16"
	case TypeInt32:
		return "i32"
	case TypeUint32:
		return "u32"
	case TypeInt64:
		return "i64"
	case TypeUint64:
		return "u64"
	case TypeBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// DataFormat describes one field within a record's payload. Length 0 means
// "remainder of the payload".
type DataFormat struct {
	Name   string
	Unit   Unit
	Offset int
	Length int
	Type   Type
}

// SchemaDescriptor is the immutable, per-driver description of one data
// stream: its id, human name and payload layout.
type SchemaDescriptor struct {
	DataID  DataID
	Name    string
	Formats []DataFormat
}

// DriverDescriptor annotates a SchemaDescriptor with what the live driver
// instance actually supports, as reported by its DataDesc hook.
type DriverDescriptor struct {
	Enabled           bool
	AdvertisedPeriods []Period
	Schema            SchemaDescriptor
}

// Record is one timestamped sample produced by a driver instance.
type Record struct {
	SeqNo     SeqNo
	DataID    DataID
	DevID     DeviceID
	Timestamp time.Time
	Payload   []byte
}

// DataRequest names one data stream a Context wants to subscribe to and
// the period it wants it delivered at. A Period of OnDemand requests
// pull-mode delivery.
type DataRequest struct {
	DataID DataID
	Period Period
}

// RequestList is an ordered set of DataRequests with no duplicate DataIDs.
type RequestList []DataRequest

// Validate enforces the RequestList-level invariants: size bound and no
// duplicate DataIDs.
func (rl RequestList) Validate(maxLen int) error {
	if len(rl) > maxLen {
		return errTooManyRequests
	}
	seen := make(map[DataID]struct{}, len(rl))
	for _, r := range rl {
		if _, ok := seen[r.DataID]; ok {
			return errDuplicateRequest
		}
		seen[r.DataID] = struct{}{}
	}
	return nil
}

// sentinel errors kept unexported: callers test them with
// IsTooManyRequests / IsDuplicateRequest, and the public hound package
// reports them as ErrCodeTooMuchDataRequested / ErrCodeDuplicateData.
var (
	errTooManyRequests  = validationError("too many data requests")
	errDuplicateRequest = validationError("duplicate data requested")
)

type validationError string

func (e validationError) Error() string { return string(e) }

// IsTooManyRequests reports whether err originated from the RequestList
// size check.
func IsTooManyRequests(err error) bool { return err == errTooManyRequests }

// IsDuplicateRequest reports whether err originated from the RequestList
// duplicate-DataID check.
func IsDuplicateRequest(err error) bool { return err == errDuplicateRequest }
