package hound

import "github.com/behrlich/hound/internal/model"

// Public aliases of the shared data model. Kept as a single source of
// truth in internal/model so every internal package speaks the same
// types without importing this package.
type (
	DataID           = model.DataID
	DeviceID         = model.DeviceID
	SeqNo            = model.SeqNo
	Period           = model.Period
	Unit             = model.Unit
	Type             = model.Type
	DataFormat       = model.DataFormat
	SchemaDescriptor = model.SchemaDescriptor
	DriverDescriptor = model.DriverDescriptor
	Record           = model.Record
	DataRequest      = model.DataRequest
	RequestList      = model.RequestList
)

// OnDemand requests pull-mode delivery: the driver is polled once per
// drained slot rather than on a fixed period.
const OnDemand = model.OnDemand

// Callback receives one drained record at a time from Read, ReadNowait,
// ReadBytesNowait, and ReadAllNowait. rec must not be retained past the
// callback's return; the underlying reference is released once the
// callback returns.
type Callback func(cbCtx any, rec *Record)

const (
	UnitNone                   = model.UnitNone
	UnitDegree                 = model.UnitDegree
	UnitKelvin                 = model.UnitKelvin
	UnitKgPerSecond            = model.UnitKgPerSecond
	UnitMeter                  = model.UnitMeter
	UnitMetersPerSecond        = model.UnitMetersPerSecond
	UnitMetersPerSecondSquared = model.UnitMetersPerSecondSquared
	UnitPascal                 = model.UnitPascal
	UnitPercent                = model.UnitPercent
	UnitRadian                 = model.UnitRadian
	UnitRadianPerSecond        = model.UnitRadianPerSecond
	UnitNanosecond             = model.UnitNanosecond
)

const (
	TypeFloat  = model.TypeFloat
	TypeDouble = model.TypeDouble
	TypeInt8   = model.TypeInt8
	TypeUint8  = model.TypeUint8
	TypeInt16  = model.TypeInt16
	TypeUint16 = model.TypeUint16
	TypeInt32  = model.TypeInt32
	TypeUint32 = model.TypeUint32
	TypeInt64  = model.TypeInt64
	TypeUint64 = model.TypeUint64
	TypeBytes  = model.TypeBytes
)
