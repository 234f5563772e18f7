package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/hound/internal/model"
)

type fakeDriver struct {
	initErr    error
	startErr   error
	stopErr    error
	destroyErr error
	descs      []model.DriverDescriptor
	setDataLog []model.RequestList
}

func (f *fakeDriver) Init(context.Context, string, []string) error { return f.initErr }
func (f *fakeDriver) Start() error                                 { return f.startErr }
func (f *fakeDriver) Stop() error                                  { return f.stopErr }
func (f *fakeDriver) Destroy() error                               { return f.destroyErr }
func (f *fakeDriver) DeviceName() string                           { return "" }
func (f *fakeDriver) DataDesc() ([]model.DriverDescriptor, error) {
	return f.descs, nil
}
func (f *fakeDriver) SetData(reqs model.RequestList) error {
	cp := make(model.RequestList, len(reqs))
	copy(cp, reqs)
	f.setDataLog = append(f.setDataLog, cp)
	return nil
}
func (f *fakeDriver) FD() (int, bool) { return 0, false }
func (f *fakeDriver) Parse(data []byte) ([]model.Record, error) {
	return nil, nil
}
func (f *fakeDriver) Poll(model.DataRequest) ([]model.Record, error) {
	return nil, nil
}

func TestRegistry_RegisterDriverRejectsDuplicate(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterDriver("counter", &fakeDriver{}))
	err := r.RegisterDriver("counter", &fakeDriver{})
	require.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestRegistry_InitDriverUnknownName(t *testing.T) {
	r := New()
	_, err := r.InitDriver(context.Background(), "missing", "", nil)
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_InitDriverAssignsIncreasingDeviceIDs(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterDriver("a", &fakeDriver{}))
	require.NoError(t, r.RegisterDriver("b", &fakeDriver{}))

	i1, err := r.InitDriver(context.Background(), "a", "", nil)
	require.NoError(t, err)
	i2, err := r.InitDriver(context.Background(), "b", "", nil)
	require.NoError(t, err)

	require.NotEqual(t, i1.DeviceID(), i2.DeviceID())
}

func TestRegistry_InitDriverRejectsOccupiedPath(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterDriver("a", &fakeDriver{}))
	require.NoError(t, r.RegisterDriver("b", &fakeDriver{}))

	_, err := r.InitDriver(context.Background(), "a", "/dev/sensor0", nil)
	require.NoError(t, err)

	_, err = r.InitDriver(context.Background(), "b", "/dev/sensor0", nil)
	require.ErrorIs(t, err, ErrAlreadyPresent)
}

func TestRegistry_InitDriverRejectsConflictingDataID(t *testing.T) {
	r := New()
	require.NoError(t, r.RegisterDriver("a", &fakeDriver{
		descs: []model.DriverDescriptor{{Schema: model.SchemaDescriptor{DataID: 7}}},
	}))
	require.NoError(t, r.RegisterDriver("b", &fakeDriver{
		descs: []model.DriverDescriptor{{Schema: model.SchemaDescriptor{DataID: 7}}},
	}))

	_, err := r.InitDriver(context.Background(), "a", "", nil)
	require.NoError(t, err)

	_, err = r.InitDriver(context.Background(), "b", "", nil)
	require.ErrorIs(t, err, ErrConflicting)
}

func TestRegistry_DestroyDriverReleasesPathAndDataIDs(t *testing.T) {
	r := New()
	fd := &fakeDriver{descs: []model.DriverDescriptor{{Schema: model.SchemaDescriptor{DataID: 7}}}}
	require.NoError(t, r.RegisterDriver("a", fd))
	inst, err := r.InitDriver(context.Background(), "a", "/dev/sensor0", nil)
	require.NoError(t, err)

	require.NoError(t, r.DestroyDriver(inst.DeviceID()))

	require.NoError(t, r.RegisterDriver("b", &fakeDriver{
		descs: []model.DriverDescriptor{{Schema: model.SchemaDescriptor{DataID: 7}}},
	}))
	_, err = r.InitDriver(context.Background(), "b", "/dev/sensor0", nil)
	require.NoError(t, err)
}

func TestInstance_LifecycleTransitions(t *testing.T) {
	r := New()
	fd := &fakeDriver{}
	require.NoError(t, r.RegisterDriver("x", fd))
	inst, err := r.InitDriver(context.Background(), "x", "", nil)
	require.NoError(t, err)
	require.Equal(t, Initialized, inst.State())

	require.NoError(t, inst.Start(context.Background()))
	require.Equal(t, Started, inst.State())

	require.NoError(t, inst.Stop())
	require.Equal(t, Stopped, inst.State())

	require.NoError(t, inst.Destroy())
	require.Equal(t, Destroyed, inst.State())
}

func TestInstance_DestroyFailsWhileSubscribed(t *testing.T) {
	r := New()
	fd := &fakeDriver{}
	require.NoError(t, r.RegisterDriver("x", fd))
	inst, err := r.InitDriver(context.Background(), "x", "", nil)
	require.NoError(t, err)

	require.NoError(t, inst.Subscribe(1, model.DataID(7), model.Period(0)))
	err = inst.Destroy()
	require.True(t, errors.Is(err, ErrInUse))
}

func TestInstance_SubscribeAggregatesMinPeriod(t *testing.T) {
	r := New()
	fd := &fakeDriver{}
	require.NoError(t, r.RegisterDriver("x", fd))
	inst, err := r.InitDriver(context.Background(), "x", "", nil)
	require.NoError(t, err)

	require.NoError(t, inst.Subscribe(1, model.DataID(7), model.Period(100)))
	require.NoError(t, inst.Subscribe(2, model.DataID(7), model.Period(50)))

	require.Len(t, fd.setDataLog, 2)
	last := fd.setDataLog[len(fd.setDataLog)-1]
	require.Len(t, last, 1)
	require.Equal(t, model.Period(50), last[0].Period)
}

func TestInstance_UnsubscribeRemovesEntry(t *testing.T) {
	r := New()
	fd := &fakeDriver{}
	require.NoError(t, r.RegisterDriver("x", fd))
	inst, err := r.InitDriver(context.Background(), "x", "", nil)
	require.NoError(t, err)

	require.NoError(t, inst.Subscribe(1, model.DataID(7), model.Period(100)))
	require.NoError(t, inst.Unsubscribe(1, model.DataID(7)))

	last := fd.setDataLog[len(fd.setDataLog)-1]
	require.Empty(t, last)
}

func TestInstance_UnsubscribeAll(t *testing.T) {
	r := New()
	fd := &fakeDriver{}
	require.NoError(t, r.RegisterDriver("x", fd))
	inst, err := r.InitDriver(context.Background(), "x", "", nil)
	require.NoError(t, err)

	require.NoError(t, inst.Subscribe(1, model.DataID(1), model.Period(10)))
	require.NoError(t, inst.Subscribe(1, model.DataID(2), model.Period(20)))
	require.NoError(t, inst.UnsubscribeAll(1))

	last := fd.setDataLog[len(fd.setDataLog)-1]
	require.Empty(t, last)
}

func TestInstance_SubscriberCountAndEmpty(t *testing.T) {
	r := New()
	fd := &fakeDriver{}
	require.NoError(t, r.RegisterDriver("x", fd))
	inst, err := r.InitDriver(context.Background(), "x", "", nil)
	require.NoError(t, err)

	require.True(t, inst.Empty())
	require.NoError(t, inst.Subscribe(1, model.DataID(7), model.Period(100)))
	require.Equal(t, 1, inst.SubscriberCount(model.DataID(7)))
	require.False(t, inst.Empty())

	require.NoError(t, inst.Unsubscribe(1, model.DataID(7)))
	require.Equal(t, 0, inst.SubscriberCount(model.DataID(7)))
	require.True(t, inst.Empty())
}

func TestRegistry_DestroyDriverRemovesInstance(t *testing.T) {
	r := New()
	fd := &fakeDriver{}
	require.NoError(t, r.RegisterDriver("x", fd))
	inst, err := r.InitDriver(context.Background(), "x", "", nil)
	require.NoError(t, err)

	require.NoError(t, r.DestroyDriver(inst.DeviceID()))
	_, err = r.Instance(inst.DeviceID())
	require.ErrorIs(t, err, ErrDevDoesNotExist)
}
