package hound

import (
	gocontext "context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/hound/internal/testdrivers"
)

func noopCallback(any, *Record) {}

func TestAllocCtx_RejectsMissingCallback(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 1, "s1")
	_, err := h.AllocCtx(devID, RequestList{{DataID: 1, Period: OnDemand}}, 0, nil, nil)
	require.True(t, IsCode(err, ErrCodeMissingCallback))
}

func TestAllocCtx_RejectsEmptyRequestList(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 1, "s1")
	_, err := h.AllocCtx(devID, nil, 0, noopCallback, nil)
	require.True(t, IsCode(err, ErrCodeNoDataRequested))
}

func TestAllocCtx_RejectsUnknownDataID(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 1, "s1")
	_, err := h.AllocCtx(devID, RequestList{{DataID: 99, Period: OnDemand}}, 0, noopCallback, nil)
	require.True(t, IsCode(err, ErrCodeIDNotInSchema))
}

func TestAllocCtx_RejectsUnadvertisedPeriod(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 1, "s1")
	_, err := h.AllocCtx(devID, RequestList{{DataID: 1, Period: Period(time.Second)}}, 0, noopCallback, nil)
	require.True(t, IsCode(err, ErrCodePeriodUnsupported))
}

func TestContext_ReadOnDemandPullsFromDriver(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 5, "s5")

	var got *Record
	cb := func(_ any, rec *Record) { got = rec }
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 5, Period: OnDemand}}, 0, cb, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	require.NoError(t, ctx.Read(gocontext.Background(), 1))
	require.NotNil(t, got)
	require.Equal(t, DataID(5), got.DataID)

	require.NoError(t, ctx.Stop())
	require.NoError(t, ctx.Free())
}

func TestContext_ReadFailsWhenNotActive(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 5, "s5")
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 5, Period: OnDemand}}, 0, noopCallback, nil)
	require.NoError(t, err)

	err = ctx.Read(gocontext.Background(), 1)
	require.True(t, IsCode(err, ErrCodeCtxNotActive))
}

func TestContext_StopThenFreeStopsFurtherDelivery(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 5, "s5")
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 5, Period: OnDemand}}, 0, noopCallback, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Start())
	require.NoError(t, ctx.Stop())
	require.NoError(t, ctx.Free())

	require.Equal(t, 0, ctx.QueueLength())
}

func TestContext_StartCannotReactivateAfterStop(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 5, "s5")
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 5, Period: OnDemand}}, 0, noopCallback, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Start())
	require.NoError(t, ctx.Stop())

	err = ctx.Start()
	require.True(t, IsCode(err, ErrCodeCtxNotActive))

	require.NoError(t, ctx.Free())
}

func TestContext_FreeWithoutStopFailsWhileActive(t *testing.T) {
	h := New(nil)
	devID := mustInitNOP(t, h, 5, "s5")
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 5, Period: OnDemand}}, 0, noopCallback, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	err = ctx.Free()
	require.True(t, IsCode(err, ErrCodeCtxActive))

	require.NoError(t, ctx.Stop())
	require.NoError(t, ctx.Free())
}

func TestContext_PeriodicProductionFansIntoQueue(t *testing.T) {
	h := New(nil)
	drv := testdrivers.NewCounter(7)
	require.NoError(t, h.RegisterDriver("counter", drv))
	devID, err := h.InitDriver(gocontext.Background(), "counter", "", "", "", nil)
	require.NoError(t, err)

	var delivered []Record
	cb := func(_ any, rec *Record) { delivered = append(delivered, *rec) }
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 7, Period: Period(10 * time.Millisecond)}}, 8, cb, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	deadline := time.Now().Add(2 * time.Second)
	for ctx.QueueLength() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Greater(t, ctx.QueueLength(), 0)

	require.NoError(t, ctx.Read(gocontext.Background(), 1))
	require.Len(t, delivered, 1)
	require.Equal(t, DataID(7), delivered[0].DataID)

	require.NoError(t, ctx.Stop())
	require.NoError(t, ctx.Free())
}

func TestContext_ReadNowaitDrainsWithoutBlocking(t *testing.T) {
	h := New(nil)
	drv := testdrivers.NewCounter(7)
	require.NoError(t, h.RegisterDriver("counter2", drv))
	devID, err := h.InitDriver(gocontext.Background(), "counter2", "", "", "", nil)
	require.NoError(t, err)

	var delivered int
	cb := func(_ any, rec *Record) { delivered++ }
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 7, Period: Period(10 * time.Millisecond)}}, 8, cb, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	deadline := time.Now().Add(2 * time.Second)
	for ctx.QueueLength() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Greater(t, ctx.QueueLength(), 0)

	n, err := ctx.ReadNowait(100)
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Equal(t, n, delivered)
	require.Equal(t, 0, ctx.QueueLength())

	n, err = ctx.ReadNowait(100)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	require.NoError(t, ctx.Stop())
	require.NoError(t, ctx.Free())
}

func TestContext_ReadBytesNowaitBoundsCumulativePayload(t *testing.T) {
	h := New(nil)
	drv := testdrivers.NewCounter(7)
	require.NoError(t, h.RegisterDriver("counter3", drv))
	devID, err := h.InitDriver(gocontext.Background(), "counter3", "", "", "", nil)
	require.NoError(t, err)

	var delivered int
	cb := func(_ any, rec *Record) { delivered++ }
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 7, Period: Period(10 * time.Millisecond)}}, 8, cb, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	deadline := time.Now().Add(2 * time.Second)
	for ctx.QueueLength() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.GreaterOrEqual(t, ctx.QueueLength(), 3)

	n, bytes, err := ctx.ReadBytesNowait(1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 1)
	require.GreaterOrEqual(t, bytes, 0)
	require.Equal(t, n, delivered)

	require.NoError(t, ctx.Stop())
	require.NoError(t, ctx.Free())
}

func TestContext_ReadAllNowaitDrainsEverything(t *testing.T) {
	h := New(nil)
	drv := testdrivers.NewCounter(7)
	require.NoError(t, h.RegisterDriver("counter4", drv))
	devID, err := h.InitDriver(gocontext.Background(), "counter4", "", "", "", nil)
	require.NoError(t, err)

	var delivered int
	cb := func(_ any, rec *Record) { delivered++ }
	ctx, err := h.AllocCtx(devID, RequestList{{DataID: 7, Period: Period(10 * time.Millisecond)}}, 8, cb, nil)
	require.NoError(t, err)
	require.NoError(t, ctx.Start())

	deadline := time.Now().Add(2 * time.Second)
	for ctx.QueueLength() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Greater(t, ctx.QueueLength(), 0)

	n, err := ctx.ReadAllNowait()
	require.NoError(t, err)
	require.Greater(t, n, 0)
	require.Equal(t, n, delivered)
	require.Equal(t, 0, ctx.QueueLength())

	require.NoError(t, ctx.Stop())
	require.NoError(t, ctx.Free())
}

func mustInitNOP(t *testing.T, h *Hound, dataID DataID, name string) DeviceID {
	t.Helper()
	drv := testdrivers.NewNOP(dataID, name)
	require.NoError(t, h.RegisterDriver(name, drv))
	devID, err := h.InitDriver(gocontext.Background(), name, "", "", "", nil)
	require.NoError(t, err)
	return devID
}
