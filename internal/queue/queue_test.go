package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/behrlich/hound/internal/model"
	"github.com/behrlich/hound/internal/record"
)

func refWithSeq(seq model.SeqNo) *record.Ref {
	return record.New(model.Record{SeqNo: seq}, 1, nil)
}

func refWithPayload(seq model.SeqNo, n int) *record.Ref {
	return record.New(model.Record{SeqNo: seq, Payload: make([]byte, n)}, 1, nil)
}

func TestRing_PushPopOrder(t *testing.T) {
	r := NewRing(4)
	r.Push(refWithSeq(1))
	r.Push(refWithSeq(2))
	r.Push(refWithSeq(3))

	ref, ok := r.PopNoWait()
	require.True(t, ok)
	require.Equal(t, model.SeqNo(1), ref.Record().SeqNo)

	ref, ok = r.PopNoWait()
	require.True(t, ok)
	require.Equal(t, model.SeqNo(2), ref.Record().SeqNo)
}

func TestRing_DropOldestWhenFull(t *testing.T) {
	r := NewRing(2)
	r.Push(refWithSeq(1))
	r.Push(refWithSeq(2))
	r.Push(refWithSeq(3)) // should drop seq 1

	require.Equal(t, uint64(1), r.Dropped())
	require.Equal(t, 2, r.Len())

	ref, ok := r.PopNoWait()
	require.True(t, ok)
	require.Equal(t, model.SeqNo(2), ref.Record().SeqNo)

	ref, ok = r.PopNoWait()
	require.True(t, ok)
	require.Equal(t, model.SeqNo(3), ref.Record().SeqNo)
}

func TestRing_PopNoWaitOnEmpty(t *testing.T) {
	r := NewRing(2)
	_, ok := r.PopNoWait()
	require.False(t, ok)
}

func TestRing_DrainUpTo(t *testing.T) {
	r := NewRing(8)
	for i := 1; i <= 5; i++ {
		r.Push(refWithSeq(model.SeqNo(i)))
	}

	got := r.DrainUpTo(3)
	require.Len(t, got, 3)
	require.Equal(t, model.SeqNo(1), got[0].Record().SeqNo)
	require.Equal(t, model.SeqNo(3), got[2].Record().SeqNo)
	require.Equal(t, 2, r.Len())
}

func TestRing_DrainBytesUpTo(t *testing.T) {
	r := NewRing(8)
	r.Push(refWithPayload(1, 10))
	r.Push(refWithPayload(2, 10))
	r.Push(refWithPayload(3, 10))

	got := r.DrainBytesUpTo(15)
	require.Len(t, got, 1)
	require.Equal(t, model.SeqNo(1), got[0].Record().SeqNo)
	require.Equal(t, 2, r.Len())

	got = r.DrainBytesUpTo(20)
	require.Len(t, got, 2)
	require.Equal(t, model.SeqNo(2), got[0].Record().SeqNo)
	require.Equal(t, model.SeqNo(3), got[1].Record().SeqNo)
	require.Equal(t, 0, r.Len())
}

func TestRing_DrainBytesUpToOnEmptyReturnsNothing(t *testing.T) {
	r := NewRing(4)
	got := r.DrainBytesUpTo(100)
	require.Empty(t, got)
}

func TestRing_PauseWakesBlockedPopWait(t *testing.T) {
	r := NewRing(2)
	done := make(chan bool, 1)
	go func() {
		_, ok := r.PopWait(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	r.Pause()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("PopWait did not unblock after Pause")
	}

	r.Resume()
	r.Push(refWithSeq(1))
	ref, ok := r.PopWait(context.Background())
	require.True(t, ok)
	require.Equal(t, model.SeqNo(1), ref.Record().SeqNo)
}

func TestRing_PopWaitUnblocksOnPush(t *testing.T) {
	r := NewRing(2)
	done := make(chan *record.Ref, 1)
	go func() {
		ref, ok := r.PopWait(context.Background())
		if ok {
			done <- ref
		} else {
			done <- nil
		}
	}()

	time.Sleep(10 * time.Millisecond)
	r.Push(refWithSeq(42))

	select {
	case ref := <-done:
		require.NotNil(t, ref)
		require.Equal(t, model.SeqNo(42), ref.Record().SeqNo)
	case <-time.After(time.Second):
		t.Fatal("PopWait did not unblock after Push")
	}
}

func TestRing_PopWaitCancelled(t *testing.T) {
	r := NewRing(2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := r.PopWait(ctx)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("PopWait did not unblock after cancel")
	}
}

func TestRing_CloseReleasesQueued(t *testing.T) {
	r := NewRing(4)
	released := false
	ref := record.New(model.Record{SeqNo: 1}, 1, func(model.Record) { released = true })
	r.Push(ref)

	r.Close()
	require.True(t, released)

	_, ok := r.PopNoWait()
	require.False(t, ok)
}

func TestRing_PushAfterCloseReleasesImmediately(t *testing.T) {
	r := NewRing(4)
	r.Close()

	released := false
	ref := record.New(model.Record{SeqNo: 1}, 1, func(model.Record) { released = true })
	r.Push(ref)
	require.True(t, released)
}
