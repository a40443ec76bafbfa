package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropOldestNeverBlocks(t *testing.T) {
	q := NewBounded[int](3, DropOldest)

	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Put(i))
	}
	assert.Equal(t, 3, q.Len())
	assert.Equal(t, uint64(2), q.Dropped())

	// Oldest two were discarded.
	v, ok := q.Get()
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestBlockPolicyWaitsForConsumer(t *testing.T) {
	q := NewBounded[int](1, Block)
	require.NoError(t, q.Put(1))

	done := make(chan struct{})
	go func() {
		_ = q.Put(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Put returned before consumer made room")
	case <-time.After(50 * time.Millisecond):
	}

	v, ok := q.Get()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Put did not unblock after Get")
	}
}

func TestGetBlocksUntilPut(t *testing.T) {
	q := NewBounded[string](2, DropOldest)

	got := make(chan string, 1)
	go func() {
		v, ok := q.Get()
		if ok {
			got <- v
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, q.Put("frame"))

	select {
	case v := <-got:
		assert.Equal(t, "frame", v)
	case <-time.After(time.Second):
		t.Fatal("Get did not observe Put")
	}
}

func TestCloseUnblocksWaiters(t *testing.T) {
	full := NewBounded[int](1, Block)
	require.NoError(t, full.Put(1))
	empty := NewBounded[int](1, Block)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := full.Put(2) // blocked: nobody drains
		assert.ErrorIs(t, err, ErrClosed)
	}()
	go func() {
		defer wg.Done()
		_, ok := empty.Get() // blocked: nothing queued
		assert.False(t, ok)
	}()

	time.Sleep(20 * time.Millisecond)
	full.Close()
	empty.Close()
	wg.Wait()

	assert.ErrorIs(t, full.Put(3), ErrClosed)
}

func TestCloseDrainsRemaining(t *testing.T) {
	q := NewBounded[int](4, DropOldest)
	require.NoError(t, q.Put(1))
	require.NoError(t, q.Put(2))
	q.Close()

	v, ok := q.Get()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	v, ok = q.Get()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = q.Get()
	assert.False(t, ok)
}

func TestTryGet(t *testing.T) {
	q := NewBounded[int](2, DropOldest)

	_, ok := q.TryGet()
	assert.False(t, ok)

	require.NoError(t, q.Put(7))
	v, ok := q.TryGet()
	require.True(t, ok)
	assert.Equal(t, 7, v)
}
