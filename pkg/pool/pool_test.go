package pool

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	p, err := New("test", nil)
	require.NoError(t, err)
	defer p.Release()

	assert.Equal(t, "test", p.Name())
	assert.Equal(t, DefaultPoolConfig().Capacity, p.Stats().Capacity)
}

func TestSubmitRunsTasks(t *testing.T) {
	p, err := New("test", &Config{Capacity: 10, ExpiryDuration: 5 * time.Second})
	require.NoError(t, err)
	defer p.Release()

	var counter atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			counter.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int32(100), counter.Load())
	assert.Equal(t, int64(100), p.Stats().Completed)
}

func TestSubmitAfterRelease(t *testing.T) {
	p, err := New("test", &Config{Capacity: 2, ExpiryDuration: time.Second})
	require.NoError(t, err)
	p.Release()

	assert.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
}

func TestNonblockingOverload(t *testing.T) {
	p, err := New("test", &Config{
		Capacity:       1,
		ExpiryDuration: time.Second,
		Nonblocking:    true,
	})
	require.NoError(t, err)
	defer p.Release()

	block := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		<-block
	}))

	// The single worker is busy, a nonblocking submit must be rejected.
	err = p.Submit(func() {})
	assert.ErrorIs(t, err, ErrPoolOverload)

	close(block)
	wg.Wait()
	assert.Equal(t, int64(1), p.Stats().Rejected)
}

func TestPanicIsolatedAndCounted(t *testing.T) {
	var recovered atomic.Int32
	p, err := New("test", &Config{
		Capacity:       2,
		ExpiryDuration: time.Second,
		PanicHandler: func(interface{}) {
			recovered.Add(1)
		},
	})
	require.NoError(t, err)
	defer p.Release()

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		panic("boom")
	}))
	wg.Wait()

	// The pool survives the panic and keeps accepting work.
	done := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not run task after a worker panic")
	}
	assert.Equal(t, int32(1), recovered.Load())
	assert.Equal(t, int64(1), p.Stats().Panics)
}

func TestGlobalSubmitToType(t *testing.T) {
	defer func() {
		require.NoError(t, CloseAll(time.Second))
	}()

	done := make(chan struct{})
	require.NoError(t, SubmitToType(IngestPool, func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("global pool did not run task")
	}

	_, err := GetByType(Type("unknown"))
	assert.ErrorIs(t, err, ErrPoolNotFound)
}
