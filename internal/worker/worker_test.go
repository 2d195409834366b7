package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTasksRun(t *testing.T) {
	pool := NewWorkerPool(2)

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		err := pool.Submit(func(context.Context) error {
			ran.Add(1)
			return nil
		})
		assert.NoError(t, err)
	}

	pool.Shutdown()
	assert.Equal(t, int32(10), ran.Load())
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()

	err := pool.Submit(func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosing)
}

func TestShutdownIsIdempotent(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Shutdown()
	pool.Shutdown()
}

func TestSubmitDuringShutdown(t *testing.T) {
	pool := NewWorkerPool(2)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(func(context.Context) error { return nil })
			if err != nil {
				assert.ErrorIs(t, err, ErrClosing)
			}
		}()
	}
	pool.Shutdown()
	wg.Wait()
}

func TestFailingTaskDoesNotStopWorker(t *testing.T) {
	pool := NewWorkerPool(1)

	var ran atomic.Int32
	assert.NoError(t, pool.Submit(func(context.Context) error {
		return context.DeadlineExceeded
	}))
	assert.NoError(t, pool.Submit(func(context.Context) error {
		ran.Add(1)
		return nil
	}))

	pool.Shutdown()
	assert.Equal(t, int32(1), ran.Load())
}
