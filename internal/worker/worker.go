package worker

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
)

// Task is a function that represents a background job
type Task func(ctx context.Context) error

// WorkerPool runs deferred maintenance jobs (scratch-directory cleanup
// after archive downloads, startup reconciliation sweeps) off the request
// path.
type WorkerPool struct {
	taskQueue chan Task
	done      chan struct{}
	wg        sync.WaitGroup
	isClosing atomic.Bool
}

var ErrClosing = errors.New("worker pool is shutting down")

func NewWorkerPool(size int) *WorkerPool {
	wp := &WorkerPool{
		taskQueue: make(chan Task, 256),
		done:      make(chan struct{}),
	}

	// Start the workers
	for range size {
		wp.wg.Add(1)
		go wp.startWorker()
	}

	return wp
}

func (wp *WorkerPool) startWorker() {
	defer wp.wg.Done()
	for {
		select {
		case task := <-wp.taskQueue:
			wp.run(task)
		case <-wp.done:
			// drain what was queued before shutdown
			for {
				select {
				case task := <-wp.taskQueue:
					wp.run(task)
				default:
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) run(task Task) {
	if err := task(context.Background()); err != nil {
		log.Printf("Worker task failed: %v", err)
	}
}

// Submit queues a task. Fails once shutdown has begun, even for callers
// already blocked on a full queue.
func (wp *WorkerPool) Submit(task Task) error {
	if wp.isClosing.Load() {
		return ErrClosing
	}
	select {
	case wp.taskQueue <- task:
		return nil
	case <-wp.done:
		return ErrClosing
	}
}

// Shutdown stops accepting tasks and waits for queued ones to finish.
func (wp *WorkerPool) Shutdown() {
	if wp.isClosing.Swap(true) {
		return
	}
	close(wp.done)
	wp.wg.Wait()
}
