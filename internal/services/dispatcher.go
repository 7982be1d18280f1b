package services

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Job is one unit of work for a user.
type Job func(ctx context.Context)

// Dispatcher runs jobs serially per key and concurrently across keys. Webhook
// handlers acknowledge immediately and queue their work here so a user's
// messages are handled one at a time in arrival order.
type Dispatcher struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string][]Job
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Jobs receive a context that is cancelled
// when Close gives up waiting.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		queues: make(map[string][]Job),
	}
}

// Dispatch queues job behind any pending work for key.
func (d *Dispatcher) Dispatch(key string, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	pending, active := d.queues[key]
	d.queues[key] = append(pending, job)
	if !active {
		d.wg.Add(1)
		go d.drain(key)
	}
	return nil
}

// Pending returns the number of keys with queued or running work.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues)
}

// Close stops accepting jobs and waits for queued work to finish or ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

// drain runs key's jobs until its queue is empty, then releases the key.
func (d *Dispatcher) drain(key string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		pending := d.queues[key]
		if len(pending) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := pending[0]
		pending[0] = nil
		d.queues[key] = pending[1:]
		d.mu.Unlock()

		d.run(key, job)
	}
}

func (d *Dispatcher) run(key string, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked",
				"key", key,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	job(d.ctx)
}
