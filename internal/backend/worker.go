package backend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/nvdisplay-core/internal/display"
)

// workerQueueSize is the buffer of pending requests.
const workerQueueSize = 16

type workerRequest struct {
	ctx   context.Context
	fn    func(ctx context.Context) error
	reply chan error
}

// Worker runs functions one at a time on a single goroutine that owns a
// resource. The resource is released on that goroutine when the worker
// stops, including after a panic.
//
// Callers may stop waiting (timeout or cancel); the function already
// running is not interrupted and its result is discarded.
type Worker struct {
	name    string
	release func() error
	timeout time.Duration
	logger  Logger

	reqs chan workerRequest
	stop chan struct{}
	done chan struct{}

	closeOnce  sync.Once
	releaseErr error
}

// NewWorker starts a worker. release is called once, on the worker
// goroutine, when the worker stops. timeout bounds each Do; zero means
// only the caller's context applies.
func NewWorker(name string, release func() error, timeout time.Duration, logger Logger) *Worker {
	if logger == nil {
		logger = noopLogger{}
	}
	w := &Worker{
		name:    name,
		release: release,
		timeout: timeout,
		logger:  logger,
		reqs:    make(chan workerRequest, workerQueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

// Do runs fn on the worker goroutine and waits for its result. Expiry of
// the wait surfaces as display.ErrTransientIO.
func (w *Worker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	req := workerRequest{ctx: ctx, fn: fn, reply: make(chan error, 1)}

	select {
	case <-w.stop:
		return ErrClosed
	default:
	}

	select {
	case w.reqs <- req:
	case <-ctx.Done():
		return fmt.Errorf("%w: waiting for %s worker: %w", display.ErrTransientIO, w.name, ctx.Err())
	case <-w.stop:
		return ErrClosed
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: %s operation: %w", display.ErrTransientIO, w.name, ctx.Err())
	case <-w.done:
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrClosed
		}
	}
}

// Close stops the worker and waits for it to release its resource. It is
// safe to call more than once; later calls return the first result.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		<-w.done
	})
	return w.releaseErr
}

func (w *Worker) loop() {
	defer close(w.done)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker panicked, releasing resource",
				"worker", w.name,
				"panic", r,
			)
		}
		if w.release != nil {
			w.releaseErr = w.release()
		}
	}()

	for {
		select {
		case <-w.stop:
			w.drain()
			return
		case req := <-w.reqs:
			req.reply <- w.run(req)
		}
	}
}

// run executes one request, turning a panic into an error.
func (w *Worker) run(req workerRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker operation panicked",
				"worker", w.name,
				"panic", r,
			)
			err = fmt.Errorf("%s worker: operation panicked: %v", w.name, r)
		}
	}()
	return req.fn(req.ctx)
}

// drain fails requests queued when the worker stopped.
func (w *Worker) drain() {
	for {
		select {
		case req := <-w.reqs:
			req.reply <- ErrClosed
		default:
			return
		}
	}
}
