package host

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// ErrStopped is returned for work submitted after Stop.
var ErrStopped = errors.New("coordinator stopped")

// Coordinator runs submitted closures one at a time, in submission order,
// on a single goroutine.
type Coordinator struct {
	tasks  chan func()
	quit   chan struct{}
	done   chan struct{}
	logger *zap.Logger

	stopOnce sync.Once
}

// NewCoordinator starts a coordinator with a queue of the given depth.
func NewCoordinator(queue int, logger *zap.Logger) *Coordinator {
	if queue < 1 {
		queue = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		tasks:  make(chan func(), queue),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
	go c.run()
	return c
}

// Submit queues fn. It blocks while the queue is full.
func (c *Coordinator) Submit(fn func()) error {
	select {
	case <-c.quit:
		return ErrStopped
	default:
	}
	select {
	case c.tasks <- fn:
		return nil
	case <-c.quit:
		return ErrStopped
	}
}

// Do runs fn on the coordinator and waits for it to finish.
func (c *Coordinator) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := c.Submit(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Stop drains queued work and stops the goroutine. Safe to call twice.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.quit) })
	<-c.done
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.tasks:
			c.exec(fn)
		case <-c.quit:
			for {
				select {
				case fn := <-c.tasks:
					c.exec(fn)
				default:
					return
				}
			}
		}
	}
}

func (c *Coordinator) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("coordinator task panicked",
				zap.Error(fmt.Errorf("panic: %v", r)),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}
