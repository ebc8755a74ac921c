package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// background runs fire-and-forget side effects (durable upserts, cache
// writes) off the request/response path. Failures are supervised: every
// task error flows to one place and is logged and dropped, never
// propagated to the caller.
type background struct {
	logger *slog.Logger
	errs   chan taskError
	wg     sync.WaitGroup
	done   chan struct{}
}

type taskError struct {
	name string
	err  error
}

func newBackground(logger *slog.Logger) *background {
	b := &background{
		logger: logger,
		errs:   make(chan taskError, 16),
		done:   make(chan struct{}),
	}
	go b.supervise()
	return b
}

func (b *background) supervise() {
	defer close(b.done)
	for te := range b.errs {
		b.logger.Warn("background task failed", "task", te.name, "error", te.err)
	}
}

// Go spawns fn detached from the caller's cancellation: the request that
// scheduled the work may return before it completes.
func (b *background) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := fn(ctx); err != nil {
			b.errs <- taskError{name: name, err: err}
		}
	}()
}

// Flush waits for in-flight tasks without stopping the supervisor.
func (b *background) Flush() {
	b.wg.Wait()
}

// Close waits for in-flight tasks and stops the supervisor. Used on
// shutdown and in tests.
func (b *background) Close() {
	b.wg.Wait()
	close(b.errs)
	<-b.done
}
