package reindex

import (
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// workerPool runs reindexing tasks on their own goroutines. The number of
// concurrent tasks is bounded by the scheduler, which only submits while
// it has capacity; the pool tracks in-flight work for status and shutdown.
type workerPool struct {
	logger   *slog.Logger
	group    errgroup.Group
	inFlight atomic.Int32
}

func newWorkerPool(logger *slog.Logger) *workerPool {
	return &workerPool{logger: logger.With("pool", "reindex")}
}

// submit runs fn on a new worker goroutine.
func (p *workerPool) submit(name string, fn func()) {
	p.inFlight.Add(1)
	p.group.Go(func() error {
		defer p.inFlight.Add(-1)
		p.logger.Debug("worker started", "task", name)
		fn()
		p.logger.Debug("worker finished", "task", name)
		return nil
	})
}

// wait blocks until every submitted worker returned.
func (p *workerPool) wait() {
	_ = p.group.Wait()
}

func (p *workerPool) running() int {
	return int(p.inFlight.Load())
}
