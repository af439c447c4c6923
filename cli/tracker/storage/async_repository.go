package storage

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	log "github.com/sirupsen/logrus"
)

// AsyncRepository decouples snapshot fan-out from message application: the
// per-bus tracker goroutines hand snapshots to a worker pool instead of
// waiting for every sink on every message.
type AsyncRepository struct {
	repo   *Repository
	ch     chan Snapshot
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewAsyncRepository(repo *Repository, buffer, workers int) *AsyncRepository {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(context.Background())
	ar := &AsyncRepository{
		repo:   repo,
		ch:     make(chan Snapshot, buffer),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		ar.wg.Add(1)
		go ar.worker()
	}
	return ar
}

// worker drains the queue until it is closed, so snapshots accepted before
// Close still reach the sinks.
func (a *AsyncRepository) worker() {
	defer a.wg.Done()
	for msg := range a.ch {
		if err := a.repo.Save(msg); err != nil {
			log.WithFields(log.Fields{"bus": msg.Key(), "err": err}).Error("Failed to save snapshot")
		}
	}
}

func (a *AsyncRepository) Save(m Snapshot) error {
	select {
	case <-a.ctx.Done():
		return fmt.Errorf("async repository is closed")
	default:
	}
	select {
	case a.ch <- m:
		return nil
	case <-a.ctx.Done():
		return fmt.Errorf("async repository is closed")
	}
}

// Close stops accepting snapshots and waits for the queue to drain. The
// producers (trackers) must be stopped before calling it.
func (a *AsyncRepository) Close() {
	a.cancel()
	close(a.ch)
	a.wg.Wait()
}
