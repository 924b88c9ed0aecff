// Package flush drives the periodic snapshot-and-persist pass.
package flush

import (
	"context"
	"time"

	"cvdcollector/internal/binance/memorystore"
	"cvdcollector/metrics"

	"go.uber.org/zap"
)

// Persister receives one ordered snapshot batch per flush. Implementations
// report their own per-target failures; a returned error is logged and the
// batch is not retried (in-memory CVD stays authoritative and the next
// interval writes fresh rows).
type Persister interface {
	Persist(batch []memorystore.Snapshot) error
}

// Scheduler fires every interval, snapshots the full registered symbol set
// in registration order, and hands the batch to every sink. Sinks fail
// independently of each other.
type Scheduler struct {
	store    *memorystore.CVDStore
	sinks    []Persister
	interval time.Duration
	logger   *zap.Logger
}

func NewScheduler(store *memorystore.CVDStore, sinks []Persister,
	interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		sinks:    sinks,
		interval: interval,
		logger:   logger,
	}
}

// Run flushes every interval until ctx is cancelled. The final flush on
// shutdown is the caller's responsibility (it must happen after trade
// delivery has stopped).
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("flush scheduler started", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("flush scheduler stopped")
			return
		case <-ticker.C:
			s.FlushOnce()
		}
	}
}

// FlushOnce performs one snapshot-and-persist pass. Each symbol's lock is
// held only for its own snapshot; persistence runs entirely outside the
// state locks.
func (s *Scheduler) FlushOnce() {
	start := time.Now()
	batch := s.store.SnapshotAll(start)
	if len(batch) == 0 {
		return
	}

	var failedSinks int
	for _, sink := range s.sinks {
		if err := sink.Persist(batch); err != nil {
			failedSinks++
			s.logger.Warn("flush sink failed, in-memory state unaffected", zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	metrics.FlushRows.Add(float64(len(batch)))
	metrics.FlushDuration.Observe(elapsed.Seconds())
	s.logger.Info("flush batch persisted",
		zap.Int("rows", len(batch)),
		zap.Duration("elapsed", elapsed),
		zap.Int("failed_sinks", failedSinks))
}
