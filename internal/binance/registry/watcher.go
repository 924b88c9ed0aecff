package registry

import (
	"context"
	"time"

	"cvdcollector/config"

	"go.uber.org/zap"
)

// LoadFn supplies the current symbols block; the production implementation
// re-reads the config file.
type LoadFn func() (config.SymbolsConfig, error)

// Watcher periodically re-reads the symbol registry and notifies the
// collector of additions and removals. A failed or invalid reload keeps the
// previous registry and logs a warning.
type Watcher struct {
	load     LoadFn
	interval time.Duration
	current  []Entry
	onAdd    func(Entry)
	onRemove func(Entry)
	logger   *zap.Logger
}

func NewWatcher(load LoadFn, interval time.Duration, initial []Entry,
	onAdd, onRemove func(Entry), logger *zap.Logger) *Watcher {
	return &Watcher{
		load:     load,
		interval: interval,
		current:  initial,
		onAdd:    onAdd,
		onRemove: onRemove,
		logger:   logger,
	}
}

// Run re-checks the registry every interval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce()
		}
	}
}

func (w *Watcher) checkOnce() {
	symbols, err := w.load()
	if err != nil {
		w.logger.Warn("registry reload failed, keeping previous symbols", zap.Error(err))
		return
	}

	next := Parse(symbols, w.logger)
	if len(next) == 0 {
		w.logger.Warn("registry reload produced no symbols, keeping previous symbols")
		return
	}

	added, removed := Diff(w.current, next)
	if len(added) == 0 && len(removed) == 0 {
		return
	}

	w.logger.Info("symbol registry changed",
		zap.Int("added", len(added)),
		zap.Int("removed", len(removed)))

	for _, e := range removed {
		w.onRemove(e)
	}
	for _, e := range added {
		w.onAdd(e)
	}
	w.current = next
}
