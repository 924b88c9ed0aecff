// Package collector wires the pipeline together: recovery, per-symbol
// WebSocket sessions, the flush scheduler and the registry watcher.
package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cvdcollector/config"
	"cvdcollector/internal/binance/flush"
	"cvdcollector/internal/binance/memorystore"
	"cvdcollector/internal/binance/registry"
	"cvdcollector/internal/binance/stream"
	"cvdcollector/metrics"
	"cvdcollector/pkg/binance"
	"cvdcollector/pkg/storage/csvstore"
	"cvdcollector/pkg/storage/postgres"

	"go.uber.org/zap"
)

type collector struct {
	cfg    *config.Config
	store  *memorystore.CVDStore
	loader *csvstore.Loader
	sinks  []flush.Persister
	logger *zap.Logger

	sessionCtx context.Context // parent of every session context

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// Run starts the collector and blocks until ctx is cancelled, then performs
// the graceful shutdown sequence: stop registry updates, stop trade
// delivery, one final snapshot-and-flush pass, close storage.
// An empty or invalid symbol registry at launch is the one fatal error.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	entries := registry.Parse(cfg.Symbols, logger)
	if len(entries) == 0 {
		return errors.New("no valid symbols configured, nothing to monitor")
	}

	// Durable targets
	engine, err := csvstore.NewEngine(cfg.DataSaving.DataDir, cfg.DataSaving.DualModeEnabled, logger)
	if err != nil {
		return err
	}
	defer engine.Close()

	sinks := []flush.Persister{engine}
	if cfg.Postgres.Enabled {
		client, err := postgres.InitializeAndMigrateSnapshotRecord(cfg.Postgres, cfg.Log.Environment, true)
		if err != nil {
			return fmt.Errorf("failed to connect to snapshot archive DB: %w", err)
		}
		defer client.Close()
		sinks = append(sinks, postgres.NewArchive(client, 0, logger))
	}

	sessionCtx, stopSessions := context.WithCancel(context.Background())
	defer stopSessions()

	c := &collector{
		cfg:        cfg,
		store:      memorystore.NewCVDStore(),
		loader:     csvstore.NewLoader(cfg.DataSaving.DataDir, cfg.MaxAge(), logger),
		sinks:      sinks,
		logger:     logger,
		sessionCtx: sessionCtx,
		cancels:    make(map[string]context.CancelFunc),
	}

	// Recovery runs inside addSymbol, so every symbol is seeded before its
	// session can deliver the first trade.
	for _, e := range entries {
		c.addSymbol(e)
	}
	logger.Info("collector started", zap.Int("symbols", len(entries)))

	scheduler := flush.NewScheduler(c.store, sinks, cfg.FlushInterval(), logger)
	schedCtx, stopScheduler := context.WithCancel(context.Background())
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		scheduler.Run(schedCtx)
	}()

	watchCtx, stopWatcher := context.WithCancel(context.Background())
	watcher := registry.NewWatcher(config.ReadSymbols, cfg.ReloadInterval(), entries,
		c.addSymbol, c.removeSymbol, logger)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		watcher.Run(watchCtx)
	}()

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server failed", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown requested")

	// 1. No further symbol registrations. Joining the watcher here means a
	//    reload in flight cannot start sessions below this point.
	stopWatcher()
	<-watchDone
	// 2. Stop feeding trades. Cancelling the session contexts both halts
	//    delivery into the store and closes the connections, so the final
	//    flush covers every applied trade and none after it.
	stopScheduler()
	<-schedDone
	stopSessions()
	c.wg.Wait()
	// 3. One final synchronous snapshot + flush covering every symbol.
	scheduler.FlushOnce()
	// 4. Storage handles close via the deferred Close calls above.
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}

	logger.Info("collector stopped")
	return nil
}

// addSymbol seeds the symbol from durable storage, registers it and starts
// its streaming session. Used both at startup and for registry additions.
func (c *collector) addSymbol(e registry.Entry) {
	key := e.Key()

	outcome := c.loader.Recover(key)
	metrics.RecoveryOutcomes.WithLabelValues(string(outcome.Source)).Inc()
	if outcome.Source == csvstore.SourceColdStart {
		c.logger.Info("recovery cold start",
			zap.String("symbol", key),
			zap.String("reason", outcome.Reason))
	} else {
		c.logger.Info("recovery seeded",
			zap.String("symbol", key),
			zap.String("source", string(outcome.Source)),
			zap.Float64("cvd", outcome.CVD))
	}
	c.store.Register(key, outcome.CVD)

	url, err := binance.StreamURL(e.Class, e.Symbol)
	if err != nil {
		c.logger.Warn("cannot start session", zap.String("symbol", key), zap.Error(err))
		return
	}
	ws, err := binance.NewWSClient(url, key,
		c.cfg.Binance.WS.ProxyURL, c.cfg.Binance.WS.HandshakeTimeout, c.logger)
	if err != nil {
		c.logger.Warn("cannot create session", zap.String("symbol", key), zap.Error(err))
		return
	}
	ws.SetMessageHandler(stream.MakeMessageHandler(c.logger, key, c.store))
	ws.SetReconnectHook(func() {
		metrics.ReconnectAttempts.WithLabelValues(key).Inc()
	})

	sctx, cancel := context.WithCancel(c.sessionCtx)
	c.mu.Lock()
	c.cancels[key] = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ws.Run(sctx)
	}()
}

// removeSymbol stops the symbol's session, takes one final snapshot and
// persists it before evicting the state. Unrelated sessions are untouched.
func (c *collector) removeSymbol(e registry.Entry) {
	key := e.Key()

	c.mu.Lock()
	cancel, ok := c.cancels[key]
	if ok {
		delete(c.cancels, key)
	}
	c.mu.Unlock()
	if ok {
		cancel()
	}

	snap, ok := c.store.Remove(key, time.Now())
	if !ok {
		return
	}
	c.logger.Info("symbol removed", zap.String("symbol", key), zap.Float64("cvd", snap.CVD))

	if snap.Price == 0 && snap.CVD == 0 {
		return
	}
	for _, sink := range c.sinks {
		if err := sink.Persist([]memorystore.Snapshot{snap}); err != nil {
			c.logger.Warn("final snapshot persist failed",
				zap.String("symbol", key), zap.Error(err))
		}
	}
}
