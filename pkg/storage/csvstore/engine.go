// Package csvstore implements the append-only CSV persistence layer and the
// startup recovery path that reads it back.
//
// Two layouts exist: the aggregated store ("cvd_data_all.csv") interleaves
// rows for all symbols with an explicit symbol column; per-symbol stores
// ("<KEY>.csv") hold rows for exactly one symbol. Dual mode writes both
// layouts from a single traversal of the flush batch.
package csvstore

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"cvdcollector/internal/binance/memorystore"
	"cvdcollector/metrics"

	"go.uber.org/zap"
)

const (
	// AggregatedFileName is the single multi-symbol store inside the data dir.
	AggregatedFileName = "cvd_data_all.csv"

	// TimestampLayout is the row timestamp format in both layouts.
	TimestampLayout = "2006-01-02 15:04:05"
)

var (
	aggregatedHeader = []string{"timestamp", "symbol", "price", "cvd", "period_volume"}
	perSymbolHeader  = []string{"timestamp", "price", "cvd", "period_volume"}
)

// Engine writes snapshot batches to the configured CSV targets. File
// handles are opened lazily on first write, kept in a pool keyed by symbol,
// and closed deterministically via Close. Rows are append-only; historical
// rows are never rewritten.
type Engine struct {
	dir    string
	dual   bool
	logger *zap.Logger

	mu        sync.Mutex
	closed    bool
	agg       *target
	perSymbol map[string]*target
}

type target struct {
	f *os.File
	w *csv.Writer
}

// NewEngine creates the persistence engine. With dual disabled only the
// aggregated store is written; with dual enabled both layouts are.
func NewEngine(dir string, dual bool, logger *zap.Logger) (*Engine, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Engine{
		dir:       dir,
		dual:      dual,
		logger:    logger,
		perSymbol: make(map[string]*target),
	}, nil
}

// Persist appends one row per snapshot to each configured target in a
// single pass over the batch. Targets fail independently: an aggregated
// write error does not stop per-symbol writes and vice versa. In-memory
// state is never touched here, so a partial batch after a crash only leaves
// the historical log incomplete, not the computation.
func (e *Engine) Persist(batch []memorystore.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The lazy-open pool would otherwise reopen files after Close and leak
	// the handles.
	if e.closed {
		return errors.New("csv store is closed")
	}

	var aggErr error
	var perErrs []error
	touched := make(map[string]*target)

	for _, snap := range batch {
		ts := snap.Timestamp.Format(TimestampLayout)
		price := formatFloat(snap.Price)
		cvd := formatFloat(snap.CVD)
		volume := formatFloat(snap.PeriodVolume)

		if aggErr == nil {
			aggErr = e.writeAggregated([]string{ts, snap.Symbol, price, cvd, volume})
			if aggErr != nil {
				metrics.FlushTargetFailures.WithLabelValues("aggregated").Inc()
				e.logger.Error("aggregated store write failed", zap.Error(aggErr))
			}
		}

		if e.dual {
			tgt, err := e.symbolTarget(snap.Symbol)
			if err == nil {
				err = writeRow(tgt, []string{ts, price, cvd, volume})
			}
			if err != nil {
				metrics.FlushTargetFailures.WithLabelValues("persymbol").Inc()
				e.logger.Error("per-symbol store write failed",
					zap.String("symbol", snap.Symbol), zap.Error(err))
				perErrs = append(perErrs, fmt.Errorf("%s: %w", snap.Symbol, err))
				continue
			}
			touched[snap.Symbol] = tgt
		}
	}

	if e.agg != nil && aggErr == nil {
		aggErr = flushTarget(e.agg)
	}
	for symbol, tgt := range touched {
		if err := flushTarget(tgt); err != nil {
			perErrs = append(perErrs, fmt.Errorf("%s: %w", symbol, err))
		}
	}

	return errors.Join(append([]error{aggErr}, perErrs...)...)
}

// Close flushes and closes every open handle. The engine must not be used
// afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true

	var errs []error
	if e.agg != nil {
		errs = append(errs, closeTarget(e.agg))
		e.agg = nil
	}
	for symbol, tgt := range e.perSymbol {
		if err := closeTarget(tgt); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
		delete(e.perSymbol, symbol)
	}
	return errors.Join(errs...)
}

func (e *Engine) writeAggregated(row []string) error {
	if e.agg == nil {
		tgt, err := openTarget(filepath.Join(e.dir, AggregatedFileName), aggregatedHeader)
		if err != nil {
			return err
		}
		e.agg = tgt
	}
	return writeRow(e.agg, row)
}

func (e *Engine) symbolTarget(symbol string) (*target, error) {
	if tgt, ok := e.perSymbol[symbol]; ok {
		return tgt, nil
	}
	tgt, err := openTarget(filepath.Join(e.dir, symbol+".csv"), perSymbolHeader)
	if err != nil {
		return nil, err
	}
	e.perSymbol[symbol] = tgt
	return tgt, nil
}

// openTarget opens an append-only CSV file, writing the header if the file
// is new or empty.
func openTarget(path string, header []string) (*target, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	w := csv.NewWriter(f)
	if fi.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return &target{f: f, w: w}, nil
}

func writeRow(t *target, row []string) error {
	return t.w.Write(row)
}

// flushTarget pushes buffered rows to the file and syncs it; a row is
// durable once this returns.
func flushTarget(t *target) error {
	t.w.Flush()
	if err := t.w.Error(); err != nil {
		return err
	}
	return t.f.Sync()
}

func closeTarget(t *target) error {
	flushErr := flushTarget(t)
	closeErr := t.f.Close()
	return errors.Join(flushErr, closeErr)
}

// formatFloat renders a value with the shortest representation that parses
// back to the identical float64, so recovered CVD matches bit-for-bit.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
