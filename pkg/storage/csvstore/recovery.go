package csvstore

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// tailChunkSize bounds the trailing read of a per-symbol store, keeping
// recovery cost independent of total store size.
const tailChunkSize = 4096

// Source identifies where a symbol's CVD was recovered from.
type Source string

const (
	SourcePerSymbol  Source = "persymbol"
	SourceAggregated Source = "aggregated"
	SourceColdStart  Source = "coldstart"
)

// Outcome is the result of one symbol's recovery.
type Outcome struct {
	Symbol string
	CVD    float64
	Source Source
	Reason string // cold start reason, empty when seeded
}

// Loader reconstructs per-symbol CVD from durable storage at startup. It
// prefers the per-symbol store (bounded tail read); the aggregated store is
// a fallback whose cost grows with its size. A source older than maxAge is
// discarded (age strictly greater than maxAge counts as stale; exactly
// equal is still fresh). Recovery never fails: any unreadable or malformed
// state degrades to a cold start.
type Loader struct {
	dir    string
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewLoader(dir string, maxAge time.Duration, logger *zap.Logger) *Loader {
	return &Loader{
		dir:    dir,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger,
	}
}

// Recover seeds one symbol. periodVolume always restarts at 0; only CVD is
// carried over.
func (l *Loader) Recover(symbol string) Outcome {
	if out, done := l.fromPerSymbol(symbol); done {
		return out
	}
	if out, done := l.fromAggregated(symbol); done {
		return out
	}
	return l.coldStart(symbol, "no prior state found")
}

// fromPerSymbol attempts the cheap path. done=false means the store was
// absent or empty and the aggregated fallback should run.
func (l *Loader) fromPerSymbol(symbol string) (Outcome, bool) {
	path := filepath.Join(l.dir, symbol+".csv")
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return Outcome{}, false
	}

	if l.stale(fi.ModTime()) {
		return l.coldStart(symbol, "per-symbol store too old"), true
	}

	line, err := lastLine(path)
	if err != nil {
		l.logger.Warn("failed to read per-symbol store tail",
			zap.String("symbol", symbol), zap.Error(err))
		return l.coldStart(symbol, "unreadable per-symbol store"), true
	}
	if line == "" || strings.HasPrefix(line, "timestamp") {
		return Outcome{}, false // header only, treat as empty
	}

	// Layout: timestamp,price,cvd,period_volume
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		l.logger.Warn("malformed trailing row in per-symbol store",
			zap.String("symbol", symbol), zap.String("row", line))
		return l.coldStart(symbol, "malformed trailing row"), true
	}
	cvd, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		l.logger.Warn("malformed trailing row in per-symbol store",
			zap.String("symbol", symbol), zap.String("row", line))
		return l.coldStart(symbol, "malformed trailing row"), true
	}

	return Outcome{Symbol: symbol, CVD: cvd, Source: SourcePerSymbol}, true
}

// fromAggregated scans the whole aggregated store for the symbol's last
// row. done=false means the store was absent or held no usable row.
func (l *Loader) fromAggregated(symbol string) (Outcome, bool) {
	path := filepath.Join(l.dir, AggregatedFileName)
	fi, err := os.Stat(path)
	if err != nil || fi.Size() == 0 {
		return Outcome{}, false
	}

	if l.stale(fi.ModTime()) {
		return l.coldStart(symbol, "aggregated store too old"), true
	}

	f, err := os.Open(path)
	if err != nil {
		l.logger.Warn("failed to open aggregated store",
			zap.String("symbol", symbol), zap.Error(err))
		return l.coldStart(symbol, "unreadable aggregated store"), true
	}
	defer f.Close()

	// Layout: timestamp,symbol,price,cvd,period_volume. Keep the last
	// matching row.
	var lastRow string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, ",", 3)
		if len(parts) >= 2 && parts[1] == symbol {
			lastRow = line
		}
	}
	if err := scanner.Err(); err != nil {
		l.logger.Warn("failed to scan aggregated store",
			zap.String("symbol", symbol), zap.Error(err))
		return l.coldStart(symbol, "unreadable aggregated store"), true
	}
	if lastRow == "" {
		return Outcome{}, false
	}

	parts := strings.Split(lastRow, ",")
	if len(parts) < 4 {
		l.logger.Warn("malformed row in aggregated store",
			zap.String("symbol", symbol), zap.String("row", lastRow))
		return l.coldStart(symbol, "malformed trailing row"), true
	}
	cvd, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		l.logger.Warn("malformed row in aggregated store",
			zap.String("symbol", symbol), zap.String("row", lastRow))
		return l.coldStart(symbol, "malformed trailing row"), true
	}

	return Outcome{Symbol: symbol, CVD: cvd, Source: SourceAggregated}, true
}

func (l *Loader) coldStart(symbol, reason string) Outcome {
	return Outcome{Symbol: symbol, Source: SourceColdStart, Reason: reason}
}

func (l *Loader) stale(modTime time.Time) bool {
	return l.now().Sub(modTime) > l.maxAge
}

// lastLine returns the last non-empty line of the file, reading at most
// tailChunkSize bytes from the end.
func lastLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", err
	}
	chunk := fi.Size()
	if chunk > tailChunkSize {
		chunk = tailChunkSize
	}
	if _, err := f.Seek(-chunk, io.SeekEnd); err != nil {
		return "", err
	}

	buf := make([]byte, chunk)
	if _, err := io.ReadFull(f, buf); err != nil {
		return "", err
	}

	lines := strings.Split(string(buf), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimRight(lines[i], "\r"); line != "" {
			return line, nil
		}
	}
	return "", nil
}
