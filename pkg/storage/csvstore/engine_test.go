package csvstore

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"cvdcollector/internal/binance/memorystore"

	"go.uber.org/zap"
)

func testBatch(ts time.Time) []memorystore.Snapshot {
	return []memorystore.Snapshot{
		{Timestamp: ts, Symbol: "BTCUSDT_spot", Price: 50000.5, CVD: 1.5, PeriodVolume: 3.25},
		{Timestamp: ts, Symbol: "ETHUSDT_usdt-m", Price: 3000.25, CVD: -2.75, PeriodVolume: 10},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

// Dual mode, one flush batch over 2 symbols: exactly 2 new rows in the
// aggregated store and exactly 1 new row in each per-symbol store.
func TestPersistDualMode(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewEngine(dir, true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	ts := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	if err := engine.Persist(testBatch(ts)); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	agg := readCSV(t, filepath.Join(dir, AggregatedFileName))
	if len(agg) != 3 { // header + 2 rows
		t.Fatalf("aggregated rows = %d, want 3", len(agg))
	}
	if strings.Join(agg[0], ",") != "timestamp,symbol,price,cvd,period_volume" {
		t.Errorf("aggregated header = %v", agg[0])
	}
	if agg[1][1] != "BTCUSDT_spot" || agg[1][3] != "1.5" {
		t.Errorf("aggregated row 1 = %v", agg[1])
	}
	if agg[2][1] != "ETHUSDT_usdt-m" || agg[2][3] != "-2.75" {
		t.Errorf("aggregated row 2 = %v", agg[2])
	}

	for _, symbol := range []string{"BTCUSDT_spot", "ETHUSDT_usdt-m"} {
		rows := readCSV(t, filepath.Join(dir, symbol+".csv"))
		if len(rows) != 2 { // header + 1 row
			t.Fatalf("%s rows = %d, want 2", symbol, len(rows))
		}
		if strings.Join(rows[0], ",") != "timestamp,price,cvd,period_volume" {
			t.Errorf("%s header = %v", symbol, rows[0])
		}
	}

	// Dual-mode consistency: same cvd in both layouts.
	btc := readCSV(t, filepath.Join(dir, "BTCUSDT_spot.csv"))
	if btc[1][2] != agg[1][3] {
		t.Errorf("per-symbol cvd %s != aggregated cvd %s", btc[1][2], agg[1][3])
	}
}

func TestPersistAggregatedOnly(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewEngine(dir, false, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	if err := engine.Persist(testBatch(time.Now())); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "BTCUSDT_spot.csv")); !os.IsNotExist(err) {
		t.Error("per-symbol file must not exist with dual mode disabled")
	}
	agg := readCSV(t, filepath.Join(dir, AggregatedFileName))
	if len(agg) != 3 {
		t.Errorf("aggregated rows = %d, want 3", len(agg))
	}
}

func TestPersistAppendsAcrossBatches(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewEngine(dir, true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	ts := time.Now()
	for i := 0; i < 3; i++ {
		if err := engine.Persist(testBatch(ts.Add(time.Duration(i) * time.Minute))); err != nil {
			t.Fatalf("Persist %d: %v", i, err)
		}
	}

	agg := readCSV(t, filepath.Join(dir, AggregatedFileName))
	if len(agg) != 7 { // one header + 3*2 rows
		t.Errorf("aggregated rows = %d, want 7", len(agg))
	}
	btc := readCSV(t, filepath.Join(dir, "BTCUSDT_spot.csv"))
	if len(btc) != 4 { // one header + 3 rows
		t.Errorf("per-symbol rows = %d, want 4", len(btc))
	}
}

// An aggregated-target failure must not block the per-symbol writes.
func TestPersistTargetFailureIndependence(t *testing.T) {
	dir := t.TempDir()

	// Pre-create the aggregated path as a directory so opening it fails.
	if err := os.Mkdir(filepath.Join(dir, AggregatedFileName), 0755); err != nil {
		t.Fatal(err)
	}

	engine, err := NewEngine(dir, true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	err = engine.Persist(testBatch(time.Now()))
	if err == nil {
		t.Fatal("expected aggregated target error")
	}

	// Per-symbol stores still got their rows.
	for _, symbol := range []string{"BTCUSDT_spot", "ETHUSDT_usdt-m"} {
		rows := readCSV(t, filepath.Join(dir, symbol+".csv"))
		if len(rows) != 2 {
			t.Errorf("%s rows = %d, want 2 despite aggregated failure", symbol, len(rows))
		}
	}
}

func TestPersistEmptyBatch(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewEngine(dir, true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	if err := engine.Persist(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, AggregatedFileName)); !os.IsNotExist(err) {
		t.Error("empty batch must not create files")
	}
}

// A closed engine must refuse further writes instead of silently reopening
// file handles through the lazy-open pool.
func TestPersistAfterClose(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewEngine(dir, true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Persist(testBatch(time.Now())); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	aggPath := filepath.Join(dir, AggregatedFileName)
	before, err := os.Stat(aggPath)
	if err != nil {
		t.Fatal(err)
	}

	if err := engine.Persist(testBatch(time.Now())); err == nil {
		t.Fatal("Persist after Close must fail")
	}

	after, err := os.Stat(aggPath)
	if err != nil {
		t.Fatal(err)
	}
	if after.Size() != before.Size() {
		t.Errorf("aggregated store grew after Close: %d -> %d", before.Size(), after.Size())
	}
}

func TestFormatFloatRoundTrip(t *testing.T) {
	values := []float64{0, 0.5, 2.5, -2.75, 123456.789012345, 0.1 + 0.2}
	for _, v := range values {
		s := formatFloat(v)
		// Must survive CSV storage byte-for-byte and parse back to the
		// identical float64.
		back, err := strconv.ParseFloat(s, 64)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if back != v {
			t.Errorf("round trip %v -> %q -> %v", v, s, back)
		}
	}
}
