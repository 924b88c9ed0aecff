package csvstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cvdcollector/internal/binance/memorystore"

	"go.uber.org/zap"
)

const maxAge = 6 * 24 * time.Hour

func newTestLoader(dir string) *Loader {
	return NewLoader(dir, maxAge, zap.NewNop())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestRecoverColdStartWhenNothingExists(t *testing.T) {
	l := newTestLoader(t.TempDir())
	out := l.Recover("BTCUSDT_spot")
	if out.Source != SourceColdStart || out.CVD != 0 {
		t.Errorf("outcome = %+v, want cold start with cvd 0", out)
	}
}

func TestRecoverFromPerSymbolTail(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "BTCUSDT_spot.csv"),
		"timestamp,price,cvd,period_volume\n"+
			"2026-08-24 11:59:00,49000,1.25,3\n"+
			"2026-08-24 12:00:00,50000,2.5,4\n")

	out := newTestLoader(dir).Recover("BTCUSDT_spot")
	if out.Source != SourcePerSymbol {
		t.Fatalf("source = %s, want persymbol", out.Source)
	}
	if out.CVD != 2.5 {
		t.Errorf("cvd = %v, want 2.5 (last row)", out.CVD)
	}
}

// Round-trip: a snapshot written by the engine recovers bit-for-bit.
func TestRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	engine, err := NewEngine(dir, true, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	want := 0.1 + 0.2 // not exactly representable, stresses the formatting
	batch := []memorystore.Snapshot{
		{Timestamp: time.Now(), Symbol: "BTCUSDT_spot", Price: 50000, CVD: want, PeriodVolume: 1},
	}
	if err := engine.Persist(batch); err != nil {
		t.Fatal(err)
	}
	if err := engine.Close(); err != nil {
		t.Fatal(err)
	}

	out := newTestLoader(dir).Recover("BTCUSDT_spot")
	if out.Source != SourcePerSymbol {
		t.Fatalf("source = %s, want persymbol", out.Source)
	}
	if out.CVD != want {
		t.Errorf("recovered cvd = %v, want exactly %v", out.CVD, want)
	}
}

// Tail read must stay bounded: only the trailing chunk of a large store is
// read, and the last row still comes back correctly.
func TestRecoverLargePerSymbolStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "BTCUSDT_spot.csv")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("timestamp,price,cvd,period_volume\n")
	for i := 0; i < 5000; i++ {
		f.WriteString("2026-08-24 12:00:00,50000,1,1\n")
	}
	f.WriteString("2026-08-24 12:01:00,50001,777.5,2\n")
	f.Close()

	out := newTestLoader(dir).Recover("BTCUSDT_spot")
	if out.Source != SourcePerSymbol || out.CVD != 777.5 {
		t.Errorf("outcome = %+v, want persymbol cvd 777.5", out)
	}
}

func TestRecoverFallsBackToAggregated(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, AggregatedFileName),
		"timestamp,symbol,price,cvd,period_volume\n"+
			"2026-08-24 12:00:00,ETHUSDT_spot,3000,9.5,1\n"+
			"2026-08-24 12:00:00,BTCUSDT_spot,50000,3.5,1\n"+
			"2026-08-24 12:01:00,BTCUSDT_spot,50001,4.5,1\n")

	out := newTestLoader(dir).Recover("BTCUSDT_spot")
	if out.Source != SourceAggregated {
		t.Fatalf("source = %s, want aggregated", out.Source)
	}
	if out.CVD != 4.5 {
		t.Errorf("cvd = %v, want 4.5 (last matching row)", out.CVD)
	}

	// A symbol absent from the aggregated store cold-starts.
	out = newTestLoader(dir).Recover("SOLUSDT_spot")
	if out.Source != SourceColdStart {
		t.Errorf("source = %s, want coldstart for unknown symbol", out.Source)
	}
}

func TestRecoverHeaderOnlyPerSymbolFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "BTCUSDT_spot.csv"),
		"timestamp,price,cvd,period_volume\n")
	writeFile(t, filepath.Join(dir, AggregatedFileName),
		"timestamp,symbol,price,cvd,period_volume\n"+
			"2026-08-24 12:00:00,BTCUSDT_spot,50000,6.25,1\n")

	out := newTestLoader(dir).Recover("BTCUSDT_spot")
	if out.Source != SourceAggregated || out.CVD != 6.25 {
		t.Errorf("outcome = %+v, want aggregated cvd 6.25", out)
	}
}

// Staleness boundary: age strictly greater than maxAge is stale; exactly
// equal is still fresh.
func TestRecoverStalenessBoundary(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		age        time.Duration
		wantSource Source
	}{
		{"just inside", maxAge - time.Minute, SourcePerSymbol},
		{"exactly at boundary", maxAge, SourcePerSymbol},
		{"just beyond", maxAge + time.Minute, SourceColdStart},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "BTCUSDT_spot.csv")
			writeFile(t, path,
				"timestamp,price,cvd,period_volume\n"+
					"2026-08-18 12:00:00,50000,8.5,1\n")
			if err := os.Chtimes(path, now.Add(-tc.age), now.Add(-tc.age)); err != nil {
				t.Fatal(err)
			}

			l := newTestLoader(dir)
			l.now = func() time.Time { return now }

			out := l.Recover("BTCUSDT_spot")
			if out.Source != tc.wantSource {
				t.Errorf("age %v: source = %s, want %s", tc.age, out.Source, tc.wantSource)
			}
			if tc.wantSource == SourceColdStart && out.CVD != 0 {
				t.Errorf("stale recovery must seed cvd 0, got %v", out.CVD)
			}
		})
	}
}

// A malformed trailing row degrades to cold start, never an error.
func TestRecoverMalformedTrailingRow(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "BTCUSDT_spot.csv"),
		"timestamp,price,cvd,period_volume\n"+
			"2026-08-24 12:00:00,50000,1.5,1\n"+
			"garbage-that-is-not,a,row\n")

	out := newTestLoader(dir).Recover("BTCUSDT_spot")
	if out.Source != SourceColdStart || out.CVD != 0 {
		t.Errorf("outcome = %+v, want cold start on malformed tail", out)
	}
	if out.Reason == "" {
		t.Error("cold start must carry a reason")
	}
}

func TestRecoverStaleAggregatedStore(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	dir := t.TempDir()
	path := filepath.Join(dir, AggregatedFileName)
	writeFile(t, path,
		"timestamp,symbol,price,cvd,period_volume\n"+
			"2026-08-01 12:00:00,BTCUSDT_spot,50000,3.5,1\n")
	old := now.Add(-maxAge - time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatal(err)
	}

	l := newTestLoader(dir)
	l.now = func() time.Time { return now }

	out := l.Recover("BTCUSDT_spot")
	if out.Source != SourceColdStart {
		t.Errorf("source = %s, want coldstart for stale aggregated store", out.Source)
	}
}
