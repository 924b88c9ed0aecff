package memorystore

import (
	"sync"
	"time"
)

// CVDStore owns the in-memory indicator state for every tracked symbol.
//
// Each symbol's state carries its own mutex, so ApplyTrade and
// SnapshotAndReset are mutually exclusive per symbol while operations on
// different symbols proceed fully independently. The outer map is guarded
// separately and only for registration, eviction and iteration.
type CVDStore struct {
	globalMu sync.RWMutex
	data     map[string]*symbolState
	order    []string // registration order, drives snapshot iteration
}

type symbolState struct {
	mu             sync.Mutex
	cvd            float64
	periodVolume   float64
	lastPrice      float64
	lastUpdateTime time.Time
}

func NewCVDStore() *CVDStore {
	return &CVDStore{
		data: make(map[string]*symbolState),
	}
}

// Register creates the entry for a symbol, seeding CVD with the recovered
// value (0 for a cold start). Registering an existing symbol is a no-op so
// a registry reload cannot clobber live state.
func (s *CVDStore) Register(symbol string, seedCVD float64) {
	s.globalMu.Lock()
	defer s.globalMu.Unlock()

	if _, ok := s.data[symbol]; ok {
		return
	}
	s.data[symbol] = &symbolState{cvd: seedCVD}
	s.order = append(s.order, symbol)
}

// Remove takes one final snapshot of the symbol and evicts it. The second
// return value is false when the symbol was not registered.
func (s *CVDStore) Remove(symbol string, now time.Time) (Snapshot, bool) {
	s.globalMu.Lock()
	st, ok := s.data[symbol]
	if ok {
		delete(s.data, symbol)
		for i, sym := range s.order {
			if sym == symbol {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
	s.globalMu.Unlock()

	if !ok {
		return Snapshot{}, false
	}
	return st.snapshotAndReset(symbol, now), true
}

// ApplyTrade folds one trade into the symbol's state:
// cvd += delta, periodVolume += quantity, lastPrice = price.
// Indivisible with respect to a concurrent snapshot for the same symbol.
// Returns false if the symbol is not registered (trade is dropped).
func (s *CVDStore) ApplyTrade(symbol string, delta, quantity, price float64, now time.Time) bool {
	s.globalMu.RLock()
	st, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return false
	}

	st.mu.Lock()
	st.cvd += delta
	st.periodVolume += quantity
	st.lastPrice = price
	st.lastUpdateTime = now
	st.mu.Unlock()
	return true
}

// SnapshotAndReset captures (now, symbol, lastPrice, cvd, periodVolume) and
// resets periodVolume to 0, leaving cvd untouched. Indivisible with respect
// to concurrent ApplyTrade calls for the same symbol.
func (s *CVDStore) SnapshotAndReset(symbol string, now time.Time) (Snapshot, bool) {
	s.globalMu.RLock()
	st, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return Snapshot{}, false
	}
	return st.snapshotAndReset(symbol, now), true
}

func (st *symbolState) snapshotAndReset(symbol string, now time.Time) Snapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := Snapshot{
		Timestamp:    now,
		Symbol:       symbol,
		Price:        st.lastPrice,
		CVD:          st.cvd,
		PeriodVolume: st.periodVolume,
	}
	st.periodVolume = 0
	return snap
}

// SnapshotAll runs SnapshotAndReset over every registered symbol in
// registration order and returns the batch. Symbols that have seen no data
// yet (zero price and zero CVD) are skipped, matching the storage contract
// of no empty rows. Each symbol's lock is held only for the duration of its
// own snapshot, never across the batch.
func (s *CVDStore) SnapshotAll(now time.Time) []Snapshot {
	s.globalMu.RLock()
	order := make([]string, len(s.order))
	copy(order, s.order)
	s.globalMu.RUnlock()

	batch := make([]Snapshot, 0, len(order))
	for _, symbol := range order {
		snap, ok := s.SnapshotAndReset(symbol, now)
		if !ok {
			continue // evicted between iteration and snapshot
		}
		if snap.Price == 0 && snap.CVD == 0 {
			continue
		}
		batch = append(batch, snap)
	}
	return batch
}

// CVD reads a symbol's current accumulator without resetting anything.
func (s *CVDStore) CVD(symbol string) (float64, bool) {
	s.globalMu.RLock()
	st, ok := s.data[symbol]
	s.globalMu.RUnlock()
	if !ok {
		return 0, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cvd, true
}

// Symbols returns the registered symbols in registration order.
func (s *CVDStore) Symbols() []string {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()

	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of registered symbols.
func (s *CVDStore) Len() int {
	s.globalMu.RLock()
	defer s.globalMu.RUnlock()
	return len(s.data)
}
