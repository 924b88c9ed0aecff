package memorystore

import "time"

// TradeEvent is a single parsed aggTrade. Transient; never persisted.
type TradeEvent struct {
	Symbol       string // registry key, e.g. "BTCUSDT_spot"
	Price        float64
	Quantity     float64
	IsBuyerMaker bool
	Received     time.Time
}

// Delta is the signed CVD contribution of the trade: +Quantity when the
// taker bought (buyer was not the maker), -Quantity otherwise.
func (t TradeEvent) Delta() float64 {
	if t.IsBuyerMaker {
		return -t.Quantity
	}
	return t.Quantity
}

// Snapshot is a point-in-time capture of a symbol's indicator values at a
// flush boundary. Immutable; the unit written to storage.
type Snapshot struct {
	Timestamp    time.Time
	Symbol       string
	Price        float64
	CVD          float64
	PeriodVolume float64
}
