package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"cvdcollector/internal/binance/memorystore"
	"cvdcollector/metrics"
	"cvdcollector/pkg/binance"

	"go.uber.org/zap"
)

const statsLogInterval = 60 * time.Second

// MakeMessageHandler returns a function that handles incoming WebSocket
// messages for one symbol's aggTrade stream: parse, compute the signed
// delta, and apply it to the state store. Malformed messages are dropped
// and counted, never fatal. The handler is called from a single session
// read loop, so its local counters need no locking.
func MakeMessageHandler(logger *zap.Logger, key string, store *memorystore.CVDStore) func(msg []byte) {
	var tradeCount uint64
	lastLog := time.Now()

	return func(msg []byte) {
		ev, ok := parseAggTrade(msg)
		if !ok {
			metrics.ParseDrops.WithLabelValues(key).Inc()
			logger.Warn("dropping unparseable trade message", zap.String("symbol", key))
			return
		}
		if ev == nil {
			return // valid but irrelevant message (e.g., subscription ack)
		}

		price, err := strconv.ParseFloat(ev.Price, 64)
		if err != nil {
			metrics.ParseDrops.WithLabelValues(key).Inc()
			logger.Warn("dropping trade with bad price",
				zap.String("symbol", key), zap.String("price", ev.Price))
			return
		}
		quantity, err := strconv.ParseFloat(ev.Quantity, 64)
		if err != nil || quantity < 0 {
			metrics.ParseDrops.WithLabelValues(key).Inc()
			logger.Warn("dropping trade with bad quantity",
				zap.String("symbol", key), zap.String("quantity", ev.Quantity))
			return
		}

		trade := memorystore.TradeEvent{
			Symbol:       key,
			Price:        price,
			Quantity:     quantity,
			IsBuyerMaker: ev.IsBuyerMaker,
			Received:     time.Now(),
		}
		if !store.ApplyTrade(trade.Symbol, trade.Delta(), trade.Quantity, trade.Price, trade.Received) {
			return // symbol was evicted while the message was in flight
		}

		metrics.TradesProcessed.WithLabelValues(key).Inc()
		tradeCount++

		if now := time.Now(); now.Sub(lastLog) >= statsLogInterval {
			cvd, _ := store.CVD(key)
			logger.Info("symbol stats",
				zap.String("symbol", key),
				zap.Uint64("trades", tradeCount),
				zap.Float64("cvd", cvd),
				zap.Float64("price", price))
			lastLog = now
		}
	}
}

// parseAggTrade accepts both the bare aggTrade object and the
// combined-stream envelope. Returns (nil, true) for well-formed messages
// that are not aggTrades.
func parseAggTrade(msg []byte) (*binance.AggTradeEvent, bool) {
	var ev binance.AggTradeEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return nil, false
	}
	if ev.EventType == "aggTrade" {
		return &ev, true
	}
	if ev.EventType != "" {
		return nil, true // some other event type, ignore
	}

	var env binance.StreamEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return nil, false
	}
	if len(env.Data) == 0 {
		return nil, true // control or ack message
	}
	var inner binance.AggTradeEvent
	if err := json.Unmarshal(env.Data, &inner); err != nil {
		return nil, false
	}
	if inner.EventType != "aggTrade" {
		return nil, true
	}
	return &inner, true
}
