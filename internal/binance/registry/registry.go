package registry

import (
	"strings"

	"cvdcollector/config"
	"cvdcollector/pkg/binance"

	"go.uber.org/zap"
)

// Entry is one tracked symbol: the exchange pair plus the market it trades
// on. Its Key identifies the symbol everywhere downstream (state store,
// per-symbol files, aggregated symbol column).
type Entry struct {
	Symbol string // e.g., "BTCUSDT"
	Class  binance.AssetClass
}

// Key returns the registry identifier, e.g. "BTCUSDT_spot".
func (e Entry) Key() string {
	return e.Symbol + "_" + string(e.Class)
}

// Parse converts the symbols config block into an ordered entry list.
// Pairs are written "BASE/QUOTE" with an optional ":SETTLE" suffix on
// futures entries; the slash is stripped and the result uppercased.
// Invalid entries are skipped with a warning, never fatal. Entries are
// unique by Key: a pair listed twice would otherwise start two sessions
// double-counting every trade into one state entry.
func Parse(cfg config.SymbolsConfig, logger *zap.Logger) []Entry {
	seen := make(map[string]bool)
	var entries []Entry
	entries = appendParsed(entries, seen, cfg.Spot, binance.Spot, logger)
	entries = appendParsed(entries, seen, cfg.Futures, binance.USDTMargined, logger)
	entries = appendParsed(entries, seen, cfg.CoinFutures, binance.CoinMargined, logger)
	return entries
}

func appendParsed(entries []Entry, seen map[string]bool, pairs []string, class binance.AssetClass, logger *zap.Logger) []Entry {
	for _, pair := range pairs {
		if !strings.Contains(pair, "/") {
			logger.Warn("skipping invalid symbol format",
				zap.String("pair", pair),
				zap.String("class", string(class)))
			continue
		}
		// "BTC/USDT:USDT" -> "BTCUSDT"
		clean := strings.SplitN(pair, ":", 2)[0]
		clean = strings.ToUpper(strings.ReplaceAll(clean, "/", ""))
		e := Entry{Symbol: clean, Class: class}
		if seen[e.Key()] {
			logger.Warn("skipping duplicate symbol", zap.String("symbol", e.Key()))
			continue
		}
		seen[e.Key()] = true
		entries = append(entries, e)
	}
	return entries
}

// Diff computes which entries were added and which removed between two
// ordered entry lists, keyed by Entry.Key.
func Diff(old, new []Entry) (added, removed []Entry) {
	oldKeys := make(map[string]bool, len(old))
	for _, e := range old {
		oldKeys[e.Key()] = true
	}
	newKeys := make(map[string]bool, len(new))
	for _, e := range new {
		newKeys[e.Key()] = true
	}

	for _, e := range new {
		if !oldKeys[e.Key()] {
			added = append(added, e)
		}
	}
	for _, e := range old {
		if !newKeys[e.Key()] {
			removed = append(removed, e)
		}
	}
	return added, removed
}
