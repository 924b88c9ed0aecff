package binance

import (
	"fmt"
	"strings"
)

// AssetClass selects the Binance market a symbol trades on. Each class has
// its own WebSocket endpoint.
type AssetClass string

const (
	Spot         AssetClass = "spot"
	USDTMargined AssetClass = "usdt-m"
	CoinMargined AssetClass = "coin-m"
)

var wsBaseURLs = map[AssetClass]string{
	Spot:         "wss://stream.binance.com:9443/ws/",
	USDTMargined: "wss://fstream.binance.com/ws/",
	CoinMargined: "wss://dstream.binance.com/ws/",
}

// IsValid checks if the AssetClass is a supported market type.
func (a AssetClass) IsValid() bool {
	_, ok := wsBaseURLs[a]
	return ok
}

// StreamName returns the aggTrade stream identifier for a symbol,
// e.g. "btcusdt@aggTrade".
func StreamName(symbol string) string {
	return strings.ToLower(symbol) + "@aggTrade"
}

// StreamURL builds the full WebSocket URL for a symbol's aggTrade stream.
func StreamURL(class AssetClass, symbol string) (string, error) {
	base, ok := wsBaseURLs[class]
	if !ok {
		return "", fmt.Errorf("unsupported asset class: %s", class)
	}
	return base + StreamName(symbol), nil
}
