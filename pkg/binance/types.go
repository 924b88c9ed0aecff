package binance

import "encoding/json"

// AggTradeEvent is a Binance aggregate trade message. Price and quantity
// arrive as decimal strings.
type AggTradeEvent struct {
	EventType    string `json:"e"` // "aggTrade"
	EventTime    int64  `json:"E"` // event time (ms since epoch)
	Symbol       string `json:"s"` // e.g., "BTCUSDT"
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"` // trade time (ms since epoch)
	IsBuyerMaker bool   `json:"m"` // true when the buyer was the maker (aggressive sell)
}

// StreamEnvelope is the combined-stream wrapper form
// {"stream":"btcusdt@aggTrade","data":{...}}. Raw /ws/ streams deliver the
// event object bare; both forms are accepted.
type StreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}
