package domain

// Side is the normalized order side. Every vendor-specific token ("Buy",
// "BID", "1", ...) is mapped to one of these two at the adapter boundary.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderBookEntry struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`
}

type OrderBook struct {
	Symbol string           `json:"symbol"`
	Asks   []OrderBookEntry `json:"asks"`
	Bids   []OrderBookEntry `json:"bids"`
}

// Ticker is the normalized market-data row for one symbol on one exchange.
// Prices and Volume24h are in the display fiat unit after bridging.
type Ticker struct {
	Symbol string `json:"symbol"`
	Base   string `json:"base"`
	Quote  string `json:"quote"`

	Last   float64 `json:"last"`
	Ask    float64 `json:"ask"`
	AskQty float64 `json:"askQty"`
	Bid    float64 `json:"bid"`
	BidQty float64 `json:"bidQty"`

	Volume24h   float64 `json:"volume24h"`
	Volume1m    float64 `json:"volume1m"`
	Previous24h float64 `json:"previous24h"`
	// SampledAt is the epoch-millisecond timestamp of the last accepted
	// volume sample, not of the last price write.
	SampledAt int64 `json:"sampledAt"`

	Active   bool `json:"active"`
	Deposit  bool `json:"deposit"`
	Withdraw bool `json:"withdraw"`

	// Suspended marks a symbol the vendor stopped reporting. Refresh
	// cycles skip suspended records until an external resync resumes them.
	Suspended bool `json:"suspended"`

	Book OrderBook `json:"book"`
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

type PublicTrade struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
	Time   int64   `json:"time"`
}
