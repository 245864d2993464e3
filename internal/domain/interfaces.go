package domain

import "context"

// Exchange is the capability contract every vendor adapter implements.
//
// No operation lets a network or parse failure escape: the adapter reports
// it to its EventSink and returns the empty value for the return type.
// Missing credentials on account operations are treated the same way.
// Callers inspect the returned value's zero-ness and, if they need detail,
// subscribe to the sink.
type Exchange interface {
	Name() string
	// Alive reports the outcome of the last VerifySymbols call. It is the
	// adapter's healthcheck.
	Alive() bool

	// VerifySymbols fetches the vendor's tradable-pair list, filters it to
	// the supported quote currencies and appends one ticker record per pair
	// into the adapter's registry.
	VerifySymbols(ctx context.Context) bool
	// VerifyStates fetches the vendor wallet/network status, merges it into
	// the wallet table and propagates the flags onto matching tickers.
	VerifyStates(ctx context.Context) bool

	// GetPrice returns the last-trade price for one symbol, 0 on failure.
	GetPrice(ctx context.Context, symbol string) float64

	// Refresh operations of increasing scope. A vendor whose batch endpoint
	// returns all fields in one response may implement the narrower three
	// as aliases of GetMarkets.
	GetTickers(ctx context.Context) bool
	GetBookTickers(ctx context.Context) bool
	GetVolumes(ctx context.Context) bool
	GetMarkets(ctx context.Context) bool

	GetOrderbook(ctx context.Context, symbol string, limit int) OrderBook
	GetCandles(ctx context.Context, symbol, timeframe string, since int64, limit int) []Candle
	GetTrades(ctx context.Context, symbol string, limit int) []PublicTrade

	GetBalance(ctx context.Context) map[string]Balance
	GetAccount(ctx context.Context) Account
	PlaceOrder(ctx context.Context, req OrderRequest) Order
	CancelOrder(ctx context.Context, symbol, orderID string) bool
	GetOrder(ctx context.Context, symbol, orderID string) Order
	GetOpenOrders(ctx context.Context, symbol string) []Order
	GetOrderHistory(ctx context.Context, symbol string, limit int) []Order
	GetTradeHistory(ctx context.Context, symbol string, limit int) []TradeFill
	GetDepositAddress(ctx context.Context, currency string) DepositAddress
	Withdraw(ctx context.Context, currency, address, tag string, amount float64) string
	GetDepositHistory(ctx context.Context, currency string, limit int) []Transfer
	GetWithdrawalHistory(ctx context.Context, currency string, limit int) []Transfer
}

// Credentials are optional adapter constructor parameters; empty strings
// mean public-only operation.
type Credentials struct {
	APIKey     string
	SecretKey  string
	PassPhrase string
}

func (c Credentials) Empty() bool { return c.APIKey == "" || c.SecretKey == "" }
