package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vitos/crypto_market_watch/internal/domain"
	"github.com/vitos/crypto_market_watch/internal/usecase"
)

// MockAdapter serves canned registry/wallet data.
type MockAdapter struct {
	name     string
	alive    bool
	registry *usecase.Registry
	wallet   *usecase.WalletTable
}

func (m *MockAdapter) Name() string                        { return m.name }
func (m *MockAdapter) Alive() bool                         { return m.alive }
func (m *MockAdapter) Registry() *usecase.Registry         { return m.registry }
func (m *MockAdapter) Wallet() *usecase.WalletTable        { return m.wallet }
func (m *MockAdapter) VerifySymbols(ctx context.Context) bool { return true }
func (m *MockAdapter) VerifyStates(ctx context.Context) bool  { return true }
func (m *MockAdapter) GetPrice(ctx context.Context, symbol string) float64 { return 0 }
func (m *MockAdapter) GetTickers(ctx context.Context) bool     { return true }
func (m *MockAdapter) GetBookTickers(ctx context.Context) bool { return true }
func (m *MockAdapter) GetVolumes(ctx context.Context) bool     { return true }
func (m *MockAdapter) GetMarkets(ctx context.Context) bool     { return true }
func (m *MockAdapter) GetOrderbook(ctx context.Context, symbol string, limit int) domain.OrderBook {
	return domain.OrderBook{}
}
func (m *MockAdapter) GetCandles(ctx context.Context, symbol, timeframe string, since int64, limit int) []domain.Candle {
	return nil
}
func (m *MockAdapter) GetTrades(ctx context.Context, symbol string, limit int) []domain.PublicTrade {
	return nil
}
func (m *MockAdapter) GetBalance(ctx context.Context) map[string]domain.Balance { return nil }
func (m *MockAdapter) GetAccount(ctx context.Context) domain.Account            { return domain.Account{} }
func (m *MockAdapter) PlaceOrder(ctx context.Context, req domain.OrderRequest) domain.Order {
	return domain.Order{}
}
func (m *MockAdapter) CancelOrder(ctx context.Context, symbol, orderID string) bool { return false }
func (m *MockAdapter) GetOrder(ctx context.Context, symbol, orderID string) domain.Order {
	return domain.Order{}
}
func (m *MockAdapter) GetOpenOrders(ctx context.Context, symbol string) []domain.Order { return nil }
func (m *MockAdapter) GetOrderHistory(ctx context.Context, symbol string, limit int) []domain.Order {
	return nil
}
func (m *MockAdapter) GetTradeHistory(ctx context.Context, symbol string, limit int) []domain.TradeFill {
	return nil
}
func (m *MockAdapter) GetDepositAddress(ctx context.Context, currency string) domain.DepositAddress {
	return domain.DepositAddress{}
}
func (m *MockAdapter) Withdraw(ctx context.Context, currency, address, tag string, amount float64) string {
	return ""
}
func (m *MockAdapter) GetDepositHistory(ctx context.Context, currency string, limit int) []domain.Transfer {
	return nil
}
func (m *MockAdapter) GetWithdrawalHistory(ctx context.Context, currency string, limit int) []domain.Transfer {
	return nil
}

type noopSink struct{}

func (noopSink) Emit(exchange string, payload any, code int) {}

func newMockAdapter(name string) *MockAdapter {
	reg := usecase.NewRegistry(name, noopSink{}, 1)
	reg.Append("BTCUSDT", "BTC", "USDT")
	wallet := usecase.NewWalletTable()
	wallet.Merge(usecase.CoinUpdate{Base: "BTC", Deposit: true, Withdraw: true})
	return &MockAdapter{name: name, alive: true, registry: reg, wallet: wallet}
}

func TestServer_Tickers(t *testing.T) {
	server := NewServer(0, []Adapter{newMockAdapter("binance")}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/tickers?exchange=binance", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var tickers []domain.Ticker
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickers))
	require.Len(t, tickers, 1)
	assert.Equal(t, "BTCUSDT", tickers[0].Symbol)
}

func TestServer_TickersUnknownExchange(t *testing.T) {
	server := NewServer(0, []Adapter{newMockAdapter("binance")}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/tickers?exchange=nope", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_StatesAndHealth(t *testing.T) {
	server := NewServer(0, []Adapter{newMockAdapter("upbit")}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/api/states?exchange=upbit", nil)
	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var states []domain.CoinState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &states))
	require.Len(t, states, 1)
	assert.Equal(t, "BTC", states[0].Base)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]bool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.True(t, health["upbit"])
}
