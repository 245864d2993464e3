package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

type sinkEvent struct {
	exchange string
	payload  string
	code     int
}

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	events []sinkEvent
}

func (s *recordingSink) Emit(exchange string, payload any, code int) {
	s.events = append(s.events, sinkEvent{exchange, fmt.Sprint(payload), code})
}

func newTestRegistry(sink domain.EventSink) *Registry {
	reg := NewRegistry("testex", sink, 99)
	reg.SetVolumeBases(1000, 100)
	return reg
}

func TestRegistry_MergeVolumeScenario(t *testing.T) {
	sink := &recordingSink{}
	reg := newTestRegistry(sink)
	reg.Append("BTC_USDT", "BTC", "USDT")

	now := time.UnixMilli(1_700_000_000_000)
	reg.timeNow = func() time.Time { return now }

	// first refresh: no baseline yet
	reg.Merge(map[string]MarketDatum{
		"BTC_USDT": {Symbol: "BTC_USDT", Last: 50_000, RawVolume24h: 1_000_000, HasVolume: true},
	})

	ticker, ok := reg.Lookup("BTC_USDT")
	require.True(t, ok)
	assert.Equal(t, float64(1000), ticker.Volume24h)
	assert.Equal(t, float64(0), ticker.Volume1m)
	assert.Equal(t, float64(1_000_000), ticker.Previous24h)

	// second refresh 61 seconds later
	now = now.Add(61 * time.Second)
	reg.Merge(map[string]MarketDatum{
		"BTC_USDT": {Symbol: "BTC_USDT", Last: 50_100, RawVolume24h: 1_050_000, HasVolume: true},
	})

	ticker, _ = reg.Lookup("BTC_USDT")
	assert.Equal(t, float64(1050), ticker.Volume24h)
	assert.Equal(t, float64(500), ticker.Volume1m)
	assert.Equal(t, float64(1_050_000), ticker.Previous24h)
	assert.Empty(t, sink.events)
}

func TestRegistry_FastRefreshKeepsRateWindow(t *testing.T) {
	reg := newTestRegistry(&recordingSink{})
	reg.Append("ETH_USDT", "ETH", "USDT")

	now := time.UnixMilli(1_700_000_000_000)
	reg.timeNow = func() time.Time { return now }

	reg.Merge(map[string]MarketDatum{
		"ETH_USDT": {Symbol: "ETH_USDT", Last: 3000, RawVolume24h: 500_000, HasVolume: true},
	})
	first, _ := reg.Lookup("ETH_USDT")

	// 30 seconds later: inside the window
	now = now.Add(30 * time.Second)
	reg.Merge(map[string]MarketDatum{
		"ETH_USDT": {Symbol: "ETH_USDT", Last: 3010, RawVolume24h: 700_000, HasVolume: true},
	})

	second, _ := reg.Lookup("ETH_USDT")
	assert.Equal(t, first.Volume1m, second.Volume1m)
	assert.Equal(t, first.Previous24h, second.Previous24h)
	assert.Equal(t, first.SampledAt, second.SampledAt)
	assert.Equal(t, float64(3010), second.Last, "price still refreshes inside the window")
}

func TestRegistry_MissingSymbolSuspendsWithOneEvent(t *testing.T) {
	sink := &recordingSink{}
	reg := newTestRegistry(sink)
	reg.Append("GONE_USDT", "GONE", "USDT")
	reg.Append("BTC_USDT", "BTC", "USDT")

	updated := reg.Merge(map[string]MarketDatum{
		"BTC_USDT": {Symbol: "BTC_USDT", Last: 50_000},
	})

	assert.Equal(t, 1, updated, "the rest of the batch still lands")
	require.Len(t, sink.events, 1)
	assert.Equal(t, "testex", sink.events[0].exchange)
	assert.Equal(t, 99, sink.events[0].code)

	gone, _ := reg.Lookup("GONE_USDT")
	assert.True(t, gone.Suspended)
	btc, _ := reg.Lookup("BTC_USDT")
	assert.Equal(t, float64(50_000), btc.Last)
}

func TestRegistry_SuspendedRecordIsNeverMutated(t *testing.T) {
	sink := &recordingSink{}
	reg := newTestRegistry(sink)
	reg.Append("GONE_USDT", "GONE", "USDT")

	reg.Merge(map[string]MarketDatum{}) // suspends the record
	require.Len(t, sink.events, 1)

	// the vendor starts reporting it again, but the record stays frozen
	// until an external resync resumes it
	reg.Merge(map[string]MarketDatum{
		"GONE_USDT": {Symbol: "GONE_USDT", Last: 123, RawVolume24h: 1_000_000, HasVolume: true},
	})
	ticker, _ := reg.Lookup("GONE_USDT")
	assert.True(t, ticker.Suspended)
	assert.Equal(t, float64(0), ticker.Last)
	assert.Equal(t, float64(0), ticker.Volume24h)
	assert.Len(t, sink.events, 1, "no repeat events for a suspended record")

	reg.Resume("GONE_USDT")
	reg.Merge(map[string]MarketDatum{
		"GONE_USDT": {Symbol: "GONE_USDT", Last: 123},
	})
	ticker, _ = reg.Lookup("GONE_USDT")
	assert.False(t, ticker.Suspended)
	assert.Equal(t, float64(123), ticker.Last)
}

func TestRegistry_OneScalarPerRecordPerCall(t *testing.T) {
	reg := newTestRegistry(&recordingSink{})
	reg.SetRates(1350, 90_000_000)
	reg.Append("BTC_USDT", "BTC", "USDT")
	reg.Append("ETH_BTC", "ETH", "BTC")
	reg.Append("XRP_KRW", "XRP", "KRW")

	reg.Merge(map[string]MarketDatum{
		"BTC_USDT": {Symbol: "BTC_USDT", Last: 10, Ask: 11, AskQty: 2, Bid: 9, BidQty: 3, HasBook: true},
		"ETH_BTC":  {Symbol: "ETH_BTC", Last: 0.05, Ask: 0.051, Bid: 0.049, HasBook: true},
		"XRP_KRW":  {Symbol: "XRP_KRW", Last: 700, Ask: 701, Bid: 699, HasBook: true},
	})

	btc, _ := reg.Lookup("BTC_USDT")
	assert.Equal(t, float64(13500), btc.Last)
	assert.Equal(t, float64(14850), btc.Ask)
	assert.Equal(t, float64(12150), btc.Bid)
	assert.Equal(t, float64(2), btc.AskQty, "quantities are not bridged")

	eth, _ := reg.Lookup("ETH_BTC")
	assert.InDelta(t, 0.05*90_000_000, eth.Last, 1e-6)
	assert.InDelta(t, 0.051*90_000_000, eth.Ask, 1e-6)
	assert.InDelta(t, 0.049*90_000_000, eth.Bid, 1e-6)

	xrp, _ := reg.Lookup("XRP_KRW")
	assert.Equal(t, float64(700), xrp.Last)
}

func TestRegistry_SetLastBridges(t *testing.T) {
	reg := newTestRegistry(&recordingSink{})
	reg.SetRates(2, 0)
	reg.Append("BTC_USDT", "BTC", "USDT")

	reg.SetLast("BTC_USDT", 100)
	ticker, _ := reg.Lookup("BTC_USDT")
	assert.Equal(t, float64(200), ticker.Last)

	// unknown symbols are ignored
	reg.SetLast("NOPE_USDT", 100)
}

func TestRegistry_AppendIsIdempotentAndResumes(t *testing.T) {
	reg := newTestRegistry(&recordingSink{})
	assert.True(t, reg.Append("BTC_USDT", "BTC", "USDT"))
	assert.False(t, reg.Append("BTC_USDT", "BTC", "USDT"))
	assert.Equal(t, 1, reg.Len())

	reg.Merge(map[string]MarketDatum{}) // suspend
	reg.Append("BTC_USDT", "BTC", "USDT")
	ticker, _ := reg.Lookup("BTC_USDT")
	assert.False(t, ticker.Suspended, "re-verification resumes a suspended symbol")
}

func TestRegistry_ApplyCoinStatePropagatesAcrossQuotes(t *testing.T) {
	reg := newTestRegistry(&recordingSink{})
	reg.Append("BTC_USDT", "BTC", "USDT")
	reg.Append("BTC_KRW", "BTC", "KRW")
	reg.Append("ETH_USDT", "ETH", "USDT")

	reg.ApplyCoinState(&domain.CoinState{Base: "BTC", Active: true, Deposit: true, Withdraw: false})

	usdt, _ := reg.Lookup("BTC_USDT")
	krw, _ := reg.Lookup("BTC_KRW")
	eth, _ := reg.Lookup("ETH_USDT")
	assert.True(t, usdt.Active)
	assert.True(t, usdt.Deposit)
	assert.False(t, usdt.Withdraw)
	assert.True(t, krw.Active)
	assert.False(t, eth.Active, "other bases are untouched")
}
