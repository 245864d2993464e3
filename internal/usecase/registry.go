package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

// MarketDatum is one vendor quote keyed by symbol, already parsed but not
// yet bridged. HasBook/HasVolume tell the merge which fields the refresh
// operation actually fetched.
type MarketDatum struct {
	Symbol string

	Last   float64
	Ask    float64
	AskQty float64
	Bid    float64
	BidQty float64

	// RawVolume24h is the vendor's cumulative 24h volume in quote units.
	RawVolume24h float64

	HasBook   bool
	HasVolume bool
}

// Registry is the market-snapshot collection for one exchange. It is owned
// by that exchange's adapter; the mutex serializes the adapter's refresh
// loop against the websocket stream, never against other exchanges.
type Registry struct {
	exchange     string
	sink         domain.EventSink
	notFoundCode int

	mu      sync.Mutex
	records []*domain.Ticker
	index   map[string]*domain.Ticker

	exchgRate     float64 // display fiat per USDT
	btcFiat       float64 // display fiat per BTC
	volume24hBase float64
	volume1mBase  float64

	timeNow func() time.Time
}

func NewRegistry(exchange string, sink domain.EventSink, notFoundCode int) *Registry {
	return &Registry{
		exchange:      exchange,
		sink:          sink,
		notFoundCode:  notFoundCode,
		index:         make(map[string]*domain.Ticker),
		exchgRate:     1,
		btcFiat:       1,
		volume24hBase: 1,
		volume1mBase:  1,
		timeNow:       time.Now,
	}
}

func (r *Registry) Exchange() string { return r.exchange }

// SetRates updates the exchange-wide bridge rates. Zero values keep the
// previous rate so a failed rate fetch cannot zero out prices.
func (r *Registry) SetRates(exchgRate, btcFiat float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if exchgRate > 0 {
		r.exchgRate = exchgRate
	}
	if btcFiat > 0 {
		r.btcFiat = btcFiat
	}
}

func (r *Registry) SetVolumeBases(base24h, base1m float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if base24h > 0 {
		r.volume24hBase = base24h
	}
	if base1m > 0 {
		r.volume1mBase = base1m
	}
}

// Append registers one verified symbol. It is a no-op for a symbol already
// present, so VerifySymbols can run repeatedly; a suspended record is
// resumed instead of duplicated.
func (r *Registry) Append(symbol, base, quote string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.index[symbol]; ok {
		t.Suspended = false
		return false
	}
	t := &domain.Ticker{Symbol: symbol, Base: base, Quote: quote}
	r.records = append(r.records, t)
	r.index[symbol] = t
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ActiveSymbols returns the symbols a refresh cycle should fetch, in
// registration order, excluding suspended records.
func (r *Registry) ActiveSymbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.records))
	for _, t := range r.records {
		if t.Suspended {
			continue
		}
		out = append(out, t.Symbol)
	}
	return out
}

// Merge walks the ticker list once and applies the fetched batch. A record
// whose symbol is missing from the batch is suspended and reported through
// the sink; the rest of the batch still lands, so one bad symbol never
// blocks a refresh. Returns the number of records updated.
func (r *Registry) Merge(batch map[string]MarketDatum) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	nowMs := r.timeNow().UnixMilli()
	updated := 0
	for _, t := range r.records {
		if t.Suspended {
			continue
		}
		d, ok := batch[t.Symbol]
		if !ok {
			t.Suspended = true
			r.sink.Emit(r.exchange, fmt.Sprintf("symbol %s not found in vendor response", t.Symbol), r.notFoundCode)
			continue
		}

		// one scalar per record per call, shared by last/ask/bid/volume
		scalar := BridgeScalar(t.Quote, r.exchgRate, r.btcFiat)

		t.Last = d.Last * scalar
		if d.HasBook {
			t.Ask = d.Ask * scalar
			t.AskQty = d.AskQty
			t.Bid = d.Bid * scalar
			t.BidQty = d.BidQty
		}
		if d.HasVolume {
			applyVolume(t, d.RawVolume24h*scalar, nowMs, r.volume24hBase, r.volume1mBase)
		}
		updated++
	}
	return updated
}

// SetLast is the fast path for stream updates: bridge and write the last
// price of one symbol. Suspended or unknown symbols are ignored.
func (r *Registry) SetLast(symbol string, last float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.index[symbol]
	if !ok || t.Suspended {
		return
	}
	t.Last = last * BridgeScalar(t.Quote, r.exchgRate, r.btcFiat)
}

// SetBook stores the latest depth snapshot on the record.
func (r *Registry) SetBook(symbol string, book domain.OrderBook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.index[symbol]
	if !ok || t.Suspended {
		return
	}
	t.Book = book
}

// ApplyCoinState propagates a merged wallet state onto every record whose
// base matches, across all quote currencies for that base.
func (r *Registry) ApplyCoinState(st *domain.CoinState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.records {
		if t.Suspended || t.Base != st.Base {
			continue
		}
		t.Active = st.Active
		t.Deposit = st.Deposit
		t.Withdraw = st.Withdraw
	}
}

// Resume clears the suspension set by a not-found merge, typically after an
// external symbol resync.
func (r *Registry) Resume(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.index[symbol]; ok {
		t.Suspended = false
	}
}

// Lookup returns a copy of one record.
func (r *Registry) Lookup(symbol string) (domain.Ticker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.index[symbol]
	if !ok {
		return domain.Ticker{}, false
	}
	return *t, true
}

// Snapshot returns a copy of every record in registration order.
func (r *Registry) Snapshot() []domain.Ticker {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Ticker, len(r.records))
	for i, t := range r.records {
		out[i] = *t
	}
	return out
}
