package usecase

import (
	"fmt"
	"sync"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

// NetworkKey builds the composite name a CoinNetwork is keyed by inside its
// CoinState.
func NetworkKey(base, network string) string {
	return base + "-" + network
}

// CoinUpdate is one vendor wallet-status row, already reduced to the
// normalized booleans by the adapter.
type CoinUpdate struct {
	Base     string
	Deposit  bool
	Withdraw bool
	Networks []domain.CoinNetwork
}

// WalletTable holds one CoinState per base currency for one exchange.
// States are created lazily on first mention and never removed; merging the
// same vendor snapshot twice leaves the table unchanged.
type WalletTable struct {
	mu     sync.Mutex
	order  []string
	states map[string]*domain.CoinState
}

func NewWalletTable() *WalletTable {
	return &WalletTable{states: make(map[string]*domain.CoinState)}
}

// Merge applies one vendor row. Active is deposit OR withdraw; that is
// adapter policy here, not vendor data. Network entries are created with
// their full limits on first sight, but a later pass only refreshes the
// live deposit/withdraw flags, never the static fields.
//
// An empty base is a contract violation by the calling adapter, not a
// vendor condition, and is the one error allowed to propagate.
func (w *WalletTable) Merge(upd CoinUpdate) (*domain.CoinState, error) {
	if upd.Base == "" {
		return nil, fmt.Errorf("wallet merge: empty base currency")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.states[upd.Base]
	if !ok {
		st = &domain.CoinState{Base: upd.Base}
		w.states[upd.Base] = st
		w.order = append(w.order, upd.Base)
	}
	st.Deposit = upd.Deposit
	st.Withdraw = upd.Withdraw
	st.Active = upd.Deposit || upd.Withdraw

	for _, n := range upd.Networks {
		if n.Name == "" {
			n.Name = NetworkKey(upd.Base, n.Network)
		}
		idx := -1
		for i := range st.Networks {
			if st.Networks[i].Name == n.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			st.Networks = append(st.Networks, n)
			continue
		}
		st.Networks[idx].Deposit = n.Deposit
		st.Networks[idx].Withdraw = n.Withdraw
	}
	return st, nil
}

// Propagate pushes every state onto the registry's matching tickers.
func (w *WalletTable) Propagate(reg *Registry) {
	for _, st := range w.States() {
		reg.ApplyCoinState(st)
	}
}

// Lookup returns a copy of the state for one base currency.
func (w *WalletTable) Lookup(base string) (domain.CoinState, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.states[base]
	if !ok {
		return domain.CoinState{}, false
	}
	return copyState(st), true
}

// States returns copies of every state in first-seen order.
func (w *WalletTable) States() []*domain.CoinState {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*domain.CoinState, 0, len(w.order))
	for _, base := range w.order {
		st := copyState(w.states[base])
		out = append(out, &st)
	}
	return out
}

// Restore seeds the table from persisted states, typically at startup
// before the first VerifyStates call succeeds.
func (w *WalletTable) Restore(states []*domain.CoinState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, st := range states {
		if st.Base == "" {
			continue
		}
		if _, ok := w.states[st.Base]; ok {
			continue
		}
		cp := copyState(st)
		w.states[st.Base] = &cp
		w.order = append(w.order, st.Base)
	}
}

func copyState(st *domain.CoinState) domain.CoinState {
	cp := *st
	cp.Networks = make([]domain.CoinNetwork, len(st.Networks))
	copy(cp.Networks, st.Networks)
	return cp
}
