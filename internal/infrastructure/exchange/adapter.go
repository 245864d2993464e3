package exchange

import (
	"sync/atomic"

	"github.com/vitos/crypto_market_watch/internal/domain"
	"github.com/vitos/crypto_market_watch/internal/usecase"
)

// adapterBase carries what every vendor adapter needs: its registry, its
// wallet table, the event sink and the healthcheck flag. Each adapter owns
// its registry exclusively; nothing here is shared across exchanges.
type adapterBase struct {
	name     string
	creds    domain.Credentials
	registry *usecase.Registry
	wallet   *usecase.WalletTable
	sink     domain.EventSink
	alive    atomic.Bool
}

func (a *adapterBase) Name() string { return a.name }

func (a *adapterBase) Alive() bool { return a.alive.Load() }

func (a *adapterBase) Registry() *usecase.Registry { return a.registry }

func (a *adapterBase) Wallet() *usecase.WalletTable { return a.wallet }

// fail reports a recovered failure through the sink. The caller then
// returns the empty value for its return type.
func (a *adapterBase) fail(err error, code int) {
	a.sink.Emit(a.name, err, code)
}
