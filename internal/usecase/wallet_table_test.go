package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

func btcUpdate() CoinUpdate {
	return CoinUpdate{
		Base:     "BTC",
		Deposit:  true,
		Withdraw: true,
		Networks: []domain.CoinNetwork{
			{
				Name:          NetworkKey("BTC", "BTC"),
				Network:       "BTC",
				Chain:         "Bitcoin",
				Deposit:       true,
				Withdraw:      true,
				WithdrawFee:   0.0005,
				MinWithdrawal: 0.001,
				MinConfirm:    2,
			},
		},
	}
}

func TestWalletTable_MergeIsIdempotent(t *testing.T) {
	table := NewWalletTable()

	_, err := table.Merge(btcUpdate())
	require.NoError(t, err)
	first := table.States()

	_, err = table.Merge(btcUpdate())
	require.NoError(t, err)
	second := table.States()

	assert.Equal(t, first, second)
	require.Len(t, second, 1)
	require.Len(t, second[0].Networks, 1)
}

func TestWalletTable_ActiveIsDepositOrWithdraw(t *testing.T) {
	table := NewWalletTable()

	st, err := table.Merge(CoinUpdate{Base: "XRP", Deposit: false, Withdraw: true})
	require.NoError(t, err)
	assert.True(t, st.Active)

	st, err = table.Merge(CoinUpdate{Base: "XRP", Deposit: false, Withdraw: false})
	require.NoError(t, err)
	assert.False(t, st.Active)
}

func TestWalletTable_SecondPassRefreshesOnlyLiveFlags(t *testing.T) {
	table := NewWalletTable()
	_, err := table.Merge(btcUpdate())
	require.NoError(t, err)

	// same network appears again with flipped flags and different limits;
	// only the flags may change
	upd := btcUpdate()
	upd.Networks[0].Deposit = false
	upd.Networks[0].WithdrawFee = 99
	upd.Networks[0].MinConfirm = 50
	st, err := table.Merge(upd)
	require.NoError(t, err)

	require.Len(t, st.Networks, 1)
	n := st.Networks[0]
	assert.False(t, n.Deposit)
	assert.True(t, n.Withdraw)
	assert.Equal(t, 0.0005, n.WithdrawFee, "static fields keep their first-seen values")
	assert.Equal(t, 2, n.MinConfirm)
}

func TestWalletTable_DuplicateNetworkFeedYieldsOneEntry(t *testing.T) {
	table := NewWalletTable()

	// the currency shows up in two different vendor feeds with the same
	// (base, network) identity
	_, err := table.Merge(btcUpdate())
	require.NoError(t, err)
	other := btcUpdate()
	other.Networks[0].Withdraw = false
	_, err = table.Merge(other)
	require.NoError(t, err)

	st, ok := table.Lookup("BTC")
	require.True(t, ok)
	require.Len(t, st.Networks, 1)
	assert.False(t, st.Networks[0].Withdraw)
}

func TestWalletTable_EmptyBaseIsContractViolation(t *testing.T) {
	table := NewWalletTable()
	_, err := table.Merge(CoinUpdate{})
	assert.Error(t, err)
	assert.Empty(t, table.States())
}

func TestWalletTable_NetworkNameDefaultsToCompositeKey(t *testing.T) {
	table := NewWalletTable()
	st, err := table.Merge(CoinUpdate{
		Base:     "ETH",
		Deposit:  true,
		Networks: []domain.CoinNetwork{{Network: "ERC20", Deposit: true}},
	})
	require.NoError(t, err)
	require.Len(t, st.Networks, 1)
	assert.Equal(t, "ETH-ERC20", st.Networks[0].Name)
}

func TestWalletTable_PropagateToRegistry(t *testing.T) {
	table := NewWalletTable()
	_, err := table.Merge(CoinUpdate{Base: "BTC", Deposit: true, Withdraw: true})
	require.NoError(t, err)

	reg := newTestRegistry(&recordingSink{})
	reg.Append("BTC_USDT", "BTC", "USDT")
	table.Propagate(reg)

	ticker, _ := reg.Lookup("BTC_USDT")
	assert.True(t, ticker.Active)
	assert.True(t, ticker.Deposit)
	assert.True(t, ticker.Withdraw)
}

func TestWalletTable_RestoreKeepsFresherState(t *testing.T) {
	table := NewWalletTable()
	_, err := table.Merge(CoinUpdate{Base: "BTC", Deposit: true})
	require.NoError(t, err)

	table.Restore([]*domain.CoinState{
		{Base: "BTC", Deposit: false},
		{Base: "ETH", Deposit: true, Active: true},
	})

	btc, _ := table.Lookup("BTC")
	assert.True(t, btc.Deposit, "a merged state wins over the persisted one")
	eth, ok := table.Lookup("ETH")
	require.True(t, ok)
	assert.True(t, eth.Deposit)
}
