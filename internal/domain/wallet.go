package domain

// CoinNetwork is one transfer network under a base currency. Name is the
// composite "<base>-<network>" key and is unique within a CoinState.
type CoinNetwork struct {
	Name    string `json:"name"`
	Network string `json:"network"`
	Chain   string `json:"chain"`

	Deposit  bool `json:"deposit"`
	Withdraw bool `json:"withdraw"`

	WithdrawFee   float64 `json:"withdrawFee"`
	MinWithdrawal float64 `json:"minWithdrawal"`
	MaxWithdrawal float64 `json:"maxWithdrawal"`
	MinConfirm    int     `json:"minConfirm"`
	ArrivalTime   string  `json:"arrivalTime"`
}

// CoinState is the deposit/withdraw availability of one base currency on
// one exchange, merged from the vendor wallet-status feed.
type CoinState struct {
	Base     string        `json:"base"`
	Active   bool          `json:"active"`
	Deposit  bool          `json:"deposit"`
	Withdraw bool          `json:"withdraw"`
	Networks []CoinNetwork `json:"networks"`
}
