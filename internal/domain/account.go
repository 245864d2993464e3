package domain

type Balance struct {
	Free  float64 `json:"free"`
	Used  float64 `json:"used"`
	Total float64 `json:"total"`
}

type Account struct {
	CanTrade    bool               `json:"canTrade"`
	CanDeposit  bool               `json:"canDeposit"`
	CanWithdraw bool               `json:"canWithdraw"`
	Balances    map[string]Balance `json:"balances"`
}

type Order struct {
	ID        string  `json:"id"`
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Type      string  `json:"type"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Filled    float64 `json:"filled"`
	Remaining float64 `json:"remaining"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
	Fee       float64 `json:"fee"`
	FeeAsset  string  `json:"feeAsset"`
}

type OrderRequest struct {
	Symbol string  `json:"symbol"`
	Side   Side    `json:"side"`
	Type   string  `json:"type"`
	Price  float64 `json:"price"`
	Amount float64 `json:"amount"`
}

// TradeFill is one execution from the account's trade history.
type TradeFill struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"orderId"`
	Symbol    string  `json:"symbol"`
	Side      Side    `json:"side"`
	Price     float64 `json:"price"`
	Amount    float64 `json:"amount"`
	Fee       float64 `json:"fee"`
	FeeAsset  string  `json:"feeAsset"`
	Timestamp int64   `json:"timestamp"`
}

type DepositAddress struct {
	Currency string `json:"currency"`
	Address  string `json:"address"`
	Tag      string `json:"tag"`
	Network  string `json:"network"`
}

// Transfer is one deposit or withdrawal history row.
type Transfer struct {
	ID        string  `json:"id"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	Address   string  `json:"address"`
	TxID      string  `json:"txId"`
	Status    string  `json:"status"`
	Timestamp int64   `json:"timestamp"`
}
