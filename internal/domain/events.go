package domain

import "context"

// EventSink receives error/info events from adapters and the registry.
// Payload is either a string or an error. Codes are exchange-scoped
// integers, stable across calls so logs can be correlated.
type EventSink interface {
	Emit(exchange string, payload any, code int)
}

type EventRecord struct {
	ID        int64  `json:"id"`
	Exchange  string `json:"exchange"`
	Message   string `json:"message"`
	Code      int    `json:"code"`
	CreatedAt int64  `json:"createdAt"`
}

// EventJournal persists sink events for later inspection.
type EventJournal interface {
	SaveEvent(ctx context.Context, ev *EventRecord) error
	ListEvents(ctx context.Context, limit int) ([]*EventRecord, error)
}

// WalletStateRepository persists the last merged coin states so a restarted
// session starts from the known deposit/withdraw flags.
type WalletStateRepository interface {
	SaveCoinStates(ctx context.Context, exchange string, states []*CoinState) error
	LoadCoinStates(ctx context.Context, exchange string) ([]*CoinState, error)
}
