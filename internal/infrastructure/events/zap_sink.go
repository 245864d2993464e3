package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/crypto_market_watch/internal/domain"
)

// ZapSink logs every adapter event and, when a journal is attached,
// persists it. Emit never returns an error to the caller; a journal write
// failure is only logged.
type ZapSink struct {
	log     *zap.Logger
	journal domain.EventJournal
}

func NewZapSink(log *zap.Logger, journal domain.EventJournal) *ZapSink {
	return &ZapSink{log: log, journal: journal}
}

func (s *ZapSink) Emit(exchange string, payload any, code int) {
	msg := fmt.Sprint(payload)
	if err, ok := payload.(error); ok {
		msg = err.Error()
	}

	s.log.Warn("exchange event",
		zap.String("exchange", exchange),
		zap.Int("code", code),
		zap.String("event", msg),
	)

	if s.journal == nil {
		return
	}
	ev := &domain.EventRecord{
		Exchange:  exchange,
		Message:   msg,
		Code:      code,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.journal.SaveEvent(context.Background(), ev); err != nil {
		s.log.Error("failed to journal event", zap.Error(err))
	}
}
