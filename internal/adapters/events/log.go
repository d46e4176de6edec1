package events

import (
	"context"

	"go.uber.org/zap"
)

// Log writes events to the service log.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log.Named("events")}
}

func (l *Log) Publish(_ context.Context, e Event) error {
	l.log.Info("event",
		zap.String("kind", string(e.Kind)),
		zap.String("accountID", e.AccountID),
		zap.String("orderID", e.OrderID),
		zap.String("amount", e.Amount.String()),
		zap.String("currency", string(e.Currency)),
		zap.Int("streak", e.Streak),
		zap.Time("occurredAt", e.OccurredAt),
	)
	return nil
}
