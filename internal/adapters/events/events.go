package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/core/money"
)

type Kind string

const (
	OrderCompleted Kind = "order.completed"
	OrderRefunded  Kind = "order.refunded"
	RewardClaimed  Kind = "reward.claimed"
)

const (
	SinkLog   = "log"
	SinkRedis = "redis"
	SinkKafka = "kafka"
	SinkNone  = "none"
)

type Config struct {
	Sink         string   `env:"EVENTS_SINK" envDefault:"log"`
	Channel      string   `env:"EVENTS_CHANNEL" envDefault:"wallet_events"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"wallet-events"`
	Buffer       int      `env:"EVENTS_BUFFER" envDefault:"256"`
}

type Event struct {
	OccurredAt time.Time       `json:"occurred_at"`
	Kind       Kind            `json:"kind"`
	AccountID  string          `json:"account_id"`
	OrderID    string          `json:"order_id,omitempty"`
	Currency   money.Currency  `json:"currency,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Streak     int             `json:"streak,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// NewPublisher builds the sink named in cfg. rdb is only used by the redis sink.
func NewPublisher(cfg *Config, rdb redis.UniversalClient, log *zap.Logger) (Publisher, error) {
	switch cfg.Sink {
	case SinkLog, "":
		return NewLog(log), nil
	case SinkRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis sink requires REDIS_ADDRESS")
		}
		return NewRedis(rdb, cfg.Channel), nil
	case SinkKafka:
		return NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, KafkaLogger(log)), nil
	case SinkNone:
		return Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown events sink `%s`", cfg.Sink)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
