package store

import (
	"context"
	"fmt"

	"github.com/playmixer/walletledger/internal/adapters/store/database"
	"github.com/playmixer/walletledger/internal/adapters/store/memory"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Database *database.Config
	Driver   string `env:"STORE_DRIVER" envDefault:"postgres"`
}

type Store interface {
	GetWallet(ctx context.Context, accountID string) (model.Wallet, error)
	CreateWallet(ctx context.Context, accountID string) (model.Wallet, error)
	FreezeWallet(ctx context.Context, accountID string) error
	Commit(ctx context.Context, mutation *model.Mutation) error
	GetOrder(ctx context.Context, orderID string) (model.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (model.Order, error)
	GetUserOrders(ctx context.Context, buyerID string) ([]*model.Order, error)
	GetCommissionsByPayee(ctx context.Context, payeeID string) ([]*model.Commission, error)
}

func New(ctx context.Context, cfg *Config, log *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverMemory:
		return memory.New(memory.Logger(log)), nil
	case DriverPostgres, "":
		s, err := database.New(ctx, cfg.Database, database.Logger(log))
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver `%s`", cfg.Driver)
}
