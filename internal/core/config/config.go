package config

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/playmixer/walletledger/internal/adapters/api/rest"
	"github.com/playmixer/walletledger/internal/adapters/catalog"
	"github.com/playmixer/walletledger/internal/adapters/events"
	"github.com/playmixer/walletledger/internal/adapters/store"
	"github.com/playmixer/walletledger/internal/adapters/store/database"
	"github.com/playmixer/walletledger/internal/core/ledger"
	"github.com/playmixer/walletledger/internal/core/mining"
	"github.com/playmixer/walletledger/internal/core/payment"
)

var one = decimal.NewFromInt(1)

type Config struct {
	Rest         *rest.Config
	Store        *store.Config
	Catalog      *catalog.Config
	Events       *events.Config
	Ledger       ledger.Config
	Payment      payment.Config
	Mining       mining.Config
	RedisAddress string `env:"REDIS_ADDRESS"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogPath      string `env:"LOG_PATH"`
}

func Init() (*Config, error) {
	return Load(os.Args[1:])
}

// Load reads .env, the environment and then the command line flags in args,
// each overriding the previous one.
func Load(args []string) (*Config, error) {
	cfg := &Config{
		Rest: &rest.Config{},
		Store: &store.Config{
			Database: &database.Config{},
		},
		Catalog: &catalog.Config{},
		Events:  &events.Config{},
	}

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed load enviorements from file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return cfg, fmt.Errorf("failed parse env: %w", err)
	}

	fs := flag.NewFlagSet("walletledger", flag.ContinueOnError)
	fs.StringVar(&cfg.Rest.Address, "a", cfg.Rest.Address, "address listen")
	fs.StringVar(&cfg.Store.Database.DSN, "d", cfg.Store.Database.DSN, "database dsn")
	fs.StringVar(&cfg.Store.Driver, "s", cfg.Store.Driver, "store driver: postgres or memory")
	fs.StringVar(&cfg.Catalog.File, "c", cfg.Catalog.File, "catalog file")
	fs.StringVar(&cfg.RedisAddress, "r", cfg.RedisAddress, "redis address")
	if err := fs.Parse(args); err != nil {
		return cfg, fmt.Errorf("failed parse flags: %w", err)
	}

	if cfg.Payment.CommissionRate.IsNegative() || cfg.Payment.CommissionRate.GreaterThan(one) {
		return cfg, fmt.Errorf("commission rate %s out of range [0, 1]", cfg.Payment.CommissionRate)
	}
	if cfg.Mining.BonusEvery < 1 {
		return cfg, fmt.Errorf("mining bonus period %d must be at least 1", cfg.Mining.BonusEvery)
	}
	return cfg, nil
}
