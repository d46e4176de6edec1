package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

type option func(*Store)

func Logger(log *zap.Logger) option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func New(ctx context.Context, cfg *Config, options ...option) (*Store, error) {
	var err error
	s := &Store{
		log: zap.NewNop(),
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed connect to database: %w", err)
	}

	s.db = db.WithContext(ctx)

	for _, opt := range options {
		opt(s)
	}

	err = s.db.AutoMigrate(
		&model.Wallet{},
		&model.Order{},
		&model.Commission{},
	)

	if err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return s, nil
}

func (s *Store) CloseDB() error {
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed getting database connection: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed close database connection: %w", err)
	}

	return nil
}

func (s *Store) GetWallet(ctx context.Context, accountID string) (model.Wallet, error) {
	wallet := model.Wallet{}
	if err := s.db.WithContext(ctx).Where(&model.Wallet{AccountID: accountID}).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return wallet, errors.Join(errstore.ErrNotFoundData, err)
		}
		return wallet, mapError(fmt.Errorf("failed get wallet: %w", err))
	}
	if field, bad := wallet.NegativeField(); bad {
		return wallet, fmt.Errorf("%w: account `%s` field %s", errstore.ErrIntegrityViolation, accountID, field)
	}

	return wallet, nil
}

func (s *Store) CreateWallet(ctx context.Context, accountID string) (model.Wallet, error) {
	wallet := model.Wallet{AccountID: accountID}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&wallet)
	if err := result.Error; err != nil {
		return wallet, mapError(fmt.Errorf("failed create wallet: %w", err))
	}
	if result.RowsAffected == 1 {
		s.log.Debug("wallet created", zap.String("accountID", accountID))
	}

	return s.GetWallet(ctx, accountID)
}

func (s *Store) FreezeWallet(ctx context.Context, accountID string) error {
	result := s.db.WithContext(ctx).Model(&model.Wallet{}).
		Where("account_id = ?", accountID).
		Update("frozen", true)
	if err := result.Error; err != nil {
		return mapError(fmt.Errorf("failed freeze wallet `%s`: %w", accountID, err))
	}
	if result.RowsAffected == 0 {
		return errstore.ErrNotFoundData
	}

	return nil
}

// Commit applies the mutation in one transaction. Wallet rows are written in
// account order, each guarded by the version it was read at.
func (s *Store) Commit(ctx context.Context, m *model.Mutation) error {
	wallets := make([]model.Wallet, len(m.Wallets))
	copy(wallets, m.Wallets)
	sort.Slice(wallets, func(i, j int) bool {
		return wallets[i].AccountID < wallets[j].AccountID
	})

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for i := range wallets {
			w := &wallets[i]
			result := tx.Model(&model.Wallet{}).
				Where("account_id = ? AND version = ? AND frozen = ?", w.AccountID, w.Version, false).
				Updates(map[string]any{
					"main_usd":       w.MainUSD,
					"purchase_usd":   w.PurchaseUSD,
					"main_local":     w.MainLocal,
					"purchase_local": w.PurchaseLocal,
					"mining_balance": w.MiningBalance,
					"last_claim_at":  w.LastClaimAt,
					"streak":         w.Streak,
					"order_count":    w.OrderCount,
					"version":        gorm.Expr("version + 1"),
					"updated_at":     now,
				})
			if err := result.Error; err != nil {
				return fmt.Errorf("failed update wallet `%s`: %w", w.AccountID, err)
			}
			if result.RowsAffected != 1 {
				return explainMiss(tx, w)
			}
		}

		if len(m.Orders) > 0 {
			if err := tx.Create(&m.Orders).Error; err != nil {
				return fmt.Errorf("failed create orders: %w", err)
			}
		}

		for _, t := range m.Transitions {
			result := tx.Model(&model.Order{}).
				Where("order_id = ? AND status = ?", t.OrderID, t.From).
				Updates(map[string]any{"status": t.To, "updated_at": now})
			if err := result.Error; err != nil {
				return fmt.Errorf("failed update order `%s`: %w", t.OrderID, err)
			}
			if result.RowsAffected != 1 {
				return fmt.Errorf("order `%s` left status %s: %w", t.OrderID, t.From, errstore.ErrConflict)
			}
		}

		if len(m.Commissions) > 0 {
			if err := tx.Create(&m.Commissions).Error; err != nil {
				return fmt.Errorf("failed create commissions: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return mapError(fmt.Errorf("failed complite transaction: %w", err))
	}

	return nil
}

func explainMiss(tx *gorm.DB, w *model.Wallet) error {
	current := model.Wallet{}
	if err := tx.Where(&model.Wallet{AccountID: w.AccountID}).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("wallet `%s`: %w", w.AccountID, errstore.ErrNotFoundData)
		}
		return fmt.Errorf("failed reread wallet `%s`: %w", w.AccountID, err)
	}
	if current.Frozen {
		return fmt.Errorf("wallet `%s`: %w", w.AccountID, errstore.ErrWalletFrozen)
	}
	return fmt.Errorf("wallet `%s` version %d != %d: %w", w.AccountID, w.Version, current.Version, errstore.ErrConflict)
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	order := model.Order{}
	if err := s.db.WithContext(ctx).Where(&model.Order{OrderID: orderID}).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return order, errors.Join(errstore.ErrNotFoundData, err)
		}
		return order, mapError(fmt.Errorf("failed get order: %w", err))
	}

	return order, nil
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (model.Order, error) {
	order := model.Order{}
	if err := s.db.WithContext(ctx).Where(&model.Order{IdempotencyKey: key}).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return order, errors.Join(errstore.ErrNotFoundData, err)
		}
		return order, mapError(fmt.Errorf("failed get order by key: %w", err))
	}

	return order, nil
}

func (s *Store) GetUserOrders(ctx context.Context, buyerID string) ([]*model.Order, error) {
	orders := []*model.Order{}
	if err := s.db.WithContext(ctx).Where(&model.Order{BuyerID: buyerID}).Order("created_at").Find(&orders).Error; err != nil {
		return nil, mapError(fmt.Errorf("failed get orders: %w", err))
	}
	if len(orders) == 0 {
		return orders, errstore.ErrNotFoundData
	}

	return orders, nil
}

func (s *Store) GetCommissionsByPayee(ctx context.Context, payeeID string) ([]*model.Commission, error) {
	records := []*model.Commission{}
	if err := s.db.WithContext(ctx).Where(&model.Commission{PayeeAccountID: payeeID}).Find(&records).Error; err != nil {
		return nil, mapError(fmt.Errorf("failed get commissions: %w", err))
	}
	if len(records) == 0 {
		return records, errstore.ErrNotFoundData
	}

	return records, nil
}

// mapError translates driver errors into errstore sentinels the ledger
// knows how to react to.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		errstore.ErrConflict,
		errstore.ErrNotFoundData,
		errstore.ErrWalletFrozen,
		errstore.ErrDuplicateOrder,
		errstore.ErrBalanceNotEnough,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.UniqueViolation:
			return errors.Join(errstore.ErrDuplicateOrder, err)
		case pgerrcode.CheckViolation:
			return errors.Join(errstore.ErrBalanceNotEnough, err)
		case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return errors.Join(errstore.ErrConflict, err)
		}
		if pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsOperatorIntervention(pgErr.Code) {
			return errors.Join(errstore.ErrUnavailable, err)
		}
		return err
	}

	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(errstore.ErrUnavailable, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return errors.Join(errstore.ErrUnavailable, err)
	}

	return err
}
