package wallet

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/commission"
	"github.com/playmixer/walletledger/internal/core/mining"
	"github.com/playmixer/walletledger/internal/core/money"
	"github.com/playmixer/walletledger/internal/core/payment"
)

type Store interface {
	CreateWallet(ctx context.Context, accountID string) (model.Wallet, error)
	GetOrder(ctx context.Context, orderID string) (model.Order, error)
	GetUserOrders(ctx context.Context, buyerID string) ([]*model.Order, error)
	GetCommissionsByPayee(ctx context.Context, payeeID string) ([]*model.Commission, error)
}

type Payments interface {
	Purchase(ctx context.Context, req payment.PurchaseRequest) (model.Order, error)
	Refund(ctx context.Context, orderID string) (model.Order, error)
}

type Miner interface {
	Status(ctx context.Context, accountID string) (mining.Status, error)
	Claim(ctx context.Context, accountID string) (mining.Claim, error)
}

type Earnings struct {
	Total   money.Pair
	Records []*model.Commission
}

type Service struct {
	log      *zap.Logger
	store    Store
	payments Payments
	miner    Miner
}

type option func(*Service)

func Logger(log *zap.Logger) option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func New(store Store, payments Payments, miner Miner, options ...option) *Service {
	s := &Service{
		log:      zap.NewNop(),
		store:    store,
		payments: payments,
		miner:    miner,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Open returns the wallet of accountID, creating an empty one on first access.
func (s *Service) Open(ctx context.Context, accountID string) (model.Wallet, error) {
	w, err := s.store.CreateWallet(ctx, accountID)
	if err != nil {
		return model.Wallet{}, fmt.Errorf("failed open wallet `%s`: %w", accountID, err)
	}
	return w, nil
}

func (s *Service) Purchase(ctx context.Context, req payment.PurchaseRequest) (model.Order, error) {
	order, err := s.payments.Purchase(ctx, req)
	if err != nil {
		return model.Order{}, fmt.Errorf("purchase failed: %w", err)
	}
	return order, nil
}

func (s *Service) Refund(ctx context.Context, orderID string) (model.Order, error) {
	order, err := s.payments.Refund(ctx, orderID)
	if err != nil {
		return model.Order{}, fmt.Errorf("refund failed: %w", err)
	}
	return order, nil
}

func (s *Service) Claim(ctx context.Context, accountID string) (mining.Claim, error) {
	if _, err := s.Open(ctx, accountID); err != nil {
		return mining.Claim{}, err
	}
	claim, err := s.miner.Claim(ctx, accountID)
	if err != nil {
		return mining.Claim{}, fmt.Errorf("claim failed: %w", err)
	}
	return claim, nil
}

func (s *Service) MiningStatus(ctx context.Context, accountID string) (mining.Status, error) {
	if _, err := s.Open(ctx, accountID); err != nil {
		return mining.Status{}, err
	}
	st, err := s.miner.Status(ctx, accountID)
	if err != nil {
		return mining.Status{}, fmt.Errorf("failed get mining status: %w", err)
	}
	return st, nil
}

func (s *Service) Orders(ctx context.Context, accountID string) ([]*model.Order, error) {
	orders, err := s.store.GetUserOrders(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed getting orders by user: %w", err)
	}
	return orders, nil
}

// Earnings sums the commissions credited to accountID. Commissions of
// refunded orders were taken back and are left out.
func (s *Service) Earnings(ctx context.Context, accountID string) (Earnings, error) {
	records, err := s.store.GetCommissionsByPayee(ctx, accountID)
	if err != nil {
		if errors.Is(err, errstore.ErrNotFoundData) {
			return Earnings{Records: []*model.Commission{}}, nil
		}
		return Earnings{}, fmt.Errorf("failed getting commissions: %w", err)
	}

	kept := make([]*model.Commission, 0, len(records))
	for _, r := range records {
		order, err := s.store.GetOrder(ctx, r.OrderID)
		if err != nil {
			return Earnings{}, fmt.Errorf("failed getting order `%s`: %w", r.OrderID, err)
		}
		if order.Status == model.OrderStateRefunded {
			continue
		}
		kept = append(kept, r)
	}
	return Earnings{Total: commission.Total(kept), Records: kept}, nil
}
