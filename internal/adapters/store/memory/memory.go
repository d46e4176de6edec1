package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
)

// Store keeps the ledger in process memory. Commits are serialized by a
// single mutex and checked against wallet versions exactly like the
// database store.
type Store struct {
	log         *zap.Logger
	wallets     map[string]*model.Wallet
	orders      map[string]*model.Order
	orderKeys   map[string]string
	commissions []model.Commission
	mu          sync.RWMutex
}

type option func(*Store)

func Logger(log *zap.Logger) option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

func New(options ...option) *Store {
	s := &Store{
		log:       zap.NewNop(),
		wallets:   make(map[string]*model.Wallet),
		orders:    make(map[string]*model.Order),
		orderKeys: make(map[string]string),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Seed stores a wallet as is, bypassing every check. Only meant for fixtures.
func (s *Store) Seed(w model.Wallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	w.UpdatedAt = w.CreatedAt
	s.wallets[w.AccountID] = copyWallet(&w)
}

func (s *Store) GetWallet(ctx context.Context, accountID string) (model.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[accountID]
	if !ok {
		return model.Wallet{}, errstore.ErrNotFoundData
	}
	wallet := *copyWallet(w)
	if field, bad := wallet.NegativeField(); bad {
		return wallet, fmt.Errorf("%w: account `%s` field %s", errstore.ErrIntegrityViolation, accountID, field)
	}
	return wallet, nil
}

func (s *Store) CreateWallet(ctx context.Context, accountID string) (model.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.wallets[accountID]; ok {
		return *copyWallet(w), nil
	}
	now := time.Now()
	w := &model.Wallet{AccountID: accountID, CreatedAt: now, UpdatedAt: now}
	s.wallets[accountID] = w
	s.log.Debug("wallet created", zap.String("accountID", accountID))
	return *copyWallet(w), nil
}

func (s *Store) FreezeWallet(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[accountID]
	if !ok {
		return errstore.ErrNotFoundData
	}
	w.Frozen = true
	w.UpdatedAt = time.Now()
	return nil
}

func (s *Store) Commit(ctx context.Context, m *model.Mutation) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", errstore.ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(m); err != nil {
		return err
	}

	now := time.Now()
	for i := range m.Wallets {
		w := copyWallet(&m.Wallets[i])
		w.Version++
		w.UpdatedAt = now
		if w.CreatedAt.IsZero() {
			w.CreatedAt = now
		}
		s.wallets[w.AccountID] = w
	}
	for i := range m.Orders {
		o := copyOrder(&m.Orders[i])
		o.CreatedAt = now
		o.UpdatedAt = now
		s.orders[o.OrderID] = o
		s.orderKeys[o.IdempotencyKey] = o.OrderID
	}
	for _, t := range m.Transitions {
		o := s.orders[t.OrderID]
		o.Status = t.To
		o.UpdatedAt = now
	}
	for _, c := range m.Commissions {
		c.CreatedAt = now
		c.ID = uint(len(s.commissions) + 1)
		s.commissions = append(s.commissions, c)
	}
	return nil
}

func (s *Store) check(m *model.Mutation) error {
	seen := map[string]struct{}{}
	for i := range m.Wallets {
		w := &m.Wallets[i]
		if _, dup := seen[w.AccountID]; dup {
			return fmt.Errorf("wallet `%s` appears twice in mutation", w.AccountID)
		}
		seen[w.AccountID] = struct{}{}

		current, ok := s.wallets[w.AccountID]
		if !ok {
			return fmt.Errorf("wallet `%s`: %w", w.AccountID, errstore.ErrNotFoundData)
		}
		if current.Version != w.Version {
			return fmt.Errorf("wallet `%s` version %d != %d: %w", w.AccountID, w.Version, current.Version, errstore.ErrConflict)
		}
		if current.Frozen {
			return fmt.Errorf("wallet `%s`: %w", w.AccountID, errstore.ErrWalletFrozen)
		}
		if field, bad := w.NegativeField(); bad {
			return fmt.Errorf("wallet `%s` field %s: %w", w.AccountID, field, errstore.ErrBalanceNotEnough)
		}
	}

	keys := map[string]struct{}{}
	for i := range m.Orders {
		o := &m.Orders[i]
		if _, ok := s.orderKeys[o.IdempotencyKey]; ok {
			return fmt.Errorf("order key `%s`: %w", o.IdempotencyKey, errstore.ErrDuplicateOrder)
		}
		if _, ok := keys[o.IdempotencyKey]; ok {
			return fmt.Errorf("order key `%s`: %w", o.IdempotencyKey, errstore.ErrDuplicateOrder)
		}
		if _, ok := s.orders[o.OrderID]; ok {
			return fmt.Errorf("order `%s`: %w", o.OrderID, errstore.ErrDuplicateOrder)
		}
		keys[o.IdempotencyKey] = struct{}{}
	}

	for _, t := range m.Transitions {
		o, ok := s.orders[t.OrderID]
		if !ok {
			return fmt.Errorf("order `%s`: %w", t.OrderID, errstore.ErrNotFoundData)
		}
		if o.Status != t.From {
			return fmt.Errorf("order `%s` status %s != %s: %w", t.OrderID, o.Status, t.From, errstore.ErrConflict)
		}
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[orderID]
	if !ok {
		return model.Order{}, errstore.ErrNotFoundData
	}
	return *copyOrder(o), nil
}

func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.orderKeys[key]
	if !ok {
		return model.Order{}, errstore.ErrNotFoundData
	}
	return *copyOrder(s.orders[id]), nil
}

func (s *Store) GetUserOrders(ctx context.Context, buyerID string) ([]*model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orders := []*model.Order{}
	for _, o := range s.orders {
		if o.BuyerID == buyerID {
			orders = append(orders, copyOrder(o))
		}
	}
	if len(orders) == 0 {
		return orders, errstore.ErrNotFoundData
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (s *Store) GetCommissionsByPayee(ctx context.Context, payeeID string) ([]*model.Commission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := []*model.Commission{}
	for i := range s.commissions {
		if s.commissions[i].PayeeAccountID == payeeID {
			c := s.commissions[i]
			records = append(records, &c)
		}
	}
	if len(records) == 0 {
		return records, errstore.ErrNotFoundData
	}
	return records, nil
}

func copyWallet(w *model.Wallet) *model.Wallet {
	c := *w
	if w.LastClaimAt != nil {
		t := *w.LastClaimAt
		c.LastClaimAt = &t
	}
	return &c
}

func copyOrder(o *model.Order) *model.Order {
	c := *o
	if o.AffiliateID != nil {
		id := *o.AffiliateID
		c.AffiliateID = &id
	}
	return &c
}
