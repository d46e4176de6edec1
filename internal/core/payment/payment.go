package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/adapters/catalog"
	"github.com/playmixer/walletledger/internal/adapters/events"
	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/commission"
	"github.com/playmixer/walletledger/internal/core/ledger"
	"github.com/playmixer/walletledger/internal/core/money"
)

var (
	ErrInvalidRequest    = errors.New("invalid purchase request")
	ErrKeyReused         = errors.New("idempotency key used for another purchase")
	ErrProductNotFound   = errors.New("product not found")
	ErrPriceMismatch     = errors.New("amount does not match catalog price")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("order status does not allow this transition")
)

type Config struct {
	CommissionRate    decimal.Decimal `env:"COMMISSION_RATE" envDefault:"0.70"`
	TreasuryAccountID string          `env:"TREASURY_ACCOUNT_ID" envDefault:"treasury"`
}

type Ledger interface {
	Update(ctx context.Context, tx ledger.Tx) error
}

type Store interface {
	GetOrder(ctx context.Context, orderID string) (model.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (model.Order, error)
}

type Catalog interface {
	Product(ctx context.Context, productID string) (catalog.Product, error)
}

type Emitter interface {
	Emit(e events.Event)
}

type discard struct{}

func (discard) Emit(events.Event) {}

type Processor struct {
	log     *zap.Logger
	ledger  Ledger
	store   Store
	catalog Catalog
	rates   commission.RateResolver
	events  Emitter
	newID   func() string
	now     func() time.Time
	cfg     Config
}

type option func(*Processor)

func Logger(log *zap.Logger) option {
	return func(p *Processor) {
		if log != nil {
			p.log = log
		}
	}
}

// Rates replaces the flat configured commission rate.
func Rates(r commission.RateResolver) option {
	return func(p *Processor) {
		p.rates = r
	}
}

func Events(e Emitter) option {
	return func(p *Processor) {
		p.events = e
	}
}

func IDGenerator(fn func() string) option {
	return func(p *Processor) {
		p.newID = fn
	}
}

func Clock(now func() time.Time) option {
	return func(p *Processor) {
		p.now = now
	}
}

func New(cfg Config, l Ledger, store Store, c Catalog, options ...option) *Processor {
	p := &Processor{
		log:     zap.NewNop(),
		ledger:  l,
		store:   store,
		catalog: c,
		rates:   commission.FlatRate(cfg.CommissionRate),
		events:  discard{},
		newID:   func() string { return ulid.Make().String() },
		now:     time.Now,
		cfg:     cfg,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

type PurchaseRequest struct {
	Amount         decimal.Decimal
	BuyerID        string
	ProductID      string
	AffiliateID    string
	IdempotencyKey string
	Currency       money.Currency
	Split          bool
}

func (r *PurchaseRequest) validate() error {
	if r.BuyerID == "" {
		return fmt.Errorf("%w: buyer is required", ErrInvalidRequest)
	}
	if r.ProductID == "" {
		return fmt.Errorf("%w: product is required", ErrInvalidRequest)
	}
	if r.Currency != money.USDT && r.Currency != money.INR {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, money.ErrUnknownCurrency)
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if err := money.Validate(r.Amount, r.Currency); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Purchase debits the buyer, credits the seller and the affiliate commission
// and records a completed order, all in one commit. A request repeating the
// idempotency key of an earlier purchase returns that purchase's order.
func (p *Processor) Purchase(ctx context.Context, req PurchaseRequest) (model.Order, error) {
	if err := req.validate(); err != nil {
		return model.Order{}, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = p.newID()
	}

	if order, ok, err := p.replay(ctx, &req); err != nil || ok {
		return order, err
	}

	product, err := p.catalog.Product(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			return model.Order{}, errors.Join(ErrProductNotFound, err)
		}
		if errors.Is(err, catalog.ErrUnavailable) {
			return model.Order{}, errors.Join(ledger.ErrTransientFailure, err)
		}
		return model.Order{}, fmt.Errorf("failed get product: %w", err)
	}
	price := product.Price.Get(req.Currency)
	if price.IsZero() || !price.Equal(req.Amount) {
		return model.Order{}, fmt.Errorf("%w: presented %s, catalog %s %s", ErrPriceMismatch, req.Amount, price, req.Currency)
	}

	sellerID := product.SellerID
	if sellerID == "" {
		sellerID = p.cfg.TreasuryAccountID
	}
	if sellerID == req.BuyerID {
		return model.Order{}, fmt.Errorf("%w: buyer sells this product", ErrInvalidRequest)
	}
	affiliateID := req.AffiliateID
	if affiliateID == req.BuyerID {
		affiliateID = ""
	}

	rate := decimal.Zero
	if affiliateID != "" {
		if rate, err = p.rates.Rate(ctx, affiliateID); err != nil {
			return model.Order{}, fmt.Errorf("failed resolve commission rate: %w", err)
		}
	}

	accounts := []string{req.BuyerID, sellerID}
	if affiliateID != "" {
		accounts = append(accounts, affiliateID)
	}

	orderID := p.newID()
	var order model.Order
	err = p.ledger.Update(ctx, ledger.Tx{
		Name:     "purchase",
		Accounts: accounts,
		Build: func(ctx context.Context, snap ledger.Snapshot) (*model.Mutation, error) {
			if existing, ok, err := p.replay(ctx, &req); err != nil || ok {
				order = existing
				return nil, err
			}
			planned, m, err := p.plan(snap, &req, &product, orderID, sellerID, affiliateID, rate)
			if err != nil {
				return nil, err
			}
			order = planned
			return m, nil
		},
		Applied: func(ctx context.Context) (bool, error) {
			_, ok, err := p.lookup(ctx, req.IdempotencyKey)
			return ok, err
		},
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("failed purchase `%s` by `%s`: %w", req.ProductID, req.BuyerID, err)
	}

	if order.OrderID == orderID {
		p.log.Info("purchase completed",
			zap.String("orderID", order.OrderID),
			zap.String("buyerID", order.BuyerID),
			zap.String("amount", order.Amount().String()),
			zap.String("currency", string(order.Currency)),
			zap.Bool("split", order.SplitUsed),
		)
		p.events.Emit(events.Event{
			Kind:       events.OrderCompleted,
			AccountID:  order.BuyerID,
			OrderID:    order.OrderID,
			Amount:     order.Amount(),
			Currency:   order.Currency,
			OccurredAt: p.now().UTC(),
		})
	}
	return order, nil
}

func (p *Processor) plan(
	snap ledger.Snapshot,
	req *PurchaseRequest,
	product *catalog.Product,
	orderID, sellerID, affiliateID string,
	rate decimal.Decimal,
) (model.Order, *model.Mutation, error) {
	c := req.Currency
	amount := req.Amount

	debitMain, debitPurchase := amount, decimal.Zero
	mode := model.PaymentModeMain
	if req.Split {
		debitMain, debitPurchase = money.Split(amount, c)
		mode = model.PaymentModeSplit
	}

	buyer := snap[req.BuyerID]
	if buyer.Main(c).LessThan(debitMain) || buyer.Purchase(c).LessThan(debitPurchase) {
		return model.Order{}, nil, fmt.Errorf("%w: need %s main and %s purchase %s",
			ledger.ErrInsufficientFunds, debitMain, debitPurchase, c)
	}
	buyer.AddMain(c, debitMain.Neg())
	buyer.AddPurchase(c, debitPurchase.Neg())
	buyer.OrderCount++

	m := &model.Mutation{}
	sellerShare := amount
	order := model.Order{
		CreatedAt:      p.now(),
		OrderID:        orderID,
		IdempotencyKey: req.IdempotencyKey,
		BuyerID:        req.BuyerID,
		ProductID:      req.ProductID,
		SellerID:       sellerID,
		Currency:       c,
		Status:         model.OrderStateCompleted,
		PaymentMode:    mode,
		AmountUSD:      product.Price.USD,
		AmountLocal:    product.Price.Local,
		DebitMain:      debitMain,
		DebitPurchase:  debitPurchase,
		SplitUsed:      req.Split,
	}

	if affiliateID != "" {
		record, err := commission.Distribute(orderID, amount, c, rate, req.BuyerID, affiliateID)
		if err != nil {
			return model.Order{}, nil, fmt.Errorf("failed distribute commission: %w", err)
		}
		snap[affiliateID].AddMain(c, record.Amount)
		sellerShare = amount.Sub(record.Amount)
		order.AffiliateID = &affiliateID
		order.CommissionAmount = record.Amount
		order.CommissionRate = rate
		m.Commissions = append(m.Commissions, record)
	}
	snap[sellerID].AddMain(c, sellerShare)
	order.SellerShare = sellerShare

	m.Wallets = snap.Wallets(req.BuyerID, sellerID, affiliateID)
	m.Orders = append(m.Orders, order)
	return order, m, nil
}

// replay returns the order already stored under the request idempotency key.
func (p *Processor) replay(ctx context.Context, req *PurchaseRequest) (model.Order, bool, error) {
	order, ok, err := p.lookup(ctx, req.IdempotencyKey)
	if err != nil || !ok {
		return order, ok, err
	}
	if !sameRequest(&order, req) {
		return model.Order{}, false, fmt.Errorf("%w: `%s`", ErrKeyReused, req.IdempotencyKey)
	}
	p.log.Debug("purchase replayed", zap.String("orderID", order.OrderID), zap.String("key", req.IdempotencyKey))
	return order, true, nil
}

// sameRequest reports whether order was placed by an identical request.
// An affiliate equal to the buyer is never stored, so it compares as none.
func sameRequest(order *model.Order, req *PurchaseRequest) bool {
	affiliateID := req.AffiliateID
	if affiliateID == req.BuyerID {
		affiliateID = ""
	}
	storedAffiliate := ""
	if order.AffiliateID != nil {
		storedAffiliate = *order.AffiliateID
	}
	return order.BuyerID == req.BuyerID &&
		order.ProductID == req.ProductID &&
		order.Currency == req.Currency &&
		order.Amount().Equal(req.Amount) &&
		order.SplitUsed == req.Split &&
		storedAffiliate == affiliateID
}

func (p *Processor) lookup(ctx context.Context, key string) (model.Order, bool, error) {
	order, err := p.store.GetOrderByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, errstore.ErrNotFoundData) {
			return model.Order{}, false, nil
		}
		return model.Order{}, false, fmt.Errorf("failed lookup order by key: %w", err)
	}
	return order, true, nil
}

// Refund moves a completed order to refunded and reverses its money
// movements in one commit: the buyer gets both debits back, the seller and
// the affiliate give back what they were credited.
func (p *Processor) Refund(ctx context.Context, orderID string) (model.Order, error) {
	order, err := p.order(ctx, orderID)
	if err != nil {
		return model.Order{}, err
	}
	if !model.CanTransition(order.Status, model.OrderStateRefunded) {
		return model.Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, model.OrderStateRefunded)
	}

	affiliateID := ""
	if order.AffiliateID != nil && order.CommissionAmount.IsPositive() {
		affiliateID = *order.AffiliateID
	}
	accounts := []string{order.BuyerID, order.SellerID}
	if affiliateID != "" {
		accounts = append(accounts, affiliateID)
	}

	err = p.ledger.Update(ctx, ledger.Tx{
		Name:     "refund",
		Accounts: accounts,
		Build: func(ctx context.Context, snap ledger.Snapshot) (*model.Mutation, error) {
			current, err := p.order(ctx, orderID)
			if err != nil {
				return nil, err
			}
			if current.Status != model.OrderStateCompleted {
				return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, model.OrderStateRefunded)
			}

			c := order.Currency
			buyer := snap[order.BuyerID]
			buyer.AddMain(c, order.DebitMain)
			buyer.AddPurchase(c, order.DebitPurchase)
			snap[order.SellerID].AddMain(c, order.SellerShare.Neg())
			if affiliateID != "" {
				snap[affiliateID].AddMain(c, order.CommissionAmount.Neg())
			}
			for _, id := range accounts {
				if snap[id].Main(c).IsNegative() {
					return nil, fmt.Errorf("%w: account `%s` already spent its credit", ledger.ErrInsufficientFunds, id)
				}
			}

			return &model.Mutation{
				Wallets: snap.Wallets(accounts...),
				Transitions: []model.OrderTransition{{
					OrderID: orderID,
					From:    model.OrderStateCompleted,
					To:      model.OrderStateRefunded,
				}},
			}, nil
		},
		Applied: func(ctx context.Context) (bool, error) {
			current, err := p.order(ctx, orderID)
			if err != nil {
				return false, err
			}
			return current.Status == model.OrderStateRefunded, nil
		},
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("failed refund order `%s`: %w", orderID, err)
	}

	order.Status = model.OrderStateRefunded
	p.log.Info("order refunded", zap.String("orderID", orderID), zap.String("buyerID", order.BuyerID))
	p.events.Emit(events.Event{
		Kind:       events.OrderRefunded,
		AccountID:  order.BuyerID,
		OrderID:    orderID,
		Amount:     order.Amount(),
		Currency:   order.Currency,
		OccurredAt: p.now().UTC(),
	})
	return order, nil
}

func (p *Processor) order(ctx context.Context, orderID string) (model.Order, error) {
	order, err := p.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, errstore.ErrNotFoundData) {
			return model.Order{}, fmt.Errorf("%w: `%s`", ErrOrderNotFound, orderID)
		}
		return model.Order{}, fmt.Errorf("failed get order: %w", err)
	}
	return order, nil
}
