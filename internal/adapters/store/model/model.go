package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmixer/walletledger/internal/core/money"
)

type Wallet struct {
	CreatedAt     time.Time
	UpdatedAt     time.Time
	LastClaimAt   *time.Time
	AccountID     string          `gorm:"primarykey"`
	MainUSD       decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_wallets_main_usd,main_usd >= 0"`
	PurchaseUSD   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_wallets_purchase_usd,purchase_usd >= 0"`
	MainLocal     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_wallets_main_local,main_local >= 0"`
	PurchaseLocal decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_wallets_purchase_local,purchase_local >= 0"`
	MiningBalance decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0;check:chk_wallets_mining_balance,mining_balance >= 0"`
	Streak        int64           `gorm:"not null;default:0"`
	OrderCount    int64           `gorm:"not null;default:0"`
	Version       int64           `gorm:"not null;default:0"`
	Frozen        bool            `gorm:"not null;default:false"`
}

func (w *Wallet) Main(c money.Currency) decimal.Decimal {
	if c.IsLocal() {
		return w.MainLocal
	}
	return w.MainUSD
}

func (w *Wallet) Purchase(c money.Currency) decimal.Decimal {
	if c.IsLocal() {
		return w.PurchaseLocal
	}
	return w.PurchaseUSD
}

func (w *Wallet) AddMain(c money.Currency, d decimal.Decimal) {
	if c.IsLocal() {
		w.MainLocal = w.MainLocal.Add(d)
		return
	}
	w.MainUSD = w.MainUSD.Add(d)
}

func (w *Wallet) AddPurchase(c money.Currency, d decimal.Decimal) {
	if c.IsLocal() {
		w.PurchaseLocal = w.PurchaseLocal.Add(d)
		return
	}
	w.PurchaseUSD = w.PurchaseUSD.Add(d)
}

// NegativeField reports the first field that breaks the non-negative invariant.
func (w *Wallet) NegativeField() (string, bool) {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"main_usd", w.MainUSD},
		{"purchase_usd", w.PurchaseUSD},
		{"main_local", w.MainLocal},
		{"purchase_local", w.PurchaseLocal},
		{"mining_balance", w.MiningBalance},
	}
	for _, f := range fields {
		if f.value.IsNegative() {
			return f.name, true
		}
	}
	if w.Streak < 0 {
		return "streak", true
	}
	return "", false
}

type OrderStatus string

const (
	OrderStatePending   OrderStatus = "PENDING"
	OrderStateCompleted OrderStatus = "COMPLETED"
	OrderStateFailed    OrderStatus = "FAILED"
	OrderStateRefunded  OrderStatus = "REFUNDED"
)

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatePending:
		return to == OrderStateCompleted || to == OrderStateFailed
	case OrderStateCompleted:
		return to == OrderStateRefunded
	}
	return false
}

type PaymentMode string

const (
	PaymentModeMain  PaymentMode = "MAIN"
	PaymentModeSplit PaymentMode = "SPLIT"
)

type Order struct {
	CreatedAt        time.Time
	UpdatedAt        time.Time
	AffiliateID      *string         `gorm:"index"`
	OrderID          string          `gorm:"primarykey"`
	IdempotencyKey   string          `gorm:"uniqueIndex;not null"`
	BuyerID          string          `gorm:"index;not null"`
	ProductID        string          `gorm:"not null"`
	SellerID         string          `gorm:"not null"`
	Currency         money.Currency  `gorm:"not null"`
	Status           OrderStatus     `gorm:"index;default:PENDING"`
	PaymentMode      PaymentMode     `gorm:"not null"`
	AmountUSD        decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	AmountLocal      decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	DebitMain        decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	DebitPurchase    decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	CommissionAmount decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	CommissionRate   decimal.Decimal `gorm:"type:numeric(6,4);not null;default:0"`
	SellerShare      decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	SplitUsed        bool
}

// Amount is the order amount in the currency it was paid with.
func (o *Order) Amount() decimal.Decimal {
	if o.Currency.IsLocal() {
		return o.AmountLocal
	}
	return o.AmountUSD
}

type Commission struct {
	CreatedAt      time.Time
	ID             uint            `gorm:"primarykey"`
	OrderID        string          `gorm:"uniqueIndex;not null"`
	PayerAccountID string          `gorm:"not null"`
	PayeeAccountID string          `gorm:"index;not null"`
	Currency       money.Currency  `gorm:"not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Rate           decimal.Decimal `gorm:"type:numeric(6,4);not null"`
}

type OrderTransition struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

// Mutation is applied by the store as a single all-or-nothing unit.
// Every wallet carries the Version it was read at.
type Mutation struct {
	Wallets     []Wallet
	Orders      []Order
	Transitions []OrderTransition
	Commissions []Commission
}
