package rest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/mining"
	"github.com/playmixer/walletledger/internal/core/money"
)

type tBalance struct {
	Main     decimal.Decimal `json:"main"`
	Purchase decimal.Decimal `json:"purchase"`
}

type tWallet struct {
	AccountID     string              `json:"account_id"`
	Balances      map[string]tBalance `json:"balances"`
	MiningBalance decimal.Decimal     `json:"mining_balance"`
	Streak        int64               `json:"streak"`
	Frozen        bool                `json:"frozen,omitempty"`
}

func newWallet(w *model.Wallet) tWallet {
	return tWallet{
		AccountID: w.AccountID,
		Balances: map[string]tBalance{
			string(money.USDT): {Main: w.MainUSD, Purchase: w.PurchaseUSD},
			string(money.INR):  {Main: w.MainLocal, Purchase: w.PurchaseLocal},
		},
		MiningBalance: w.MiningBalance,
		Streak:        w.Streak,
		Frozen:        w.Frozen,
	}
}

type tPurchase struct {
	ProductID   string `json:"product_id"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	AffiliateID string `json:"affiliate_id,omitempty"`
	Split       bool   `json:"split"`
}

type tOrder struct {
	createdAt        time.Time
	AffiliateID      *string           `json:"affiliate_id,omitempty"`
	OrderID          string            `json:"order_id"`
	ProductID        string            `json:"product_id"`
	Currency         money.Currency    `json:"currency"`
	Status           model.OrderStatus `json:"status"`
	PaymentMode      model.PaymentMode `json:"payment_mode"`
	CreatedAt        string            `json:"created_at"`
	Amount           decimal.Decimal   `json:"amount"`
	AmountUSD        decimal.Decimal   `json:"amount_usd"`
	AmountLocal      decimal.Decimal   `json:"amount_local"`
	DebitMain        decimal.Decimal   `json:"debit_main"`
	DebitPurchase    decimal.Decimal   `json:"debit_purchase"`
	CommissionAmount decimal.Decimal   `json:"commission_amount"`
	SplitUsed        bool              `json:"split_used"`
}

func newOrder(o *model.Order) *tOrder {
	r := &tOrder{
		createdAt:        o.CreatedAt,
		AffiliateID:      o.AffiliateID,
		OrderID:          o.OrderID,
		ProductID:        o.ProductID,
		Currency:         o.Currency,
		Status:           o.Status,
		PaymentMode:      o.PaymentMode,
		Amount:           o.Amount(),
		AmountUSD:        o.AmountUSD,
		AmountLocal:      o.AmountLocal,
		DebitMain:        o.DebitMain,
		DebitPurchase:    o.DebitPurchase,
		CommissionAmount: o.CommissionAmount,
		SplitUsed:        o.SplitUsed,
	}
	return r.Prepare()
}

func (o *tOrder) Prepare() *tOrder {
	o.CreatedAt = o.createdAt.Format(time.RFC3339)
	return o
}

type tCommission struct {
	OrderID  string          `json:"order_id"`
	Currency money.Currency  `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
	Rate     decimal.Decimal `json:"rate"`
}

type tEarnings struct {
	Total   money.Pair    `json:"total"`
	Records []tCommission `json:"records"`
}

type tMiningStatus struct {
	NextClaimAt      *string         `json:"next_claim_at,omitempty"`
	State            mining.State    `json:"state"`
	Balance          decimal.Decimal `json:"balance"`
	NextReward       decimal.Decimal `json:"next_reward"`
	RemainingSeconds int64           `json:"remaining_seconds"`
	Streak           int64           `json:"streak"`
}

type tClaim struct {
	ClaimedAt string          `json:"claimed_at"`
	Reward    decimal.Decimal `json:"reward"`
	Bonus     decimal.Decimal `json:"bonus"`
	Balance   decimal.Decimal `json:"balance"`
	Streak    int64           `json:"streak"`
}

type tError struct {
	Error            string `json:"error"`
	RemainingSeconds int64  `json:"remaining_seconds,omitempty"`
}

// seconds rounds up, so a countdown never reaches zero early.
func seconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	if d%time.Second > 0 {
		s++
	}
	return s
}
