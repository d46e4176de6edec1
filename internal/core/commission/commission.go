package commission

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/money"
)

var ErrRateOutOfRange = errors.New("commission rate out of range")

var one = decimal.NewFromInt(1)

// Distribute derives the commission record an order pays to its affiliate.
// The amount is amount*rate rounded half up to two places.
func Distribute(orderID string, amount decimal.Decimal, c money.Currency, rate decimal.Decimal, payer, payee string) (model.Commission, error) {
	if rate.IsNegative() || rate.GreaterThan(one) {
		return model.Commission{}, fmt.Errorf("%w: %s", ErrRateOutOfRange, rate)
	}
	return model.Commission{
		OrderID:        orderID,
		PayerAccountID: payer,
		PayeeAccountID: payee,
		Currency:       c,
		Amount:         money.RoundHalfUp(amount.Mul(rate), money.CommissionPlaces),
		Rate:           rate,
	}, nil
}

// Total sums commission amounts per currency.
func Total(records []*model.Commission) money.Pair {
	total := money.Pair{}
	for _, r := range records {
		if r.Currency.IsLocal() {
			total.Local = total.Local.Add(r.Amount)
			continue
		}
		total.USD = total.USD.Add(r.Amount)
	}
	return total
}

// RateResolver decides which commission rate applies to an affiliate.
type RateResolver interface {
	Rate(ctx context.Context, affiliateID string) (decimal.Decimal, error)
}

// FlatRate applies the same rate to every affiliate.
type FlatRate decimal.Decimal

func (f FlatRate) Rate(_ context.Context, _ string) (decimal.Decimal, error) {
	return decimal.Decimal(f), nil
}

// AffiliateRanks looks up the rank of an affiliate account.
type AffiliateRanks interface {
	Rank(ctx context.Context, affiliateID string) (string, error)
}

// RankRates resolves the rate from the affiliate rank, falling back to
// Default for ranks missing from Rates.
type RankRates struct {
	Ranks   AffiliateRanks
	Rates   map[string]decimal.Decimal
	Default decimal.Decimal
}

func (r *RankRates) Rate(ctx context.Context, affiliateID string) (decimal.Decimal, error) {
	rank, err := r.Ranks.Rank(ctx, affiliateID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed resolve affiliate rank: %w", err)
	}
	if rate, ok := r.Rates[rank]; ok {
		return rate, nil
	}
	return r.Default, nil
}

// StaticRanks is an in-memory AffiliateRanks.
type StaticRanks map[string]string

func (s StaticRanks) Rank(_ context.Context, affiliateID string) (string, error) {
	return s[affiliateID], nil
}
