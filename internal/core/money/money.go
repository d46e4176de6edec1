package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type Currency string

const (
	USDT Currency = "USDT"
	INR  Currency = "INR"
)

var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrNegativeAmount  = errors.New("amount is negative")
	ErrAmountPrecision = errors.New("amount exceeds currency precision")
)

// CommissionPlaces is the precision every commission is rounded to.
const CommissionPlaces int32 = 2

var two = decimal.NewFromInt(2)

// ParseCurrency normalizes the currency codes accepted at the API boundary.
func ParseCurrency(s string) (Currency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "USDT", "USD":
		return USDT, nil
	case "INR", "LOCAL":
		return INR, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCurrency, s)
}

// Precision is the number of decimal places a balance in c may carry.
// The local currency is kept in whole units.
func (c Currency) Precision() int32 {
	if c == USDT {
		return 2
	}
	return 0
}

func (c Currency) IsLocal() bool {
	return c != USDT
}

// Parse reads a non-negative amount of currency c.
func Parse(s string, c Currency) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed parse amount %q: %w", s, err)
	}
	if err := Validate(d, c); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// Validate checks that d is a non-negative amount representable in c.
func Validate(d decimal.Decimal, c Currency) error {
	if d.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeAmount, d)
	}
	if !d.Equal(d.Truncate(c.Precision())) {
		return fmt.Errorf("%w: %s %s", ErrAmountPrecision, d, c)
	}
	return nil
}

// RoundHalfUp rounds a non-negative value to places decimals, ties going up.
func RoundHalfUp(d decimal.Decimal, places int32) decimal.Decimal {
	return d.Round(places)
}

// Split divides amount into the part debited from the main balance and the
// part debited from the purchase balance. The main part is half the amount
// floored to the currency precision; the purchase part takes the remainder,
// so the two always sum to amount.
func Split(amount decimal.Decimal, c Currency) (main, purchase decimal.Decimal) {
	main = amount.Div(two).RoundFloor(c.Precision())
	purchase = amount.Sub(main)
	return main, purchase
}

// Pair is an amount expressed in both supported currencies.
type Pair struct {
	USD   decimal.Decimal `json:"usd" yaml:"usd"`
	Local decimal.Decimal `json:"local" yaml:"local"`
}

func (p Pair) Get(c Currency) decimal.Decimal {
	if c.IsLocal() {
		return p.Local
	}
	return p.USD
}

func (p Pair) IsZero() bool {
	return p.USD.IsZero() && p.Local.IsZero()
}
