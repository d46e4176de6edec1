package payment_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playmixer/walletledger/internal/adapters/catalog"
	"github.com/playmixer/walletledger/internal/adapters/events"
	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/adapters/store/memory"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/commission"
	"github.com/playmixer/walletledger/internal/core/ledger"
	"github.com/playmixer/walletledger/internal/core/money"
	"github.com/playmixer/walletledger/internal/core/payment"
)

var (
	cfg = payment.Config{
		CommissionRate:    decimal.RequireFromString("0.70"),
		TreasuryAccountID: "treasury",
	}

	products = catalog.Static{
		"course": {
			ID:       "course",
			Title:    "Trading course",
			SellerID: "seller",
			Price:    money.Pair{USD: dec("60"), Local: dec("4999")},
		},
		"ebook": {
			ID:    "ebook",
			Title: "Ebook",
			Price: money.Pair{USD: dec("9.99")},
		},
	}
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Emit(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fixture struct {
	store  *memory.Store
	proc   *payment.Processor
	events *recorder
}

func newFixture(t *testing.T, wallets ...model.Wallet) *fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New(), wallets...)
}

type ledgerStore interface {
	ledger.Store
	payment.Store
}

func newFixtureWithStore(t *testing.T, s *memory.Store, wallets ...model.Wallet) *fixture {
	t.Helper()
	return newFixtureOn(t, s, s, wallets...)
}

func newFixtureOn(t *testing.T, mem *memory.Store, s ledgerStore, wallets ...model.Wallet) *fixture {
	t.Helper()
	for _, id := range []string{"seller", "treasury", "affiliate"} {
		mem.Seed(model.Wallet{AccountID: id})
	}
	for _, w := range wallets {
		mem.Seed(w)
	}
	rec := &recorder{}
	l := ledger.New(ledger.Config{MaxAttempts: 50}, s)
	return &fixture{
		store:  mem,
		proc:   payment.New(cfg, l, s, products, payment.Events(rec)),
		events: rec,
	}
}

func (f *fixture) wallet(t *testing.T, id string) model.Wallet {
	t.Helper()
	w, err := f.store.GetWallet(context.Background(), id)
	require.NoError(t, err)
	return w
}

func TestProcessor_PurchaseSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("100"), PurchaseUSD: dec("50")})

	order, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:   "buyer",
		ProductID: "course",
		Amount:    dec("60"),
		Currency:  money.USDT,
		Split:     true,
	})
	require.NoError(t, err)

	buyer := f.wallet(t, "buyer")
	assert.Equal(t, "70", buyer.MainUSD.String())
	assert.Equal(t, "20", buyer.PurchaseUSD.String())
	assert.Equal(t, int64(1), buyer.OrderCount)
	assert.Equal(t, "60", f.wallet(t, "seller").MainUSD.String())

	assert.Equal(t, model.OrderStateCompleted, order.Status)
	assert.Equal(t, model.PaymentModeSplit, order.PaymentMode)
	assert.True(t, order.SplitUsed)
	assert.Equal(t, "60", order.AmountUSD.String())

	orders, err := f.store.GetUserOrders(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, events.OrderCompleted, f.events.events[0].Kind)
	assert.Equal(t, order.OrderID, f.events.events[0].OrderID)
}

func TestProcessor_PurchaseInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("10")})

	_, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:   "buyer",
		ProductID: "course",
		Amount:    dec("60"),
		Currency:  money.USDT,
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, payment.KindInsufficientFunds, payment.ErrorKind(err))

	buyer := f.wallet(t, "buyer")
	assert.Equal(t, "10", buyer.MainUSD.String())
	assert.Equal(t, int64(0), buyer.Version)
	_, err = f.store.GetUserOrders(ctx, "buyer")
	assert.ErrorIs(t, err, errstore.ErrNotFoundData)
	assert.Empty(t, f.events.events)
}

func TestProcessor_PurchaseSplitNeedsBothHalves(t *testing.T) {
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("100"), PurchaseUSD: dec("29.99")})

	_, err := f.proc.Purchase(context.Background(), payment.PurchaseRequest{
		BuyerID:   "buyer",
		ProductID: "course",
		Amount:    dec("60"),
		Currency:  money.USDT,
		Split:     true,
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Equal(t, "100", f.wallet(t, "buyer").MainUSD.String())
}

func TestProcessor_PurchaseLocalSplitOddAmount(t *testing.T) {
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainLocal: dec("5000"), PurchaseLocal: dec("5000")})

	order, err := f.proc.Purchase(context.Background(), payment.PurchaseRequest{
		BuyerID:   "buyer",
		ProductID: "course",
		Amount:    dec("4999"),
		Currency:  money.INR,
		Split:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "2499", order.DebitMain.String())
	assert.Equal(t, "2500", order.DebitPurchase.String())

	buyer := f.wallet(t, "buyer")
	assert.Equal(t, "2501", buyer.MainLocal.String())
	assert.Equal(t, "2500", buyer.PurchaseLocal.String())
	assert.Equal(t, "4999", f.wallet(t, "seller").MainLocal.String())
}

func TestProcessor_PurchaseWithAffiliate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("100")})

	order, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:     "buyer",
		ProductID:   "course",
		Amount:      dec("60"),
		Currency:    money.USDT,
		AffiliateID: "affiliate",
	})
	require.NoError(t, err)

	buyer := f.wallet(t, "buyer")
	seller := f.wallet(t, "seller")
	affiliate := f.wallet(t, "affiliate")
	assert.Equal(t, "40", buyer.MainUSD.String())
	assert.Equal(t, "18", seller.MainUSD.String())
	assert.Equal(t, "42", affiliate.MainUSD.String())

	debit := order.DebitMain.Add(order.DebitPurchase)
	assert.True(t, debit.Equal(seller.MainUSD.Add(affiliate.MainUSD)), "money is conserved")
	assert.True(t, f.wallet(t, "treasury").MainUSD.IsZero())

	records, err := f.store.GetCommissionsByPayee(ctx, "affiliate")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, order.OrderID, records[0].OrderID)
	assert.Equal(t, "0.7", records[0].Rate.String())
}

func TestProcessor_PurchaseAffiliateRateRounding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("100")})

	order, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:     "buyer",
		ProductID:   "ebook",
		Amount:      dec("9.99"),
		Currency:    money.USDT,
		AffiliateID: "affiliate",
	})
	require.NoError(t, err)

	// 9.99 * 0.70 = 6.993
	assert.Equal(t, "6.99", order.CommissionAmount.String())
	assert.Equal(t, "3", order.SellerShare.String())
	assert.Equal(t, "treasury", order.SellerID)
	assert.Equal(t, "3", f.wallet(t, "treasury").MainUSD.String())
}

func TestProcessor_PurchaseRankRates(t *testing.T) {
	s := memory.New()
	for _, id := range []string{"seller", "affiliate"} {
		s.Seed(model.Wallet{AccountID: id})
	}
	s.Seed(model.Wallet{AccountID: "buyer", MainUSD: dec("100")})
	rates := &commission.RankRates{
		Ranks:   commission.StaticRanks{"affiliate": "gold"},
		Rates:   map[string]decimal.Decimal{"gold": dec("0.45")},
		Default: dec("0.20"),
	}
	proc := payment.New(cfg, ledger.New(ledger.Config{MaxAttempts: 3}, s), s, products, payment.Rates(rates))

	order, err := proc.Purchase(context.Background(), payment.PurchaseRequest{
		BuyerID:     "buyer",
		ProductID:   "course",
		Amount:      dec("60"),
		Currency:    money.USDT,
		AffiliateID: "affiliate",
	})
	require.NoError(t, err)
	assert.Equal(t, "27", order.CommissionAmount.String())
	assert.Equal(t, "33", order.SellerShare.String())
}

func TestProcessor_PurchaseSelfReferralPaysNoCommission(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("100")})

	order, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:     "buyer",
		ProductID:   "course",
		Amount:      dec("60"),
		Currency:    money.USDT,
		AffiliateID: "buyer",
	})
	require.NoError(t, err)
	assert.Nil(t, order.AffiliateID)
	assert.True(t, order.CommissionAmount.IsZero())
	assert.Equal(t, "60", f.wallet(t, "seller").MainUSD.String())

	_, err = f.store.GetCommissionsByPayee(ctx, "buyer")
	assert.ErrorIs(t, err, errstore.ErrNotFoundData)
}

func TestProcessor_PurchaseRejects(t *testing.T) {
	tests := []struct {
		name string
		req  payment.PurchaseRequest
		want error
		kind payment.Kind
	}{
		{
			name: "price mismatch",
			req:  payment.PurchaseRequest{BuyerID: "buyer", ProductID: "course", Amount: dec("59.99"), Currency: money.USDT},
			want: payment.ErrPriceMismatch,
			kind: payment.KindPriceMismatch,
		},
		{
			name: "no local price",
			req:  payment.PurchaseRequest{BuyerID: "buyer", ProductID: "ebook", Amount: dec("10"), Currency: money.INR},
			want: payment.ErrPriceMismatch,
			kind: payment.KindPriceMismatch,
		},
		{
			name: "unknown product",
			req:  payment.PurchaseRequest{BuyerID: "buyer", ProductID: "ghost", Amount: dec("1"), Currency: money.USDT},
			want: payment.ErrProductNotFound,
			kind: payment.KindProductNotFound,
		},
		{
			name: "zero amount",
			req:  payment.PurchaseRequest{BuyerID: "buyer", ProductID: "course", Amount: decimal.Zero, Currency: money.USDT},
			want: payment.ErrInvalidRequest,
			kind: payment.KindInvalidRequest,
		},
		{
			name: "fractional local amount",
			req:  payment.PurchaseRequest{BuyerID: "buyer", ProductID: "course", Amount: dec("4999.5"), Currency: money.INR},
			want: payment.ErrInvalidRequest,
			kind: payment.KindInvalidRequest,
		},
		{
			name: "unknown currency",
			req:  payment.PurchaseRequest{BuyerID: "buyer", ProductID: "course", Amount: dec("60"), Currency: "EUR"},
			want: payment.ErrInvalidRequest,
			kind: payment.KindInvalidRequest,
		},
		{
			name: "unknown buyer",
			req:  payment.PurchaseRequest{BuyerID: "nobody", ProductID: "course", Amount: dec("60"), Currency: money.USDT},
			want: ledger.ErrWalletNotFound,
			kind: payment.KindWalletNotFound,
		},
		{
			name: "unknown affiliate",
			req: payment.PurchaseRequest{
				BuyerID: "buyer", ProductID: "course", Amount: dec("60"), Currency: money.USDT, AffiliateID: "nobody",
			},
			want: ledger.ErrWalletNotFound,
			kind: payment.KindWalletNotFound,
		},
		{
			name: "own product",
			req:  payment.PurchaseRequest{BuyerID: "seller", ProductID: "course", Amount: dec("60"), Currency: money.USDT},
			want: payment.ErrInvalidRequest,
			kind: payment.KindInvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("100"), MainLocal: dec("10000")})

			_, err := f.proc.Purchase(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, payment.ErrorKind(err))
			assert.Equal(t, "100", f.wallet(t, "buyer").MainUSD.String())
		})
	}
}

func TestProcessor_PurchaseReplaysIdempotencyKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("200")})
	req := payment.PurchaseRequest{
		BuyerID:        "buyer",
		ProductID:      "course",
		Amount:         dec("60"),
		Currency:       money.USDT,
		AffiliateID:    "affiliate",
		IdempotencyKey: "checkout-1",
	}

	first, err := f.proc.Purchase(ctx, req)
	require.NoError(t, err)
	second, err := f.proc.Purchase(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, "140", f.wallet(t, "buyer").MainUSD.String())
	assert.Len(t, f.events.events, 1)

	other := req
	other.ProductID = "ebook"
	other.Amount = dec("9.99")
	_, err = f.proc.Purchase(ctx, other)
	assert.ErrorIs(t, err, payment.ErrKeyReused)
}

func TestProcessor_PurchaseKeyReusedWithOtherTerms(t *testing.T) {
	base := payment.PurchaseRequest{
		BuyerID:        "buyer",
		ProductID:      "course",
		Amount:         dec("60"),
		Currency:       money.USDT,
		IdempotencyKey: "checkout-2",
	}
	tests := []struct {
		name    string
		change  func(r *payment.PurchaseRequest)
		wantErr error
	}{
		{name: "split", change: func(r *payment.PurchaseRequest) { r.Split = true }, wantErr: payment.ErrKeyReused},
		{name: "affiliate", change: func(r *payment.PurchaseRequest) { r.AffiliateID = "affiliate" }, wantErr: payment.ErrKeyReused},
		{name: "amount", change: func(r *payment.PurchaseRequest) { r.Amount = dec("61") }, wantErr: payment.ErrKeyReused},
		{name: "currency", change: func(r *payment.PurchaseRequest) { r.Currency = money.INR; r.Amount = dec("4999") }, wantErr: payment.ErrKeyReused},
		{name: "self referral is no affiliate", change: func(r *payment.PurchaseRequest) { r.AffiliateID = "buyer" }},
		{name: "identical", change: func(*payment.PurchaseRequest) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("200"), PurchaseUSD: dec("100"), MainLocal: dec("10000")})
			first, err := f.proc.Purchase(ctx, base)
			require.NoError(t, err)

			again := base
			tt.change(&again)
			second, err := f.proc.Purchase(ctx, again)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, payment.KindInvalidRequest, payment.ErrorKind(err))
			} else {
				require.NoError(t, err)
				assert.Equal(t, first.OrderID, second.OrderID)
			}
			assert.Equal(t, "140", f.wallet(t, "buyer").MainUSD.String())
			assert.Equal(t, "100", f.wallet(t, "buyer").PurchaseUSD.String())
		})
	}
}

func TestProcessor_ConcurrentPurchasesSameKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("1000")})
	req := payment.PurchaseRequest{
		BuyerID:        "buyer",
		ProductID:      "course",
		Amount:         dec("60"),
		Currency:       money.USDT,
		AffiliateID:    "affiliate",
		IdempotencyKey: "double-click",
	}

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	wg := sync.WaitGroup{}
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := f.proc.Purchase(ctx, req)
			ids[i], errs[i] = order.OrderID, err
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	records, err := f.store.GetCommissionsByPayee(ctx, "affiliate")
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, "940", f.wallet(t, "buyer").MainUSD.String())
	assert.Equal(t, "42", f.wallet(t, "affiliate").MainUSD.String())
}

func TestProcessor_ConcurrentPurchasesNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("130")})

	const workers = 10
	var completed atomic.Int32
	wg := sync.WaitGroup{}
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
				BuyerID:        "buyer",
				ProductID:      "course",
				Amount:         dec("60"),
				Currency:       money.USDT,
				IdempotencyKey: fmt.Sprintf("key-%d", i),
			})
			if err == nil {
				completed.Add(1)
				return
			}
			if !errors.Is(err, ledger.ErrInsufficientFunds) && !errors.Is(err, ledger.ErrTransientFailure) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	n := int64(completed.Load())
	assert.LessOrEqual(t, n, int64(2))
	buyer := f.wallet(t, "buyer")
	assert.False(t, buyer.MainUSD.IsNegative())
	assert.Equal(t, dec("130").Sub(dec("60").Mul(decimal.NewFromInt(n))).String(), buyer.MainUSD.String())
	assert.Equal(t, n, buyer.OrderCount)
	assert.Equal(t, dec("60").Mul(decimal.NewFromInt(n)).String(), f.wallet(t, "seller").MainUSD.String())
}

// lostReply applies the first commit and then reports the store unreachable.
type lostReply struct {
	*memory.Store
	pending atomic.Int32
}

func (l *lostReply) Commit(ctx context.Context, m *model.Mutation) error {
	err := l.Store.Commit(ctx, m)
	if err == nil && l.pending.Add(-1) >= 0 {
		return errors.Join(errstore.ErrUnavailable, context.DeadlineExceeded)
	}
	return err
}

func TestProcessor_PurchaseUnknownOutcomeAppliedOnce(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s := &lostReply{Store: mem}
	s.pending.Store(1)
	f := newFixtureOn(t, mem, s, model.Wallet{AccountID: "buyer", MainUSD: dec("100")})

	_, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:        "buyer",
		ProductID:      "course",
		Amount:         dec("60"),
		Currency:       money.USDT,
		IdempotencyKey: "flaky-network",
	})
	require.NoError(t, err)
	assert.Equal(t, "40", f.wallet(t, "buyer").MainUSD.String())
	orders, err := mem.GetUserOrders(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestProcessor_Refund(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("100"), PurchaseUSD: dec("50")})

	order, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:     "buyer",
		ProductID:   "course",
		Amount:      dec("60"),
		Currency:    money.USDT,
		Split:       true,
		AffiliateID: "affiliate",
	})
	require.NoError(t, err)

	refunded, err := f.proc.Refund(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateRefunded, refunded.Status)

	buyer := f.wallet(t, "buyer")
	assert.Equal(t, "100", buyer.MainUSD.String())
	assert.Equal(t, "50", buyer.PurchaseUSD.String())
	assert.True(t, f.wallet(t, "seller").MainUSD.IsZero())
	assert.True(t, f.wallet(t, "affiliate").MainUSD.IsZero())

	stored, err := f.store.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateRefunded, stored.Status)
	require.Len(t, f.events.events, 2)
	assert.Equal(t, events.OrderRefunded, f.events.events[1].Kind)

	_, err = f.proc.Refund(ctx, order.OrderID)
	assert.ErrorIs(t, err, payment.ErrInvalidTransition)

	_, err = f.proc.Refund(ctx, "missing")
	assert.ErrorIs(t, err, payment.ErrOrderNotFound)
}

func TestProcessor_RefundAfterSellerSpent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, model.Wallet{AccountID: "buyer", MainUSD: dec("100")})

	order, err := f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:     "buyer",
		ProductID:   "course",
		Amount:      dec("60"),
		Currency:    money.USDT,
		AffiliateID: "affiliate",
	})
	require.NoError(t, err)

	_, err = f.proc.Purchase(ctx, payment.PurchaseRequest{
		BuyerID:   "seller",
		ProductID: "ebook",
		Amount:    dec("9.99"),
		Currency:  money.USDT,
	})
	require.NoError(t, err)

	_, err = f.proc.Refund(ctx, order.OrderID)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	stored, err := f.store.GetOrder(ctx, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStateCompleted, stored.Status)
	assert.Equal(t, "40", f.wallet(t, "buyer").MainUSD.String())
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want payment.Kind
	}{
		{err: nil, want: ""},
		{err: fmt.Errorf("wrapped: %w", ledger.ErrWalletFrozen), want: payment.KindWalletFrozen},
		{err: fmt.Errorf("%w: %w", ledger.ErrTransientFailure, errstore.ErrConflict), want: payment.KindTransientFailure},
		{err: payment.ErrOrderNotFound, want: payment.KindOrderNotFound},
		{err: errors.New("boom"), want: payment.KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, payment.ErrorKind(tt.err))
	}
}
