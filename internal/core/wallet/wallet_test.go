package wallet_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/playmixer/walletledger/internal/adapters/catalog"
	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/adapters/store/memory"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/ledger"
	"github.com/playmixer/walletledger/internal/core/mining"
	"github.com/playmixer/walletledger/internal/core/money"
	"github.com/playmixer/walletledger/internal/core/payment"
	"github.com/playmixer/walletledger/internal/core/wallet"
	"github.com/playmixer/walletledger/internal/mocks/store"
)

func newService(s *memory.Store) *wallet.Service {
	l := ledger.New(ledger.Config{MaxAttempts: 3}, s)
	products := catalog.Static{
		"course": {ID: "course", SellerID: "seller", Price: money.Pair{USD: decimal.NewFromInt(60)}},
	}
	payments := payment.New(payment.Config{CommissionRate: decimal.RequireFromString("0.7")}, l, s, products)
	miner := mining.New(mining.Config{
		Cooldown:       24 * time.Hour,
		StreakWindow:   48 * time.Hour,
		InactiveReward: decimal.NewFromInt(10),
		ActiveReward:   decimal.NewFromInt(20),
		BonusEvery:     7,
	}, l)
	return wallet.New(s, payments, miner)
}

func TestService_OpenProvisionsLazily(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := newService(s)

	w, err := svc.Open(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, "new-user", w.AccountID)
	assert.True(t, w.MainUSD.IsZero())

	again, err := svc.Open(ctx, "new-user")
	require.NoError(t, err)
	assert.Equal(t, w.CreatedAt, again.CreatedAt)
}

func TestService_ClaimProvisionsWallet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := newService(s)

	st, err := svc.MiningStatus(ctx, "miner")
	require.NoError(t, err)
	assert.Equal(t, mining.StateClaimable, st.State)

	claim, err := svc.Claim(ctx, "miner")
	require.NoError(t, err)
	assert.Equal(t, "10", claim.Balance.String())
}

func TestService_PurchaseThenEarnings(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.Seed(model.Wallet{AccountID: "buyer", MainUSD: decimal.NewFromInt(200)})
	s.Seed(model.Wallet{AccountID: "seller"})
	s.Seed(model.Wallet{AccountID: "affiliate"})
	svc := newService(s)

	req := payment.PurchaseRequest{
		BuyerID:     "buyer",
		ProductID:   "course",
		Amount:      decimal.NewFromInt(60),
		Currency:    money.USDT,
		AffiliateID: "affiliate",
	}
	first, err := svc.Purchase(ctx, req)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, req)
	require.NoError(t, err)

	earnings, err := svc.Earnings(ctx, "affiliate")
	require.NoError(t, err)
	assert.Len(t, earnings.Records, 2)
	assert.Equal(t, "84", earnings.Total.USD.String())

	_, err = svc.Refund(ctx, first.OrderID)
	require.NoError(t, err)
	earnings, err = svc.Earnings(ctx, "affiliate")
	require.NoError(t, err)
	assert.Len(t, earnings.Records, 1)
	assert.Equal(t, "42", earnings.Total.USD.String())

	orders, err := svc.Orders(ctx, "buyer")
	require.NoError(t, err)
	assert.Len(t, orders, 2)
}

func TestService_Earnings(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		records []*model.Commission
		err     error
		status  model.OrderStatus
		usd     string
		local   string
	}{
		{
			name:  "none",
			err:   errstore.ErrNotFoundData,
			usd:   "0",
			local: "0",
		},
		{
			name: "both currencies",
			records: []*model.Commission{
				{OrderID: "o1", Currency: money.USDT, Amount: decimal.RequireFromString("6.99")},
				{OrderID: "o2", Currency: money.INR, Amount: decimal.RequireFromString("3499.30")},
			},
			status: model.OrderStateCompleted,
			usd:    "6.99",
			local:  "3499.3",
		},
		{
			name: "refunded",
			records: []*model.Commission{
				{OrderID: "o1", Currency: money.USDT, Amount: decimal.NewFromInt(42)},
			},
			status: model.OrderStateRefunded,
			usd:    "0",
			local:  "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			storeMock := store.NewMockStore(ctrl)
			storeMock.EXPECT().
				GetCommissionsByPayee(ctx, "affiliate").
				Return(tt.records, tt.err).
				Times(1)
			storeMock.EXPECT().
				GetOrder(ctx, gomock.Any()).
				Return(model.Order{Status: tt.status}, nil).
				Times(len(tt.records))

			svc := wallet.New(storeMock, nil, nil)
			earnings, err := svc.Earnings(ctx, "affiliate")
			require.NoError(t, err)
			assert.Equal(t, tt.usd, earnings.Total.USD.String())
			assert.Equal(t, tt.local, earnings.Total.Local.String())
		})
	}
}
