package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/adapters/store/memory"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/ledger"
	"github.com/playmixer/walletledger/internal/mocks/store"
)

var cfg = ledger.Config{MaxAttempts: 3}

func credit(id string, amount int64) ledger.Tx {
	return ledger.Tx{
		Name:     "credit",
		Accounts: []string{id},
		Build: func(_ context.Context, snap ledger.Snapshot) (*model.Mutation, error) {
			w := snap[id]
			w.MainUSD = w.MainUSD.Add(decimal.NewFromInt(amount))
			return &model.Mutation{Wallets: snap.Wallets(id)}, nil
		},
	}
}

func TestLedger_UpdateRetriesConflicts(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := store.NewMockStore(ctrl)
	storeMock.EXPECT().
		GetWallet(gomock.Any(), "acc").
		Return(model.Wallet{AccountID: "acc", Version: 1}, nil).
		Times(2)
	gomock.InOrder(
		storeMock.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(errstore.ErrConflict),
		storeMock.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(nil),
	)

	l := ledger.New(cfg, storeMock)
	assert.NoError(t, l.Update(ctx, credit("acc", 5)))
}

func TestLedger_UpdateGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := store.NewMockStore(ctrl)
	storeMock.EXPECT().
		GetWallet(gomock.Any(), "acc").
		Return(model.Wallet{AccountID: "acc"}, nil).
		Times(cfg.MaxAttempts)
	storeMock.EXPECT().
		Commit(gomock.Any(), gomock.Any()).
		Return(errstore.ErrConflict).
		Times(cfg.MaxAttempts)

	l := ledger.New(cfg, storeMock)
	err := l.Update(ctx, credit("acc", 5))
	assert.ErrorIs(t, err, ledger.ErrTransientFailure)
	assert.ErrorIs(t, err, errstore.ErrConflict)
}

func TestLedger_UpdateDoesNotRetryBuildErrors(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	storeMock := store.NewMockStore(ctrl)
	storeMock.EXPECT().
		GetWallet(gomock.Any(), "acc").
		Return(model.Wallet{AccountID: "acc"}, nil).
		Times(1)

	errDomain := errors.New("domain says no")
	l := ledger.New(cfg, storeMock)
	err := l.Update(ctx, ledger.Tx{
		Accounts: []string{"acc"},
		Build: func(context.Context, ledger.Snapshot) (*model.Mutation, error) {
			return nil, errDomain
		},
	})
	assert.ErrorIs(t, err, errDomain)
}

func TestLedger_UpdateUnknownOutcome(t *testing.T) {
	tests := []struct {
		name    string
		applied bool
		commits int
	}{
		{name: "applied", applied: true, commits: 1},
		{name: "not applied", applied: false, commits: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			storeMock := store.NewMockStore(ctrl)
			storeMock.EXPECT().
				GetWallet(gomock.Any(), "acc").
				Return(model.Wallet{AccountID: "acc"}, nil).
				Times(tt.commits)
			first := storeMock.EXPECT().
				Commit(gomock.Any(), gomock.Any()).
				Return(errors.Join(errstore.ErrUnavailable, context.DeadlineExceeded))
			if tt.commits > 1 {
				storeMock.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(nil).After(first)
			}

			checks := 0
			tx := credit("acc", 1)
			tx.Applied = func(context.Context) (bool, error) {
				checks++
				return tt.applied, nil
			}

			l := ledger.New(cfg, storeMock)
			require.NoError(t, l.Update(ctx, tx))
			assert.Equal(t, 1, checks)
		})
	}
}

func TestLedger_UpdateMapsStoreErrors(t *testing.T) {
	tests := []struct {
		name  string
		store error
		want  error
	}{
		{name: "balance check", store: errstore.ErrBalanceNotEnough, want: ledger.ErrInsufficientFunds},
		{name: "frozen", store: errstore.ErrWalletFrozen, want: ledger.ErrWalletFrozen},
		{name: "vanished", store: errstore.ErrNotFoundData, want: ledger.ErrWalletNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			storeMock := store.NewMockStore(ctrl)
			storeMock.EXPECT().GetWallet(gomock.Any(), "acc").Return(model.Wallet{AccountID: "acc"}, nil)
			storeMock.EXPECT().Commit(gomock.Any(), gomock.Any()).Return(tt.store)

			l := ledger.New(cfg, storeMock)
			assert.ErrorIs(t, l.Update(ctx, credit("acc", 1)), tt.want)
		})
	}
}

func TestLedger_SnapshotFreezesCorruptWallet(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.Seed(model.Wallet{AccountID: "bad", MainUSD: decimal.NewFromInt(-1)})

	l := ledger.New(cfg, s)
	_, err := l.Snapshot(ctx, "bad")
	assert.ErrorIs(t, err, ledger.ErrWalletFrozen)

	err = l.Update(ctx, credit("bad", 1))
	assert.ErrorIs(t, err, ledger.ErrWalletFrozen)
}

func TestLedger_SnapshotMissingWallet(t *testing.T) {
	l := ledger.New(cfg, memory.New())
	_, err := l.Snapshot(context.Background(), "ghost")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)
}

func TestLedger_UpdateAgainstMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	_, err := s.CreateWallet(ctx, "acc")
	require.NoError(t, err)

	l := ledger.New(cfg, s)
	require.NoError(t, l.Update(ctx, credit("acc", 7)))
	require.NoError(t, l.Update(ctx, credit("acc", 3)))

	w, err := s.GetWallet(ctx, "acc")
	require.NoError(t, err)
	assert.Equal(t, "10", w.MainUSD.String())
	assert.Equal(t, int64(2), w.Version)
}
