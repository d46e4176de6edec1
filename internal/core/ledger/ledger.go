package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/adapters/store/errstore"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
)

var (
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletFrozen      = errors.New("wallet frozen pending reconciliation")
	ErrTransientFailure  = errors.New("transient failure")
)

type Store interface {
	GetWallet(ctx context.Context, accountID string) (model.Wallet, error)
	FreezeWallet(ctx context.Context, accountID string) error
	Commit(ctx context.Context, m *model.Mutation) error
}

type Config struct {
	MaxAttempts   int           `env:"LEDGER_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff  time.Duration `env:"LEDGER_RETRY_BACKOFF" envDefault:"20ms"`
	CommitTimeout time.Duration `env:"LEDGER_COMMIT_TIMEOUT" envDefault:"5s"`
}

// Snapshot holds the wallets read for one attempt, keyed by account id.
// Build functions may modify the wallets in place.
type Snapshot map[string]*model.Wallet

// Wallets returns copies of the given accounts for a mutation. Accounts
// listed more than once are returned once.
func (s Snapshot) Wallets(accountIDs ...string) []model.Wallet {
	seen := make(map[string]struct{}, len(accountIDs))
	wallets := make([]model.Wallet, 0, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if w, ok := s[id]; ok {
			wallets = append(wallets, *w)
		}
	}
	return wallets
}

type Tx struct {
	// Build computes the mutation from fresh snapshots. Errors it returns
	// abort the update without retry. A nil mutation means nothing to write.
	Build func(ctx context.Context, snap Snapshot) (*model.Mutation, error)
	// Applied reports whether an attempt with an unknown outcome actually
	// landed. Without it such attempts are simply retried.
	Applied  func(ctx context.Context) (bool, error)
	Name     string
	Accounts []string
}

type Ledger struct {
	log   *zap.Logger
	store Store
	cfg   Config
}

type option func(*Ledger)

func Logger(log *zap.Logger) option {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

func New(cfg Config, store Store, options ...option) *Ledger {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	l := &Ledger{
		log:   zap.NewNop(),
		store: store,
		cfg:   cfg,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Update runs tx with optimistic concurrency: read every touched wallet,
// build the mutation and commit it only if none of them changed meanwhile.
// Conflicts are retried with fresh reads up to MaxAttempts.
func (l *Ledger) Update(ctx context.Context, tx Tx) error {
	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := l.backoff(ctx, attempt); err != nil {
				return errors.Join(ErrTransientFailure, err, lastErr)
			}
		}

		snap, err := l.Snapshot(ctx, tx.Accounts...)
		if err != nil {
			if errors.Is(err, errstore.ErrUnavailable) {
				lastErr = err
				continue
			}
			return err
		}

		m, err := tx.Build(ctx, snap)
		if err != nil {
			return err
		}
		if m == nil {
			return nil
		}

		err = l.commit(ctx, m)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errstore.ErrConflict), errors.Is(err, errstore.ErrDuplicateOrder):
			l.log.Debug("commit conflict, retrying",
				zap.String("tx", tx.Name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			lastErr = err
		case errors.Is(err, errstore.ErrUnavailable):
			lastErr = err
			applied, checkErr := l.applied(ctx, tx)
			if checkErr != nil {
				l.log.Warn("commit outcome unknown and recheck failed",
					zap.String("tx", tx.Name),
					zap.Int("attempt", attempt),
					zap.Error(checkErr),
				)
				return errors.Join(ErrTransientFailure, err, checkErr)
			}
			if applied {
				l.log.Info("commit with unknown outcome was applied", zap.String("tx", tx.Name))
				return nil
			}
		case errors.Is(err, errstore.ErrBalanceNotEnough):
			return errors.Join(ErrInsufficientFunds, err)
		case errors.Is(err, errstore.ErrWalletFrozen):
			return errors.Join(ErrWalletFrozen, err)
		case errors.Is(err, errstore.ErrNotFoundData):
			return errors.Join(ErrWalletNotFound, err)
		default:
			return fmt.Errorf("failed commit %s: %w", tx.Name, err)
		}
	}

	return fmt.Errorf("%w: %s gave up after %d attempts: %w", ErrTransientFailure, tx.Name, l.cfg.MaxAttempts, lastErr)
}

// Snapshot reads the current state of the given wallets. A wallet found
// violating its invariants is frozen and reported as ErrWalletFrozen.
func (l *Ledger) Snapshot(ctx context.Context, accountIDs ...string) (Snapshot, error) {
	snap := make(Snapshot, len(accountIDs))
	for _, id := range accountIDs {
		if _, ok := snap[id]; ok {
			continue
		}
		w, err := l.store.GetWallet(ctx, id)
		if err != nil {
			if errors.Is(err, errstore.ErrNotFoundData) {
				return nil, fmt.Errorf("%w: account `%s`", ErrWalletNotFound, id)
			}
			if errors.Is(err, errstore.ErrIntegrityViolation) {
				l.log.Error("wallet invariant violated, freezing", zap.String("accountID", id), zap.Error(err))
				if ferr := l.store.FreezeWallet(ctx, id); ferr != nil {
					l.log.Error("failed freeze wallet", zap.String("accountID", id), zap.Error(ferr))
				}
				return nil, errors.Join(ErrWalletFrozen, err)
			}
			return nil, fmt.Errorf("failed read wallet `%s`: %w", id, err)
		}
		if w.Frozen {
			return nil, fmt.Errorf("%w: account `%s`", ErrWalletFrozen, id)
		}
		snap[id] = &w
	}
	return snap, nil
}

func (l *Ledger) commit(ctx context.Context, m *model.Mutation) error {
	cctx := ctx
	if l.cfg.CommitTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, l.cfg.CommitTimeout)
		defer cancel()
	}
	err := l.store.Commit(cctx, m)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, errstore.ErrUnavailable) {
		return errors.Join(errstore.ErrUnavailable, err)
	}
	return err
}

func (l *Ledger) applied(ctx context.Context, tx Tx) (bool, error) {
	if tx.Applied == nil {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("can't recheck outcome: %w", err)
	}
	return tx.Applied(ctx)
}

func (l *Ledger) backoff(ctx context.Context, attempt int) error {
	if l.cfg.RetryBackoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(l.cfg.RetryBackoff * time.Duration(attempt-1))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
