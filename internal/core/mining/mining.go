package mining

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/playmixer/walletledger/internal/adapters/events"
	"github.com/playmixer/walletledger/internal/adapters/store/model"
	"github.com/playmixer/walletledger/internal/core/ledger"
)

var ErrCooldownActive = errors.New("mining cooldown active")

// CooldownError is returned by Claim while the account is still idle.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: next claim in %s", ErrCooldownActive, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Is(target error) bool {
	return target == ErrCooldownActive
}

type Config struct {
	Cooldown       time.Duration   `env:"MINING_COOLDOWN" envDefault:"24h"`
	StreakWindow   time.Duration   `env:"MINING_STREAK_WINDOW" envDefault:"48h"`
	ActiveReward   decimal.Decimal `env:"MINING_ACTIVE_REWARD" envDefault:"20"`
	InactiveReward decimal.Decimal `env:"MINING_INACTIVE_REWARD" envDefault:"10"`
	StreakBonus    decimal.Decimal `env:"MINING_STREAK_BONUS" envDefault:"20"`
	BonusEvery     int64           `env:"MINING_BONUS_EVERY" envDefault:"7"`
}

type State string

const (
	StateIdle      State = "IDLE"
	StateClaimable State = "CLAIMABLE"
)

type Status struct {
	NextClaimAt *time.Time
	Balance     decimal.Decimal
	NextReward  decimal.Decimal
	State       State
	Remaining   time.Duration
	Streak      int64
}

type Claim struct {
	ClaimedAt time.Time
	Reward    decimal.Decimal
	Bonus     decimal.Decimal
	Balance   decimal.Decimal
	Streak    int64
}

type Ledger interface {
	Update(ctx context.Context, tx ledger.Tx) error
	Snapshot(ctx context.Context, accountIDs ...string) (ledger.Snapshot, error)
}

type Emitter interface {
	Emit(e events.Event)
}

type discard struct{}

func (discard) Emit(events.Event) {}

type Engine struct {
	log    *zap.Logger
	ledger Ledger
	events Emitter
	now    func() time.Time
	cfg    Config
}

type option func(*Engine)

func Logger(log *zap.Logger) option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

func Events(em Emitter) option {
	return func(e *Engine) {
		e.events = em
	}
}

func Clock(now func() time.Time) option {
	return func(e *Engine) {
		e.now = now
	}
}

func New(cfg Config, l Ledger, options ...option) *Engine {
	if cfg.BonusEvery < 1 {
		cfg.BonusEvery = 1
	}
	e := &Engine{
		log:    zap.NewNop(),
		ledger: l,
		events: discard{},
		now:    time.Now,
		cfg:    cfg,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Status is a plain read, fit for countdowns; Claim decides again.
func (e *Engine) Status(ctx context.Context, accountID string) (Status, error) {
	snap, err := e.ledger.Snapshot(ctx, accountID)
	if err != nil {
		return Status{}, fmt.Errorf("failed read mining state: %w", err)
	}
	w := snap[accountID]
	now := e.clock()

	st := Status{
		State:   StateClaimable,
		Streak:  w.Streak,
		Balance: w.MiningBalance,
	}
	if w.LastClaimAt != nil {
		next := w.LastClaimAt.Add(e.cfg.Cooldown)
		st.NextClaimAt = &next
	}
	if remaining := e.remaining(w, now); remaining > 0 {
		st.State = StateIdle
		st.Remaining = remaining
		now = *st.NextClaimAt
	}
	reward, bonus, _ := e.reward(w, now)
	st.NextReward = reward.Add(bonus)
	return st, nil
}

// Claim credits the daily reward. While the cooldown runs it returns a
// *CooldownError and changes nothing.
func (e *Engine) Claim(ctx context.Context, accountID string) (Claim, error) {
	now := e.clock()
	var claim Claim
	err := e.ledger.Update(ctx, ledger.Tx{
		Name:     "mining claim",
		Accounts: []string{accountID},
		Build: func(_ context.Context, snap ledger.Snapshot) (*model.Mutation, error) {
			w := snap[accountID]
			if remaining := e.remaining(w, now); remaining > 0 {
				return nil, &CooldownError{Remaining: remaining}
			}
			reward, bonus, streak := e.reward(w, now)
			claimedAt := now
			w.MiningBalance = w.MiningBalance.Add(reward).Add(bonus)
			w.LastClaimAt = &claimedAt
			w.Streak = streak
			claim = Claim{
				ClaimedAt: now,
				Reward:    reward,
				Bonus:     bonus,
				Balance:   w.MiningBalance,
				Streak:    streak,
			}
			return &model.Mutation{Wallets: snap.Wallets(accountID)}, nil
		},
		Applied: func(ctx context.Context) (bool, error) {
			snap, err := e.ledger.Snapshot(ctx, accountID)
			if err != nil {
				return false, err
			}
			last := snap[accountID].LastClaimAt
			return last != nil && last.Equal(now), nil
		},
	})
	if err != nil {
		var cooldown *CooldownError
		if errors.As(err, &cooldown) {
			return Claim{}, cooldown
		}
		return Claim{}, fmt.Errorf("failed claim mining reward for `%s`: %w", accountID, err)
	}

	e.log.Info("mining reward claimed",
		zap.String("accountID", accountID),
		zap.String("reward", claim.Reward.String()),
		zap.String("bonus", claim.Bonus.String()),
		zap.Int64("streak", claim.Streak),
	)
	e.events.Emit(events.Event{
		Kind:       events.RewardClaimed,
		AccountID:  accountID,
		Amount:     claim.Reward.Add(claim.Bonus),
		Streak:     int(claim.Streak),
		OccurredAt: now,
	})
	return claim, nil
}

// clock is truncated to what the database keeps, so the outcome recheck can
// compare claim times exactly.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

func (e *Engine) remaining(w *model.Wallet, now time.Time) time.Duration {
	if w.LastClaimAt == nil {
		return 0
	}
	next := w.LastClaimAt.Add(e.cfg.Cooldown)
	if now.Before(next) {
		return next.Sub(now)
	}
	return 0
}

// reward computes what a claim at now would pay and the streak it leads to.
func (e *Engine) reward(w *model.Wallet, now time.Time) (reward, bonus decimal.Decimal, streak int64) {
	streak = 1
	if w.LastClaimAt != nil && now.Sub(*w.LastClaimAt) <= e.cfg.StreakWindow {
		streak = w.Streak + 1
	}

	reward = e.cfg.InactiveReward
	if w.OrderCount > 0 {
		reward = e.cfg.ActiveReward
	}

	bonus = decimal.Zero
	if streak%e.cfg.BonusEvery == 0 {
		bonus = e.cfg.StreakBonus
	}
	return reward, bonus, streak
}
