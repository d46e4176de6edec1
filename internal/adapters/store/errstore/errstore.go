package errstore

import "errors"

var (
	ErrNotFoundData       = errors.New("not found data")
	ErrConflict           = errors.New("concurrent modification")
	ErrDuplicateOrder     = errors.New("order with this idempotency key already exists")
	ErrBalanceNotEnough   = errors.New("balance not enough")
	ErrIntegrityViolation = errors.New("wallet invariant violated")
	ErrWalletFrozen       = errors.New("wallet is frozen")
	ErrUnavailable        = errors.New("store unavailable")
)
