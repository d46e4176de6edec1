package payment

import (
	"errors"

	"github.com/playmixer/walletledger/internal/core/ledger"
)

type Kind string

const (
	KindWalletNotFound    Kind = "WalletNotFound"
	KindInsufficientFunds Kind = "InsufficientFunds"
	KindWalletFrozen      Kind = "WalletFrozen"
	KindTransientFailure  Kind = "TransientFailure"
	KindInvalidRequest    Kind = "InvalidRequest"
	KindProductNotFound   Kind = "ProductNotFound"
	KindPriceMismatch     Kind = "PriceMismatch"
	KindOrderNotFound     Kind = "OrderNotFound"
	KindInvalidTransition Kind = "InvalidTransition"
	KindInternal          Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ledger.ErrWalletNotFound, KindWalletNotFound},
	{ledger.ErrInsufficientFunds, KindInsufficientFunds},
	{ledger.ErrWalletFrozen, KindWalletFrozen},
	{ledger.ErrTransientFailure, KindTransientFailure},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrKeyReused, KindInvalidRequest},
	{ErrProductNotFound, KindProductNotFound},
	{ErrPriceMismatch, KindPriceMismatch},
	{ErrOrderNotFound, KindOrderNotFound},
	{ErrInvalidTransition, KindInvalidTransition},
}

// ErrorKind classifies err for callers that report failures by name.
func ErrorKind(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
