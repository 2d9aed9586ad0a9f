package txeval

import "errors"

// Sentinel errors raised at the transaction level, before any individual
// operation is dispatched. Operation-specific business-rule errors live in
// package txeval/ops, next to the handlers that raise them.
var (
	ErrEmptyTransaction      = errors.New("txeval: transaction carries no operations")
	ErrTxExpired             = errors.New("txeval: transaction has expired")
	ErrUnknownOperation      = errors.New("txeval: unrecognized operation kind")
	ErrDuplicateTransaction  = errors.New("txeval: transaction already applied")
	ErrExpiredOrTooFarFuture = errors.New("txeval: transaction expiration exceeds max_transaction_ttl")
	ErrInsufficientFee       = errors.New("txeval: fee is below fee_rate * size(tx) / 1000")
)
