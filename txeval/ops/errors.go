// Package ops implements one handler per chain.OpType, each validating and
// applying a single operation against a chain.ChainState. Handlers are pure
// functions of (state, signer set, operation) so txeval.Evaluator can
// dispatch to them without any handler needing to know about transactions,
// mempools, or blocks.
package ops

import "errors"

var (
	ErrUnauthorized        = errors.New("ops: missing required signature")
	ErrAccountExists       = errors.New("ops: account name already registered")
	ErrAssetExists         = errors.New("ops: asset symbol already registered")
	ErrNotIssuer           = errors.New("ops: signer is not the asset issuer")
	ErrNotDelegate         = errors.New("ops: account is not a registered delegate")
	ErrNotFeedPublisher    = errors.New("ops: account is not an authorized feed publisher")
	ErrInsufficientBalance = errors.New("ops: insufficient balance")
	ErrInvalidAmount       = errors.New("ops: amount must be positive")
	ErrMarketIssuedAsset   = errors.New("ops: operation not valid for a market-issued asset")
	ErrNotMarketIssued     = errors.New("ops: asset is not market-issued")
	ErrUnderCollateralized = errors.New("ops: order would fall below required collateral ratio")
	ErrNoSuchCollateral    = errors.New("ops: no matching collateral position")
	ErrNoPayBalance        = errors.New("ops: delegate has no accrued pay to withdraw")
	ErrDelegateVoteLimit   = errors.New("ops: delegate vote tally would exceed the configured cap")
)

// signerSet is a convenience lookup built once per operation dispatch.
type signerSet map[[20]byte]bool

func (s signerSet) has(addr [20]byte) bool { return s[addr] }

// Signers adapts a set of recovered signer addresses into the signerSet
// handlers in this package expect, without exposing signerSet's type name
// outside the package.
func Signers(addrs map[[20]byte]bool) signerSet { return signerSet(addrs) }
