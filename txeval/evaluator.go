// Package txeval dispatches each operation in a transaction to its handler
// in package txeval/ops after checking the transaction's shape (non-empty,
// unexpired, every signature recoverable). It is the single place that
// turns a raw Transaction into state mutations, grounded on the teacher's
// vm.Executor dispatch loop but switching over a closed operation enum
// instead of invoking registered VM modules by name.
package txeval

import (
	"time"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/config"
	"github.com/tolelom/delegatechain/pending"
	"github.com/tolelom/delegatechain/txeval/ops"
)

// Evaluator applies transactions against a chain.ChainState. cfg supplies
// the few protocol knobs the evaluation sequence itself needs to enforce
// (num_delegates for the vote cap, fee_rate and max_transaction_ttl for
// the size-scaled fee and expiration-horizon checks); a nil cfg disables
// those checks rather than panicking, which test fixtures that don't care
// about them rely on.
type Evaluator struct {
	cfg *config.Config
}

// NewEvaluator constructs an Evaluator bound to cfg.
func NewEvaluator(cfg *config.Config) *Evaluator { return &Evaluator{cfg: cfg} }

func (e *Evaluator) numDelegates() int {
	if e.cfg == nil {
		return 0
	}
	return e.cfg.NumDelegates
}

// recoverSignerAddrs returns the addresses that signed tx as a plain
// map[[20]byte]bool. ops.signerSet is unexported, so Evaluator passes this
// map through ops.Signers, the one constructor ops exposes for that
// purpose.
func recoverSignerAddrs(tx *chain.Transaction) (map[[20]byte]bool, error) {
	pubs, err := tx.RecoverSigners()
	if err != nil {
		return nil, err
	}
	set := make(map[[20]byte]bool, len(pubs))
	for _, pub := range pubs {
		set[pub.Address()] = true
	}
	return set, nil
}

// Apply runs the six-step evaluation sequence of spec.md §4.4 against tx:
// shape/uniqueness/expiration checks, signer recovery, a native-asset
// delta pass, per-operation dispatch (stopping at the first failing
// operation — per SPEC_FULL.md's Design notes, Open Question 1, any
// operation failure is fatal to the whole transaction), and a fee
// post-check. Callers evaluate each transaction inside its own
// pending.State overlay and discard it wholesale on error.
func (e *Evaluator) Apply(state chain.ChainState, tx *chain.Transaction, now time.Time) error {
	if len(tx.Operations) == 0 {
		return ErrEmptyTransaction
	}
	nowUnix := now.Unix()
	if tx.Expiration <= nowUnix {
		return ErrTxExpired
	}
	if e.cfg != nil && e.cfg.MaxTransactionTTL > 0 && tx.Expiration-nowUnix > e.cfg.MaxTransactionTTL {
		return ErrExpiredOrTooFarFuture
	}
	seen, err := state.HasSeenTransaction(tx.ID())
	if err != nil {
		return err
	}
	if seen {
		return ErrDuplicateTransaction
	}
	signers, err := recoverSignerAddrs(tx)
	if err != nil {
		return err
	}

	// Delta accounting: a transfer's implied fee is whatever native-asset
	// amount its own withdraw/deposit operations leave unaccounted for
	// (withdrawn but not re-deposited within the same transaction).
	var nativeOut, nativeIn int64
	for i := range tx.Operations {
		op := &tx.Operations[i]
		if op.AssetID == 0 {
			switch op.Kind {
			case chain.OpWithdraw:
				nativeOut += op.Amount
			case chain.OpDeposit:
				nativeIn += op.Amount
			}
		}
		if err := e.applyOp(state, signers, op, now); err != nil {
			return err
		}
	}

	if impliedFee := nativeOut - nativeIn; impliedFee > 0 && e.cfg != nil && e.cfg.FeeRate > 0 {
		size := int64(len(codec.Encode(tx)))
		if minFee := e.cfg.FeeRate * size / 1000; impliedFee < minFee {
			return ErrInsufficientFee
		}
	}

	return state.MarkTransactionSeen(tx.ID())
}

// EvaluateReadOnly runs Apply against a throwaway overlay so the mempool can
// check a transaction still succeeds against a new head without mutating
// durable state. It satisfies chain.MempoolEvaluator structurally.
func (e *Evaluator) EvaluateReadOnly(head chain.ChainState, tx *chain.Transaction, now time.Time) error {
	overlay := pending.New(head)
	if err := e.Apply(overlay, tx, now); err != nil {
		overlay.Discard()
		return err
	}
	overlay.Discard()
	return nil
}

func (e *Evaluator) applyOp(state chain.ChainState, signers map[[20]byte]bool, op *chain.Operation, now time.Time) error {
	nowUnix := now.Unix()
	switch op.Kind {
	case chain.OpRegisterAccount:
		nextID, err := state.NextAccountID()
		if err != nil {
			return err
		}
		return ops.RegisterAccount(state, nextID, ops.Signers(signers), op, nowUnix)
	case chain.OpUpdateAccount:
		return ops.UpdateAccount(state, ops.Signers(signers), op)
	case chain.OpCreateAsset:
		nextID, err := state.NextAssetID()
		if err != nil {
			return err
		}
		return ops.CreateAsset(state, nextID, ops.Signers(signers), op)
	case chain.OpUpdateAsset:
		return ops.UpdateAsset(state, ops.Signers(signers), op)
	case chain.OpIssueAsset:
		return ops.IssueAsset(state, ops.Signers(signers), op)
	case chain.OpWithdraw:
		return ops.Withdraw(state, ops.Signers(signers), op, e.numDelegates())
	case chain.OpDeposit:
		return ops.Deposit(state, op, e.numDelegates())
	case chain.OpWithdrawPay:
		return ops.WithdrawPay(state, ops.Signers(signers), op)
	case chain.OpAsk:
		return ops.Ask(state, ops.Signers(signers), op)
	case chain.OpBid:
		return ops.Bid(state, ops.Signers(signers), op)
	case chain.OpShort:
		return ops.Short(state, ops.Signers(signers), op)
	case chain.OpCover:
		return ops.Cover(state, ops.Signers(signers), op)
	case chain.OpPublishFeed:
		return ops.PublishFeed(state, ops.Signers(signers), op, nowUnix)
	default:
		return ErrUnknownOperation
	}
}
