package ops

import "github.com/tolelom/delegatechain/chain"

// Withdraw debits a balance keyed by its withdraw condition, after checking
// the signer set satisfies the condition's required signers. Password and
// option conditions are structural placeholders here — satisfying a
// password or exercising an option is a future extension the distilled
// spec does not define the wire shape for, so those two kinds are rejected
// rather than silently approved.
//
// Withdrawing a native-asset balance that carries a delegate vote removes
// the balance's vote contribution from that delegate's tally before the
// balance shrinks (or disappears), per spec.md §3/§4.4.
func Withdraw(state chain.ChainState, signers signerSet, op *chain.Operation, numDelegates int) error {
	addr := op.Condition.Address()
	bal, err := state.GetBalance(addr, op.AssetID)
	if err != nil {
		return err
	}
	if op.Amount <= 0 {
		return ErrInvalidAmount
	}
	required, threshold := op.Condition.RequiredSigners()
	if threshold == 0 {
		return ErrUnauthorized
	}
	var satisfied uint8
	for _, r := range required {
		if signers.has(r) {
			satisfied++
		}
	}
	if satisfied < threshold {
		return ErrUnauthorized
	}
	if bal.Amount < op.Amount {
		return ErrInsufficientBalance
	}
	if bal.AssetID == 0 && bal.VoteDelegate != 0 {
		if err := adjustVoteTally(state, bal.VoteDelegate, -op.Amount, numDelegates, false); err != nil {
			return err
		}
	}
	if err := bal.Sub(op.Amount); err != nil {
		return err
	}
	if bal.Amount == 0 {
		return state.DeleteBalance(addr, op.AssetID)
	}
	return state.SetBalance(bal)
}

// Deposit credits a balance keyed by the destination withdraw condition,
// creating the balance record on first deposit. A native-asset deposit may
// name a delegate to vote for (op.VoteDelegate); that delegate's vote
// tally is increased by the deposited amount, rejected with
// ErrDelegateVoteLimit if it would push the tally outside
// ±2·supply/num_delegates, per spec.md §4.4.
func Deposit(state chain.ChainState, op *chain.Operation, numDelegates int) error {
	if op.Amount <= 0 {
		return ErrInvalidAmount
	}
	addr := op.Condition.Address()
	bal, err := state.GetBalance(addr, op.AssetID)
	if err != nil {
		bal = &chain.Balance{Owner: addr, AssetID: op.AssetID, Condition: op.Condition}
	}
	if op.AssetID == 0 && op.VoteDelegate != 0 {
		if err := adjustVoteTally(state, op.VoteDelegate, op.Amount, numDelegates, true); err != nil {
			return err
		}
		bal.VoteDelegate = op.VoteDelegate
	}
	if err := bal.Add(op.Amount); err != nil {
		return err
	}
	return state.SetBalance(bal)
}

// adjustVoteTally moves delegate's NetVotes by delta, enforcing the
// ±2·supply/num_delegates cap (spec.md §4.4/§8 DelegateVoteLimit) when
// enforceCap is true. Withdraw calls with enforceCap false: removing a
// vote contribution can only shrink a tally back toward zero, never push
// it further outside the cap, so there is nothing to enforce on the way
// out — and a delegate account that no longer exists is tolerated rather
// than blocking the withdrawal that is unwinding it.
func adjustVoteTally(state chain.ChainState, delegate chain.AccountID, delta int64, numDelegates int, enforceCap bool) error {
	acc, err := state.GetAccount(delegate)
	if err != nil {
		if enforceCap {
			return err
		}
		return nil
	}
	next := acc.NetVotes + delta
	if enforceCap && numDelegates > 0 {
		native, err := state.GetAsset(0)
		if err != nil {
			return err
		}
		limit := 2 * native.CurrentSupply / int64(numDelegates)
		if next > limit || next < -limit {
			return ErrDelegateVoteLimit
		}
	}
	acc.NetVotes = next
	return state.SetAccount(acc)
}

// WithdrawPay sweeps an accrued delegate pay balance into a spendable
// balance at PayTo, per the supplemented withdraw_pay operation (see
// SPEC_FULL.md's supplemented-features section; grounded on BitShares'
// delegate pay_balance sweep, absent from the distilled spec).
func WithdrawPay(state chain.ChainState, signers signerSet, op *chain.Operation) error {
	acct, err := state.GetAccount(op.PayAccount)
	if err != nil {
		return err
	}
	if !acct.IsDelegate {
		return ErrNotDelegate
	}
	if !signers.has(acct.Address()) {
		return ErrUnauthorized
	}
	if op.Amount <= 0 {
		return ErrInvalidAmount
	}
	if acct.Delegate.PayBalance < op.Amount {
		return ErrNoPayBalance
	}
	acct.Delegate.PayBalance -= op.Amount
	if err := state.SetAccount(acct); err != nil {
		return err
	}
	bal, err := state.GetBalance(op.PayTo, 0)
	if err != nil {
		bal = &chain.Balance{
			Owner:     op.PayTo,
			AssetID:   0,
			Condition: chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: op.PayTo},
		}
	}
	if err := bal.Add(op.Amount); err != nil {
		return err
	}
	return state.SetBalance(bal)
}
