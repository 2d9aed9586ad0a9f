package ops

import (
	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
)

// RegisterAccount creates a new account record keyed by name, per
// spec.md §4.4's register_account operation. No prior authorization is
// required beyond a valid signature over the transaction (any funded
// account may register a new name); name collision is the only check.
func RegisterAccount(state chain.ChainState, nextID chain.AccountID, signers signerSet, op *chain.Operation, now int64) error {
	if _, err := state.GetAccountByName(op.AccountName); err == nil {
		return ErrAccountExists
	}
	acct := &chain.Account{
		ID:           nextID,
		Name:         op.AccountName,
		OwnerKey:     op.OwnerKey,
		ActiveKey:    op.ActiveKey,
		Votes:        make(map[chain.AccountID]int64),
		IsDelegate:   op.AsDelegate,
		RegisteredAt: now,
	}
	if op.AsDelegate {
		acct.Delegate.SignatureKey = op.ActiveKey
	}
	return state.SetAccount(acct)
}

// UpdateAccount rotates keys and/or the delegate vote list on an existing
// account, per spec.md §4.4's update_account operation. Requires the
// current owner key's signature, mirroring the teacher's
// "owner authority supersedes active authority" rule for key rotation.
func UpdateAccount(state chain.ChainState, signers signerSet, op *chain.Operation) error {
	acct, err := state.GetAccountByName(op.AccountName)
	if err != nil {
		return err
	}
	ownerAddr := codec.Hash160(acct.OwnerKey)
	if !signers.has(ownerAddr) {
		return ErrUnauthorized
	}
	if len(op.OwnerKey) > 0 {
		acct.OwnerKey = op.OwnerKey
	}
	if len(op.ActiveKey) > 0 {
		acct.ActiveKey = op.ActiveKey
	}
	if op.VoteFor != nil {
		acct.Votes = make(map[chain.AccountID]int64, len(op.VoteFor))
		for _, v := range op.VoteFor {
			acct.Votes[v] = 1
		}
	}
	if op.AsDelegate && !acct.IsDelegate {
		acct.IsDelegate = true
		acct.Delegate.SignatureKey = acct.ActiveKey
	}
	return state.SetAccount(acct)
}
