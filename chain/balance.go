package chain

import (
	"math"

	"github.com/tolelom/delegatechain/codec"
)

// Balance is a single (Address, AssetID) holding, keyed by
// Hash160(canonical(WithdrawCondition)) || AssetID per spec.md §3.
type Balance struct {
	Owner     Address
	AssetID   AssetID
	Amount    int64
	Condition WithdrawCondition

	// VoteDelegate is the delegate this balance's Amount contributes to
	// that delegate's vote tally, per spec.md §3 ("native-asset balances
	// with a vote id contribute to that delegate's tally"). 0 means the
	// balance is unvoted; only meaningful when AssetID is the native asset.
	VoteDelegate AccountID
}

func (b *Balance) EncodeCanonical(w *codec.Writer) {
	w.PutRaw(b.Owner[:])
	w.PutUint32(uint32(b.AssetID))
	w.PutInt64(b.Amount)
	b.Condition.EncodeCanonical(w)
	w.PutUint32(uint32(b.VoteDelegate))
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (b *Balance) DecodeCanonical(r *codec.Reader) error {
	owner, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(b.Owner[:], owner)
	asset, err := r.Uint32()
	if err != nil {
		return err
	}
	b.AssetID = AssetID(asset)
	if b.Amount, err = r.Int64(); err != nil {
		return err
	}
	if err := b.Condition.DecodeCanonical(r); err != nil {
		return err
	}
	voteDelegate, err := r.Uint32()
	if err != nil {
		return err
	}
	b.VoteDelegate = AccountID(voteDelegate)
	return nil
}

// Add increases Amount by delta, failing on int64 overflow.
func (b *Balance) Add(delta int64) error {
	if delta >= 0 {
		if b.Amount > math.MaxInt64-delta {
			return ErrAdditionOverflow
		}
		b.Amount += delta
		return nil
	}
	return b.Sub(-delta)
}

// Sub decreases Amount by delta, failing if it would go negative.
func (b *Balance) Sub(delta int64) error {
	if delta < 0 {
		return b.Add(-delta)
	}
	if b.Amount < delta {
		return ErrSubtractionOverflow
	}
	b.Amount -= delta
	return nil
}
