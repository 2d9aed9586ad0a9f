package chain

import "github.com/tolelom/delegatechain/codec"

// Account is a registered named identity: a key owner, and optionally a
// delegate standing for block production.
type Account struct {
	ID          AccountID
	Name        string
	OwnerKey    []byte // compressed secp256k1 public key
	ActiveKey   []byte // compressed secp256k1 public key, rotatable
	Votes       map[AccountID]int64
	NetVotes    int64
	IsDelegate  bool
	Delegate    DelegateStats
	RegisteredAt int64
}

// DelegateStats tracks block-production bookkeeping for accounts that have
// registered as a delegate. PayBalance is a feature present in the BitShares
// original and not named explicitly in the distilled spec: delegates accrue
// pay here rather than directly into a spendable balance, and sweep it out
// via the withdraw_pay operation.
type DelegateStats struct {
	LastBlockProduced int64
	BlocksProduced    int64
	BlocksMissed      int64
	PayBalance        int64
	NextSecretHash    [20]byte
	SignatureKey      []byte
}

func (a *Account) EncodeCanonical(w *codec.Writer) {
	w.PutUint32(uint32(a.ID))
	w.PutString(a.Name)
	w.PutBytes(a.OwnerKey)
	w.PutBytes(a.ActiveKey)
	w.PutInt64(a.NetVotes)
	if a.IsDelegate {
		w.PutUint8(1)
	} else {
		w.PutUint8(0)
	}
	w.PutInt64(a.Delegate.LastBlockProduced)
	w.PutInt64(a.Delegate.BlocksProduced)
	w.PutInt64(a.Delegate.BlocksMissed)
	w.PutInt64(a.Delegate.PayBalance)
	w.PutRaw(a.Delegate.NextSecretHash[:])
	w.PutBytes(a.Delegate.SignatureKey)
	w.PutInt64(a.RegisteredAt)
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (a *Account) DecodeCanonical(r *codec.Reader) error {
	id, err := r.Uint32()
	if err != nil {
		return err
	}
	a.ID = AccountID(id)
	if a.Name, err = r.String(); err != nil {
		return err
	}
	if a.OwnerKey, err = r.Bytes(); err != nil {
		return err
	}
	if a.ActiveKey, err = r.Bytes(); err != nil {
		return err
	}
	if a.NetVotes, err = r.Int64(); err != nil {
		return err
	}
	flag, err := r.Uint8()
	if err != nil {
		return err
	}
	a.IsDelegate = flag != 0
	if a.Delegate.LastBlockProduced, err = r.Int64(); err != nil {
		return err
	}
	if a.Delegate.BlocksProduced, err = r.Int64(); err != nil {
		return err
	}
	if a.Delegate.BlocksMissed, err = r.Int64(); err != nil {
		return err
	}
	if a.Delegate.PayBalance, err = r.Int64(); err != nil {
		return err
	}
	secretHash, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(a.Delegate.NextSecretHash[:], secretHash)
	if a.Delegate.SignatureKey, err = r.Bytes(); err != nil {
		return err
	}
	if a.RegisteredAt, err = r.Int64(); err != nil {
		return err
	}
	return nil
}

// Address returns the Hash160 digest of the account's active key, used as
// its default withdraw-condition address.
func (a *Account) Address() Address {
	return Address(codec.Hash160(a.ActiveKey))
}
