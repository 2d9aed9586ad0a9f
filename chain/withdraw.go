package chain

import "github.com/tolelom/delegatechain/codec"

// WithdrawConditionKind discriminates the closed set of ways a balance can
// authorize its own withdrawal.
type WithdrawConditionKind uint8

const (
	WithdrawSignature WithdrawConditionKind = iota
	WithdrawMultisig
	WithdrawPassword
	WithdrawOption
)

// WithdrawCondition is a closed tagged union over the four ways a balance
// may require authorization to spend, modeled as a discriminated struct
// rather than an interface hierarchy: the set is fixed by the wire format
// and will not grow without a protocol change, so a switch on Kind is
// simpler than virtual dispatch.
type WithdrawCondition struct {
	Kind WithdrawConditionKind

	// WithdrawSignature
	Owner Address

	// WithdrawMultisig
	Owners    []Address
	Threshold uint8

	// WithdrawPassword
	Payor      Address
	Payee      Address
	PasswordID [20]byte // ripemd160(password)

	// WithdrawOption
	Optionor   Address
	Optionee   Address
	StrikePrice Price
	Expiration  int64 // unix seconds
}

// Address returns the Hash160 digest this condition is keyed under in the
// balance table.
func (c WithdrawCondition) Address() Address {
	return Address(codec.Hash160(codec.Encode(c)))
}

// EncodeCanonical implements codec.Encoder.
func (c WithdrawCondition) EncodeCanonical(w *codec.Writer) {
	w.PutUint8(uint8(c.Kind))
	switch c.Kind {
	case WithdrawSignature:
		w.PutRaw(c.Owner[:])
	case WithdrawMultisig:
		w.PutUint8(c.Threshold)
		w.PutUvarint(uint64(len(c.Owners)))
		for _, o := range c.Owners {
			w.PutRaw(o[:])
		}
	case WithdrawPassword:
		w.PutRaw(c.Payor[:])
		w.PutRaw(c.Payee[:])
		w.PutRaw(c.PasswordID[:])
	case WithdrawOption:
		w.PutRaw(c.Optionor[:])
		w.PutRaw(c.Optionee[:])
		c.StrikePrice.EncodeCanonical(w)
		w.PutInt64(c.Expiration)
	}
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (c *WithdrawCondition) DecodeCanonical(r *codec.Reader) error {
	kind, err := r.Uint8()
	if err != nil {
		return err
	}
	c.Kind = WithdrawConditionKind(kind)
	switch c.Kind {
	case WithdrawSignature:
		b, err := r.Raw(20)
		if err != nil {
			return err
		}
		copy(c.Owner[:], b)
	case WithdrawMultisig:
		if c.Threshold, err = r.Uint8(); err != nil {
			return err
		}
		n, err := r.Uvarint()
		if err != nil {
			return err
		}
		c.Owners = make([]Address, n)
		for i := range c.Owners {
			b, err := r.Raw(20)
			if err != nil {
				return err
			}
			copy(c.Owners[i][:], b)
		}
	case WithdrawPassword:
		b, err := r.Raw(20)
		if err != nil {
			return err
		}
		copy(c.Payor[:], b)
		if b, err = r.Raw(20); err != nil {
			return err
		}
		copy(c.Payee[:], b)
		if b, err = r.Raw(20); err != nil {
			return err
		}
		copy(c.PasswordID[:], b)
	case WithdrawOption:
		b, err := r.Raw(20)
		if err != nil {
			return err
		}
		copy(c.Optionor[:], b)
		if b, err = r.Raw(20); err != nil {
			return err
		}
		copy(c.Optionee[:], b)
		if err := c.StrikePrice.DecodeCanonical(r); err != nil {
			return err
		}
		if c.Expiration, err = r.Int64(); err != nil {
			return err
		}
	}
	return nil
}

// RequiredSigners returns the set of addresses whose signatures satisfy
// this condition outright (password and option conditions are satisfied by
// presenting a secret or exercising rights, not by signer set alone, and
// are checked by their own operation handlers instead).
func (c WithdrawCondition) RequiredSigners() ([]Address, uint8) {
	switch c.Kind {
	case WithdrawSignature:
		return []Address{c.Owner}, 1
	case WithdrawMultisig:
		return c.Owners, c.Threshold
	default:
		return nil, 0
	}
}
