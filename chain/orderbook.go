package chain

import "github.com/tolelom/delegatechain/codec"

// OrderKind discriminates bid, ask, and short orders. Cover orders are
// represented separately as CollateralRecord because they are keyed and
// matched against a call price, not a limit price the owner chose.
type OrderKind uint8

const (
	OrderBid OrderKind = iota
	OrderAsk
	OrderShort
)

// MarketIndexKey orders book records for iteration: bids descend by price
// (best bid first), asks and shorts ascend by price (best ask first).
// Encode direction is handled by the store's key construction, not here.
type MarketIndexKey struct {
	Quote AssetID
	Base  AssetID
	Price Price
	Owner Address
}

// OrderRecord is one resting bid, ask, or short in the order book.
type OrderRecord struct {
	Kind       OrderKind
	Quote      AssetID
	Base       AssetID
	Price      Price
	Owner      Address
	Balance    int64 // remaining quote-asset amount (bid/ask) or borrowed amount (short)
	ShortLimit Price // shorts only: the price above which the short refuses to be matched
}

func (o *OrderRecord) EncodeCanonical(w *codec.Writer) {
	w.PutUint8(uint8(o.Kind))
	w.PutUint32(uint32(o.Quote))
	w.PutUint32(uint32(o.Base))
	o.Price.EncodeCanonical(w)
	w.PutRaw(o.Owner[:])
	w.PutInt64(o.Balance)
	o.ShortLimit.EncodeCanonical(w)
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (o *OrderRecord) DecodeCanonical(r *codec.Reader) error {
	kind, err := r.Uint8()
	if err != nil {
		return err
	}
	o.Kind = OrderKind(kind)
	quote, err := r.Uint32()
	if err != nil {
		return err
	}
	o.Quote = AssetID(quote)
	base, err := r.Uint32()
	if err != nil {
		return err
	}
	o.Base = AssetID(base)
	if err := o.Price.DecodeCanonical(r); err != nil {
		return err
	}
	owner, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(o.Owner[:], owner)
	if o.Balance, err = r.Int64(); err != nil {
		return err
	}
	return o.ShortLimit.DecodeCanonical(r)
}

// CollateralRecord is a margin position created by a matched short: it
// holds collateral in Base and owes CoverDebt in Quote, and is liquidated
// (partially or fully) by cover orders or forced margin calls.
type CollateralRecord struct {
	Quote      AssetID
	Base       AssetID
	Owner      Address
	Collateral int64 // base-asset amount held
	CoverDebt  int64 // quote-asset amount owed
	CallPrice  Price // collateral/debt ratio at which this position is margin-called
	Expiration int64
}

func (c *CollateralRecord) EncodeCanonical(w *codec.Writer) {
	w.PutUint32(uint32(c.Quote))
	w.PutUint32(uint32(c.Base))
	w.PutRaw(c.Owner[:])
	w.PutInt64(c.Collateral)
	w.PutInt64(c.CoverDebt)
	c.CallPrice.EncodeCanonical(w)
	w.PutInt64(c.Expiration)
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (c *CollateralRecord) DecodeCanonical(r *codec.Reader) error {
	quote, err := r.Uint32()
	if err != nil {
		return err
	}
	c.Quote = AssetID(quote)
	base, err := r.Uint32()
	if err != nil {
		return err
	}
	c.Base = AssetID(base)
	owner, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(c.Owner[:], owner)
	if c.Collateral, err = r.Int64(); err != nil {
		return err
	}
	if c.CoverDebt, err = r.Int64(); err != nil {
		return err
	}
	if err := c.CallPrice.DecodeCanonical(r); err != nil {
		return err
	}
	if c.Expiration, err = r.Int64(); err != nil {
		return err
	}
	return nil
}

// CollateralRatio returns collateral/debt as basis points, used to decide
// whether a position is below its required margin.
func (c *CollateralRecord) CollateralRatio(callPrice Price) (int64, error) {
	debtInBase, err := callPrice.MulAsset(c.CoverDebt)
	if err != nil {
		return 0, err
	}
	if debtInBase == 0 {
		return 0, ErrAssetDivideByZero
	}
	return (c.Collateral * 10000) / debtInBase, nil
}
