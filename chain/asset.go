package chain

import (
	"math"

	"github.com/tolelom/delegatechain/codec"
)

// Asset is a registered token type: the base currency (AssetID 0) or a
// user-registered market/collateral asset.
type Asset struct {
	ID              AssetID
	Symbol          string
	Name            string
	Issuer          AccountID
	Precision       uint8
	MaxSupply       int64
	CurrentSupply   int64
	CollateralRatio uint32 // parts per thousand, e.g. 2000 = 200% minimum collateral
	IsMarketIssued  bool
	FeedPublishers  []AccountID
}

func (a *Asset) EncodeCanonical(w *codec.Writer) {
	w.PutUint32(uint32(a.ID))
	w.PutString(a.Symbol)
	w.PutString(a.Name)
	w.PutUint32(uint32(a.Issuer))
	w.PutUint8(a.Precision)
	w.PutInt64(a.MaxSupply)
	w.PutInt64(a.CurrentSupply)
	w.PutUint32(a.CollateralRatio)
	if a.IsMarketIssued {
		w.PutUint8(1)
	} else {
		w.PutUint8(0)
	}
	w.PutUvarint(uint64(len(a.FeedPublishers)))
	for _, p := range a.FeedPublishers {
		w.PutUint32(uint32(p))
	}
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (a *Asset) DecodeCanonical(r *codec.Reader) error {
	id, err := r.Uint32()
	if err != nil {
		return err
	}
	a.ID = AssetID(id)
	if a.Symbol, err = r.String(); err != nil {
		return err
	}
	if a.Name, err = r.String(); err != nil {
		return err
	}
	issuer, err := r.Uint32()
	if err != nil {
		return err
	}
	a.Issuer = AccountID(issuer)
	if a.Precision, err = r.Uint8(); err != nil {
		return err
	}
	if a.MaxSupply, err = r.Int64(); err != nil {
		return err
	}
	if a.CurrentSupply, err = r.Int64(); err != nil {
		return err
	}
	if a.CollateralRatio, err = r.Uint32(); err != nil {
		return err
	}
	flag, err := r.Uint8()
	if err != nil {
		return err
	}
	a.IsMarketIssued = flag != 0
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	a.FeedPublishers = make([]AccountID, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := r.Uint32()
		if err != nil {
			return err
		}
		a.FeedPublishers = append(a.FeedPublishers, AccountID(v))
	}
	return nil
}

// AddSupply increases CurrentSupply by amount, failing if it would exceed
// MaxSupply or overflow int64 — the issue_asset post-check from §4.4.
func (a *Asset) AddSupply(amount int64) error {
	if amount < 0 {
		return a.SubtractSupply(-amount)
	}
	if a.CurrentSupply > math.MaxInt64-amount {
		return ErrAdditionOverflow
	}
	next := a.CurrentSupply + amount
	if a.MaxSupply > 0 && next > a.MaxSupply {
		return ErrAdditionOverflow
	}
	a.CurrentSupply = next
	return nil
}

// SubtractSupply decreases CurrentSupply by amount (a burn), failing if it
// would go negative.
func (a *Asset) SubtractSupply(amount int64) error {
	if amount < 0 {
		return a.AddSupply(-amount)
	}
	if a.CurrentSupply < amount {
		return ErrSubtractionOverflow
	}
	a.CurrentSupply -= amount
	return nil
}
