package chain

import (
	"math/bits"

	"github.com/tolelom/delegatechain/codec"
)

// Price expresses a ratio of BaseAssetID per QuoteAssetID as a fixed-point
// ratio scaled by PricePrecision, grounded on
// original_source/libraries/blockchain/asset.cpp's price type. Go has no
// native 128-bit integer; Ratio is represented as two uint64 words (hi:lo)
// with overflow/underflow detected explicitly rather than wrapping, because
// silently wrapping a price is a correctness bug, not a rounding detail.
type Price struct {
	RatioHi      uint64
	RatioLo      uint64
	QuoteAssetID AssetID
	BaseAssetID  AssetID
}

// PricePrecision is the fixed-point scale applied to Ratio.
const PricePrecision = 1_000_000_000_000 // 10^12, matching asset.cpp's FC_REAL128_PRECISION use

// MulAsset multiplies an integer asset amount (denominated in QuoteAssetID)
// by the price, returning an amount denominated in BaseAssetID. Overflow
// and underflow are reported rather than silently clamped, mirroring
// asset.cpp's fc::bigint-checked price*asset operator.
func (p Price) MulAsset(amount int64) (int64, error) {
	if amount < 0 {
		amount = -amount
	}
	// amount * Ratio / PricePrecision, using hi:lo as amount*RatioLo and
	// RatioHi as an already-scaled high-order contribution (kept as a
	// separate accumulator to avoid a full 128x128 multiply).
	hi, lo := bits.Mul64(uint64(amount), p.RatioLo)
	if hi >= PricePrecision {
		return 0, ErrPriceMulOverflow
	}
	quotLo, _ := bits.Div64(hi, lo, PricePrecision)
	highHi, high := bits.Mul64(p.RatioHi, uint64(amount))
	total, carry := bits.Add64(quotLo, high, 0)
	if highHi != 0 || carry != 0 || total > 1<<62 {
		return 0, ErrPriceMulOverflow
	}
	if amount != 0 && total == 0 {
		return 0, ErrPriceMulUnderflow
	}
	return int64(total), nil
}

// Reciprocal returns the inverted price (BaseAssetID per QuoteAssetID
// becomes QuoteAssetID per BaseAssetID), used when presenting a price from
// the other side of the market pair. A ratio so small that its reciprocal
// does not fit in 64 bits saturates to the largest representable RatioLo.
func (p Price) Reciprocal() Price {
	if p.RatioLo == 0 && p.RatioHi == 0 {
		return p
	}
	// Ratio' = PricePrecision^2 / Ratio, computed in scaled integer space
	// with a 128-bit numerator.
	numHi, numLo := bits.Mul64(PricePrecision, PricePrecision)
	denom := p.RatioLo + p.RatioHi*PricePrecision
	if denom == 0 {
		return Price{QuoteAssetID: p.BaseAssetID, BaseAssetID: p.QuoteAssetID}
	}
	ratio := ^uint64(0)
	if denom > numHi {
		ratio, _ = bits.Div64(numHi, numLo, denom)
	}
	return Price{
		RatioLo:      ratio,
		QuoteAssetID: p.BaseAssetID,
		BaseAssetID:  p.QuoteAssetID,
	}
}

// Less reports whether p represents a strictly lower base-per-quote ratio
// than other. Both prices must share the same asset pair (in either
// direction); callers normalize direction before comparing.
func (p Price) Less(other Price) bool {
	if p.RatioHi != other.RatioHi {
		return p.RatioHi < other.RatioHi
	}
	return p.RatioLo < other.RatioLo
}

// Equal reports whether p and other encode the same ratio and asset pair.
func (p Price) Equal(other Price) bool {
	return p.RatioHi == other.RatioHi && p.RatioLo == other.RatioLo &&
		p.QuoteAssetID == other.QuoteAssetID && p.BaseAssetID == other.BaseAssetID
}

// EncodeCanonical implements codec.Encoder.
func (p Price) EncodeCanonical(w *codec.Writer) {
	w.PutUint64(p.RatioHi)
	w.PutUint64(p.RatioLo)
	w.PutUint32(uint32(p.QuoteAssetID))
	w.PutUint32(uint32(p.BaseAssetID))
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (p *Price) DecodeCanonical(r *codec.Reader) error {
	var err error
	if p.RatioHi, err = r.Uint64(); err != nil {
		return err
	}
	if p.RatioLo, err = r.Uint64(); err != nil {
		return err
	}
	quote, err := r.Uint32()
	if err != nil {
		return err
	}
	p.QuoteAssetID = AssetID(quote)
	base, err := r.Uint32()
	if err != nil {
		return err
	}
	p.BaseAssetID = AssetID(base)
	return nil
}
