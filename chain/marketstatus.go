package chain

import "github.com/tolelom/delegatechain/codec"

// MarketStatus is the per-(quote,base) pair running state MarketEngine
// reads and updates on every block: the rolling center price and the bid/
// ask band it is clamped to, the resting bid/ask depth the depth-floor
// rollback rule checks after every match pass, and the height it was last
// touched at.
type MarketStatus struct {
	Quote              AssetID
	Base               AssetID
	CenterPrice        Price
	RollingVolumeQuote int64
	RollingVolumeBase  int64
	LastErrorTime      int64
	BidDepth           int64
	AskDepth           int64
	LastUpdatedHeight  int64
}

func (m *MarketStatus) EncodeCanonical(w *codec.Writer) {
	w.PutUint32(uint32(m.Quote))
	w.PutUint32(uint32(m.Base))
	m.CenterPrice.EncodeCanonical(w)
	w.PutInt64(m.RollingVolumeQuote)
	w.PutInt64(m.RollingVolumeBase)
	w.PutInt64(m.LastErrorTime)
	w.PutInt64(m.BidDepth)
	w.PutInt64(m.AskDepth)
	w.PutInt64(m.LastUpdatedHeight)
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (m *MarketStatus) DecodeCanonical(r *codec.Reader) error {
	quote, err := r.Uint32()
	if err != nil {
		return err
	}
	m.Quote = AssetID(quote)
	base, err := r.Uint32()
	if err != nil {
		return err
	}
	m.Base = AssetID(base)
	if err := m.CenterPrice.DecodeCanonical(r); err != nil {
		return err
	}
	if m.RollingVolumeQuote, err = r.Int64(); err != nil {
		return err
	}
	if m.RollingVolumeBase, err = r.Int64(); err != nil {
		return err
	}
	if m.LastErrorTime, err = r.Int64(); err != nil {
		return err
	}
	if m.BidDepth, err = r.Int64(); err != nil {
		return err
	}
	if m.AskDepth, err = r.Int64(); err != nil {
		return err
	}
	if m.LastUpdatedHeight, err = r.Int64(); err != nil {
		return err
	}
	return nil
}

// MinCoverAsk returns the lower clamp bound for the rolling center price:
// the center price may never be driven below this by a cover-side trade,
// grounded on market_engine_v4.cpp's market_stat.minimum_ask().
func (m *MarketStatus) MinCoverAsk() Price {
	p := m.CenterPrice
	// 90% of center price, i.e. a band width matching the original's
	// MAXIMUM_SHORT_FEE_RATIO-adjacent minimum_ask clamp.
	p.RatioLo = p.RatioLo - p.RatioLo/10
	return p
}

// MaxBid returns the upper clamp bound for the rolling center price,
// grounded on market_engine_v4.cpp's market_stat.maximum_bid().
func (m *MarketStatus) MaxBid() Price {
	p := m.CenterPrice
	p.RatioLo = p.RatioLo + p.RatioLo/10
	return p
}

// HistoryGranularity selects one of the three aggregation windows
// MarketEngine records trades at.
type HistoryGranularity uint8

const (
	HistoryBlock HistoryGranularity = iota
	HistoryHour
	HistoryDay
)

// MarketHistoryRecord aggregates trade volume and OHLC price data for one
// bucket of one granularity, grounded on
// market_engine_v4.cpp::update_market_history.
type MarketHistoryRecord struct {
	Quote       AssetID
	Base        AssetID
	Granularity HistoryGranularity
	BucketStart int64
	OpenPrice   Price
	HighPrice   Price
	LowPrice    Price
	ClosePrice  Price
	VolumeQuote int64
	VolumeBase  int64
}

func (h *MarketHistoryRecord) EncodeCanonical(w *codec.Writer) {
	w.PutUint32(uint32(h.Quote))
	w.PutUint32(uint32(h.Base))
	w.PutUint8(uint8(h.Granularity))
	w.PutInt64(h.BucketStart)
	h.OpenPrice.EncodeCanonical(w)
	h.HighPrice.EncodeCanonical(w)
	h.LowPrice.EncodeCanonical(w)
	h.ClosePrice.EncodeCanonical(w)
	w.PutInt64(h.VolumeQuote)
	w.PutInt64(h.VolumeBase)
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (h *MarketHistoryRecord) DecodeCanonical(r *codec.Reader) error {
	quote, err := r.Uint32()
	if err != nil {
		return err
	}
	h.Quote = AssetID(quote)
	base, err := r.Uint32()
	if err != nil {
		return err
	}
	h.Base = AssetID(base)
	gran, err := r.Uint8()
	if err != nil {
		return err
	}
	h.Granularity = HistoryGranularity(gran)
	if h.BucketStart, err = r.Int64(); err != nil {
		return err
	}
	for _, p := range []*Price{&h.OpenPrice, &h.HighPrice, &h.LowPrice, &h.ClosePrice} {
		if err := p.DecodeCanonical(r); err != nil {
			return err
		}
	}
	if h.VolumeQuote, err = r.Int64(); err != nil {
		return err
	}
	if h.VolumeBase, err = r.Int64(); err != nil {
		return err
	}
	return nil
}
