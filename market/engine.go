// Package market implements the collateralized double-auction engine:
// matching resting bid/ask/short orders and margin-called collateral
// positions for one (quote, base) asset pair per invocation, grounded on
// original_source/libraries/blockchain/market_engine_v4.cpp. The match
// loop, the bid/ask crossing rule, and the feed-anchored center-price
// update are ported from that file's execute()/get_next_bid()/
// get_next_ask(); margin-call matching (cover orders trading against a
// resting bid once a short's call price is crossed, and a fresh short
// directly absorbing a cover's debt) is carried in reduced form relative
// to the original's collateral-rate-bounded double margin call; see
// settleShortCover and DESIGN.md. The surrounding Go types follow the
// teacher's plain-struct, explicit-error style rather than the original's
// shared_ptr cursor objects.
package market

import (
	"errors"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/pending"
)

var (
	ErrInsufficientFeeds   = errors.New("market: asset has no active price feed to bootstrap center price")
	ErrOrderMatchingLoop   = errors.New("market: no progress made in one matching pass")
	ErrAssetsNotFound      = errors.New("market: quote or base asset not registered")
	ErrInsufficientDepth   = errors.New("market: trade would drop bid or ask depth below the required floor")
)

// marginCallFeeRatio is charged against collateral returned to a short
// once its position is fully closed by a margin call, grounded on
// market_engine_v4.cpp's pay_current_cover 5% fee.
const marginCallFeeRatio = 500 // basis points of 10000

const blocksPerHour = 60 // fixed: corresponds to a 60-second block interval and is not derived from config.BlockIntervalSeconds (3 s by default)

// Engine matches one (quote, base) market's order book against itself for
// one block, updating balances, collateral, market status, and market
// history as a side effect of Execute.
type Engine struct {
	state  chain.ChainState
	now    int64
	height int64

	quote, base      chain.AssetID
	status           *chain.MarketStatus
	depthRequirement int64

	bidOrders   []*chain.OrderRecord // already in matching order (best first)
	askOrders   []*chain.OrderRecord
	shortOrders []*chain.OrderRecord
	covers      []*chain.CollateralRecord

	bidPos, askPos, shortPos, coverPos int
	ordersFilled                       int
}

// NewEngine opens a matching pass for (quote, base) against state. now is
// the block timestamp the engine stamps onto history and collateral
// expirations with; height is the block number stamped onto the market's
// LastUpdatedHeight. depthRequirement is the configured MarketDepthRequirement
// (spec.md §4.5/§8): Execute rolls back the whole pass rather than let
// either side's resting depth drop below it.
func NewEngine(state chain.ChainState, quote, base chain.AssetID, height, now int64, depthRequirement int64) (*Engine, error) {
	quoteAsset, err := state.GetAsset(quote)
	if err != nil {
		return nil, ErrAssetsNotFound
	}
	if _, err := state.GetAsset(base); err != nil {
		return nil, ErrAssetsNotFound
	}
	status, err := state.GetMarketStatus(quote, base)
	if err != nil {
		return nil, err
	}

	if status.CenterPrice.RatioHi == 0 && status.CenterPrice.RatioLo == 0 && base == 0 && quoteAsset.IsMarketIssued {
		feed, ferr := medianFeedPrice(state, quote)
		if ferr != nil {
			return nil, ferr
		}
		status.CenterPrice = feed
	}

	e := &Engine{
		state:            state,
		now:              now,
		height:           height,
		quote:            quote,
		base:             base,
		status:           status,
		depthRequirement: depthRequirement,
	}
	e.bidOrders = drainOrders(state.IterateOrders(quote, base, chain.OrderBid, true))
	e.askOrders = drainOrders(state.IterateOrders(quote, base, chain.OrderAsk, false))
	e.shortOrders = drainOrders(state.IterateOrders(quote, base, chain.OrderShort, false))
	e.covers = drainCollateral(state.IterateCollateral(quote, base, false))
	return e, nil
}

func drainOrders(it chain.OrderIterator) []*chain.OrderRecord {
	defer it.Release()
	var out []*chain.OrderRecord
	for it.Next() {
		out = append(out, it.Record())
	}
	return out
}

func drainCollateral(it chain.CollateralIterator) []*chain.CollateralRecord {
	defer it.Release()
	var out []*chain.CollateralRecord
	for it.Next() {
		out = append(out, it.Record())
	}
	return out
}

// medianFeedPrice returns the median of all resting feeds for asset,
// grounded on get_active_feed_price; with zero or one feed it returns that
// value (or an error if none exist).
func medianFeedPrice(state chain.ChainState, asset chain.AssetID) (chain.Price, error) {
	feeds := state.IterateFeeds(asset)
	if len(feeds) == 0 {
		return chain.Price{}, ErrInsufficientFeeds
	}
	prices := make([]chain.Price, len(feeds))
	for i, f := range feeds {
		prices[i] = f.Price
	}
	for i := 1; i < len(prices); i++ {
		for j := i; j > 0 && prices[j].Less(prices[j-1]); j-- {
			prices[j], prices[j-1] = prices[j-1], prices[j]
		}
	}
	return prices[len(prices)/2], nil
}

// bidSide returns the best remaining resting bid, or the best remaining
// short (valued at the center price) when shorts currently outrank bids,
// grounded on get_next_bid's "shorts take priority while asks sit below
// center price" rule. askPrice is whichever counterparty price the
// Execute loop is currently comparing against — an ask's resting price or
// a margin call's call price — and haveAsk is always true whenever
// Execute calls this, since the loop already breaks out before reaching
// this call if neither an ask nor a cover remains. Taking the price by
// value rather than a *chain.OrderRecord (the previous shape) is what
// lets a cover's call price participate in the shorts-outrank-bids
// comparison: a *chain.OrderRecord is nil whenever the counterparty is a
// cover, which silently disabled short matching against covers.
func (e *Engine) bidSide(askPrice chain.Price, haveAsk bool) (*chain.OrderRecord, bool, bool) {
	if haveAsk && !e.status.CenterPrice.Less(askPrice) && e.shortPos < len(e.shortOrders) {
		return e.shortOrders[e.shortPos], true, true
	}
	if e.bidPos < len(e.bidOrders) {
		return e.bidOrders[e.bidPos], false, true
	}
	return nil, false, false
}

// Execute runs the match loop to completion and persists every effect:
// balance payouts, order/collateral updates, market status, and market
// history. It returns whether any trade executed.
func (e *Engine) Execute() (bool, error) {
	// Every mutation below runs against a throwaway overlay so a depth-floor
	// violation can roll back the whole pass: real state is only touched on
	// overlay.Commit() at the very end.
	realState := e.state
	overlay := pending.New(realState)
	e.state = overlay
	defer func() { e.state = realState }()
	savedStatus := *e.status

	quoteAsset, err := e.state.GetAsset(e.quote)
	if err != nil {
		return false, err
	}
	baseAsset, err := e.state.GetAsset(e.base)
	if err != nil {
		return false, err
	}

	var (
		tradedAny                                  bool
		baseVolume, quoteVolume                    int64
		openPrice, closePrice, highPrice, lowPrice chain.Price
		haveRange                                  bool
		lastFilled                                 = -1
		lastBidPrice, lastAskPrice                 chain.Price
	)

	for {
		if e.askPos >= len(e.askOrders) && e.coverPos >= len(e.covers) {
			break
		}

		var ask *chain.OrderRecord
		var cover *chain.CollateralRecord
		if e.coverPos < len(e.covers) {
			cover = e.covers[e.coverPos]
		} else if e.askPos < len(e.askOrders) {
			ask = e.askOrders[e.askPos]
		}

		var askPrice chain.Price
		if cover != nil {
			askPrice = cover.CallPrice
		} else if ask != nil {
			askPrice = ask.Price
		} else {
			break
		}

		bid, bidIsShort, ok := e.bidSide(askPrice, true)
		if !ok {
			break
		}
		bidPrice := bid.Price
		if bidIsShort {
			bidPrice = e.status.CenterPrice
		}

		if bidPrice.Less(askPrice) {
			break
		}
		if e.ordersFilled == lastFilled {
			return false, ErrOrderMatchingLoop
		}
		lastFilled = e.ordersFilled
		e.ordersFilled++

		tradeQuote, tradeBase, err := e.matchAmount(bid, ask, cover, bidPrice, askPrice, bidIsShort)
		if err != nil {
			return false, err
		}
		if tradeQuote == 0 {
			e.advance(bid, bidIsShort, ask, cover)
			continue
		}

		if err := e.settle(bid, bidIsShort, ask, cover, tradeQuote, tradeBase, askPrice, quoteAsset, baseAsset); err != nil {
			return false, err
		}

		baseVolume += tradeBase
		quoteVolume += tradeQuote
		if !haveRange {
			openPrice = askPrice
			highPrice = askPrice
			lowPrice = askPrice
			haveRange = true
		}
		closePrice = askPrice
		if highPrice.Less(bidPrice) {
			highPrice = bidPrice
		}
		if askPrice.Less(lowPrice) {
			lowPrice = askPrice
		}
		lastBidPrice = bidPrice
		lastAskPrice = askPrice
		tradedAny = true

		e.advance(bid, bidIsShort, ask, cover)
	}

	if err := e.state.SetAsset(quoteAsset); err != nil {
		return false, err
	}
	if err := e.state.SetAsset(baseAsset); err != nil {
		return false, err
	}
	if tradedAny {
		e.updateCenterPrice(lastBidPrice, lastAskPrice)
	}
	e.status.LastUpdatedHeight = e.height
	if err := e.state.SetMarketStatus(e.status); err != nil {
		return false, err
	}
	if haveRange {
		if err := e.updateHistory(baseVolume, quoteVolume, highPrice, lowPrice, openPrice, closePrice); err != nil {
			return false, err
		}
	}

	// Depth floor (spec.md §4.5/§8): only a market-issued asset quoted
	// against the base currency carries a resting-depth requirement, and
	// only once one is actually configured — otherwise a fresh market
	// starting both depths at zero would trip InsufficientDepth on its very
	// first trade.
	if quoteAsset.IsMarketIssued && e.base == 0 && e.depthRequirement > 0 {
		if e.status.AskDepth < e.depthRequirement || e.status.BidDepth < e.depthRequirement {
			*e.status = savedStatus
			overlay.Discard()
			return false, ErrInsufficientDepth
		}
	}

	if err := overlay.Commit(); err != nil {
		return false, err
	}
	return tradedAny, nil
}

// matchAmount computes the quote/base quantities exchanged by the current
// bid-side and ask-side order, grounded on the original's per-branch
// min(bid_quantity, ask_quantity) sizing.
func (e *Engine) matchAmount(bid *chain.OrderRecord, ask *chain.OrderRecord, cover *chain.CollateralRecord, bidPrice, askPrice chain.Price, bidIsShort bool) (tradeQuote, tradeBase int64, err error) {
	switch {
	case cover != nil:
		// Margin call: the cover's remaining debt trades against the bid's
		// base-asset balance at the call price. askPrice is Base per Quote,
		// so it converts the Quote-denominated debt to Base directly, and
		// its reciprocal converts the matched Base amount back to Quote.
		maxBaseFromCover, err := askPrice.MulAsset(cover.CoverDebt)
		if err != nil {
			return 0, 0, err
		}
		tradeBase = min64(bid.Balance, maxBaseFromCover)
		if tradeBase == 0 {
			return 0, 0, nil
		}
		tradeQuote, err = askPrice.Reciprocal().MulAsset(tradeBase)
		if err != nil {
			return 0, 0, err
		}
		if tradeQuote > cover.CoverDebt {
			tradeQuote = cover.CoverDebt
		}
		return tradeQuote, tradeBase, nil
	case bidIsShort:
		// Short funds collateral in Base; convert to a quote-denominated
		// amount at the matched price and cap to the ask's resting size.
		shortQuoteCapacity, err := bidPrice.Reciprocal().MulAsset(bid.Balance)
		if err != nil {
			return 0, 0, err
		}
		tradeQuote = min64(shortQuoteCapacity, ask.Balance)
		if tradeQuote == 0 {
			return 0, 0, nil
		}
		tradeBase, err = askPrice.MulAsset(tradeQuote)
		if err != nil {
			return 0, 0, err
		}
		return tradeQuote, tradeBase, nil
	default:
		bidQuoteCapacity, err := bidPrice.Reciprocal().MulAsset(bid.Balance)
		if err != nil {
			return 0, 0, err
		}
		tradeQuote = min64(bidQuoteCapacity, ask.Balance)
		if tradeQuote == 0 {
			return 0, 0, nil
		}
		tradeBase, err = askPrice.MulAsset(tradeQuote)
		if err != nil {
			return 0, 0, err
		}
		if tradeQuote == bidQuoteCapacity && tradeBase > bid.Balance {
			// rounding: a fully-consumed bid pays out its exact remaining
			// balance rather than a reciprocal-rounded amount that could
			// exceed it, grounded on market_engine_v4.cpp's
			// "quantity_xts == bid_quantity_xts" rounding fix.
			tradeBase = bid.Balance
		}
		return tradeQuote, tradeBase, nil
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// settle applies the balance, order, and collateral effects of one matched
// trade, dispatching on which kind of bid-side and ask-side record is
// involved, grounded on market_engine_v4.cpp's pay_current_bid/
// pay_current_ask/pay_current_short/pay_current_cover.
func (e *Engine) settle(bid *chain.OrderRecord, bidIsShort bool, ask *chain.OrderRecord, cover *chain.CollateralRecord, tradeQuote, tradeBase int64, askPrice chain.Price, quoteAsset, baseAsset *chain.Asset) error {
	switch {
	case cover != nil && bidIsShort:
		return e.settleShortCover(bid, cover, tradeQuote, tradeBase, askPrice)
	case cover != nil:
		return e.settleCover(bid, cover, tradeQuote, tradeBase)
	case bidIsShort:
		return e.settleShort(bid, ask, tradeQuote, tradeBase, askPrice, quoteAsset)
	default:
		return e.settlePlain(bid, ask, tradeQuote, tradeBase)
	}
}

// settlePlain trades a resting bid against a resting ask: the bid pays Base
// and receives Quote, the ask pays Quote and receives Base.
func (e *Engine) settlePlain(bid, ask *chain.OrderRecord, tradeQuote, tradeBase int64) error {
	bid.Balance -= tradeBase
	ask.Balance -= tradeQuote
	e.status.AskDepth -= tradeQuote
	if err := e.creditBalance(bid.Owner, e.quote, tradeQuote); err != nil {
		return err
	}
	if err := e.creditBalance(ask.Owner, e.base, tradeBase); err != nil {
		return err
	}
	if err := e.persistOrder(bid, chain.OrderBid); err != nil {
		return err
	}
	return e.persistOrder(ask, chain.OrderAsk)
}

// settleShort opens or tops up a collateral position: the short's escrowed
// Base funds both the ask's payout and the new position's locked
// collateral, split by the quote asset's required collateral ratio (stored
// as parts-per-thousand, e.g. 2000 == 200%) so the position starts out
// over-collateralized rather than paying out its entire escrow, grounded on
// market_engine_v4.cpp's collateral-backed short fill.
func (e *Engine) settleShort(short, ask *chain.OrderRecord, tradeQuote, tradeBase int64, askPrice chain.Price, quoteAsset *chain.Asset) error {
	ratio := int64(quoteAsset.CollateralRatio)
	if ratio < 1000 {
		ratio = 1000
	}
	payout := tradeBase * 1000 / ratio
	collateralAdd := tradeBase - payout

	short.Balance -= tradeBase
	ask.Balance -= tradeQuote
	e.status.BidDepth -= collateralAdd
	e.status.AskDepth += collateralAdd
	if err := e.creditBalance(ask.Owner, e.base, payout); err != nil {
		return err
	}

	col, err := e.state.GetCollateral(e.quote, e.base, short.Owner)
	if err != nil {
		col = &chain.CollateralRecord{Quote: e.quote, Base: e.base, Owner: short.Owner, Expiration: e.now}
	}
	col.Collateral += collateralAdd
	col.CoverDebt += tradeQuote
	col.CallPrice = askPrice
	if err := e.state.SetCollateral(col); err != nil {
		return err
	}

	if err := e.persistOrder(short, chain.OrderShort); err != nil {
		return err
	}
	return e.persistOrder(ask, chain.OrderAsk)
}

// settleCover pays down a margin-called collateral position against a
// resting bid: the bid pays Base and receives Quote that extinguishes the
// position's debt, and the position's owner is paid the corresponding
// share of released collateral, net of marginCallFeeRatio, grounded on
// market_engine_v4.cpp's pay_current_cover.
func (e *Engine) settleCover(bid *chain.OrderRecord, cover *chain.CollateralRecord, tradeQuote, tradeBase int64) error {
	bid.Balance -= tradeBase
	e.status.AskDepth -= tradeBase
	if err := e.creditBalance(bid.Owner, e.quote, tradeQuote); err != nil {
		return err
	}

	cover.CoverDebt -= tradeQuote
	cover.Collateral -= tradeBase
	if cover.CoverDebt < 0 {
		cover.CoverDebt = 0
	}
	if cover.Collateral < 0 {
		cover.Collateral = 0
	}

	fee := tradeBase * marginCallFeeRatio / 10000
	payout := tradeBase - fee
	if err := e.creditBalance(cover.Owner, e.base, payout); err != nil {
		return err
	}

	if cover.CoverDebt == 0 {
		if cover.Collateral > 0 {
			extraFee := cover.Collateral * marginCallFeeRatio / 10000
			if err := e.creditBalance(cover.Owner, e.base, cover.Collateral-extraFee); err != nil {
				return err
			}
		}
		if err := e.state.DeleteCollateral(e.quote, e.base, cover.Owner); err != nil {
			return err
		}
	} else if err := e.state.SetCollateral(cover); err != nil {
		return err
	}

	return e.persistOrder(bid, chain.OrderBid)
}

// settleShortCover closes a margin-called position directly against a
// fresh short rather than a resting bid: the short's escrowed Base pays
// down the cover's debt exactly as settleCover's bid side would, and — in
// the absence of a base-seller on the other side of this trade — the same
// escrowed Base becomes the new short's own freshly opened collateral
// position, at the call price it traded at. This is a deliberate
// reduction of market_engine_v4.cpp's short-against-cover double margin
// call, which instead re-derives a collateral-rate-bounded split between
// the two positions; see DESIGN.md.
func (e *Engine) settleShortCover(short *chain.OrderRecord, cover *chain.CollateralRecord, tradeQuote, tradeBase int64, askPrice chain.Price) error {
	short.Balance -= tradeBase
	e.status.BidDepth -= tradeBase
	e.status.AskDepth += tradeBase

	cover.CoverDebt -= tradeQuote
	cover.Collateral -= tradeBase
	if cover.CoverDebt < 0 {
		cover.CoverDebt = 0
	}
	if cover.Collateral < 0 {
		cover.Collateral = 0
	}

	fee := tradeBase * marginCallFeeRatio / 10000
	payout := tradeBase - fee
	if err := e.creditBalance(cover.Owner, e.base, payout); err != nil {
		return err
	}

	if cover.CoverDebt == 0 {
		if cover.Collateral > 0 {
			extraFee := cover.Collateral * marginCallFeeRatio / 10000
			if err := e.creditBalance(cover.Owner, e.base, cover.Collateral-extraFee); err != nil {
				return err
			}
		}
		if err := e.state.DeleteCollateral(e.quote, e.base, cover.Owner); err != nil {
			return err
		}
	} else if err := e.state.SetCollateral(cover); err != nil {
		return err
	}

	newCol, err := e.state.GetCollateral(e.quote, e.base, short.Owner)
	if err != nil {
		newCol = &chain.CollateralRecord{Quote: e.quote, Base: e.base, Owner: short.Owner, Expiration: e.now}
	}
	newCol.Collateral += tradeBase
	newCol.CoverDebt += tradeQuote
	newCol.CallPrice = askPrice
	if err := e.state.SetCollateral(newCol); err != nil {
		return err
	}

	return e.persistOrder(short, chain.OrderShort)
}

// creditBalance adds amount of asset to owner's balance, creating a
// signature-withdrawable balance record if none exists yet.
func (e *Engine) creditBalance(owner chain.Address, asset chain.AssetID, amount int64) error {
	if amount == 0 {
		return nil
	}
	bal, err := e.state.GetBalance(owner, asset)
	if err != nil {
		bal = &chain.Balance{
			Owner:     owner,
			AssetID:   asset,
			Condition: chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: owner},
		}
	}
	if err := bal.Add(amount); err != nil {
		return err
	}
	return e.state.SetBalance(bal)
}

// persistOrder writes o back, or deletes it once its balance is exhausted.
func (e *Engine) persistOrder(o *chain.OrderRecord, kind chain.OrderKind) error {
	if o.Balance <= 0 {
		return e.state.DeleteOrder(o.Quote, o.Base, kind, o.Price, o.Owner)
	}
	return e.state.SetOrder(o)
}

// updateCenterPrice folds the last matched bid/ask prices into the rolling
// center price as a weighted moving average anchored on blocksPerHour,
// clamped to the status's min/max band, grounded on
// market_engine_v4.cpp's update_median_feeds/center price smoothing.
func (e *Engine) updateCenterPrice(lastBidPrice, lastAskPrice chain.Price) {
	weight := uint64(blocksPerHour)
	blended := e.status.CenterPrice
	blended.RatioLo = (blended.RatioLo*(weight-1) + lastBidPrice.RatioLo + lastAskPrice.RatioLo) / (weight + 1)
	blended.RatioHi = (blended.RatioHi*(weight-1) + lastBidPrice.RatioHi + lastAskPrice.RatioHi) / (weight + 1)

	lo := e.status.MinCoverAsk()
	hi := e.status.MaxBid()
	if blended.Less(lo) {
		blended = lo
	} else if hi.Less(blended) {
		blended = hi
	}
	e.status.CenterPrice = blended
}

// updateHistory folds one trade's volume and OHLC prices into the block,
// hour, and day history buckets, grounded on
// market_engine_v4.cpp::update_market_history's three-granularity scheme.
func (e *Engine) updateHistory(baseVolume, quoteVolume int64, highPrice, lowPrice, openPrice, closePrice chain.Price) error {
	buckets := []struct {
		gran  chain.HistoryGranularity
		start int64
	}{
		{chain.HistoryBlock, e.now},
		{chain.HistoryHour, e.now - e.now%3600},
		{chain.HistoryDay, e.now - e.now%86400},
	}
	for _, b := range buckets {
		rec := &chain.MarketHistoryRecord{
			Quote:       e.quote,
			Base:        e.base,
			Granularity: b.gran,
			BucketStart: b.start,
			OpenPrice:   openPrice,
			HighPrice:   highPrice,
			LowPrice:    lowPrice,
			ClosePrice:  closePrice,
			VolumeQuote: quoteVolume,
			VolumeBase:  baseVolume,
		}
		if err := e.state.AppendMarketHistory(rec); err != nil {
			return err
		}
	}
	return nil
}

// advance drops whichever side(s) were fully consumed this iteration.
func (e *Engine) advance(bid *chain.OrderRecord, bidIsShort bool, ask *chain.OrderRecord, cover *chain.CollateralRecord) {
	if bidIsShort {
		if bid.Balance <= 0 {
			e.shortPos++
		}
	} else {
		if bid.Balance <= 0 {
			e.bidPos++
		}
	}
	if cover != nil {
		if cover.CoverDebt <= 0 {
			e.coverPos++
		}
	} else if ask != nil {
		if ask.Balance <= 0 {
			e.askPos++
		}
	}
}
