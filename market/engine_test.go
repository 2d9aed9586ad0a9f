package market_test

import (
	"errors"
	"testing"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/internal/testutil"
	"github.com/tolelom/delegatechain/market"
)

const (
	testQuote chain.AssetID = 1
	testBase  chain.AssetID = 0
)

func unitPrice() chain.Price {
	return chain.Price{RatioLo: chain.PricePrecision, QuoteAssetID: testQuote, BaseAssetID: testBase}
}

func ownerAddress(t *testing.T) chain.Address {
	t.Helper()
	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key.Public().Address()
}

func newMarket(t *testing.T) *storageFixture {
	t.Helper()
	state := testutil.NewStateDB()
	if err := state.SetAsset(&chain.Asset{ID: testBase, Symbol: "DLC", MaxSupply: 1_000_000_000}); err != nil {
		t.Fatal(err)
	}
	if err := state.SetAsset(&chain.Asset{ID: testQuote, Symbol: "USD", MaxSupply: 1_000_000_000, CollateralRatio: 2000}); err != nil {
		t.Fatal(err)
	}
	if err := state.SetMarketStatus(&chain.MarketStatus{Quote: testQuote, Base: testBase, CenterPrice: unitPrice()}); err != nil {
		t.Fatal(err)
	}
	return &storageFixture{state: state}
}

type storageFixture struct {
	state chain.ChainState
}

func TestExecuteMatchesCrossingBidAndAsk(t *testing.T) {
	f := newMarket(t)
	bidOwner := ownerAddress(t)
	askOwner := ownerAddress(t)
	price := unitPrice()

	bid := &chain.OrderRecord{Kind: chain.OrderBid, Quote: testQuote, Base: testBase, Price: price, Owner: bidOwner, Balance: 1000}
	ask := &chain.OrderRecord{Kind: chain.OrderAsk, Quote: testQuote, Base: testBase, Price: price, Owner: askOwner, Balance: 600}
	if err := f.state.SetOrder(bid); err != nil {
		t.Fatal(err)
	}
	if err := f.state.SetOrder(ask); err != nil {
		t.Fatal(err)
	}

	eng, err := market.NewEngine(f.state, testQuote, testBase, 1, 1_700_000_000, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	traded, err := eng.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !traded {
		t.Fatal("expected a trade to execute")
	}

	remainingBid, err := f.state.GetOrder(testQuote, testBase, chain.OrderBid, price, bidOwner)
	if err != nil {
		t.Fatalf("bid should still rest with remaining balance: %v", err)
	}
	if remainingBid.Balance != 400 {
		t.Errorf("remaining bid balance: got %d want 400", remainingBid.Balance)
	}

	if _, err := f.state.GetOrder(testQuote, testBase, chain.OrderAsk, price, askOwner); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("expected fully-filled ask to be removed, got err=%v", err)
	}

	bidPayout, err := f.state.GetBalance(bidOwner, testQuote)
	if err != nil {
		t.Fatalf("bid owner should be credited quote: %v", err)
	}
	if bidPayout.Amount != 600 {
		t.Errorf("bid owner quote payout: got %d want 600", bidPayout.Amount)
	}

	askPayout, err := f.state.GetBalance(askOwner, testBase)
	if err != nil {
		t.Fatalf("ask owner should be credited base: %v", err)
	}
	if askPayout.Amount != 600 {
		t.Errorf("ask owner base payout: got %d want 600", askPayout.Amount)
	}
}

func TestExecuteNoOrdersReturnsNoTrade(t *testing.T) {
	f := newMarket(t)
	eng, err := market.NewEngine(f.state, testQuote, testBase, 1, 1_700_000_000, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	traded, err := eng.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if traded {
		t.Error("expected no trade on an empty book")
	}
}

func TestExecuteNonCrossingOrdersDoNotTrade(t *testing.T) {
	f := newMarket(t)
	bidOwner := ownerAddress(t)
	askOwner := ownerAddress(t)
	bidPrice := unitPrice()
	askPrice := unitPrice()
	// Ask priced twice the bid: they never cross.
	askPrice.RatioLo = bidPrice.RatioLo * 2

	if err := f.state.SetOrder(&chain.OrderRecord{Kind: chain.OrderBid, Quote: testQuote, Base: testBase, Price: bidPrice, Owner: bidOwner, Balance: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := f.state.SetOrder(&chain.OrderRecord{Kind: chain.OrderAsk, Quote: testQuote, Base: testBase, Price: askPrice, Owner: askOwner, Balance: 600}); err != nil {
		t.Fatal(err)
	}

	eng, err := market.NewEngine(f.state, testQuote, testBase, 1, 1_700_000_000, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	traded, err := eng.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if traded {
		t.Error("expected no trade when the ask price exceeds the bid price")
	}
}

func TestNewEngineRejectsUnknownAssets(t *testing.T) {
	state := testutil.NewStateDB()
	if _, err := market.NewEngine(state, 99, 0, 1, 1_700_000_000, 0); err != market.ErrAssetsNotFound {
		t.Errorf("got %v, want ErrAssetsNotFound", err)
	}
}

// newIssuedMarket is newMarket but with the quote asset flagged
// IsMarketIssued, the precondition Execute's depth floor checks before
// enforcing MarketDepthRequirement.
func newIssuedMarket(t *testing.T, askDepth, bidDepth int64) *storageFixture {
	t.Helper()
	state := testutil.NewStateDB()
	if err := state.SetAsset(&chain.Asset{ID: testBase, Symbol: "DLC", MaxSupply: 1_000_000_000}); err != nil {
		t.Fatal(err)
	}
	if err := state.SetAsset(&chain.Asset{ID: testQuote, Symbol: "USD", MaxSupply: 1_000_000_000, CollateralRatio: 2000, IsMarketIssued: true}); err != nil {
		t.Fatal(err)
	}
	if err := state.SetMarketStatus(&chain.MarketStatus{Quote: testQuote, Base: testBase, CenterPrice: unitPrice(), AskDepth: askDepth, BidDepth: bidDepth}); err != nil {
		t.Fatal(err)
	}
	return &storageFixture{state: state}
}

func TestExecuteInsufficientDepthRollsBackWholePass(t *testing.T) {
	f := newIssuedMarket(t, 1000, 1000)
	bidOwner := ownerAddress(t)
	askOwner := ownerAddress(t)
	price := unitPrice()

	bid := &chain.OrderRecord{Kind: chain.OrderBid, Quote: testQuote, Base: testBase, Price: price, Owner: bidOwner, Balance: 1000}
	ask := &chain.OrderRecord{Kind: chain.OrderAsk, Quote: testQuote, Base: testBase, Price: price, Owner: askOwner, Balance: 600}
	if err := f.state.SetOrder(bid); err != nil {
		t.Fatal(err)
	}
	if err := f.state.SetOrder(ask); err != nil {
		t.Fatal(err)
	}

	// The trade would drain AskDepth from 1000 to 400, below the 500 floor.
	eng, err := market.NewEngine(f.state, testQuote, testBase, 1, 1_700_000_000, 500)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	traded, err := eng.Execute()
	if !errors.Is(err, market.ErrInsufficientDepth) {
		t.Fatalf("got err=%v traded=%v, want ErrInsufficientDepth", err, traded)
	}

	remainingBid, err := f.state.GetOrder(testQuote, testBase, chain.OrderBid, price, bidOwner)
	if err != nil {
		t.Fatalf("bid should be unchanged by the rolled-back pass: %v", err)
	}
	if remainingBid.Balance != 1000 {
		t.Errorf("bid balance after rollback: got %d want 1000", remainingBid.Balance)
	}
	if payout, err := f.state.GetBalance(bidOwner, testQuote); err != nil || payout.Amount != 0 {
		t.Errorf("expected no payout to survive the rollback, got %+v err=%v", payout, err)
	}

	status, err := f.state.GetMarketStatus(testQuote, testBase)
	if err != nil {
		t.Fatal(err)
	}
	if status.AskDepth != 1000 {
		t.Errorf("AskDepth after rollback: got %d want 1000", status.AskDepth)
	}
}

func TestExecuteSufficientDepthCommits(t *testing.T) {
	f := newIssuedMarket(t, 1000, 1000)
	bidOwner := ownerAddress(t)
	askOwner := ownerAddress(t)
	price := unitPrice()

	bid := &chain.OrderRecord{Kind: chain.OrderBid, Quote: testQuote, Base: testBase, Price: price, Owner: bidOwner, Balance: 300}
	ask := &chain.OrderRecord{Kind: chain.OrderAsk, Quote: testQuote, Base: testBase, Price: price, Owner: askOwner, Balance: 300}
	if err := f.state.SetOrder(bid); err != nil {
		t.Fatal(err)
	}
	if err := f.state.SetOrder(ask); err != nil {
		t.Fatal(err)
	}

	// AskDepth only drains to 700, still above the 500 floor.
	eng, err := market.NewEngine(f.state, testQuote, testBase, 1, 1_700_000_000, 500)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	traded, err := eng.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !traded {
		t.Fatal("expected the trade to execute")
	}

	status, err := f.state.GetMarketStatus(testQuote, testBase)
	if err != nil {
		t.Fatal(err)
	}
	if status.AskDepth != 700 {
		t.Errorf("AskDepth after commit: got %d want 700", status.AskDepth)
	}
}

// TestExecuteShortMatchesCover exercises the short-against-cover trade kind
// directly: a fresh short order absorbs a margin-called position's debt in
// place of a resting bid, grounded on settleShortCover.
func TestExecuteShortMatchesCover(t *testing.T) {
	f := newMarket(t)
	shortOwner := ownerAddress(t)
	coverOwner := ownerAddress(t)
	callPrice := unitPrice()

	short := &chain.OrderRecord{Kind: chain.OrderShort, Quote: testQuote, Base: testBase, Price: callPrice, Owner: shortOwner, Balance: 600}
	if err := f.state.SetOrder(short); err != nil {
		t.Fatal(err)
	}
	cover := &chain.CollateralRecord{Quote: testQuote, Base: testBase, Owner: coverOwner, Collateral: 600, CoverDebt: 600, CallPrice: callPrice}
	if err := f.state.SetCollateral(cover); err != nil {
		t.Fatal(err)
	}
	if err := f.state.SetMarketStatus(&chain.MarketStatus{Quote: testQuote, Base: testBase, CenterPrice: callPrice}); err != nil {
		t.Fatal(err)
	}

	eng, err := market.NewEngine(f.state, testQuote, testBase, 1, 1_700_000_000, 0)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	traded, err := eng.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !traded {
		t.Fatal("expected the short to match the cover's debt")
	}

	if _, err := f.state.GetCollateral(testQuote, testBase, coverOwner); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("expected the fully-paid-down cover position to be deleted, got err=%v", err)
	}

	newPos, err := f.state.GetCollateral(testQuote, testBase, shortOwner)
	if err != nil {
		t.Fatalf("expected the short to open its own collateral position: %v", err)
	}
	if newPos.Collateral != 600 {
		t.Errorf("new position collateral: got %d want 600", newPos.Collateral)
	}
	if newPos.CoverDebt != 600 {
		t.Errorf("new position debt: got %d want 600", newPos.CoverDebt)
	}

	if _, err := f.state.GetOrder(testQuote, testBase, chain.OrderShort, callPrice, shortOwner); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("expected the fully-filled short order to be removed, got err=%v", err)
	}
}
