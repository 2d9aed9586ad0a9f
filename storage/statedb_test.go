package storage_test

import (
	"errors"
	"testing"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/internal/testutil"
)

func TestHeadNumberOnFreshChainIsMinusOne(t *testing.T) {
	state := testutil.NewStateDB()
	head, err := state.HeadNumber()
	if err != nil {
		t.Fatalf("HeadNumber: %v", err)
	}
	if head != -1 {
		t.Errorf("head: got %d want -1", head)
	}
}

func TestSetHeadNumberPersists(t *testing.T) {
	state := testutil.NewStateDB()
	if err := state.SetHeadNumber(42); err != nil {
		t.Fatal(err)
	}
	head, err := state.HeadNumber()
	if err != nil {
		t.Fatal(err)
	}
	if head != 42 {
		t.Errorf("head: got %d want 42", head)
	}
}

func TestNextAccountIDAndAssetIDStartAtOneAndIncrement(t *testing.T) {
	state := testutil.NewStateDB()
	first, err := state.NextAccountID()
	if err != nil {
		t.Fatal(err)
	}
	if first != 1 {
		t.Errorf("first account id: got %d want 1", first)
	}
	second, err := state.NextAccountID()
	if err != nil {
		t.Fatal(err)
	}
	if second != 2 {
		t.Errorf("second account id: got %d want 2", second)
	}

	firstAsset, err := state.NextAssetID()
	if err != nil {
		t.Fatal(err)
	}
	if firstAsset != 1 {
		t.Errorf("first asset id: got %d want 1", firstAsset)
	}
}

func TestGetBalanceOfUnknownAccountReturnsZeroNotError(t *testing.T) {
	state := testutil.NewStateDB()
	bal, err := state.GetBalance(chain.Address{9}, 0)
	if err != nil {
		t.Fatalf("expected no error for a never-set balance, got %v", err)
	}
	if bal.Amount != 0 {
		t.Errorf("amount: got %d want 0", bal.Amount)
	}
}

func TestBlockRoundTripByNumberAndID(t *testing.T) {
	state := testutil.NewStateDB()
	block := &chain.Block{Header: chain.BlockHeader{BlockNumber: 3}}

	if err := state.SetBlock(block); err != nil {
		t.Fatal(err)
	}
	byNumber, err := state.GetBlockByNumber(3)
	if err != nil {
		t.Fatalf("GetBlockByNumber: %v", err)
	}
	if byNumber.Header.BlockNumber != 3 {
		t.Errorf("block number: got %d want 3", byNumber.Header.BlockNumber)
	}

	byID, err := state.GetBlockByID(block.Header.ID())
	if err != nil {
		t.Fatalf("GetBlockByID: %v", err)
	}
	if byID.Header.BlockNumber != 3 {
		t.Errorf("block number: got %d want 3", byID.Header.BlockNumber)
	}
}

func TestGetBlockByNumberMissing(t *testing.T) {
	state := testutil.NewStateDB()
	if _, err := state.GetBlockByNumber(99); !errors.Is(err, chain.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestActiveDelegatesOrdersByNetVotesDescending(t *testing.T) {
	state := testutil.NewStateDB()
	accounts := []*chain.Account{
		{ID: 1, Name: "low", IsDelegate: true, NetVotes: 10},
		{ID: 2, Name: "high", IsDelegate: true, NetVotes: 100},
		{ID: 3, Name: "not-a-delegate", IsDelegate: false, NetVotes: 1000},
	}
	for _, a := range accounts {
		if err := state.SetAccount(a); err != nil {
			t.Fatal(err)
		}
	}

	top, err := state.ActiveDelegates(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 2 {
		t.Fatalf("expected 2 delegates, got %d", len(top))
	}
	if top[0].Name != "high" || top[1].Name != "low" {
		t.Errorf("expected [high, low] by descending votes, got [%s, %s]", top[0].Name, top[1].Name)
	}
}

func TestMarketHistoryRangeFiltersByBucketStart(t *testing.T) {
	state := testutil.NewStateDB()
	for _, start := range []int64{100, 200, 300} {
		rec := &chain.MarketHistoryRecord{Quote: 1, Base: 0, Granularity: chain.HistoryBlock, BucketStart: start}
		if err := state.AppendMarketHistory(rec); err != nil {
			t.Fatal(err)
		}
	}

	records, err := state.MarketHistoryRange(1, 0, chain.HistoryBlock, 150, 300)
	if err != nil {
		t.Fatalf("MarketHistoryRange: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records in range, got %d", len(records))
	}
	if records[0].BucketStart != 200 || records[1].BucketStart != 300 {
		t.Errorf("unexpected bucket order: %d, %d", records[0].BucketStart, records[1].BucketStart)
	}
}
