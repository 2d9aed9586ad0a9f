package query_test

import (
	"context"
	"testing"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/internal/testutil"
	"github.com/tolelom/delegatechain/query"
)

func TestAccountByIDAndName(t *testing.T) {
	state := testutil.NewStateDB()
	acc := &chain.Account{ID: 1, Name: "alice", IsDelegate: true}
	if err := state.SetAccount(acc); err != nil {
		t.Fatal(err)
	}
	mempool := chain.NewMempool(0, 0)
	api := query.New(state, state, nil, mempool)

	got, err := api.AccountByID(1)
	if err != nil {
		t.Fatalf("AccountByID: %v", err)
	}
	if got.Name != "alice" {
		t.Errorf("name: got %q want alice", got.Name)
	}

	byName, err := api.AccountByName("alice")
	if err != nil {
		t.Fatalf("AccountByName: %v", err)
	}
	if byName.ID != 1 {
		t.Errorf("id: got %d want 1", byName.ID)
	}

	if _, err := api.AccountByID(99); err != query.ErrNotFound {
		t.Errorf("unknown account: got %v want ErrNotFound", err)
	}
}

func TestDelegateStatusRejectsNonDelegate(t *testing.T) {
	state := testutil.NewStateDB()
	acc := &chain.Account{ID: 2, Name: "bob", IsDelegate: false}
	if err := state.SetAccount(acc); err != nil {
		t.Fatal(err)
	}
	mempool := chain.NewMempool(0, 0)
	api := query.New(state, state, nil, mempool)

	if _, err := api.DelegateStatus(2); err == nil {
		t.Error("expected error for non-delegate account")
	}
}

func TestMarketHistoryRequiresReader(t *testing.T) {
	state := testutil.NewStateDB()
	mempool := chain.NewMempool(0, 0)
	api := query.New(state, nil, nil, mempool)

	_, err := api.MarketHistory(context.Background(), 0, 1, chain.HistoryGranularity(0), 0, 100)
	if err == nil {
		t.Error("expected error when no history reader is configured")
	}
}

func TestMarketHistoryRespectsCancellation(t *testing.T) {
	state := testutil.NewStateDB()
	mempool := chain.NewMempool(0, 0)
	api := query.New(state, state, nil, mempool)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := api.MarketHistory(ctx, 0, 1, chain.HistoryGranularity(0), 0, 100)
	if err == nil {
		t.Error("expected error for already-cancelled context")
	}
}

func TestPendingTransactionsEmpty(t *testing.T) {
	state := testutil.NewStateDB()
	mempool := chain.NewMempool(0, 0)
	api := query.New(state, state, nil, mempool)

	txs := api.PendingTransactions(10)
	if len(txs) != 0 {
		t.Errorf("got %d pending txs, want 0", len(txs))
	}
}
