package indexer_test

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/events"
	"github.com/tolelom/delegatechain/indexer"
	"github.com/tolelom/delegatechain/internal/testutil"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestIndexerTracksTxBlock(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter, testLogger())

	var txID chain.TransactionID
	txID[0] = 0xAB

	if _, ok, err := idx.BlockForTx(txID); err != nil || ok {
		t.Fatalf("expected no index entry yet, got ok=%v err=%v", ok, err)
	}

	emitter.Emit(events.Event{Type: events.EventTxApplied, TxID: txID.String(), BlockHeight: 42})

	height, ok, err := idx.BlockForTx(txID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected tx to be indexed after EventTxApplied")
	}
	if height != 42 {
		t.Errorf("height: got %d want 42", height)
	}
}

func TestIndexerTracksDelegatePay(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter, testLogger())

	delegate := chain.AccountID(7)
	if _, ok, err := idx.LastPaidHeight(delegate); err != nil || ok {
		t.Fatalf("expected no index entry yet, got ok=%v err=%v", ok, err)
	}

	emitter.Emit(events.Event{
		Type:        events.EventDelegatePay,
		BlockHeight: 100,
		Data:        map[string]any{"delegate": delegate},
	})

	height, ok, err := idx.LastPaidHeight(delegate)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected delegate to be indexed after EventDelegatePay")
	}
	if height != 100 {
		t.Errorf("height: got %d want 100", height)
	}
}

func TestIndexerIgnoresEventsMissingData(t *testing.T) {
	db := testutil.NewMemDB()
	emitter := events.NewEmitter()
	idx := indexer.New(db, emitter, testLogger())

	emitter.Emit(events.Event{Type: events.EventTxApplied, TxID: "", BlockHeight: 1})
	emitter.Emit(events.Event{Type: events.EventDelegatePay, BlockHeight: 1, Data: nil})

	var zero chain.TransactionID
	if _, ok, _ := idx.BlockForTx(zero); ok {
		t.Error("empty tx id should not be indexed")
	}
	if _, ok, _ := idx.LastPaidHeight(0); ok {
		t.Error("missing delegate data should not be indexed")
	}
}
