package chain_test

import (
	"testing"
	"time"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
)

func signedTx(t *testing.T, key *codec.PrivateKey, expiration int64, ops ...chain.Operation) *chain.Transaction {
	t.Helper()
	tx := &chain.Transaction{Expiration: expiration, Operations: ops}
	tx.Sign(key)
	return tx
}

func TestMempoolAddGetPendingRemove(t *testing.T) {
	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	mp := chain.NewMempool(0, 0)
	now := time.Unix(1_700_000_000, 0)

	tx := signedTx(t, key, now.Unix()+60, chain.Operation{Kind: chain.OpWithdrawPay, PayAccount: 1})
	if err := mp.Add(tx, now); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if mp.Size() != 1 {
		t.Errorf("size: got %d want 1", mp.Size())
	}
	if err := mp.Add(tx, now); err != chain.ErrDuplicateTx {
		t.Errorf("duplicate add: got %v want ErrDuplicateTx", err)
	}

	if _, ok := mp.Get(tx.ID()); !ok {
		t.Error("Get did not find added tx")
	}

	pending := mp.Pending(10)
	if len(pending) != 1 || pending[0].ID() != tx.ID() {
		t.Errorf("Pending: got %v", pending)
	}

	mp.Remove([]chain.TransactionID{tx.ID()})
	if mp.Size() != 0 {
		t.Error("pool should be empty after remove")
	}
	if _, ok := mp.Get(tx.ID()); ok {
		t.Error("Get should not find removed tx")
	}
}

func TestMempoolRejectsUnsignedAndExpired(t *testing.T) {
	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	mp := chain.NewMempool(0, 0)
	now := time.Unix(1_700_000_000, 0)

	unsigned := &chain.Transaction{Expiration: now.Unix() + 60}
	if err := mp.Add(unsigned, now); err != chain.ErrNoSignatures {
		t.Errorf("unsigned tx: got %v want ErrNoSignatures", err)
	}

	expired := signedTx(t, key, now.Unix()-1)
	if err := mp.Add(expired, now); err != chain.ErrTxExpired {
		t.Errorf("expired tx: got %v want ErrTxExpired", err)
	}
}

func TestMempoolMaxTTL(t *testing.T) {
	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	mp := chain.NewMempool(0, 3600)
	now := time.Unix(1_700_000_000, 0)

	farFuture := signedTx(t, key, now.Unix()+7200)
	if err := mp.Add(farFuture, now); err != chain.ErrMaxTransactionTTL {
		t.Errorf("far-future tx: got %v want ErrMaxTransactionTTL", err)
	}
}

func TestMempoolFull(t *testing.T) {
	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	mp := chain.NewMempool(1, 0)
	now := time.Unix(1_700_000_000, 0)

	tx1 := signedTx(t, key, now.Unix()+60, chain.Operation{Kind: chain.OpWithdrawPay, PayAccount: 1})
	if err := mp.Add(tx1, now); err != nil {
		t.Fatal(err)
	}
	tx2 := signedTx(t, key, now.Unix()+60, chain.Operation{Kind: chain.OpWithdrawPay, PayAccount: 2})
	if err := mp.Add(tx2, now); err != chain.ErrMempoolFull {
		t.Errorf("second add: got %v want ErrMempoolFull", err)
	}
}
