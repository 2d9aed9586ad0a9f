package pending_test

import (
	"testing"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/internal/testutil"
	"github.com/tolelom/delegatechain/pending"
)

func TestOverlayReadsFallThroughToParent(t *testing.T) {
	parent := testutil.NewStateDB()
	if err := parent.SetAccount(&chain.Account{ID: 1, Name: "alice"}); err != nil {
		t.Fatal(err)
	}

	overlay := pending.New(parent)
	acc, err := overlay.GetAccount(1)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if acc.Name != "alice" {
		t.Errorf("name: got %q want alice", acc.Name)
	}
}

func TestOverlayWritesAreLocalUntilCommit(t *testing.T) {
	parent := testutil.NewStateDB()
	if err := parent.SetAccount(&chain.Account{ID: 1, Name: "alice"}); err != nil {
		t.Fatal(err)
	}

	overlay := pending.New(parent)
	if err := overlay.SetAccount(&chain.Account{ID: 1, Name: "alice", IsDelegate: true}); err != nil {
		t.Fatal(err)
	}

	fromParent, err := parent.GetAccount(1)
	if err != nil {
		t.Fatal(err)
	}
	if fromParent.IsDelegate {
		t.Fatal("parent should not observe the overlay's write before Commit")
	}

	fromOverlay, err := overlay.GetAccount(1)
	if err != nil {
		t.Fatal(err)
	}
	if !fromOverlay.IsDelegate {
		t.Fatal("overlay should observe its own buffered write")
	}

	if err := overlay.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	afterCommit, err := parent.GetAccount(1)
	if err != nil {
		t.Fatal(err)
	}
	if !afterCommit.IsDelegate {
		t.Error("parent should observe the write once committed")
	}
}

func TestOverlayDiscardLeavesParentUntouched(t *testing.T) {
	parent := testutil.NewStateDB()
	owner := chain.Address{1}
	bal := &chain.Balance{Owner: owner, AssetID: 0, Amount: 100}
	if err := parent.SetBalance(bal); err != nil {
		t.Fatal(err)
	}

	overlay := pending.New(parent)
	if err := overlay.SetBalance(&chain.Balance{Owner: owner, AssetID: 0, Amount: 999}); err != nil {
		t.Fatal(err)
	}
	overlay.Discard()

	got, err := parent.GetBalance(owner, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Amount != 100 {
		t.Errorf("parent balance should be untouched after discard: got %d want 100", got.Amount)
	}
}

func TestOverlayDeleteShadowsParentValue(t *testing.T) {
	parent := testutil.NewStateDB()
	owner := chain.Address{2}
	if err := parent.SetBalance(&chain.Balance{Owner: owner, AssetID: 0, Amount: 50}); err != nil {
		t.Fatal(err)
	}

	overlay := pending.New(parent)
	if err := overlay.DeleteBalance(owner, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := overlay.GetBalance(owner, 0); err != chain.ErrNotFound {
		t.Errorf("got %v, want ErrNotFound for a locally deleted balance", err)
	}

	if err := overlay.Commit(); err != nil {
		t.Fatal(err)
	}
	afterCommit, err := parent.GetBalance(owner, 0)
	if err != nil {
		t.Fatal(err)
	}
	if afterCommit.Amount != 0 {
		t.Errorf("parent should observe the delete after commit: got amount %d want 0", afterCommit.Amount)
	}
}

func TestNestedOverlaysCommitThroughToRoot(t *testing.T) {
	root := testutil.NewStateDB()
	blockLevel := pending.New(root)
	txLevel := pending.New(blockLevel)

	if err := txLevel.SetAccount(&chain.Account{ID: 7, Name: "bob"}); err != nil {
		t.Fatal(err)
	}
	if err := txLevel.Commit(); err != nil {
		t.Fatalf("tx commit: %v", err)
	}

	if _, err := root.GetAccount(7); err != chain.ErrNotFound {
		t.Errorf("root should not see the account before the block-level overlay commits, got %v", err)
	}

	if err := blockLevel.Commit(); err != nil {
		t.Fatalf("block commit: %v", err)
	}
	acc, err := root.GetAccount(7)
	if err != nil {
		t.Fatalf("GetAccount after block commit: %v", err)
	}
	if acc.Name != "bob" {
		t.Errorf("name: got %q want bob", acc.Name)
	}
}

func TestHeadNumberOverlayShadowsParent(t *testing.T) {
	parent := testutil.NewStateDB()
	if err := parent.SetHeadNumber(5); err != nil {
		t.Fatal(err)
	}

	overlay := pending.New(parent)
	if err := overlay.SetHeadNumber(6); err != nil {
		t.Fatal(err)
	}
	if head, err := overlay.HeadNumber(); err != nil || head != 6 {
		t.Errorf("overlay head: got (%d, %v) want (6, nil)", head, err)
	}
	if head, err := parent.HeadNumber(); err != nil || head != 5 {
		t.Errorf("parent head should be unaffected: got (%d, %v) want (5, nil)", head, err)
	}
}
