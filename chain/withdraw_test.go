package chain_test

import (
	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
	"testing"
)

func TestWithdrawConditionAddressIsDeterministic(t *testing.T) {
	cond := chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: chain.Address{1, 2, 3}}
	if cond.Address() != cond.Address() {
		t.Fatal("Address() should be deterministic for the same condition")
	}
}

func TestWithdrawConditionAddressDiffersByOwner(t *testing.T) {
	a := chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: chain.Address{1}}
	b := chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: chain.Address{2}}
	if a.Address() == b.Address() {
		t.Error("conditions with different owners should hash to different addresses")
	}
}

func TestWithdrawConditionEncodeDecodeRoundTrip(t *testing.T) {
	want := chain.WithdrawCondition{
		Kind:      chain.WithdrawMultisig,
		Owners:    []chain.Address{{1}, {2}, {3}},
		Threshold: 2,
	}
	got := &chain.WithdrawCondition{}
	if err := got.DecodeCanonical(codec.NewReader(codec.Encode(want))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != want.Kind || got.Threshold != want.Threshold || len(got.Owners) != len(want.Owners) {
		t.Fatalf("got %+v want %+v", got, want)
	}
	for i := range want.Owners {
		if got.Owners[i] != want.Owners[i] {
			t.Errorf("owner %d: got %v want %v", i, got.Owners[i], want.Owners[i])
		}
	}
}

func TestRequiredSignersForSignatureCondition(t *testing.T) {
	owner := chain.Address{5}
	cond := chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: owner}
	signers, threshold := cond.RequiredSigners()
	if len(signers) != 1 || signers[0] != owner || threshold != 1 {
		t.Errorf("got signers=%v threshold=%d, want [owner], 1", signers, threshold)
	}
}

func TestRequiredSignersForMultisigCondition(t *testing.T) {
	owners := []chain.Address{{1}, {2}, {3}}
	cond := chain.WithdrawCondition{Kind: chain.WithdrawMultisig, Owners: owners, Threshold: 2}
	signers, threshold := cond.RequiredSigners()
	if len(signers) != 3 || threshold != 2 {
		t.Errorf("got signers=%v threshold=%d, want 3 owners, threshold 2", signers, threshold)
	}
}

func TestRequiredSignersForPasswordConditionIsEmpty(t *testing.T) {
	cond := chain.WithdrawCondition{Kind: chain.WithdrawPassword}
	signers, threshold := cond.RequiredSigners()
	if signers != nil || threshold != 0 {
		t.Errorf("password conditions are not satisfied by signer set alone, got signers=%v threshold=%d", signers, threshold)
	}
}
