package chain_test

import (
	"bytes"
	"testing"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
)

func TestAccountEncodeDecodeRoundTrip(t *testing.T) {
	want := &chain.Account{
		ID:        7,
		Name:      "alice",
		OwnerKey:  []byte{1, 2, 3},
		ActiveKey: []byte{4, 5, 6},
		NetVotes:  1000,
		IsDelegate: true,
		Delegate: chain.DelegateStats{
			LastBlockProduced: 42,
			BlocksProduced:    10,
			BlocksMissed:      1,
			PayBalance:        500,
			SignatureKey:      []byte{9, 9},
		},
		RegisteredAt: 1_700_000_000,
	}
	got := &chain.Account{}
	if err := got.DecodeCanonical(codec.NewReader(codec.Encode(want))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != want.ID || got.Name != want.Name || got.NetVotes != want.NetVotes {
		t.Fatalf("got %+v want %+v", got, want)
	}
	if !bytes.Equal(got.OwnerKey, want.OwnerKey) || !bytes.Equal(got.ActiveKey, want.ActiveKey) {
		t.Error("key bytes did not round trip")
	}
	if !got.IsDelegate || got.Delegate.BlocksProduced != 10 || got.Delegate.PayBalance != 500 {
		t.Errorf("delegate stats did not round trip: %+v", got.Delegate)
	}
	if got.RegisteredAt != want.RegisteredAt {
		t.Errorf("registered at: got %d want %d", got.RegisteredAt, want.RegisteredAt)
	}
}

func TestAccountAddressIsHash160OfActiveKey(t *testing.T) {
	acc := &chain.Account{ActiveKey: []byte{1, 2, 3, 4}}
	want := chain.Address(codec.Hash160(acc.ActiveKey))
	if acc.Address() != want {
		t.Errorf("got %v want %v", acc.Address(), want)
	}
}
