package network_test

import (
	"testing"

	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/network"
)

func TestInventoryAdvertisementEncodeDecodeRoundTrip(t *testing.T) {
	want := &network.InventoryAdvertisement{
		Kind: network.ItemKindBlock,
		IDs:  []network.ItemID{{1, 2, 3}, {4, 5, 6}},
	}
	got := &network.InventoryAdvertisement{}
	if err := got.DecodeCanonical(codec.NewReader(codec.Encode(want))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != want.Kind || len(got.IDs) != len(want.IDs) {
		t.Fatalf("got %+v want %+v", got, want)
	}
	for i := range want.IDs {
		if got.IDs[i] != want.IDs[i] {
			t.Errorf("id %d: got %v want %v", i, got.IDs[i], want.IDs[i])
		}
	}
}

func TestItemRequestEncodeDecodeRoundTrip(t *testing.T) {
	want := &network.ItemRequest{Kind: network.ItemKindTransaction, ID: network.ItemID{9, 9, 9}}
	got := &network.ItemRequest{}
	if err := got.DecodeCanonical(codec.NewReader(codec.Encode(want))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Kind != want.Kind || got.ID != want.ID {
		t.Errorf("got %+v want %+v", got, want)
	}
}

func TestItemIDsRequestEncodeDecodeRoundTrip(t *testing.T) {
	want := &network.ItemIDsRequest{Kind: network.ItemKindBlock, Since: 100, Limit: 50}
	got := &network.ItemIDsRequest{}
	if err := got.DecodeCanonical(codec.NewReader(codec.Encode(want))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if *got != *want {
		t.Errorf("got %+v want %+v", got, want)
	}
}

func TestItemIDsReplyEncodeDecodeRoundTrip(t *testing.T) {
	want := &network.ItemIDsReply{
		Kind:      network.ItemKindBlock,
		IDs:       []network.ItemID{{7, 7, 7}},
		Remaining: 3,
	}
	got := &network.ItemIDsReply{}
	if err := got.DecodeCanonical(codec.NewReader(codec.Encode(want))); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Remaining != want.Remaining || len(got.IDs) != 1 || got.IDs[0] != want.IDs[0] {
		t.Errorf("got %+v want %+v", got, want)
	}
}
