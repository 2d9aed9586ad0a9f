package chain_test

import (
	"testing"

	"github.com/tolelom/delegatechain/chain"
)

func unitPrice(quote, base chain.AssetID) chain.Price {
	return chain.Price{RatioLo: chain.PricePrecision, QuoteAssetID: quote, BaseAssetID: base}
}

func TestMulAssetAtUnitPriceIsIdentity(t *testing.T) {
	p := unitPrice(1, 0)
	got, err := p.MulAsset(500)
	if err != nil {
		t.Fatalf("MulAsset: %v", err)
	}
	if got != 500 {
		t.Errorf("got %d want 500", got)
	}
}

func TestMulAssetScalesByRatio(t *testing.T) {
	p := unitPrice(1, 0)
	p.RatioLo = chain.PricePrecision * 2 // price of 2.0
	got, err := p.MulAsset(100)
	if err != nil {
		t.Fatalf("MulAsset: %v", err)
	}
	if got != 200 {
		t.Errorf("got %d want 200", got)
	}
}

func TestMulAssetNegatesAmountSign(t *testing.T) {
	p := unitPrice(1, 0)
	got, err := p.MulAsset(-100)
	if err != nil {
		t.Fatalf("MulAsset: %v", err)
	}
	if got != 100 {
		t.Errorf("got %d want 100 (sign stripped)", got)
	}
}

func TestReciprocalOfUnitPriceIsSelf(t *testing.T) {
	p := unitPrice(1, 0)
	r := p.Reciprocal()
	if r.RatioLo != p.RatioLo || r.RatioHi != p.RatioHi {
		t.Errorf("expected unit price to be self-reciprocal, got %+v", r)
	}
	if r.QuoteAssetID != p.BaseAssetID || r.BaseAssetID != p.QuoteAssetID {
		t.Errorf("reciprocal should swap asset ids, got %+v", r)
	}
}

func TestReciprocalRoundTrip(t *testing.T) {
	p := unitPrice(1, 0)
	p.RatioLo = chain.PricePrecision * 4 // price of 4.0
	r := p.Reciprocal()
	back := r.Reciprocal()
	if back.RatioLo != p.RatioLo || back.RatioHi != p.RatioHi {
		t.Errorf("reciprocal round trip: got %+v want %+v", back, p)
	}
}

func TestLessComparesRatioMagnitude(t *testing.T) {
	low := unitPrice(1, 0)
	high := unitPrice(1, 0)
	high.RatioLo = chain.PricePrecision * 2
	if !low.Less(high) {
		t.Error("expected low < high")
	}
	if high.Less(low) {
		t.Error("expected high to not be less than low")
	}
}

func TestEqualRequiresSameRatioAndAssetPair(t *testing.T) {
	a := unitPrice(1, 0)
	b := unitPrice(1, 0)
	if !a.Equal(b) {
		t.Error("expected equal prices with identical fields to be Equal")
	}
	c := unitPrice(2, 0)
	if a.Equal(c) {
		t.Error("expected prices with different asset pairs to not be Equal")
	}
}
