package codec_test

import (
	"bytes"
	"testing"

	"github.com/tolelom/delegatechain/codec"
)

func TestSignRecoverRoundTrip(t *testing.T) {
	priv, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	digest := codec.Hash256([]byte("a transaction body"))
	sig := priv.Sign(digest)
	if len(sig) != 65 {
		t.Fatalf("signature length: got %d want 65", len(sig))
	}

	recovered, err := codec.Recover(digest, sig)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !bytes.Equal(recovered.Bytes(), priv.Public().Bytes()) {
		t.Error("recovered public key does not match signer")
	}
}

func TestRecoverRejectsTamperedDigest(t *testing.T) {
	priv, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	digest := codec.Hash256([]byte("original"))
	sig := priv.Sign(digest)

	tampered := codec.Hash256([]byte("tampered"))
	recovered, err := codec.Recover(tampered, sig)
	if err != nil {
		// a recovery failure is an acceptable rejection
		return
	}
	if bytes.Equal(recovered.Bytes(), priv.Public().Bytes()) {
		t.Error("recovery over tampered digest should not match the real signer")
	}
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	priv, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := codec.PrivateKeyFromBytes(priv.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(restored.Public().Bytes(), priv.Public().Bytes()) {
		t.Error("restored key's public key does not match original")
	}
}

func TestAddressIsHash160OfPublicKey(t *testing.T) {
	priv, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	addr := priv.Public().Address()
	want := codec.Hash160(priv.Public().Bytes())
	if addr != want {
		t.Error("Address() does not match Hash160(public key bytes)")
	}
}
