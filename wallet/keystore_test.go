package wallet_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/wallet"
)

func TestSaveLoadKeyRoundTrip(t *testing.T) {
	priv, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "delegate.key")
	if err := wallet.SaveKey(path, "correct horse battery staple", priv); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}

	loaded, err := wallet.LoadKey(path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), priv.Bytes()) {
		t.Error("loaded key does not match saved key")
	}
}

func TestLoadKeyWrongPassword(t *testing.T) {
	priv, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "delegate.key")
	if err := wallet.SaveKey(path, "correct", priv); err != nil {
		t.Fatal(err)
	}

	if _, err := wallet.LoadKey(path, "wrong"); err == nil {
		t.Error("expected error when loading with the wrong password")
	}
}
