package consensus

import (
	"path/filepath"
	"testing"
)

func TestSecretStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delegate-secrets", "1.json")
	want := secretState{PendingReveal: [20]byte{1, 2, 3, 4, 5}}

	if err := saveSecretState(path, want); err != nil {
		t.Fatalf("saveSecretState: %v", err)
	}
	got, err := loadSecretState(path)
	if err != nil {
		t.Fatalf("loadSecretState: %v", err)
	}
	if got != want {
		t.Errorf("got %v want %v", got, want)
	}
}

func TestLoadSecretStateMissingFileReturnsZeroValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	got, err := loadSecretState(path)
	if err != nil {
		t.Fatalf("loadSecretState: %v", err)
	}
	if got != (secretState{}) {
		t.Errorf("expected zero-value secretState for a missing file, got %v", got)
	}
}

func TestRandomSecretIsNonZeroAndVaries(t *testing.T) {
	a, err := randomSecret()
	if err != nil {
		t.Fatal(err)
	}
	b, err := randomSecret()
	if err != nil {
		t.Fatal(err)
	}
	if a == (([20]byte{})) {
		t.Error("randomSecret should not return the zero value")
	}
	if a == b {
		t.Error("two calls to randomSecret should not collide")
	}
}
