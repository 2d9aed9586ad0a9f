package codec

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// ErrInvalidSignature is returned when a signature fails to verify or a
// public key cannot be recovered from it.
var ErrInvalidSignature = errors.New("codec: invalid signature")

// PrivateKey wraps a secp256k1 signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// PublicKey wraps a secp256k1 verification key in compressed form.
type PublicKey struct {
	key *secp256k1.PublicKey
}

// GenerateKey creates a new random PrivateKey.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes parses a 32-byte scalar into a PrivateKey.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != 32 {
		return nil, ErrMalformedEncoding
	}
	key := secp256k1.PrivKeyFromBytes(b)
	return &PrivateKey{key: key}, nil
}

// Bytes returns the 32-byte scalar encoding of the private key.
func (p *PrivateKey) Bytes() []byte { return p.key.Serialize() }

// Public returns the corresponding PublicKey.
func (p *PrivateKey) Public() *PublicKey { return &PublicKey{key: p.key.PubKey()} }

// Bytes returns the 33-byte compressed SEC1 encoding of the public key.
func (p *PublicKey) Bytes() []byte { return p.key.SerializeCompressed() }

// Address returns the Hash160 address digest derived from the public key.
func (p *PublicKey) Address() [20]byte { return Hash160(p.Bytes()) }

// PublicKeyFromBytes parses a compressed SEC1 public key.
func PublicKeyFromBytes(b []byte) (*PublicKey, error) {
	key, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, ErrMalformedEncoding
	}
	return &PublicKey{key: key}, nil
}

// Sign produces a 65-byte recoverable signature over digest: a 64-byte
// compact signature followed by a 1-byte recovery id.
func (p *PrivateKey) Sign(digest [32]byte) []byte {
	sig := ecdsa.SignCompact(p.key, digest[:], false)
	// dcrd's compact format is [recovery-id+27][R][S]; rotate the recovery
	// byte to the end so it reads naturally alongside R||S elsewhere.
	out := make([]byte, 65)
	copy(out[0:64], sig[1:65])
	out[64] = sig[0] - 27
	return out
}

// Recover recovers the signer's public key from a 65-byte signature over
// digest, as produced by Sign.
func Recover(digest [32]byte, sig []byte) (*PublicKey, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidSignature
	}
	compact := make([]byte, 65)
	compact[0] = sig[64] + 27
	copy(compact[1:65], sig[0:64])
	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return &PublicKey{key: pub}, nil
}

// Verify reports whether sig is a valid recoverable signature over digest
// by the holder of pub.
func Verify(pub *PublicKey, digest [32]byte, sig []byte) bool {
	recovered, err := Recover(digest, sig)
	if err != nil {
		return false
	}
	return recovered.key.IsEqual(pub.key)
}
