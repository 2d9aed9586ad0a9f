package codec

import (
	"crypto/sha256"
	"crypto/sha512"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // required for address digests
)

// Hash256 returns the SHA-256 digest of data.
func Hash256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Hash512 returns the SHA-512 digest of data.
func Hash512(data []byte) [64]byte {
	return sha512.Sum512(data)
}

// Hash160 returns ripemd160(sha256(data)), the address digest used for
// every withdraw-condition-derived balance key.
func Hash160(data []byte) [20]byte {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}

// TxDigest returns ripemd160(sha512(data)), the transaction-id digest.
// Using a different construction from the address digest keeps transaction
// ids and addresses from ever colliding by construction.
func TxDigest(data []byte) [20]byte {
	sum := sha512.Sum512(data)
	h := ripemd160.New()
	h.Write(sum[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}
