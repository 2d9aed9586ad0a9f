package chain

import "github.com/tolelom/delegatechain/codec"

// Transaction is an ordered list of operations, expiring at Expiration and
// authorized by Signatures (65-byte recoverable signatures, one per
// required signer, order-independent since signer recovery is by public
// key, not by position).
type Transaction struct {
	Expiration int64 // unix seconds; tx is rejected once now > Expiration
	Operations []Operation
	Signatures [][]byte
}

// SigningDigest returns the digest signatures are computed over: every
// field except Signatures itself.
func (tx *Transaction) SigningDigest() [32]byte {
	w := codec.NewWriter(256)
	w.PutInt64(tx.Expiration)
	w.PutUvarint(uint64(len(tx.Operations)))
	for i := range tx.Operations {
		tx.Operations[i].EncodeCanonical(w)
	}
	return codec.Hash256(w.Bytes())
}

// ID returns the transaction's identity hash: TxDigest of the signing
// digest plus signatures, so that two transactions with identical
// operations but different signers still have distinct ids.
func (tx *Transaction) ID() TransactionID {
	digest := tx.SigningDigest()
	w := codec.NewWriter(96 + 65*len(tx.Signatures))
	w.PutRaw(digest[:])
	w.PutUvarint(uint64(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		w.PutBytes(sig)
	}
	return TransactionID(codec.TxDigest(w.Bytes()))
}

// Sign appends a signature by key over the transaction's signing digest.
func (tx *Transaction) Sign(key *codec.PrivateKey) {
	digest := tx.SigningDigest()
	tx.Signatures = append(tx.Signatures, key.Sign(digest))
}

// EncodeCanonical implements codec.Encoder, including signatures, for
// persistence inside a Block record.
func (tx *Transaction) EncodeCanonical(w *codec.Writer) {
	w.PutInt64(tx.Expiration)
	w.PutUvarint(uint64(len(tx.Operations)))
	for i := range tx.Operations {
		tx.Operations[i].EncodeCanonical(w)
	}
	w.PutUvarint(uint64(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		w.PutBytes(sig)
	}
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (tx *Transaction) DecodeCanonical(r *codec.Reader) error {
	var err error
	if tx.Expiration, err = r.Int64(); err != nil {
		return err
	}
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	tx.Operations = make([]Operation, n)
	for i := range tx.Operations {
		if err := tx.Operations[i].DecodeCanonical(r); err != nil {
			return err
		}
	}
	m, err := r.Uvarint()
	if err != nil {
		return err
	}
	tx.Signatures = make([][]byte, m)
	for i := range tx.Signatures {
		if tx.Signatures[i], err = r.Bytes(); err != nil {
			return err
		}
	}
	return nil
}

// RecoverSigners recovers the public key behind every signature, in the
// order they were added. A malformed signature aborts the whole recovery,
// since a transaction with any unrecoverable signature cannot be evaluated.
func (tx *Transaction) RecoverSigners() ([]*codec.PublicKey, error) {
	digest := tx.SigningDigest()
	out := make([]*codec.PublicKey, 0, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		pub, err := codec.Recover(digest, sig)
		if err != nil {
			return nil, err
		}
		out = append(out, pub)
	}
	return out, nil
}
