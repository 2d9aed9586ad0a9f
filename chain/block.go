package chain

import (
	"fmt"

	"github.com/tolelom/delegatechain/codec"
)

// BlockHeader carries everything needed to validate a block before
// replaying its transactions: linkage to the previous block, the slot's
// assigned delegate, the signed digest commitment of its transactions, and
// the delegate secret-reveal commit-reveal pair.
type BlockHeader struct {
	PreviousID        BlockID
	BlockNumber       int64
	Timestamp         int64 // unix seconds
	Delegate          AccountID
	TransactionDigest [20]byte
	PreviousSecret    [20]byte // reveals the secret committed in the prior block this delegate produced
	NextSecretHash    [20]byte // Hash160 (ripemd160 of sha256) commitment to the secret this delegate will reveal next time
	DelegateSignature []byte   // 65-byte recoverable signature over the rest of the header
}

// SigningDigest returns the digest the delegate signature is computed over
// (every header field except the signature itself).
func (h *BlockHeader) SigningDigest() [32]byte {
	w := codec.NewWriter(128)
	w.PutRaw(h.PreviousID[:])
	w.PutInt64(h.BlockNumber)
	w.PutInt64(h.Timestamp)
	w.PutUint32(uint32(h.Delegate))
	w.PutRaw(h.TransactionDigest[:])
	w.PutRaw(h.PreviousSecret[:])
	w.PutRaw(h.NextSecretHash[:])
	return codec.Hash256(w.Bytes())
}

// ID returns the block's identity hash.
func (h *BlockHeader) ID() BlockID {
	digest := h.SigningDigest()
	w := codec.NewWriter(97)
	w.PutRaw(digest[:])
	w.PutBytes(h.DelegateSignature)
	return BlockID(codec.TxDigest(w.Bytes()))
}

// EncodeCanonical implements codec.Encoder, including the signature, for
// persistence (SigningDigest omits the signature; ID covers it).
func (h *BlockHeader) EncodeCanonical(w *codec.Writer) {
	w.PutRaw(h.PreviousID[:])
	w.PutInt64(h.BlockNumber)
	w.PutInt64(h.Timestamp)
	w.PutUint32(uint32(h.Delegate))
	w.PutRaw(h.TransactionDigest[:])
	w.PutRaw(h.PreviousSecret[:])
	w.PutRaw(h.NextSecretHash[:])
	w.PutBytes(h.DelegateSignature)
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (h *BlockHeader) DecodeCanonical(r *codec.Reader) error {
	prev, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(h.PreviousID[:], prev)
	if h.BlockNumber, err = r.Int64(); err != nil {
		return err
	}
	if h.Timestamp, err = r.Int64(); err != nil {
		return err
	}
	delegate, err := r.Uint32()
	if err != nil {
		return err
	}
	h.Delegate = AccountID(delegate)
	txDigest, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(h.TransactionDigest[:], txDigest)
	prevSecret, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(h.PreviousSecret[:], prevSecret)
	nextSecretHash, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(h.NextSecretHash[:], nextSecretHash)
	if h.DelegateSignature, err = r.Bytes(); err != nil {
		return err
	}
	return nil
}

// Block is a header plus its ordered transaction list.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// ComputeTransactionDigest hashes the ordered list of transaction ids,
// grounded on the teacher's ComputeTxRoot: the TxDigest of the ids
// concatenated in order, with no length prefix.
func ComputeTransactionDigest(txs []*Transaction) [20]byte {
	w := codec.NewWriter(64 * len(txs))
	for _, tx := range txs {
		id := tx.ID()
		w.PutRaw(id[:])
	}
	return codec.TxDigest(w.Bytes())
}

// Sign fills in the header's DelegateSignature using key, and returns the
// resulting block id.
func (b *Block) Sign(key *codec.PrivateKey) BlockID {
	b.Header.TransactionDigest = ComputeTransactionDigest(b.Transactions)
	digest := b.Header.SigningDigest()
	b.Header.DelegateSignature = key.Sign(digest)
	return b.Header.ID()
}

// VerifySignature recovers the signer from the header's signature and
// reports whether it matches expected.
func (b *Block) VerifySignature(expected *codec.PublicKey) error {
	digest := b.Header.SigningDigest()
	if !codec.Verify(expected, digest, b.Header.DelegateSignature) {
		return fmt.Errorf("chain: block %d signature does not match delegate key", b.Header.BlockNumber)
	}
	return nil
}

// VerifyIntegrity checks the transaction digest matches the transaction
// list actually carried by the block.
func (b *Block) VerifyIntegrity() error {
	want := ComputeTransactionDigest(b.Transactions)
	if want != b.Header.TransactionDigest {
		return fmt.Errorf("chain: block %d transaction digest mismatch", b.Header.BlockNumber)
	}
	return nil
}

// EncodeCanonical implements codec.Encoder.
func (b *Block) EncodeCanonical(w *codec.Writer) {
	b.Header.EncodeCanonical(w)
	w.PutUvarint(uint64(len(b.Transactions)))
	for _, tx := range b.Transactions {
		tx.EncodeCanonical(w)
	}
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (b *Block) DecodeCanonical(r *codec.Reader) error {
	if err := b.Header.DecodeCanonical(r); err != nil {
		return err
	}
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	b.Transactions = make([]*Transaction, n)
	for i := range b.Transactions {
		tx := &Transaction{}
		if err := tx.DecodeCanonical(r); err != nil {
			return err
		}
		b.Transactions[i] = tx
	}
	return nil
}

// SlotRecord records which delegate owned a given slot and the block it
// produced. BlockApplicator writes one for each applied block; missed
// slots get no record, and no missed-slot penalty is tracked.
type SlotRecord struct {
	SlotIndex int64
	Delegate  AccountID
	BlockID   *BlockID // nil if the slot was missed
	Timestamp int64
}

// EncodeCanonical implements codec.Encoder.
func (s *SlotRecord) EncodeCanonical(w *codec.Writer) {
	w.PutInt64(s.SlotIndex)
	w.PutUint32(uint32(s.Delegate))
	if s.BlockID != nil {
		w.PutUint8(1)
		w.PutRaw(s.BlockID[:])
	} else {
		w.PutUint8(0)
	}
	w.PutInt64(s.Timestamp)
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (s *SlotRecord) DecodeCanonical(r *codec.Reader) error {
	var err error
	if s.SlotIndex, err = r.Int64(); err != nil {
		return err
	}
	delegate, err := r.Uint32()
	if err != nil {
		return err
	}
	s.Delegate = AccountID(delegate)
	has, err := r.Uint8()
	if err != nil {
		return err
	}
	if has != 0 {
		b, err := r.Raw(20)
		if err != nil {
			return err
		}
		var id BlockID
		copy(id[:], b)
		s.BlockID = &id
	}
	if s.Timestamp, err = r.Int64(); err != nil {
		return err
	}
	return nil
}

// FeedRecord is one delegate's published price feed for an asset.
type FeedRecord struct {
	Delegate  AccountID
	AssetID   AssetID
	Price     Price
	Timestamp int64
}

// EncodeCanonical implements codec.Encoder.
func (f *FeedRecord) EncodeCanonical(w *codec.Writer) {
	w.PutUint32(uint32(f.Delegate))
	w.PutUint32(uint32(f.AssetID))
	f.Price.EncodeCanonical(w)
	w.PutInt64(f.Timestamp)
}

// DecodeCanonical implements the codecDecoder contract used by storage.StateDB.
func (f *FeedRecord) DecodeCanonical(r *codec.Reader) error {
	delegate, err := r.Uint32()
	if err != nil {
		return err
	}
	f.Delegate = AccountID(delegate)
	assetID, err := r.Uint32()
	if err != nil {
		return err
	}
	f.AssetID = AssetID(assetID)
	if err := f.Price.DecodeCanonical(r); err != nil {
		return err
	}
	if f.Timestamp, err = r.Int64(); err != nil {
		return err
	}
	return nil
}
