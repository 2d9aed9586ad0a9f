package chain

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tolelom/delegatechain/codec"
)

var (
	ErrMempoolFull       = errors.New("chain: mempool full")
	ErrDuplicateTx       = errors.New("chain: duplicate transaction")
	ErrTxExpired         = errors.New("chain: transaction expired or too far in the future")
	ErrNoSignatures      = errors.New("chain: transaction carries no signatures")
	ErrMaxTransactionTTL = errors.New("chain: transaction expiration exceeds max ttl")
)

// DefaultMaxPoolSize bounds the number of pending transactions kept in
// memory, matching the teacher's Mempool size cap.
const DefaultMaxPoolSize = 50_000

// MempoolEvaluator is the subset of txeval.Evaluator the mempool needs to
// re-check a transaction against a candidate head without importing the
// txeval package (which itself depends on chain), avoiding an import cycle.
type MempoolEvaluator interface {
	EvaluateReadOnly(head ChainState, tx *Transaction, now time.Time) error
}

// Mempool deduplicates pending transactions by id and drains them in
// fee-per-byte order (highest first), per spec.md §4.7. Re-evaluation
// against a new chain head is driven explicitly via Reevaluate rather than
// implicitly on every Add, mirroring the teacher's Mempool shape
// (Add/Get/Pending/Remove/Size) extended with head-change awareness.
type Mempool struct {
	mu           sync.Mutex
	txs          map[TransactionID]*Transaction
	maxSize      int
	maxTTL       int64
	feeRatePerKB int64
}

// NewMempool creates an empty Mempool.
func NewMempool(maxSize int, maxTTLSeconds int64) *Mempool {
	if maxSize <= 0 {
		maxSize = DefaultMaxPoolSize
	}
	return &Mempool{
		txs:     make(map[TransactionID]*Transaction),
		maxSize: maxSize,
		maxTTL:  maxTTLSeconds,
	}
}

// Add validates tx's basic shape (signature recoverability, expiration
// window, size cap) and inserts it if not already present.
func (m *Mempool) Add(tx *Transaction, now time.Time) error {
	if len(tx.Signatures) == 0 {
		return ErrNoSignatures
	}
	if _, err := tx.RecoverSigners(); err != nil {
		return err
	}
	if tx.Expiration < now.Unix() {
		return ErrTxExpired
	}
	if m.maxTTL > 0 && tx.Expiration > now.Unix()+m.maxTTL {
		return ErrMaxTransactionTTL
	}
	id := tx.ID()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.txs[id]; ok {
		return ErrDuplicateTx
	}
	if len(m.txs) >= m.maxSize {
		return ErrMempoolFull
	}
	m.txs[id] = tx
	return nil
}

// Get returns the transaction with the given id, if present.
func (m *Mempool) Get(id TransactionID) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	return tx, ok
}

// Pending returns up to n transactions ordered by fee-per-byte descending,
// the order BlockApplicator/Producer drains the pool in.
func (m *Mempool) Pending(n int) []*Transaction {
	m.mu.Lock()
	all := make([]*Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		all = append(all, tx)
	}
	m.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return feePerByte(all[i]) > feePerByte(all[j])
	})
	if n > 0 && len(all) > n {
		all = all[:n]
	}
	return all
}

// feePerByte approximates fee-per-byte using the encoded size of the
// transaction as a stand-in for an explicit fee field on Operation; actual
// fee accounting happens in txeval against the fee-rate configuration, so
// this ordering only needs to be a monotonic proxy for "cheaper to include
// per byte of block space."
func feePerByte(tx *Transaction) float64 {
	size := len(codec.Encode(tx))
	if size == 0 {
		return 0
	}
	return float64(len(tx.Operations)) / float64(size)
}

// Remove drops the given transaction ids from the pool, used once their
// containing block has been applied.
func (m *Mempool) Remove(ids []TransactionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.txs, id)
	}
}

// Size returns the number of pending transactions.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.txs)
}

// Reevaluate drops every pending transaction that now fails evaluation
// against head or has expired, called whenever the chain head changes.
func (m *Mempool) Reevaluate(head ChainState, evaluator MempoolEvaluator, now time.Time) {
	m.mu.Lock()
	all := make([]*Transaction, 0, len(m.txs))
	for _, tx := range m.txs {
		all = append(all, tx)
	}
	m.mu.Unlock()

	var stale []TransactionID
	for _, tx := range all {
		if tx.Expiration < now.Unix() {
			stale = append(stale, tx.ID())
			continue
		}
		if err := evaluator.EvaluateReadOnly(head, tx, now); err != nil {
			stale = append(stale, tx.ID())
		}
	}
	m.Remove(stale)
}
