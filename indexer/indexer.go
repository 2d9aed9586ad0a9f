// Package indexer maintains secondary indexes over committed blocks that
// query.API needs but no chain.ChainState getter can answer directly:
// which block a transaction landed in, and the last height at which each
// delegate was credited block pay.
package indexer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/events"
	"github.com/tolelom/delegatechain/storage"
)

const (
	prefixTxBlock      = "idx:tx:block:"
	prefixDelegateRank = "idx:delegate:"
)

// Indexer subscribes to chain events and updates secondary lookup tables
// in db, the same subscribe-and-write-list pattern the teacher's owner-
// asset index used, rebased onto transaction and delegate lookups.
type Indexer struct {
	db      storage.DB
	emitter *events.Emitter
	log     zerolog.Logger
}

// New creates an Indexer backed by db and subscribes to relevant events.
func New(db storage.DB, emitter *events.Emitter, log zerolog.Logger) *Indexer {
	idx := &Indexer{db: db, emitter: emitter, log: log.With().Str("component", "indexer").Logger()}
	emitter.Subscribe(events.EventTxApplied, idx.onTxApplied)
	emitter.Subscribe(events.EventDelegatePay, idx.onDelegatePay)
	return idx
}

// BlockForTx returns the block number tx was included in, if indexed.
func (idx *Indexer) BlockForTx(id chain.TransactionID) (int64, bool, error) {
	data, err := idx.db.Get([]byte(prefixTxBlock + id.String()))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("indexer: corrupt tx-block index entry for %s", id)
	}
	return int64(binary.BigEndian.Uint64(data)), true, nil
}

// LastPaidHeight returns the last block height at which delegateID was
// credited its block reward (recorded from EventDelegatePay, which
// blockapp emits on that credit), used by query.API.DelegateStatus to surface
// recent activity without scanning every block.
func (idx *Indexer) LastPaidHeight(delegateID chain.AccountID) (int64, bool, error) {
	data, err := idx.db.Get([]byte(fmt.Sprintf("%s%d", prefixDelegateRank, delegateID)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if len(data) != 8 {
		return 0, false, fmt.Errorf("indexer: corrupt delegate-pay index entry for %d", delegateID)
	}
	return int64(binary.BigEndian.Uint64(data)), true, nil
}

func (idx *Indexer) onTxApplied(ev events.Event) {
	if ev.TxID == "" {
		return
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ev.BlockHeight))
	if err := idx.db.Set([]byte(prefixTxBlock+ev.TxID), buf[:]); err != nil {
		idx.log.Error().Err(err).Str("tx_id", ev.TxID).Msg("tx-block index write failed")
	}
}

func (idx *Indexer) onDelegatePay(ev events.Event) {
	delegate, ok := ev.Data["delegate"]
	if !ok {
		return
	}
	id, ok := delegate.(chain.AccountID)
	if !ok {
		return
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ev.BlockHeight))
	if err := idx.db.Set([]byte(fmt.Sprintf("%s%d", prefixDelegateRank, id)), buf[:]); err != nil {
		idx.log.Error().Err(err).Int64("delegate", int64(id)).Msg("delegate-pay index write failed")
	}
}
