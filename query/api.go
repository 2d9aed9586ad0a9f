// Package query implements the read-only projections spec.md §4.9 names:
// block and transaction lookup, balances, accounts, order-book slices,
// market history, pending transactions, and delegate status. Every read
// runs against the committed head's chain.ChainState directly, never a
// pending.State overlay, so a caller can never observe a partially applied
// block, matching spec.md §5's concurrency model.
package query

import (
	"context"
	"errors"
	"fmt"

	"github.com/tolelom/delegatechain/chain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("query: not found")

// HistoryReader answers ranged market-history reads, a capability
// storage.StateDB provides beyond the plain chain.ChainState interface
// since no core apply-path code ever needs to range-scan history.
type HistoryReader interface {
	MarketHistoryRange(quote, base chain.AssetID, gran chain.HistoryGranularity, from, to int64) ([]*chain.MarketHistoryRecord, error)
}

// TxIndex resolves a transaction id to the block it was included in.
type TxIndex interface {
	BlockForTx(id chain.TransactionID) (int64, bool, error)
	LastPaidHeight(delegateID chain.AccountID) (int64, bool, error)
}

// API composes a read-only snapshot of chain state with the indexer and
// mempool, the single object rpc.Handler calls into for every read
// method, grounded on the teacher's Handler holding bc/state/indexer
// directly rather than routing reads through the write path.
type API struct {
	state   chain.ChainState
	history HistoryReader
	index   TxIndex
	mempool *chain.Mempool
}

// New wires an API over the given committed-head state, history reader,
// transaction index, and mempool.
func New(state chain.ChainState, history HistoryReader, index TxIndex, mempool *chain.Mempool) *API {
	return &API{state: state, history: history, index: index, mempool: mempool}
}

// BlockByNumber returns the block at height n.
func (a *API) BlockByNumber(n int64) (*chain.Block, error) {
	b, err := a.state.GetBlockByNumber(n)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return b, nil
}

// BlockByID returns the block with the given id.
func (a *API) BlockByID(id chain.BlockID) (*chain.Block, error) {
	b, err := a.state.GetBlockByID(id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return b, nil
}

// HeadNumber returns the height of the last committed block.
func (a *API) HeadNumber() (int64, error) {
	return a.state.HeadNumber()
}

// Transaction locates a committed transaction by id, first checking the
// indexer's tx-to-block mapping, then the mempool for one not yet
// included in a block.
func (a *API) Transaction(id chain.TransactionID) (*chain.Transaction, int64, error) {
	if a.index != nil {
		if height, ok, err := a.index.BlockForTx(id); err != nil {
			return nil, 0, err
		} else if ok {
			block, err := a.state.GetBlockByNumber(height)
			if err != nil {
				return nil, 0, wrapNotFound(err)
			}
			for _, tx := range block.Transactions {
				if tx.ID() == id {
					return tx, height, nil
				}
			}
			return nil, 0, fmt.Errorf("query: indexed block %d does not contain tx %s", height, id)
		}
	}
	if tx, ok := a.mempool.Get(id); ok {
		return tx, 0, nil
	}
	return nil, 0, ErrNotFound
}

// Balance returns the balance record for (owner, asset).
func (a *API) Balance(owner chain.Address, asset chain.AssetID) (*chain.Balance, error) {
	b, err := a.state.GetBalance(owner, asset)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return b, nil
}

// AccountByID returns the account with the given id.
func (a *API) AccountByID(id chain.AccountID) (*chain.Account, error) {
	acc, err := a.state.GetAccount(id)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return acc, nil
}

// AccountByName returns the account registered under name.
func (a *API) AccountByName(name string) (*chain.Account, error) {
	acc, err := a.state.GetAccountByName(name)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return acc, nil
}

// OrderBookSlice returns up to limit resting orders of kind in (quote,
// base), best price first.
func (a *API) OrderBookSlice(quote, base chain.AssetID, kind chain.OrderKind, limit int) ([]*chain.OrderRecord, error) {
	it := a.state.IterateOrders(quote, base, kind, kind == chain.OrderBid)
	defer it.Release()
	var out []*chain.OrderRecord
	for len(out) < limit && it.Next() {
		out = append(out, it.Record())
	}
	return out, nil
}

// MarketHistory returns history buckets of gran for (quote, base) with
// BucketStart in [from, to]. ctx is checked once, before the range scan
// starts; the scan itself runs to completion and is not interrupted by a
// later cancellation.
func (a *API) MarketHistory(ctx context.Context, quote, base chain.AssetID, gran chain.HistoryGranularity, from, to int64) ([]*chain.MarketHistoryRecord, error) {
	if a.history == nil {
		return nil, errors.New("query: no history reader configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.history.MarketHistoryRange(quote, base, gran, from, to)
}

// PendingTransactions returns up to limit mempool transactions in the
// same fee-ordered draw the core uses to build a candidate block.
func (a *API) PendingTransactions(limit int) []*chain.Transaction {
	return a.mempool.Pending(limit)
}

// DelegateStatus reports a delegate account's production bookkeeping plus
// the last height its pay balance was credited, sourced from the indexer
// rather than a full chain scan.
type DelegateStatus struct {
	Account     *chain.Account
	LastPaidAt  int64
	HasBeenPaid bool
}

// DelegateStatus returns the production/pay status of delegateID.
func (a *API) DelegateStatus(delegateID chain.AccountID) (*DelegateStatus, error) {
	acc, err := a.state.GetAccount(delegateID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	if !acc.IsDelegate {
		return nil, fmt.Errorf("query: account %d is not a delegate", delegateID)
	}
	status := &DelegateStatus{Account: acc}
	if a.index != nil {
		height, ok, err := a.index.LastPaidHeight(delegateID)
		if err != nil {
			return nil, err
		}
		status.LastPaidAt, status.HasBeenPaid = height, ok
	}
	return status, nil
}

// ActiveDelegates returns the top n delegates by net votes, the roster
// consensus.Producer draws the current round's slot assignment from.
func (a *API) ActiveDelegates(n int) ([]*chain.Account, error) {
	return a.state.ActiveDelegates(n)
}

func wrapNotFound(err error) error {
	if errors.Is(err, chain.ErrNotFound) {
		return ErrNotFound
	}
	return err
}
