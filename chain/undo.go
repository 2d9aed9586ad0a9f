package chain

// UndoEntry captures the pre-images of every record one block's applied
// overlay overwrote, so Applicator.RewindTo (package blockapp) can restore
// a ChainState to how it looked immediately before that block committed.
// It is built by pending.State.Snapshot right before Commit, while the
// overlay still knows both the old (parent) and new (overlay) value of
// everything it touched.
//
// Restore only ever rewrites existing records back to their prior values
// or deletes records this block newly created for balances/orders/
// collateral, which ChainState already exposes delete operations for.
// Accounts and assets have no delete operation in ChainState (ids, once
// allocated, are never reclaimed), so an account or asset this block
// registered for the first time is left in place after a rewind past it —
// a known, documented limitation rather than an oversight.
type UndoEntry struct {
	BlockNumber int64
	BlockID     BlockID

	Accounts map[AccountID]*Account
	Assets   map[AssetID]*Asset

	Balances    map[BalanceUndoKey]*Balance // nil value = balance did not exist before this block
	Orders      map[OrderUndoKey]*OrderRecord
	Collateral  map[CollateralUndoKey]*CollateralRecord
	MarketStatus map[MarketUndoKey]*MarketStatus

	HadHeadNumber   bool
	PriorHeadNumber int64
}

// BalanceUndoKey identifies one (owner, asset) balance.
type BalanceUndoKey struct {
	Owner Address
	Asset AssetID
}

// OrderUndoKey identifies one resting order.
type OrderUndoKey struct {
	Quote, Base AssetID
	Kind        OrderKind
	Price       Price
	Owner       Address
}

// CollateralUndoKey identifies one collateral position.
type CollateralUndoKey struct {
	Quote, Base AssetID
	Owner       Address
}

// MarketUndoKey identifies one (quote, base) market's status record.
type MarketUndoKey struct{ Quote, Base AssetID }

// NewUndoEntry returns an empty entry for the given block, ready for its
// caller to fill in pre-images before the block's overlay commits.
func NewUndoEntry(blockNumber int64, blockID BlockID) *UndoEntry {
	return &UndoEntry{
		BlockNumber:  blockNumber,
		BlockID:      blockID,
		Accounts:     make(map[AccountID]*Account),
		Assets:       make(map[AssetID]*Asset),
		Balances:     make(map[BalanceUndoKey]*Balance),
		Orders:       make(map[OrderUndoKey]*OrderRecord),
		Collateral:   make(map[CollateralUndoKey]*CollateralRecord),
		MarketStatus: make(map[MarketUndoKey]*MarketStatus),
	}
}

// Restore writes every captured pre-image back into dst, undoing this
// entry's block's effect on the record families ChainState can delete
// through (balances, orders, collateral). See the type doc for the
// account/asset limitation.
func (u *UndoEntry) Restore(dst ChainState) error {
	for id, a := range u.Accounts {
		if a == nil {
			continue
		}
		_ = id
		if err := dst.SetAccount(a); err != nil {
			return err
		}
	}
	for id, a := range u.Assets {
		if a == nil {
			continue
		}
		_ = id
		if err := dst.SetAsset(a); err != nil {
			return err
		}
	}
	for k, b := range u.Balances {
		if b == nil {
			if err := dst.DeleteBalance(k.Owner, k.Asset); err != nil {
				return err
			}
			continue
		}
		if err := dst.SetBalance(b); err != nil {
			return err
		}
	}
	for k, o := range u.Orders {
		if o == nil {
			if err := dst.DeleteOrder(k.Quote, k.Base, k.Kind, k.Price, k.Owner); err != nil {
				return err
			}
			continue
		}
		if err := dst.SetOrder(o); err != nil {
			return err
		}
	}
	for k, c := range u.Collateral {
		if c == nil {
			if err := dst.DeleteCollateral(k.Quote, k.Base, k.Owner); err != nil {
				return err
			}
			continue
		}
		if err := dst.SetCollateral(c); err != nil {
			return err
		}
	}
	for _, m := range u.MarketStatus {
		if m == nil {
			continue
		}
		if err := dst.SetMarketStatus(m); err != nil {
			return err
		}
	}
	if u.HadHeadNumber {
		if err := dst.SetHeadNumber(u.PriorHeadNumber); err != nil {
			return err
		}
	}
	return nil
}
