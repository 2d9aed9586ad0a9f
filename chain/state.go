package chain

// ChainState is the typed facade over the durable Store: every record
// family gets a typed getter/setter pair. PendingState (package pending)
// wraps a ChainState (or another PendingState) with a copy-on-write
// overlay; BlockApplicator only ever writes through a PendingState, never
// directly to a ChainState, so every mutation is committed or discarded as
// a unit.
type ChainState interface {
	GetAccount(id AccountID) (*Account, error)
	GetAccountByName(name string) (*Account, error)
	SetAccount(a *Account) error

	GetAsset(id AssetID) (*Asset, error)
	GetAssetBySymbol(symbol string) (*Asset, error)
	SetAsset(a *Asset) error

	GetBalance(owner Address, asset AssetID) (*Balance, error)
	SetBalance(b *Balance) error
	DeleteBalance(owner Address, asset AssetID) error

	GetOrder(quote, base AssetID, kind OrderKind, price Price, owner Address) (*OrderRecord, error)
	SetOrder(o *OrderRecord) error
	DeleteOrder(quote, base AssetID, kind OrderKind, price Price, owner Address) error
	IterateOrders(quote, base AssetID, kind OrderKind, reverse bool) OrderIterator

	GetCollateral(quote, base AssetID, owner Address) (*CollateralRecord, error)
	SetCollateral(c *CollateralRecord) error
	DeleteCollateral(quote, base AssetID, owner Address) error
	IterateCollateral(quote, base AssetID, reverse bool) CollateralIterator

	GetMarketStatus(quote, base AssetID) (*MarketStatus, error)
	SetMarketStatus(m *MarketStatus) error

	AppendMarketHistory(h *MarketHistoryRecord) error

	GetBlockByNumber(n int64) (*Block, error)
	GetBlockByID(id BlockID) (*Block, error)
	SetBlock(b *Block) error
	HeadNumber() (int64, error)
	SetHeadNumber(n int64) error

	GetSlot(index int64) (*SlotRecord, error)
	SetSlot(s *SlotRecord) error

	GetFeed(delegate AccountID, asset AssetID) (*FeedRecord, error)
	SetFeed(f *FeedRecord) error
	IterateFeeds(asset AssetID) []*FeedRecord

	ActiveDelegates(n int) ([]*Account, error)

	NextAccountID() (AccountID, error)
	NextAssetID() (AssetID, error)

	// HasSeenTransaction and MarkTransactionSeen back the duplicate-
	// transaction check of spec.md §4.4: a transaction id that has already
	// been applied in a committed block must be rejected on replay.
	HasSeenTransaction(id TransactionID) (bool, error)
	MarkTransactionSeen(id TransactionID) error
}

// OrderIterator walks OrderRecord values in price order.
type OrderIterator interface {
	Next() bool
	Record() *OrderRecord
	Release()
}

// CollateralIterator walks CollateralRecord values ordered by call price.
type CollateralIterator interface {
	Next() bool
	Record() *CollateralRecord
	Release()
}
