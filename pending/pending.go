// Package pending implements the copy-on-write overlay state BlockApplicator
// and TxEvaluator write through, generalizing the teacher's flat
// StateDB.Snapshot/RevertToSnapshot stack into true parent/child nesting:
// one State per in-progress transaction, nested inside one State per
// in-progress block, each independently committed or discarded without
// touching the underlying store until Commit.
package pending

import (
	"errors"
	"sort"

	"github.com/tolelom/delegatechain/chain"
)

// Parent is satisfied by either a durable chain.ChainState or another
// in-progress *State, so overlays nest to arbitrary depth.
type Parent interface {
	chain.ChainState
}

var errDiscarded = errors.New("pending: state already committed or discarded")

type balanceKey struct {
	owner chain.Address
	asset chain.AssetID
}

type orderKey struct {
	quote, base chain.AssetID
	kind        chain.OrderKind
	priceHi     uint64
	priceLo     uint64
	owner       chain.Address
}

type collateralKey struct {
	quote, base chain.AssetID
	owner       chain.Address
}

type marketKey struct{ quote, base chain.AssetID }

type feedKey struct {
	delegate chain.AccountID
	asset    chain.AssetID
}

// State is a write-buffered overlay over a Parent. Reads check the local
// write set first and fall through to the parent; writes only ever touch
// the local write set until Commit merges them upward.
type State struct {
	parent Parent

	accounts       map[chain.AccountID]*chain.Account
	accountsByName map[string]chain.AccountID
	assets         map[chain.AssetID]*chain.Asset
	assetsBySymbol map[string]chain.AssetID

	balances    map[balanceKey]*chain.Balance
	balancesDel map[balanceKey]bool

	orders    map[orderKey]*chain.OrderRecord
	ordersDel map[orderKey]bool

	collateral    map[collateralKey]*chain.CollateralRecord
	collateralDel map[collateralKey]bool

	marketStatus  map[marketKey]*chain.MarketStatus
	marketHistory []*chain.MarketHistoryRecord

	blocksByNumber map[int64]*chain.Block
	blocksByID     map[chain.BlockID]*chain.Block
	headNumber     *int64

	slots map[int64]*chain.SlotRecord
	feeds map[feedKey]*chain.FeedRecord

	txSeen map[chain.TransactionID]bool

	committed bool
	discarded bool
}

// New opens a fresh overlay on top of parent.
func New(parent Parent) *State {
	return &State{
		parent:         parent,
		accounts:       make(map[chain.AccountID]*chain.Account),
		accountsByName: make(map[string]chain.AccountID),
		assets:         make(map[chain.AssetID]*chain.Asset),
		assetsBySymbol: make(map[string]chain.AssetID),
		balances:       make(map[balanceKey]*chain.Balance),
		balancesDel:    make(map[balanceKey]bool),
		orders:         make(map[orderKey]*chain.OrderRecord),
		ordersDel:      make(map[orderKey]bool),
		collateral:     make(map[collateralKey]*chain.CollateralRecord),
		collateralDel:  make(map[collateralKey]bool),
		marketStatus:   make(map[marketKey]*chain.MarketStatus),
		blocksByNumber: make(map[int64]*chain.Block),
		blocksByID:     make(map[chain.BlockID]*chain.Block),
		slots:          make(map[int64]*chain.SlotRecord),
		feeds:          make(map[feedKey]*chain.FeedRecord),
		txSeen:         make(map[chain.TransactionID]bool),
	}
}

func orderKeyOf(quote, base chain.AssetID, kind chain.OrderKind, price chain.Price, owner chain.Address) orderKey {
	return orderKey{quote, base, kind, price.RatioHi, price.RatioLo, owner}
}

// --- accounts ---

func (s *State) GetAccount(id chain.AccountID) (*chain.Account, error) {
	if a, ok := s.accounts[id]; ok {
		return a, nil
	}
	return s.parent.GetAccount(id)
}

func (s *State) GetAccountByName(name string) (*chain.Account, error) {
	if id, ok := s.accountsByName[name]; ok {
		return s.GetAccount(id)
	}
	return s.parent.GetAccountByName(name)
}

func (s *State) SetAccount(a *chain.Account) error {
	cp := *a
	s.accounts[a.ID] = &cp
	s.accountsByName[a.Name] = a.ID
	return nil
}

// --- assets ---

func (s *State) GetAsset(id chain.AssetID) (*chain.Asset, error) {
	if a, ok := s.assets[id]; ok {
		return a, nil
	}
	return s.parent.GetAsset(id)
}

func (s *State) GetAssetBySymbol(symbol string) (*chain.Asset, error) {
	if id, ok := s.assetsBySymbol[symbol]; ok {
		return s.GetAsset(id)
	}
	return s.parent.GetAssetBySymbol(symbol)
}

func (s *State) SetAsset(a *chain.Asset) error {
	cp := *a
	s.assets[a.ID] = &cp
	s.assetsBySymbol[a.Symbol] = a.ID
	return nil
}

// --- balances ---

func (s *State) GetBalance(owner chain.Address, asset chain.AssetID) (*chain.Balance, error) {
	k := balanceKey{owner, asset}
	if s.balancesDel[k] {
		return nil, chain.ErrNotFound
	}
	if b, ok := s.balances[k]; ok {
		return b, nil
	}
	return s.parent.GetBalance(owner, asset)
}

func (s *State) SetBalance(b *chain.Balance) error {
	k := balanceKey{b.Owner, b.AssetID}
	cp := *b
	s.balances[k] = &cp
	delete(s.balancesDel, k)
	return nil
}

func (s *State) DeleteBalance(owner chain.Address, asset chain.AssetID) error {
	k := balanceKey{owner, asset}
	delete(s.balances, k)
	s.balancesDel[k] = true
	return nil
}

// --- orders ---

func (s *State) GetOrder(quote, base chain.AssetID, kind chain.OrderKind, price chain.Price, owner chain.Address) (*chain.OrderRecord, error) {
	k := orderKeyOf(quote, base, kind, price, owner)
	if s.ordersDel[k] {
		return nil, chain.ErrNotFound
	}
	if o, ok := s.orders[k]; ok {
		return o, nil
	}
	return s.parent.GetOrder(quote, base, kind, price, owner)
}

func (s *State) SetOrder(o *chain.OrderRecord) error {
	k := orderKeyOf(o.Quote, o.Base, o.Kind, o.Price, o.Owner)
	cp := *o
	s.orders[k] = &cp
	delete(s.ordersDel, k)
	return nil
}

func (s *State) DeleteOrder(quote, base chain.AssetID, kind chain.OrderKind, price chain.Price, owner chain.Address) error {
	k := orderKeyOf(quote, base, kind, price, owner)
	delete(s.orders, k)
	s.ordersDel[k] = true
	return nil
}

// IterateOrders merges the parent's committed order book with this overlay's
// buffered writes/deletes into one price-ordered slice. This trades the
// parent store's lazy cursor for a full materialization of the book per
// overlay level, acceptable since BlockApplicator only nests a handful of
// overlays deep at once (one per in-flight transaction).
func (s *State) IterateOrders(quote, base chain.AssetID, kind chain.OrderKind, reverse bool) chain.OrderIterator {
	seen := make(map[orderKey]bool)
	var records []*chain.OrderRecord

	for k, o := range s.orders {
		if k.quote == quote && k.base == base && k.kind == kind {
			records = append(records, o)
			seen[k] = true
		}
	}

	parentIter := s.parent.IterateOrders(quote, base, kind, false)
	for parentIter.Next() {
		rec := parentIter.Record()
		k := orderKeyOf(rec.Quote, rec.Base, rec.Kind, rec.Price, rec.Owner)
		if seen[k] || s.ordersDel[k] {
			continue
		}
		records = append(records, rec)
	}
	parentIter.Release()

	sort.Slice(records, func(i, j int) bool {
		if records[i].Price.Equal(records[j].Price) {
			return records[i].Owner.String() < records[j].Owner.String()
		}
		return records[i].Price.Less(records[j].Price)
	})
	if reverse {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	return &sliceOrderIterator{records: records, index: -1}
}

type sliceOrderIterator struct {
	records []*chain.OrderRecord
	index   int
}

func (it *sliceOrderIterator) Next() bool {
	it.index++
	return it.index < len(it.records)
}

func (it *sliceOrderIterator) Record() *chain.OrderRecord { return it.records[it.index] }
func (it *sliceOrderIterator) Release()                   {}

// --- collateral ---

func (s *State) GetCollateral(quote, base chain.AssetID, owner chain.Address) (*chain.CollateralRecord, error) {
	k := collateralKey{quote, base, owner}
	if s.collateralDel[k] {
		return nil, chain.ErrNotFound
	}
	if c, ok := s.collateral[k]; ok {
		return c, nil
	}
	return s.parent.GetCollateral(quote, base, owner)
}

func (s *State) SetCollateral(c *chain.CollateralRecord) error {
	k := collateralKey{c.Quote, c.Base, c.Owner}
	cp := *c
	s.collateral[k] = &cp
	delete(s.collateralDel, k)
	return nil
}

func (s *State) DeleteCollateral(quote, base chain.AssetID, owner chain.Address) error {
	k := collateralKey{quote, base, owner}
	delete(s.collateral, k)
	s.collateralDel[k] = true
	return nil
}

func (s *State) IterateCollateral(quote, base chain.AssetID, reverse bool) chain.CollateralIterator {
	seen := make(map[collateralKey]bool)
	var records []*chain.CollateralRecord

	for k, c := range s.collateral {
		if k.quote == quote && k.base == base {
			records = append(records, c)
			seen[k] = true
		}
	}

	parentIter := s.parent.IterateCollateral(quote, base, false)
	for parentIter.Next() {
		rec := parentIter.Record()
		k := collateralKey{rec.Quote, rec.Base, rec.Owner}
		if seen[k] || s.collateralDel[k] {
			continue
		}
		records = append(records, rec)
	}
	parentIter.Release()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CallPrice.Equal(records[j].CallPrice) {
			return records[i].Owner.String() < records[j].Owner.String()
		}
		return records[i].CallPrice.Less(records[j].CallPrice)
	})
	if reverse {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	return &sliceCollateralIterator{records: records, index: -1}
}

type sliceCollateralIterator struct {
	records []*chain.CollateralRecord
	index   int
}

func (it *sliceCollateralIterator) Next() bool {
	it.index++
	return it.index < len(it.records)
}

func (it *sliceCollateralIterator) Record() *chain.CollateralRecord { return it.records[it.index] }
func (it *sliceCollateralIterator) Release()                       {}

// --- market status / history ---

func (s *State) GetMarketStatus(quote, base chain.AssetID) (*chain.MarketStatus, error) {
	k := marketKey{quote, base}
	if m, ok := s.marketStatus[k]; ok {
		return m, nil
	}
	return s.parent.GetMarketStatus(quote, base)
}

func (s *State) SetMarketStatus(m *chain.MarketStatus) error {
	cp := *m
	s.marketStatus[marketKey{m.Quote, m.Base}] = &cp
	return nil
}

func (s *State) AppendMarketHistory(h *chain.MarketHistoryRecord) error {
	s.marketHistory = append(s.marketHistory, h)
	return nil
}

// --- blocks ---

func (s *State) GetBlockByNumber(n int64) (*chain.Block, error) {
	if b, ok := s.blocksByNumber[n]; ok {
		return b, nil
	}
	return s.parent.GetBlockByNumber(n)
}

func (s *State) GetBlockByID(id chain.BlockID) (*chain.Block, error) {
	if b, ok := s.blocksByID[id]; ok {
		return b, nil
	}
	return s.parent.GetBlockByID(id)
}

func (s *State) SetBlock(b *chain.Block) error {
	s.blocksByNumber[b.Header.BlockNumber] = b
	s.blocksByID[b.Header.ID()] = b
	return nil
}

func (s *State) HeadNumber() (int64, error) {
	if s.headNumber != nil {
		return *s.headNumber, nil
	}
	return s.parent.HeadNumber()
}

func (s *State) SetHeadNumber(n int64) error {
	s.headNumber = &n
	return nil
}

// --- slots / feeds ---

func (s *State) GetSlot(index int64) (*chain.SlotRecord, error) {
	if sl, ok := s.slots[index]; ok {
		return sl, nil
	}
	return s.parent.GetSlot(index)
}

func (s *State) SetSlot(sl *chain.SlotRecord) error {
	s.slots[sl.SlotIndex] = sl
	return nil
}

func (s *State) GetFeed(delegate chain.AccountID, asset chain.AssetID) (*chain.FeedRecord, error) {
	k := feedKey{delegate, asset}
	if f, ok := s.feeds[k]; ok {
		return f, nil
	}
	return s.parent.GetFeed(delegate, asset)
}

func (s *State) SetFeed(f *chain.FeedRecord) error {
	s.feeds[feedKey{f.Delegate, f.AssetID}] = f
	return nil
}

func (s *State) IterateFeeds(asset chain.AssetID) []*chain.FeedRecord {
	seen := make(map[feedKey]bool)
	var out []*chain.FeedRecord
	for k, f := range s.feeds {
		if k.asset == asset {
			out = append(out, f)
			seen[k] = true
		}
	}
	for _, f := range s.parent.IterateFeeds(asset) {
		k := feedKey{f.Delegate, f.AssetID}
		if !seen[k] {
			out = append(out, f)
		}
	}
	return out
}

func (s *State) ActiveDelegates(n int) ([]*chain.Account, error) {
	return s.parent.ActiveDelegates(n)
}

// --- transaction uniqueness ---

func (s *State) HasSeenTransaction(id chain.TransactionID) (bool, error) {
	if s.txSeen[id] {
		return true, nil
	}
	return s.parent.HasSeenTransaction(id)
}

func (s *State) MarkTransactionSeen(id chain.TransactionID) error {
	s.txSeen[id] = true
	return nil
}

// NextAccountID and NextAssetID pass straight through: id allocation is not
// buffered per overlay, since two sibling transactions in the same block
// must never be handed the same id even if neither has committed yet.
func (s *State) NextAccountID() (chain.AccountID, error) { return s.parent.NextAccountID() }
func (s *State) NextAssetID() (chain.AssetID, error)     { return s.parent.NextAssetID() }

// Commit merges this overlay's write set into its parent: a recursive merge
// if the parent is another pending State, or a durable write if the parent
// is a storage-backed ChainState. Either way this State must not be used
// again afterward.
func (s *State) Commit() error {
	if s.discarded || s.committed {
		return errDiscarded
	}
	s.committed = true

	for _, a := range s.accounts {
		if err := s.parent.SetAccount(a); err != nil {
			return err
		}
	}
	for _, a := range s.assets {
		if err := s.parent.SetAsset(a); err != nil {
			return err
		}
	}
	for _, b := range s.balances {
		if err := s.parent.SetBalance(b); err != nil {
			return err
		}
	}
	for k := range s.balancesDel {
		if err := s.parent.DeleteBalance(k.owner, k.asset); err != nil {
			return err
		}
	}
	for _, o := range s.orders {
		if err := s.parent.SetOrder(o); err != nil {
			return err
		}
	}
	for k := range s.ordersDel {
		var price chain.Price
		price.RatioHi, price.RatioLo = k.priceHi, k.priceLo
		if err := s.parent.DeleteOrder(k.quote, k.base, k.kind, price, k.owner); err != nil {
			return err
		}
	}
	for _, c := range s.collateral {
		if err := s.parent.SetCollateral(c); err != nil {
			return err
		}
	}
	for k := range s.collateralDel {
		if err := s.parent.DeleteCollateral(k.quote, k.base, k.owner); err != nil {
			return err
		}
	}
	for _, m := range s.marketStatus {
		if err := s.parent.SetMarketStatus(m); err != nil {
			return err
		}
	}
	for _, h := range s.marketHistory {
		if err := s.parent.AppendMarketHistory(h); err != nil {
			return err
		}
	}
	for _, b := range s.blocksByNumber {
		if err := s.parent.SetBlock(b); err != nil {
			return err
		}
	}
	if s.headNumber != nil {
		if err := s.parent.SetHeadNumber(*s.headNumber); err != nil {
			return err
		}
	}
	for _, sl := range s.slots {
		if err := s.parent.SetSlot(sl); err != nil {
			return err
		}
	}
	for _, f := range s.feeds {
		if err := s.parent.SetFeed(f); err != nil {
			return err
		}
	}
	for id := range s.txSeen {
		if err := s.parent.MarkTransactionSeen(id); err != nil {
			return err
		}
	}
	return nil
}

// Discard drops every buffered write; the parent is left untouched.
func (s *State) Discard() {
	s.discarded = true
}

// Snapshot builds a chain.UndoEntry capturing the pre-image (as seen
// through s.parent, i.e. before this overlay's writes land) of every
// record this overlay is about to commit, for blockapp.Applicator's
// fork-choice rewind. Call it before Commit — afterward the parent no
// longer holds the old values.
func (s *State) Snapshot(blockNumber int64, blockID chain.BlockID) *chain.UndoEntry {
	u := chain.NewUndoEntry(blockNumber, blockID)

	for id := range s.accounts {
		if a, err := s.parent.GetAccount(id); err == nil {
			u.Accounts[id] = a
		}
	}
	for id := range s.assets {
		if a, err := s.parent.GetAsset(id); err == nil {
			u.Assets[id] = a
		}
	}
	for k := range s.balances {
		key := chain.BalanceUndoKey{Owner: k.owner, Asset: k.asset}
		if b, err := s.parent.GetBalance(k.owner, k.asset); err == nil && b.Amount != 0 {
			u.Balances[key] = b
		} else {
			u.Balances[key] = nil
		}
	}
	for k := range s.balancesDel {
		key := chain.BalanceUndoKey{Owner: k.owner, Asset: k.asset}
		if b, err := s.parent.GetBalance(k.owner, k.asset); err == nil && b.Amount != 0 {
			u.Balances[key] = b
		}
	}
	for k := range s.orders {
		key := orderUndoKeyOf(k)
		var price chain.Price
		price.RatioHi, price.RatioLo = k.priceHi, k.priceLo
		if o, err := s.parent.GetOrder(k.quote, k.base, k.kind, price, k.owner); err == nil {
			u.Orders[key] = o
		} else {
			u.Orders[key] = nil
		}
	}
	for k := range s.ordersDel {
		key := orderUndoKeyOf(k)
		var price chain.Price
		price.RatioHi, price.RatioLo = k.priceHi, k.priceLo
		if o, err := s.parent.GetOrder(k.quote, k.base, k.kind, price, k.owner); err == nil {
			u.Orders[key] = o
		}
	}
	for k := range s.collateral {
		key := chain.CollateralUndoKey{Quote: k.quote, Base: k.base, Owner: k.owner}
		if c, err := s.parent.GetCollateral(k.quote, k.base, k.owner); err == nil {
			u.Collateral[key] = c
		} else {
			u.Collateral[key] = nil
		}
	}
	for k := range s.collateralDel {
		key := chain.CollateralUndoKey{Quote: k.quote, Base: k.base, Owner: k.owner}
		if c, err := s.parent.GetCollateral(k.quote, k.base, k.owner); err == nil {
			u.Collateral[key] = c
		}
	}
	for k := range s.marketStatus {
		key := chain.MarketUndoKey{Quote: k.quote, Base: k.base}
		if m, err := s.parent.GetMarketStatus(k.quote, k.base); err == nil {
			u.MarketStatus[key] = m
		}
	}
	if s.headNumber != nil {
		if n, err := s.parent.HeadNumber(); err == nil {
			u.HadHeadNumber = true
			u.PriorHeadNumber = n
		}
	}
	return u
}

func orderUndoKeyOf(k orderKey) chain.OrderUndoKey {
	var price chain.Price
	price.RatioHi, price.RatioLo = k.priceHi, k.priceLo
	return chain.OrderUndoKey{Quote: k.quote, Base: k.base, Kind: k.kind, Price: price, Owner: k.owner}
}
