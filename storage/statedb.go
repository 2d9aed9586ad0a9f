package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
)

// key-family prefixes, mirroring the teacher's StateDB.registerPrefix
// approach of one key prefix per record family within a single physical
// LevelDB directory.
const (
	prefixAccountByID   = "acc:id:"
	prefixAccountByName = "acc:name:"
	prefixAssetByID     = "ast:id:"
	prefixAssetBySymbol = "ast:sym:"
	prefixBalance       = "bal:"
	prefixOrder         = "ord:"
	prefixCollateral    = "col:"
	prefixMarketStatus  = "mst:"
	prefixMarketHistory = "mhist:"
	prefixBlockByNumber = "blk:n:"
	prefixBlockByID     = "blk:id:"
	prefixSlot          = "slot:"
	prefixFeed          = "feed:"
	prefixTxSeen        = "tx:seen:"
	keyHeadNumber       = "head:number"
	keyNextAccountID    = "seq:account"
	keyNextAssetID      = "seq:asset"
)

// StateDB implements chain.ChainState over a storage.DB, following the
// teacher's StateDB prefix-per-family layout.
type StateDB struct {
	db DB
}

// NewStateDB wraps db as a chain.ChainState.
func NewStateDB(db DB) *StateDB { return &StateDB{db: db} }

func (s *StateDB) get(key string, v codecDecoder) error {
	data, err := s.db.Get([]byte(key))
	if err != nil {
		return err
	}
	return v.DecodeCanonical(codec.NewReader(data))
}

func (s *StateDB) set(key string, v codec.Encoder) error {
	return s.db.Set([]byte(key), codec.Encode(v))
}

// codecDecoder is implemented by chain record types that decode in place.
type codecDecoder interface {
	DecodeCanonical(r *codec.Reader) error
}

// ---- accounts ----

func (s *StateDB) GetAccount(id chain.AccountID) (*chain.Account, error) {
	a := &chain.Account{}
	if err := s.get(fmt.Sprintf("%s%d", prefixAccountByID, id), a); err != nil {
		return nil, translateNotFound(err)
	}
	return a, nil
}

func (s *StateDB) GetAccountByName(name string) (*chain.Account, error) {
	data, err := s.db.Get([]byte(prefixAccountByName + name))
	if err != nil {
		return nil, translateNotFound(err)
	}
	id := binary.LittleEndian.Uint32(data)
	return s.GetAccount(chain.AccountID(id))
}

func (s *StateDB) SetAccount(a *chain.Account) error {
	if err := s.set(fmt.Sprintf("%s%d", prefixAccountByID, a.ID), a); err != nil {
		return err
	}
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], uint32(a.ID))
	return s.db.Set([]byte(prefixAccountByName+a.Name), idBuf[:])
}

// ---- assets ----

func (s *StateDB) GetAsset(id chain.AssetID) (*chain.Asset, error) {
	a := &chain.Asset{}
	if err := s.get(fmt.Sprintf("%s%d", prefixAssetByID, id), a); err != nil {
		return nil, translateNotFound(err)
	}
	return a, nil
}

func (s *StateDB) GetAssetBySymbol(symbol string) (*chain.Asset, error) {
	data, err := s.db.Get([]byte(prefixAssetBySymbol + symbol))
	if err != nil {
		return nil, translateNotFound(err)
	}
	id := binary.LittleEndian.Uint32(data)
	return s.GetAsset(chain.AssetID(id))
}

func (s *StateDB) SetAsset(a *chain.Asset) error {
	if err := s.set(fmt.Sprintf("%s%d", prefixAssetByID, a.ID), a); err != nil {
		return err
	}
	var idBuf [4]byte
	binary.LittleEndian.PutUint32(idBuf[:], uint32(a.ID))
	return s.db.Set([]byte(prefixAssetBySymbol+a.Symbol), idBuf[:])
}

// ---- balances ----

func balanceKey(owner chain.Address, asset chain.AssetID) string {
	return fmt.Sprintf("%s%x:%d", prefixBalance, owner[:], asset)
}

func (s *StateDB) GetBalance(owner chain.Address, asset chain.AssetID) (*chain.Balance, error) {
	b := &chain.Balance{}
	if err := s.get(balanceKey(owner, asset), b); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &chain.Balance{Owner: owner, AssetID: asset}, nil
		}
		return nil, err
	}
	return b, nil
}

func (s *StateDB) SetBalance(b *chain.Balance) error {
	return s.set(balanceKey(b.Owner, b.AssetID), b)
}

func (s *StateDB) DeleteBalance(owner chain.Address, asset chain.AssetID) error {
	return s.db.Delete([]byte(balanceKey(owner, asset)))
}

// ---- orders ----

// orderKey encodes price so that ascending byte order matches ascending
// price; bid descending order is achieved by iterating in reverse
// (Last/Prev) rather than by inverting the key encoding.
func orderKey(quote, base chain.AssetID, kind chain.OrderKind, price chain.Price, owner chain.Address) string {
	return fmt.Sprintf("%s%d:%d:%d:%016x%016x:%x", prefixOrder, quote, base, kind, price.RatioHi, price.RatioLo, owner[:])
}

func orderPrefix(quote, base chain.AssetID, kind chain.OrderKind) string {
	return fmt.Sprintf("%s%d:%d:%d:", prefixOrder, quote, base, kind)
}

func (s *StateDB) GetOrder(quote, base chain.AssetID, kind chain.OrderKind, price chain.Price, owner chain.Address) (*chain.OrderRecord, error) {
	o := &chain.OrderRecord{}
	if err := s.get(orderKey(quote, base, kind, price, owner), o); err != nil {
		return nil, translateNotFound(err)
	}
	return o, nil
}

func (s *StateDB) SetOrder(o *chain.OrderRecord) error {
	return s.set(orderKey(o.Quote, o.Base, o.Kind, o.Price, o.Owner), o)
}

func (s *StateDB) DeleteOrder(quote, base chain.AssetID, kind chain.OrderKind, price chain.Price, owner chain.Address) error {
	return s.db.Delete([]byte(orderKey(quote, base, kind, price, owner)))
}

func (s *StateDB) IterateOrders(quote, base chain.AssetID, kind chain.OrderKind, reverse bool) chain.OrderIterator {
	it := s.db.NewIterator([]byte(orderPrefix(quote, base, kind)))
	return &orderIter{it: it, reverse: reverse}
}

type orderIter struct {
	it      Iterator
	reverse bool
	started bool
}

func (o *orderIter) Next() bool {
	if !o.started {
		o.started = true
		if o.reverse {
			return o.it.Last()
		}
		return o.it.First()
	}
	if o.reverse {
		return o.it.Prev()
	}
	return o.it.Next()
}

func (o *orderIter) Record() *chain.OrderRecord {
	r := &chain.OrderRecord{}
	_ = r.DecodeCanonical(codec.NewReader(o.it.Value()))
	return r
}

func (o *orderIter) Release() { o.it.Release() }

// ---- collateral ----

func collateralKey(quote, base chain.AssetID, owner chain.Address) string {
	return fmt.Sprintf("%s%d:%d:%x", prefixCollateral, quote, base, owner[:])
}

func collateralPrefix(quote, base chain.AssetID) string {
	return fmt.Sprintf("%s%d:%d:", prefixCollateral, quote, base)
}

func (s *StateDB) GetCollateral(quote, base chain.AssetID, owner chain.Address) (*chain.CollateralRecord, error) {
	c := &chain.CollateralRecord{}
	if err := s.get(collateralKey(quote, base, owner), c); err != nil {
		return nil, translateNotFound(err)
	}
	return c, nil
}

func (s *StateDB) SetCollateral(c *chain.CollateralRecord) error {
	return s.set(collateralKey(c.Quote, c.Base, c.Owner), c)
}

func (s *StateDB) DeleteCollateral(quote, base chain.AssetID, owner chain.Address) error {
	return s.db.Delete([]byte(collateralKey(quote, base, owner)))
}

func (s *StateDB) IterateCollateral(quote, base chain.AssetID, reverse bool) chain.CollateralIterator {
	it := s.db.NewIterator([]byte(collateralPrefix(quote, base)))
	return &collateralIter{it: it, reverse: reverse}
}

type collateralIter struct {
	it      Iterator
	reverse bool
	started bool
}

func (c *collateralIter) Next() bool {
	if !c.started {
		c.started = true
		if c.reverse {
			return c.it.Last()
		}
		return c.it.First()
	}
	if c.reverse {
		return c.it.Prev()
	}
	return c.it.Next()
}

func (c *collateralIter) Record() *chain.CollateralRecord {
	r := &chain.CollateralRecord{}
	_ = r.DecodeCanonical(codec.NewReader(c.it.Value()))
	return r
}

func (c *collateralIter) Release() { c.it.Release() }

// ---- market status / history ----

func (s *StateDB) GetMarketStatus(quote, base chain.AssetID) (*chain.MarketStatus, error) {
	m := &chain.MarketStatus{}
	key := fmt.Sprintf("%s%d:%d", prefixMarketStatus, quote, base)
	if err := s.get(key, m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return &chain.MarketStatus{Quote: quote, Base: base}, nil
		}
		return nil, err
	}
	return m, nil
}

func (s *StateDB) SetMarketStatus(m *chain.MarketStatus) error {
	key := fmt.Sprintf("%s%d:%d", prefixMarketStatus, m.Quote, m.Base)
	return s.set(key, m)
}

func (s *StateDB) AppendMarketHistory(h *chain.MarketHistoryRecord) error {
	key := fmt.Sprintf("%s%d:%d:%d:%020d", prefixMarketHistory, h.Quote, h.Base, h.Granularity, h.BucketStart)
	return s.set(key, h)
}

// MarketHistoryRange returns every bucket of the given granularity for
// (quote, base) whose BucketStart falls in [from, to], in ascending order.
// Not part of chain.ChainState: it is a range query over a single record
// family, the kind of read query.API needs but the core apply path never
// does, so it is exposed directly on StateDB instead of widening the
// interface every ChainState implementation must satisfy.
func (s *StateDB) MarketHistoryRange(quote, base chain.AssetID, gran chain.HistoryGranularity, from, to int64) ([]*chain.MarketHistoryRecord, error) {
	prefix := []byte(fmt.Sprintf("%s%d:%d:%d:", prefixMarketHistory, quote, base, gran))
	it := s.db.NewIterator(prefix)
	defer it.Release()
	var records []*chain.MarketHistoryRecord
	for ok := it.First(); ok; ok = it.Next() {
		h := &chain.MarketHistoryRecord{}
		if err := h.DecodeCanonical(codec.NewReader(it.Value())); err != nil {
			return nil, err
		}
		if h.BucketStart < from || h.BucketStart > to {
			continue
		}
		records = append(records, h)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return records, nil
}

// ---- blocks ----

func (s *StateDB) GetBlockByNumber(n int64) (*chain.Block, error) {
	data, err := s.db.Get([]byte(fmt.Sprintf("%s%020d", prefixBlockByNumber, n)))
	if err != nil {
		return nil, translateNotFound(err)
	}
	var id chain.BlockID
	copy(id[:], data)
	return s.GetBlockByID(id)
}

func (s *StateDB) GetBlockByID(id chain.BlockID) (*chain.Block, error) {
	data, err := s.db.Get([]byte(fmt.Sprintf("%s%x", prefixBlockByID, id[:])))
	if err != nil {
		return nil, translateNotFound(err)
	}
	b := &chain.Block{}
	if err := b.DecodeCanonical(codec.NewReader(data)); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *StateDB) SetBlock(b *chain.Block) error {
	id := b.Header.ID()
	if err := s.db.Set([]byte(fmt.Sprintf("%s%x", prefixBlockByID, id[:])), codec.Encode(b)); err != nil {
		return err
	}
	return s.db.Set([]byte(fmt.Sprintf("%s%020d", prefixBlockByNumber, b.Header.BlockNumber)), id[:])
}

func (s *StateDB) HeadNumber() (int64, error) {
	data, err := s.db.Get([]byte(keyHeadNumber))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return -1, nil
		}
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

func (s *StateDB) SetHeadNumber(n int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	return s.db.Set([]byte(keyHeadNumber), buf[:])
}

// ---- slots / feeds ----

func (s *StateDB) GetSlot(index int64) (*chain.SlotRecord, error) {
	rec := &chain.SlotRecord{}
	key := fmt.Sprintf("%s%020d", prefixSlot, index)
	data, err := s.db.Get([]byte(key))
	if err != nil {
		return nil, translateNotFound(err)
	}
	if err := rec.DecodeCanonical(codec.NewReader(data)); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *StateDB) SetSlot(slot *chain.SlotRecord) error {
	key := fmt.Sprintf("%s%020d", prefixSlot, slot.SlotIndex)
	return s.db.Set([]byte(key), codec.Encode(slot))
}

func (s *StateDB) GetFeed(delegate chain.AccountID, asset chain.AssetID) (*chain.FeedRecord, error) {
	f := &chain.FeedRecord{}
	key := fmt.Sprintf("%s%d:%d", prefixFeed, asset, delegate)
	if err := s.get(key, f); err != nil {
		return nil, translateNotFound(err)
	}
	return f, nil
}

func (s *StateDB) SetFeed(f *chain.FeedRecord) error {
	key := fmt.Sprintf("%s%d:%d", prefixFeed, f.AssetID, f.Delegate)
	return s.set(key, f)
}

func (s *StateDB) IterateFeeds(asset chain.AssetID) []*chain.FeedRecord {
	it := s.db.NewIterator([]byte(fmt.Sprintf("%s%d:", prefixFeed, asset)))
	defer it.Release()
	var out []*chain.FeedRecord
	for ok := it.First(); ok; ok = it.Next() {
		f := &chain.FeedRecord{}
		if err := f.DecodeCanonical(codec.NewReader(it.Value())); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// ActiveDelegates returns up to n accounts, ordered by NetVotes descending,
// that have registered as delegates. This scans all accounts; a production
// deployment would maintain a dedicated vote-rank index, noted as a known
// scaling limit rather than implemented speculatively here.
func (s *StateDB) ActiveDelegates(n int) ([]*chain.Account, error) {
	it := s.db.NewIterator([]byte(prefixAccountByID))
	defer it.Release()
	var delegates []*chain.Account
	for ok := it.First(); ok; ok = it.Next() {
		a := &chain.Account{}
		if err := a.DecodeCanonical(codec.NewReader(it.Value())); err != nil {
			continue
		}
		if a.IsDelegate {
			delegates = append(delegates, a)
		}
	}
	for i := 1; i < len(delegates); i++ {
		for j := i; j > 0 && delegates[j].NetVotes > delegates[j-1].NetVotes; j-- {
			delegates[j], delegates[j-1] = delegates[j-1], delegates[j]
		}
	}
	if len(delegates) > n {
		delegates = delegates[:n]
	}
	return delegates, nil
}

// NextAccountID allocates and persists the next unused account id. Asset id
// 0 and account id 0 are both reserved for genesis records, so the counter
// starts at 1.
func (s *StateDB) NextAccountID() (chain.AccountID, error) {
	id, err := s.nextSeq(keyNextAccountID)
	return chain.AccountID(id), err
}

// NextAssetID allocates and persists the next unused asset id.
func (s *StateDB) NextAssetID() (chain.AssetID, error) {
	id, err := s.nextSeq(keyNextAssetID)
	return chain.AssetID(id), err
}

func (s *StateDB) nextSeq(key string) (uint32, error) {
	data, err := s.db.Get([]byte(key))
	var next uint32 = 1
	if err == nil {
		next = binary.LittleEndian.Uint32(data) + 1
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], next)
	if err := s.db.Set([]byte(key), buf[:]); err != nil {
		return 0, err
	}
	return next, nil
}

// ---- transaction uniqueness ----

// HasSeenTransaction reports whether id has already been applied, per
// spec.md §4.4's duplicate-transaction check.
func (s *StateDB) HasSeenTransaction(id chain.TransactionID) (bool, error) {
	_, err := s.db.Get([]byte(fmt.Sprintf("%s%x", prefixTxSeen, id[:])))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkTransactionSeen records id as applied so a later replay is rejected.
func (s *StateDB) MarkTransactionSeen(id chain.TransactionID) error {
	return s.db.Set([]byte(fmt.Sprintf("%s%x", prefixTxSeen, id[:])), []byte{1})
}

func translateNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return chain.ErrNotFound
	}
	return err
}
