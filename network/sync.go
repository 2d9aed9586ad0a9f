package network

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
)

// ItemKind discriminates the two kinds of content the sync protocol
// exchanges by id.
type ItemKind uint8

const (
	ItemKindTransaction ItemKind = iota
	ItemKindBlock
)

// ItemID is the 20-byte digest identifying a transaction or block,
// matching chain.TransactionID/chain.BlockID's width.
type ItemID [20]byte

// InventoryAdvertisement announces ids a peer already holds, so the
// receiver can request only what it's missing, per spec.md §6.
type InventoryAdvertisement struct {
	Kind ItemKind
	IDs  []ItemID
}

func (m *InventoryAdvertisement) EncodeCanonical(w *codec.Writer) {
	w.PutUint8(uint8(m.Kind))
	w.PutUvarint(uint64(len(m.IDs)))
	for _, id := range m.IDs {
		w.PutRaw(id[:])
	}
}

func (m *InventoryAdvertisement) DecodeCanonical(r *codec.Reader) error {
	kind, err := r.Uint8()
	if err != nil {
		return err
	}
	m.Kind = ItemKind(kind)
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	m.IDs = make([]ItemID, n)
	for i := range m.IDs {
		raw, err := r.Raw(20)
		if err != nil {
			return err
		}
		copy(m.IDs[i][:], raw)
	}
	return nil
}

// ItemRequest asks a peer to send the full content of one item by id.
type ItemRequest struct {
	Kind ItemKind
	ID   ItemID
}

func (m *ItemRequest) EncodeCanonical(w *codec.Writer) {
	w.PutUint8(uint8(m.Kind))
	w.PutRaw(m.ID[:])
}

func (m *ItemRequest) DecodeCanonical(r *codec.Reader) error {
	kind, err := r.Uint8()
	if err != nil {
		return err
	}
	m.Kind = ItemKind(kind)
	raw, err := r.Raw(20)
	if err != nil {
		return err
	}
	copy(m.ID[:], raw)
	return nil
}

// ItemIDsRequest asks a peer for up to Limit ids after Since (a block
// height for ItemKindBlock; ignored for ItemKindTransaction, since the
// mempool has no ordinal position).
type ItemIDsRequest struct {
	Kind  ItemKind
	Since int64
	Limit uint32
}

func (m *ItemIDsRequest) EncodeCanonical(w *codec.Writer) {
	w.PutUint8(uint8(m.Kind))
	w.PutInt64(m.Since)
	w.PutUint32(m.Limit)
}

func (m *ItemIDsRequest) DecodeCanonical(r *codec.Reader) error {
	kind, err := r.Uint8()
	if err != nil {
		return err
	}
	m.Kind = ItemKind(kind)
	if m.Since, err = r.Int64(); err != nil {
		return err
	}
	if m.Limit, err = r.Uint32(); err != nil {
		return err
	}
	return nil
}

// ItemIDsReply answers an ItemIDsRequest: IDs is the page returned, and
// Remaining is how many further ids exist beyond this page.
type ItemIDsReply struct {
	Kind      ItemKind
	IDs       []ItemID
	Remaining uint32
}

func (m *ItemIDsReply) EncodeCanonical(w *codec.Writer) {
	w.PutUint8(uint8(m.Kind))
	w.PutUvarint(uint64(len(m.IDs)))
	for _, id := range m.IDs {
		w.PutRaw(id[:])
	}
	w.PutUint32(m.Remaining)
}

func (m *ItemIDsReply) DecodeCanonical(r *codec.Reader) error {
	kind, err := r.Uint8()
	if err != nil {
		return err
	}
	m.Kind = ItemKind(kind)
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	m.IDs = make([]ItemID, n)
	for i := range m.IDs {
		raw, err := r.Raw(20)
		if err != nil {
			return err
		}
		copy(m.IDs[i][:], raw)
	}
	if m.Remaining, err = r.Uint32(); err != nil {
		return err
	}
	return nil
}

// syncPageSize bounds how many ids a single ItemIDsReply carries.
const syncPageSize = 200

// BlockSource is the read side of chain state Syncer needs to answer
// inventory and id-range requests and to recognize blocks it already has.
type BlockSource interface {
	GetBlockByID(id chain.BlockID) (*chain.Block, error)
	GetBlockByNumber(n int64) (*chain.Block, error)
	HeadNumber() (int64, error)
}

// BlockAcceptor validates and applies one received block, the interface
// package blockapp's Applicator satisfies.
type BlockAcceptor interface {
	AcceptBlock(block *chain.Block) error
}

// Syncer drives the four-message inventory protocol of spec.md §6:
// advertise known ids, request missing items by id, and page through id
// ranges to catch up a lagging peer. It never decides gossip policy
// (when to advertise, which peers to prefer) — that is explicitly out of
// scope; Syncer only emits and accepts these items, grounded on the
// teacher's sync.go request/response shape.
type Syncer struct {
	node    *Node
	blocks  BlockSource
	accept  BlockAcceptor
	mempool *chain.Mempool
	log     zerolog.Logger
}

// NewSyncer registers the sync protocol's handlers on node.
func NewSyncer(node *Node, blocks BlockSource, accept BlockAcceptor, mempool *chain.Mempool) *Syncer {
	s := &Syncer{
		node:    node,
		blocks:  blocks,
		accept:  accept,
		mempool: mempool,
		log:     zerolog.New(os.Stderr).With().Timestamp().Str("component", "sync").Logger(),
	}
	node.Handle(MsgInventoryAdvertisement, s.handleInventoryAdvertisement)
	node.Handle(MsgItemRequest, s.handleItemRequest)
	node.Handle(MsgItemIDsRequest, s.handleItemIDsRequest)
	node.Handle(MsgItemIDsReply, s.handleItemIDsReply)
	return s
}

// AdvertiseBlock tells peer about a newly produced block id.
func (s *Syncer) AdvertiseBlock(peer *Peer, id chain.BlockID) error {
	adv := &InventoryAdvertisement{Kind: ItemKindBlock, IDs: []ItemID{ItemID(id)}}
	return peer.Send(Message{Type: MsgInventoryAdvertisement, Payload: codec.Encode(adv)})
}

// RequestBlockRange asks peer for up to syncPageSize block ids starting
// after sinceHeight, the first step in catching up a lagging node.
func (s *Syncer) RequestBlockRange(peer *Peer, sinceHeight int64) error {
	req := &ItemIDsRequest{Kind: ItemKindBlock, Since: sinceHeight, Limit: syncPageSize}
	return peer.Send(Message{Type: MsgItemIDsRequest, Payload: codec.Encode(req)})
}

func (s *Syncer) handleInventoryAdvertisement(peer *Peer, msg Message) {
	var adv InventoryAdvertisement
	if err := adv.DecodeCanonical(codec.NewReader(msg.Payload)); err != nil {
		s.log.Warn().Err(err).Msg("decode inventory advertisement failed")
		return
	}
	for _, id := range adv.IDs {
		if s.haveItem(adv.Kind, id) {
			continue
		}
		req := &ItemRequest{Kind: adv.Kind, ID: id}
		if err := peer.Send(Message{Type: MsgItemRequest, Payload: codec.Encode(req)}); err != nil {
			s.log.Warn().Err(err).Str("peer", peer.ID).Msg("send item request failed")
		}
	}
}

func (s *Syncer) handleItemRequest(peer *Peer, msg Message) {
	var req ItemRequest
	if err := req.DecodeCanonical(codec.NewReader(msg.Payload)); err != nil {
		s.log.Warn().Err(err).Msg("decode item request failed")
		return
	}
	switch req.Kind {
	case ItemKindBlock:
		block, err := s.blocks.GetBlockByID(chain.BlockID(req.ID))
		if err != nil {
			return
		}
		if err := peer.Send(Message{Type: MsgBlock, Payload: codec.Encode(block)}); err != nil {
			s.log.Warn().Err(err).Str("peer", peer.ID).Msg("send block failed")
		}
	case ItemKindTransaction:
		tx, ok := s.mempool.Get(chain.TransactionID(req.ID))
		if !ok {
			return
		}
		if err := peer.Send(Message{Type: MsgTx, Payload: codec.Encode(tx)}); err != nil {
			s.log.Warn().Err(err).Str("peer", peer.ID).Msg("send tx failed")
		}
	}
}

func (s *Syncer) handleItemIDsRequest(peer *Peer, msg Message) {
	var req ItemIDsRequest
	if err := req.DecodeCanonical(codec.NewReader(msg.Payload)); err != nil {
		s.log.Warn().Err(err).Msg("decode item ids request failed")
		return
	}
	if req.Kind != ItemKindBlock {
		return // transactions have no ordinal range; only block catch-up is paged
	}
	limit := req.Limit
	if limit == 0 || limit > syncPageSize {
		limit = syncPageSize
	}
	head, err := s.blocks.HeadNumber()
	if err != nil {
		return
	}

	var ids []ItemID
	h := req.Since + 1
	for ; h <= head && uint32(len(ids)) < limit; h++ {
		b, err := s.blocks.GetBlockByNumber(h)
		if err != nil {
			break
		}
		ids = append(ids, ItemID(b.Header.ID()))
	}
	remaining := uint32(0)
	if head >= h {
		remaining = uint32(head - h + 1)
	}
	reply := &ItemIDsReply{Kind: ItemKindBlock, IDs: ids, Remaining: remaining}
	if err := peer.Send(Message{Type: MsgItemIDsReply, Payload: codec.Encode(reply)}); err != nil {
		s.log.Warn().Err(err).Str("peer", peer.ID).Msg("send item ids reply failed")
	}
}

func (s *Syncer) handleItemIDsReply(peer *Peer, msg Message) {
	var reply ItemIDsReply
	if err := reply.DecodeCanonical(codec.NewReader(msg.Payload)); err != nil {
		s.log.Warn().Err(err).Msg("decode item ids reply failed")
		return
	}
	for _, id := range reply.IDs {
		if s.haveItem(reply.Kind, id) {
			continue
		}
		req := &ItemRequest{Kind: reply.Kind, ID: id}
		if err := peer.Send(Message{Type: MsgItemRequest, Payload: codec.Encode(req)}); err != nil {
			s.log.Warn().Err(err).Str("peer", peer.ID).Msg("send item request failed")
		}
	}
}

func (s *Syncer) haveItem(kind ItemKind, id ItemID) bool {
	switch kind {
	case ItemKindBlock:
		_, err := s.blocks.GetBlockByID(chain.BlockID(id))
		return err == nil
	case ItemKindTransaction:
		_, ok := s.mempool.Get(chain.TransactionID(id))
		return ok
	}
	return false
}

// HandleReceivedBlock decodes a raw MsgBlock payload and hands it to the
// configured BlockAcceptor, the counterpart to BroadcastBlock/ItemRequest
// replies on the receiving end.
func (s *Syncer) HandleReceivedBlock(msg Message) error {
	var block chain.Block
	if err := block.DecodeCanonical(codec.NewReader(msg.Payload)); err != nil {
		return err
	}
	return s.accept.AcceptBlock(&block)
}
