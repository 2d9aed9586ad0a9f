package network

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
)

// MessageHandler is called for each received message.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers and manages outgoing connections.
type Node struct {
	nodeID     string
	listenAddr string
	mempool    *chain.Mempool
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int
	log        zerolog.Logger

	mu       sync.RWMutex
	peers    map[string]*Peer
	handlers map[MsgType]MessageHandler

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr.
// If tlsCfg is non-nil the listener and outgoing connections use TLS.
func NewNode(nodeID, listenAddr string, mempool *chain.Mempool, tlsCfg *tls.Config) *Node {
	n := &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		mempool:    mempool,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		log:        zerolog.New(os.Stderr).With().Timestamp().Str("component", "network").Str("node", nodeID).Logger(),
		peers:      make(map[string]*Peer),
		handlers:   make(map[MsgType]MessageHandler),
		stopCh:     make(chan struct{}),
	}
	n.Handle(MsgTx, n.handleTx)
	return n
}

// Handle registers a handler for msg type.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr and registers the peer.
func (n *Node) AddPeer(id, addr string) error {
	peer, err := Connect(id, addr, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.mu.Unlock()
	go n.readLoop(peer)

	if err := peer.Send(Message{Type: MsgHello, Payload: []byte(n.nodeID)}); err != nil {
		n.log.Warn().Err(err).Str("peer", id).Msg("send hello failed")
	}
	return nil
}

// Peer returns the connected peer with the given id, or nil if not found.
func (n *Node) Peer(id string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[id]
}

// Broadcast sends msg to all connected peers.
func (n *Node) Broadcast(msg Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			n.log.Warn().Err(err).Str("peer", p.ID).Msg("broadcast failed")
		}
	}
}

// BroadcastTx canonical-encodes tx and sends it to all peers.
func (n *Node) BroadcastTx(tx *chain.Transaction) {
	n.Broadcast(Message{Type: MsgTx, Payload: codec.Encode(tx)})
}

// BroadcastBlock canonical-encodes block and sends it to all peers.
func (n *Node) BroadcastBlock(block *chain.Block) {
	n.Broadcast(Message{Type: MsgBlock, Payload: codec.Encode(block)})
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				n.log.Error().Err(err).Msg("accept error")
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			n.log.Warn().Int("max_peers", n.maxPeers).Str("remote", conn.RemoteAddr().String()).Msg("rejecting connection, max peers reached")
			conn.Close()
			continue
		}
		peer := NewPeer(conn.RemoteAddr().String(), conn.RemoteAddr().String(), conn)
		n.mu.Lock()
		n.peers[peer.ID] = peer
		n.mu.Unlock()
		go n.readLoop(peer)
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			n.log.Error().Interface("panic", r).Str("peer", peer.ID).Msg("readLoop panic")
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}

func (n *Node) handleTx(_ *Peer, msg Message) {
	var tx chain.Transaction
	if err := tx.DecodeCanonical(codec.NewReader(msg.Payload)); err != nil {
		n.log.Warn().Err(err).Msg("decode tx failed")
		return
	}
	if err := n.mempool.Add(&tx, time.Now()); err != nil {
		n.log.Warn().Err(err).Msg("mempool add failed")
	}
}
