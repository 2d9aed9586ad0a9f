// Package network defines the wire messages exchanged between nodes and a
// minimal peer-connection framing. The gossip protocol itself (peer
// discovery, retry/backoff, propagation policy) is out of scope; only the
// message shapes of spec.md §6 and a send/receive interface are
// implemented, grounded on the teacher's network/peer.go framing.
package network

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// MsgType labels a network message. All four sync-protocol messages from
// spec.md §6 are carried alongside the teacher's original tx/block
// messages.
type MsgType uint8

const (
	MsgHello MsgType = iota
	MsgTx
	MsgBlock
	MsgInventoryAdvertisement
	MsgItemRequest
	MsgItemIDsRequest
	MsgItemIDsReply
)

// Message is the envelope for all P2P communication. Payload is the
// canonical-codec encoding of the type-specific body (§4.1) — not JSON —
// so the same encoder used for hashing and signing also defines the wire
// format.
type Message struct {
	Type    MsgType
	Payload []byte
}

// Peer represents a connected remote node.
type Peer struct {
	ID   string
	Addr string

	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

// NewPeer wraps an established TCP connection as a Peer.
func NewPeer(id, addr string, conn net.Conn) *Peer {
	return &Peer{ID: id, Addr: addr, conn: conn}
}

// Connect dials the remote address and returns a connected Peer.
// If tlsCfg is non-nil the connection is established over TLS.
func Connect(id, addr string, tlsCfg *tls.Config) (*Peer, error) {
	var conn net.Conn
	var err error
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewPeer(id, addr, conn), nil
}

// Send writes a length-prefixed message to the peer: 4-byte big-endian
// length, 1-byte type, then Payload.
func (p *Peer) Send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.ID)
	}
	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], uint32(len(msg.Payload)+1))
	header[4] = byte(msg.Type)
	if _, err := p.conn.Write(header[:]); err != nil {
		return err
	}
	_, err := p.conn.Write(msg.Payload)
	return err
}

// Receive reads the next length-prefixed message.
// A 30-second read deadline prevents a stalled peer from blocking indefinitely.
func (p *Peer) Receive() (Message, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var header [4]byte
	if _, err := io.ReadFull(p.conn, header[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 || length > 32*1024*1024 { // 32 MB safety limit
		return Message{}, fmt.Errorf("message too large or empty: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		return Message{}, err
	}
	return Message{Type: MsgType(buf[0]), Payload: buf[1:]}, nil
}

// Close terminates the peer connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}
