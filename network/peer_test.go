package network_test

import (
	"net"
	"testing"

	"github.com/tolelom/delegatechain/network"
)

func TestPeerSendReceiveRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	client := network.NewPeer("server", "pipe", clientConn)
	server := network.NewPeer("client", "pipe", serverConn)

	done := make(chan error, 1)
	go func() {
		msg, err := server.Receive()
		if err != nil {
			done <- err
			return
		}
		if msg.Type != network.MsgTx {
			t.Errorf("type: got %d want MsgTx", msg.Type)
		}
		if string(msg.Payload) != "payload" {
			t.Errorf("payload: got %q want payload", msg.Payload)
		}
		done <- nil
	}()

	if err := client.Send(network.Message{Type: network.MsgTx, Payload: []byte("payload")}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Receive: %v", err)
	}
}

func TestPeerSendAfterCloseFails(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	peer := network.NewPeer("id", "pipe", clientConn)
	peer.Close()

	if err := peer.Send(network.Message{Type: network.MsgHello}); err == nil {
		t.Error("expected an error sending on a closed peer")
	}
}
