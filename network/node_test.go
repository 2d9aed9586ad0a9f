package network_test

import (
	"net"
	"testing"
	"time"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/network"
)

func freeLocalAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func signedTx(t *testing.T) *chain.Transaction {
	t.Helper()
	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	tx := &chain.Transaction{
		Expiration: time.Now().Unix() + 60,
		Operations: []chain.Operation{{Kind: chain.OpRegisterAccount, AccountName: "bob"}},
	}
	tx.Sign(key)
	return tx
}

func TestBroadcastTxDeliversToPeerMempool(t *testing.T) {
	serverAddr := freeLocalAddr(t)
	serverMempool := chain.NewMempool(chain.DefaultMaxPoolSize, 3600)
	server := network.NewNode("server", serverAddr, serverMempool, nil)
	if err := server.Start(); err != nil {
		t.Fatalf("server Start: %v", err)
	}
	defer server.Stop()

	clientMempool := chain.NewMempool(chain.DefaultMaxPoolSize, 3600)
	client := network.NewNode("client", freeLocalAddr(t), clientMempool, nil)
	if err := client.Start(); err != nil {
		t.Fatalf("client Start: %v", err)
	}
	defer client.Stop()

	if err := client.AddPeer("server", serverAddr); err != nil {
		t.Fatalf("AddPeer: %v", err)
	}

	tx := signedTx(t)
	client.BroadcastTx(tx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := serverMempool.Get(tx.ID()); ok {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server mempool never received the broadcast transaction")
}
