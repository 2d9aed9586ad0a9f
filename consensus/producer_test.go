package consensus_test

import (
	"encoding/hex"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tolelom/delegatechain/blockapp"
	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/config"
	"github.com/tolelom/delegatechain/consensus"
	"github.com/tolelom/delegatechain/events"
	"github.com/tolelom/delegatechain/internal/testutil"
	"github.com/tolelom/delegatechain/txeval"
	"github.com/tolelom/delegatechain/wallet"
)

type noopBroadcaster struct{ blocks []*chain.Block }

func (b *noopBroadcaster) BroadcastBlock(block *chain.Block) { b.blocks = append(b.blocks, block) }

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestProducerProducesOwnedSlot(t *testing.T) {
	dataDir := t.TempDir()
	key, err := codec.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	keystorePath := dataDir + "/producer.key"
	const password = "test-password"
	t.Setenv("PRODUCER_KEYSTORE_PASSWORD", password)
	if err := wallet.SaveKey(keystorePath, password, key); err != nil {
		t.Fatal(err)
	}

	state := testutil.NewStateDB()
	cfg := &config.Config{
		NodeID:               "test",
		DataDirectory:        dataDir,
		MaxBlockSize:         500,
		MaxTransactionTTL:    3600,
		BlockIntervalSeconds: 1,
		NumDelegates:         1,
		DelegateKeys: []config.DelegateKeyRef{
			{AccountName: "producer", KeystorePath: keystorePath, PasswordEnv: "PRODUCER_KEYSTORE_PASSWORD"},
		},
		Genesis: config.GenesisConfig{
			BaseSymbol: "DLC",
			Alloc: map[string]config.GenesisAllocation{
				"producer": {ActiveKeyHex: hex.EncodeToString(key.Public().Bytes()), Balance: 1_000_000},
			},
			InitialDelegates: []string{"producer"},
		},
	}
	genesis, err := config.BuildGenesisBlock(cfg, state, key)
	if err != nil {
		t.Fatal(err)
	}
	if err := state.SetBlock(genesis); err != nil {
		t.Fatal(err)
	}
	if err := state.SetHeadNumber(0); err != nil {
		t.Fatal(err)
	}

	emitter := events.NewEmitter()
	app := blockapp.NewApplicator(cfg, state, txeval.NewEvaluator(cfg), emitter, testLogger())
	mempool := chain.NewMempool(0, 0)
	broadcaster := &noopBroadcaster{}

	producer, err := consensus.NewProducer(cfg, state, app, mempool, broadcaster, emitter, testLogger())
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	if len(producer.Owned()) != 1 {
		t.Fatalf("expected producer to own exactly 1 key, got %d", len(producer.Owned()))
	}

	block, err := producer.Tick(time.Unix(1_700_000_100, 0))
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if block == nil {
		t.Fatal("expected a block to be produced for the sole delegate's slot")
	}
	if len(broadcaster.blocks) != 1 {
		t.Errorf("expected 1 broadcast block, got %d", len(broadcaster.blocks))
	}

	head, err := state.HeadNumber()
	if err != nil {
		t.Fatal(err)
	}
	if head != block.Header.BlockNumber {
		t.Errorf("head = %d, want %d", head, block.Header.BlockNumber)
	}
}

func TestNewProducerFailsOnEmptyPassword(t *testing.T) {
	state := testutil.NewStateDB()
	cfg := &config.Config{
		NodeID:        "test",
		DataDirectory: t.TempDir(),
		NumDelegates:  1,
		DelegateKeys: []config.DelegateKeyRef{
			{AccountName: "producer", KeystorePath: "irrelevant.key", PasswordEnv: "UNSET_ENV_VAR"},
		},
	}
	emitter := events.NewEmitter()
	app := blockapp.NewApplicator(cfg, state, txeval.NewEvaluator(cfg), emitter, testLogger())
	mempool := chain.NewMempool(0, 0)

	if _, err := consensus.NewProducer(cfg, state, app, mempool, nil, emitter, testLogger()); err == nil {
		t.Error("expected error when the keystore password env var is unset")
	}
}
