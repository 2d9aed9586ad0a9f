// Package consensus drives delegated block production: on each slot tick,
// the locally-held delegate whose turn it is drains the mempool, builds and
// signs a block through blockapp.Applicator, applies it to the local chain,
// and broadcasts it to peers.
package consensus

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tolelom/delegatechain/blockapp"
	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/config"
	"github.com/tolelom/delegatechain/events"
	"github.com/tolelom/delegatechain/wallet"
)

// Broadcaster is the subset of network.Node a Producer needs to announce a
// freshly produced block, kept narrow to avoid consensus depending on
// network's peer-management internals.
type Broadcaster interface {
	BroadcastBlock(block *chain.Block)
}

// Producer owns zero or more delegate signing keys and produces a block for
// each owned slot as it comes up, the generalization of the teacher's PoA
// engine from a single fixed validator set to the chain's vote-weighted,
// commit-reveal delegate roster.
type Producer struct {
	cfg     *config.Config
	store   chain.ChainState
	app     *blockapp.Applicator
	mempool *chain.Mempool
	node    Broadcaster
	emitter *events.Emitter
	log     zerolog.Logger

	mu   sync.Mutex
	keys map[chain.AccountID]*codec.PrivateKey
}

// NewProducer loads every key in cfg.DelegateKeys from its keystore file
// (password read from the named environment variable, never from the
// config file itself) and resolves each to the account it signs for.
func NewProducer(cfg *config.Config, store chain.ChainState, app *blockapp.Applicator, mempool *chain.Mempool, node Broadcaster, emitter *events.Emitter, log zerolog.Logger) (*Producer, error) {
	p := &Producer{
		cfg:     cfg,
		store:   store,
		app:     app,
		mempool: mempool,
		node:    node,
		emitter: emitter,
		log:     log.With().Str("component", "consensus").Logger(),
		keys:    make(map[chain.AccountID]*codec.PrivateKey),
	}
	for _, ref := range cfg.DelegateKeys {
		password := os.Getenv(ref.PasswordEnv)
		if password == "" {
			return nil, fmt.Errorf("consensus: %s: env var %s is empty", ref.AccountName, ref.PasswordEnv)
		}
		key, err := wallet.LoadKey(ref.KeystorePath, password)
		if err != nil {
			return nil, fmt.Errorf("consensus: load key for %s: %w", ref.AccountName, err)
		}
		acc, err := store.GetAccountByName(ref.AccountName)
		if err != nil {
			return nil, fmt.Errorf("consensus: resolve account %s: %w", ref.AccountName, err)
		}
		p.keys[acc.ID] = key
	}
	return p, nil
}

// Owned reports the account ids this node can produce for.
func (p *Producer) Owned() []chain.AccountID {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]chain.AccountID, 0, len(p.keys))
	for id := range p.keys {
		ids = append(ids, id)
	}
	return ids
}

// Tick checks every owned delegate against the current head and produces a
// block for the first one that owns the next slot. Only one block is
// produced per tick since a single node only ever owns a single slot at a
// given height under SPEC_FULL.md §4.8's one-slot-per-round rule.
func (p *Producer) Tick(now time.Time) (*chain.Block, error) {
	for _, id := range p.Owned() {
		height, owned, err := p.app.OwnedSlot(id)
		if err != nil {
			return nil, err
		}
		if !owned {
			continue
		}
		return p.produce(now, id, height)
	}
	return nil, nil
}

func (p *Producer) produce(now time.Time, delegateID chain.AccountID, height int64) (*chain.Block, error) {
	p.mu.Lock()
	key := p.keys[delegateID]
	p.mu.Unlock()

	secrets, err := loadSecretState(p.secretPath(delegateID))
	if err != nil {
		return nil, fmt.Errorf("consensus: secret state for %d: %w", delegateID, err)
	}
	freshSecret, err := randomSecret()
	if err != nil {
		return nil, err
	}
	nextHash := codec.Hash160(freshSecret[:])

	limit := p.cfg.MaxBlockSize
	if limit <= 0 {
		limit = 500
	}
	candidates := p.mempool.Pending(limit)

	block, err := p.app.ProduceBlock(now, delegateID, key, secrets.PendingReveal, nextHash, candidates)
	if err != nil {
		return nil, fmt.Errorf("consensus: produce block %d for delegate %d: %w", height, delegateID, err)
	}

	if err := p.app.AcceptBlock(block); err != nil {
		return nil, fmt.Errorf("consensus: apply own block %d: %w", height, err)
	}

	// Only persist the new commitment once the block actually lands;
	// otherwise a failed apply would leave the on-chain hash and the
	// locally remembered preimage out of sync.
	if err := saveSecretState(p.secretPath(delegateID), secretState{PendingReveal: freshSecret}); err != nil {
		p.log.Error().Err(err).Int64("delegate", int64(delegateID)).Msg("failed to persist secret-reveal state after producing block")
	}

	ids := make([]chain.TransactionID, len(block.Transactions))
	for i, tx := range block.Transactions {
		ids[i] = tx.ID()
	}
	p.mempool.Remove(ids)

	if p.node != nil {
		p.node.BroadcastBlock(block)
	}
	return block, nil
}

// Run starts the slot-ticker loop. It blocks until done is closed.
func (p *Producer) Run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			block, err := p.Tick(now)
			if err != nil {
				p.log.Error().Err(err).Msg("block production tick failed")
				continue
			}
			if block != nil {
				p.log.Info().Int64("height", block.Header.BlockNumber).Int("txs", len(block.Transactions)).Msg("produced block")
			}
		}
	}
}

func (p *Producer) secretPath(id chain.AccountID) string {
	return filepath.Join(p.cfg.DataDirectory, "delegate-secrets", fmt.Sprintf("%d.json", id))
}

// secretState is the one piece of local-only durability a Producer needs:
// the chain never stores a delegate's secret preimage, only its hash, so a
// restarting node must remember what it last committed to in order to
// reveal it correctly next round.
type secretState struct {
	PendingReveal [20]byte `json:"pending_reveal"`
}

type secretStateFile struct {
	PendingReveal string `json:"pending_reveal"`
}

func loadSecretState(path string) (secretState, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return secretState{}, nil
	}
	if err != nil {
		return secretState{}, err
	}
	var f secretStateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return secretState{}, err
	}
	raw, err := hex.DecodeString(f.PendingReveal)
	if err != nil || len(raw) != 20 {
		return secretState{}, fmt.Errorf("corrupt secret state at %s", path)
	}
	var s secretState
	copy(s.PendingReveal[:], raw)
	return s, nil
}

func saveSecretState(path string, s secretState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(secretStateFile{PendingReveal: hex.EncodeToString(s.PendingReveal[:])})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

func randomSecret() ([20]byte, error) {
	var s [20]byte
	if _, err := io.ReadFull(rand.Reader, s[:]); err != nil {
		return s, err
	}
	return s, nil
}
