package config

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
)

// GenesisPreviousID is the canonical all-zero previous-block id block 0
// chains onto.
var GenesisPreviousID chain.BlockID

// IsGenesisID reports whether id is the canonical genesis previous-id.
func IsGenesisID(id chain.BlockID) bool {
	return id == GenesisPreviousID
}

// BuildGenesisBlock seeds state with the base-currency asset, every
// allocation account in cfg.Genesis.Alloc, and their initial balances, then
// builds and signs block #0 with proposerKey. Delegates named in
// InitialDelegates are marked IsDelegate so ActiveDelegates(n) can seat
// them for the first round, per spec.md §2's delegate roster bootstrap.
func BuildGenesisBlock(cfg *Config, state chain.ChainState, proposerKey *codec.PrivateKey) (*chain.Block, error) {
	// The base asset takes the reserved id 0 directly rather than through
	// NextAssetID, whose sequence counter starts allocation at 1; every
	// market-issued asset trades against this fixed id, per chain.AssetID's
	// doc comment.
	const baseAssetID = chain.AssetID(0)
	if existing, err := state.GetAsset(baseAssetID); err == nil && existing.Symbol != "" {
		return nil, fmt.Errorf("genesis: asset 0 already registered as %q (state not empty?)", existing.Symbol)
	}
	baseAsset := &chain.Asset{
		ID:            baseAssetID,
		Symbol:        cfg.Genesis.BaseSymbol,
		Name:          cfg.Genesis.BaseSymbol,
		Precision:     5,
		MaxSupply:     cfg.Genesis.BaseMaxSupply,
		CurrentSupply: 0,
	}

	delegateSet := make(map[string]bool, len(cfg.Genesis.InitialDelegates))
	for _, name := range cfg.Genesis.InitialDelegates {
		delegateSet[name] = true
	}

	// Deterministic iteration order: accounts are assigned ids in name
	// sort order, so rebuilding genesis from the same config always
	// produces the same account-id assignment.
	names := make([]string, 0, len(cfg.Genesis.Alloc))
	for name := range cfg.Genesis.Alloc {
		names = append(names, name)
	}
	sort.Strings(names)

	var totalSupply int64
	for _, name := range names {
		alloc := cfg.Genesis.Alloc[name]
		activeKey, err := hex.DecodeString(alloc.ActiveKeyHex)
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc %q: active_key_hex: %w", name, err)
		}
		id, err := state.NextAccountID()
		if err != nil {
			return nil, fmt.Errorf("genesis: next account id: %w", err)
		}
		acc := &chain.Account{
			ID:           id,
			Name:         name,
			OwnerKey:     activeKey,
			ActiveKey:    activeKey,
			IsDelegate:   delegateSet[name],
			RegisteredAt: 0,
		}
		if err := state.SetAccount(acc); err != nil {
			return nil, fmt.Errorf("genesis: set account %q: %w", name, err)
		}

		if alloc.Balance > 0 {
			cond := chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: acc.Address()}
			bal := &chain.Balance{Owner: cond.Address(), AssetID: baseAssetID, Amount: alloc.Balance, Condition: cond}
			if err := state.SetBalance(bal); err != nil {
				return nil, fmt.Errorf("genesis: set balance %q: %w", name, err)
			}
			totalSupply += alloc.Balance
		}
	}

	if err := baseAsset.AddSupply(totalSupply); err != nil {
		return nil, fmt.Errorf("genesis: base asset supply: %w", err)
	}
	if err := state.SetAsset(baseAsset); err != nil {
		return nil, fmt.Errorf("genesis: set base asset: %w", err)
	}

	block := &chain.Block{
		Header: chain.BlockHeader{
			PreviousID:  GenesisPreviousID,
			BlockNumber: 0,
			Timestamp:   0,
			Delegate:    0,
		},
		Transactions: nil,
	}
	block.Sign(proposerKey)
	return block, nil
}
