package ops

import "github.com/tolelom/delegatechain/chain"

// CreateAsset registers a new asset type, per spec.md §4.4's
// create_asset operation. The issuer becomes the sole feed publisher by
// default for market-issued assets; update_asset can grow that set.
func CreateAsset(state chain.ChainState, nextID chain.AssetID, signers signerSet, op *chain.Operation) error {
	if _, err := state.GetAssetBySymbol(op.Symbol); err == nil {
		return ErrAssetExists
	}
	issuer, err := state.GetAccount(op.Issuer)
	if err != nil {
		return err
	}
	issuerAddr := issuer.Address()
	if !signers.has(issuerAddr) {
		return ErrUnauthorized
	}
	isMarketIssued := op.CollateralRatio > 0
	asset := &chain.Asset{
		ID:              nextID,
		Symbol:          op.Symbol,
		Name:            op.AssetName,
		Issuer:          op.Issuer,
		Precision:       op.Precision,
		MaxSupply:       op.MaxSupply,
		CollateralRatio: op.CollateralRatio,
		IsMarketIssued:  isMarketIssued,
	}
	if isMarketIssued {
		asset.FeedPublishers = []chain.AccountID{op.Issuer}
	}
	return state.SetAsset(asset)
}

// UpdateAsset changes an asset's mutable fields (name, max supply,
// collateral ratio). Per the BitShares original this requires dual
// authorization from the issuer's active key, a detail the distilled spec
// leaves implicit; see SPEC_FULL.md's supplemented-features section.
func UpdateAsset(state chain.ChainState, signers signerSet, op *chain.Operation) error {
	asset, err := state.GetAssetBySymbol(op.Symbol)
	if err != nil {
		return err
	}
	issuer, err := state.GetAccount(asset.Issuer)
	if err != nil {
		return err
	}
	if !signers.has(issuer.Address()) {
		return ErrNotIssuer
	}
	if op.AssetName != "" {
		asset.Name = op.AssetName
	}
	if op.MaxSupply > 0 {
		asset.MaxSupply = op.MaxSupply
	}
	if op.CollateralRatio > 0 {
		asset.CollateralRatio = op.CollateralRatio
	}
	return state.SetAsset(asset)
}

// IssueAsset mints new supply of an asset directly into a balance, per
// spec.md §4.4's issue_asset operation. Market-issued assets cannot be
// issued this way — their supply only changes through short/cover matches
// in package market.
func IssueAsset(state chain.ChainState, signers signerSet, op *chain.Operation) error {
	asset, err := state.GetAsset(op.AssetID)
	if err != nil {
		return err
	}
	if asset.IsMarketIssued {
		return ErrMarketIssuedAsset
	}
	issuer, err := state.GetAccount(asset.Issuer)
	if err != nil {
		return err
	}
	if !signers.has(issuer.Address()) {
		return ErrNotIssuer
	}
	if op.Amount <= 0 {
		return ErrInvalidAmount
	}
	if err := asset.AddSupply(op.Amount); err != nil {
		return err
	}
	if err := state.SetAsset(asset); err != nil {
		return err
	}
	bal, err := state.GetBalance(op.IssueTo, op.AssetID)
	if err != nil {
		bal = &chain.Balance{
			Owner:     op.IssueTo,
			AssetID:   op.AssetID,
			Condition: chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: op.IssueTo},
		}
	}
	if err := bal.Add(op.Amount); err != nil {
		return err
	}
	return state.SetBalance(bal)
}
