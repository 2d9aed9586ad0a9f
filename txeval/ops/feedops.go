package ops

import "github.com/tolelom/delegatechain/chain"

// PublishFeed records a delegate's price feed for a market-issued asset,
// per spec.md §4.4's publish_feed operation. Only accounts named in the
// asset's FeedPublishers list may publish; MarketEngine derives the
// asset's settlement price as the median of recent feeds.
func PublishFeed(state chain.ChainState, signers signerSet, op *chain.Operation, now int64) error {
	asset, err := state.GetAsset(op.AssetID)
	if err != nil {
		return err
	}
	if !asset.IsMarketIssued {
		return ErrNotMarketIssued
	}
	acct, err := state.GetAccount(op.Publisher)
	if err != nil {
		return err
	}
	if !signers.has(acct.Address()) {
		return ErrUnauthorized
	}
	authorized := false
	for _, p := range asset.FeedPublishers {
		if p == op.Publisher {
			authorized = true
			break
		}
	}
	if !authorized {
		return ErrNotFeedPublisher
	}
	return state.SetFeed(&chain.FeedRecord{
		Delegate:  op.Publisher,
		AssetID:   op.AssetID,
		Price:     op.FeedPrice,
		Timestamp: now,
	})
}
