package ops

import "github.com/tolelom/delegatechain/chain"

// escrowAssetFor returns which asset id funds a resting order of the given
// kind: bids and shorts escrow Base (what they're willing to pay, or the
// collateral backing a new debt position), asks escrow Quote (what they're
// selling), per market_engine_v4.cpp's order funding convention.
func escrowAssetFor(kind chain.OrderKind, quote, base chain.AssetID) chain.AssetID {
	if kind == chain.OrderAsk {
		return quote
	}
	return base
}

// placeOrder debits the owner's escrow balance and inserts (or tops up) the
// resting order record. Matching against the opposite book happens later,
// in package market, once the block's full batch of orders is known.
func placeOrder(state chain.ChainState, kind chain.OrderKind, signers signerSet, op *chain.Operation) error {
	if op.Amount <= 0 {
		return ErrInvalidAmount
	}
	ownerAddr := op.OrderOwner
	if !signers.has(ownerAddr) {
		return ErrUnauthorized
	}
	escrowAsset := escrowAssetFor(kind, op.Quote, op.Base)
	bal, err := state.GetBalance(ownerAddr, escrowAsset)
	if err != nil {
		return ErrInsufficientBalance
	}
	if bal.Amount < op.Amount {
		return ErrInsufficientBalance
	}
	if err := bal.Sub(op.Amount); err != nil {
		return err
	}
	if bal.Amount == 0 {
		if err := state.DeleteBalance(ownerAddr, escrowAsset); err != nil {
			return err
		}
	} else if err := state.SetBalance(bal); err != nil {
		return err
	}

	existing, err := state.GetOrder(op.Quote, op.Base, kind, op.Price, ownerAddr)
	if err == nil {
		existing.Balance += op.Amount
		return state.SetOrder(existing)
	}
	return state.SetOrder(&chain.OrderRecord{
		Kind:       kind,
		Quote:      op.Quote,
		Base:       op.Base,
		Price:      op.Price,
		Owner:      ownerAddr,
		Balance:    op.Amount,
		ShortLimit: op.ShortLimit,
	})
}

// Ask places a resting ask order, per spec.md §4.4.
func Ask(state chain.ChainState, signers signerSet, op *chain.Operation) error {
	return placeOrder(state, chain.OrderAsk, signers, op)
}

// Bid places a resting bid order, per spec.md §4.4.
func Bid(state chain.ChainState, signers signerSet, op *chain.Operation) error {
	return placeOrder(state, chain.OrderBid, signers, op)
}

// Short places a resting short order, escrowing Base-asset collateral
// against the eventual matched debt, per spec.md §4.4 and
// market_engine_v4.cpp's short-order funding rule.
func Short(state chain.ChainState, signers signerSet, op *chain.Operation) error {
	quoteAsset, err := state.GetAsset(op.Quote)
	if err != nil {
		return err
	}
	if !quoteAsset.IsMarketIssued {
		return ErrNotMarketIssued
	}
	return placeOrder(state, chain.OrderShort, signers, op)
}

// Cover pays down an existing collateral position's debt and releases a
// proportional share of its collateral, per spec.md §4.4's cover
// operation. Full repayment removes the position entirely.
func Cover(state chain.ChainState, signers signerSet, op *chain.Operation) error {
	col, err := state.GetCollateral(op.Quote, op.Base, op.CollateralID)
	if err != nil {
		return ErrNoSuchCollateral
	}
	if !signers.has(op.CollateralID) {
		return ErrUnauthorized
	}
	if op.Amount <= 0 || op.Amount > col.CoverDebt {
		return ErrInvalidAmount
	}
	bal, err := state.GetBalance(op.CollateralID, op.Quote)
	if err != nil || bal.Amount < op.Amount {
		return ErrInsufficientBalance
	}
	if err := bal.Sub(op.Amount); err != nil {
		return err
	}
	if bal.Amount == 0 {
		if err := state.DeleteBalance(op.CollateralID, op.Quote); err != nil {
			return err
		}
	} else if err := state.SetBalance(bal); err != nil {
		return err
	}

	released := int64(0)
	if col.CoverDebt > 0 {
		released = (col.Collateral * op.Amount) / col.CoverDebt
	}
	col.CoverDebt -= op.Amount
	col.Collateral -= released

	if col.CoverDebt == 0 {
		released += col.Collateral
		if err := state.DeleteCollateral(op.Quote, op.Base, op.CollateralID); err != nil {
			return err
		}
	} else if err := state.SetCollateral(col); err != nil {
		return err
	}
	remainder, err := state.GetBalance(op.CollateralID, op.Base)
	if err != nil {
		remainder = &chain.Balance{
			Owner:     op.CollateralID,
			AssetID:   op.Base,
			Condition: chain.WithdrawCondition{Kind: chain.WithdrawSignature, Owner: op.CollateralID},
		}
	}
	if err := remainder.Add(released); err != nil {
		return err
	}
	return state.SetBalance(remainder)
}
