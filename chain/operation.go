package chain

import "github.com/tolelom/delegatechain/codec"

// OpType enumerates every operation a transaction may carry, per spec.md
// §4.4's operation table.
type OpType uint8

const (
	OpWithdraw OpType = iota
	OpDeposit
	OpRegisterAccount
	OpUpdateAccount
	OpCreateAsset
	OpUpdateAsset
	OpIssueAsset
	OpAsk
	OpBid
	OpShort
	OpCover
	OpPublishFeed
	OpWithdrawPay // supplemented: delegate pay-balance sweep, see SPEC_FULL.md
)

// Operation is a closed tagged union over every operation kind, following
// the same discriminated-struct approach as WithdrawCondition: the set is
// fixed by protocol and handlers switch on Kind rather than on a type
// hierarchy.
type Operation struct {
	Kind OpType

	// OpWithdraw / OpDeposit
	Condition    WithdrawCondition
	AssetID      AssetID
	Amount       int64
	VoteDelegate AccountID // native asset only: delegate this balance's amount votes for, 0 = no vote

	// OpRegisterAccount / OpUpdateAccount
	AccountName string
	OwnerKey    []byte
	ActiveKey   []byte
	VoteFor     []AccountID
	AsDelegate  bool

	// OpCreateAsset / OpUpdateAsset / OpIssueAsset
	Symbol          string
	AssetName       string
	Issuer          AccountID
	MaxSupply       int64
	Precision       uint8
	CollateralRatio uint32
	IssueTo         Address

	// OpAsk / OpBid / OpShort / OpCover
	Quote       AssetID
	Base        AssetID
	Price       Price
	OrderOwner  Address
	ShortLimit  Price
	CollateralID Address // cover only: identifies which collateral record to pay down

	// OpPublishFeed
	Publisher AccountID
	FeedPrice Price

	// OpWithdrawPay
	PayAccount AccountID
	PayTo      Address
}

func (op *Operation) EncodeCanonical(w *codec.Writer) {
	w.PutUint8(uint8(op.Kind))
	switch op.Kind {
	case OpWithdraw, OpDeposit:
		op.Condition.EncodeCanonical(w)
		w.PutUint32(uint32(op.AssetID))
		w.PutInt64(op.Amount)
		w.PutUint32(uint32(op.VoteDelegate))
	case OpRegisterAccount, OpUpdateAccount:
		w.PutString(op.AccountName)
		w.PutBytes(op.OwnerKey)
		w.PutBytes(op.ActiveKey)
		w.PutUvarint(uint64(len(op.VoteFor)))
		for _, v := range op.VoteFor {
			w.PutUint32(uint32(v))
		}
		if op.AsDelegate {
			w.PutUint8(1)
		} else {
			w.PutUint8(0)
		}
	case OpCreateAsset, OpUpdateAsset:
		w.PutString(op.Symbol)
		w.PutString(op.AssetName)
		w.PutUint32(uint32(op.Issuer))
		w.PutInt64(op.MaxSupply)
		w.PutUint8(op.Precision)
		w.PutUint32(op.CollateralRatio)
	case OpIssueAsset:
		w.PutUint32(uint32(op.AssetID))
		w.PutInt64(op.Amount)
		w.PutRaw(op.IssueTo[:])
	case OpAsk, OpBid, OpShort:
		w.PutUint32(uint32(op.Quote))
		w.PutUint32(uint32(op.Base))
		op.Price.EncodeCanonical(w)
		w.PutRaw(op.OrderOwner[:])
		w.PutInt64(op.Amount)
		op.ShortLimit.EncodeCanonical(w)
	case OpCover:
		w.PutUint32(uint32(op.Quote))
		w.PutUint32(uint32(op.Base))
		w.PutRaw(op.CollateralID[:])
		w.PutInt64(op.Amount)
	case OpPublishFeed:
		w.PutUint32(uint32(op.Publisher))
		w.PutUint32(uint32(op.AssetID))
		op.FeedPrice.EncodeCanonical(w)
	case OpWithdrawPay:
		w.PutUint32(uint32(op.PayAccount))
		w.PutRaw(op.PayTo[:])
		w.PutInt64(op.Amount)
	}
}

// DecodeCanonical implements the codecDecoder contract used by codec readers.
func (op *Operation) DecodeCanonical(r *codec.Reader) error {
	kind, err := r.Uint8()
	if err != nil {
		return err
	}
	op.Kind = OpType(kind)
	readAddr := func() (Address, error) {
		var a Address
		b, err := r.Raw(20)
		if err != nil {
			return a, err
		}
		copy(a[:], b)
		return a, nil
	}
	switch op.Kind {
	case OpWithdraw, OpDeposit:
		if err := op.Condition.DecodeCanonical(r); err != nil {
			return err
		}
		assetID, err := r.Uint32()
		if err != nil {
			return err
		}
		op.AssetID = AssetID(assetID)
		if op.Amount, err = r.Int64(); err != nil {
			return err
		}
		voteDelegate, err := r.Uint32()
		if err != nil {
			return err
		}
		op.VoteDelegate = AccountID(voteDelegate)
	case OpRegisterAccount, OpUpdateAccount:
		if op.AccountName, err = r.String(); err != nil {
			return err
		}
		if op.OwnerKey, err = r.Bytes(); err != nil {
			return err
		}
		if op.ActiveKey, err = r.Bytes(); err != nil {
			return err
		}
		n, err := r.Uvarint()
		if err != nil {
			return err
		}
		op.VoteFor = make([]AccountID, 0, n)
		for i := uint64(0); i < n; i++ {
			v, err := r.Uint32()
			if err != nil {
				return err
			}
			op.VoteFor = append(op.VoteFor, AccountID(v))
		}
		flag, err := r.Uint8()
		if err != nil {
			return err
		}
		op.AsDelegate = flag != 0
	case OpCreateAsset, OpUpdateAsset:
		if op.Symbol, err = r.String(); err != nil {
			return err
		}
		if op.AssetName, err = r.String(); err != nil {
			return err
		}
		issuer, err := r.Uint32()
		if err != nil {
			return err
		}
		op.Issuer = AccountID(issuer)
		if op.MaxSupply, err = r.Int64(); err != nil {
			return err
		}
		if op.Precision, err = r.Uint8(); err != nil {
			return err
		}
		if op.CollateralRatio, err = r.Uint32(); err != nil {
			return err
		}
	case OpIssueAsset:
		assetID, err := r.Uint32()
		if err != nil {
			return err
		}
		op.AssetID = AssetID(assetID)
		if op.Amount, err = r.Int64(); err != nil {
			return err
		}
		if op.IssueTo, err = readAddr(); err != nil {
			return err
		}
	case OpAsk, OpBid, OpShort:
		quote, err := r.Uint32()
		if err != nil {
			return err
		}
		op.Quote = AssetID(quote)
		base, err := r.Uint32()
		if err != nil {
			return err
		}
		op.Base = AssetID(base)
		if err := op.Price.DecodeCanonical(r); err != nil {
			return err
		}
		if op.OrderOwner, err = readAddr(); err != nil {
			return err
		}
		if op.Amount, err = r.Int64(); err != nil {
			return err
		}
		if err := op.ShortLimit.DecodeCanonical(r); err != nil {
			return err
		}
	case OpCover:
		quote, err := r.Uint32()
		if err != nil {
			return err
		}
		op.Quote = AssetID(quote)
		base, err := r.Uint32()
		if err != nil {
			return err
		}
		op.Base = AssetID(base)
		if op.CollateralID, err = readAddr(); err != nil {
			return err
		}
		if op.Amount, err = r.Int64(); err != nil {
			return err
		}
	case OpPublishFeed:
		publisher, err := r.Uint32()
		if err != nil {
			return err
		}
		op.Publisher = AccountID(publisher)
		assetID, err := r.Uint32()
		if err != nil {
			return err
		}
		op.AssetID = AssetID(assetID)
		if err := op.FeedPrice.DecodeCanonical(r); err != nil {
			return err
		}
	case OpWithdrawPay:
		payAccount, err := r.Uint32()
		if err != nil {
			return err
		}
		op.PayAccount = AccountID(payAccount)
		if op.PayTo, err = readAddr(); err != nil {
			return err
		}
		if op.Amount, err = r.Int64(); err != nil {
			return err
		}
	}
	return nil
}
