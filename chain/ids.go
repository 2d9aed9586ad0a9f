package chain

import "encoding/hex"

// AssetID identifies a registered asset. Asset 0 is the network's base
// currency, created at genesis.
type AssetID uint32

// AccountID identifies a registered account.
type AccountID uint32

// Address is the Hash160 digest of a withdraw condition; balances are
// keyed by (Address, AssetID).
type Address [20]byte

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// BlockID is the TxDigest-style hash of a block header.
type BlockID [20]byte

func (b BlockID) String() string { return hex.EncodeToString(b[:]) }

// TransactionID is the TxDigest hash of a transaction's signable body.
type TransactionID [20]byte

func (t TransactionID) String() string { return hex.EncodeToString(t[:]) }
