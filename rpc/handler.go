package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tolelom/delegatechain/chain"
	"github.com/tolelom/delegatechain/codec"
	"github.com/tolelom/delegatechain/network"
	"github.com/tolelom/delegatechain/query"
)

// Handler holds all dependencies needed to serve RPC methods: query.API
// for every read projection, the mempool and block acceptor for the two
// submit endpoints, and a Broadcaster to forward accepted items to peers.
type Handler struct {
	api       *query.API
	mempool   *chain.Mempool
	accept    network.BlockAcceptor
	broadcast Broadcaster
}

// Broadcaster is the subset of network.Node needed to announce a
// successfully submitted transaction or block.
type Broadcaster interface {
	BroadcastTx(tx *chain.Transaction)
	BroadcastBlock(block *chain.Block)
}

// NewHandler creates an RPC Handler.
func NewHandler(api *query.API, mempool *chain.Mempool, accept network.BlockAcceptor, broadcast Broadcaster) *Handler {
	return &Handler{api: api, mempool: mempool, accept: accept, broadcast: broadcast}
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "get_block_height":
		height, err := h.api.HeadNumber()
		if err != nil {
			return errResponse(req.ID, CodeInternalError, err.Error())
		}
		return okResponse(req.ID, height)

	case "get_block":
		return h.getBlock(req)

	case "get_transaction":
		return h.getTransaction(req)

	case "get_balance":
		return h.getBalance(req)

	case "get_account":
		return h.getAccount(req)

	case "get_order_book":
		return h.getOrderBook(req)

	case "get_market_history":
		return h.getMarketHistory(req)

	case "get_pending_transactions":
		return h.getPendingTransactions(req)

	case "get_delegate_status":
		return h.getDelegateStatus(req)

	case "get_active_delegates":
		return h.getActiveDelegates(req)

	case "submit_transaction":
		return h.submitTransaction(req)

	case "submit_block":
		return h.submitBlock(req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getBlock(req Request) Response {
	var params struct {
		ID     string `json:"id"`
		Height *int64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}

	var block *chain.Block
	var err error
	switch {
	case params.ID != "":
		var id chain.BlockID
		if err := decodeHashInto(params.ID, id[:]); err != nil {
			return errResponse(req.ID, CodeInvalidParams, "id: "+err.Error())
		}
		block, err = h.api.BlockByID(id)
	case params.Height != nil:
		block, err = h.api.BlockByNumber(*params.Height)
	default:
		height, hErr := h.api.HeadNumber()
		if hErr != nil {
			return errResponse(req.ID, CodeInternalError, hErr.Error())
		}
		block, err = h.api.BlockByNumber(height)
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getTransaction(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	var id chain.TransactionID
	if err := decodeHashInto(params.ID, id[:]); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "id: "+err.Error())
	}
	tx, height, err := h.api.Transaction(id)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, map[string]any{"transaction": tx, "block_height": height})
}

func (h *Handler) getBalance(req Request) Response {
	var params struct {
		Owner string `json:"owner"`
		Asset uint32 `json:"asset"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	var owner chain.Address
	if err := decodeHashInto(params.Owner, owner[:]); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "owner: "+err.Error())
	}
	bal, err := h.api.Balance(owner, chain.AssetID(params.Asset))
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, bal)
}

func (h *Handler) getAccount(req Request) Response {
	var params struct {
		ID   *uint32 `json:"id"`
		Name string  `json:"name"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	var acc *chain.Account
	var err error
	if params.Name != "" {
		acc, err = h.api.AccountByName(params.Name)
	} else if params.ID != nil {
		acc, err = h.api.AccountByID(chain.AccountID(*params.ID))
	} else {
		return errResponse(req.ID, CodeInvalidParams, "id or name is required")
	}
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, acc)
}

func (h *Handler) getOrderBook(req Request) Response {
	var params struct {
		Quote uint32 `json:"quote"`
		Base  uint32 `json:"base"`
		Kind  uint8  `json:"kind"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	orders, err := h.api.OrderBookSlice(chain.AssetID(params.Quote), chain.AssetID(params.Base), chain.OrderKind(params.Kind), limit)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, orders)
}

func (h *Handler) getMarketHistory(req Request) Response {
	var params struct {
		Quote       uint32 `json:"quote"`
		Base        uint32 `json:"base"`
		Granularity uint8  `json:"granularity"`
		From        int64  `json:"from"`
		To          int64  `json:"to"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	records, err := h.api.MarketHistory(ctx, chain.AssetID(params.Quote), chain.AssetID(params.Base), chain.HistoryGranularity(params.Granularity), params.From, params.To)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, records)
}

func (h *Handler) getPendingTransactions(req Request) Response {
	var params struct {
		Limit int `json:"limit"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	return okResponse(req.ID, h.api.PendingTransactions(limit))
}

func (h *Handler) getDelegateStatus(req Request) Response {
	var params struct {
		ID uint32 `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	status, err := h.api.DelegateStatus(chain.AccountID(params.ID))
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, status)
}

func (h *Handler) getActiveDelegates(req Request) Response {
	var params struct {
		N int `json:"n"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	n := params.N
	if n <= 0 {
		n = 21
	}
	delegates, err := h.api.ActiveDelegates(n)
	if err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	return okResponse(req.ID, delegates)
}

func (h *Handler) submitTransaction(req Request) Response {
	var params struct {
		Bytes string `json:"bytes"` // hex-encoded canonical encoding
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	raw, err := hex.DecodeString(params.Bytes)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, "bytes: "+err.Error())
	}
	tx := &chain.Transaction{}
	if err := tx.DecodeCanonical(codec.NewReader(raw)); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "decode: "+err.Error())
	}
	if err := h.mempool.Add(tx, time.Now()); err != nil {
		return errResponse(req.ID, CodeInternalError, err.Error())
	}
	if h.broadcast != nil {
		h.broadcast.BroadcastTx(tx)
	}
	return okResponse(req.ID, map[string]string{"tx_id": tx.ID().String()})
}

func (h *Handler) submitBlock(req Request) Response {
	var params struct {
		Bytes string `json:"bytes"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "params: "+err.Error())
	}
	raw, err := hex.DecodeString(params.Bytes)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, "bytes: "+err.Error())
	}
	block := &chain.Block{}
	if err := block.DecodeCanonical(codec.NewReader(raw)); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "decode: "+err.Error())
	}
	if err := h.accept.AcceptBlock(block); err != nil {
		return errResponse(req.ID, CodeInvalidParams, "rejected: "+err.Error())
	}
	if h.broadcast != nil {
		h.broadcast.BroadcastBlock(block)
	}
	return okResponse(req.ID, "accepted")
}

func decodeHashInto(s string, dst []byte) error {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}
