package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit   EventType = "block_commit"
	EventForkRewind    EventType = "fork_rewind"
	EventTxApplied     EventType = "tx_applied"
	EventTxRejected    EventType = "tx_rejected"
	EventAssetIssued   EventType = "asset_issued"
	EventOrderPlaced   EventType = "order_placed"
	EventOrderFilled   EventType = "order_filled"
	EventMarginCall    EventType = "margin_call"
	EventCollateralTop EventType = "collateral_topped_up"
	EventFeedPublished EventType = "feed_published"
	EventDelegatePay   EventType = "delegate_pay_withdrawn"
)

// Event carries a typed payload emitted after a state change.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the node or halt block production.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
