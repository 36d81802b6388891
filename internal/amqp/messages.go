package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a ledger event. It doubles as the message type header.
type EventType string

const (
	// EventBalanceChanged is published after any write that moves the balance.
	EventBalanceChanged EventType = "balance.changed"
	// EventLedgerSyncRequested wakes the reconciler for a queued row.
	EventLedgerSyncRequested EventType = "ledger.sync_requested"
	// EventTransactionRecorded and EventTransactionRemoved drive the ledger mirror.
	EventTransactionRecorded EventType = "transaction.recorded"
	EventTransactionRemoved  EventType = "transaction.removed"
)

func (t EventType) Valid() bool {
	switch t {
	case EventBalanceChanged, EventLedgerSyncRequested, EventTransactionRecorded, EventTransactionRemoved:
		return true
	}
	return false
}

// LedgerEvent is a lightweight notification. It carries identifiers only; the
// consumer reads current state from the store.
type LedgerEvent struct {
	Type          EventType `json:"type"`
	UserID        string    `json:"user_id"`
	Operation     string    `json:"operation,omitempty"`
	AnchorKind    string    `json:"anchor_kind,omitempty"`
	AnchorID      string    `json:"anchor_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	SyncID        int64     `json:"sync_id,omitempty"`
	DeltaCents    int64     `json:"delta_cents,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time.
func NewLedgerEvent(typ EventType, userID string) *LedgerEvent {
	return &LedgerEvent{
		Type:      typ,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes an event and rejects unknown types.
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Type.Valid() {
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.UserID == "" {
		return nil, fmt.Errorf("event %s without user_id", e.Type)
	}
	return &e, nil
}
