package amqp

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventTransactionCreated EventType = "ledger.transaction.created"
	EventTransactionUpdated EventType = "ledger.transaction.updated"
	EventTransactionDeleted EventType = "ledger.transaction.deleted"
	// EventSnapshotSweep reports a finished checkpoint sweep. It names no
	// accounts and carries the sweep counts.
	EventSnapshotSweep EventType = "ledger.snapshot.sweep"
)

// LedgerEvent announces a committed change to the ledger. It carries ids only;
// consumers read current state from the store.
type LedgerEvent struct {
	Type           EventType `json:"type"`
	UserID         string    `json:"user_id,omitempty"`
	TransactionIDs []int64   `json:"transaction_ids,omitempty"`
	AccountIDs     []int64   `json:"account_ids,omitempty"`
	CategoryIDs    []int64   `json:"category_ids,omitempty"`
	Processed      int       `json:"processed,omitempty"`
	Failed         int       `json:"failed,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func NewLedgerEvent(eventType EventType, userID string) *LedgerEvent {
	return &LedgerEvent{
		Type:      eventType,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
