package amqp

import (
	"encoding/json"
	"time"
)

// Ledger event kinds.
const (
	EventTransactionCreated = "transaction.created"
	EventTransactionUpdated = "transaction.updated"
	EventTransactionDeleted = "transaction.deleted"
	EventTransferCreated    = "transfer.created"
	EventTransferUpdated    = "transfer.updated"
	EventTransferDeleted    = "transfer.deleted"
	EventSplitsReplaced     = "splits.replaced"
	EventRecurringGenerated = "recurring.generated"
	EventQuoteSelected      = "quote.selected"
	EventEntityChanged      = "entity.changed"
)

// LedgerEvent announces a committed ledger mutation. It carries ids only;
// consumers read the rows they care about from the store.
type LedgerEvent struct {
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id,omitempty"`
	IDs        []string  `json:"ids"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewLedgerEvent creates an event stamped with the current time
func NewLedgerEvent(kind, userID string, ids ...string) *LedgerEvent {
	return &LedgerEvent{
		Kind:       kind,
		UserID:     userID,
		IDs:        ids,
		OccurredAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventFromJSON creates an event from JSON bytes
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var msg LedgerEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecurringRunRequest asks the recurring worker to generate the due
// transactions of a user (every user when UserID is empty) up to AsOf.
type RecurringRunRequest struct {
	UserID      string    `json:"user_id,omitempty"`
	AsOf        string    `json:"as_of"` // YYYY-MM-DD
	RequestedAt time.Time `json:"requested_at"`
}

func NewRecurringRunRequest(userID, asOf string) *RecurringRunRequest {
	return &RecurringRunRequest{
		UserID:      userID,
		AsOf:        asOf,
		RequestedAt: time.Now().UTC(),
	}
}

func (m *RecurringRunRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func RecurringRunRequestFromJSON(data []byte) (*RecurringRunRequest, error) {
	var msg RecurringRunRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
