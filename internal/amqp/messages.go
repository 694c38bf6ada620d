package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType names a ledger change carried on the exchange.
type EventType string

const (
	EventLoanCreated     EventType = "loan.created"
	EventPaymentRecorded EventType = "payment.recorded"
)

// LedgerEventMessage announces a newly stored loan or payment. It carries
// only identifiers; consumers read the record back from the database.
type LedgerEventMessage struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLoanCreatedMessage(loanID, userID string) *LedgerEventMessage {
	return newLedgerEvent(EventLoanCreated, loanID, userID)
}

func NewPaymentRecordedMessage(paymentID, userID string) *LedgerEventMessage {
	return newLedgerEvent(EventPaymentRecorded, paymentID, userID)
}

func newLedgerEvent(t EventType, id, userID string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Type:      t,
		ID:        id,
		UserID:    userID,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEventMessage) Validate() error {
	switch m.Type {
	case EventLoanCreated, EventPaymentRecorded:
	default:
		return fmt.Errorf("unknown event type %q", m.Type)
	}
	if m.ID == "" {
		return fmt.Errorf("%s event without id", m.Type)
	}
	return nil
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes and validates a message body.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
