// Package events defines the gateway's outbound event envelope and the
// dispatcher that delivers events to an observability sink without ever
// blocking or failing the operation that produced them.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Type identifies the type of gateway event.
type Type string

const (
	TypeMerchantRegistered Type = "merchant.registered"
	TypeIntentCreated      Type = "payment.intent.created"
	TypePaymentCompleted   Type = "payment.completed"
)

// Envelope wraps all events with common metadata.
type Envelope struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Data          json.RawMessage `json:"data"`
}

// NewEnvelope creates a new event envelope.
func NewEnvelope(eventType Type, correlationID string, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		ID:            ulid.Make().String(),
		Type:          eventType,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
		Data:          jsonData,
	}, nil
}

// DecodeData decodes the event payload into a struct.
func (e *Envelope) DecodeData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher delivers envelopes to a message broker.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope) error
}

// NopPublisher discards events. Used when no sink is configured.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, *Envelope) error { return nil }

// MerchantRegisteredData is the payload for merchant.registered events.
type MerchantRegisteredData struct {
	Merchant  string `json:"merchant"`
	CreatedAt int64  `json:"created_at"`
}

// IntentCreatedData is the payload for payment.intent.created events.
type IntentCreatedData struct {
	PaymentID string `json:"payment_id"`
	Merchant  string `json:"merchant"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
}

// PaymentCompletedData is the payload for payment.completed events,
// published once per successful settlement.
type PaymentCompletedData struct {
	PaymentID string `json:"payment_id"`
	Merchant  string `json:"merchant"`
	Customer  string `json:"customer"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
}
