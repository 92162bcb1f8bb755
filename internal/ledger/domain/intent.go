// Package domain contains the payment ledger's core types: payment intents,
// their state machine, fee math and the gateway configuration singleton.
package domain

import "errors"

// Limits on caller-supplied fields.
const (
	MaxPaymentIDLen   = 64
	MaxDescriptionLen = 256
)

// MaxFeeBasisPoints is the largest configurable fee rate (100%).
const MaxFeeBasisPoints = 10000

// Status represents the status of a payment intent.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// PaymentIntent represents a requested payment before and after settlement.
// Customer and CompletedAt are set if and only if the intent is completed;
// Fee is fixed at creation and never recomputed. Timestamps are logical
// sequence heights, not wall-clock times.
type PaymentIntent struct {
	ID          string `json:"id"`
	Merchant    string `json:"merchant"`
	Amount      int64  `json:"amount"`
	Fee         int64  `json:"fee"`
	Status      Status `json:"status"`
	Customer    string `json:"customer,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt *int64 `json:"completed_at,omitempty"`
}

// NewPaymentIntent creates a pending payment intent.
func NewPaymentIntent(id, merchantID string, amount, fee, seq int64, description string) (*PaymentIntent, error) {
	if id == "" {
		return nil, errors.New("payment id is required")
	}
	if len(id) > MaxPaymentIDLen {
		return nil, errors.New("payment id too long")
	}
	if merchantID == "" {
		return nil, errors.New("merchant is required")
	}
	if amount <= 0 {
		return nil, ErrInsufficientAmount
	}
	if fee < 0 || fee > amount {
		return nil, errors.New("fee out of range")
	}
	if len(description) > MaxDescriptionLen {
		return nil, errors.New("description too long")
	}

	return &PaymentIntent{
		ID:          id,
		Merchant:    merchantID,
		Amount:      amount,
		Fee:         fee,
		Status:      StatusPending,
		Description: description,
		CreatedAt:   seq,
	}, nil
}

// MarkCompleted transitions the intent from pending to completed. Completed
// is terminal: the transition succeeds at most once per intent.
func (i *PaymentIntent) MarkCompleted(customer string, seq int64) error {
	if i.Status != StatusPending {
		return ErrPaymentAlreadyCompleted
	}
	i.Status = StatusCompleted
	i.Customer = customer
	i.CompletedAt = &seq
	return nil
}

// IsTerminal returns true if the intent can no longer transition.
func (i *PaymentIntent) IsTerminal() bool {
	return i.Status == StatusCompleted
}

// Fee computes the platform fee for an amount at the given basis-point rate,
// truncating toward zero. For any amount A >= 0 and rate R <= 10000 the
// result is in [0, A]. The quotient/remainder split avoids overflowing the
// intermediate product for amounts near the int64 ceiling: for A = q*10000+r,
// floor(A*R/10000) = q*R + floor(r*R/10000) exactly.
func Fee(amount, basisPoints int64) int64 {
	return amount/10000*basisPoints + amount%10000*basisPoints/10000
}

// Receipt is returned to the merchant on intent creation.
type Receipt struct {
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Fee       int64  `json:"fee"`
	Merchant  string `json:"merchant"`
}

// GatewayConfig is the process-wide gateway configuration singleton.
// PaymentCounter counts intents ever created; it is diagnostic only and
// never used as an identity source.
type GatewayConfig struct {
	FeeBasisPoints int64 `json:"fee_basis_points"`
	PaymentCounter int64 `json:"payment_counter"`
}
