// Package merchant owns merchant identity and lifecycle. Merchants are keyed
// by the caller's principal, never deleted, and their accrued totals are
// mutated only when the payment ledger settles an intent against them.
package merchant

import (
	"context"
	"fmt"
	"log/slog"

	"paygate/internal/common/database"
	"paygate/internal/common/sequence"
)

// Merchant represents a registered merchant.
type Merchant struct {
	ID            string `json:"id"`
	IsActive      bool   `json:"is_active"`
	TotalPayments int64  `json:"total_payments"`
	TotalVolume   int64  `json:"total_volume"`
	CreatedAt     int64  `json:"created_at"`
}

// Store persists merchants.
type Store interface {
	// UpsertMerchant inserts or overwrites a merchant record.
	UpsertMerchant(ctx context.Context, m *Merchant) error
	// GetMerchant retrieves a merchant by id. Absent merchants yield
	// database.ErrNotFound.
	GetMerchant(ctx context.Context, id string) (*Merchant, error)
	// RecordSettlement increments total_payments by one and total_volume by
	// amount, atomically. A missing merchant is a no-op.
	RecordSettlement(ctx context.Context, id string, amount int64) error
}

// Registry provides merchant operations.
type Registry struct {
	store  Store
	seq    sequence.Sequence
	logger *slog.Logger
}

// NewRegistry creates a new merchant registry.
func NewRegistry(store Store, seq sequence.Sequence, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		seq:    seq,
		logger: logger,
	}
}

// Register inserts or overwrites the caller's merchant record. Repeated
// registration always leaves the caller active with counters reset to zero,
// discarding previously accrued history.
func (r *Registry) Register(ctx context.Context, caller string) (*Merchant, error) {
	m := &Merchant{
		ID:        caller,
		IsActive:  true,
		CreatedAt: r.seq.Next(),
	}

	if err := r.store.UpsertMerchant(ctx, m); err != nil {
		return nil, fmt.Errorf("registering merchant: %w", err)
	}

	r.logger.Info("merchant registered",
		"merchant", m.ID,
		"created_at", m.CreatedAt,
	)

	return m, nil
}

// IsRegistered reports whether a merchant record exists and is active.
func (r *Registry) IsRegistered(ctx context.Context, id string) (bool, error) {
	m, err := r.store.GetMerchant(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return m.IsActive, nil
}

// Get retrieves a merchant by id. Absent merchants yield database.ErrNotFound.
func (r *Registry) Get(ctx context.Context, id string) (*Merchant, error) {
	return r.store.GetMerchant(ctx, id)
}

// RecordSettlement attributes a settled amount to a merchant's totals. The
// ledger's settle path does not call it: there the accrual happens inside
// the store's SettleIntent so the intent transition and the counters commit
// as one atomic unit. This entry point covers direct adjustments made
// outside a settlement. A missing merchant should be unreachable, since
// intent creation checks the merchant exists; it is tolerated as a no-op
// but logged as an invariant violation.
func (r *Registry) RecordSettlement(ctx context.Context, id string, amount int64) error {
	if _, err := r.store.GetMerchant(ctx, id); err != nil {
		if database.IsNotFound(err) {
			r.logger.Error("settlement for unknown merchant",
				"merchant", id,
				"amount", amount,
			)
			return nil
		}
		return err
	}

	return r.store.RecordSettlement(ctx, id, amount)
}
