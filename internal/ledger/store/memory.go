// Package store provides the gateway's storage backends. Memory is the
// in-process serialized store used for tests and single-node runs; Postgres
// is the durable backend.
package store

import (
	"context"
	"sync"

	"paygate/internal/common/database"
	"paygate/internal/ledger/domain"
	"paygate/internal/merchant"
)

// Memory holds the merchant table, the payment-intent table and the gateway
// config behind a single mutex, so every operation commits as one atomic
// unit and no reader observes a torn write. It implements both the ledger
// store and the merchant store.
type Memory struct {
	mu        sync.RWMutex
	merchants map[string]merchant.Merchant
	intents   map[string]domain.PaymentIntent
	cfg       domain.GatewayConfig
}

// NewMemory creates an empty store with the given initial fee rate.
func NewMemory(feeBasisPoints int64) *Memory {
	return &Memory{
		merchants: make(map[string]merchant.Merchant),
		intents:   make(map[string]domain.PaymentIntent),
		cfg:       domain.GatewayConfig{FeeBasisPoints: feeBasisPoints},
	}
}

// UpsertMerchant inserts or overwrites a merchant record.
func (s *Memory) UpsertMerchant(_ context.Context, m *merchant.Merchant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.merchants[m.ID] = *m
	return nil
}

// GetMerchant retrieves a merchant by id.
func (s *Memory) GetMerchant(_ context.Context, id string) (*merchant.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.merchants[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &m, nil
}

// RecordSettlement accrues a settled amount onto a merchant's totals.
func (s *Memory) RecordSettlement(_ context.Context, id string, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settleMerchantLocked(id, amount)
	return nil
}

// CreateIntent stores a new pending intent and bumps the payment counter.
func (s *Memory) CreateIntent(_ context.Context, intent *domain.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[intent.ID]; exists {
		return domain.ErrDuplicatePayment
	}

	s.intents[intent.ID] = *intent
	s.cfg.PaymentCounter++
	return nil
}

// GetIntent retrieves an intent by payment id.
func (s *Memory) GetIntent(_ context.Context, id string) (*domain.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return &intent, nil
}

// SettleIntent transitions a pending intent to completed and accrues the
// merchant's totals in the same critical section, so the two-table update
// is all-or-nothing. Exactly one settlement attempt per intent can succeed.
func (s *Memory) SettleIntent(_ context.Context, id, customer string, seq int64) (*domain.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[id]
	if !ok {
		return nil, database.ErrNotFound
	}

	if err := intent.MarkCompleted(customer, seq); err != nil {
		return nil, err
	}

	s.intents[id] = intent
	s.settleMerchantLocked(intent.Merchant, intent.Amount)

	return &intent, nil
}

// Config returns a snapshot of the gateway configuration.
func (s *Memory) Config(_ context.Context) (domain.GatewayConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg, nil
}

// SetFeeBasisPoints updates the fee rate for intents created afterwards.
func (s *Memory) SetFeeBasisPoints(_ context.Context, bps int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg.FeeBasisPoints = bps
	return nil
}

// settleMerchantLocked accrues onto a merchant under the held lock. A missing
// merchant is unreachable after the creation-time existence check and is
// tolerated as a no-op.
func (s *Memory) settleMerchantLocked(id string, amount int64) {
	m, ok := s.merchants[id]
	if !ok {
		return
	}
	m.TotalPayments++
	m.TotalVolume += amount
	s.merchants[id] = m
}
