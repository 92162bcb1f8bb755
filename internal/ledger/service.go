// Package ledger orchestrates payment-intent creation and settlement for
// the gateway.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"paygate/internal/common/database"
	"paygate/internal/common/events"
	"paygate/internal/common/sequence"
	"paygate/internal/ledger/domain"
	"paygate/internal/merchant"
)

// Store persists payment intents and the gateway configuration.
type Store interface {
	// CreateIntent stores a new pending intent and bumps the gateway
	// payment counter atomically. It returns domain.ErrDuplicatePayment
	// when an intent with the same id already exists.
	CreateIntent(ctx context.Context, intent *domain.PaymentIntent) error
	GetIntent(ctx context.Context, id string) (*domain.PaymentIntent, error)

	// SettleIntent transitions a pending intent to completed and accrues
	// the merchant's totals as one atomic unit. It returns
	// database.ErrNotFound for an unknown id and
	// domain.ErrPaymentAlreadyCompleted for a terminal intent.
	SettleIntent(ctx context.Context, id, customer string, seq int64) (*domain.PaymentIntent, error)

	Config(ctx context.Context) (domain.GatewayConfig, error)
	SetFeeBasisPoints(ctx context.Context, bps int64) error
}

// Emitter dispatches lifecycle events. Emission is fire-and-forget: the
// payment outcome never depends on it.
type Emitter interface {
	Emit(eventType events.Type, correlationID string, data any)
}

// Service exposes the payment ledger operations.
type Service struct {
	mu        sync.RWMutex
	store     Store
	merchants *merchant.Registry
	seq       sequence.Sequence
	emitter   Emitter
	admin     string
	logger    *slog.Logger
}

// NewService creates a payment ledger service. admin is the only principal
// allowed to change the fee rate.
func NewService(store Store, merchants *merchant.Registry, seq sequence.Sequence, emitter Emitter, admin string, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		merchants: merchants,
		seq:       seq,
		emitter:   emitter,
		admin:     admin,
		logger:    logger,
	}
}

// RegisterMerchant registers the caller as a merchant, resetting any
// previously accrued totals.
func (s *Service) RegisterMerchant(ctx context.Context, caller string) (*merchant.Merchant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.merchants.Register(ctx, caller)
	if err != nil {
		return nil, err
	}

	s.emitter.Emit(events.TypeMerchantRegistered, m.ID, events.MerchantRegisteredData{
		Merchant:  m.ID,
		CreatedAt: m.CreatedAt,
	})

	return m, nil
}

// CreatePaymentIntent records a pending payment against a registered
// merchant. The fee is computed from the rate in force at creation time and
// frozen on the intent.
func (s *Service) CreatePaymentIntent(ctx context.Context, id, merchantID string, amount int64, description string) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	registered, err := s.merchants.IsRegistered(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("checking merchant: %w", err)
	}
	if !registered {
		return nil, domain.ErrInvalidMerchant
	}

	cfg, err := s.store.Config(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	fee := domain.Fee(amount, cfg.FeeBasisPoints)
	intent, err := domain.NewPaymentIntent(id, merchantID, amount, fee, s.seq.Next(), description)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateIntent(ctx, intent); err != nil {
		return nil, err
	}

	s.emitter.Emit(events.TypeIntentCreated, intent.ID, events.IntentCreatedData{
		PaymentID: intent.ID,
		Merchant:  intent.Merchant,
		Amount:    intent.Amount,
		Fee:       intent.Fee,
	})

	s.logger.Info("payment intent created",
		"payment_id", intent.ID,
		"merchant_id", intent.Merchant,
		"amount", intent.Amount,
		"fee", intent.Fee,
	)

	return &domain.Receipt{
		PaymentID: intent.ID,
		Amount:    intent.Amount,
		Fee:       intent.Fee,
		Merchant:  intent.Merchant,
	}, nil
}

// ProcessPayment settles a pending intent on behalf of a customer. The
// intent transition and the merchant's running totals commit atomically;
// a second attempt against the same intent fails with
// domain.ErrPaymentAlreadyCompleted.
func (s *Service) ProcessPayment(ctx context.Context, paymentID, customer string) (*domain.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, err := s.store.SettleIntent(ctx, paymentID, customer, s.seq.Next())
	if err != nil {
		if database.IsNotFound(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}

	s.emitter.Emit(events.TypePaymentCompleted, intent.ID, events.PaymentCompletedData{
		PaymentID: intent.ID,
		Merchant:  intent.Merchant,
		Customer:  intent.Customer,
		Amount:    intent.Amount,
		Fee:       intent.Fee,
	})

	s.logger.Info("payment completed",
		"payment_id", intent.ID,
		"merchant_id", intent.Merchant,
		"customer", customer,
		"amount", intent.Amount,
	)

	return intent, nil
}

// UpdateFeeRate changes the gateway fee rate. Only the configured admin
// principal may call it; the new rate applies to intents created afterwards
// and never touches existing ones.
func (s *Service) UpdateFeeRate(ctx context.Context, caller string, bps int64) error {
	if caller != s.admin {
		return domain.ErrNotAuthorized
	}
	if bps < 0 || bps > domain.MaxFeeBasisPoints {
		return fmt.Errorf("fee rate out of range: %d", bps)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.SetFeeBasisPoints(ctx, bps); err != nil {
		return err
	}

	s.logger.Info("fee rate updated", "fee_basis_points", bps, "caller", caller)
	return nil
}

// GetPayment retrieves a payment intent by id.
func (s *Service) GetPayment(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, err := s.store.GetIntent(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, err
	}
	return intent, nil
}

// GetMerchant retrieves a merchant record.
func (s *Service) GetMerchant(ctx context.Context, id string) (*merchant.Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, err := s.merchants.Get(ctx, id)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, domain.ErrInvalidMerchant
		}
		return nil, err
	}
	return m, nil
}

// IsMerchantRegistered reports whether a merchant is registered and active.
func (s *Service) IsMerchantRegistered(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.merchants.IsRegistered(ctx, id)
}

// Stats is a snapshot of the gateway configuration counters.
type Stats struct {
	FeeBasisPoints int64 `json:"fee_basis_points"`
	PaymentCounter int64 `json:"payment_counter"`
}

// Stats returns the current gateway statistics.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, err := s.store.Config(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		FeeBasisPoints: cfg.FeeBasisPoints,
		PaymentCounter: cfg.PaymentCounter,
	}, nil
}
