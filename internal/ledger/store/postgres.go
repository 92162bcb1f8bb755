package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paygate/internal/common/database"
	"paygate/internal/ledger/domain"
	"paygate/internal/merchant"
)

// Postgres is the durable storage backend. Multi-row operations run inside
// a single transaction so the payment counter, the intent row and the
// merchant totals always move together.
type Postgres struct {
	db *database.DB
}

// NewPostgres creates a store backed by the given connection pool.
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

// UpsertMerchant inserts a merchant record, or resets an existing one to the
// incoming state. Re-registration deliberately overwrites the counters.
func (s *Postgres) UpsertMerchant(ctx context.Context, m *merchant.Merchant) error {
	query := `
		INSERT INTO merchants (id, is_active, total_payments, total_volume, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			is_active      = EXCLUDED.is_active,
			total_payments = EXCLUDED.total_payments,
			total_volume   = EXCLUDED.total_volume,
			created_at     = EXCLUDED.created_at`

	if _, err := s.db.Exec(ctx, query, m.ID, m.IsActive, m.TotalPayments, m.TotalVolume, m.CreatedAt); err != nil {
		return fmt.Errorf("upserting merchant: %w", err)
	}
	return nil
}

// GetMerchant retrieves a merchant by id.
func (s *Postgres) GetMerchant(ctx context.Context, id string) (*merchant.Merchant, error) {
	query := `
		SELECT id, is_active, total_payments, total_volume, created_at
		FROM merchants
		WHERE id = $1`

	var m merchant.Merchant
	err := s.db.QueryRow(ctx, query, id).Scan(&m.ID, &m.IsActive, &m.TotalPayments, &m.TotalVolume, &m.CreatedAt)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("getting merchant: %w", err)
	}
	return &m, nil
}

// RecordSettlement accrues a settled amount onto a merchant's totals.
func (s *Postgres) RecordSettlement(ctx context.Context, id string, amount int64) error {
	query := `
		UPDATE merchants
		SET total_payments = total_payments + 1,
		    total_volume   = total_volume + $2
		WHERE id = $1`

	if _, err := s.db.Exec(ctx, query, id, amount); err != nil {
		return fmt.Errorf("recording settlement: %w", err)
	}
	return nil
}

// CreateIntent inserts a pending intent and bumps the gateway payment counter
// in one transaction. A duplicate payment id maps to ErrDuplicatePayment.
func (s *Postgres) CreateIntent(ctx context.Context, intent *domain.PaymentIntent) error {
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO payment_intents
				(id, merchant_id, amount, fee, status, customer, description, created_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		_, err := tx.Exec(ctx, query,
			intent.ID, intent.Merchant, intent.Amount, intent.Fee, intent.Status,
			intent.Customer, intent.Description, intent.CreatedAt, intent.CompletedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return domain.ErrDuplicatePayment
			}
			// Merchant row vanished between the registration check and the
			// insert; surface it as the same outcome the check would have.
			if database.IsForeignKeyViolation(err) {
				return domain.ErrInvalidMerchant
			}
			return fmt.Errorf("inserting intent: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE gateway_config SET payment_counter = payment_counter + 1 WHERE id = 1`); err != nil {
			return fmt.Errorf("bumping payment counter: %w", err)
		}
		return nil
	})
}

// GetIntent retrieves an intent by payment id.
func (s *Postgres) GetIntent(ctx context.Context, id string) (*domain.PaymentIntent, error) {
	query := `
		SELECT id, merchant_id, amount, fee, status, customer, description, created_at, completed_at
		FROM payment_intents
		WHERE id = $1`

	intent, err := scanIntent(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("getting intent: %w", err)
	}
	return intent, nil
}

// SettleIntent transitions a pending intent to completed and accrues the
// merchant's totals in the same transaction. The conditional UPDATE on the
// status column guarantees at most one settlement wins even under concurrent
// attempts against the same row. The transaction runs serializable and is
// retried on serialization failure, since it touches both contended tables.
func (s *Postgres) SettleIntent(ctx context.Context, id, customer string, seq int64) (*domain.PaymentIntent, error) {
	var settled *domain.PaymentIntent

	err := database.Retry(ctx, 3, func() error {
		return s.settleIntentTx(ctx, id, customer, seq, &settled)
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}

func (s *Postgres) settleIntentTx(ctx context.Context, id, customer string, seq int64, settled **domain.PaymentIntent) error {
	return s.db.WithTxOptions(ctx, database.SerializableTxOptions(), func(tx pgx.Tx) error {
		update := `
			UPDATE payment_intents
			SET status = $2, customer = $3, completed_at = $4
			WHERE id = $1 AND status = $5
			RETURNING id, merchant_id, amount, fee, status, customer, description, created_at, completed_at`

		intent, err := scanIntent(tx.QueryRow(ctx, update, id, domain.StatusCompleted, customer, seq, domain.StatusPending))
		if err != nil {
			if database.IsNotFound(err) {
				// Either the intent does not exist or it was already
				// completed; re-read to tell the two apart.
				var status domain.Status
				row := tx.QueryRow(ctx, `SELECT status FROM payment_intents WHERE id = $1`, id)
				if rerr := row.Scan(&status); rerr != nil {
					if database.IsNotFound(rerr) {
						return database.ErrNotFound
					}
					return fmt.Errorf("re-reading intent status: %w", rerr)
				}
				return domain.ErrPaymentAlreadyCompleted
			}
			return fmt.Errorf("settling intent: %w", err)
		}

		accrue := `
			UPDATE merchants
			SET total_payments = total_payments + 1,
			    total_volume   = total_volume + $2
			WHERE id = $1`

		if _, err := tx.Exec(ctx, accrue, intent.Merchant, intent.Amount); err != nil {
			return fmt.Errorf("accruing merchant totals: %w", err)
		}

		*settled = intent
		return nil
	})
}

// Config reads the gateway configuration singleton.
func (s *Postgres) Config(ctx context.Context) (domain.GatewayConfig, error) {
	var cfg domain.GatewayConfig
	err := s.db.QueryRow(ctx, `SELECT fee_basis_points, payment_counter FROM gateway_config WHERE id = 1`).
		Scan(&cfg.FeeBasisPoints, &cfg.PaymentCounter)
	if err != nil {
		return domain.GatewayConfig{}, fmt.Errorf("reading gateway config: %w", err)
	}
	return cfg, nil
}

// SetFeeBasisPoints updates the fee rate for intents created afterwards.
func (s *Postgres) SetFeeBasisPoints(ctx context.Context, bps int64) error {
	if _, err := s.db.Exec(ctx, `UPDATE gateway_config SET fee_basis_points = $1 WHERE id = 1`, bps); err != nil {
		return fmt.Errorf("updating fee rate: %w", err)
	}
	return nil
}

// LastSequence returns the highest logical timestamp recorded across intents
// and merchants, used to seed the in-process sequence counter at boot.
func (s *Postgres) LastSequence(ctx context.Context) (int64, error) {
	query := `
		SELECT GREATEST(
			COALESCE((SELECT MAX(GREATEST(created_at, COALESCE(completed_at, 0))) FROM payment_intents), 0),
			COALESCE((SELECT MAX(created_at) FROM merchants), 0)
		)`

	var last int64
	if err := s.db.QueryRow(ctx, query).Scan(&last); err != nil {
		return 0, fmt.Errorf("reading last sequence: %w", err)
	}
	return last, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := row.Scan(
		&intent.ID, &intent.Merchant, &intent.Amount, &intent.Fee, &intent.Status,
		&intent.Customer, &intent.Description, &intent.CreatedAt, &intent.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}
