package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/checkout/internal/domain/cart"
	"github.com/cassiomorais/checkout/internal/domain/checkout"
	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const attemptColumns = `id, cart_id, session_id, provider, status, error, started_at, finished_at`

// AttemptRepository stores the payment attempt audit trail.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func (r *AttemptRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *AttemptRepository) Create(ctx context.Context, a *checkout.Attempt) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CartID, a.SessionID, string(a.Provider), string(a.Status), a.Error, a.StartedAt, a.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

// Update writes the attempt's current status. The row is created if the
// initial insert was lost.
func (r *AttemptRepository) Update(ctx context.Context, a *checkout.Attempt) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO payment_attempts (`+attemptColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET status = EXCLUDED.status, error = EXCLUDED.error, finished_at = EXCLUDED.finished_at`,
		a.ID, a.CartID, a.SessionID, string(a.Provider), string(a.Status), a.Error, a.StartedAt, a.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment attempt: %w", err)
	}
	return nil
}

func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*checkout.Attempt, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id)
	a, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get payment attempt: %w", err)
	}
	return a, nil
}

// ListByCart returns a cart's attempts, newest first.
func (r *AttemptRepository) ListByCart(ctx context.Context, cartID string, limit int) ([]*checkout.Attempt, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts
		 WHERE cart_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2`, cartID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*checkout.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

func scanAttempt(row pgx.Row) (*checkout.Attempt, error) {
	a := &checkout.Attempt{}
	var provider, status string
	if err := row.Scan(&a.ID, &a.CartID, &a.SessionID, &provider, &status, &a.Error, &a.StartedAt, &a.FinishedAt); err != nil {
		return nil, err
	}
	a.Provider = cart.ProviderID(provider)
	a.Status = checkout.AttemptStatus(status)
	return a, nil
}
