package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, status, retry_count, max_retries, created_at, published_at`

	defaultOutboxBatch = 10
)

// OutboxRepository stores completion events until the worker publishes them.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Insert queues an entry. Call it inside the transaction that records the
// attempt so both commit together.
func (r *OutboxRepository) Insert(ctx context.Context, entry *outbox.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO outbox (`+outboxColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)`,
		entry.ID, entry.AggregateType, entry.AggregateID, entry.EventType, payload,
		string(entry.Status), entry.RetryCount, entry.MaxRetries, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// GetPending locks up to limit pending entries, oldest first. Rows locked by
// another worker are skipped.
func (r *OutboxRepository) GetPending(ctx context.Context, limit int) ([]*outbox.Entry, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+outboxColumns+`
		 FROM outbox WHERE status = 'pending'
		 ORDER BY created_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get pending outbox entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanOutboxEntry)
	if err != nil {
		return nil, fmt.Errorf("scan outbox entries: %w", err)
	}
	return entries, nil
}

// CountPending returns the outbox backlog.
func (r *OutboxRepository) CountPending(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db(ctx).QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status = 'pending'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending outbox entries: %w", err)
	}
	return n, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET status = 'published', published_at = $1 WHERE id = $2`, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// MarkFailed counts a failed publish. The entry stays pending until it runs
// out of retries.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE outbox SET retry_count = retry_count + 1,
		        status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END
		 WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func scanOutboxEntry(row pgx.CollectableRow) (*outbox.Entry, error) {
	e := &outbox.Entry{}
	var payload []byte
	var status string
	if err := row.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload, &status,
		&e.RetryCount, &e.MaxRetries, &e.CreatedAt, &e.PublishedAt); err != nil {
		return nil, err
	}
	e.Status = outbox.Status(status)
	e.Payload = make(map[string]any)
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &e.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
		}
	}
	return e, nil
}
