package audit

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// PGRepository persists and queries decision events in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PostgreSQL-backed repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Write inserts one event. Replayed events (at-least-once delivery from
// the queue) hit the primary key and are treated as already written.
func (r *PGRepository) Write(ctx context.Context, event Event) error {
	if r == nil || r.pool == nil {
		return errors.New("audit: repository not configured")
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO authz_events (id, occurred_at, path, method, identity_id, role, outcome, reason, detail)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)`,
		event.ID, event.At, event.Path, event.Method, event.IdentityID, event.Role,
		event.Outcome, event.Reason, event.Detail)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil
		}
		return err
	}
	return nil
}

// Timeline returns events matching the filters, newest first. Limit is
// expected to be pageSize+1 so the caller can detect a next page.
func (r *PGRepository) Timeline(ctx context.Context, filters TimelineFilters, offset, limit int) ([]Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, occurred_at, path, method, COALESCE(identity_id, ''), COALESCE(role, ''), outcome, reason, detail
		 FROM authz_events
		 WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		   AND ($2::timestamptz IS NULL OR occurred_at < $2)
		   AND ($3 = '' OR identity_id = $3)
		   AND ($4 = '' OR outcome = $4)
		   AND ($5 = '' OR reason = $5)
		 ORDER BY occurred_at DESC
		 OFFSET $6 LIMIT $7`,
		nullableTime(filters.From), nullableTime(filters.To),
		filters.Identity, filters.Outcome, filters.Reason, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.At, &e.Path, &e.Method, &e.IdentityID, &e.Role, &e.Outcome, &e.Reason, &e.Detail); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Purge deletes events older than the cutoff and reports how many went.
func (r *PGRepository) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM authz_events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ Sink = (*PGRepository)(nil)
