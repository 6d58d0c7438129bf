package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// PostgresSink appends events to bazaar.audit_log.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a Postgres-backed audit sink.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Emit inserts one audit row. Rows are append-only and never updated.
func (s *PostgresSink) Emit(ctx context.Context, e Event) error {
	if s == nil || s.pool == nil {
		return nil
	}

	var metaVal *string
	if len(e.Metadata) > 0 {
		if b, err := json.Marshal(e.Metadata); err == nil {
			v := string(b)
			metaVal = &v
		}
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO bazaar.audit_log (
			id, action, actor_id, actor_email,
			resource, resource_id, outcome, detail, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
	`,
		ulid.Make().String(),
		e.Action,
		nullIfEmpty(e.ActorID),
		nullIfEmpty(e.ActorEmail),
		nullIfEmpty(e.Resource),
		nullIfEmpty(e.ResourceID),
		string(e.Outcome),
		nullIfEmpty(e.Detail),
		metaVal,
		e.CreatedAt,
	)
	return err
}

// CountByActionSince returns how many events with the given action were
// recorded at or after the cutoff, optionally scoped by a metadata key/value.
// Used by login throttling (count-by-window).
func (s *PostgresSink) CountByActionSince(ctx context.Context, action string, metaKey, metaValue string, since time.Time) (int, error) {
	if s == nil || s.pool == nil {
		return 0, nil
	}

	var n int
	if metaKey == "" {
		err := s.pool.QueryRow(ctx, `
			SELECT count(*)
			FROM bazaar.audit_log
			WHERE action = $1 AND created_at >= $2
		`, action, since).Scan(&n)
		return n, err
	}

	err := s.pool.QueryRow(ctx, `
		SELECT count(*)
		FROM bazaar.audit_log
		WHERE action = $1
		  AND created_at >= $2
		  AND metadata ->> $3 = $4
	`, action, since, metaKey, metaValue).Scan(&n)
	return n, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
