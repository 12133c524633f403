package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	audit "stagegate/pkg/platform/audit"
	txcontext "stagegate/pkg/platform/tx"
)

// Store implements audit.Sink over the transition_audit table.
// Inserts are idempotent on record ID so redelivered records are harmless.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store. The table is created by the
// lifecycle store migration.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts a record, ignoring duplicates.
func (s *Store) Append(ctx context.Context, record audit.TransitionRecord) error {
	if record.ID == "" {
		return fmt.Errorf("transition record requires ID")
	}
	query := `
		INSERT INTO transition_audit (
			id, entity_id, domain, from_state, to_state, timestamp,
			allowed, reason, triggered_by, approver, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID,
		record.EntityID,
		string(record.Domain),
		record.From,
		record.To,
		ts,
		record.Allowed,
		record.Reason,
		record.TriggeredBy,
		record.Approver,
		record.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert transition audit: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT id, entity_id, domain, from_state, to_state, timestamp,
		   allowed, reason, triggered_by, approver, request_id
	FROM transition_audit
`

// ListByEntity returns records for one entity, newest first.
func (s *Store) ListByEntity(ctx context.Context, entityID string) ([]audit.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		WHERE entity_id = $1
		ORDER BY timestamp DESC
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("query transition audit: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListRecent returns the limit most recent records.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.TransitionRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+`
		ORDER BY timestamp DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query transition audit: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]audit.TransitionRecord, error) {
	var records []audit.TransitionRecord
	for rows.Next() {
		var (
			r      audit.TransitionRecord
			domain string
		)
		if err := rows.Scan(
			&r.ID,
			&r.EntityID,
			&domain,
			&r.From,
			&r.To,
			&r.Timestamp,
			&r.Allowed,
			&r.Reason,
			&r.TriggeredBy,
			&r.Approver,
			&r.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan transition audit: %w", err)
		}
		r.Domain = audit.Domain(domain)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transition audit: %w", err)
	}
	return records, nil
}
