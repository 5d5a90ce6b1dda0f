// Package explorer maintains an optional, durable audit-history read-model
// in Postgres, adapted from the reference implementation's agent explorer
// store. It is populated best-effort after each audit and never gates audit
// completion: a write failure here is logged and dropped, not surfaced to
// the caller.
package explorer

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a Postgres-backed audit history index.
type Store struct {
	db *pgxpool.Pool
}

// Open connects to databaseURL and ensures the audits table exists.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("explorer: connect: %w", err)
	}
	s := &Store{db: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audits (
			audit_id       TEXT PRIMARY KEY,
			chain_id       BIGINT NOT NULL,
			agent_id       TEXT NOT NULL,
			status         TEXT NOT NULL,
			overall_score  INT,
			report_cid     TEXT,
			created_at     TIMESTAMPTZ NOT NULL,
			completed_at   TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS audits_agent_idx ON audits (chain_id, agent_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("explorer: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.db.Close()
}

// AuditRecord is one row of the audit-history read-model.
type AuditRecord struct {
	AuditID      string     `json:"auditId"`
	ChainID      uint64     `json:"chainId"`
	AgentID      string     `json:"agentId"`
	Status       string     `json:"status"`
	OverallScore *int       `json:"overallScore,omitempty"`
	ReportCID    string     `json:"reportCid,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
}

// RecordAudit upserts a completed or failed audit's summary. Callers should
// treat a non-nil error as advisory only.
func (s *Store) RecordAudit(ctx context.Context, rec AuditRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audits (audit_id, chain_id, agent_id, status, overall_score, report_cid, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (audit_id) DO UPDATE SET
			status = EXCLUDED.status,
			overall_score = EXCLUDED.overall_score,
			report_cid = EXCLUDED.report_cid,
			completed_at = EXCLUDED.completed_at
	`, rec.AuditID, rec.ChainID, rec.AgentID, rec.Status, rec.OverallScore, rec.ReportCID, rec.CreatedAt, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("explorer: record audit: %w", err)
	}
	return nil
}

// ListByAgent returns the durable audit history for (chainID, agentID),
// newest first.
func (s *Store) ListByAgent(ctx context.Context, chainID uint64, agentID string, limit, offset int) ([]AuditRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT audit_id, chain_id, agent_id, status, overall_score, report_cid, created_at, completed_at
		FROM audits WHERE chain_id = $1 AND agent_id = $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4
	`, chainID, agentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("explorer: list by agent: %w", err)
	}
	defer rows.Close()

	var out []AuditRecord
	for rows.Next() {
		var rec AuditRecord
		if err := rows.Scan(&rec.AuditID, &rec.ChainID, &rec.AgentID, &rec.Status, &rec.OverallScore, &rec.ReportCID, &rec.CreatedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("explorer: scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
