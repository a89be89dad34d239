// Package db is the optional Postgres audit store. It records scoring runs,
// clustering runs, and sanction events so operators can reconstruct how the
// graph's analytical state came to be. The engine runs fine without it.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside runtime images that never see the source tree.
//
//go:embed schema.sql
var schemaSQL string

type AuditStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx.
func Connect(ctx context.Context, connStr string) (*AuditStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	log.Println("[db] connected to PostgreSQL audit store")
	return &AuditStore{pool: pool}, nil
}

func (s *AuditStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *AuditStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("[db] audit schema initialized")
	return nil
}

func (s *AuditStore) RecordScoringRun(ctx context.Context, scored, anomalies int, contamination float64) error {
	sql := `
		INSERT INTO scoring_runs (id, scored_count, anomaly_count, contamination)
		VALUES ($1, $2, $3, $4);
	`
	_, err := s.pool.Exec(ctx, sql, uuid.New(), scored, anomalies, contamination)
	return err
}

func (s *AuditStore) RecordClusteringRun(ctx context.Context, assigned, batchSize int) error {
	sql := `
		INSERT INTO clustering_runs (id, assigned_count, batch_size)
		VALUES ($1, $2, $3);
	`
	_, err := s.pool.Exec(ctx, sql, uuid.New(), assigned, batchSize)
	return err
}

func (s *AuditStore) RecordSanctionEvent(ctx context.Context, supplied, matched int, source string) error {
	sql := `
		INSERT INTO sanction_events (id, supplied_count, matched_count, source)
		VALUES ($1, $2, $3, $4);
	`
	_, err := s.pool.Exec(ctx, sql, uuid.New(), supplied, matched, source)
	return err
}

// RunRecord is one audit entry, unified across the three run tables.
type RunRecord struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// RecentRuns returns the newest audit entries across all run kinds.
func (s *AuditStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	sql := `
		SELECT id, kind, detail, created_at FROM (
			SELECT id, 'scoring' AS kind,
			       jsonb_build_object(
			           'scoredCount', scored_count,
			           'anomalyCount', anomaly_count,
			           'contamination', contamination) AS detail,
			       created_at
			FROM scoring_runs
			UNION ALL
			SELECT id, 'clustering',
			       jsonb_build_object(
			           'assignedCount', assigned_count,
			           'batchSize', batch_size),
			       created_at
			FROM clustering_runs
			UNION ALL
			SELECT id, 'sanction',
			       jsonb_build_object(
			           'suppliedCount', supplied_count,
			           'matchedCount', matched_count,
			           'source', source),
			       created_at
			FROM sanction_events
		) runs
		ORDER BY created_at DESC
		LIMIT $1;
	`
	rows, err := s.pool.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var id uuid.UUID
		if err := rows.Scan(&id, &r.Kind, &r.Detail, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ID = id.String()
		out = append(out, r)
	}
	return out, rows.Err()
}
