package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/io-m1/ceti/internal/tier"
)

// PostgresStore is an optional Ledger backend for deployments that already
// run Postgres with pgvector and want the ledger to live alongside other
// durable state rather than in a separate SQLite file. Selected when
// DATABASE_URL is set and QDRANT_URL is not.
type PostgresStore struct {
	pool      *pgxpool.Pool
	threshold float64
}

// NewPostgresStore connects to Postgres, registers pgvector types, and
// ensures the ledger_entries table exists.
func NewPostgresStore(ctx context.Context, dsn string, threshold float64) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse postgres DSN: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ledger: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping pool: %w", err)
	}

	store := &PostgresStore{pool: pool, threshold: threshold}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (p *PostgresStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE EXTENSION IF NOT EXISTS vector;
	CREATE TABLE IF NOT EXISTS ledger_entries (
		certification_id TEXT PRIMARY KEY,
		embedding         vector NOT NULL,
		risk_tier         INTEGER NOT NULL,
		response_content  TEXT NOT NULL,
		scope_json        TEXT NOT NULL,
		issued_at         TIMESTAMPTZ NOT NULL,
		ttl_seconds       INTEGER NOT NULL
	);`
	_, err := p.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("ledger: run migrations: %w", err)
	}
	return nil
}

// Lookup uses pgvector's cosine distance operator to find candidates, then
// applies TTL and tier monotonicity in Go (Postgres's own ORDER BY already
// did the expensive part: finding the nearest neighbors).
func (p *PostgresStore) Lookup(ctx context.Context, queryEmbedding []float32, queryTier tier.RiskTier) (*Entry, bool, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT certification_id, risk_tier, response_content, scope_json, issued_at, ttl_seconds,
		       embedding <=> $1 AS distance
		FROM ledger_entries
		ORDER BY distance ASC
		LIMIT 10`, pgvector.NewVector(queryEmbedding))
	if err != nil {
		return nil, false, fmt.Errorf("ledger: query entries: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var (
			certID, content, scopeJSON string
			riskTierInt, ttlSeconds    int
			issuedAt                   time.Time
			distance                   float64
		)
		if err := rows.Scan(&certID, &riskTierInt, &content, &scopeJSON, &issuedAt, &ttlSeconds, &distance); err != nil {
			return nil, false, fmt.Errorf("ledger: scan entry: %w", err)
		}
		candidate := Entry{
			CertificationID: certID,
			RiskTier:        tier.RiskTier(riskTierInt),
			ResponseContent: content,
			ScopeJSON:       scopeJSON,
			IssuedAt:        issuedAt,
			TTLSeconds:      ttlSeconds,
		}
		if eligible(candidate, distance, p.threshold, queryTier, now) {
			return &candidate, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("ledger: iterate entries: %w", err)
	}
	return nil, false, nil
}

// Store upserts an entry keyed by CertificationID.
func (p *PostgresStore) Store(ctx context.Context, entry Entry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO ledger_entries
			(certification_id, embedding, risk_tier, response_content, scope_json, issued_at, ttl_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (certification_id) DO UPDATE SET
			embedding = excluded.embedding,
			risk_tier = excluded.risk_tier,
			response_content = excluded.response_content,
			scope_json = excluded.scope_json,
			issued_at = excluded.issued_at,
			ttl_seconds = excluded.ttl_seconds`,
		entry.CertificationID,
		pgvector.NewVector(entry.Embedding),
		int(entry.RiskTier),
		entry.ResponseContent,
		entry.ScopeJSON,
		entry.IssuedAt,
		entry.TTLSeconds,
	)
	if err != nil {
		return fmt.Errorf("ledger: upsert entry %s: %w", entry.CertificationID, err)
	}
	return nil
}

// Close shuts down the connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
