package ledger

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/io-m1/ceti/internal/tier"
)

// SQLiteStore is the default Ledger backend: a single-file database with no
// external dependency, used when no DATABASE_URL or QDRANT_URL is
// configured. Lookup does a brute-force cosine-distance scan in Go, which
// is adequate at the ledger sizes a single adjudication service
// accumulates; QdrantStore and PostgresStore exist for deployments that
// outgrow it.
type SQLiteStore struct {
	db        *sql.DB
	threshold float64
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed ledger at
// dbPath. threshold is 1 - SIMILARITY_THRESHOLD, the maximum cosine
// distance for a match.
func NewSQLiteStore(dbPath string, threshold float64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: enable WAL mode: %w", err)
	}

	store := &SQLiteStore{db: db, threshold: threshold}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: run migrations: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ledger_entries (
		certification_id TEXT PRIMARY KEY,
		embedding         BLOB NOT NULL,
		risk_tier         INTEGER NOT NULL,
		response_content  TEXT NOT NULL,
		scope_json        TEXT NOT NULL,
		issued_at         INTEGER NOT NULL,
		ttl_seconds       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_entries_issued_at ON ledger_entries(issued_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// encodeEmbedding packs a []float32 into a little-endian byte blob.
func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}

// Lookup scans all stored entries and returns the closest one that passes
// the three-part acceptance test (§4.2): distance <= threshold, not
// expired, and tier monotonicity. Ties are broken by the smallest distance
// seen first.
func (s *SQLiteStore) Lookup(ctx context.Context, queryEmbedding []float32, queryTier tier.RiskTier) (*Entry, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT certification_id, embedding, risk_tier, response_content, scope_json, issued_at, ttl_seconds
		FROM ledger_entries`)
	if err != nil {
		return nil, false, fmt.Errorf("ledger: query entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	now := time.Now()
	var best *Entry
	bestDistance := math.Inf(1)

	for rows.Next() {
		var (
			certID, content, scopeJSON string
			embeddingBuf               []byte
			riskTierInt                int
			issuedAtUnix               int64
			ttlSeconds                 int
		)
		if err := rows.Scan(&certID, &embeddingBuf, &riskTierInt, &content, &scopeJSON, &issuedAtUnix, &ttlSeconds); err != nil {
			return nil, false, fmt.Errorf("ledger: scan entry: %w", err)
		}

		candidate := Entry{
			CertificationID: certID,
			Embedding:       decodeEmbedding(embeddingBuf),
			RiskTier:        tier.RiskTier(riskTierInt),
			ResponseContent: content,
			ScopeJSON:       scopeJSON,
			IssuedAt:        time.Unix(issuedAtUnix, 0).UTC(),
			TTLSeconds:      ttlSeconds,
		}
		if len(candidate.Embedding) != len(queryEmbedding) {
			continue
		}

		distance := CosineDistance(queryEmbedding, candidate.Embedding)
		if !eligible(candidate, distance, s.threshold, queryTier, now) {
			continue
		}
		if distance < bestDistance {
			entryCopy := candidate
			best = &entryCopy
			bestDistance = distance
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("ledger: iterate entries: %w", err)
	}

	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}

// Store upserts an entry keyed by CertificationID.
func (s *SQLiteStore) Store(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
			(certification_id, embedding, risk_tier, response_content, scope_json, issued_at, ttl_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(certification_id) DO UPDATE SET
			embedding = excluded.embedding,
			risk_tier = excluded.risk_tier,
			response_content = excluded.response_content,
			scope_json = excluded.scope_json,
			issued_at = excluded.issued_at,
			ttl_seconds = excluded.ttl_seconds`,
		entry.CertificationID,
		encodeEmbedding(entry.Embedding),
		int(entry.RiskTier),
		entry.ResponseContent,
		entry.ScopeJSON,
		entry.IssuedAt.Unix(),
		entry.TTLSeconds,
	)
	if err != nil {
		return fmt.Errorf("ledger: upsert entry %s: %w", entry.CertificationID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
