package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/io-m1/ceti/internal/tier"
)

// QdrantStore is an optional Ledger backend for deployments that want
// approximate nearest-neighbor search at scale instead of SQLite's
// brute-force scan. Selected when QDRANT_URL is set.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	threshold  float64
	logger     *slog.Logger
}

// QdrantConfig configures the connection.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dims       uint64
}

func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("ledger: invalid qdrant URL: %q", rawURL)
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("ledger: invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}
	return host, port, useTLS, nil
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, cfg QdrantConfig, threshold float64, logger *slog.Logger) (*QdrantStore, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: connect to qdrant at %s:%d: %w", host, port, err)
	}

	store := &QdrantStore{client: client, collection: cfg.Collection, threshold: threshold, logger: logger}
	if err := store.ensureCollection(ctx, cfg.Dims); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context, dims uint64) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("ledger: check collection exists: %w", err)
	}
	if exists {
		return nil
	}

	m := uint64(16)
	efConstruct := uint64(128)
	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     dims,
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("ledger: create collection %q: %w", q.collection, err)
	}
	q.logger.Info("ledger: created qdrant collection", "collection", q.collection, "dims", dims)
	return nil
}

type qdrantPayload struct {
	RiskTier        int    `json:"risk_tier"`
	ResponseContent string `json:"response_content"`
	ScopeJSON       string `json:"scope_json"`
	IssuedAt        int64  `json:"issued_at"`
	TTLSeconds      int    `json:"ttl_seconds"`
}

// Lookup queries Qdrant's HNSW index for the nearest neighbor, then applies
// the same §4.2 acceptance test SQLiteStore does (Qdrant's own distance
// score covers the cosine half; TTL and tier monotonicity are re-checked
// here since Qdrant has no notion of either).
func (q *QdrantStore) Lookup(ctx context.Context, queryEmbedding []float32, queryTier tier.RiskTier) (*Entry, bool, error) {
	limit := uint64(10)
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(queryEmbedding),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, false, fmt.Errorf("ledger: qdrant query: %w", err)
	}

	now := time.Now()
	for _, sp := range scored {
		distance := 1 - float64(sp.Score)
		payloadMap := sp.GetPayload()
		raw, ok := payloadMap["data"]
		if !ok {
			continue
		}
		var pl qdrantPayload
		if err := json.Unmarshal([]byte(raw.GetStringValue()), &pl); err != nil {
			q.logger.Warn("ledger: malformed qdrant payload", "error", err)
			continue
		}

		candidate := Entry{
			CertificationID: sp.Id.GetUuid(),
			RiskTier:        tier.RiskTier(pl.RiskTier),
			ResponseContent: pl.ResponseContent,
			ScopeJSON:       pl.ScopeJSON,
			IssuedAt:        time.Unix(pl.IssuedAt, 0).UTC(),
			TTLSeconds:      pl.TTLSeconds,
		}
		if eligible(candidate, distance, q.threshold, queryTier, now) {
			return &candidate, true, nil
		}
	}
	return nil, false, nil
}

// Store upserts a point into Qdrant, keyed by CertificationID.
func (q *QdrantStore) Store(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(qdrantPayload{
		RiskTier:        int(entry.RiskTier),
		ResponseContent: entry.ResponseContent,
		ScopeJSON:       entry.ScopeJSON,
		IssuedAt:        entry.IssuedAt.Unix(),
		TTLSeconds:      entry.TTLSeconds,
	})
	if err != nil {
		return fmt.Errorf("ledger: marshal payload: %w", err)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewID(entry.CertificationID),
			Vectors: qdrant.NewVectorsDense(entry.Embedding),
			Payload: qdrant.NewValueMap(map[string]any{"data": string(payload)}),
		}},
	})
	if err != nil {
		return fmt.Errorf("ledger: qdrant upsert %s: %w", entry.CertificationID, err)
	}
	return nil
}

// Close shuts down the gRPC connection.
func (q *QdrantStore) Close() error {
	return q.client.Close()
}
