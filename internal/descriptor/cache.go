package descriptor

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/fieldprep/internal/config"
)

// Cache is a shared PostgreSQL-backed descriptor cache keyed by image
// content hash, so re-runs and teammates working on the same batch skip
// recomputation. Entirely optional; a nil *Cache is a no-op.
type Cache struct {
	db *sql.DB
}

// OpenCache connects to the cache database and ensures the schema exists.
func OpenCache(cfg *config.DatabaseConfig) (*Cache, error) {
	if cfg.URL == "" {
		return nil, errors.New("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cache := &Cache{db: db}
	if err := cache.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return cache, nil
}

func (c *Cache) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS descriptor_cache (
			content_hash TEXT NOT NULL,
			provider TEXT NOT NULL,
			dim INT NOT NULL,
			embedding vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (content_hash, provider)
		)`,
	}
	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply cache migration: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing cache connection: %w", err)
	}
	return nil
}

// ContentHash returns the cache key for an image's raw bytes.
func ContentHash(imageData []byte) string {
	sum := sha256.Sum256(imageData)
	return hex.EncodeToString(sum[:])
}

// Get retrieves a cached descriptor, returns nil if not cached.
func (c *Cache) Get(ctx context.Context, hash, provider string) ([]float32, error) {
	if c == nil {
		return nil, nil
	}

	var vec pgvector.Vector
	err := c.db.QueryRowContext(ctx,
		`SELECT embedding FROM descriptor_cache WHERE content_hash = $1 AND provider = $2`,
		hash, provider).Scan(&vec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query descriptor cache: %w", err)
	}
	return vec.Slice(), nil
}

// Put stores a descriptor, replacing any previous entry for the same image
// and provider.
func (c *Cache) Put(ctx context.Context, hash, provider string, vec []float32) error {
	if c == nil {
		return nil
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO descriptor_cache (content_hash, provider, dim, embedding)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (content_hash, provider)
		 DO UPDATE SET dim = EXCLUDED.dim, embedding = EXCLUDED.embedding, created_at = now()`,
		hash, provider, len(vec), pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("store descriptor: %w", err)
	}
	return nil
}

// Count returns the number of cached descriptors.
func (c *Cache) Count(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM descriptor_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count descriptors: %w", err)
	}
	return count, nil
}
