package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs the vault with PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vault_documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			tier INT NOT NULL DEFAULT 0,
			owner_id TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_vault_documents_tier_created ON vault_documents (tier, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, query string, maxTier, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, content, tier, owner_id, created_at
		 FROM vault_documents
		 WHERE tier <= $1 AND (title ILIKE '%'||$2||'%' OR content ILIKE '%'||$2||'%')
		 ORDER BY created_at DESC LIMIT $3`,
		maxTier, query, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows, limit)
}

func (s *PostgresStore) Get(ctx context.Context, id string, maxTier int) (Document, error) {
	var doc Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, content, tier, owner_id, created_at
		 FROM vault_documents WHERE id=$1 AND tier <= $2`,
		id, maxTier,
	).Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Tier, &doc.OwnerID, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) List(ctx context.Context, maxTier, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, content, tier, owner_id, created_at
		 FROM vault_documents WHERE tier <= $1
		 ORDER BY created_at DESC LIMIT $2`,
		maxTier, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	return scanDocuments(rows, limit)
}

func (s *PostgresStore) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE tier > 0) FROM vault_documents`,
	).Scan(&stats.Documents, &stats.Restricted)
	if err != nil {
		return Stats{}, fmt.Errorf("vault stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanDocuments(rows pgx.Rows, capacity int) ([]Document, error) {
	docs := make([]Document, 0, capacity)
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Tier, &doc.OwnerID, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}
	return docs, nil
}
