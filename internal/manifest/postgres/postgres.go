// Package postgres is a pgx-backed manifest backend for shared deployments.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/FranksOps/papyrus/internal/manifest"
)

var _ manifest.Backend = (*postgresBackend)(nil)

type postgresBackend struct {
	pool *pgxpool.Pool
}

const schema = `
CREATE TABLE IF NOT EXISTS article_records (
	id TEXT PRIMARY KEY,
	phrase TEXT NOT NULL,
	site TEXT NOT NULL,
	candidate_url TEXT NOT NULL,
	repository_id TEXT,
	document_url TEXT,
	saved_path TEXT,
	fetch_strategy TEXT,
	outcome TEXT NOT NULL,
	error TEXT,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_article_records_phrase ON article_records(phrase);
`

// New connects to dsn and ensures the schema exists.
func New(ctx context.Context, dsn string) (manifest.Backend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest/postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("manifest/postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("manifest/postgres: %w", err)
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) Save(ctx context.Context, rec *manifest.Record) error {
	query := `
	INSERT INTO article_records (
		id, phrase, site, candidate_url, repository_id, document_url,
		saved_path, fetch_strategy, outcome, error, duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := b.pool.Exec(ctx, query,
		rec.ID,
		rec.Phrase,
		rec.Site,
		rec.CandidateURL,
		rec.RepositoryID,
		rec.DocumentURL,
		rec.SavedPath,
		rec.FetchStrategy,
		rec.Outcome,
		rec.Error,
		rec.Duration.Milliseconds(),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("manifest/postgres: %w", err)
	}
	return nil
}

func (b *postgresBackend) Query(ctx context.Context, filter manifest.Filter) ([]*manifest.Record, error) {
	query := `SELECT id, phrase, site, candidate_url, repository_id, document_url,
		saved_path, fetch_strategy, outcome, error, duration_ms, created_at
		FROM article_records WHERE 1=1`
	args := []any{}
	param := 1

	if filter.Phrase != "" {
		query += fmt.Sprintf(` AND phrase = $%d`, param)
		args = append(args, filter.Phrase)
		param++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(` AND outcome = $%d`, param)
		args = append(args, filter.Outcome)
		param++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, param)
		args = append(args, *filter.Since)
		param++
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, param)
		args = append(args, filter.Limit)
		param++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, param)
		args = append(args, filter.Offset)
		param++
	}

	rows, err := b.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest/postgres: %w", err)
	}
	defer rows.Close()

	var records []*manifest.Record
	for rows.Next() {
		var r manifest.Record
		var durationMs int64

		err := rows.Scan(
			&r.ID, &r.Phrase, &r.Site, &r.CandidateURL, &r.RepositoryID,
			&r.DocumentURL, &r.SavedPath, &r.FetchStrategy, &r.Outcome,
			&r.Error, &durationMs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("manifest/postgres: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest/postgres: %w", err)
	}
	return records, nil
}

func (b *postgresBackend) Close() error {
	b.pool.Close()
	return nil
}
