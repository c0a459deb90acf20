// Package sqlite is a single-file manifest backend, the default for local
// runs.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FranksOps/papyrus/internal/manifest"
	_ "modernc.org/sqlite"
)

var _ manifest.Backend = (*sqliteBackend)(nil)

type sqliteBackend struct {
	db *sql.DB
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
	duration_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_article_records_phrase ON article_records(phrase);
`

// New opens (and if needed creates) the manifest database at dsn.
func New(dsn string) (manifest.Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest/sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("manifest/sqlite: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Save(ctx context.Context, rec *manifest.Record) error {
	query := `
	INSERT INTO article_records (
		id, phrase, site, candidate_url, repository_id, document_url,
		saved_path, fetch_strategy, outcome, error, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := b.db.ExecContext(ctx, query,
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
		return fmt.Errorf("manifest/sqlite: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Query(ctx context.Context, filter manifest.Filter) ([]*manifest.Record, error) {
	query := `SELECT id, phrase, site, candidate_url, repository_id, document_url,
		saved_path, fetch_strategy, outcome, error, duration_ms, created_at
		FROM article_records WHERE 1=1`
	args := []any{}

	if filter.Phrase != "" {
		query += ` AND phrase = ?`
		args = append(args, filter.Phrase)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, filter.Outcome)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.Since)
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("manifest/sqlite: %w", err)
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
			return nil, fmt.Errorf("manifest/sqlite: %w", err)
		}

		r.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest/sqlite: %w", err)
	}
	return records, nil
}

func (b *sqliteBackend) Close() error {
	return b.db.Close()
}
