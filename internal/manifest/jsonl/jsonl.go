// Package jsonl is an append-only NDJSON manifest backend. It needs no
// server and the file stays greppable, which makes it the right choice for
// one-off batch runs.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/FranksOps/papyrus/internal/manifest"
)

var _ manifest.Backend = (*jsonlBackend)(nil)

type jsonlBackend struct {
	mu   sync.Mutex
	file *os.File
}

// New opens filePath for appending, creating it if absent.
func New(filePath string) (manifest.Backend, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("manifest/jsonl: %w", err)
	}
	return &jsonlBackend{file: f}, nil
}

func (b *jsonlBackend) Save(ctx context.Context, rec *manifest.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("manifest/jsonl: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("manifest/jsonl: %w", err)
	}
	return nil
}

func (b *jsonlBackend) Query(ctx context.Context, filter manifest.Filter) ([]*manifest.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("manifest/jsonl: %w", err)
	}
	defer func() {
		// Back to the end so appends keep working.
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	var matched []*manifest.Record
	scanner := bufio.NewScanner(b.file)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var r manifest.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("manifest/jsonl: %w", err)
		}

		if filter.Phrase != "" && r.Phrase != filter.Phrase {
			continue
		}
		if filter.Outcome != "" && r.Outcome != filter.Outcome {
			continue
		}
		if filter.Since != nil && r.CreatedAt.Before(*filter.Since) {
			continue
		}
		matched = append(matched, &r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest/jsonl: %w", err)
	}

	// Newest first, like the database backends order by created_at.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (b *jsonlBackend) Close() error {
	return b.file.Close()
}
