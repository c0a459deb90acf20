package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/FranksOps/papyrus/internal/manifest"
)

func TestSQLiteBackend(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "manifest.db")

	b, err := New(dsn)
	if err != nil {
		t.Fatalf("Failed to create SQLite backend: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	now := time.Now().UTC()

	records := []*manifest.Record{
		{
			ID:            "sq1",
			Phrase:        "oxidative stress",
			Site:          "repository",
			CandidateURL:  "https://repo.test/articles/PMC100/",
			RepositoryID:  "PMC100",
			DocumentURL:   "https://repo.test/articles/PMC100/pdf/a.pdf",
			SavedPath:     "/tmp/a.pdf",
			FetchStrategy: "interactive click",
			Outcome:       manifest.OutcomeSaved,
			Duration:      2500 * time.Millisecond,
			CreatedAt:     now.Add(-2 * time.Hour),
		},
		{
			ID:           "sq2",
			Phrase:       "oxidative stress",
			Site:         "index",
			CandidateURL: "https://index.test/31906111/",
			Outcome:      manifest.OutcomeNoReference,
			Duration:     300 * time.Millisecond,
			CreatedAt:    now.Add(-1 * time.Hour),
		},
		{
			ID:           "sq3",
			Phrase:       "gene editing",
			Site:         "repository",
			CandidateURL: "https://repo.test/articles/PMC200/",
			Outcome:      manifest.OutcomeFailed,
			Error:        "status 403",
			Duration:     time.Second,
			CreatedAt:    now,
		},
	}
	for _, r := range records {
		if err := b.Save(ctx, r); err != nil {
			t.Fatalf("Save(%s): %v", r.ID, err)
		}
	}

	all, err := b.Query(ctx, manifest.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
	if all[0].ID != "sq3" || all[2].ID != "sq1" {
		t.Errorf("expected newest-first ordering, got %s..%s", all[0].ID, all[2].ID)
	}

	saved, err := b.Query(ctx, manifest.Filter{Outcome: manifest.OutcomeSaved})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(saved) != 1 || saved[0].ID != "sq1" {
		t.Fatalf("outcome filter: got %+v", saved)
	}
	if saved[0].Duration != 2500*time.Millisecond {
		t.Errorf("duration not round-tripped: %v", saved[0].Duration)
	}
	if saved[0].FetchStrategy != "interactive click" {
		t.Errorf("strategy not round-tripped: %q", saved[0].FetchStrategy)
	}

	byPhrase, err := b.Query(ctx, manifest.Filter{Phrase: "gene editing"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byPhrase) != 1 || byPhrase[0].Error != "status 403" {
		t.Errorf("phrase filter: got %+v", byPhrase)
	}

	limited, err := b.Query(ctx, manifest.Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 records with limit, got %d", len(limited))
	}
}
