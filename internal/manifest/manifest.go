// Package manifest records the outcome of every article attempt, so a run
// can be audited after the fact: which identifiers were tried, which
// strategies won, where the files went, and why the failures failed.
package manifest

import (
	"context"
	"time"
)

// Outcomes an article attempt can end in.
const (
	OutcomeSaved       = "saved"
	OutcomeSkipped     = "skipped"
	OutcomeNoReference = "no_reference"
	OutcomeNoDocument  = "no_document"
	OutcomeFailed      = "failed"
)

// Record is one article attempt.
type Record struct {
	ID           string `json:"id"`
	Phrase       string `json:"phrase"`
	Site         string `json:"site"`
	CandidateURL string `json:"candidate_url"`
	RepositoryID string `json:"repository_id,omitempty"`
	DocumentURL  string `json:"document_url,omitempty"`
	SavedPath    string `json:"saved_path,omitempty"`

	// FetchStrategy names the acquisition strategy that produced the file.
	FetchStrategy string        `json:"fetch_strategy,omitempty"`
	Outcome       string        `json:"outcome"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Filter narrows a Query.
type Filter struct {
	Phrase  string
	Outcome string
	Since   *time.Time
	Limit   int
	Offset  int
}

// Backend persists and recalls records.
type Backend interface {
	Save(ctx context.Context, rec *Record) error
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Close() error
}

// Discard is a Backend that drops everything, for runs without a manifest.
type Discard struct{}

func (Discard) Save(context.Context, *Record) error { return nil }

func (Discard) Query(context.Context, Filter) ([]*Record, error) { return nil, nil }

func (Discard) Close() error { return nil }
