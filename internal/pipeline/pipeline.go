// Package pipeline runs one search phrase end to end: enumerate results,
// resolve cross-references when the entry site is an index, locate the
// document link, and download. One article failing never stops the others;
// every attempt ends as a manifest record.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/FranksOps/papyrus/internal/diag"
	"github.com/FranksOps/papyrus/internal/download"
	"github.com/FranksOps/papyrus/internal/enumerate"
	"github.com/FranksOps/papyrus/internal/locate"
	"github.com/FranksOps/papyrus/internal/manifest"
	"github.com/FranksOps/papyrus/internal/metrics"
	"github.com/FranksOps/papyrus/internal/resolve"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
	"github.com/FranksOps/papyrus/pkg/pacing"
)

// Options configures one pipeline invocation. Zero values get defaults;
// Session is the only required field.
type Options struct {
	Phrase string
	// Limit caps how many search results are attempted. Defaults to 10.
	Limit int
	// Dir is where documents land. Defaults to the working directory.
	Dir string

	// Entry is the site whose search page seeds the run. Defaults to the
	// repository itself; an index entry adds the cross-reference stage.
	Entry site.Site
	// Repository is where documents live. Defaults to PMC.
	Repository site.Site

	Session session.Session

	// Delay paces consecutive article attempts. Defaults to one second.
	Delay  time.Duration
	Jitter float64

	Policy          download.Policy
	StrategyTimeout time.Duration

	// Manifest records attempts; nil means no recording.
	Manifest manifest.Backend
	// Diagnostics receives page snapshots on enumeration failures; nil means
	// snapshots are dropped.
	Diagnostics diag.Sink

	Logger *slog.Logger
}

func (o *Options) fill() error {
	if o.Session == nil {
		return fmt.Errorf("pipeline: a session is required")
	}
	if o.Phrase == "" {
		return fmt.Errorf("pipeline: a search phrase is required")
	}
	if o.Limit <= 0 {
		o.Limit = 10
	}
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.Repository.Root == "" {
		o.Repository = site.PMC()
	}
	if o.Entry.Root == "" {
		o.Entry = o.Repository
	}
	if o.Delay == 0 {
		o.Delay = time.Second
	}
	if o.Manifest == nil {
		o.Manifest = manifest.Discard{}
	}
	if o.Diagnostics == nil {
		o.Diagnostics = diag.Discard{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

// Run executes the pipeline and returns the paths of all saved documents.
// The session is closed on every return path. A run whose search yields
// nothing returns an empty slice and no error; only setup-level problems
// are errors.
func Run(ctx context.Context, opts Options) ([]string, error) {
	if err := opts.fill(); err != nil {
		if opts.Session != nil {
			_ = opts.Session.Close()
		}
		return nil, err
	}
	defer func() { _ = opts.Session.Close() }()

	log := opts.Logger.With("phrase", opts.Phrase, "entry", string(opts.Entry.Kind))
	log.Info("pipeline starting", "limit", opts.Limit, "dir", opts.Dir)

	enumerator := enumerate.New(opts.Session, opts.Diagnostics, opts.Logger)
	candidates, err := enumerator.Enumerate(ctx, opts.Entry, opts.Phrase, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if len(candidates) == 0 {
		log.Info("search yielded no candidates")
		return []string{}, nil
	}
	log.Info("candidates enumerated", "count", len(candidates))

	resolver := resolve.New(opts.Session, opts.Repository, opts.Logger)
	locator := locate.New(opts.Session, opts.Repository, opts.Logger)
	fetcher := download.New(opts.Session, opts.Repository, download.Config{
		Dir:             opts.Dir,
		Policy:          opts.Policy,
		StrategyTimeout: opts.StrategyTimeout,
		Logger:          opts.Logger,
	})
	pacer := pacing.New(opts.Delay, opts.Jitter)

	var saved []string
	for i, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return saved, err
		}
		if i > 0 {
			if err := pacer.Wait(ctx); err != nil {
				return saved, err
			}
		}

		rec, bytes := attempt(ctx, cand, opts, resolver, locator, fetcher)
		if rec.Outcome == manifest.OutcomeSaved || rec.Outcome == manifest.OutcomeSkipped {
			saved = append(saved, rec.SavedPath)
		}
		if err := opts.Manifest.Save(ctx, rec); err != nil {
			log.Warn("manifest save failed", "error", err)
		}
		metrics.RecordArticle(rec, bytes)
	}

	log.Info("pipeline finished", "attempted", len(candidates), "saved", len(saved))
	return saved, nil
}

// attempt runs one candidate through resolve, locate and download. It never
// returns an error: every failure mode becomes an outcome on the record.
func attempt(
	ctx context.Context,
	cand enumerate.Candidate,
	opts Options,
	resolver *resolve.Resolver,
	locator *locate.Locator,
	fetcher *download.Fetcher,
) (*manifest.Record, int64) {
	start := time.Now()
	rec := &manifest.Record{
		ID:           uuid.NewString(),
		Phrase:       opts.Phrase,
		Site:         string(cand.Site),
		CandidateURL: cand.URL,
		CreatedAt:    start,
	}
	finish := func(outcome, errMsg string) (*manifest.Record, int64) {
		rec.Outcome = outcome
		rec.Error = errMsg
		rec.Duration = time.Since(start)
		return rec, 0
	}

	art := resolve.Article{ID: cand.ID, PageURL: cand.URL}
	if cand.Site == site.KindIndex {
		resolved, ok, err := resolver.Resolve(ctx, cand)
		if err != nil {
			return finish(manifest.OutcomeFailed, err.Error())
		}
		if !ok {
			return finish(manifest.OutcomeNoReference, "")
		}
		art = resolved
	}
	rec.RepositoryID = art.ID

	doc, ok, err := locator.Locate(ctx, art)
	if err != nil {
		return finish(manifest.OutcomeFailed, err.Error())
	}
	if !ok {
		return finish(manifest.OutcomeNoDocument, "")
	}
	rec.DocumentURL = doc.URL

	res, err := fetcher.Fetch(ctx, art, doc)
	if err != nil {
		return finish(manifest.OutcomeFailed, err.Error())
	}
	rec.SavedPath = res.Path
	rec.FetchStrategy = res.Strategy
	if res.Skipped {
		rec.Outcome = manifest.OutcomeSkipped
	} else {
		rec.Outcome = manifest.OutcomeSaved
	}
	rec.Duration = time.Since(start)
	return rec, res.Bytes
}
