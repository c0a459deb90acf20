// Package batch drives the pipeline across a list of search phrases. Each
// phrase gets its own subdirectory and its own session; phrases run
// sequentially unless a concurrency limit says otherwise.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FranksOps/papyrus/internal/pipeline"
	"github.com/FranksOps/papyrus/internal/session"
)

// Options configures a batch run. Pipeline carries the per-phrase settings;
// its Phrase, Dir and Session fields are overwritten for every phrase.
type Options struct {
	Phrases []string
	// BaseDir is the parent of the per-phrase subdirectories.
	BaseDir string
	// Concurrency caps how many phrases run at once. Defaults to 1, which
	// keeps the overall request pacing strictly sequential.
	Concurrency int
	// NewSession opens a fresh session for one phrase. The pipeline closes
	// it when the phrase finishes.
	NewSession func(ctx context.Context) (session.Session, error)

	Pipeline pipeline.Options
	Logger   *slog.Logger
}

// PhraseResult is the outcome of one phrase.
type PhraseResult struct {
	Phrase string   `json:"phrase"`
	Dir    string   `json:"dir"`
	Saved  []string `json:"saved"`
	Error  string   `json:"error,omitempty"`
}

// Summary aggregates a finished batch.
type Summary struct {
	Phrases   int            `json:"phrases"`
	Saved     int            `json:"saved"`
	Failed    int            `json:"failed"`
	Results   []PhraseResult `json:"results"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	Duration  time.Duration  `json:"duration"`
}

// Subdir maps a phrase to its directory name. Spaces and path separators
// become underscores so any phrase yields a single safe path element.
func Subdir(phrase string) string {
	return strings.NewReplacer(" ", "_", "/", "_", string(filepath.Separator), "_").Replace(phrase)
}

// Run processes every phrase and returns the summary. A phrase failing is
// recorded in its result, not returned; Run errors only when no session can
// be opened or the context ends.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if len(opts.Phrases) == 0 {
		return Summary{}, fmt.Errorf("batch: no phrases given")
	}
	if opts.NewSession == nil {
		return Summary{}, fmt.Errorf("batch: a session factory is required")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	start := time.Now()
	results := make([]PhraseResult, len(opts.Phrases))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, phrase := range opts.Phrases {
		i, phrase := i, phrase
		g.Go(func() error {
			res := PhraseResult{
				Phrase: phrase,
				Dir:    filepath.Join(opts.BaseDir, Subdir(phrase)),
			}

			sess, err := opts.NewSession(gctx)
			if err != nil {
				// Without a session nothing can proceed; abort the batch.
				return fmt.Errorf("batch: open session for %q: %w", phrase, err)
			}

			po := opts.Pipeline
			po.Phrase = phrase
			po.Dir = res.Dir
			po.Session = sess

			saved, err := pipeline.Run(gctx, po)
			res.Saved = saved
			if err != nil {
				res.Error = err.Error()
				log.Warn("phrase failed", "phrase", phrase, "error", err)
			}

			mu.Lock()
			results[i] = res
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	s := Summary{
		Phrases:   len(opts.Phrases),
		Results:   results,
		StartTime: start,
		EndTime:   time.Now(),
	}
	s.Duration = s.EndTime.Sub(s.StartTime)
	for _, r := range results {
		s.Saved += len(r.Saved)
		if r.Error != "" {
			s.Failed++
		}
	}
	return s, nil
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}

// WriteText writes a human-readable batch summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Papyrus Batch Summary
---------------------
Time:      {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:  {{.Duration}}
Phrases:   {{.Phrases}}
Saved:     {{.Saved}} documents
Failed:    {{.Failed}} phrases

Per phrase:
{{- range .Results}}
  {{.Phrase}}: {{len .Saved}} saved -> {{.Dir}}{{if .Error}} (error: {{.Error}}){{end}}
{{- else}}
  None
{{- end}}
`

	t, err := template.New("batchSummary").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}
