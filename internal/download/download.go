// Package download acquires a located document and lands it on disk. Three
// acquisition strategies run in priority order; a success is only a success
// once the bytes carry the format's magic signature, so a 200 with an HTML
// interstitial body never produces a file.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/FranksOps/papyrus/internal/chain"
	"github.com/FranksOps/papyrus/internal/locate"
	"github.com/FranksOps/papyrus/internal/resolve"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
	"github.com/FranksOps/papyrus/internal/sniff"
)

// Policy decides what happens when the target filename already exists.
type Policy int

const (
	// PolicyOverwrite replaces the existing file.
	PolicyOverwrite Policy = iota
	// PolicySkip leaves the existing file untouched and reports the result
	// as skipped.
	PolicySkip
	// PolicyRename writes under a numbered variant, name-2.pdf onward.
	PolicyRename
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "overwrite":
		return PolicyOverwrite, nil
	case "skip":
		return PolicySkip, nil
	case "rename":
		return PolicyRename, nil
	}
	return PolicyOverwrite, fmt.Errorf("download: unknown collision policy %q", s)
}

// Result describes one completed acquisition.
type Result struct {
	Path     string
	Strategy string
	Bytes    int64
	// Skipped is set when PolicySkip found the file already present.
	Skipped bool
}

// Config carries the fetcher's knobs. Zero values are filled with defaults.
type Config struct {
	Dir    string
	Policy Policy
	// StrategyTimeout bounds each acquisition strategy individually.
	StrategyTimeout time.Duration
	Logger          *slog.Logger
}

// Fetcher downloads documents from a repository site through a session.
type Fetcher struct {
	sess    session.Session
	repo    site.Site
	format  sniff.Format
	dir     string
	policy  Policy
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Fetcher writing into cfg.Dir.
func New(sess session.Session, repo site.Site, cfg Config) *Fetcher {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		sess:    sess,
		repo:    repo,
		format:  sniff.PDF,
		dir:     cfg.Dir,
		policy:  cfg.Policy,
		timeout: cfg.StrategyTimeout,
		logger:  cfg.Logger,
	}
}

// Fetch tries the acquisition strategies in order and returns the first that
// lands validated bytes. Strategies the session cannot perform are skipped
// silently; genuine failures advance the chain with a logged reason. All
// strategies failing is an error.
func (f *Fetcher) Fetch(ctx context.Context, art resolve.Article, doc locate.Document) (Result, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("download: %w", err)
	}

	if f.policy == PolicySkip {
		existing := filepath.Join(f.dir, doc.Filename)
		if _, err := os.Stat(existing); err == nil {
			f.logger.Info("already downloaded, skipping", "path", existing)
			return Result{Path: existing, Skipped: true}, nil
		}
	}

	res, winner, ok := chain.First(ctx, f.logger, []chain.Strategy[Result]{
		{Name: "interactive click", Run: func(ctx context.Context) (Result, bool, error) {
			return f.interactive(ctx, art, doc)
		}},
		{Name: "direct fetch", Run: func(ctx context.Context) (Result, bool, error) {
			return f.direct(ctx, doc)
		}},
		{Name: "navigate", Run: func(ctx context.Context) (Result, bool, error) {
			return f.navigate(ctx, doc)
		}},
	})
	if !ok {
		return Result{}, fmt.Errorf("download: all strategies failed for %s", art.ID)
	}

	res.Strategy = winner
	f.logger.Info("document saved",
		"article", art.ID, "path", res.Path, "bytes", res.Bytes, "strategy", winner)
	return res, nil
}

// interactive clicks through the document-link selector chain and captures
// the download event. Only browser sessions support this.
func (f *Fetcher) interactive(ctx context.Context, art resolve.Article, doc locate.Document) (Result, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	saved, err := f.sess.TriggerDownload(ctx, art.PageURL, locate.ClickTargets(f.repo, art.ID), f.dir)
	if errors.Is(err, session.ErrUnsupported) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	return f.place(saved, doc.Filename)
}

// direct fetches the document URL with the format's Accept header. The
// response must be 2xx and begin with the magic signature; anything else
// fails the strategy, with the interposed page named when recognizable.
func (f *Fetcher) direct(ctx context.Context, doc locate.Document) (Result, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.sess.Fetch(ctx, doc.URL, f.format.Accept)
	if err != nil {
		return Result{}, false, err
	}
	if !resp.OK() {
		return Result{}, false, fmt.Errorf("status %d", resp.StatusCode)
	}
	if !f.format.Valid(resp.Body) {
		if source, known := sniff.Identify(resp.StatusCode, resp.Header, resp.Body, sniff.DefaultDetectors()); known {
			f.logger.Warn("response is not a document", "url", doc.URL, "interposed", source)
			return Result{}, false, fmt.Errorf("blocked by %s", source)
		}
		return Result{}, false, fmt.Errorf("body lacks %s signature", f.format.Name)
	}
	return f.write(resp.Body, doc.Filename)
}

// navigate drives the browser straight at the document URL and captures the
// download the navigation triggers.
func (f *Fetcher) navigate(ctx context.Context, doc locate.Document) (Result, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	saved, err := f.sess.NavigateDownload(ctx, doc.URL, f.dir)
	if errors.Is(err, session.ErrUnsupported) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	return f.place(saved, doc.Filename)
}

// place moves a session-saved file onto its final name, validating the
// signature first. The site's suggested filename wins over the fallback when
// it carries the right extension.
func (f *Fetcher) place(saved *session.Saved, fallback string) (Result, bool, error) {
	head := make([]byte, len(f.format.Magic))
	file, err := os.Open(saved.Path)
	if err != nil {
		return Result{}, false, err
	}
	n, _ := file.Read(head)
	_ = file.Close()
	if !f.format.Valid(head[:n]) {
		_ = os.Remove(saved.Path)
		return Result{}, false, fmt.Errorf("saved file lacks %s signature", f.format.Name)
	}

	name := fallback
	if strings.HasSuffix(strings.ToLower(saved.SuggestedFilename), f.format.Extension) {
		name = saved.SuggestedFilename
	}
	target, skip := f.target(name)
	if skip {
		_ = os.Remove(saved.Path)
		return Result{Path: target, Skipped: true}, true, nil
	}
	if err := os.Rename(saved.Path, target); err != nil {
		return Result{}, false, err
	}
	info, err := os.Stat(target)
	if err != nil {
		return Result{}, false, err
	}
	return Result{Path: target, Bytes: info.Size()}, true, nil
}

// write lands in-memory bytes via a temp file in the same directory, so the
// final name only ever appears once the content is complete.
func (f *Fetcher) write(body []byte, name string) (Result, bool, error) {
	target, skip := f.target(name)
	if skip {
		return Result{Path: target, Skipped: true}, true, nil
	}

	tmp, err := os.CreateTemp(f.dir, ".partial-*")
	if err != nil {
		return Result{}, false, err
	}
	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return Result{}, false, err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return Result{}, false, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		_ = os.Remove(tmp.Name())
		return Result{}, false, err
	}
	return Result{Path: target, Bytes: int64(len(body))}, true, nil
}

// target applies the collision policy to the desired filename. skip is only
// ever true under PolicySkip.
func (f *Fetcher) target(name string) (path string, skip bool) {
	path = filepath.Join(f.dir, name)
	if _, err := os.Stat(path); err != nil {
		return path, false
	}
	switch f.policy {
	case PolicySkip:
		return path, true
	case PolicyRename:
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		for i := 2; ; i++ {
			candidate := filepath.Join(f.dir, fmt.Sprintf("%s-%d%s", stem, i, ext))
			if _, err := os.Stat(candidate); err != nil {
				return candidate, false
			}
		}
	}
	return path, false
}
