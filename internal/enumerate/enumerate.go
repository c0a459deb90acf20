// Package enumerate turns a search phrase into an ordered list of candidate
// article references. Extraction runs through a prioritized chain of selector
// strategies so the enumerator survives markup drift across site redesigns;
// the last tier scans every link on the page and filters by URL structure.
package enumerate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/papyrus/internal/chain"
	"github.com/FranksOps/papyrus/internal/diag"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
)

// Candidate is one discovered search result. URL is the normalized absolute
// link and serves as the deduplication key; ID is filled when the winning
// strategy already derived the identifier.
type Candidate struct {
	Site site.Kind
	URL  string
	ID   string
}

// Enumerator issues the search and extracts candidates.
type Enumerator struct {
	sess   session.Session
	diags  diag.Sink
	logger *slog.Logger
}

// New creates an Enumerator. A nil sink suppresses diagnostics.
func New(sess session.Session, diags diag.Sink, logger *slog.Logger) *Enumerator {
	if diags == nil {
		diags = diag.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Enumerator{sess: sess, diags: diags, logger: logger}
}

// repositorySelectors are the known result-list shapes of the repository
// site, newest markup first.
var repositorySelectors = []string{
	`a[href*="/articles/PMC"]`,
	`a[href*="pmc/articles"]`,
	`.result-item a`,
	`.rprt a`,
	`a[data-article-id]`,
}

// indexSelectors are the known result-list shapes of the index site.
var indexSelectors = []string{
	`.docsum-title a`,
	`a.docsum-title`,
	`.rprt a`,
	`article a`,
	`a[href*="/pubmed/"]`,
}

// Enumerate searches st for phrase and returns at most limit candidates,
// deduplicated by normalized URL in discovery order. Total failure is
// non-fatal: the page is dumped to the diagnostics sink and an empty slice
// returned.
func (e *Enumerator) Enumerate(ctx context.Context, st site.Site, phrase string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}

	searchURL := st.SearchURL(phrase)
	e.logger.Info("searching", "site", st.Kind, "url", searchURL)

	page, err := e.sess.Load(ctx, searchURL)
	if err != nil {
		e.logger.Warn("search page load failed", "url", searchURL, "err", err)
		e.dump(ctx, st)
		return nil, nil
	}

	doc, err := page.Doc()
	if err != nil {
		e.logger.Warn("search page unparseable", "url", searchURL, "err", err)
		e.dump(ctx, st)
		return nil, nil
	}

	candidates, winner, ok := chain.First(ctx, e.logger, e.strategies(st, page, doc))
	if !ok {
		e.logger.Warn("no results found, page structure may have changed", "site", st.Kind, "phrase", phrase)
		e.dump(ctx, st)
		return nil, nil
	}
	e.logger.Debug("results extracted", "tier", winner, "count", len(candidates))

	return truncate(dedupe(candidates), limit), nil
}

func (e *Enumerator) strategies(st site.Site, page *session.Page, doc *goquery.Document) []chain.Strategy[[]Candidate] {
	if st.Kind == site.KindIndex {
		return e.indexStrategies(st, page, doc)
	}
	return e.repositoryStrategies(st, page, doc)
}

func (e *Enumerator) repositoryStrategies(st site.Site, page *session.Page, doc *goquery.Document) []chain.Strategy[[]Candidate] {
	extract := func(sel *goquery.Selection) ([]Candidate, bool) {
		var out []Candidate
		sel.Each(func(_ int, s *goquery.Selection) {
			href, exists := s.Attr("href")
			if !exists {
				return
			}
			if !strings.Contains(href, "PMC") && !strings.Contains(href, "/articles/") {
				return
			}
			abs := page.Resolve(href)
			c := Candidate{Site: site.KindRepository, URL: abs}
			if id, ok := site.ExtractRepositoryID(abs); ok {
				c.ID = id
			}
			out = append(out, c)
		})
		return out, len(out) > 0
	}

	var tiers []chain.Strategy[[]Candidate]
	for _, selector := range repositorySelectors {
		selector := selector
		tiers = append(tiers, chain.Strategy[[]Candidate]{
			Name: "selector " + selector,
			Run: func(ctx context.Context) ([]Candidate, bool, error) {
				got, ok := extract(doc.Find(selector))
				return got, ok, nil
			},
		})
	}

	// Last resort: every link on the page, filtered by the structural URL
	// pattern: an article path carrying a prefixed identifier of plausible
	// digit length. Catches hrefs the targeted selectors cannot see, e.g.
	// relative links without a leading slash.
	tiers = append(tiers, chain.Strategy[[]Candidate]{
		Name: "all-links scan",
		Run: func(ctx context.Context) ([]Candidate, bool, error) {
			var out []Candidate
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				abs := page.Resolve(href)
				if !strings.Contains(abs, "/articles/") {
					return
				}
				id, ok := site.ScanRepositoryID(abs)
				if !ok {
					return
				}
				out = append(out, Candidate{Site: site.KindRepository, URL: abs, ID: id})
			})
			return out, len(out) > 0, nil
		},
	})
	return tiers
}

func (e *Enumerator) indexStrategies(st site.Site, page *session.Page, doc *goquery.Document) []chain.Strategy[[]Candidate] {
	// Index candidates carry the record ID, and their URL is rebuilt from
	// the canonical record template rather than taken from the link.
	fromID := func(id string) Candidate {
		return Candidate{Site: site.KindIndex, URL: st.ArticleURL(id), ID: id}
	}

	extract := func(sel *goquery.Selection) ([]Candidate, bool) {
		var out []Candidate
		sel.Each(func(_ int, s *goquery.Selection) {
			href, exists := s.Attr("href")
			if !exists {
				return
			}
			if id, ok := site.ExtractRecordID(page.Resolve(href)); ok {
				out = append(out, fromID(id))
			}
		})
		return out, len(out) > 0
	}

	var tiers []chain.Strategy[[]Candidate]
	for _, selector := range indexSelectors {
		selector := selector
		tiers = append(tiers, chain.Strategy[[]Candidate]{
			Name: "selector " + selector,
			Run: func(ctx context.Context) ([]Candidate, bool, error) {
				got, ok := extract(doc.Find(selector))
				return got, ok, nil
			},
		})
	}

	tiers = append(tiers, chain.Strategy[[]Candidate]{
		Name: "all-links scan",
		Run: func(ctx context.Context) ([]Candidate, bool, error) {
			var out []Candidate
			doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
				href, _ := s.Attr("href")
				if id, ok := site.ExtractRecordIDLoose(href); ok {
					out = append(out, fromID(id))
				}
			})
			return out, len(out) > 0, nil
		},
	})
	return tiers
}

func (e *Enumerator) dump(ctx context.Context, st site.Site) {
	snap, err := e.sess.Snapshot(ctx)
	if err != nil {
		e.logger.Warn("snapshot failed", "err", err)
		return
	}
	name := "search_page"
	if st.Kind == site.KindIndex {
		name = "pubmed_search_page"
	}
	if err := e.diags.Capture(ctx, name, snap); err != nil {
		e.logger.Warn("diagnostics capture failed", "err", err)
	}
}

func dedupe(in []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		key := site.Normalize(c.URL)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func truncate(in []Candidate, limit int) []Candidate {
	if len(in) > limit {
		return in[:limit]
	}
	return in
}
