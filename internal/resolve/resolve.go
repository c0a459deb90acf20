// Package resolve cross-references an index-site record to its repository
// copy. Not every record has one; a miss here is the expected shape of a
// paper without an open-access mirror, so the caller skips the candidate
// rather than failing.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/papyrus/internal/chain"
	"github.com/FranksOps/papyrus/internal/enumerate"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
)

// Article is a fully resolved repository article: its stable identifier and
// the canonical article page URL deterministically derived from it.
type Article struct {
	ID      string
	PageURL string
}

// Resolver extracts repository identifiers from index record pages.
type Resolver struct {
	sess   session.Session
	repo   site.Site
	logger *slog.Logger
}

// New creates a Resolver targeting the given repository site.
func New(sess session.Session, repo site.Site, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{sess: sess, repo: repo, logger: logger}
}

// fullTextRegions identifies the page region that semantically holds full
// text links, across the markup variants the index site has shipped.
const fullTextRegions = `#full-view-heading, .full-text-links, [id*="full"], [class*="full-text"]`

// crossRefSelectors is the unscoped tier's priority order.
var crossRefSelectors = []string{
	`a[href*="/articles/PMC"]`,
	`a[href*="pmc.ncbi.nlm.nih.gov"]`,
	`a[href*="PMC"]`,
}

// Resolve loads the candidate's record page and runs the three-tier
// cross-reference search: the scoped full-text region, then unscoped
// selectors (including a link-text match), then a raw-markup scan. Absence
// of a cross-reference returns ok=false, never an error; errors are
// reserved for the page itself being unreachable.
func (r *Resolver) Resolve(ctx context.Context, cand enumerate.Candidate) (Article, bool, error) {
	page, err := r.sess.Load(ctx, cand.URL)
	if err != nil {
		return Article{}, false, fmt.Errorf("resolve: %w", err)
	}
	doc, err := page.Doc()
	if err != nil {
		return Article{}, false, fmt.Errorf("resolve: %w", err)
	}

	id, winner, ok := chain.First(ctx, r.logger, []chain.Strategy[string]{
		{Name: "full-text region", Run: func(ctx context.Context) (string, bool, error) {
			return scopedSearch(doc)
		}},
		{Name: "unscoped selectors", Run: func(ctx context.Context) (string, bool, error) {
			return unscopedSearch(doc)
		}},
		{Name: "raw markup scan", Run: func(ctx context.Context) (string, bool, error) {
			id, found := site.ScanRepositoryID(string(page.HTML))
			return id, found, nil
		}},
	})
	if !ok {
		r.logger.Info("no repository cross-reference", "record", cand.URL)
		return Article{}, false, nil
	}

	r.logger.Debug("cross-reference resolved", "record", cand.URL, "id", id, "tier", winner)

	// The article page URL is always rebuilt from the canonical template;
	// matched links may be relative, partial, or differently templated.
	return Article{ID: id, PageURL: r.repo.ArticleURL(id)}, true, nil
}

func scopedSearch(doc *goquery.Document) (string, bool, error) {
	var id string
	doc.Find(fullTextRegions).EachWithBreak(func(_ int, region *goquery.Selection) bool {
		region.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if got, ok := site.ExtractRepositoryID(href); ok {
				id = got
				return false
			}
			return true
		})
		return id == ""
	})
	return id, id != "", nil
}

func unscopedSearch(doc *goquery.Document) (string, bool, error) {
	for _, selector := range crossRefSelectors {
		var id string
		doc.Find(selector).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if got, ok := site.ExtractRepositoryID(href); ok {
				id = got
				return false
			}
			return true
		})
		if id != "" {
			return id, true, nil
		}
	}

	// Link-text match on the literal prefix token, e.g. "Free PMC article".
	var id string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(a.Text(), "PMC") {
			return true
		}
		href, _ := a.Attr("href")
		if got, ok := site.ExtractRepositoryID(href); ok {
			id = got
			return false
		}
		return true
	})
	return id, id != "", nil
}
