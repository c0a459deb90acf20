// Package locate finds the canonical document URL on a repository article
// page. Every tier ultimately normalizes toward the canonical document
// template: the template is far more stable across site redesigns than any
// selector, so loose matches contribute only their filename and the URL is
// reconstructed from (identifier, filename) rather than trusted verbatim.
package locate

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/FranksOps/papyrus/internal/chain"
	"github.com/FranksOps/papyrus/internal/resolve"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
	"github.com/FranksOps/papyrus/internal/sniff"
)

// Document is a located document reference.
type Document struct {
	URL string
	// Filename is derived from the URL's last path segment, falling back to
	// "<ID>.pdf" when the segment lacks the expected extension.
	Filename string
}

// Locator applies the document-link strategy chain to article pages.
type Locator struct {
	sess   session.Session
	repo   site.Site
	format sniff.Format
	logger *slog.Logger
}

// New creates a Locator for the given repository site.
func New(sess session.Session, repo site.Site, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{sess: sess, repo: repo, format: sniff.PDF, logger: logger}
}

// ClickTargets returns the selector chain the interactive download strategy
// probes, highest priority first. It mirrors the locator tiers because the
// link element must still be present to click.
func ClickTargets(repo site.Site, id string) []session.Selector {
	return []session.Selector{
		{Query: fmt.Sprintf(`a[href*="%s"]`, repo.DocumentFragment(id))},
		{Query: `a[href*="/pdf/"]`},
		{XPath: `//a[contains(text(),"PDF")]`},
		{Query: `a[href$=".pdf"]`},
	}
}

// Locate loads the article page and runs the four-tier chain. A page with no
// document link returns ok=false; only an unreachable page is an error.
func (l *Locator) Locate(ctx context.Context, art resolve.Article) (Document, bool, error) {
	page, err := l.sess.Load(ctx, art.PageURL)
	if err != nil {
		return Document{}, false, fmt.Errorf("locate: %w", err)
	}
	doc, err := page.Doc()
	if err != nil {
		return Document{}, false, fmt.Errorf("locate: %w", err)
	}

	fragments := []string{
		l.repo.DocumentFragment(art.ID),
		l.repo.DocumentFragment(site.NumericID(art.ID)),
	}

	found, winner, ok := chain.First(ctx, l.logger, []chain.Strategy[string]{
		{Name: "exact pattern", Run: func(ctx context.Context) (string, bool, error) {
			u, hit := l.exactPattern(page, doc, fragments)
			return u, hit, nil
		}},
		{Name: "link text", Run: func(ctx context.Context) (string, bool, error) {
			u, hit := l.linkText(page, doc, fragments)
			return u, hit, nil
		}},
		{Name: "loose match", Run: func(ctx context.Context) (string, bool, error) {
			u, hit := l.loose(page, doc, art.ID, fragments)
			return u, hit, nil
		}},
		{Name: "generic probes", Run: func(ctx context.Context) (string, bool, error) {
			u, hit := l.genericProbes(page, doc, art.ID)
			return u, hit, nil
		}},
	})
	if !ok {
		l.logger.Info("no document link found", "article", art.PageURL)
		return Document{}, false, nil
	}

	l.logger.Debug("document located", "article", art.ID, "url", found, "tier", winner)
	return Document{URL: found, Filename: l.filename(found, art.ID)}, true, nil
}

// exactPattern matches links carrying the canonical path fragment for the
// full identifier or its numeric-only variant. Links with the expected
// extension win; a fragment match without the extension is accepted as a
// fallback within the tier.
func (l *Locator) exactPattern(page *session.Page, doc *goquery.Document, fragments []string) (string, bool) {
	var withExt, withoutExt string
	for _, frag := range fragments {
		doc.Find(fmt.Sprintf(`a[href*="%s"]`, frag)).EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			abs := page.Resolve(href)
			if !containsAny(abs, fragments) {
				return true
			}
			if strings.HasSuffix(abs, l.format.Extension) {
				withExt = abs
				return false
			}
			if withoutExt == "" {
				withoutExt = abs
			}
			return true
		})
		if withExt != "" {
			return withExt, true
		}
	}
	if withoutExt != "" {
		return withoutExt, true
	}
	return "", false
}

// linkText intersects a visible-text match on the format name with the
// canonical fragment requirement.
func (l *Locator) linkText(page *session.Page, doc *goquery.Document, fragments []string) (string, bool) {
	var found string
	token := strings.ToUpper(l.format.Name)
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(strings.ToUpper(a.Text()), token) {
			return true
		}
		href, _ := a.Attr("href")
		abs := page.Resolve(href)
		if containsAny(abs, fragments) {
			found = abs
			return false
		}
		return true
	})
	return found, found != ""
}

// loose accepts any link with the expected extension. If it does not already
// carry the canonical fragment, only its filename is kept and the URL is
// rebuilt from the canonical template.
func (l *Locator) loose(page *session.Page, doc *goquery.Document, id string, fragments []string) (string, bool) {
	var found string
	doc.Find(fmt.Sprintf(`a[href$="%s"]`, l.format.Extension)).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := page.Resolve(href)
		if containsAny(abs, fragments) {
			found = abs
		} else {
			found = l.repo.DocumentURL(id, lastSegment(abs))
		}
		return false
	})
	return found, found != ""
}

// genericProbes is the final fallback: a fixed list of generic selectors,
// each reconstructed through the canonical template.
func (l *Locator) genericProbes(page *session.Page, doc *goquery.Document, id string) (string, bool) {
	probes := []func() *goquery.Selection{
		func() *goquery.Selection { return doc.Find(`a[href*="/pdf/"]`) },
		func() *goquery.Selection { return doc.Find(fmt.Sprintf(`a[href$="%s"]`, l.format.Extension)) },
		func() *goquery.Selection {
			return doc.Find("a[href]").FilterFunction(func(_ int, a *goquery.Selection) bool {
				return strings.Contains(strings.ToUpper(a.Text()), strings.ToUpper(l.format.Name))
			})
		},
		func() *goquery.Selection {
			return doc.Find(fmt.Sprintf(`a[title*="%s"]`, strings.ToUpper(l.format.Name)))
		},
	}

	for _, probe := range probes {
		var found string
		probe().EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			// Query parameters are ignored here: only the path's last
			// segment matters, since the URL is rebuilt anyway.
			seg := lastSegment(page.Resolve(href))
			if !strings.HasSuffix(seg, l.format.Extension) {
				return true
			}
			found = l.repo.DocumentURL(id, seg)
			return false
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

func (l *Locator) filename(docURL, id string) string {
	name := lastSegment(docURL)
	if !strings.HasSuffix(name, l.format.Extension) {
		return id + l.format.Extension
	}
	return name
}

func containsAny(s string, fragments []string) bool {
	for _, frag := range fragments {
		if strings.Contains(s, frag) {
			return true
		}
	}
	return false
}

func lastSegment(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		return path.Base(u.Path)
	}
	return path.Base(rawURL)
}
