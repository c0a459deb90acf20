// Package site describes the two literature sources the pipeline knows how
// to work: a repository site hosting full text under stable content IDs, and
// a bibliographic index site whose records must be cross-referenced back to
// the repository before a document can be located.
package site

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Kind identifies which source a site is.
type Kind string

const (
	KindRepository Kind = "repository"
	KindIndex      Kind = "index"
)

// Site holds the URL templates and identifier scheme for one source site.
// Tests construct Sites pointing at httptest servers; production code uses
// PMC() and PubMed().
type Site struct {
	Kind Kind
	// Root is the scheme and host with no trailing slash.
	Root string
	// SearchPath is the path of the search endpoint.
	SearchPath string
	// QueryParam is the query parameter the phrase is encoded into.
	QueryParam string
	// ArticlePath is a printf template producing an article page path from an ID.
	ArticlePath string
	// DocumentPath is a printf template producing a document path from (ID, filename).
	// This is the canonical document template; locator reconstruction always
	// normalizes toward it.
	DocumentPath string
	// IDPrefix is the textual prefix of this site's identifiers, if any.
	IDPrefix string
}

// PMC returns the repository site definition.
func PMC() Site {
	return Site{
		Kind:         KindRepository,
		Root:         "https://pmc.ncbi.nlm.nih.gov",
		SearchPath:   "/search/",
		QueryParam:   "term",
		ArticlePath:  "/articles/%s/",
		DocumentPath: "/articles/%s/pdf/%s",
		IDPrefix:     "PMC",
	}
}

// PubMed returns the index site definition.
func PubMed() Site {
	return Site{
		Kind:        KindIndex,
		Root:        "https://pubmed.ncbi.nlm.nih.gov",
		SearchPath:  "/",
		QueryParam:  "term",
		ArticlePath: "/%s/",
	}
}

// SearchURL builds the search endpoint URL for a phrase.
func (s Site) SearchURL(phrase string) string {
	return fmt.Sprintf("%s%s?%s=%s", s.Root, s.SearchPath, s.QueryParam, url.QueryEscape(phrase))
}

// ArticleURL builds the canonical article page URL for an identifier.
func (s Site) ArticleURL(id string) string {
	return s.Root + fmt.Sprintf(s.ArticlePath, id)
}

// DocumentURL instantiates the canonical document template with (id, filename).
func (s Site) DocumentURL(id, filename string) string {
	return s.Root + fmt.Sprintf(s.DocumentPath, id, filename)
}

// DocumentFragment returns the path fragment that exact-match tiers look for,
// e.g. "/articles/PMC123/pdf/".
func (s Site) DocumentFragment(id string) string {
	return fmt.Sprintf(s.DocumentPath, id, "")
}

// Absolutize resolves an href against the site root. Scheme-relative and
// already-absolute hrefs pass through untouched apart from parsing.
func (s Site) Absolutize(href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("invalid href %q: %w", href, err)
	}
	base, err := url.Parse(s.Root + "/")
	if err != nil {
		return "", fmt.Errorf("invalid site root %q: %w", s.Root, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// Normalize canonicalizes a URL for deduplication: fragments are dropped and
// a trailing slash on the path is removed.
func Normalize(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

var (
	repositoryID      = regexp.MustCompile(`(?i)PMC(\d+)`)
	repositoryIDLoose = regexp.MustCompile(`(?i)PMC(\d{6,})`)
	recordPath        = regexp.MustCompile(`^/(\d{6,8})/?$`)
	recordLoose       = regexp.MustCompile(`/(\d{6,})/?$`)
)

// ExtractRepositoryID pulls a repository identifier out of an href or text
// snippet and returns it in normalized "PMC<digits>" form.
func ExtractRepositoryID(s string) (string, bool) {
	m := repositoryID.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return "PMC" + m[1], true
}

// ScanRepositoryID is the raw-markup variant of ExtractRepositoryID. It
// requires at least six digits so that stray "PMC123" mentions in prose do
// not resolve to a bogus article.
func ScanRepositoryID(markup string) (string, bool) {
	m := repositoryIDLoose.FindStringSubmatch(markup)
	if m == nil {
		return "", false
	}
	return "PMC" + m[1], true
}

// NumericID strips the repository prefix from an identifier. Some page
// templates omit the prefix in document paths.
func NumericID(id string) string {
	return strings.TrimPrefix(strings.TrimPrefix(id, "PMC"), "pmc")
}

// ExtractRecordID matches an index record identifier against the strict path
// template: the entire URL path must be a single 6-8 digit segment. This is
// deliberately narrower than a trailing-digit scan, which misfires on URLs
// with unrelated numeric segments.
func ExtractRecordID(href string) (string, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	m := recordPath.FindStringSubmatch(u.Path)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractRecordIDLoose matches a trailing digit run anywhere in an href.
// Only the last-resort all-links scan uses it; a length check filters out
// years and other short numbers.
func ExtractRecordIDLoose(href string) (string, bool) {
	m := recordLoose.FindStringSubmatch(href)
	if m == nil {
		return "", false
	}
	id := m[1]
	if len(id) < 6 || len(id) > 8 {
		return "", false
	}
	return id, true
}
