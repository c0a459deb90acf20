// Package session owns the browser-like client a pipeline invocation drives.
// Two implementations exist: a chromedp-backed Chrome session that can click
// links and capture download events, and a plain HTTP session used for tests
// and for environments without a browser. A session is opened once per
// invocation and must be closed on every exit path.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnsupported is returned by operations an implementation cannot perform,
// e.g. download-event capture on the HTTP session. Callers treat it as a
// strategy-tier miss, not a failure.
var ErrUnsupported = errors.New("session: operation not supported")

// Selector identifies a clickable element, as a CSS query or an XPath
// expression. Exactly one of the two is set.
type Selector struct {
	Query string
	XPath string
}

// Page is a loaded document: raw markup plus a lazily parsed DOM.
type Page struct {
	URL  string
	HTML []byte

	doc *goquery.Document
}

// NewPage wraps raw markup fetched from url.
func NewPage(pageURL string, html []byte) *Page {
	return &Page{URL: pageURL, HTML: html}
}

// Doc parses the markup on first use and caches the document.
func (p *Page) Doc() (*goquery.Document, error) {
	if p.doc != nil {
		return p.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.HTML))
	if err != nil {
		return nil, fmt.Errorf("session: parse %s: %w", p.URL, err)
	}
	p.doc = doc
	return doc, nil
}

// Resolve makes an href absolute against the page's own URL.
func (p *Page) Resolve(href string) string {
	base, err := url.Parse(p.URL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// Response is the outcome of a direct fetch.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the response carries a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Saved describes a file a download operation produced. Path is where the
// bytes currently sit; SuggestedFilename is the name the site proposed, when
// the transport exposed one.
type Saved struct {
	Path              string
	SuggestedFilename string
}

// Snapshot captures the session's current page for offline diagnosis.
// Image is nil for sessions that cannot render.
type Snapshot struct {
	Image []byte
	HTML  []byte
}

// Session is the browser-like client the pipeline components receive
// explicitly; no component holds hidden shared page state.
type Session interface {
	// Load navigates to url and returns the resulting page.
	Load(ctx context.Context, url string) (*Page, error)
	// Fetch issues a GET in the session's identity with the given Accept
	// header and returns the response regardless of status.
	Fetch(ctx context.Context, url, accept string) (*Response, error)
	// TriggerDownload navigates to pageURL if needed, then tries each
	// selector in order: scroll into view, click, and wait for a download
	// event. The file lands under dir.
	TriggerDownload(ctx context.Context, pageURL string, selectors []Selector, dir string) (*Saved, error)
	// NavigateDownload navigates straight to url and captures any download
	// this triggers, saving under dir.
	NavigateDownload(ctx context.Context, url, dir string) (*Saved, error)
	// Snapshot captures the current page state.
	Snapshot(ctx context.Context) (*Snapshot, error)
	Close() error
}
