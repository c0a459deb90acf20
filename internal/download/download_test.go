package download

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/FranksOps/papyrus/internal/locate"
	"github.com/FranksOps/papyrus/internal/resolve"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
)

var pdfBytes = []byte("%PDF-1.7 fake body")

func newFetcher(t *testing.T, cfg Config) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	cfg.Dir = dir
	sess, err := session.NewHTTP(session.HTTPConfig{})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return New(sess, site.PMC(), cfg), dir
}

func TestFetch_DirectStrategy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") == "" {
			t.Error("expected Accept header on direct fetch")
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write(pdfBytes)
	}))
	defer ts.Close()

	f, dir := newFetcher(t, Config{})
	res, err := f.Fetch(context.Background(),
		resolve.Article{ID: "PMC1", PageURL: ts.URL},
		locate.Document{URL: ts.URL + "/paper.pdf", Filename: "paper.pdf"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// The click and navigate strategies are unsupported on an HTTP session,
	// so a direct win proves the chain fell through them cleanly.
	if res.Strategy != "direct fetch" {
		t.Errorf("expected direct strategy, got %q", res.Strategy)
	}
	got, err := os.ReadFile(filepath.Join(dir, "paper.pdf"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if string(got) != string(pdfBytes) {
		t.Errorf("saved bytes mismatch")
	}
	if res.Bytes != int64(len(pdfBytes)) {
		t.Errorf("bytes = %d, want %d", res.Bytes, len(pdfBytes))
	}
}

func TestFetch_HTMLBodyRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>Please enable JavaScript</body></html>")
	}))
	defer ts.Close()

	f, dir := newFetcher(t, Config{})
	_, err := f.Fetch(context.Background(),
		resolve.Article{ID: "PMC2", PageURL: ts.URL},
		locate.Document{URL: ts.URL + "/paper.pdf", Filename: "paper.pdf"})
	if err == nil {
		t.Fatal("expected failure for a 200 HTML body")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "paper.pdf")); statErr == nil {
		t.Error("no file may be written for an invalid body")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("directory must stay clean, found %d entries", len(entries))
	}
}

func TestFetch_ErrorStatusRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A signature-valid body behind a non-2xx status must not count.
		w.WriteHeader(http.StatusForbidden)
		w.Write(pdfBytes)
	}))
	defer ts.Close()

	f, _ := newFetcher(t, Config{})
	_, err := f.Fetch(context.Background(),
		resolve.Article{ID: "PMC3", PageURL: ts.URL},
		locate.Document{URL: ts.URL + "/paper.pdf", Filename: "paper.pdf"})
	if err == nil {
		t.Fatal("expected failure for a 403 response")
	}
}

func pdfServer(t *testing.T, body []byte) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestFetch_CollisionOverwrite(t *testing.T) {
	ts := pdfServer(t, pdfBytes)

	f, dir := newFetcher(t, Config{Policy: PolicyOverwrite})
	existing := filepath.Join(dir, "paper.pdf")
	if err := os.WriteFile(existing, []byte("%PDF old"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := f.Fetch(context.Background(),
		resolve.Article{ID: "PMC4", PageURL: ts.URL},
		locate.Document{URL: ts.URL + "/paper.pdf", Filename: "paper.pdf"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	got, _ := os.ReadFile(existing)
	if string(got) != string(pdfBytes) {
		t.Error("overwrite policy must replace the existing file")
	}
	if res.Path != existing {
		t.Errorf("path = %s, want %s", res.Path, existing)
	}
}

func TestFetch_CollisionSkip(t *testing.T) {
	var hits int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write(pdfBytes)
	}))
	defer ts.Close()

	f, dir := newFetcher(t, Config{Policy: PolicySkip})
	existing := filepath.Join(dir, "paper.pdf")
	if err := os.WriteFile(existing, []byte("%PDF old"), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := f.Fetch(context.Background(),
		resolve.Article{ID: "PMC5", PageURL: ts.URL},
		locate.Document{URL: ts.URL + "/paper.pdf", Filename: "paper.pdf"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !res.Skipped {
		t.Error("expected skipped result")
	}
	if hits != 0 {
		t.Errorf("skip must short-circuit before any request, got %d hits", hits)
	}
	got, _ := os.ReadFile(existing)
	if string(got) != "%PDF old" {
		t.Error("skip policy must leave the existing file untouched")
	}
}

func TestFetch_CollisionRename(t *testing.T) {
	ts := pdfServer(t, pdfBytes)

	f, dir := newFetcher(t, Config{Policy: PolicyRename})
	for _, name := range []string{"paper.pdf", "paper-2.pdf"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("%PDF old"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	res, err := f.Fetch(context.Background(),
		resolve.Article{ID: "PMC6", PageURL: ts.URL},
		locate.Document{URL: ts.URL + "/paper.pdf", Filename: "paper.pdf"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if want := filepath.Join(dir, "paper-3.pdf"); res.Path != want {
		t.Errorf("path = %s, want %s", res.Path, want)
	}
	got, _ := os.ReadFile(res.Path)
	if string(got) != string(pdfBytes) {
		t.Error("renamed file must hold the new bytes")
	}
}

// clickSession simulates a browser session whose click strategy produces a
// saved download, for exercising the interactive tier without Chrome.
type clickSession struct {
	content   []byte
	suggested string
}

func (s *clickSession) Load(ctx context.Context, url string) (*session.Page, error) {
	return nil, fmt.Errorf("not wired")
}

func (s *clickSession) Fetch(ctx context.Context, url, accept string) (*session.Response, error) {
	return nil, fmt.Errorf("not wired")
}

func (s *clickSession) TriggerDownload(ctx context.Context, pageURL string, sels []session.Selector, dir string) (*session.Saved, error) {
	path := filepath.Join(dir, "f4cc7a3a-guid")
	if err := os.WriteFile(path, s.content, 0o644); err != nil {
		return nil, err
	}
	return &session.Saved{Path: path, SuggestedFilename: s.suggested}, nil
}

func (s *clickSession) NavigateDownload(ctx context.Context, url, dir string) (*session.Saved, error) {
	return nil, session.ErrUnsupported
}

func (s *clickSession) Snapshot(ctx context.Context) (*session.Snapshot, error) {
	return nil, session.ErrUnsupported
}

func (s *clickSession) Close() error { return nil }

func TestFetch_InteractivePrefersSuggestedFilename(t *testing.T) {
	dir := t.TempDir()
	f := New(&clickSession{content: pdfBytes, suggested: "zbc15870.pdf"}, site.PMC(), Config{Dir: dir})

	res, err := f.Fetch(context.Background(),
		resolve.Article{ID: "PMC7", PageURL: "https://repo.test/articles/PMC7/"},
		locate.Document{URL: "https://repo.test/articles/PMC7/pdf/", Filename: "PMC7.pdf"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Strategy != "interactive click" {
		t.Errorf("strategy = %q", res.Strategy)
	}
	if want := filepath.Join(dir, "zbc15870.pdf"); res.Path != want {
		t.Errorf("suggested filename should win: got %s, want %s", res.Path, want)
	}
}

func TestFetch_InteractiveRejectsBadSignature(t *testing.T) {
	dir := t.TempDir()
	// The clicked download is an HTML page; the tier must fail and the chain
	// has nothing left, since the fake supports no other strategy.
	f := New(&clickSession{content: []byte("<html>nope</html>")}, site.PMC(), Config{Dir: dir})

	_, err := f.Fetch(context.Background(),
		resolve.Article{ID: "PMC8", PageURL: "https://repo.test/articles/PMC8/"},
		locate.Document{URL: "https://repo.test/articles/PMC8/pdf/", Filename: "PMC8.pdf"})
	if err == nil {
		t.Fatal("expected failure")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("invalid saved file must be removed, found %d entries", len(entries))
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"":          PolicyOverwrite,
		"overwrite": PolicyOverwrite,
		"Skip":      PolicySkip,
		"rename":    PolicyRename,
	} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("bogus"); err == nil {
		t.Error("expected error for unknown policy")
	}
}
