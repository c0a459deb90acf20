package locate

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/FranksOps/papyrus/internal/resolve"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
)

func newLocator(t *testing.T) (*Locator, site.Site) {
	t.Helper()
	repo := site.PMC()
	repo.Root = "https://repo.test"
	sess, err := session.NewHTTP(session.HTTPConfig{})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return New(sess, repo, nil), repo
}

func serve(t *testing.T, html string) string {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, html)
	}))
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestLocate_ExactPattern(t *testing.T) {
	url := serve(t, `<html><body>
		<a href="/articles/PMC7681026/pdf/zbc15870.pdf">Download PDF</a>
	</body></html>`)

	l, _ := newLocator(t)
	doc, ok, err := l.Locate(context.Background(), resolve.Article{ID: "PMC7681026", PageURL: url})
	if err != nil || !ok {
		t.Fatalf("expected document, ok=%v err=%v", ok, err)
	}
	if doc.Filename != "zbc15870.pdf" {
		t.Errorf("expected filename from URL, got %s", doc.Filename)
	}
	if want := "/articles/PMC7681026/pdf/zbc15870.pdf"; !strings.Contains(doc.URL, want) {
		t.Errorf("expected canonical path in %s", doc.URL)
	}
}

func TestLocate_NumericOnlyVariant(t *testing.T) {
	// Some page templates omit the identifier prefix in document paths.
	url := serve(t, `<html><body>
		<a href="/articles/7681026/pdf/main.pdf">PDF</a>
	</body></html>`)

	l, _ := newLocator(t)
	doc, ok, err := l.Locate(context.Background(), resolve.Article{ID: "PMC7681026", PageURL: url})
	if err != nil || !ok {
		t.Fatalf("expected document, ok=%v err=%v", ok, err)
	}
	if doc.Filename != "main.pdf" {
		t.Errorf("got %s", doc.Filename)
	}
}

func TestLocate_ReconstructionInvariant(t *testing.T) {
	// A loose match at an alternate rendition path must never be returned
	// verbatim: the canonical template is instantiated with its filename.
	url := serve(t, `<html><body>
		<a href="https://cdn.mirror.example/dump/zbc15870.pdf">alternate copy</a>
	</body></html>`)

	l, repo := newLocator(t)
	doc, ok, err := l.Locate(context.Background(), resolve.Article{ID: "PMC7681026", PageURL: url})
	if err != nil || !ok {
		t.Fatalf("expected document, ok=%v err=%v", ok, err)
	}

	want := repo.DocumentURL("PMC7681026", "zbc15870.pdf")
	if doc.URL != want {
		t.Errorf("loose URL trusted verbatim:\n got  %s\n want %s", doc.URL, want)
	}
}

func TestLocate_LinkTextTier(t *testing.T) {
	// The href is page-relative, so the raw-attribute selector of the exact
	// tier misses; the text tier matches on the resolved URL instead.
	mux := http.NewServeMux()
	mux.HandleFunc("/articles/PMC7681026/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<a href="pdf/figures">figures</a>
			<a href="pdf/real.pdf">Full text PDF</a>
		</body></html>`)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	l, _ := newLocator(t)
	doc, ok, err := l.Locate(context.Background(), resolve.Article{ID: "PMC7681026", PageURL: ts.URL + "/articles/PMC7681026/"})
	if err != nil || !ok {
		t.Fatalf("expected document, ok=%v err=%v", ok, err)
	}
	if doc.Filename != "real.pdf" {
		t.Errorf("expected extension-suffixed link to win, got %+v", doc)
	}
}

func TestLocate_GenericProbeReconstructs(t *testing.T) {
	// The query string defeats the attribute-suffix selectors of the earlier
	// tiers; only the probe that inspects the resolved path's last segment
	// can still recover the filename.
	url := serve(t, `<html><body>
		<a href="/some/viewer/page" title="PDF viewer">open</a>
		<a href="/renditions/alt-1.pdf?download=1">Download PDF</a>
	</body></html>`)

	l, repo := newLocator(t)
	doc, ok, err := l.Locate(context.Background(), resolve.Article{ID: "PMC55", PageURL: url})
	if err != nil || !ok {
		t.Fatalf("expected document, ok=%v err=%v", ok, err)
	}
	if want := repo.DocumentURL("PMC55", "alt-1.pdf"); doc.URL != want {
		t.Errorf("got %s, want %s", doc.URL, want)
	}
}

func TestLocate_NoDocument(t *testing.T) {
	url := serve(t, `<html><body><p>Abstract only.</p></body></html>`)

	l, _ := newLocator(t)
	_, ok, err := l.Locate(context.Background(), resolve.Article{ID: "PMC1", PageURL: url})
	if err != nil {
		t.Fatalf("absence must not be an error: %v", err)
	}
	if ok {
		t.Fatal("expected no document")
	}
}

func TestLocate_TierOrdering(t *testing.T) {
	// Both an exact link and a loose foreign link exist; tier 1 must win and
	// the loose URL must not leak through.
	url := serve(t, `<html><body>
		<a href="https://cdn.mirror.example/other.pdf">mirror</a>
		<a href="/articles/PMC9/pdf/paper.pdf">PDF</a>
	</body></html>`)

	l, _ := newLocator(t)
	doc, ok, err := l.Locate(context.Background(), resolve.Article{ID: "PMC9", PageURL: url})
	if err != nil || !ok {
		t.Fatalf("expected document, ok=%v err=%v", ok, err)
	}
	if doc.Filename != "paper.pdf" {
		t.Errorf("expected exact tier to win, got %+v", doc)
	}
}

func TestClickTargets_PriorityOrder(t *testing.T) {
	repo := site.PMC()
	targets := ClickTargets(repo, "PMC123")
	if len(targets) != 4 {
		t.Fatalf("expected 4 click targets, got %d", len(targets))
	}
	if !strings.Contains(targets[0].Query, "/articles/PMC123/pdf/") {
		t.Errorf("first target should be the exact pattern, got %q", targets[0].Query)
	}
	if targets[2].XPath == "" {
		t.Errorf("third target should be the text match, got %+v", targets[2])
	}
}
