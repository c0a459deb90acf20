package batch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/papyrus/internal/pipeline"
	"github.com/FranksOps/papyrus/internal/session"
	"github.com/FranksOps/papyrus/internal/site"
)

func TestSubdir(t *testing.T) {
	cases := map[string]string{
		"oxidative stress": "oxidative_stress",
		"TGF-beta/Smad":    "TGF-beta_Smad",
		"plain":            "plain",
		"a b/c":            "a_b_c",
	}
	for in, want := range cases {
		if got := Subdir(in); got != want {
			t.Errorf("Subdir(%q) = %q, want %q", in, got, want)
		}
	}
}

func fakeRepo(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/articles/PMC1000001/">Result</a></body></html>`)
	})
	mux.HandleFunc("/articles/PMC1000001/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><a href="/articles/PMC1000001/pdf/doc.pdf">PDF</a></body></html>`)
	})
	mux.HandleFunc("/articles/PMC1000001/pdf/doc.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("%PDF-1.7 content"))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestRun_TwoPhrases(t *testing.T) {
	ts := fakeRepo(t)
	repo := site.PMC()
	repo.Root = ts.URL
	base := t.TempDir()

	summary, err := Run(context.Background(), Options{
		Phrases:    []string{"oxidative stress", "gene editing"},
		BaseDir:    base,
		NewSession: func(ctx context.Context) (session.Session, error) { return session.NewHTTP(session.HTTPConfig{}) },
		Pipeline: pipeline.Options{
			Repository: repo,
			Delay:      time.Millisecond,
		},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Phrases != 2 || summary.Saved != 2 || summary.Failed != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	for _, sub := range []string{"oxidative_stress", "gene_editing"} {
		path := filepath.Join(base, sub, "doc.pdf")
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s: %v", path, err)
		}
	}
	if summary.Results[0].Phrase != "oxidative stress" {
		t.Errorf("result order must follow input order: %+v", summary.Results)
	}
}

func TestRun_NoPhrases(t *testing.T) {
	_, err := Run(context.Background(), Options{
		NewSession: func(ctx context.Context) (session.Session, error) { return session.NewHTTP(session.HTTPConfig{}) },
	})
	if err == nil {
		t.Error("expected error for empty phrase list")
	}
}

func TestWriteText(t *testing.T) {
	summary := Summary{
		Phrases:   2,
		Saved:     3,
		Failed:    1,
		StartTime: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 4, 1, 10, 5, 0, 0, time.UTC),
		Duration:  5 * time.Minute,
		Results: []PhraseResult{
			{Phrase: "oxidative stress", Dir: "out/oxidative_stress", Saved: []string{"a.pdf", "b.pdf", "c.pdf"}},
			{Phrase: "gene editing", Dir: "out/gene_editing", Error: "pipeline: a session is required"},
		},
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, summary); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"Phrases:   2",
		"Saved:     3 documents",
		"oxidative stress: 3 saved -> out/oxidative_stress",
		"(error: pipeline: a session is required)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, Summary{Phrases: 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"phrases": 1`) {
		t.Errorf("unexpected JSON: %s", buf.String())
	}
}
