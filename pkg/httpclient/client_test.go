package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDo_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer ts.Close()

	c, err := New(Config{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestDo_NilContext(t *testing.T) {
	c, _ := New(Config{})
	req, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	//lint:ignore SA1012 verifying the guard
	if _, err := c.Do(nil, req); err == nil { //nolint:staticcheck
		t.Fatal("expected error for nil context")
	}
}

func TestRedirects_Disabled(t *testing.T) {
	var ts *httptest.Server
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, ts.URL+"/next", http.StatusFound)
	}))
	defer ts.Close()

	c, _ := New(Config{Timeout: 5 * time.Second, MaxRedirects: -1})
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Errorf("expected 302 without following, got %d", resp.StatusCode)
	}
}

func TestRedirects_Capped(t *testing.T) {
	var ts *httptest.Server
	hops := 0
	ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, ts.URL+"/loop", http.StatusFound)
	}))
	defer ts.Close()

	c, _ := New(Config{Timeout: 5 * time.Second, MaxRedirects: 3})
	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	resp, err := c.Do(context.Background(), req)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected redirect-limit error")
	}
	if hops > 5 {
		t.Errorf("followed too many redirects: %d", hops)
	}
}

func TestCookieJar_Persists(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
			return
		}
		if c, err := r.Cookie("session"); err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	c, _ := New(Config{Timeout: 5 * time.Second, UseCookieJar: true})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/set", nil)
	resp, err := c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodGet, ts.URL+"/check", nil)
	resp, err = c.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("cookie did not persist, got %d", resp.StatusCode)
	}
}
