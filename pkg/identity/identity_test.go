package identity

import (
	"net/http"
	"testing"
)

func TestApply_SetsUserAgentAndHeaders(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/", nil)
	p := Default()
	p.Apply(req)

	if got := req.Header.Get("User-Agent"); got != p.UserAgent {
		t.Errorf("expected UA %q, got %q", p.UserAgent, got)
	}
	for k := range p.Headers {
		if req.Header.Get(k) == "" {
			t.Errorf("expected header %s to be set", k)
		}
	}
}

func TestApply_DoesNotOverwriteExisting(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://example.com/doc.pdf", nil)
	req.Header.Set("Accept", "application/pdf")

	Default().Apply(req)

	if got := req.Header.Get("Accept"); got != "application/pdf" {
		t.Errorf("operation-specific Accept was overwritten: %q", got)
	}
}

func TestPick_ReturnsKnownProfile(t *testing.T) {
	p := Pick()
	found := false
	for _, known := range DefaultProfiles {
		if known.UserAgent == p.UserAgent {
			found = true
			break
		}
	}
	if !found {
		t.Errorf("Pick returned an unknown profile: %q", p.UserAgent)
	}
}
