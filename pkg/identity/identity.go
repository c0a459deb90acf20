// Package identity provides browser request identities: a User-Agent plus
// the header set a real browser would send alongside it. A session picks one
// identity when it opens and keeps it for its whole lifetime; mid-session
// rotation is avoided so request fingerprints stay consistent.
package identity

import (
	"crypto/rand"
	"math/big"
	"net/http"
)

// Profile is a complete request identity.
type Profile struct {
	UserAgent string
	Headers   map[string]string
}

// navigationHeaders is the header set sent by Chromium-family browsers on a
// top-level document navigation.
var navigationHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
}

// DefaultProfiles covers current desktop Chrome builds. All entries share the
// navigation header set; only the platform token varies.
var DefaultProfiles = []Profile{
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Headers:   navigationHeaders,
	},
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		Headers:   navigationHeaders,
	},
	{
		UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		Headers:   navigationHeaders,
	},
	{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		Headers:   navigationHeaders,
	},
}

// Default returns the first profile, a Chrome on macOS identity.
func Default() Profile {
	return DefaultProfiles[0]
}

// Pick returns a random profile from DefaultProfiles using crypto/rand.
// On a rand failure it falls back to Default.
func Pick() Profile {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(DefaultProfiles))))
	if err != nil {
		return Default()
	}
	return DefaultProfiles[n.Int64()]
}

// Apply sets the identity's User-Agent and headers on an outgoing request.
// Headers already present on the request are not overwritten, so callers can
// pre-set an operation-specific Accept.
func (p Profile) Apply(req *http.Request) {
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	for k, v := range p.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
}
