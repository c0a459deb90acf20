package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/papyrus/internal/fingerprint"
	"github.com/FranksOps/papyrus/pkg/httpclient"
	"github.com/FranksOps/papyrus/pkg/identity"
)

// HTTPConfig configures a plain HTTP session.
type HTTPConfig struct {
	Profile     identity.Profile
	Fingerprint fingerprint.Profile
	Timeout     time.Duration
	// RespectRobots gates every page load on the host's robots.txt.
	RespectRobots bool
	Logger        *slog.Logger
}

// HTTPSession implements Session over a cookie-jarred HTTP client. It cannot
// capture download events; TriggerDownload and NavigateDownload report
// ErrUnsupported so the acquisition chain falls through to direct fetch.
type HTTPSession struct {
	client  *httpclient.Client
	profile identity.Profile
	robots  *robotsGate
	logger  *slog.Logger

	lastURL  string
	lastHTML []byte
}

var _ Session = (*HTTPSession)(nil)

// NewHTTP opens an HTTP session.
func NewHTTP(cfg HTTPConfig) (*HTTPSession, error) {
	if cfg.Profile.UserAgent == "" {
		cfg.Profile = identity.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		UseCookieJar: true,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	s := &HTTPSession{
		client:  client,
		profile: cfg.Profile,
		logger:  cfg.Logger,
	}
	if cfg.RespectRobots {
		s.robots = newRobotsGate(client, cfg.Profile.UserAgent, cfg.Logger)
	}
	return s, nil
}

// Load fetches a page in the session identity. A status of 400 or above is
// an error; the body is still read and remembered for snapshots.
func (s *HTTPSession) Load(ctx context.Context, pageURL string) (*Page, error) {
	if s.robots != nil && !s.robots.allowed(ctx, pageURL) {
		return nil, fmt.Errorf("session: %s disallowed by robots.txt", pageURL)
	}

	req, err := http.NewRequest(http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.profile.Apply(req)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", pageURL, err)
	}

	s.lastURL = pageURL
	s.lastHTML = body

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("session: load %s: status %d", pageURL, resp.StatusCode)
	}
	return NewPage(pageURL, body), nil
}

// Fetch issues a direct GET. Unlike Load it returns the response whatever
// the status; validation belongs to the caller.
func (s *HTTPSession) Fetch(ctx context.Context, fetchURL, accept string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	s.profile.Apply(req)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("session: fetch %s: %w", fetchURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", fetchURL, err)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

func (s *HTTPSession) TriggerDownload(ctx context.Context, pageURL string, selectors []Selector, dir string) (*Saved, error) {
	return nil, ErrUnsupported
}

func (s *HTTPSession) NavigateDownload(ctx context.Context, url, dir string) (*Saved, error) {
	return nil, ErrUnsupported
}

// Snapshot returns the last loaded markup. There is no renderer, so Image is
// always nil.
func (s *HTTPSession) Snapshot(ctx context.Context) (*Snapshot, error) {
	return &Snapshot{HTML: s.lastHTML}, nil
}

func (s *HTTPSession) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
