package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/FranksOps/papyrus/pkg/httpclient"
)

// robotsGate checks page loads against each host's robots.txt. Failures to
// fetch or parse robots.txt fail open, matching common crawler practice.
type robotsGate struct {
	client    *httpclient.Client
	userAgent string
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]*robotstxt.RobotsData
}

func newRobotsGate(client *httpclient.Client, userAgent string, logger *slog.Logger) *robotsGate {
	return &robotsGate{
		client:    client,
		userAgent: userAgent,
		logger:    logger,
		cache:     make(map[string]*robotstxt.RobotsData),
	}
}

func (g *robotsGate) allowed(ctx context.Context, target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := u.Scheme + "://" + u.Host

	data, err := g.getOrFetch(ctx, host)
	if err != nil {
		g.logger.Debug("robots.txt unavailable, allowing", "host", host, "err", err)
		return true
	}
	if data == nil {
		return true
	}
	return data.FindGroup(g.userAgent).Test(u.Path)
}

func (g *robotsGate) getOrFetch(ctx context.Context, host string) (*robotstxt.RobotsData, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if data, ok := g.cache[host]; ok {
		return data, nil
	}

	req, err := http.NewRequest(http.MethodGet, host+"/robots.txt", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		g.cache[host] = nil
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Missing robots.txt means no restrictions.
		g.cache[host] = nil
		return nil, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		g.cache[host] = nil
		return nil, err
	}

	parsed, err := robotstxt.FromBytes(body)
	if err != nil {
		g.cache[host] = nil
		return nil, fmt.Errorf("parse robots.txt: %w", err)
	}

	g.cache[host] = parsed
	return parsed, nil
}
