package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/FranksOps/papyrus/internal/fingerprint"
	"github.com/FranksOps/papyrus/pkg/identity"
)

// BrowserConfig configures a Chrome-backed session.
type BrowserConfig struct {
	Headless bool
	Profile  identity.Profile
	// NavigateTimeout bounds each page navigation.
	NavigateTimeout time.Duration
	// DownloadTimeout bounds waiting for a download event after a click or
	// direct navigation.
	DownloadTimeout time.Duration
	Logger          *slog.Logger
}

// ChromeSession drives a real browser through chromedp. It can click
// elements and capture the download events this produces, which is the only
// reliable acquisition path on pages that gate documents behind scripted
// links. Direct fetches fall back to an embedded HTTP session sharing the
// same identity.
type ChromeSession struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	cfg       BrowserConfig
	fallback  *HTTPSession
	downloads *downloadWatcher
	logger    *slog.Logger

	mu      sync.Mutex
	lastURL string
}

var _ Session = (*ChromeSession)(nil)

// NewBrowser launches Chrome and prepares a tab with the session identity.
func NewBrowser(parent context.Context, cfg BrowserConfig) (*ChromeSession, error) {
	if cfg.Profile.UserAgent == "" {
		cfg.Profile = identity.Default()
	}
	if cfg.NavigateTimeout == 0 {
		cfg.NavigateTimeout = 15 * time.Second
	}
	if cfg.DownloadTimeout == 0 {
		cfg.DownloadTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.UserAgent(cfg.Profile.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	headers := network.Headers{}
	for k, v := range cfg.Profile.Headers {
		headers[k] = v
	}
	if err := chromedp.Run(tabCtx, network.Enable(), network.SetExtraHTTPHeaders(headers)); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("session: launch browser: %w", err)
	}

	fallback, err := NewHTTP(HTTPConfig{
		Profile:     cfg.Profile,
		Fingerprint: fingerprint.ProfileChrome,
		Timeout:     cfg.NavigateTimeout,
		Logger:      cfg.Logger,
	})
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, err
	}

	s := &ChromeSession{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		cfg:         cfg,
		fallback:    fallback,
		downloads:   newDownloadWatcher(),
		logger:      cfg.Logger,
	}
	s.downloads.listen(tabCtx)
	return s, nil
}

// bounded derives a run context from the tab context with the given timeout,
// also honoring the caller's cancellation.
func (s *ChromeSession) bounded(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(s.ctx, d)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// Load navigates the tab and returns the rendered markup.
func (s *ChromeSession) Load(ctx context.Context, pageURL string) (*Page, error) {
	runCtx, cancel := s.bounded(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", pageURL, err)
	}

	s.mu.Lock()
	s.lastURL = pageURL
	s.mu.Unlock()

	return NewPage(pageURL, []byte(html)), nil
}

// Fetch uses the embedded HTTP session; CDP has no request API suitable for
// streaming large binaries.
func (s *ChromeSession) Fetch(ctx context.Context, url, accept string) (*Response, error) {
	return s.fallback.Fetch(ctx, url, accept)
}

// TriggerDownload makes sure the tab is on pageURL, then walks the selector
// list: scroll the element into view, click it, and wait for the browser's
// download to complete. The first selector that produces a completed
// download wins.
func (s *ChromeSession) TriggerDownload(ctx context.Context, pageURL string, selectors []Selector, dir string) (*Saved, error) {
	if err := s.setDownloadDir(ctx, dir); err != nil {
		return nil, err
	}

	s.mu.Lock()
	onPage := s.lastURL == pageURL
	s.mu.Unlock()
	if !onPage {
		if _, err := s.Load(ctx, pageURL); err != nil {
			return nil, err
		}
	}

	for _, sel := range selectors {
		saved, err := s.clickAndWait(ctx, sel, dir)
		if err != nil {
			s.logger.Debug("click download failed", "selector", sel.Query+sel.XPath, "err", err)
			continue
		}
		return saved, nil
	}
	return nil, fmt.Errorf("session: no selector produced a download on %s", pageURL)
}

func (s *ChromeSession) clickAndWait(ctx context.Context, sel Selector, dir string) (*Saved, error) {
	runCtx, cancel := s.bounded(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	q := sel.Query
	opt := chromedp.ByQuery
	if sel.XPath != "" {
		q = sel.XPath
		opt = chromedp.BySearch
	}

	s.downloads.reset()
	err := chromedp.Run(runCtx,
		chromedp.ScrollIntoView(q, opt),
		chromedp.Click(q, opt, chromedp.NodeVisible),
	)
	if err != nil {
		return nil, err
	}

	guid, err := s.downloads.waitCompleted(runCtx)
	if err != nil {
		return nil, err
	}
	return &Saved{
		Path:              filepath.Join(dir, guid),
		SuggestedFilename: s.downloads.suggestedFor(guid),
	}, nil
}

// NavigateDownload points the tab straight at the document URL and captures
// the download this triggers. Chrome aborts the navigation itself once the
// response is recognized as a download; that abort is expected.
func (s *ChromeSession) NavigateDownload(ctx context.Context, url, dir string) (*Saved, error) {
	if err := s.setDownloadDir(ctx, dir); err != nil {
		return nil, err
	}

	runCtx, cancel := s.bounded(ctx, s.cfg.DownloadTimeout)
	defer cancel()

	s.downloads.reset()
	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil &&
		!strings.Contains(err.Error(), "net::ERR_ABORTED") {
		return nil, fmt.Errorf("session: navigate %s: %w", url, err)
	}

	guid, err := s.downloads.waitCompleted(runCtx)
	if err != nil {
		return nil, err
	}
	return &Saved{
		Path:              filepath.Join(dir, guid),
		SuggestedFilename: s.downloads.suggestedFor(guid),
	}, nil
}

func (s *ChromeSession) setDownloadDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	runCtx, cancel := s.bounded(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(dir).
			WithEventsEnabled(true),
	)
	if err != nil {
		return fmt.Errorf("session: set download dir: %w", err)
	}
	return nil
}

// Snapshot renders the current page to PNG and dumps its markup.
func (s *ChromeSession) Snapshot(ctx context.Context) (*Snapshot, error) {
	runCtx, cancel := s.bounded(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	var img []byte
	var html string
	err := chromedp.Run(runCtx,
		chromedp.CaptureScreenshot(&img),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("session: snapshot: %w", err)
	}
	return &Snapshot{Image: img, HTML: []byte(html)}, nil
}

// Close tears down the tab and the browser process.
func (s *ChromeSession) Close() error {
	s.cancelTab()
	s.cancelAlloc()
	return s.fallback.Close()
}

// downloadWatcher tracks CDP download events on a tab.
type downloadWatcher struct {
	mu        sync.Mutex
	suggested map[string]string
	completed chan string
}

func newDownloadWatcher() *downloadWatcher {
	return &downloadWatcher{
		suggested: make(map[string]string),
		completed: make(chan string, 4),
	}
}

func (w *downloadWatcher) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			w.mu.Lock()
			w.suggested[e.GUID] = e.SuggestedFilename
			w.mu.Unlock()
		case *browser.EventDownloadProgress:
			if e.State == browser.DownloadProgressStateCompleted {
				select {
				case w.completed <- e.GUID:
				default:
				}
			}
		}
	})
}

// reset drains completion events left over from a previous attempt.
func (w *downloadWatcher) reset() {
	for {
		select {
		case <-w.completed:
		default:
			return
		}
	}
}

func (w *downloadWatcher) waitCompleted(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("session: waiting for download: %w", ctx.Err())
	case guid := <-w.completed:
		return guid, nil
	}
}

func (w *downloadWatcher) suggestedFor(guid string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.suggested[guid]
}
