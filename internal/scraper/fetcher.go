package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// DefaultUserAgent is sent when none is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// maxPageBytes bounds a fetched page.
const maxPageBytes = 32 << 20

// Target is a page to fetch.
type Target struct {
	URL string
	// WaitSelector, if set, must appear before a rendered page is captured.
	WaitSelector string
}

// Fetcher retrieves the HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, target Target) (string, error)
}

// HTTPFetcher fetches pages without running JavaScript.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTP fetcher.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, target Target) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-CA,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", target.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: unexpected status %d", target.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", target.URL, err)
	}
	return string(body), nil
}

// BrowserFetcher renders pages in headless Chrome.
type BrowserFetcher struct {
	bin     string
	timeout time.Duration
	settle  time.Duration
	logger  *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowserFetcher creates a fetcher. Chrome is launched on first use; an
// empty bin lets rod locate or download a browser.
func NewBrowserFetcher(bin string, timeout, settle time.Duration, logger *zap.Logger) *BrowserFetcher {
	return &BrowserFetcher{
		bin:     bin,
		timeout: timeout,
		settle:  settle,
		logger:  logger,
	}
}

func (f *BrowserFetcher) ensureBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	l := launcher.New().Headless(true)
	if f.bin != "" {
		l = l.Bin(f.bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	f.launcher = l
	f.browser = browser
	f.logger.Info("headless browser started", zap.String("control_url", controlURL))
	return browser, nil
}

// Fetch implements Fetcher.
func (f *BrowserFetcher) Fetch(ctx context.Context, target Target) (string, error) {
	browser, err := f.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	p := page.Timeout(f.timeout)
	if err := p.Navigate(target.URL); err != nil {
		return "", fmt.Errorf("navigate %s: %w", target.URL, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load %s: %w", target.URL, err)
	}
	if target.WaitSelector != "" {
		if _, err := p.Element(target.WaitSelector); err != nil {
			return "", fmt.Errorf("wait for %q on %s: %w", target.WaitSelector, target.URL, err)
		}
	}

	// lazy tiles keep rendering after load
	if f.settle > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.settle):
		}
	}

	html, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read html %s: %w", target.URL, err)
	}
	return html, nil
}

// Close shuts the browser down.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.launcher.Cleanup()
	f.browser = nil
	f.launcher = nil
	return err
}
