package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/user/post-scraper/internal/domain"
)

// HTTPFetcher implements Fetcher with a plain GET request. One instance is
// shared by every in-flight fetch of a batch.
type HTTPFetcher struct {
	client   *http.Client
	opts     Options
	logger   *zap.Logger
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher. Requests go through the rotator's
// proxies (if any) and carry one of its user agents.
func NewHTTPFetcher(opts Options, logger *zap.Logger) (*HTTPFetcher, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	transport := &http.Transport{
		Proxy:               opts.Rotator.ProxyFunc,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		opts:     opts,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// limiterFor returns the per-host limiter, or nil when limiting is off.
func (f *HTTPFetcher) limiterFor(rawURL string) *rate.Limiter {
	if f.opts.RateLimitPerHost <= 0 {
		return nil
	}
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Host
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(f.opts.RateLimitPerHost), 1)
		f.limiters[host] = lim
	}
	return lim
}

// Fetch issues a GET for rawURL and returns the full body.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if lim := f.limiterFor(rawURL); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("rate limiter wait: %w", err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.opts.Rotator.UserAgent())

	f.logger.Debug("fetching", zap.String("url", rawURL))
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &domain.FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}
	f.logger.Debug("finished fetching", zap.String("url", rawURL), zap.Int("bytes", len(body)))
	return body, nil
}
