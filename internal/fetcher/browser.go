package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/domain"
)

// BrowserFetcher renders pages in headless Chrome before returning the
// markup, for sites that build their listing with JavaScript. All fetches
// share one browser; each one gets its own tab.
type BrowserFetcher struct {
	opts          Options
	logger        *zap.Logger
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewBrowserFetcher starts the browser. Call Close when the run is over.
func NewBrowserFetcher(opts Options, logger *zap.Logger) (*BrowserFetcher, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.Rotator.UserAgent()),
	)
	if p := opts.Rotator.NextProxy(); p != nil {
		allocOpts = append(allocOpts, chromedp.ProxyServer(p.String()))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
	)
	// Run with no actions launches the browser
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &BrowserFetcher{
		opts:          opts,
		logger:        logger,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// Fetch navigates a new tab to rawURL and returns the rendered document.
func (b *BrowserFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.opts.Timeout)
	defer cancelTimeout()

	// The tab hangs off the browser context, so tie it to the caller too
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	b.logger.Debug("rendering", zap.String("url", rawURL))
	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(rawURL))
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Join(err, ctx.Err())
		}
		return nil, &domain.FetchError{URL: rawURL, Err: err}
	}
	if err := checkResponse(rawURL, resp); err != nil {
		return nil, err
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, &domain.FetchError{URL: rawURL, Err: fmt.Errorf("read document: %w", err)}
	}
	b.logger.Debug("finished rendering", zap.String("url", rawURL), zap.Int("bytes", len(html)))
	return []byte(html), nil
}

// checkResponse applies the same 2xx rule as HTTPFetcher to the main
// document response. A nil response (e.g. about:blank) passes.
func checkResponse(rawURL string, resp *network.Response) error {
	if resp == nil {
		return nil
	}
	if resp.Status < 200 || resp.Status > 299 {
		return &domain.FetchError{URL: rawURL, StatusCode: int(resp.Status)}
	}
	return nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.cancelBrowser()
	b.cancelAlloc()
}
