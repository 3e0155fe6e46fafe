package fetcher

import (
	"context"
	"time"

	"github.com/user/post-scraper/internal/proxy"
)

// DefaultTimeout bounds a single page request.
const DefaultTimeout = 15 * time.Second

// Fetcher retrieves the raw body of a page. Failures are reported as
// *domain.FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Options configures both fetcher implementations.
type Options struct {
	Timeout          time.Duration
	RateLimitPerHost float64 // requests per second, 0 disables limiting
	Rotator          *proxy.Manager
}

func (o Options) withDefaults() (Options, error) {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Rotator == nil {
		m, err := proxy.NewManager(nil, nil)
		if err != nil {
			return o, err
		}
		o.Rotator = m
	}
	return o, nil
}
