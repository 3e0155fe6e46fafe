package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/api"
	"github.com/user/post-scraper/internal/config"
	"github.com/user/post-scraper/internal/crawler"
	"github.com/user/post-scraper/internal/domain"
	"github.com/user/post-scraper/internal/fetcher"
	"github.com/user/post-scraper/internal/monitoring"
	"github.com/user/post-scraper/internal/proxy"
	"github.com/user/post-scraper/internal/storage"
)

// redisRunTTL is how long a run's posts stay in Redis.
const redisRunTTL = 7 * 24 * time.Hour

// app is the wired pipeline plus everything that must be closed after it.
type app struct {
	sites    []*domain.SiteProfile
	pipeline *crawler.Pipeline
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	checks   map[string]api.Pinger
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newFetcher(c *config.Config, rotator *proxy.Manager, l *zap.Logger) (fetcher.Fetcher, func(), error) {
	opts := fetcher.Options{
		Timeout:          c.Timeout(),
		RateLimitPerHost: c.RateLimitPerHost,
		Rotator:          rotator,
	}
	if c.FetchMode == config.FetchModeBrowser {
		b, err := fetcher.NewBrowserFetcher(opts, l)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	}
	h, err := fetcher.NewHTTPFetcher(opts, l)
	if err != nil {
		return nil, nil, err
	}
	return h, func() {}, nil
}

// buildApp wires config into a ready pipeline. Optional sinks are connected
// and checked here so a bad POSTGRES_URL or REDIS_ADDR fails before any
// page is fetched.
func buildApp(ctx context.Context, c *config.Config, l *zap.Logger) (_ *app, err error) {
	a := &app{checks: make(map[string]api.Pinger)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.sites, err = config.LoadSites(c.SitesFile); err != nil {
		return nil, err
	}

	rotator, err := proxy.NewManager(c.Proxies, c.UserAgentList())
	if err != nil {
		return nil, fmt.Errorf("proxy manager: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = monitoring.NewMetrics(a.registry)

	f, closeFetcher, err := newFetcher(c, rotator, l)
	if err != nil {
		return nil, fmt.Errorf("create %s fetcher: %w", c.FetchMode, err)
	}
	a.closers = append(a.closers, closeFetcher)

	var sinks storage.MultiSink
	if c.PostgresURL != "" {
		pg, err := storage.NewPostgresSink(ctx, c.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		sinks = append(sinks, pg)
		a.checks["postgres"] = pg
		l.Info("postgres sink enabled")
	}
	if c.RedisAddr != "" {
		rs := storage.NewRedisSink(c.RedisAddr, redisRunTTL)
		a.closers = append(a.closers, func() { _ = rs.Close() })
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		sinks = append(sinks, rs)
		a.checks["redis"] = rs
		l.Info("redis sink enabled", zap.String("addr", c.RedisAddr))
	}
	output := storage.FileOutput{File: storage.NewJSONFileSink(c.OutputPath), Sinks: sinks}

	runner := crawler.NewBatchRunner(f, crawler.BatchOptions{
		ConcurrencyLimit: c.ConcurrencyLimit,
		TolerateFailures: c.TolerateFailures,
	}, a.metrics, l)
	a.pipeline = crawler.NewPipeline(runner, output, crawler.PipelineOptions{
		TolerateFailures: c.TolerateFailures,
		NormalizeLinks:   c.NormalizeLinks,
	}, a.metrics, l)

	return a, nil
}
