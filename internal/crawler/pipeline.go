package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/domain"
	"github.com/user/post-scraper/internal/monitoring"
	"github.com/user/post-scraper/internal/storage"
)

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// TolerateFailures skips posts that fail to parse instead of aborting.
	// Fetch failures are governed by the BatchRunner's own option.
	TolerateFailures bool
	// NormalizeLinks resolves hrefs against the base URL instead of
	// concatenating them.
	NormalizeLinks bool
}

// Pipeline runs the listing and post phases for a set of sites and hands the
// result to a sink.
type Pipeline struct {
	runner  *BatchRunner
	sink    storage.Sink
	opts    PipelineOptions
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

func NewPipeline(runner *BatchRunner, sink storage.Sink, opts PipelineOptions, m *monitoring.Metrics, l *zap.Logger) *Pipeline {
	return &Pipeline{
		runner:  runner,
		sink:    sink,
		opts:    opts,
		metrics: m,
		logger:  l,
	}
}

// Run executes one complete scrape. Any error means nothing was written.
func (p *Pipeline) Run(ctx context.Context, runID string, sites []*domain.SiteProfile) (summary domain.RunSummary, err error) {
	log := p.logger.With(zap.String("run_id", runID))
	start := time.Now()
	defer func() {
		summary.Duration = time.Since(start)
		if err != nil {
			p.metrics.IncRuns("failure")
			log.Error("run failed", zap.Error(err), zap.Duration("elapsed", summary.Duration))
			return
		}
		p.metrics.IncRuns("success")
		log.Info("run completed",
			zap.Int("posts", summary.PostsWritten),
			zap.Int("skipped", len(summary.Failures)),
			zap.Duration("elapsed", summary.Duration),
		)
	}()

	if len(sites) == 0 {
		return summary, domain.ErrNoSites
	}
	summary.Sites = len(sites)

	listings := make([]*domain.FetchTask, 0, len(sites))
	for _, site := range sites {
		listings = append(listings, &domain.FetchTask{Site: site, URL: site.ListingURL()})
	}

	report, err := p.runner.Run(ctx, domain.PhaseListings, listings)
	if err != nil {
		return summary, err
	}
	summary.ListingsFetched = report.Fetched
	summary.Failures = append(summary.Failures, report.Failures...)

	posts, err := p.expand(listings)
	if err != nil {
		return summary, err
	}
	summary.LinksFound = len(posts)

	report, err = p.runner.Run(ctx, domain.PhasePosts, posts)
	if err != nil {
		return summary, err
	}
	summary.PostsFetched = report.Fetched
	summary.Failures = append(summary.Failures, report.Failures...)

	records, failures, err := p.parse(posts)
	if err != nil {
		return summary, err
	}
	summary.Failures = append(summary.Failures, failures...)

	batch := storage.Batch{RunID: runID, CompletedAt: time.Now().UTC(), Records: records}
	if err := p.sink.Write(ctx, batch); err != nil {
		return summary, fmt.Errorf("write output: %w", err)
	}
	summary.PostsWritten = len(records)
	return summary, nil
}

// expand turns fetched listing pages into post tasks, in listing order then
// document order.
func (p *Pipeline) expand(listings []*domain.FetchTask) ([]*domain.FetchTask, error) {
	var posts []*domain.FetchTask
	for _, listing := range listings {
		if !listing.Fetched() {
			continue // dropped by a tolerant batch
		}
		doc, err := ParseDocument(listing.Document)
		if err != nil {
			return nil, &domain.ParseError{URL: listing.URL, Reason: fmt.Sprintf("invalid document: %v", err)}
		}

		site := listing.Site
		var links []string
		if p.opts.NormalizeLinks {
			links = ExtractResolvedLinks(doc, site.LinkSelector, site.BaseURL)
		} else {
			links = ExtractLinks(doc, site.LinkSelector, site.BaseURL)
		}
		p.logger.Debug("extracted links", zap.String("url", listing.URL), zap.Int("links", len(links)))

		for _, link := range links {
			posts = append(posts, &domain.FetchTask{Site: site, URL: link})
		}
	}
	return posts, nil
}

// parse converts fetched post pages into records, preserving task order.
func (p *Pipeline) parse(posts []*domain.FetchTask) ([]domain.PostRecord, []domain.TaskFailure, error) {
	records := make([]domain.PostRecord, 0, len(posts))
	var failures []domain.TaskFailure
	for _, task := range posts {
		if !task.Fetched() {
			continue
		}
		record, err := p.parsePost(task)
		if err != nil {
			p.metrics.IncPosts("parse_failed")
			var parseErr *domain.ParseError
			if !p.opts.TolerateFailures || !errors.As(err, &parseErr) {
				return nil, nil, err
			}
			p.logger.Warn("skipping unparseable post", zap.String("url", task.URL), zap.Error(err))
			failures = append(failures, domain.TaskFailure{URL: task.URL, Reason: parseErr.Reason})
			continue
		}
		p.metrics.IncPosts("parsed")
		records = append(records, record)
	}
	return records, failures, nil
}

func (p *Pipeline) parsePost(task *domain.FetchTask) (domain.PostRecord, error) {
	doc, err := ParseDocument(task.Document)
	if err != nil {
		return domain.PostRecord{}, &domain.ParseError{URL: task.URL, Reason: fmt.Sprintf("invalid document: %v", err)}
	}
	return ParsePost(doc, task.Site.TitleSelector, task.Site.BodySelector, task.URL)
}
