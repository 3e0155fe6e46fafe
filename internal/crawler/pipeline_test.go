package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/domain"
	"github.com/user/post-scraper/internal/fetcher"
	"github.com/user/post-scraper/internal/storage"
)

const listingPath = "/Category/all"

func listingHTML(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<div class="main__new__slider__desc"><a href="%s">link</a></div>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func postHTML(title string, paragraphs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if title != "" {
		fmt.Fprintf(&b, `<h1 class="news__inner__desc__title"> %s </h1>`, title)
	}
	b.WriteString(`<section class="article-content">`)
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "<p>%s</p>", p)
	}
	b.WriteString("</section></body></html>")
	return b.String()
}

func siteFor(baseURL string) *domain.SiteProfile {
	return &domain.SiteProfile{
		BaseURL:       baseURL,
		ListingPath:   listingPath,
		LinkSelector:  "div.main__new__slider__desc > a",
		TitleSelector: "h1.news__inner__desc__title",
		BodySelector:  "section.article-content > p",
	}
}

type pipelineFixture struct {
	pipeline *Pipeline
	output   string
}

func newFixture(t *testing.T, timeout time.Duration, limit int, tolerate, normalize bool) pipelineFixture {
	t.Helper()
	f, err := fetcher.NewHTTPFetcher(fetcher.Options{Timeout: timeout}, zap.NewNop())
	require.NoError(t, err)

	m := newTestMetrics()
	runner := NewBatchRunner(f, BatchOptions{ConcurrencyLimit: limit, TolerateFailures: tolerate}, m, zap.NewNop())
	output := filepath.Join(t.TempDir(), "output", "result.json")
	p := NewPipeline(runner, storage.NewJSONFileSink(output),
		PipelineOptions{TolerateFailures: tolerate, NormalizeLinks: normalize}, m, zap.NewNop())
	return pipelineFixture{pipeline: p, output: output}
}

func readOutput(t *testing.T, path string) []domain.PostRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []domain.PostRecord
	require.NoError(t, json.Unmarshal(data, &records))
	return records
}

func TestPipeline_TwoPosts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(listingPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML("/a", "/b"))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postHTML("Post A", "a1", "a2"))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(20 * time.Millisecond) // finish after /a
		fmt.Fprint(w, postHTML("Post B", "b1"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fx := newFixture(t, 5*time.Second, 50, false, false)
	summary, err := fx.pipeline.Run(context.Background(), "run-1", []*domain.SiteProfile{siteFor(srv.URL)})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Sites)
	assert.Equal(t, 1, summary.ListingsFetched)
	assert.Equal(t, 2, summary.LinksFound)
	assert.Equal(t, 2, summary.PostsWritten)

	assert.Equal(t, []domain.PostRecord{
		{Title: "Post A", Body: "a1\n\na2", URL: srv.URL + "/a"},
		{Title: "Post B", Body: "b1", URL: srv.URL + "/b"},
	}, readOutput(t, fx.output))
}

func TestPipeline_NoLinks(t *testing.T) {
	var postRequests atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(listingPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>no posts today</p></body></html>")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		postRequests.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fx := newFixture(t, 5*time.Second, 50, false, false)
	summary, err := fx.pipeline.Run(context.Background(), "run-2", []*domain.SiteProfile{siteFor(srv.URL)})
	require.NoError(t, err)

	assert.Zero(t, summary.LinksFound)
	assert.Zero(t, postRequests.Load())
	data, err := os.ReadFile(fx.output)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestPipeline_MissingTitleAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(listingPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML("/good", "/broken"))
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postHTML("Good", "text"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postHTML("", "orphan body"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fx := newFixture(t, 5*time.Second, 50, false, false)
	_, err := fx.pipeline.Run(context.Background(), "run-3", []*domain.SiteProfile{siteFor(srv.URL)})

	var parseErr *domain.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, srv.URL+"/broken", parseErr.URL)
	assert.Equal(t, domain.ReasonTitleNotFound, parseErr.Reason)
	assert.NoFileExists(t, fx.output)
}

func TestPipeline_TimeoutAmongFiftyAborts(t *testing.T) {
	const limit = 50
	var inFlight, maxInFlight atomic.Int32
	release := make(chan struct{})

	hrefs := make([]string, 0, limit)
	for i := range limit - 1 {
		hrefs = append(hrefs, fmt.Sprintf("/post/%d", i))
	}
	hrefs = append(hrefs, "/post/slow")

	mux := http.NewServeMux()
	mux.HandleFunc(listingPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML(hrefs...))
	})
	mux.HandleFunc("/post/", func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		if r.URL.Path == "/post/slow" {
			select {
			case <-release:
			case <-r.Context().Done():
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, postHTML("ok", "body"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(release)

	fx := newFixture(t, 300*time.Millisecond, limit, false, false)
	_, err := fx.pipeline.Run(context.Background(), "run-4", []*domain.SiteProfile{siteFor(srv.URL)})

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, srv.URL+"/post/slow", fetchErr.URL)
	assert.LessOrEqual(t, maxInFlight.Load(), int32(limit))
	assert.NoFileExists(t, fx.output)
}

func TestPipeline_ListingFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	fx := newFixture(t, 5*time.Second, 50, false, false)
	summary, err := fx.pipeline.Run(context.Background(), "run-5", []*domain.SiteProfile{siteFor(srv.URL)})

	var fetchErr *domain.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, srv.URL+listingPath, fetchErr.URL)
	assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	assert.Zero(t, summary.LinksFound)
	assert.NoFileExists(t, fx.output)
}

func TestPipeline_DuplicateLinksAreKept(t *testing.T) {
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(listingPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML("/a", "/a"))
	})
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, postHTML("Same", "x"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fx := newFixture(t, 5*time.Second, 50, false, false)
	_, err := fx.pipeline.Run(context.Background(), "run-6", []*domain.SiteProfile{siteFor(srv.URL)})
	require.NoError(t, err)

	assert.Equal(t, int32(2), hits.Load())
	assert.Len(t, readOutput(t, fx.output), 2)
}

func TestPipeline_MultipleSitesKeepSiteSelectors(t *testing.T) {
	muxA := http.NewServeMux()
	muxA.HandleFunc(listingPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML("/one"))
	})
	muxA.HandleFunc("/one", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postHTML("From A", "a"))
	})
	srvA := httptest.NewServer(muxA)
	defer srvA.Close()

	muxB := http.NewServeMux()
	muxB.HandleFunc("/news", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<ul><li><a class="item" href="/story">s</a></li></ul>`)
	})
	muxB.HandleFunc("/story", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<article><h2>From B</h2><div class="txt">b</div></article>`)
	})
	srvB := httptest.NewServer(muxB)
	defer srvB.Close()

	siteB := &domain.SiteProfile{
		BaseURL:       srvB.URL,
		ListingPath:   "/news",
		LinkSelector:  "a.item",
		TitleSelector: "article h2",
		BodySelector:  "div.txt",
	}

	fx := newFixture(t, 5*time.Second, 50, false, false)
	summary, err := fx.pipeline.Run(context.Background(), "run-7", []*domain.SiteProfile{siteFor(srvA.URL), siteB})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ListingsFetched)

	assert.Equal(t, []domain.PostRecord{
		{Title: "From A", Body: "a", URL: srvA.URL + "/one"},
		{Title: "From B", Body: "b", URL: srvB.URL + "/story"},
	}, readOutput(t, fx.output))
}

func TestPipeline_TolerateFailures(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(listingPath, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML("/good", "/missing", "/untitled"))
	})
	mux.HandleFunc("/good", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postHTML("Good", "text"))
	})
	mux.HandleFunc("/untitled", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postHTML("", "text"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fx := newFixture(t, 5*time.Second, 50, true, false)
	summary, err := fx.pipeline.Run(context.Background(), "run-8", []*domain.SiteProfile{siteFor(srv.URL)})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.PostsWritten)
	assert.Len(t, summary.Failures, 2)
	assert.Equal(t, []domain.PostRecord{
		{Title: "Good", Body: "text", URL: srv.URL + "/good"},
	}, readOutput(t, fx.output))
}

func TestPipeline_NormalizeLinks(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc(listingPath, func(w http.ResponseWriter, r *http.Request) {
		// An absolute href only works when resolved, not concatenated
		fmt.Fprint(w, listingHTML(srv.URL+"/abs"))
	})
	mux.HandleFunc("/abs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, postHTML("Absolute", "x"))
	})

	fx := newFixture(t, 5*time.Second, 50, false, true)
	_, err := fx.pipeline.Run(context.Background(), "run-9", []*domain.SiteProfile{siteFor(srv.URL)})
	require.NoError(t, err)

	records := readOutput(t, fx.output)
	require.Len(t, records, 1)
	assert.Equal(t, srv.URL+"/abs", records[0].URL)
}

func TestPipeline_NoSites(t *testing.T) {
	fx := newFixture(t, time.Second, 1, false, false)
	_, err := fx.pipeline.Run(context.Background(), "run-10", nil)
	assert.ErrorIs(t, err, domain.ErrNoSites)
	assert.NoFileExists(t, fx.output)
}

type failingSink struct{}

func (failingSink) Write(context.Context, storage.Batch) error {
	return errors.New("sink unavailable")
}

func TestPipeline_SinkError(t *testing.T) {
	site := siteFor("https://example.com")
	f := &fakeFetcher{pages: map[string]string{site.ListingURL(): listingHTML()}}
	m := newTestMetrics()
	runner := NewBatchRunner(f, BatchOptions{}, m, zap.NewNop())
	p := NewPipeline(runner, failingSink{}, PipelineOptions{}, m, zap.NewNop())

	_, err := p.Run(context.Background(), "run-11", []*domain.SiteProfile{site})
	assert.ErrorContains(t, err, "sink unavailable")
}
