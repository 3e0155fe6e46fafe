package domain

import "time"

// SiteProfile describes one site to scrape. It is read-only once loaded and
// shared by every task derived from it.
type SiteProfile struct {
	BaseURL       string `mapstructure:"base_url" json:"base_url"`
	ListingPath   string `mapstructure:"listing_path" json:"listing_path"`
	LinkSelector  string `mapstructure:"link_selector" json:"link_selector"`
	TitleSelector string `mapstructure:"title_selector" json:"title_selector"`
	BodySelector  string `mapstructure:"body_selector" json:"body_selector"`
}

// ListingURL is the address of the site's listing page.
func (s *SiteProfile) ListingURL() string {
	return s.BaseURL + s.ListingPath
}

// FetchTask pairs a URL with the site it belongs to and the fetched body.
// Document stays nil until the batch that owns the task has run it.
type FetchTask struct {
	Site     *SiteProfile
	URL      string
	Document []byte
}

// Fetched reports whether the batch populated the task's document.
func (t *FetchTask) Fetched() bool {
	return t.Document != nil
}

// PostRecord is one parsed post, the unit written to the output.
type PostRecord struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// Phase names a fetch batch in logs and metrics.
type Phase string

const (
	PhaseListings Phase = "listings"
	PhasePosts    Phase = "posts"
)

// TaskFailure records a task dropped under partial-failure tolerance.
type TaskFailure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// RunSummary describes a finished pipeline run.
type RunSummary struct {
	Sites           int           `json:"sites"`
	ListingsFetched int           `json:"listings_fetched"`
	LinksFound      int           `json:"links_found"`
	PostsFetched    int           `json:"posts_fetched"`
	PostsWritten    int           `json:"posts_written"`
	Failures        []TaskFailure `json:"failures,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// RunStatus values.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunState is the API view of a triggered run.
type RunState struct {
	ID         string      `json:"run_id"`
	Status     string      `json:"status"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Summary    *RunSummary `json:"summary,omitempty"`
	Error      string      `json:"error,omitempty"`
}
