package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/post-scraper/internal/domain"
)

var (
	ErrRunInProgress = errors.New("a scrape run is already in progress")
	ErrRunNotFound   = errors.New("run not found")
)

// maxHistory bounds how many finished runs are kept for status queries.
const maxHistory = 100

// Scraper runs one complete scrape. *crawler.Pipeline satisfies it.
type Scraper interface {
	Run(ctx context.Context, runID string, sites []*domain.SiteProfile) (domain.RunSummary, error)
}

// RunManager starts scrape runs in the background, one at a time, and keeps
// their state for the API.
type RunManager struct {
	scraper Scraper
	sites   []*domain.SiteProfile
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	runs    map[string]*domain.RunState
	order   []string
	running bool
}

// NewRunManager creates a RunManager that scrapes sites on every trigger.
func NewRunManager(scraper Scraper, sites []*domain.SiteProfile, logger *zap.Logger) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &RunManager{
		scraper: scraper,
		sites:   sites,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		runs:    make(map[string]*domain.RunState),
	}
}

// Trigger starts a run and returns its ID without waiting for it. Only one
// run may be in progress at a time.
func (m *RunManager) Trigger() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return "", context.Canceled
	}
	if m.running {
		return "", ErrRunInProgress
	}

	id := uuid.NewString()
	m.remember(&domain.RunState{
		ID:        id,
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	})
	m.running = true

	m.wg.Add(1)
	go m.execute(id)

	m.logger.Info("run triggered", zap.String("run_id", id))
	return id, nil
}

func (m *RunManager) execute(id string) {
	defer m.wg.Done()

	summary, err := m.scraper.Run(m.ctx, id, m.sites)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false

	state, ok := m.runs[id]
	if !ok {
		return
	}
	finished := time.Now().UTC()
	state.FinishedAt = &finished
	state.Summary = &summary
	if err != nil {
		state.Status = domain.RunStatusFailed
		state.Error = err.Error()
		return
	}
	state.Status = domain.RunStatusCompleted
}

// remember stores a new run, evicting the oldest once maxHistory is reached.
// The caller holds m.mu.
func (m *RunManager) remember(state *domain.RunState) {
	if len(m.order) >= maxHistory {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.runs, oldest)
	}
	m.runs[state.ID] = state
	m.order = append(m.order, state.ID)
}

// Get returns a copy of the run's current state.
func (m *RunManager) Get(id string) (domain.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.runs[id]
	if !ok {
		return domain.RunState{}, ErrRunNotFound
	}
	return snapshot(state), nil
}

// Latest returns the most recently triggered run.
func (m *RunManager) Latest() (domain.RunState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		return domain.RunState{}, ErrRunNotFound
	}
	return snapshot(m.runs[m.order[len(m.order)-1]]), nil
}

// Shutdown cancels any run in progress and waits for it to return, or for
// ctx to expire.
func (m *RunManager) Shutdown(ctx context.Context) error {
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func snapshot(state *domain.RunState) domain.RunState {
	out := *state
	if state.Summary != nil {
		summary := *state.Summary
		summary.Failures = append([]domain.TaskFailure(nil), state.Summary.Failures...)
		out.Summary = &summary
	}
	if state.FinishedAt != nil {
		finished := *state.FinishedAt
		out.FinishedAt = &finished
	}
	return out
}
