package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveFetch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveFetch("posts", 10*time.Millisecond, nil)
	m.ObserveFetch("posts", 10*time.Millisecond, nil)
	m.ObserveFetch("posts", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("posts", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchesTotal.WithLabelValues("posts", "failure")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.FetchDuration))
}

func TestNewMetrics_SeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}

func TestObserveRequest(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveRequest("POST", "/api/runs", 202, 5*time.Millisecond)
	m.ObserveRequest("POST", "/api/runs", 409, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/runs", "202")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/runs", "409")))
}
