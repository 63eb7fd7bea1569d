package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectors(t *testing.T) {
	c := NewCollectors()

	c.ObserveSolve("optimal", 3*time.Millisecond)
	c.ObserveSolve("optimal", 5*time.Millisecond)
	c.ObserveSolve("infeasible", time.Millisecond)
	c.ObserveRun("exhausted", 2, 20*time.Millisecond)
	c.ObserveLLM("bundler", 100, 20, nil)
	c.ObserveLLM("bundler", 0, 0, errors.New("timeout"))
	c.ObserveBundleCache(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.solves.WithLabelValues("optimal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("exhausted")))
	assert.Equal(t, 100.0, testutil.ToFloat64(c.llmTokens.WithLabelValues("bundler", "prompt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequests.WithLabelValues("bundler", "error")))

	t.Run("middleware labels by route pattern", func(t *testing.T) {
		r := chi.NewRouter()
		r.Use(c.Middleware)
		r.Get("/menu/{id}", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
		r.Handle("/metrics", c.Handler())

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/menu/7", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues("/menu/{id}", "GET", "418")))

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), "fuelstack_solves_total"))
	})
}
