package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStartStop(t *testing.T) {
	m := New(nil)

	m.ObserveStart("gin", nil)
	m.ObserveStart("gin", nil)
	m.ObserveStart("gin", errors.New("boom"))
	m.ObserveStop("gin", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AppStartsTotal.WithLabelValues("gin", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AppStartsTotal.WithLabelValues("gin", ResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AppStopsTotal.WithLabelValues("gin", ResultOK)))
}

func TestMiddleware(t *testing.T) {
	m := New(nil)
	h := m.Middleware("/mock/app/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/mock/app/", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/mock/app/", "404")))
}

func TestHandler(t *testing.T) {
	running := 3
	m := New(func() int { return running })
	m.ObserveStart("servemux", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "httpmocker_apps_running 3")
	assert.Contains(t, body, `httpmocker_app_starts_total{kind="servemux",result="ok"} 1`)
	assert.Contains(t, body, "go_goroutines")
}
