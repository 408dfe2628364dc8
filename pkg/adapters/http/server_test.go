package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	httpadapter "github.com/aretw0/replyflow/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_Health(t *testing.T) {
	h := httpadapter.NewHandler(httpadapter.Options{Gatherer: prometheus.NewRegistry()})

	w := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())

	w = serve(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	var body httpadapter.Readiness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)

	assert.Equal(t, http.StatusNotFound, serve(t, h, "/nope").Code)
}

func TestHandler_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "replyflow_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Add(3)

	w := serve(t, httpadapter.NewHandler(httpadapter.Options{Gatherer: reg}), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "replyflow_test_total 3")
}

func TestHandler_ReadinessFailure(t *testing.T) {
	h := httpadapter.NewHandler(httpadapter.Options{
		Gatherer: prometheus.NewRegistry(),
		Checks: map[string]httpadapter.Check{
			"redis": func(ctx context.Context) error { return errors.New("connection refused") },
			"store": func(ctx context.Context) error { return nil },
		},
	})

	w := serve(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body httpadapter.Readiness
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body.Status)
	assert.Equal(t, map[string]string{"redis": "connection refused", "store": "ok"}, body.Checks)
}

func TestHandler_ReadinessHonorsTimeout(t *testing.T) {
	h := httpadapter.NewHandler(httpadapter.Options{
		Gatherer:     prometheus.NewRegistry(),
		CheckTimeout: 1,
		Checks: map[string]httpadapter.Check{
			"slow": func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		},
	})
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, h, "/readyz").Code)
}
