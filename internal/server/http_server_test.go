package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	token "github.com/pilab-dev/shadow-token"
	echoapi "github.com/pilab-dev/shadow-token/api/echo"
	"github.com/pilab-dev/shadow-token/cache"
	"github.com/pilab-dev/shadow-token/config"
	"github.com/pilab-dev/shadow-token/internal/metrics"
	"github.com/pilab-dev/shadow-token/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPServer(t *testing.T) {
	reg := prometheus.NewRegistry()
	svc := token.New(cache.NewMemoryStore(), token.WithMetrics(metrics.New(reg)))
	t.Cleanup(func() { _ = svc.Close() })

	healthy := true
	srv := NewHTTPServer(&config.ServerConfig{HTTPAddr: ":0"}, log.Nop(), echoapi.NewTokenAPI(svc), Options{
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Health: func(context.Context) error {
			if !healthy {
				return stderrors.New("down")
			}
			return nil
		},
	})
	assert.Equal(t, ":0", srv.Addr)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	require.Equal(t, http.StatusOK, get("/healthz").Code)

	_, err := svc.CreateToken(context.Background(), "tok-srv", "web", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, get("/tokens/tok-srv").Code)

	rec := get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "token_created_total 1")

	healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, get("/healthz").Code)
}
