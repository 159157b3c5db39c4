package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"waprofiles/internal/metrics"
	"waprofiles/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newRouter(logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(ObservabilityMiddleware(logger), RecoveryMiddleware(logger))
	router.HandleFunc("/api/profiles/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(tracing.GetRequestID(r.Context())))
	}).Methods(http.MethodGet)
	router.HandleFunc("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})
	return router
}

func TestObservabilityMiddleware_RequestID(t *testing.T) {
	router := newRouter(quietLogger())

	t.Run("generated when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profiles/7", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		id := rec.Header().Get(tracing.RequestIDHeader)
		assert.Contains(t, id, "req_")
		assert.Equal(t, id, rec.Body.String())
	})

	t.Run("caller id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/profiles/7", nil)
		req.Header.Set(tracing.RequestIDHeader, "client-42")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, "client-42", rec.Header().Get(tracing.RequestIDHeader))
		assert.Equal(t, "client-42", rec.Body.String())
	})
}

func TestObservabilityMiddleware_RecordsRouteTemplate(t *testing.T) {
	metrics.GetRegistry().Reset()
	router := newRouter(quietLogger())

	for _, id := range []string{"1", "2", "3"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profiles/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	snapshot := metrics.GetAllMetrics()
	var total float64
	for _, m := range snapshot.Counters {
		if m.Name == "http_requests_total" {
			assert.Equal(t, "/api/profiles/{id}", m.Labels["route"])
			assert.Equal(t, "200", m.Labels["status_code"])
			total += m.Value
		}
	}
	assert.Equal(t, float64(3), total)

	var active *metrics.Metric
	for _, m := range snapshot.Counters {
		if m.Name == "http_requests_active" {
			m := m
			active = &m
		}
	}
	require.NotNil(t, active)
	assert.Equal(t, float64(0), active.Value)
}

func TestRecoveryMiddleware(t *testing.T) {
	metrics.GetRegistry().Reset()
	router := newRouter(quietLogger())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.Equal(t, rec.Header().Get(tracing.RequestIDHeader), body["request_id"])
}

func TestRecoveryMiddleware_AbortHandlerPropagates(t *testing.T) {
	handler := RecoveryMiddleware(quietLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
