package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/httputil"
	"waprofiles/internal/metrics"
	"waprofiles/internal/service"
	"waprofiles/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ObservabilityMiddleware assigns a request id, opens a span, and records
// request metrics and an access log line for every request.
func ObservabilityMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := routeTemplate(r)
			ctx, span := tracing.StartSpan(r.Context(), "HTTP "+r.Method+" "+route,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("client.address", httputil.GetClientIP(r)),
				attribute.String("user_agent.original", r.UserAgent()),
			)
			defer span.End()

			requestID := tracing.RequestIDFrom(r.Header.Get(tracing.RequestIDHeader))
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)
			w.Header().Set(tracing.RequestIDHeader, requestID)

			metrics.AddToCounter("http_requests_active", 1, nil, "Currently active HTTP requests")
			defer metrics.AddToCounter("http_requests_active", -1, nil, "Currently active HTTP requests")

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(wrapper.statusCode)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 500 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			}

			labels := map[string]string{"method": r.Method, "route": route, "status_code": status}
			metrics.IncrementCounter("http_requests_total", labels, "HTTP requests by route and status")
			metrics.RecordTimer("http_request_duration", duration, labels, "HTTP request duration")

			level := logrus.InfoLevel
			switch {
			case wrapper.statusCode >= 500:
				level = logrus.ErrorLevel
			case wrapper.statusCode >= 400:
				level = logrus.WarnLevel
			}
			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  requestID,
				service.LogFieldTraceID:    tracing.GetTraceID(ctx),
				service.LogFieldMethod:     r.Method,
				service.LogFieldRoute:      route,
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   httputil.GetClientIP(r),
				service.LogFieldSize:       wrapper.responseSize,
			}).Log(level, "HTTP request completed")
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500 envelope.
func RecoveryMiddleware(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				requestID := tracing.GetRequestID(r.Context())
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: requestID,
					service.LogFieldRoute:     routeTemplate(r),
					"panic":                   fmt.Sprint(rec),
					"stack":                   string(debug.Stack()),
				}).Error("Handler panicked")
				metrics.IncrementCounter("http_panics_total", nil, "Recovered handler panics")

				err := apperrors.New(apperrors.ErrCodeInternalError, "handler panic")
				httputil.WriteError(w, err, requestID)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// routeTemplate returns the matched mux template so metrics do not grow one
// series per profile id.
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// responseWrapper captures response metrics
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if !rw.wroteHeader {
		rw.statusCode = statusCode
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}

func (rw *responseWrapper) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
