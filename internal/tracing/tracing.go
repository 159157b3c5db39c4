package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ContextKey represents keys used for context values
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	TraceIDKey   ContextKey = "trace_id"
	StartTimeKey ContextKey = "start_time"
)

// RequestIDHeader carries the request id in and out of the API.
const RequestIDHeader = "X-Request-ID"

// RequestInfo contains tracing information for a request
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	TraceID   string    `json:"trace_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

// GenerateRequestID returns a new random request id.
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

// RequestIDFrom keeps a caller supplied id when it is a sane length,
// otherwise it generates one.
func RequestIDFrom(header string) string {
	if n := len(header); n > 0 && n <= 128 {
		return header
	}
	return GenerateRequestID()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, StartTimeKey, startTime)
}

func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

func GetStartTime(ctx context.Context) time.Time {
	startTime, _ := ctx.Value(StartTimeKey).(time.Time)
	return startTime
}

// GetRequestInfo extracts all tracing information from context
func GetRequestInfo(ctx context.Context) RequestInfo {
	return RequestInfo{
		RequestID: GetRequestID(ctx),
		TraceID:   GetTraceID(ctx),
		StartTime: GetStartTime(ctx),
	}
}

// Duration is the time since the start time stored in ctx, or zero.
func Duration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}
