package main

import (
	"encoding/json"
	"net/http"

	"waprofiles/internal/metrics"
	"waprofiles/internal/service"
	"waprofiles/internal/tracing"

	"github.com/sirupsen/logrus"
)

// handleMetrics returns a snapshot of the in-process metrics registry.
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestInfo := tracing.GetRequestInfo(r.Context())
		log := s.logger.WithFields(logrus.Fields{
			service.LogFieldRequestID: requestInfo.RequestID,
			service.LogFieldTraceID:   requestInfo.TraceID,
		})

		snapshot := metrics.GetAllMetrics()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(snapshot); err != nil {
			log.WithError(err).Error("Failed to encode metrics response")
			return
		}
		log.WithField(service.LogFieldCount, len(snapshot.Counters)+len(snapshot.Timers)+len(snapshot.Gauges)).
			Debug("Metrics endpoint served")
	}
}
