package versioning

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

type contextKey string

const VersionContextKey contextKey = "api_version"

const (
	AcceptVersionHeader     = "Accept-Version"
	APIVersionHeader        = "X-API-Version"
	CurrentVersionHeader    = "X-Current-Version"
	SupportedVersionsHeader = "X-Supported-Versions"
)

// VersionMiddleware stamps every response with the server version and
// rejects requests asking for a version this server cannot serve.
type VersionMiddleware struct {
	logger *logrus.Logger
}

func NewVersionMiddleware(logger *logrus.Logger) *VersionMiddleware {
	return &VersionMiddleware{logger: logger}
}

func (vm *VersionMiddleware) VersionHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(CurrentVersionHeader, CurrentVersion.String())
		w.Header().Set(SupportedVersionsHeader, SupportedRange())

		requested, err := vm.requestedVersion(r)
		if err != nil {
			vm.reject(w, r, http.StatusBadRequest, err.Error())
			return
		}
		compat := CheckCompatibility(requested)
		if !compat.Compatible {
			vm.reject(w, r, compat.Status, compat.Reason)
			return
		}

		ctx := context.WithValue(r.Context(), VersionContextKey, requested)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestedVersion reads Accept-Version, then X-API-Version, defaulting to
// the current version.
func (vm *VersionMiddleware) requestedVersion(r *http.Request) (APIVersion, error) {
	for _, header := range []string{AcceptVersionHeader, APIVersionHeader} {
		if raw := r.Header.Get(header); raw != "" {
			return ParseVersion(raw)
		}
	}
	return CurrentVersion, nil
}

func (vm *VersionMiddleware) reject(w http.ResponseWriter, r *http.Request, status int, reason string) {
	vm.logger.WithFields(logrus.Fields{
		"path":           r.URL.Path,
		"accept_version": r.Header.Get(AcceptVersionHeader),
		"status":         status,
	}).Warn("Rejected request for unsupported API version")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]interface{}{
		"success": false,
		"message": reason,
		"code":    "UNSUPPORTED_VERSION",
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		vm.logger.WithError(err).Error("Failed to encode version error response")
	}
}

// GetVersionFromContext returns the version negotiated for the request.
func GetVersionFromContext(ctx context.Context) (APIVersion, bool) {
	version, ok := ctx.Value(VersionContextKey).(APIVersion)
	return version, ok
}
