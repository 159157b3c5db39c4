package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"waprofiles/internal/constants"
	apperrors "waprofiles/internal/errors"
	"waprofiles/internal/httputil"
	"waprofiles/internal/middleware"
	"waprofiles/internal/models"
	"waprofiles/internal/security"
	"waprofiles/internal/service"
	"waprofiles/internal/tracing"
	"waprofiles/internal/validation"
	"waprofiles/internal/versioning"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// ProfileAPI is the profile service as seen by the HTTP layer.
type ProfileAPI interface {
	Create(ctx context.Context, name, webhookURL string, enableWebhook bool) (*models.Profile, error)
	List(ctx context.Context) ([]models.ProfileStatus, error)
	Get(ctx context.Context, id int64) (*models.ProfileStatus, error)
	Lookup(ctx context.Context, id int64) (*models.Profile, error)
	Update(ctx context.Context, id int64, upd models.ProfileUpdate) (*models.Profile, error)
	Delete(ctx context.Context, id int64) error
	PairingCode(ctx context.Context, id int64) (string, error)
	Logout(ctx context.Context, id int64) error
	Authenticate(ctx context.Context, token string) (*models.Profile, error)
}

type MessageAPI interface {
	SendDirect(ctx context.Context, profile *models.Profile, phone, text string) (*models.SentMessage, error)
	SendGroup(ctx context.Context, profile *models.Profile, groupID, text string) (*models.SentMessage, error)
}

type DirectoryAPI interface {
	ListContacts(ctx context.Context, profile *models.Profile) ([]models.Contact, error)
	ListGroups(ctx context.Context, profile *models.Profile) ([]models.Group, error)
}

// EventIngress accepts raw provider webhook bodies.
type EventIngress interface {
	HandleWebhook(ctx context.Context, body []byte) error
}

// HealthChecker reports whether a dependency still answers.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ServerDeps groups the services the HTTP layer calls into.
type ServerDeps struct {
	Profiles  ProfileAPI
	Messages  MessageAPI
	Directory DirectoryAPI
	Ingress   EventIngress
	Database  HealthChecker
	Verifier  *security.WebhookVerifier
	// Verbose logs chat ids unmasked in request handling.
	Verbose bool
}

type Server struct {
	router    *mux.Router
	logger    *logrus.Logger
	errLog    *apperrors.Logger
	deps      ServerDeps
	qrTimeout time.Duration
	server    *http.Server
}

func NewServer(cfg *models.Config, deps ServerDeps, logger *logrus.Logger) *Server {
	qrTimeout := cfg.Session.QRRequestTimeout()
	if qrTimeout <= 0 {
		qrTimeout = time.Duration(constants.DefaultQRRequestTimeoutMs) * time.Millisecond
	}
	if deps.Verifier == nil {
		deps.Verifier = &security.WebhookVerifier{}
	}
	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		errLog:    apperrors.WrapLogger(logger),
		deps:      deps,
		qrTimeout: qrTimeout,
	}

	s.setupRoutes()

	port := cfg.Server.Port
	if port == "" {
		port = fmt.Sprint(constants.DefaultServerPort)
	}
	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.router,
		ReadTimeout:  secondsOr(cfg.Server.ReadTimeoutSec, constants.DefaultServerReadTimeoutSec),
		WriteTimeout: secondsOr(cfg.Server.WriteTimeoutSec, constants.DefaultServerWriteTimeoutSec),
		IdleTimeout:  secondsOr(cfg.Server.IdleTimeoutSec, constants.DefaultServerIdleTimeoutSec),
		BaseContext: func(net.Listener) context.Context {
			return service.WithVerbose(context.Background(), deps.Verbose)
		},
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger), middleware.RecoveryMiddleware(s.logger))
	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	s.router.HandleFunc("/", s.handleRoot()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// WAHA event ingress
	s.router.HandleFunc("/webhook/waha", s.handleProviderWebhook()).Methods(http.MethodPost)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(versioning.NewVersionMiddleware(s.logger).VersionHandler)

	api.HandleFunc("/profiles", s.handleCreateProfile()).Methods(http.MethodPost)
	api.HandleFunc("/profiles", s.requireToken(s.handleListProfiles())).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{id}", s.requireToken(s.handleGetProfile())).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{id}", s.requireToken(s.handleUpdateProfile())).Methods(http.MethodPut)
	api.HandleFunc("/profiles/{id}", s.requireToken(s.handleDeleteProfile())).Methods(http.MethodDelete)
	api.HandleFunc("/profiles/{id}/qrcode", s.requireToken(s.handleQRCode())).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{id}/logout", s.requireToken(s.handleLogout())).Methods(http.MethodPost)

	api.HandleFunc("/message/send", s.requireToken(s.handleSend(false))).Methods(http.MethodPost, http.MethodGet)
	api.HandleFunc("/groups/send", s.requireToken(s.handleSend(true))).Methods(http.MethodPost, http.MethodGet)
	api.HandleFunc("/groups", s.requireToken(s.handleListGroups())).Methods(http.MethodGet)
	api.HandleFunc("/contacts", s.requireToken(s.handleListContacts())).Methods(http.MethodGet)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Infof("Starting server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func secondsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

type contextKey string

const profileContextKey contextKey = "profile"

// authenticatedProfile returns the profile that owns the request's token.
func authenticatedProfile(ctx context.Context) (*models.Profile, bool) {
	p, ok := ctx.Value(profileContextKey).(*models.Profile)
	return p, ok
}

// requireToken resolves the Bearer token to its profile before calling next.
func (s *Server) requireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if fields := strings.Fields(r.Header.Get("Authorization")); len(fields) == 2 && strings.EqualFold(fields[0], "Bearer") {
			token = fields[1]
		}

		profile, err := s.deps.Profiles.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), profileContextKey, profile)
		next(w, r.WithContext(ctx))
	}
}

// writeError logs server-side failures and renders the error envelope.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := tracing.GetRequestID(r.Context())
	fields := logrus.Fields{
		service.LogFieldRequestID: requestID,
		service.LogFieldMethod:    r.Method,
		service.LogFieldURL:       r.URL.Path,
	}
	if status := apperrors.HTTPStatusCode(err); status >= http.StatusInternalServerError {
		s.errLog.LogRetryableError(err, "Request failed", fields)
	} else {
		s.errLog.WithError(err).WithFields(fields).Debug("Request rejected")
	}
	if writeErr := httputil.WriteError(w, err, requestID); writeErr != nil {
		s.logger.WithError(writeErr).Warn("Failed to write error response")
	}
}

func (s *Server) writeSuccess(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}) {
	if err := httputil.WriteSuccess(w, status, message, data); err != nil {
		s.logger.WithError(err).WithField(service.LogFieldRequestID, tracing.GetRequestID(r.Context())).
			Warn("Failed to write response")
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := validation.ValidateHTTPRequestSize(r, constants.MaxRequestBodyBytes); err != nil {
		return err
	}
	body := http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.New(apperrors.ErrCodeInvalidInput, err.Error()).WithUserMessage("Request body too large")
		}
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "malformed JSON body").
			WithUserMessage("Request body must be valid JSON")
	}
	return nil
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, apperrors.NewNotFoundError("Route", r.URL.Path))
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	err := apperrors.New(apperrors.ErrCodeInvalidInput, "method not allowed").
		WithContext("method", r.Method).
		WithUserMessage(fmt.Sprintf("Method %s not allowed", r.Method))
	resp := apperrors.ToHTTPResponse(err, tracing.GetRequestID(r.Context()))
	if writeErr := httputil.WriteJSON(w, http.StatusMethodNotAllowed, resp); writeErr != nil {
		s.logger.WithError(writeErr).Warn("Failed to write error response")
	}
}

func (s *Server) handleRoot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := httputil.WriteJSON(w, http.StatusOK, httputil.Envelope{
			Success: true,
			Message: "WhatsApp API is running",
			Version: versioning.CurrentVersion.String(),
		}); err != nil {
			s.logger.WithError(err).Warn("Failed to write response")
		}
	}
}

type healthReport struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Version  string `json:"version"`
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := healthReport{Status: "healthy", Database: "ok", Version: Version}
		status := http.StatusOK

		if s.deps.Database != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := s.deps.Database.Ping(ctx); err != nil {
				s.logger.WithError(err).Warn("Health check: database unavailable")
				report.Status = "unhealthy"
				report.Database = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}

		if err := httputil.WriteJSON(w, status, httputil.Envelope{Success: status == http.StatusOK, Data: report}); err != nil {
			s.logger.WithError(err).Warn("Failed to write health response")
		}
	}
}

// handleProviderWebhook verifies a WAHA delivery and hands it to the provider.
// Events for unknown sessions or types are acknowledged so WAHA does not retry them.
func (s *Server) handleProviderWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := s.deps.Verifier.Verify(r)
		if err != nil {
			s.logger.WithError(err).WithField(service.LogFieldRemoteIP, httputil.GetClientIP(r)).
				Warn("Rejected provider webhook")
			s.writeError(w, r, apperrors.NewAuthError("Invalid webhook signature"))
			return
		}

		if err := s.deps.Ingress.HandleWebhook(r.Context(), body); err != nil {
			if ignorableWebhookError(err) {
				s.logger.WithError(err).Debug("Ignoring provider webhook")
			} else {
				s.writeError(w, r, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "failed to handle provider webhook").
					WithUserMessage("Invalid webhook payload"))
				return
			}
		}
		s.writeSuccess(w, r, http.StatusOK, "", nil)
	}
}
