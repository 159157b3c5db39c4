package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"waprofiles/internal/auth"
	"waprofiles/internal/config"
	"waprofiles/internal/constants"
	"waprofiles/internal/database"
	"waprofiles/internal/models"
	"waprofiles/internal/privacy"
	"waprofiles/internal/retry"
	"waprofiles/internal/security"
	"waprofiles/internal/service"
	"waprofiles/internal/session"
	"waprofiles/internal/tracing"
	"waprofiles/pkg/whatsapp"
	"waprofiles/pkg/whatsapp/types"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes phone numbers and chat ids)")
	configPath = flag.String("config", constants.DefaultConfigPath, "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("waprofiles %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logrus.Warnf("Failed to load .env file: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if !verbose {
		logger.AddHook(privacy.MaskingHook{})
	}
	return logger
}

// applyLogLevel sets the configured level. Without -verbose nothing below
// info is emitted.
func applyLogLevel(logger *logrus.Logger, configured string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}
	level := logrus.InfoLevel
	if configured != "" {
		parsed, err := logrus.ParseLevel(configured)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", configured)
		} else if parsed < logrus.InfoLevel {
			level = parsed
		}
	}
	logger.SetLevel(level)
}

func run(ctx context.Context) error {
	logger := newLogger(*verbose)

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting waprofiles")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyLogLevel(logger, cfg.LogLevel, *verbose)
	if *verbose {
		logger.Info("Verbose logging enabled - phone numbers and chat ids will be logged")
	}

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	provider := whatsapp.NewProvider(types.ClientConfig{
		BaseURL:          cfg.WhatsApp.APIBaseURL,
		APIKey:           cfg.WhatsApp.APIKey,
		SessionPrefix:    cfg.WhatsApp.SessionPrefix,
		Timeout:          time.Duration(cfg.WhatsApp.TimeoutMs) * time.Millisecond,
		PublicWebhookURL: cfg.WhatsApp.PublicWebhookURL,
		WebhookSecret:    cfg.WhatsApp.WebhookSecret,
		EventTransport:   cfg.WhatsApp.EventTransport,
		EventBuffer:      cfg.Session.EventBuffer,
	}, logger)

	registry := session.NewRegistry()
	relay := session.NewRelay(service.NewWebhookSender(cfg.Webhook, logger), logger,
		time.Duration(cfg.Webhook.TimeoutMs)*time.Millisecond)
	manager := session.NewManager(provider, registry, relay, session.ConfigFromModel(cfg.Session), logger)

	ttl, err := auth.ParseTTL(cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("invalid token ttl: %w", err)
	}
	issuer, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	profiles := service.NewProfileService(db, manager, issuer, provider, logger)
	messages := service.NewMessageService(manager, logger)
	directory := service.NewDirectoryService(manager, cfg.Session.QueryTimeout(), logger)

	monitor := session.NewMonitor(manager, logger, cfg.Session.HealthCheckInterval(),
		time.Duration(constants.DefaultSessionStartupSec)*time.Second)

	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(next *models.Config) {
		applyLogLevel(logger, next.LogLevel, *verbose)
		manager.UpdateConfig(session.ConfigFromModel(next.Session))
	})

	server := NewServer(cfg, ServerDeps{
		Profiles:  profiles,
		Messages:  messages,
		Directory: directory,
		Ingress:   provider,
		Database:  db,
		Verifier: &security.WebhookVerifier{
			Secret:   cfg.WhatsApp.WebhookSecret,
			Required: config.IsProduction(),
			MaxSkew:  time.Duration(constants.DefaultWebhookMaxSkewSec) * time.Second,
			MaxBody:  constants.MaxWebhookBodyBytes,
		},
		Verbose: *verbose,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(server.Start)
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error {
		if err := watcher.Start(gctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher disabled")
		}
		return nil
	})

	if cfg.WhatsApp.EventTransport == types.TransportWebSocket {
		stream, err := whatsapp.NewEventStream(provider)
		if err != nil {
			return fmt.Errorf("failed to create WAHA event stream: %w", err)
		}
		g.Go(func() error { return stream.Run(gctx) })
		logger.Info("Receiving WAHA events over websocket")
	}

	if cfg.Session.RestoreOnStartup {
		g.Go(func() error {
			if err := profiles.RestoreSessions(service.WithVerbose(gctx, *verbose)); err != nil {
				logger.WithError(err).Warn("Failed to restore sessions")
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Received shutdown signal")
		return shutdown(server, monitor, manager, cfg, logger)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server shutdown completed")
	return nil
}

// openDatabase opens the profile store, retrying with exponential backoff.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoffConfig := retry.FromMillis(cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs, constants.DefaultDatabaseRetryAttempts)
	backoff := retry.NewBackoff(backoffConfig)

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(ctx, cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// shutdown stops accepting requests, then tears down every live session.
func shutdown(server *Server, monitor *session.Monitor, manager *session.Manager, cfg *models.Config, logger *logrus.Logger) error {
	timeout := secondsOr(cfg.Server.ShutdownTimeoutSec, constants.DefaultGracefulShutdownSec)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	monitor.Stop()

	var errs []error
	if err := server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shutdown server gracefully: %w", err))
	}
	if err := manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to destroy sessions: %w", err))
	}
	if len(errs) == 0 {
		logger.Info("Sessions destroyed")
	}
	return errors.Join(errs...)
}
