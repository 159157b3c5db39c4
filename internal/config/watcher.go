package config

import (
	"context"
	"os"
	"sync"
	"time"

	"waprofiles/internal/models"

	"github.com/sirupsen/logrus"
)

const defaultWatchInterval = 5 * time.Second

// ConfigWatcher polls the configuration file and hands every successfully
// reloaded configuration to the registered callbacks.
type ConfigWatcher struct {
	configPath string
	interval   time.Duration
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

func NewConfigWatcher(configPath string, logger *logrus.Logger) *ConfigWatcher {
	return &ConfigWatcher{
		configPath: configPath,
		interval:   defaultWatchInterval,
		logger:     logger,
		callbacks:  make([]func(*models.Config), 0),
	}
}

// Start loads the file once and then polls its modification time until ctx ends.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	config, err := LoadConfig(cw.configPath)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	cw.config = config
	cw.mu.Unlock()

	stat, err := os.Stat(cw.configPath)
	if err != nil {
		return err
	}
	lastModTime := stat.ModTime()

	cw.logger.WithField("path", cw.configPath).Info("Configuration watcher started")

	ticker := time.NewTicker(cw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.logger.Info("Configuration watcher stopping")
			return nil

		case <-ticker.C:
			stat, err := os.Stat(cw.configPath)
			if err != nil {
				cw.logger.WithError(err).Error("Failed to stat configuration file")
				continue
			}
			if !stat.ModTime().After(lastModTime) {
				continue
			}
			cw.logger.Debug("Configuration file changed")
			lastModTime = stat.ModTime()

			// Let the writer finish
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(100 * time.Millisecond):
			}
			cw.reloadConfig()
		}
	}
}

// GetConfig returns the current configuration
func (cw *ConfigWatcher) GetConfig() *models.Config {
	cw.mu.RLock()
	defer cw.mu.RUnlock()
	return cw.config
}

// OnConfigChange registers a callback run after each successful reload.
func (cw *ConfigWatcher) OnConfigChange(callback func(*models.Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.callbacks = append(cw.callbacks, callback)
}

func (cw *ConfigWatcher) reloadConfig() {
	newConfig, err := LoadConfig(cw.configPath)
	if err != nil {
		cw.logger.WithError(err).Error("Failed to reload configuration, keeping previous")
		return
	}

	cw.mu.Lock()
	oldConfig := cw.config
	cw.config = newConfig
	callbacks := make([]func(*models.Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.Unlock()

	cw.logger.Info("Configuration reloaded successfully")
	cw.logConfigChanges(oldConfig, newConfig)

	for _, callback := range callbacks {
		cw.notify(callback, newConfig)
	}
}

func (cw *ConfigWatcher) notify(cb func(*models.Config), cfg *models.Config) {
	defer func() {
		if r := recover(); r != nil {
			cw.logger.WithField("panic", r).Error("Config change callback panicked")
		}
	}()
	cb(cfg)
}

// logConfigChanges logs the settings that take effect without a restart.
func (cw *ConfigWatcher) logConfigChanges(old, new *models.Config) {
	if old == nil {
		return
	}

	if old.LogLevel != new.LogLevel {
		cw.logger.WithFields(logrus.Fields{
			"old": old.LogLevel,
			"new": new.LogLevel,
		}).Info("Log level changed")
	}

	if old.Session != new.Session {
		cw.logger.WithFields(logrus.Fields{
			"poll_interval_ms": new.Session.PairingPollIntervalMs,
			"poll_attempts":    new.Session.PairingPollAttempts,
			"init_timeout_ms":  new.Session.InitTimeoutMs,
			"query_timeout_ms": new.Session.QueryTimeoutMs,
		}).Info("Session settings changed")
	}

	if old.WhatsApp.APIBaseURL != new.WhatsApp.APIBaseURL || old.Database.Path != new.Database.Path || old.Server.Port != new.Server.Port {
		cw.logger.Warn("WhatsApp URL, database path and port changes require a restart")
	}
}
