// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rigrun-stream/internal/clock"
	"github.com/jeranaias/rigrun-stream/internal/config"
	"github.com/jeranaias/rigrun-stream/internal/logging"
	"github.com/jeranaias/rigrun-stream/internal/offline"
	"github.com/jeranaias/rigrun-stream/internal/ratelimit"
	"github.com/jeranaias/rigrun-stream/internal/session"
	"github.com/jeranaias/rigrun-stream/internal/status"
	"github.com/jeranaias/rigrun-stream/internal/storage"
	"github.com/jeranaias/rigrun-stream/internal/transport"
)

// bootstrapTimeout bounds the storage reads done while starting up.
const bootstrapTimeout = 10 * time.Second

// =============================================================================
// GLOBAL OPTIONS
// =============================================================================

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	BackendURL string
	Storage    string
	LogLevel   string
}

// LoadConfig loads the config file named by opts (or the default path) and
// applies the flag overrides. The result becomes the global config.
func LoadConfig(opts GlobalOptions) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if opts.ConfigPath != "" {
		cfg, err = config.LoadFromPath(opts.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	if opts.BackendURL != "" {
		cfg.Backend.URL = opts.BackendURL
	}
	if opts.Storage != "" && !strings.EqualFold(opts.Storage, cfg.Storage.Backend) {
		cfg.Storage.Backend = opts.Storage
		cfg.Storage.Path = ""
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Err: errors.Wrap(err, "invalid flags")}
	}

	config.SetGlobal(cfg)
	return cfg, nil
}

// =============================================================================
// APP
// =============================================================================

// App holds the long-lived collaborators every command builds on.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   *storage.Store
	Client  *transport.Client
	Monitor *offline.Monitor

	logCloser io.Closer
}

// NewApp sets up logging, storage and the backend client. Interactive
// commands log to a file under the config directory unless one is
// configured, so log lines never land on the chat screen.
func NewApp(cfg *config.Config, interactive bool) (*App, error) {
	logCfg := cfg.Logging
	if interactive && logCfg.File == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return nil, err
		}
		logCfg.File = filepath.Join(dir, "logs", "stream.log")
	}
	logger, closer, err := logging.Setup(logCfg)
	if err != nil {
		return nil, err
	}

	kv, err := storage.Open(cfg.StorageOptions())
	if err != nil {
		closer.Close()
		return nil, errors.Wrapf(err, "open %s storage", cfg.Storage.Backend)
	}
	store := storage.New(kv, logger).WithDefaultSelection(cfg.DefaultSelection())

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()
	clientID, err := store.ClientID(ctx)
	if err != nil {
		store.Close()
		closer.Close()
		return nil, errors.Wrap(err, "load client id")
	}

	if insecure, _ := offline.ValidateBaseURL(cfg.Backend.URL); insecure {
		logger.Warn().Str("url", cfg.Backend.URL).Msg("Backend URL is plain http on a remote host; traffic is unencrypted")
	}

	client := transport.NewClient(transport.Config{
		BaseURL:    cfg.Backend.URL,
		ClientID:   clientID,
		Timeout:    cfg.Backend.Timeout.Duration,
		MaxRetries: cfg.Backend.MaxRetries,
	}, logger)

	logger.Debug().
		Str("backend", cfg.Backend.URL).
		Str("storage", cfg.Storage.Backend).
		Msg("App initialized")

	return &App{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Client:    client,
		Monitor:   offline.NewMonitor(),
		logCloser: closer,
	}, nil
}

// Close releases storage and flushes the log file.
func (a *App) Close() error {
	err := a.Store.Close()
	if cerr := a.logCloser.Close(); err == nil {
		err = cerr
	}
	return err
}

// =============================================================================
// SESSION WIRING
// =============================================================================

// Session is one backend session with its status tracker, cooldown timer
// and controller.
type Session struct {
	ID         string
	Tracker    *status.Tracker
	Limiter    *ratelimit.Timer
	Controller *session.Controller
}

// StartSession obtains a backend session and wires a controller to it. The
// tracker starts following the stored selection until ctx is done.
func (a *App) StartSession(ctx context.Context) (*Session, error) {
	id, err := a.Client.CreateSession(ctx)
	if err != nil {
		var tErr *transport.Error
		if errors.As(err, &tErr) && tErr.Kind == transport.KindConnection {
			a.Monitor.SetOffline(tErr.Message)
		}
		return nil, errors.Wrap(err, "create session")
	}
	a.Monitor.SetOnline()

	cfg := a.Config
	clk := clock.Real()
	sel := a.Store.CurrentSelection

	tracker := status.New(status.Config{
		StreamRetryDelay:   cfg.Timing.StatusRetryDelay.Duration,
		LocalPollInterval:  cfg.Timing.LocalPollInterval.Duration,
		RemotePollInterval: cfg.Timing.RemotePollInterval.Duration,
	}, clk, a.Client, sel, a.Logger)

	limiter := ratelimit.New(ratelimit.Config{
		Cooldown: cfg.Timing.Cooldown.Duration,
		Tick:     time.Second,
	}, clk, sel)

	ctrl := session.NewController(ControllerConfig(cfg), id, session.Deps{
		Transport:    a.Client,
		Memory:       a.Store,
		Status:       tracker,
		Cooldown:     limiter,
		Connectivity: a.Monitor,
		Selection:    sel,
		Clock:        clk,
		Logger:       a.Logger,
	})

	tracker.Start(ctx, a.Store)
	a.Logger.Info().Str("session", id).Str("selection", sel().String()).Msg("Session started")

	return &Session{ID: id, Tracker: tracker, Limiter: limiter, Controller: ctrl}, nil
}

// Stop abandons any reply in flight and stops status tracking.
func (s *Session) Stop() {
	s.Controller.Cancel()
	s.Tracker.Stop()
}

// ControllerConfig maps the config file timings onto the controller.
func ControllerConfig(cfg *config.Config) session.Config {
	c := session.DefaultConfig()
	c.Debounce = cfg.Timing.Debounce.Duration
	c.MinVisible = cfg.Timing.MinVisible.Duration
	c.BusyNotice = cfg.Timing.BusyNotice.Duration
	c.LocalTimeout = cfg.Providers.LocalTimeout.Duration
	c.BuiltinTimeout = cfg.Providers.BuiltinTimeout.Duration
	c.OtherTimeout = cfg.Providers.OtherTimeout.Duration
	return c
}

// SendOptions reads the stored settings into per-request options.
func SendOptions(ctx context.Context, store *storage.Store) (session.SendOptions, storage.Settings) {
	st, err := store.Settings(ctx)
	if err != nil {
		st = storage.DefaultSettings()
	}
	return session.SendOptions{
		SystemInstruction:       st.SystemInstruction,
		Persona:                 st.Persona,
		DisableLongMemoryRecall: st.DisableLongMemoryRecall,
		DisableAllMemoryRecall:  st.DisableAllMemoryRecall,
		UnloadAfterCall:         st.UnloadAfterCall,
	}, st
}
