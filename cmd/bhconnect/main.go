package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/nhle/bhconnect/internal/api"
	"github.com/nhle/bhconnect/internal/app"
	"github.com/nhle/bhconnect/internal/auth"
	"github.com/nhle/bhconnect/internal/credential"
	"github.com/nhle/bhconnect/internal/logging"
	"github.com/nhle/bhconnect/internal/model"
	"github.com/nhle/bhconnect/internal/notify"
	"github.com/nhle/bhconnect/internal/session"
	"github.com/nhle/bhconnect/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bhconnect: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.StringP("config", "c", model.DefaultConfigPath(), "path to the YAML config file")
	ephemeral := flag.Bool("ephemeral", false, "keep the session in memory only")
	scope := flag.String("scope", "", `session scope to join ("new" for a private one)`)
	baseURL := flag.String("api", "", "backend base URL, overrides api.base_url")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *ephemeral {
		cfg.Session.Backend = model.SessionBackendMemory
	}
	if *scope != "" {
		cfg.Session.Scope = *scope
	}
	if *baseURL != "" {
		cfg.API.BaseURL = *baseURL
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	backend, closeBackend, err := openSessionBackend(cfg, filepath.Dir(*configPath), logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	logger.Info("starting",
		zap.String("api", cfg.API.BaseURL),
		zap.String("session_backend", cfg.Session.Backend),
	)

	client := api.NewClient(cfg.API.BaseURL, api.Options{
		Timeout:    cfg.APITimeout(),
		MaxRetries: cfg.API.MaxRetries,
		Logger:     logger,
	})
	sess := session.NewContext(session.NewStore(backend), session.NewSignal(logger))
	authSvc := auth.NewService(client, sess, logger)
	notifications := notify.NewClient(client, sess, notify.Options{
		FetchTimeout: cfg.FetchTimeout(),
		Logger:       logger,
	})
	defer notifications.Close()

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.Display.Mouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	p := tea.NewProgram(app.New(app.Deps{
		Config:  cfg,
		Session: sess,
		Auth:    authSvc,
		Notify:  notifications,
		Admin:   client,
		Logger:  logger,
	}), opts...)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// openSessionBackend returns the key/value backend the session store
// persists to, and a func that releases it.
func openSessionBackend(cfg *model.AppConfig, configDir string, logger *zap.Logger) (session.Backend, func(), error) {
	switch cfg.Session.Backend {
	case model.SessionBackendKeyring:
		ring, err := credential.Open(configDir)
		if err != nil {
			return nil, nil, err
		}
		return ring, func() {}, nil

	case model.SessionBackendMemory:
		return session.NewMemoryBackend(), func() {}, nil

	default:
		db, err := store.NewSQLiteStore(cfg.Session.DBPath)
		if err != nil {
			return nil, nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		before := time.Now().Add(-time.Duration(cfg.Session.MaxIdleHours) * time.Hour)
		if n, err := db.PruneScopes(ctx, before); err != nil {
			logger.Warn("pruning idle session scopes", zap.Error(err))
		} else if n > 0 {
			logger.Info("pruned idle session scopes", zap.Int64("count", n))
		}

		scope := cfg.ResolveScope()
		logger.Debug("session scope", zap.String("scope", scope))
		return db.Scope(scope), func() {
			if err := db.Close(); err != nil {
				logger.Error("closing session store", zap.Error(err))
			}
		}, nil
	}
}
