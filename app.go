package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/harrisonrobin/nexus/pkg/adapter"
	"github.com/harrisonrobin/nexus/pkg/alerts"
	"github.com/harrisonrobin/nexus/pkg/auth"
	"github.com/harrisonrobin/nexus/pkg/catalog"
	"github.com/harrisonrobin/nexus/pkg/config"
	"github.com/harrisonrobin/nexus/pkg/connection"
	"github.com/harrisonrobin/nexus/pkg/credentials"
	"github.com/harrisonrobin/nexus/pkg/google"
	"github.com/harrisonrobin/nexus/pkg/jira"
	"github.com/harrisonrobin/nexus/pkg/logging"
	"github.com/harrisonrobin/nexus/pkg/openproject"
	"github.com/harrisonrobin/nexus/pkg/rally"
	"github.com/harrisonrobin/nexus/pkg/reconcile"
	"github.com/harrisonrobin/nexus/pkg/store"
	"github.com/harrisonrobin/nexus/pkg/taskwarrior"
	"github.com/harrisonrobin/nexus/pkg/trello"
)

type globalOptions struct {
	configPath string
	logLevel   string
}

func (o *globalOptions) path() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return "", fmt.Errorf("could not find path to configuration file: %w", err)
	}
	return path, nil
}

func (o *globalOptions) loadConfig() (*config.Config, error) {
	path, err := o.path()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is the wired set of components every command works against.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	creds      *credentials.Store
	store      *store.Store
	alerts     *alerts.Table
	conns      *connection.Manager
	catalog    *catalog.Catalog
	reconciler *reconcile.Reconciler
}

func openApp(opts *globalOptions) (*app, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	creds, err := credentials.Open(cfg.CredentialsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	table, err := alerts.Open(cfg.AlertTablePath())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open alert table: %w", err)
	}
	policy, err := alerts.NewPolicy(cfg.Alerts)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry, err := buildRegistry(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	conns := connection.NewManager(creds, registry, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		creds:   creds,
		store:   st,
		alerts:  table,
		conns:   conns,
		catalog: catalog.New(conns, st, logger),
		reconciler: reconcile.New(conns, st, reconcile.Options{
			Concurrency: cfg.Sync.Concurrency,
			Alerts:      table,
			Policy:      policy,
		}, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.creds.Save(); err != nil {
		a.logger.Warn("failed to save credential store", zap.Error(err))
	}
	if err := a.alerts.Save(); err != nil {
		a.logger.Warn("failed to save alert table", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// buildRegistry registers one adapter per supported tool.
func buildRegistry(cfg *config.Config, logger *zap.Logger) (*adapter.Registry, error) {
	client := adapter.NewClient(adapter.ClientOptions{
		Timeout:     cfg.HTTPTimeout(),
		MaxRetries:  cfg.HTTP.MaxRetries,
		BaseBackoff: cfg.BaseBackoff(),
	}, logger)

	return adapter.NewRegistry(
		jira.New(client, logger),
		trello.New(client, logger),
		openproject.New(client, logger),
		rally.New(client, logger),
		google.New(googleOAuth(cfg, logger), client, logger),
		taskwarrior.NewAdapter(taskwarrior.ExecRunner, logger),
	)
}

// googleOAuth loads the client secrets file. Without it the Google Tasks adapter
// reports every call as an auth failure.
func googleOAuth(cfg *config.Config, logger *zap.Logger) *oauth2.Config {
	path := cfg.Resolve(cfg.Google.ClientSecrets)
	oc, err := auth.GoogleConfig(path, cfg.Google.AuthPort)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("ignoring Google client secrets", zap.String("path", path), zap.Error(err))
		}
		return nil
	}
	return oc
}

// signalContext is cancelled on interrupt or termination.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
