// File: cmd/rewards/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/content-rewards/internal/cache"
	"github.com/smartdevs17/content-rewards/internal/config"
	"github.com/smartdevs17/content-rewards/internal/ledger"
	"github.com/smartdevs17/content-rewards/internal/metrics"
	"github.com/smartdevs17/content-rewards/internal/notification"
	"github.com/smartdevs17/content-rewards/internal/orchestrator"
	"github.com/smartdevs17/content-rewards/internal/server"
	"github.com/smartdevs17/content-rewards/internal/storage"
	"github.com/smartdevs17/content-rewards/internal/syncer"
	"github.com/smartdevs17/content-rewards/internal/wallet"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application wires the components of the content rewards client
type Application struct {
	config       *config.Config
	logger       *logrus.Logger
	metrics      *metrics.Manager
	ledger       *ledger.ConnectionManager
	cache        cache.Backend
	journal      storage.Journal
	notification *notification.NotificationManager
	orchestrator *orchestrator.Orchestrator
	session      *orchestrator.Session
	server       *server.HTTPServer
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config:  cfg,
		metrics: metrics.NewManager(),
		ctx:     ctx,
		cancel:  cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		_ = app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Debug("Logger initialized")
	return nil
}

func (app *Application) initializeComponents() error {
	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeNotification(); err != nil {
		return fmt.Errorf("failed to initialize notification: %w", err)
	}

	if err := app.initializeLedger(); err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	var journal storage.Journal
	if app.journal != nil {
		journal = app.journal
	}
	var notifier notification.Notifier
	if app.notification != nil {
		notifier = app.notification
	}

	app.orchestrator = orchestrator.New(orchestrator.Dependencies{
		Syncer:   app.syncer(),
		Journal:  journal,
		Notifier: notifier,
		Metrics:  app.metrics,
	}, app.config.Polling)

	return nil
}

// initializeLedger connects the ledger client and opens the session. A
// missing contract address leaves the session unconfigured.
func (app *Application) initializeLedger() error {
	cfg := &app.config.Ledger
	app.ledger = ledger.NewConnectionManager(cfg, app.metrics)

	var signer wallet.Signer
	if key := app.config.Wallet.PrivateKey; key != "" {
		keySigner, err := wallet.NewKeySigner(key)
		if err != nil {
			return err
		}
		signer = keySigner
	}

	var contract orchestrator.Contract
	if app.config.ContractConfigured() {
		client, err := ledger.NewRPCClient(app.ledger, cfg)
		if err != nil {
			return err
		}
		contract = ledger.NewContentRewards(client)
	} else {
		app.logger.Warn("Contract address is not configured; ledger operations are unavailable")
	}

	backend, err := cache.New(app.config.Cache)
	if err != nil {
		return err
	}
	app.cache = backend

	app.session = orchestrator.NewSession(cfg, contract, signer)

	fields := logrus.Fields{
		"endpoint":   cfg.Endpoint,
		"contract":   cfg.ContractAddress,
		"cache":      app.config.Cache.Backend,
		"has_wallet": signer != nil,
	}
	if signer != nil {
		fields["wallet"] = signer.Address().Hex()
	}
	app.logger.WithFields(fields).Info("Ledger session initialized")
	return nil
}

func (app *Application) syncer() *syncer.Synchronizer {
	var source syncer.Source
	if contract := app.session.Contract(); contract != nil {
		source = contract
	}
	synchronizer := syncer.New(source, app.cache, app.config.Cache.StaleTime, app.metrics)

	// a read may be retried after each failed attempt
	ledgerCfg := app.config.Ledger
	attempts := time.Duration(ledgerCfg.RetryAttempts + 1)
	synchronizer.SetLoadTimeout(attempts*ledgerCfg.RequestTimeout + (attempts-1)*ledgerCfg.RetryDelay)
	return synchronizer
}

func (app *Application) initializeStorage() error {
	cfg := &app.config.Storage
	if !cfg.Enabled {
		app.logger.Debug("Transaction journal disabled")
		return nil
	}

	if err := storage.ValidateStorageConfig(cfg); err != nil {
		return err
	}

	journal, err := storage.NewJournal(cfg)
	if err != nil {
		return err
	}
	if err := journal.Connect(); err != nil {
		return err
	}
	if err := journal.Migrate(); err != nil {
		_ = journal.Close()
		return err
	}

	app.journal = storage.NewJournalWithMetrics(journal, app.metrics)
	app.logger.WithField("type", cfg.Type).Info("Transaction journal initialized")
	return nil
}

func (app *Application) initializeNotification() error {
	cfg := app.config.Notifications
	if !cfg.Enabled {
		return nil
	}

	manager, err := notification.NewNotificationManager(notification.NewManagerConfig(cfg), app.metrics)
	if err != nil {
		return err
	}
	if err := manager.Start(app.ctx); err != nil {
		return err
	}

	app.notification = manager
	app.logger.WithField("channels", strings.Join(cfg.Channels, ",")).Info("Notification manager initialized")
	return nil
}

func (app *Application) initializeServer() {
	var journal storage.Journal
	if app.journal != nil {
		journal = app.journal
	}
	var notifier notification.Notifier
	if app.notification != nil {
		notifier = app.notification
	}

	app.server = server.NewHTTPServer(&app.config.Server, server.Dependencies{
		Orchestrator: app.orchestrator,
		Session:      app.session,
		Ledger:       app.ledger,
		Journal:      journal,
		Notifier:     notifier,
		Metrics:      app.metrics,
	})
}

// Serve starts the HTTP API
func (app *Application) Serve() error {
	app.initializeServer()

	app.logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"env":        app.config.App.Environment,
		"address":    fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"configured": app.session.Configured(),
	}).Info("Starting content rewards API")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop releases every component in reverse order
func (app *Application) Stop() error {
	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.notification != nil {
		if err := app.notification.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification manager")
		}
	}

	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close journal")
		}
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close cache")
		}
	}

	if app.ledger != nil {
		if err := app.ledger.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close ledger connection")
		}
	}

	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
