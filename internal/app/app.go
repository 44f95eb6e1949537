package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/loretree/loretree/internal/adapter/notify/chatapi"
	"github.com/loretree/loretree/internal/adapter/notify/ses"
	"github.com/loretree/loretree/internal/adapter/repository/postgres"
	codecommitAdapter "github.com/loretree/loretree/internal/adapter/vcs/codecommit"
	"github.com/loretree/loretree/internal/api"
	"github.com/loretree/loretree/internal/classifier"
	"github.com/loretree/loretree/internal/config"
	"github.com/loretree/loretree/internal/domain/execution"
	"github.com/loretree/loretree/internal/domain/item"
	"github.com/loretree/loretree/internal/domain/notify"
	"github.com/loretree/loretree/internal/domain/vcs"
	"github.com/loretree/loretree/internal/executor"
	"github.com/loretree/loretree/internal/guard"
	"github.com/loretree/loretree/internal/inbox"
	"github.com/loretree/loretree/internal/knowledge"
	"github.com/loretree/loretree/internal/lookup"
	"github.com/loretree/loretree/internal/reconciler"
	syncservice "github.com/loretree/loretree/internal/sync"
	"github.com/loretree/loretree/pkg/db"
	"github.com/loretree/loretree/pkg/llmclient"
	zaplog "github.com/loretree/loretree/pkg/log"
	"github.com/loretree/loretree/pkg/snowflake"
	"github.com/loretree/loretree/sql/migrations"
)

// RunServer starts the HTTP server and background workers.
func RunServer() {
	app := fx.New(
		fx.Provide(
			// Config
			config.Load,

			// Infrastructure (Adapters)
			fx.Annotate(
				llmclient.NewFromEnv,
				fx.As(new(classifier.Completer)),
				fx.As(new(api.ModelLister)),
			),
			newMailer,

			// Domain Adapters (Bind Interfaces)
			fx.Annotate(
				codecommitAdapter.NewAdapter,
				fx.As(new(vcs.RepoAPI)),
			),
			fx.Annotate(
				postgres.NewExecutionStore,
				fx.As(new(execution.Store)),
			),
			fx.Annotate(
				postgres.NewItemIndex,
				fx.As(new(item.Repository)),
			),
			fx.Annotate(
				chatapi.NewReplier,
				fx.As(new(notify.ChatReplier)),
			),
			fx.Annotate(
				classifier.NewLLMClassifier,
				fx.As(new(classifier.Classifier)),
			),

			// Core Pipeline
			guard.NewGuard,
			knowledge.NewStore,
			executor.NewReceiptWriter,
			executor.NewExecutor,

			// Services
			lookup.NewService,
			syncservice.NewService,
			inbox.NewQueue,
			inbox.NewProcessor,
			reconciler.NewReconciler,

			// API
			api.NewRouter,
		),
		db.Module,        // Database Module
		snowflake.Module, // Snowflake ID Module
		zaplog.Module,    // Logger Module
		fx.Invoke(registerHooks),
	)

	app.Run()
}

// RunMigrations executes database migrations (up or down).
func RunMigrations(command string) error {
	if command == "" {
		command = "up"
	}

	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starting database migration...", zap.String("command", command))

	dbURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	d, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migration files: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, dbURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration up failed: %w", err)
		}
		logger.Info("Migration up applied successfully")
	case "down":
		if err := m.Down(); err != nil && err != migrate.ErrNoChange {
			return fmt.Errorf("migration down failed: %w", err)
		}
		logger.Info("Migration down applied successfully")
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}

	return nil
}

// RunSync performs a one-off item index sync and prints the result.
func RunSync() error {
	cfg := config.Load()
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	gormDB, err := db.NewGorm(cfg, logger)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	node, err := snowflake.NewNode()
	if err != nil {
		return err
	}

	repo, err := codecommitAdapter.NewAdapter(cfg)
	if err != nil {
		return fmt.Errorf("create repository client: %w", err)
	}

	svc := syncservice.NewService(repo, cfg, postgres.NewItemIndex(gormDB, node), logger)
	result, err := svc.Sync(context.Background())
	if err != nil {
		return err
	}

	logger.Info("sync_finished",
		zap.Int("items_synced", result.ItemsSynced),
		zap.Int("items_deleted", result.ItemsDeleted),
		zap.Bool("skipped", result.Skipped),
		zap.String("commit_id", result.NewCommitID),
	)
	return nil
}

func registerHooks(lc fx.Lifecycle, router *api.Router, processor *inbox.Processor, rec *reconciler.Reconciler, cfg *config.Config, logger *zap.Logger) {
	var processorCancel context.CancelFunc
	var reconcilerCancel context.CancelFunc

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting HTTP server", zap.String("port", cfg.Port))

			processorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			processorCancel = cancel
			go processor.Run(processorCtx)

			reconcilerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
			reconcilerCancel = cancel
			go rec.Run(reconcilerCtx)

			go func() {
				if err := router.Run(); err != nil && err != http.ErrServerClosed {
					logger.Fatal("Server failed to start", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Shutting down HTTP server gracefully...")

			if processorCancel != nil {
				processorCancel()
			}
			if reconcilerCancel != nil {
				reconcilerCancel()
			}

			shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			if err := router.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", zap.Error(err))
				return err
			}

			logger.Info("HTTP server stopped gracefully")
			return nil
		},
	})
}

// newMailer builds the SES mailer with a startup-scoped context.
func newMailer(cfg *config.Config, logger *zap.Logger) (notify.Mailer, error) {
	return ses.NewMailer(context.Background(), cfg, logger)
}
