package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/atlas-capital/atlas-portal/cmd/atlas/cli"
	"github.com/atlas-capital/atlas-portal/internal/app"
	"github.com/atlas-capital/atlas-portal/internal/auth"
	"github.com/atlas-capital/atlas-portal/internal/dashboard"
	"github.com/atlas-capital/atlas-portal/internal/export"
	"github.com/atlas-capital/atlas-portal/internal/observability"
	"github.com/atlas-capital/atlas-portal/internal/pages"
	"github.com/atlas-capital/atlas-portal/internal/plans"
	"github.com/atlas-capital/atlas-portal/internal/platform/cache"
	"github.com/atlas-capital/atlas-portal/internal/platform/db"
	"github.com/atlas-capital/atlas-portal/internal/session"
	"github.com/atlas-capital/atlas-portal/internal/shared"
	"github.com/atlas-capital/atlas-portal/internal/support"
	"github.com/atlas-capital/atlas-portal/internal/users"
	"github.com/atlas-capital/atlas-portal/internal/view"
	"github.com/atlas-capital/atlas-portal/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 {
		if err := runCommand(ctx, cfg, logger, os.Args[1:]); err != nil {
			logger.Error("command failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if cfg.MigrationsAuto {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "atlas_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}
	renderer := view.NewPages(templates, csrfManager, logger)
	metrics := observability.NewMetrics()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	broadcaster := auth.NewBroadcaster(redisClient, logger)
	if err := broadcaster.Listen(ctx); err != nil {
		logger.Warn("session broadcast listen", slog.Any("error", err))
	}
	authService := auth.NewService(auth.NewRepository(dbpool), auth.ServiceOptions{
		Broadcaster:   broadcaster,
		ResetTokens:   auth.NewResetTokens(cfg.ResetTokenSecret, cfg.ResetTokenTTL),
		Mailer:        jobClient,
		SessionTTL:    cfg.SessionTTL,
		PublicBaseURL: cfg.PublicBaseURL,
		Logger:        logger,
	})
	authHandler := auth.NewHandler(logger, authService, renderer, sessionManager)
	mounter := session.NewMounter(authService, logger)

	plansCache := plans.NewCache(redisClient, cfg.PlansCacheTTL, logger)
	if err := plansCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("plans cache listen", slog.Any("error", err))
	}
	plansService := plans.NewService(plans.NewRepository(dbpool), plansCache, logger)

	gotenberg := export.NewClient(cfg.GotenbergURL)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pages:            renderer,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Mounter:          mounter,
		Metrics:          metrics,
		AuthHandler:      authHandler,
		PagesHandler:     pages.NewHandler(logger, renderer, plansService),
		SupportHandler:   support.NewHandler(logger, support.NewService(support.NewRepository(dbpool)), renderer),
		DashboardHandler: dashboard.NewHandler(logger, renderer, dashboard.NewRepository(dbpool), metrics, export.NewPDFExporter(gotenberg)),
		PlansHandler:     plans.NewHandler(logger, plansService, renderer),
		UsersHandler:     users.NewHandler(logger, users.NewService(users.NewRepository(dbpool), authService), renderer),
		ExportHandler:    export.NewHandler(gotenberg, logger),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runCommand handles the operator subcommands:
//
//	atlas migrate
//	atlas jobs stats
//	atlas jobs trigger <task>
func runCommand(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) error {
	switch args[0] {
	case "migrate":
		return db.Migrate(cfg.PGDSN, logger)
	case "jobs":
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		defer func() { _ = jobsCLI.Close() }()
		if len(args) < 2 {
			return fmt.Errorf("usage: atlas jobs stats|trigger <task>")
		}
		switch args[1] {
		case "stats":
			stats, err := jobsCLI.InspectQueue(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
			return nil
		case "trigger":
			if len(args) < 3 {
				return fmt.Errorf("usage: atlas jobs trigger <task>")
			}
			info, err := jobsCLI.Trigger(ctx, args[2])
			if err != nil {
				return err
			}
			fmt.Printf("enqueued %s id=%s\n", info.Type, info.ID)
			return nil
		}
	}
	return fmt.Errorf("unknown command %q", args[0])
}
