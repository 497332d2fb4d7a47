package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/helpdesk-realtime/internal/api/http"
	"github.com/spec-kit/helpdesk-realtime/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-realtime/internal/auth"
	"github.com/spec-kit/helpdesk-realtime/internal/clock"
	"github.com/spec-kit/helpdesk-realtime/internal/config"
	"github.com/spec-kit/helpdesk-realtime/internal/deadletter"
	"github.com/spec-kit/helpdesk-realtime/internal/events"
	"github.com/spec-kit/helpdesk-realtime/internal/observability"
	"github.com/spec-kit/helpdesk-realtime/internal/persistence"
	"github.com/spec-kit/helpdesk-realtime/internal/presence"
	"github.com/spec-kit/helpdesk-realtime/internal/realtime"
	"github.com/spec-kit/helpdesk-realtime/internal/repository"
	"github.com/spec-kit/helpdesk-realtime/internal/service"
	"github.com/spec-kit/helpdesk-realtime/internal/storage"
	"github.com/spec-kit/helpdesk-realtime/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API and the realtime gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := observability.NewLogger(cfg.Logger)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return serve(cmd.Context(), cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	telemetry, err := observability.InitTelemetry(ctx, cfg.Telemetry, cfg.App)
	if err != nil {
		return err
	}
	defer func() {
		if err := telemetry.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()
	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return err
	}
	defer pg.Close()
	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
			return err
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	natsConn, err := persistence.NewNats(cfg.Nats, logger)
	if err != nil {
		return err
	}
	defer natsConn.Close()

	clk := clock.Real()
	channelOpts := events.Options{
		BufferSize: cfg.Presence.SubscriberBufferEvents,
		Clock:      clk,
		Logger:     logger,
		Metrics:    metrics,
	}
	var channel events.Channel
	if natsConn.Enabled() {
		channel = events.NewNatsChannel(natsConn.Conn, cfg.Nats.SubjectPrefix, channelOpts)
	} else {
		channel = events.NewMemoryChannel(channelOpts)
	}
	defer channel.Close()

	var presenceStore presence.Store
	if redis.Enabled() {
		presenceStore = presence.NewRedisStore(redis.Client, redis.Prefix, clk)
	} else {
		presenceStore = presence.NewMemoryStore(clk)
	}
	tracker := presence.NewTracker(presence.TrackerConfig{
		GlobalThreshold: cfg.Presence.OfflineThreshold,
		TicketThreshold: cfg.Presence.ViewerWindow,
	}, presence.TrackerDependencies{
		Store:   presenceStore,
		Channel: channel,
		Clock:   clk,
		Logger:  logger,
		Metrics: metrics,
	})

	sink, closeSink := openDeadLetterSink(ctx, cfg.DeadLetter, logger)
	defer closeSink()
	queue := worker.NewQueue(worker.Config{
		Workers:     cfg.Queue.Workers,
		Buffer:      cfg.Queue.Buffer,
		TaskTimeout: cfg.Queue.TaskTimeout,
	}, sink, logger, metrics)

	var blobs storage.BlobStore
	if cfg.Storage.Enabled() {
		s3Store, err := storage.NewS3Store(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		blobs = s3Store
	} else {
		logger.Warn("S3_BUCKET not provided; voice notes are disabled")
	}

	pool := pg.Pool
	ticketRepo := repository.NewTicketRepository(pool)
	messageRepo := repository.NewTicketMessageRepository(pool)

	notificationService := service.NewNotificationService(service.NotificationDependencies{
		Repo:    repository.NewNotificationRepository(pool),
		Channel: channel,
		Queue:   queue,
		Logger:  logger,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{TicketRepo: ticketRepo, Logger: logger})
	statusService := service.NewStatusService(service.StatusDependencies{
		TicketRepo:  ticketRepo,
		HistoryRepo: repository.NewTicketHistoryRepository(pool),
		MessageRepo: messageRepo,
		SurveyRepo:  repository.NewSurveyRepository(pool),
		Notifier:    notificationService,
		Channel:     channel,
		Logger:      logger,
		Metrics:     metrics,
	})
	assignmentService := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: ticketRepo,
		Notifier:   notificationService,
		Channel:    channel,
		Logger:     logger,
	})
	messageService := service.NewMessageService(service.MessageDependencies{
		TicketRepo:     ticketRepo,
		MessageRepo:    messageRepo,
		AttachmentRepo: repository.NewAttachmentRepository(pool),
		Blobs:          blobs,
		Notifier:       notificationService,
		Channel:        channel,
		Logger:         logger,
		Metrics:        metrics,
	})
	viewerService := service.NewViewerService(cfg.Presence.ViewerWindow, service.ViewerDependencies{
		ViewerRepo: repository.NewViewerRepository(pool),
		TicketRepo: ticketRepo,
		Channel:    channel,
		Clock:      clk,
		Logger:     logger,
	})

	tokens := auth.NewTokenManager(cfg.Auth)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
		BodyLimit:             12 * 1024 * 1024,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	checks := []handlers.DependencyCheck{{Name: "postgres", Ping: pg.Ping}}
	if redis.Enabled() {
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Ping: redis.Ping})
	}
	if natsConn.Enabled() {
		checks = append(checks, handlers.DependencyCheck{Name: "nats", Ping: func(context.Context) error { return natsConn.Ping() }})
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, checks...),
		Tickets:        handlers.NewTicketsHandler(ticketService, statusService, assignmentService),
		Messages:       handlers.NewMessagesHandler(messageService),
		Viewers:        handlers.NewViewersHandler(viewerService),
		Presence:       handlers.NewPresenceHandler(tracker, ticketService),
		Notifications:  handlers.NewNotificationsHandler(notificationService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	gateway := realtime.NewGateway(realtime.Config{
		HeartbeatInterval:     cfg.Presence.HeartbeatInterval,
		AwayAfter:             cfg.Presence.AwayAfter,
		ViewerRefreshInterval: cfg.Presence.ViewerRefreshInterval,
		SendBuffer:            cfg.Presence.SubscriberBufferEvents,
	}, realtime.Dependencies{
		Auth:     tokens,
		Channel:  channel,
		Tracker:  tracker,
		Tickets:  ticketService,
		Viewers:  viewerService,
		Messages: messageService,
		Queue:    queue,
		Clock:    clk,
		Logger:   logger,
		Metrics:  metrics,
	})
	realtimeServer := &http.Server{
		Addr:        cfg.Realtime.Addr,
		Handler:     gateway.Handler(cfg.Realtime.Prefix),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	queue.Start(runCtx)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	g.Go(func() error {
		logger.Info("realtime listening", zap.String("addr", cfg.Realtime.Addr), zap.String("prefix", cfg.Realtime.Prefix))
		if err := realtimeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		viewerService.RunSweeper(gctx, cfg.Presence.ViewerSweepInterval)
		return nil
	})
	g.Go(func() error {
		waitForShutdown(gctx, logger)
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := gateway.Shutdown(shutdownCtx); err != nil {
			logger.Warn("realtime connections did not close", zap.Error(err))
		}
		if err := realtimeServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("realtime server shutdown", zap.Error(err))
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", zap.Error(err))
		}
		queue.Stop()
		return nil
	})
	return g.Wait()
}

// openDeadLetterSink prefers the SQLite log and falls back to logging
// when the file cannot be opened.
func openDeadLetterSink(ctx context.Context, cfg config.DeadLetterConfig, logger *zap.Logger) (deadletter.Sink, func()) {
	if cfg.Path == "" {
		return deadletter.NewLogSink(logger), func() {}
	}
	sqlite, err := deadletter.OpenSQLite(ctx, cfg.Path)
	if err != nil {
		logger.Warn("dead-letter database unavailable; logging failed tasks instead",
			zap.String("path", cfg.Path), zap.Error(err))
		return deadletter.NewLogSink(logger), func() {}
	}
	return sqlite, func() { _ = sqlite.Close() }
}
