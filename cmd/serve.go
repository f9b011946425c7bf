package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dosada05/pickleball-eventday/config"
	"github.com/Dosada05/pickleball-eventday/db"
	"github.com/Dosada05/pickleball-eventday/handlers"
	"github.com/Dosada05/pickleball-eventday/metrics"
	"github.com/Dosada05/pickleball-eventday/middleware"
	"github.com/Dosada05/pickleball-eventday/realtime"
	"github.com/Dosada05/pickleball-eventday/repositories"
	api "github.com/Dosada05/pickleball-eventday/routes"
	"github.com/Dosada05/pickleball-eventday/services"
	"github.com/Dosada05/pickleball-eventday/storage"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-chi/chi/v5"
	nc "github.com/nats-io/nats.go"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

func serveCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP and websocket server",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "migrate", Usage: "apply pending migrations before serving"},
		},
		Action: func(c *cli.Context) error {
			return serve(c.Context, logger, c.Bool("migrate"))
		},
	}
}

func serve(ctx context.Context, logger *slog.Logger, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	var store repositories.Store
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL is not set, state is kept in memory only")
		store = repositories.NewMemoryStore()
	} else {
		dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		}()
		if migrate {
			if err := db.MigrateUp(dbConn.DB); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}
		store = repositories.NewPostgresStore(dbConn)
		logger.Info("database connection established")
	}

	policies, err := config.LoadPolicies(cfg.PolicyFile)
	if err != nil {
		return err
	}

	var archiver services.DrawArchiver
	if r2 := storageConfig(cfg.R2); r2.Enabled() {
		uploader, err := storage.NewCloudflareR2Uploader(ctx, r2)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		archiver = storage.NewDrawArchive(uploader)
		logger.Info("draw archive enabled", slog.String("bucket", r2.BucketName))
	} else {
		logger.Info("R2 settings absent, draw archive disabled")
	}

	m := metrics.New()
	hub := realtime.NewHub(logger, m, cfg.PresenceInterval)

	publisher, subscriber, err := newNotificationBus(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		_ = publisher.Close()
		_ = subscriber.Close()
	}()
	dispatcher := services.NewNotificationDispatcher(publisher, services.NotificationTopic, cfg.NotifyQueueSize, m, logger)
	notificationRouter, err := services.NewNotificationRouter(subscriber, services.NotificationTopic, hub, logger)
	if err != nil {
		return err
	}

	rt := services.NewRuntime(store, hub, dispatcher, m, logger, services.WithPolicySource(policies))
	drawService := services.NewDrawService(rt, archiver, logger)
	matchService := services.NewMatchService(rt, logger)
	courtService := services.NewCourtService(rt, logger)
	eventService := services.NewEventService(rt, hub, logger)
	logger.Info("services initialized")

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Dependencies{
		Auth:           middleware.NewAuthenticator(cfg.JWTSecretKey),
		JoinLimiter:    middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		ScoreLimiter:   middleware.NewIPRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        m.Handler(),
		Draw:           handlers.NewDrawHandler(drawService),
		Match:          handlers.NewMatchHandler(matchService, courtService),
		Event:          handlers.NewEventHandler(eventService, courtService),
		WebSocket:      handlers.NewWebSocketHandler(hub, eventService, cfg.CORSAllowedOrigins, cfg.ViewerOutboxSize, logger),
	})

	// WriteTimeout stays zero: websocket connections are long-lived.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:     router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
		ErrorLog:    slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		dispatcher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return notificationRouter.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("starting server", slog.String("address", server.Addr))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server", slog.Duration("timeout", cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			_ = server.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	err = g.Wait()
	rt.Wait()
	if err != nil {
		return err
	}
	logger.Info("application exited")
	return nil
}

func storageConfig(c config.R2Config) storage.CloudflareR2UploaderConfig {
	return storage.CloudflareR2UploaderConfig{
		AccountID:       c.AccountID,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		BucketName:      c.BucketName,
		PublicBaseURL:   c.PublicBaseURL,
	}
}

// newNotificationBus connects to NATS when configured. Without it the bus
// is an in-process channel, which is enough for a single instance.
func newNotificationBus(cfg *config.Config, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)
	if cfg.NATSURL == "" {
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: int64(cfg.NotifyQueueSize)}, wmLogger)
		return pubSub, pubSub, nil
	}

	marshaler := &nats.NATSMarshaler{}
	options := []nc.Option{nc.RetryOnFailedConnect(true), nc.Name("eventday")}
	publisher, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         cfg.NATSURL,
		Marshaler:   marshaler,
		NatsOptions: options,
		JetStream:   nats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create NATS publisher: %w", err)
	}
	subscriber, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:         cfg.NATSURL,
		Unmarshaler: marshaler,
		NatsOptions: options,
		JetStream:   nats.JetStreamConfig{Disabled: true},
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, fmt.Errorf("failed to create NATS subscriber: %w", err)
	}
	logger.Info("notifications routed through NATS", slog.String("url", cfg.NATSURL))
	return publisher, subscriber, nil
}
