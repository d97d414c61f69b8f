package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tripmate-api/internal/alarm"
	"github.com/noah-isme/tripmate-api/internal/config"
	"github.com/noah-isme/tripmate-api/internal/database"
	"github.com/noah-isme/tripmate-api/internal/handler"
	"github.com/noah-isme/tripmate-api/internal/middleware"
	"github.com/noah-isme/tripmate-api/internal/models"
	"github.com/noah-isme/tripmate-api/internal/remote"
	"github.com/noah-isme/tripmate-api/internal/repository"
	"github.com/noah-isme/tripmate-api/internal/router"
	"github.com/noah-isme/tripmate-api/internal/service"
	cloud "github.com/noah-isme/tripmate-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.AppName).Logger()
	if cfg.AppEnv == "production" {
		logger = logger.Level(zerolog.InfoLevel)
	}

	db, err := database.Open(database.Options{
		Driver:          cfg.DatabaseDriver,
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnLifetime,
		SlowQuery:       cfg.DatabaseSlowQuery,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&models.Trip{},
		&models.NotificationSchedule{},
		&models.ChatRoom{},
		&models.ChatMessage{},
		&models.Notification{},
		&models.UploadRecord{},
	); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer func() {
			if err := natsConn.Drain(); err != nil {
				logger.Warn().Err(err).Msg("nats drain failed")
			}
		}()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	tripRepo := repository.NewTripRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	roomRepo := repository.NewChatRoomRepository(db)
	messageRepo := repository.NewChatMessageRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	notificationService.Start(rootCtx)

	receiver := service.NewReminderReceiver(scheduleRepo, notificationService, logger)
	timers := alarm.NewTimerManager(rootCtx, receiver, logger)
	defer timers.Stop()

	scheduler := service.NewReminderScheduler(tripRepo, scheduleRepo, timers, service.ReminderSchedulerConfig{
		Location:  cfg.ReminderLocation,
		DayOfHour: cfg.ReminderDayOfHour,
	}, logger)
	if restored, err := scheduler.Restore(rootCtx); err != nil {
		logger.Error().Err(err).Msg("failed to restore trip reminders")
	} else {
		logger.Info().Int("trips", restored).Msg("trip reminders restored")
	}

	chatStore := remote.NewRedisStore(redisClient, cfg.ChatStorePrefix, logger)
	chatService := service.NewChatSyncService(chatStore, roomRepo, messageRepo, validate, logger)
	defer chatService.Close()
	chatStreamer := service.NewChatStreamer(chatService, logger)

	tripService := service.NewTripService(tripRepo, scheduleRepo, scheduler, validate, logger)

	startCron(rootCtx, logger, "reminder_sweep", cfg.ReminderSweepCron, func(ctx context.Context) error {
		_, err := scheduler.Restore(ctx)
		return err
	})
	startCron(rootCtx, logger, "chat_resync", cfg.ChatSyncCron, func(ctx context.Context) error {
		result, err := chatService.SyncUnsyncedMessages(ctx)
		if err == nil && result.Synced > 0 {
			logger.Info().Int("synced", result.Synced).Int("pending", result.Pending).Msg("chat messages resynced")
		}
		return err
	})

	var uploadHandler *handler.UploadHandler
	if cfg.UploadsEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		uploadService := service.NewUploadService(uploader, uploadRepo, cfg.UploadMaxSizeMB, logger)
		uploadHandler = handler.NewUploadHandler(uploadService, chatService, logger)
	} else {
		logger.Warn().Msg("cloudinary credentials missing; chat image uploads disabled")
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxSizeMB + 1) * 1024 * 1024,
	})

	middleware.Register(app, middleware.Config{Logger: logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		TripHandler:         handler.NewTripHandler(tripService, logger),
		ChatHandler:         handler.NewChatHandler(chatService, chatStreamer, logger),
		UploadHandler:       uploadHandler,
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive),
		PushHandler:         handler.NewPushHandler(notificationService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes: []handler.HealthProbe{
			{Name: "database", Check: func(ctx context.Context) error { return database.Ping(ctx, db) }},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func startCron(ctx context.Context, logger zerolog.Logger, name, expr string, task func(ctx context.Context) error) {
	if expr == "" {
		return
	}
	job, err := service.NewCronJob(name, expr, task, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid cron configuration")
	}
	job.Start(ctx)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
