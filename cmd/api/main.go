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

	"github.com/medlink-health/medlink-api/internal/config"
	"github.com/medlink-health/medlink-api/internal/database"
	"github.com/medlink-health/medlink-api/internal/handler"
	"github.com/medlink-health/medlink-api/internal/middleware"
	"github.com/medlink-health/medlink-api/internal/repository"
	"github.com/medlink-health/medlink-api/internal/router"
	"github.com/medlink-health/medlink-api/internal/service"
	cloud "github.com/medlink-health/medlink-api/pkg/cloudinary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = nats.Connect(cfg.NATSURL, nats.Name(cfg.AppName))
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
	}

	blobs, err := cloud.New(cloud.Config{
		CloudName:    cfg.CloudinaryCloudName,
		APIKey:       cfg.CloudinaryAPIKey,
		APISecret:    cfg.CloudinaryAPISecret,
		Folder:       cfg.CloudinaryUploadFolder,
		AuthTokenKey: cfg.CloudinaryAuthTokenKey,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create cloudinary client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	runCtx, stopConsumers := context.WithCancel(context.Background())
	defer stopConsumers()

	participantRepo := repository.NewParticipantRepository(db)
	chatRepo := repository.NewChatRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	identityService := service.NewIdentityService(participantRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, redisClient, cfg.ChannelBase, natsConn, validate, logger)
	chatService := service.NewChatService(chatRepo, participantRepo, notificationService, blobs, redisClient, cfg.ChannelBase, natsConn, validate, logger)

	notificationService.Start(runCtx)
	chatService.Start(runCtx)

	chatHandler := handler.NewChatHandler(chatService, identityService, validate, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, identityService, logger)

	verifier, err := buildVerifier(runCtx, cfg)
	if err != nil {
		log.Fatalf("failed to configure token verification: %v", err)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ChatHandler:         chatHandler,
		NotificationHandler: notificationHandler,
		AuthMiddleware:      middleware.Protected(verifier),
		DB:                  db,
		Redis:               redisClient,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildVerifier(ctx context.Context, cfg config.Config) (middleware.TokenVerifier, error) {
	if cfg.JWKSURL != "" {
		return middleware.NewJWKSVerifier(ctx, cfg.JWKSURL, cfg.JWTIssuer)
	}

	return middleware.NewHMACVerifier(cfg.JWTSecret), nil
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
