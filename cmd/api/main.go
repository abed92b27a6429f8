package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"schoolchat/internal/adapter/api"
	"schoolchat/internal/adapter/api/handler"
	apimiddleware "schoolchat/internal/adapter/api/middleware"
	"schoolchat/internal/adapter/api/router"
	"schoolchat/internal/adapter/repository"
	domainrepo "schoolchat/internal/domain/repository"
	"schoolchat/internal/domain/service"
	"schoolchat/internal/infrastructure/auth"
	"schoolchat/internal/infrastructure/firebase"
	"schoolchat/internal/infrastructure/queue"
	"schoolchat/internal/infrastructure/ratelimit"
	"schoolchat/internal/infrastructure/storage"
	"schoolchat/internal/infrastructure/websocket"
	"schoolchat/internal/usecase"
	"schoolchat/pkg/config"
	"schoolchat/pkg/logger"
)

type repositories struct {
	rooms         domainrepo.RoomRepository
	messages      domainrepo.MessageRepository
	markers       domainrepo.ReadMarkerRepository
	users         domainrepo.UserRepository
	profiles      domainrepo.ProfileRepository
	notifications domainrepo.NotificationRepository
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	settings := config.LoadStore()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	healthChecks := map[string]handler.Pinger{}

	needsFirebase := cfg.StorageDriver == "firestore" || cfg.AuthProvider == "firebase"
	var firestoreClient *firestore.Client
	var verifier service.TokenVerifier

	if needsFirebase {
		app, err := firebase.NewApp(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
		if cfg.StorageDriver == "firestore" {
			firestoreClient, err = firebase.NewFirestore(ctx, app)
			if err != nil {
				log.Fatalf("Failed to create Firestore client: %v", err)
			}
			defer firestoreClient.Close()
		}
		if cfg.AuthProvider == "firebase" {
			authClient, err := firebase.NewAuth(ctx, app)
			if err != nil {
				log.Fatalf("Failed to initialize Firebase Auth: %v", err)
			}
			verifier = firebase.NewFirebaseAuthClient(authClient)
		}
	}

	var repos repositories
	if firestoreClient != nil {
		repos = repositories{
			rooms:         repository.NewFirestoreRoomRepository(firestoreClient),
			messages:      repository.NewFirestoreMessageRepository(firestoreClient),
			markers:       repository.NewFirestoreReadMarkerRepository(firestoreClient),
			users:         repository.NewFirestoreUserRepository(firestoreClient),
			profiles:      repository.NewFirestoreProfileRepository(firestoreClient),
			notifications: repository.NewFirestoreNotificationRepository(firestoreClient),
		}
	} else {
		db, err := repository.OpenDatabase(cfg.StorageDriver, cfg.DatabaseDSN)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		if err := repository.Migrate(db); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("Failed to access database handle: %v", err)
		}
		defer sqlDB.Close()
		healthChecks["database"] = sqlDB.PingContext

		repos = repositories{
			rooms:         repository.NewGormRoomRepository(db),
			messages:      repository.NewGormMessageRepository(db),
			markers:       repository.NewGormReadMarkerRepository(db),
			users:         repository.NewGormUserRepository(db),
			profiles:      repository.NewGormProfileRepository(db),
			notifications: repository.NewGormNotificationRepository(db),
		}
	}

	if verifier == nil {
		revoked := auth.NewRevocationList()
		if cfg.JWTJWKSURL != "" {
			jwks, err := auth.NewJWKSVerifier(ctx, cfg.JWTJWKSURL, revoked)
			if err != nil {
				log.Fatalf("Failed to load JWKS from %s: %v", cfg.JWTJWKSURL, err)
			}
			defer jwks.Close()
			verifier = jwks
		} else {
			verifier = auth.NewHMACVerifier(cfg.JWTSecret, revoked)
		}
	}

	var blobs service.BlobStore
	switch cfg.BlobBackend {
	case "gcs":
		gcs, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, cfg.FirebaseServiceAccountPath)
		if err != nil {
			log.Fatalf("Failed to initialize Cloud Storage: %v", err)
		}
		blobs = gcs
	default:
		local, err := storage.NewLocalStore(cfg.LocalBlobDir)
		if err != nil {
			log.Fatalf("Failed to initialize attachment directory: %v", err)
		}
		blobs = local
	}
	defer blobs.Close()

	wsManager := websocket.NewManager()
	var publisher websocket.Publisher = wsManager

	var redisClient *redis.Client
	if cfg.BroadcastBackend == "redis" || cfg.NotifyBackend == "asynq" {
		if cfg.RedisURL == "" {
			log.Fatalf("REDIS_URL is required for the redis broadcast or asynq notify backend")
		}
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		redisClient = redis.NewClient(opt)
		defer redisClient.Close()
		healthChecks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	if cfg.BroadcastBackend == "redis" {
		bus := websocket.NewRedisBus(redisClient, wsManager)
		publisher = bus
		go func() {
			if err := bus.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Redis broadcast bus stopped: %v", err)
			}
		}()
	}

	rateLimiter := ratelimit.NewRateLimiter(map[string]ratelimit.Limit{
		ratelimit.ActionSendMessage: {PerMinute: cfg.RateLimitMessagesPerMinute, Burst: cfg.RateLimitMessagesPerMinute},
	})
	rateLimiter.StartCleanupRoutine(ctx.Done())

	membershipUseCase := usecase.NewMembershipUseCase(repos.rooms, repos.users, repos.profiles, repos.messages, repos.markers, rateLimiter)
	notificationUseCase := usecase.NewNotificationUseCase(repos.notifications)

	var dispatcher service.NotificationDispatcher
	if cfg.NotifyBackend == "asynq" {
		asynqDispatcher, err := queue.NewAsynqDispatcher(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to create notification queue: %v", err)
		}
		defer asynqDispatcher.Close()
		dispatcher = asynqDispatcher

		worker, err := queue.NewWorker(cfg.RedisURL, 10, notificationUseCase.NotifyMessage)
		if err != nil {
			log.Fatalf("Failed to create notification worker: %v", err)
		}
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("Notification worker stopped: %v", err)
			}
		}()
	} else {
		dispatcher = usecase.NewInlineDispatcher(notificationUseCase)
	}

	chatUseCase := usecase.NewChatUseCase(repos.messages, repos.users, membershipUseCase, publisher, blobs, dispatcher, settings, rateLimiter)
	readTrackingUseCase := usecase.NewReadTrackingUseCase(repos.messages, repos.markers, membershipUseCase)

	// SIGHUP re-reads .env into the runtime settings.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				next := settings.Reload()
				logger.Info("Settings reloaded (maintenance=%v, notify=%v)", next.MaintenanceMode, next.NotifyOnMessage)
			}
		}
	}()

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	ipLimiter := apimiddleware.NewIPRateLimiter(cfg.RequestsPerMinutePerIP, 0)
	ipLimiter.StartCleanupRoutine(ctx.Done())

	router.Setup(e, router.Handlers{
		Room:         handler.NewRoomHandler(membershipUseCase, readTrackingUseCase),
		Chat:         handler.NewChatHandler(chatUseCase, readTrackingUseCase),
		File:         handler.NewFileHandler(chatUseCase),
		Notification: handler.NewNotificationHandler(notificationUseCase),
		Admin:        handler.NewAdminHandler(membershipUseCase, settings),
		WebSocket:    handler.NewWebSocketHandler(wsManager, authMiddleware, repos.users, membershipUseCase, chatUseCase),
		Health:       handler.NewHealthHandler(healthChecks),
	}, router.Middlewares{
		Auth:        authMiddleware,
		Admin:       apimiddleware.NewAdminMiddleware(repos.users),
		Maintenance: apimiddleware.NewMaintenanceMiddleware(settings, repos.users),
		RateLimit:   ipLimiter,
	})

	go func() {
		log.Printf("Starting server on port %s (storage=%s, auth=%s, broadcast=%s, notify=%s)...",
			cfg.ServerPort, cfg.StorageDriver, cfg.AuthProvider, cfg.BroadcastBackend, cfg.NotifyBackend)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}
