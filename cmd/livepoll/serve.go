package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"livepoll-backend/internal/config"
	"livepoll-backend/internal/database"
	"livepoll-backend/internal/handlers"
	"livepoll-backend/internal/middleware"
	"livepoll-backend/internal/repository"
	"livepoll-backend/internal/router"
	"livepoll-backend/internal/services"
	"livepoll-backend/internal/websocket"
	"livepoll-backend/internal/worker"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the polling API and websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	log.Println("🚀 Starting LivePoll Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Open Session Storage ────
	repo, closeRepo, err := openSessionRepo(cfg)
	if err != nil {
		return err
	}
	defer closeRepo()
	log.Printf("✓ Session storage ready (%s)", cfg.StorageType)

	// ──── Step 3: Initialize Redis (optional) ────
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisClient.Close()
		log.Println("✓ Redis connected")
	}

	// ──── Step 4: Initialize Services ────
	wsHub := websocket.NewHub(redisClient)
	store := services.NewSessionStore(repo, wsHub,
		services.WithChatHistoryLimit(cfg.ChatHistoryLimit),
		services.WithDefaultPollDuration(cfg.DefaultPollDurationSeconds),
	)
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	authService := services.NewTeacherAuthService(jwtAuth, cfg.TeacherPasscodeHash)

	// ──── Step 5: Start Poll Sweeper ────
	sweeper := worker.NewSweeper(store, redisClient, cfg.SweepInterval)
	sweeper.Start()

	// ──── Step 6: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		handlers.NewAuthHandler(authService),
		handlers.NewSessionHandler(store),
		handlers.NewChatHandler(store),
		handlers.NewPollHandler(store),
		handlers.NewWSHandler(wsHub, store),
		router.Options{FrontendURL: cfg.FrontendURL, StaticDir: cfg.StaticDir},
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Graceful shutdown
	go func() {
		<-ctx.Done()

		log.Println("Shutting down...")
		sweeper.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("✓ LivePoll Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws?sessionId=default", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// openSessionRepo builds the repository selected by STORAGE_TYPE and returns
// a func that releases its connections.
func openSessionRepo(cfg *config.Config) (services.SessionRepository, func(), error) {
	switch cfg.StorageType {
	case config.StoragePostgres:
		pool, err := database.NewPostgresPool(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		if err := database.RunMigrations(pool, migrationsFS(cfg)); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("database migration failed: %w", err)
		}
		return repository.NewPostgresSessionRepo(pool), pool.Close, nil

	case config.StorageSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite open failed: %w", err)
		}
		return repository.NewSQLiteSessionRepo(db), func() { db.Close() }, nil

	case config.StorageMongo:
		client, err := database.NewMongoClient(cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("mongo connection failed: %w", err)
		}
		db := client.Database(cfg.MongoDatabase)
		if err := database.EnsureMongoIndexes(db); err != nil {
			log.Printf("mongo index setup failed: %v", err)
		}
		return repository.NewMongoSessionRepo(db), func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Disconnect(ctx)
		}, nil

	default:
		return repository.NewMemorySessionRepo(), func() {}, nil
	}
}
