package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/atlasbank/greeting-engine/internal/api"
	"github.com/atlasbank/greeting-engine/internal/config"
	"github.com/atlasbank/greeting-engine/internal/delivery"
	"github.com/atlasbank/greeting-engine/internal/dispatch"
	"github.com/atlasbank/greeting-engine/internal/gigachat"
	"github.com/atlasbank/greeting-engine/internal/greeting"
	"github.com/atlasbank/greeting-engine/internal/importer"
	"github.com/atlasbank/greeting-engine/internal/referral"
	"github.com/atlasbank/greeting-engine/internal/repository/postgres"
	"github.com/atlasbank/greeting-engine/internal/storage"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	log.Println("Greeting Engine server starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// PostgreSQL roster and holidays
	if cfg.Database.URL == "" {
		log.Fatal("database url is required (config database.url or DATABASE_URL)")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(3)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		log.Fatalf("Database ping failed: %v", err)
	}
	pingCancel()
	log.Println("Database connected")

	roster := postgres.NewRosterRepo(db)
	holidays := postgres.NewHolidayRepo(db)

	// Redis dedup store. Missing Redis degrades to per-process dedup only;
	// same-day re-runs would then re-send, so warn loudly.
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, pingCancel = context.WithTimeout(ctx, 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis connection failed (%s): %v — dedup disabled, re-runs will re-send", cfg.Redis.Addr, err)
		redisClient.Close()
		redisClient = nil
	} else {
		log.Printf("Redis connected: %s (dedup enabled)", cfg.Redis.Addr)
	}
	pingCancel()

	// GigaChat content client and generation pipeline
	if cfg.GigaChat.AuthKey == "" {
		log.Fatal("gigachat auth key is required (config gigachat.auth_key or GIGACHAT_AUTH_KEY)")
	}
	gigaClient := gigachat.NewClient(gigachat.Config{
		AuthKey:           cfg.GigaChat.AuthKey,
		Scope:             cfg.GigaChat.Scope,
		Model:             cfg.GigaChat.Model,
		BaseURL:           cfg.GigaChat.BaseURL,
		AuthURL:           cfg.GigaChat.AuthURL,
		RequestsPerSecond: cfg.GigaChat.RequestsPerSecond,
	})
	pipeline := greeting.NewPipeline(gigaClient)

	genOpts := greeting.Options{
		Evaluate:    cfg.Quality.Evaluate,
		MinScore:    cfg.Quality.MinScore,
		MaxAttempts: cfg.Quality.MaxAttempts,
	}

	// Dispatcher
	dispatcher := dispatch.New(roster, holidays, pipeline, delivery.LogDeliverer{}, redisClient, genOpts)
	dispatcher.SetConcurrency(cfg.Dispatcher.Concurrency)
	dispatcher.SetPollInterval(cfg.Dispatcher.PollInterval)
	if cfg.Dispatcher.Images {
		dispatcher.SetImageGenerator(gigaClient)
		log.Println("Greeting-card image generation enabled")
	}

	if cfg.Archive.Enabled {
		archive, err := storage.New(ctx, storage.Config{
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			Region:    cfg.Archive.Region,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
			Endpoint:  cfg.Archive.Endpoint,
		})
		if err != nil {
			log.Printf("Warning: archive init failed, greetings will not be archived: %v", err)
		} else {
			dispatcher.SetArchiver(archive)
			log.Printf("Greeting archive enabled (bucket: %s)", cfg.Archive.Bucket)
		}
	}

	if err := dispatcher.Start(); err != nil {
		log.Fatalf("Failed to start dispatcher: %v", err)
	}

	// Optional holiday feed poller
	var feedPoller *importer.HolidayFeedPoller
	if cfg.Feed.Enabled && cfg.Feed.URL != "" {
		feedPoller = importer.NewHolidayFeedPoller(holidays, cfg.Feed.URL, cfg.Feed.PollInterval)
		if err := feedPoller.Start(); err != nil {
			log.Printf("Warning: Failed to start holiday feed poller: %v", err)
			feedPoller = nil
		} else {
			log.Printf("Holiday feed poller started (url: %s, every %v)", cfg.Feed.URL, cfg.Feed.PollInterval)
		}
	} else {
		log.Println("Holiday feed poller not configured")
	}

	// Admin API
	minter := referral.New(roster, cfg.Referral.CodeLength)
	handlers := api.NewHandlers(roster, holidays, dispatcher, minter)
	server := api.NewServer(handlers, cfg.Server.AuthToken)
	if cfg.Server.AuthToken == "" {
		log.Println("Warning: API_AUTH_TOKEN not set — admin API is unauthenticated")
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		log.Printf("Starting server on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	cancel()
	dispatcher.Stop()
	if feedPoller != nil {
		feedPoller.Stop()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
