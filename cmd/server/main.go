package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortlinks/internal/api"
	"shortlinks/internal/cache"
	"shortlinks/internal/config"
	"shortlinks/internal/db"
	"shortlinks/internal/links"
	"shortlinks/internal/renderer"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// Initialize database connection
	log.Printf("Connecting to %s database: %s...", cfg.DatabaseDriver, redactDBURL(cfg.DatabaseURL))
	conn, err := db.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer conn.Close()
	log.Println("Database connection successful and schema migrated.")
	repo := db.NewRepo(conn)

	var linkCache cache.Cache
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.Dial(ctx, cfg.RedisURL, time.Duration(cfg.CacheTTLSeconds)*time.Second)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rc.Close()
		linkCache = rc
		log.Printf("Redis cache enabled (TTL %ds).", cfg.CacheTTLSeconds)
	}

	opts := links.Options{
		Alphabet:       cfg.AvailableChars,
		CodeLength:     cfg.URLSize,
		MaxAttempts:    cfg.MaxCodeAttempts,
		AllowedDomains: cfg.AllowedDomainList(),
		Reserved:       api.ReservedPaths,
	}

	var queue *renderer.Queue
	var queueStatus api.QueueStatus
	if cfg.PreviewEnabled {
		render := renderer.RodRenderer(renderer.Options{
			BinPath: cfg.RodBinPath,
			Timeout: time.Duration(cfg.RenderTimeoutSeconds) * time.Second,
		})
		queue = renderer.NewQueue(cfg.RenderWorkerCount, render, repo)
		opts.Previews = queue
		queueStatus = queue
	}

	store, err := links.NewStore(repo, linkCache, opts)
	if err != nil {
		log.Fatalf("Failed to build link store: %v", err)
	}

	handler := api.NewHandler(store, repo, queueStatus, cfg.PageSize)
	router := api.SetupRouter(handler, api.RouterConfig{
		AuthHeader:           cfg.AuthHeader,
		RedirectRequiresAuth: cfg.RedirectRequiresAuth,
		CORSOrigins:          cfg.CORSOriginList(),
	})

	srv := &http.Server{
		Addr:    cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Starting server on %s...", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if queue != nil {
		queue.Shutdown()
	}
	log.Println("Server stopped.")
}

// redactDBURL masks the password of a DSN before it is logged.
func redactDBURL(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return dbURL
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return dbURL
	}
	return u.Scheme + "://" + u.User.Username() + ":********@" + u.Host + u.RequestURI()
}
