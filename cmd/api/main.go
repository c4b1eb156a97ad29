package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/bountygo/server/internal/auth"
	"github.com/bountygo/server/internal/cache"
	"github.com/bountygo/server/internal/config"
	"github.com/bountygo/server/internal/db"
	httpserver "github.com/bountygo/server/internal/http"
	"github.com/bountygo/server/internal/http/handlers"
	"github.com/bountygo/server/internal/repo"

	_ "github.com/lib/pq"
)

func main() {
	// Load .env from CWD if present (env vars override)
	_ = godotenv.Load(".env")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	// Open database connection
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repositories
	userRepo := repo.NewUserRepo(database)
	walletRepo := repo.NewWalletRepo(database)
	refreshRepo := repo.NewRefreshRepo(database)

	// Nonce store: shared Redis when reachable, per-process memory otherwise
	var nonceStore auth.NonceStore
	if redisClient := cache.NewRedisClient(); redisClient != nil {
		log.Println("Using Redis nonce store")
		nonceStore = auth.NewRedisNonceStore(redisClient, cfg.NonceTTL)
		defer redisClient.Close()
	} else {
		log.Println("Redis unavailable, using in-memory nonce store")
		nonceStore = auth.NewMemoryNonceStore(cfg.NonceTTL)
	}

	// Initialize auth services
	jwtService, err := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		log.Fatalf("Failed to initialize JWT service: %v", err)
	}

	googleVerifier, err := auth.NewGoogleVerifier(cfg.Google, nil)
	if err != nil {
		if !errors.Is(err, auth.ErrNotConfigured) {
			log.Fatalf("Failed to initialize Google verifier: %v", err)
		}
		log.Println("Google auth disabled (GOOGLE_CLIENT_ID not set)")
		googleVerifier = nil
	}

	clerkVerifier, err := auth.NewClerkVerifier(cfg.Clerk, cfg.DevMode, nil)
	if err != nil {
		if !errors.Is(err, auth.ErrNotConfigured) {
			log.Fatalf("Failed to initialize Clerk verifier: %v", err)
		}
		log.Println("Clerk auth disabled (CLERK_JWKS_URL not set)")
		clerkVerifier = nil
	}

	resolver := auth.NewIdentityResolver(userRepo, walletRepo)
	authService := auth.NewAuthService(jwtService, resolver, userRepo, refreshRepo, nonceStore, cfg.NonceTTL, googleVerifier, clerkVerifier)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)

	// Create router
	router := httpserver.NewRouter(authHandler, authService, database)

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Periodic sweep of expired refresh sessions
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go runSessionSweep(sweepCtx, authService)

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// runSessionSweep deletes expired refresh sessions on an hourly tick.
func runSessionSweep(ctx context.Context, authService *auth.AuthService) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := authService.CleanupExpired(ctx)
			if err != nil {
				log.Printf("Session sweep failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Session sweep removed %d expired sessions", n)
			}
		}
	}
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
