package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	DevMode     bool

	JWTSecret       string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	NonceTTL time.Duration

	Google GoogleConfig
	Clerk  ClerkConfig
}

// GoogleConfig configures Google ID-token verification. Google auth is
// disabled when ClientID is empty.
type GoogleConfig struct {
	ClientID string
	JWKSURL  string
}

// ClerkConfig configures federated (Clerk) token verification. Clerk auth is
// disabled when JWKSURL is empty; the fallback confirmation path and profile
// fetch additionally require SecretKey.
type ClerkConfig struct {
	JWKSURL   string
	SecretKey string
	APIURL    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port: "8080", // default port
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.DatabaseURL = databaseURL

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(jwtSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	cfg.JWTSecret = jwtSecret

	var err error
	cfg.AccessTokenTTL, err = durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	cfg.RefreshTokenTTL, err = durationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.NonceTTL, err = durationEnv("WALLET_NONCE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	cfg.DevMode = os.Getenv("DEV_MODE") == "true"

	cfg.Google = GoogleConfig{
		ClientID: os.Getenv("GOOGLE_CLIENT_ID"),
		JWKSURL:  getenv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
	}

	cfg.Clerk = ClerkConfig{
		JWKSURL:   os.Getenv("CLERK_JWKS_URL"),
		SecretKey: os.Getenv("CLERK_SECRET_KEY"),
		APIURL:    getenv("CLERK_API_URL", "https://api.clerk.com/v1"),
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// durationEnv parses a Go duration ("15m", "720h") or a plain integer number
// of seconds from the environment.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
