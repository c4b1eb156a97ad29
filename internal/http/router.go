package http

import (
	"database/sql"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bountygo/server/internal/auth"
	"github.com/bountygo/server/internal/http/handlers"
	"github.com/bountygo/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(authHandler *handlers.AuthHandler, authService *auth.AuthService, database *sql.DB) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler(database)
	r.Get("/health", healthHandler.ServeHTTP)

	// Coarse per-IP ceiling across all auth endpoints; the handlers apply
	// tighter per-endpoint limits on top.
	authLimiter := middleware.NewRateLimiter(time.Minute, 60)

	requireAuth := middleware.AuthMiddleware(authService)

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(authLimiter, middleware.GetIPKey))
		r.Post("/google", authHandler.HandleGoogleLogin)
		r.Post("/clerk", authHandler.HandleClerkLogin)
		r.Get("/wallet/nonce", authHandler.HandleWalletNonce)
		r.Post("/wallet/login", authHandler.HandleWalletLogin)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.With(requireAuth).Post("/logout", authHandler.HandleLogout)
		r.With(requireAuth).Post("/logout-all", authHandler.HandleLogoutAll)
	})

	// Protected routes (require valid JWT)
	r.Group(func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/me", authHandler.HandleMe)
		r.Get("/me/wallets", authHandler.HandleListWallets)
		r.Post("/me/wallets", authHandler.HandleLinkWallet)
		r.Delete("/me/wallets/{walletID}", authHandler.HandleUnlinkWallet)
	})

	return r
}
