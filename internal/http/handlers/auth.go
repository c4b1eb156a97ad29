package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bountygo/server/internal/auth"
	"github.com/bountygo/server/internal/middleware"
	"github.com/bountygo/server/internal/model"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService    *auth.AuthService
	loginLimiter   *middleware.RateLimiter
	nonceLimiter   *middleware.RateLimiter
	addressLimiter *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *auth.AuthService) *AuthHandler {
	// Rate limiters: 20 logins / 30 nonce requests per IP, plus a per-wallet
	// cap so a single address cannot be hammered through many IPs. Primary
	// brute-force defense; error messages stay uniform regardless.
	return &AuthHandler{
		authService:    authService,
		loginLimiter:   middleware.NewRateLimiter(10*time.Minute, 20),
		nonceLimiter:   middleware.NewRateLimiter(10*time.Minute, 30),
		addressLimiter: middleware.NewRateLimiter(10*time.Minute, 10),
	}
}

// tokenRequest is the request body for POST /auth/google and /auth/clerk
type tokenRequest struct {
	IDToken string `json:"id_token"`
	Token   string `json:"token"`
}

// walletAuthRequest is the request body for wallet login and linking
type walletAuthRequest struct {
	WalletAddress string `json:"wallet_address"`
	Signature     string `json:"signature"`
	Message       string `json:"message"`
	IsPrimary     bool   `json:"is_primary"`
}

// tokenPairResponse is the JSON response for successful authentication
type tokenPairResponse struct {
	model.TokenPair
	User userResponse `json:"user"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID        int64   `json:"id"`
	Email     string  `json:"email"`
	Nickname  string  `json:"nickname"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Nickname:  u.Nickname,
		AvatarURL: u.AvatarURL,
	}
}

// walletResponse is the wallet object in API responses
type walletResponse struct {
	ID        int64  `json:"id"`
	Address   string `json:"address"`
	Kind      string `json:"kind"`
	IsPrimary bool   `json:"is_primary"`
}

func toWalletResponse(w model.UserWallet) walletResponse {
	return walletResponse{
		ID:        w.ID,
		Address:   w.Address,
		Kind:      w.Kind,
		IsPrimary: w.IsPrimary,
	}
}

// HandleGoogleLogin handles POST /auth/google
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.IDToken = strings.TrimSpace(req.IDToken)
	if req.IDToken == "" {
		respondWithError(w, http.StatusBadRequest, "id_token is required")
		return
	}

	if !h.loginLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	pair, user, err := h.authService.AuthenticateGoogle(r.Context(), req.IDToken)
	if err != nil {
		h.respondAuthError(w, "google login failed", err)
		return
	}

	respondJSON(w, http.StatusOK, tokenPairResponse{TokenPair: pair, User: toUserResponse(&user)})
}

// HandleClerkLogin handles POST /auth/clerk
func (h *AuthHandler) HandleClerkLogin(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Token = strings.TrimSpace(req.Token)
	if req.Token == "" {
		respondWithError(w, http.StatusBadRequest, "token is required")
		return
	}

	if !h.loginLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	pair, user, err := h.authService.AuthenticateClerk(r.Context(), req.Token)
	if err != nil {
		h.respondAuthError(w, "clerk login failed", err)
		return
	}

	respondJSON(w, http.StatusOK, tokenPairResponse{TokenPair: pair, User: toUserResponse(&user)})
}

// HandleWalletNonce handles GET /auth/wallet/nonce?address=0x..
func (h *AuthHandler) HandleWalletNonce(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if address == "" {
		respondWithError(w, http.StatusBadRequest, "address is required")
		return
	}

	if !h.nonceLimiter.Allow(middleware.GetIPKey(r)) || !h.addressLimiter.Allow(middleware.GetAddressKey(strings.ToLower(address))) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	challenge, err := h.authService.WalletChallenge(r.Context(), address)
	if err != nil {
		if errors.Is(err, auth.ErrValidation) {
			respondWithError(w, http.StatusBadRequest, "invalid wallet address")
			return
		}
		log.Printf("wallet nonce failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "failed to issue nonce")
		return
	}

	respondJSON(w, http.StatusOK, challenge)
}

// HandleWalletLogin handles POST /auth/wallet/login
func (h *AuthHandler) HandleWalletLogin(w http.ResponseWriter, r *http.Request) {
	var req walletAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.WalletAddress == "" || req.Signature == "" || req.Message == "" {
		respondWithError(w, http.StatusBadRequest, "wallet_address, signature and message are required")
		return
	}

	if !h.loginLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	pair, user, err := h.authService.AuthenticateWallet(r.Context(), req.WalletAddress, req.Signature, req.Message)
	if err != nil {
		h.respondAuthError(w, "wallet login failed", err)
		return
	}

	respondJSON(w, http.StatusOK, tokenPairResponse{TokenPair: pair, User: toUserResponse(&user)})
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondAuthError(w, "refresh failed", err)
		return
	}

	respondJSON(w, http.StatusOK, pair)
}

// logoutRequest is the request body for POST /auth/logout
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleLogout handles POST /auth/logout (protected). Revokes the supplied
// refresh token, or every token of the caller when none is given.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	var req logoutRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if _, err := h.authService.Logout(r.Context(), user.ID, strings.TrimSpace(req.RefreshToken)); err != nil {
		log.Printf("logout failed for user %d: %v", user.ID, err)
		respondWithError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleLogoutAll handles POST /auth/logout-all (protected)
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if _, err := h.authService.LogoutAll(r.Context(), user.ID); err != nil {
		log.Printf("logout-all failed for user %d: %v", user.ID, err)
		respondWithError(w, http.StatusInternalServerError, "logout failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe handles GET /me (protected). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	respondJSON(w, http.StatusOK, toUserResponse(user))
}

// respondAuthError maps the service error taxonomy onto HTTP statuses. All
// credential failures surface the same body to prevent account enumeration.
func (h *AuthHandler) respondAuthError(w http.ResponseWriter, context string, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		respondWithError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, auth.ErrNotConfigured):
		respondWithError(w, http.StatusNotImplemented, "login method not available")
	case errors.Is(err, auth.ErrExternalService):
		log.Printf("%s: provider unavailable: %v", context, err)
		respondWithError(w, http.StatusBadGateway, "login provider unavailable")
	case errors.Is(err, auth.ErrAuthentication):
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
	default:
		log.Printf("%s: %v", context, err)
		respondWithError(w, http.StatusInternalServerError, "internal error")
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}
