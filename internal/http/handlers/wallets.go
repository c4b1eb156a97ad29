package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bountygo/server/internal/auth"
	"github.com/bountygo/server/internal/middleware"
)

// HandleListWallets handles GET /me/wallets (protected)
func (h *AuthHandler) HandleListWallets(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	wallets, err := h.authService.Wallets(r.Context(), user.ID)
	if err != nil {
		log.Printf("list wallets failed for user %d: %v", user.ID, err)
		respondWithError(w, http.StatusInternalServerError, "failed to list wallets")
		return
	}

	out := make([]walletResponse, 0, len(wallets))
	for _, wl := range wallets {
		out = append(out, toWalletResponse(wl))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"wallets": out})
}

// HandleLinkWallet handles POST /me/wallets (protected). Linking requires the
// same signed-challenge proof as a wallet login.
func (h *AuthHandler) HandleLinkWallet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	var req walletAuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.WalletAddress == "" || req.Signature == "" || req.Message == "" {
		respondWithError(w, http.StatusBadRequest, "wallet_address, signature and message are required")
		return
	}

	wallet, err := h.authService.LinkWallet(r.Context(), user.ID, req.WalletAddress, req.Signature, req.Message, req.IsPrimary)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrValidation):
			respondWithError(w, http.StatusConflict, "wallet address already linked")
		case errors.Is(err, auth.ErrAuthentication):
			respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		default:
			log.Printf("link wallet failed for user %d: %v", user.ID, err)
			respondWithError(w, http.StatusInternalServerError, "failed to link wallet")
		}
		return
	}

	respondJSON(w, http.StatusCreated, toWalletResponse(wallet))
}

// HandleUnlinkWallet handles DELETE /me/wallets/{walletID} (protected)
func (h *AuthHandler) HandleUnlinkWallet(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	walletID, err := strconv.ParseInt(chi.URLParam(r, "walletID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid wallet id")
		return
	}

	removed, err := h.authService.UnlinkWallet(r.Context(), user.ID, walletID)
	if err != nil {
		log.Printf("unlink wallet failed for user %d: %v", user.ID, err)
		respondWithError(w, http.StatusInternalServerError, "failed to unlink wallet")
		return
	}
	if !removed {
		respondWithError(w, http.StatusNotFound, "wallet not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "wallet unlinked"})
}
