package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/islandbitcoin/rewards-backend/internal/auth"
	"github.com/islandbitcoin/rewards-backend/internal/config"
	"github.com/islandbitcoin/rewards-backend/internal/http/dto"
	"github.com/islandbitcoin/rewards-backend/internal/services"
	"go.uber.org/zap"
)

type AuthHandler struct {
	rewards *services.RewardService
	cfg     *config.Config
	log     *zap.Logger
}

func NewAuthHandler(rewards *services.RewardService, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{rewards: rewards, cfg: cfg, log: log}
}

// NostrAuth exchanges a signed kind 27235 event for a session token. The
// event proves key possession; no account creation step exists, the pubkey
// is the identity.
func (h *AuthHandler) NostrAuth(c *fiber.Ctx) error {
	var req dto.NostrAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if len(req.Event) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "event is required"})
	}

	pubkey, err := auth.VerifyAuthEvent(req.Event, h.cfg.AuthAllowedURLs, h.cfg.AuthMaxAge)
	if err != nil {
		h.log.Debug("nostr auth failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, pubkey, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	// Lazily creates the balance row on first login.
	balance, err := h.rewards.GetBalance(c.Context(), pubkey)
	if err != nil {
		h.log.Error("failed to load balance", zap.Error(err), zap.String("pubkey", pubkey))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{
		Token:   token,
		Pubkey:  pubkey,
		Balance: balance,
	})
}
