package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/islandbitcoin/rewards-backend/internal/http/dto"
	"github.com/islandbitcoin/rewards-backend/internal/middleware"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/services"
	"go.uber.org/zap"
)

type BalanceHandler struct {
	rewards *services.RewardService
	log     *zap.Logger
}

func NewBalanceHandler(rewards *services.RewardService, log *zap.Logger) *BalanceHandler {
	return &BalanceHandler{rewards: rewards, log: log}
}

func (h *BalanceHandler) GetBalance(c *fiber.Ctx) error {
	pubkey := middleware.GetPubkey(c)
	balance, err := h.rewards.GetBalance(c.Context(), pubkey)
	if err != nil {
		h.log.Error("failed to load balance", zap.Error(err), zap.String("pubkey", pubkey))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(balance)
}

func (h *BalanceHandler) ListPayouts(c *fiber.Ctx) error {
	pubkey := middleware.GetPubkey(c)

	filter := models.PayoutFilter{UserPubkey: &pubkey}
	if s := c.Query("status"); s != "" {
		filter.Status = &s
	}
	if g := c.Query("gameType"); g != "" {
		filter.GameType = &g
	}
	filter.Limit = c.QueryInt("limit")

	payouts, err := h.rewards.ListPayouts(c.Context(), filter)
	if err != nil {
		h.log.Error("failed to list payouts", zap.Error(err), zap.String("pubkey", pubkey))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	if payouts == nil {
		payouts = []models.Payout{}
	}
	return c.JSON(payouts)
}
