package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/islandbitcoin/rewards-backend/internal/http/dto"
	"github.com/islandbitcoin/rewards-backend/internal/middleware"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
	"github.com/islandbitcoin/rewards-backend/internal/services"
	"go.uber.org/zap"
)

type RewardHandler struct {
	rewards *services.RewardService
	log     *zap.Logger
}

func NewRewardHandler(rewards *services.RewardService, log *zap.Logger) *RewardHandler {
	return &RewardHandler{rewards: rewards, log: log}
}

// Award records a game reward for the authenticated player.
func (h *RewardHandler) Award(c *fiber.Ctx) error {
	pubkey := middleware.GetPubkey(c)

	var req dto.AwardRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	payout, err := h.rewards.Award(c.Context(), pubkey, req.Amount, req.GameType)
	if err != nil {
		var denied *models.AdmissionDeniedError
		if errors.As(err, &denied) {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.ErrorResponse{
				Error:  "daily payout limit reached",
				Reason: denied.Reason,
			})
		}
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusCreated).JSON(payout)
}

// Withdraw pays the caller's full balance to the supplied invoice.
func (h *RewardHandler) Withdraw(c *fiber.Ctx) error {
	pubkey := middleware.GetPubkey(c)

	var req dto.WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	if req.Invoice == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invoice is required"})
	}

	payout, err := h.rewards.Withdraw(c.Context(), pubkey, req.Invoice)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrBelowMinWithdrawal):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, nwc.ErrNotConnected):
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "wallet not connected"})
		case errors.Is(err, models.ErrLedgerInvariant):
			h.log.Error("withdrawal ledger conflict", zap.Error(err), zap.String("pubkey", pubkey))
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "balance changed during withdrawal, contact support"})
		}
		var werr *nwc.WalletError
		if errors.As(err, &werr) {
			return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "payment failed", Reason: werr.Code})
		}
		h.log.Error("withdrawal failed", zap.Error(err), zap.String("pubkey", pubkey))
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "payment failed"})
	}

	return c.JSON(payout)
}
