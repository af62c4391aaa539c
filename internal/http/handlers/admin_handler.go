package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/islandbitcoin/rewards-backend/internal/http/dto"
	"github.com/islandbitcoin/rewards-backend/internal/middleware"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
	"github.com/islandbitcoin/rewards-backend/internal/services"
	"go.uber.org/zap"
)

type AdminHandler struct {
	admins  *services.AdminService
	rewards *services.RewardService
	log     *zap.Logger
}

func NewAdminHandler(admins *services.AdminService, rewards *services.RewardService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{admins: admins, rewards: rewards, log: log}
}

// Claim grants admin to the caller if and only if no admin exists yet.
// Reachable without the admin middleware on purpose.
func (h *AdminHandler) Claim(c *fiber.Ctx) error {
	pubkey := middleware.GetPubkey(c)
	if err := h.admins.Claim(c.Context(), pubkey); err != nil {
		if errors.Is(err, models.ErrNotAuthorized) {
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin already claimed"})
		}
		h.log.Error("claim failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AdminHandler) ListAdmins(c *fiber.Ctx) error {
	admins, err := h.admins.ListAdmins(c.Context(), middleware.GetPubkey(c))
	if err != nil {
		return adminError(c, err)
	}
	if admins == nil {
		admins = []models.Admin{}
	}
	return c.JSON(admins)
}

func (h *AdminHandler) AddAdmin(c *fiber.Ctx) error {
	var req dto.AddAdminRequest
	if err := c.BodyParser(&req); err != nil || req.Pubkey == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "pubkey is required"})
	}
	if err := h.admins.AddAdmin(c.Context(), middleware.GetPubkey(c), req.Pubkey); err != nil {
		return adminError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{OK: true})
}

func (h *AdminHandler) RemoveAdmin(c *fiber.Ctx) error {
	if err := h.admins.RemoveAdmin(c.Context(), middleware.GetPubkey(c), c.Params("pubkey")); err != nil {
		return adminError(c, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *AdminHandler) GetPolicy(c *fiber.Ctx) error {
	policy, err := h.admins.GetPolicy(c.Context())
	if err != nil {
		h.log.Error("failed to load policy", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	return c.JSON(policy)
}

func (h *AdminHandler) UpdatePolicy(c *fiber.Ctx) error {
	var req dto.UpdatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}
	policy, err := h.admins.UpdatePolicy(c.Context(), middleware.GetPubkey(c), models.PolicyPatch{
		MaxDailyPayout:   req.MaxDailyPayout,
		MaxPayoutPerUser: req.MaxPayoutPerUser,
		MinWithdrawal:    req.MinWithdrawal,
		WithdrawalFee:    req.WithdrawalFee,
	})
	if err != nil {
		return adminError(c, err)
	}
	return c.JSON(policy)
}

// AuditTrail returns the audit entries for one entity.
func (h *AdminHandler) AuditTrail(c *fiber.Ctx) error {
	entityType := c.Query("entityType")
	entityID := c.Query("entityId")
	if entityType == "" || entityID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "entityType and entityId are required"})
	}
	entries, err := h.admins.AuditTrail(c.Context(), middleware.GetPubkey(c), entityType, entityID, c.QueryInt("limit"), c.QueryInt("offset"))
	if err != nil {
		return adminError(c, err)
	}
	if entries == nil {
		entries = []models.AuditLog{}
	}
	return c.JSON(entries)
}

// ListPayouts returns payouts across all users, filterable.
func (h *AdminHandler) ListPayouts(c *fiber.Ctx) error {
	var filter models.PayoutFilter
	if pk := c.Query("pubkey"); pk != "" {
		filter.UserPubkey = &pk
	}
	if s := c.Query("status"); s != "" {
		filter.Status = &s
	}
	if g := c.Query("gameType"); g != "" {
		filter.GameType = &g
	}
	filter.Limit = c.QueryInt("limit")

	payouts, err := h.rewards.ListPayouts(c.Context(), filter)
	if err != nil {
		h.log.Error("failed to list payouts", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}
	if payouts == nil {
		payouts = []models.Payout{}
	}
	return c.JSON(payouts)
}

// SettlePayout pays a pending reward through the connected wallet.
func (h *AdminHandler) SettlePayout(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid payout id"})
	}
	var req dto.SettlePayoutRequest
	if err := c.BodyParser(&req); err != nil || req.Invoice == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invoice is required"})
	}

	payout, err := h.rewards.SettlePayout(c.Context(), middleware.GetPubkey(c), id, req.Invoice)
	if err != nil {
		return payoutError(c, h.log, err)
	}
	return c.JSON(payout)
}

// FailPayout abandons a pending reward.
func (h *AdminHandler) FailPayout(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid payout id"})
	}
	payout, err := h.rewards.FailPayout(c.Context(), middleware.GetPubkey(c), id)
	if err != nil {
		return payoutError(c, h.log, err)
	}
	return c.JSON(payout)
}

// ResetWithdrawal reconciles a stuck withdrawal: the payout flips to failed
// and the debited funds return to the user.
func (h *AdminHandler) ResetWithdrawal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid payout id"})
	}
	payout, err := h.rewards.ReconcileWithdrawal(c.Context(), middleware.GetPubkey(c), id)
	if err != nil {
		if errors.Is(err, models.ErrSharedExternalRef) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: "external reference is shared, refusing reset"})
		}
		return payoutError(c, h.log, err)
	}
	return c.JSON(payout)
}

func adminError(c *fiber.Ctx, err error) error {
	if errors.Is(err, models.ErrNotAuthorized) {
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin access required"})
	}
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
}

func payoutError(c *fiber.Ctx, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, models.ErrPayoutNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "payout not found"})
	case errors.Is(err, models.ErrInvalidTransition):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, models.ErrNotAuthorized):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin access required"})
	case errors.Is(err, nwc.ErrNotConnected):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "wallet not connected"})
	}
	var werr *nwc.WalletError
	if errors.As(err, &werr) {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: "payment failed", Reason: werr.Code})
	}
	log.Error("payout operation failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
}
