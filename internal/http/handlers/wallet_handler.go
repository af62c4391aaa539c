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

type WalletHandler struct {
	wallet *services.WalletService
	log    *zap.Logger
}

func NewWalletHandler(wallet *services.WalletService, log *zap.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, log: log}
}

// Connect establishes the funding wallet session from a connection URI.
// The URI carries the wallet secret and is never logged or persisted.
func (h *WalletHandler) Connect(c *fiber.Ctx) error {
	var req dto.WalletConnectRequest
	if err := c.BodyParser(&req); err != nil || req.URI == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "uri is required"})
	}

	info, err := h.wallet.Connect(c.Context(), middleware.GetPubkey(c), req.URI)
	if err != nil {
		return walletError(c, h.log, err)
	}
	return c.JSON(info)
}

func (h *WalletHandler) Disconnect(c *fiber.Ctx) error {
	if err := h.wallet.Disconnect(c.Context(), middleware.GetPubkey(c)); err != nil {
		return walletError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true})
}

func (h *WalletHandler) Status(c *fiber.Ctx) error {
	conn, err := h.wallet.Status(c.Context(), middleware.GetPubkey(c))
	if err != nil {
		return walletError(c, h.log, err)
	}
	if conn == nil {
		return c.JSON(dto.WalletStatusResponse{Connected: false})
	}
	return c.JSON(dto.WalletStatusResponse{
		Connected:    true,
		WalletPubkey: conn.WalletPubkey,
		RelayURL:     conn.RelayURL,
		LUD16:        conn.LUD16,
	})
}

func (h *WalletHandler) Balance(c *fiber.Ctx) error {
	sats, err := h.wallet.Balance(c.Context(), middleware.GetPubkey(c))
	if err != nil {
		return walletError(c, h.log, err)
	}
	return c.JSON(dto.WalletBalanceResponse{BalanceSats: sats})
}

func (h *WalletHandler) History(c *fiber.Ctx) error {
	records, err := h.wallet.History(c.Context(), middleware.GetPubkey(c), c.QueryInt("limit"))
	if err != nil {
		return walletError(c, h.log, err)
	}
	if records == nil {
		records = []models.WalletConnectionRecord{}
	}
	return c.JSON(records)
}

func (h *WalletHandler) Transactions(c *fiber.Ctx) error {
	txs, err := h.wallet.Transactions(c.Context(), middleware.GetPubkey(c), c.QueryInt("limit"))
	if err != nil {
		return walletError(c, h.log, err)
	}
	if txs == nil {
		txs = []nwc.Transaction{}
	}
	return c.JSON(txs)
}

func walletError(c *fiber.Ctx, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, models.ErrNotAuthorized):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Error: "admin access required"})
	case errors.Is(err, nwc.ErrMalformedURI):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, nwc.ErrNotConnected):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: "wallet not connected"})
	case errors.Is(err, nwc.ErrWalletUnreachable), errors.Is(err, nwc.ErrRequestTimeout):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: err.Error()})
	}
	var werr *nwc.WalletError
	if errors.As(err, &werr) {
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Error: werr.Message, Reason: werr.Code})
	}
	log.Error("wallet operation failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
}
