package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/islandbitcoin/rewards-backend/internal/config"
	"github.com/islandbitcoin/rewards-backend/internal/http/handlers"
	"github.com/islandbitcoin/rewards-backend/internal/middleware"
	"github.com/islandbitcoin/rewards-backend/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	admins *services.AdminService,
	authHandler *handlers.AuthHandler,
	balanceHandler *handlers.BalanceHandler,
	rewardHandler *handlers.RewardHandler,
	adminHandler *handlers.AdminHandler,
	walletHandler *handlers.WalletHandler,
	wsHub *handlers.WSHub,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")

	// Auth (public)
	api.Post("/auth/nostr", authHandler.NostrAuth)

	api.Use(middleware.RateLimitMiddleware(rdb, 100, time.Minute))

	// Protected endpoints
	protected := api.Group("", middleware.AuthMiddleware(cfg, log))

	protected.Get("/me/balance", balanceHandler.GetBalance)
	protected.Get("/me/payouts", balanceHandler.ListPayouts)
	protected.Post("/me/withdraw", rewardHandler.Withdraw)

	protected.Post("/games/award", rewardHandler.Award)

	// First-admin bootstrap is open to any authenticated caller; the
	// service refuses once an admin exists.
	protected.Post("/admin/claim", adminHandler.Claim)

	// Admin endpoints
	admin := protected.Group("/admin", middleware.AdminMiddleware(admins))

	admin.Get("/admins", adminHandler.ListAdmins)
	admin.Post("/admins", adminHandler.AddAdmin)
	admin.Delete("/admins/:pubkey", adminHandler.RemoveAdmin)

	admin.Get("/policy", adminHandler.GetPolicy)
	admin.Put("/policy", adminHandler.UpdatePolicy)

	admin.Get("/audit", adminHandler.AuditTrail)

	admin.Get("/payouts", adminHandler.ListPayouts)
	admin.Post("/payouts/:id/settle", adminHandler.SettlePayout)
	admin.Post("/payouts/:id/fail", adminHandler.FailPayout)
	admin.Post("/payouts/:id/reset", adminHandler.ResetWithdrawal)

	admin.Post("/wallet/connect", walletHandler.Connect)
	admin.Delete("/wallet", walletHandler.Disconnect)
	admin.Get("/wallet", walletHandler.Status)
	admin.Get("/wallet/balance", walletHandler.Balance)
	admin.Get("/wallet/transactions", walletHandler.Transactions)
	admin.Get("/wallet/history", walletHandler.History)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(wsHub.HandleWS))
}
