package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/islandbitcoin/rewards-backend/internal/config"
	"github.com/islandbitcoin/rewards-backend/internal/db"
	"github.com/islandbitcoin/rewards-backend/internal/events"
	apphttp "github.com/islandbitcoin/rewards-backend/internal/http"
	"github.com/islandbitcoin/rewards-backend/internal/http/handlers"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
	"github.com/islandbitcoin/rewards-backend/internal/repositories"
	"github.com/islandbitcoin/rewards-backend/internal/services"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	balanceRepo := repositories.NewBalanceRepo(pool)
	payoutRepo := repositories.NewPayoutRepo(pool)
	policyRepo := repositories.NewPolicyRepo(pool)
	adminRepo := repositories.NewAdminRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)
	walletRepo := repositories.NewWalletRepo(pool)

	if err := policyRepo.Seed(ctx, models.RewardPolicy{
		MaxDailyPayout:   cfg.DefaultMaxDailyPayout,
		MaxPayoutPerUser: cfg.DefaultMaxPayoutPerUser,
		MinWithdrawal:    cfg.DefaultMinWithdrawal,
		WithdrawalFee:    cfg.DefaultWithdrawalFee,
	}); err != nil {
		log.Fatal("failed to seed reward policy", zap.Error(err))
	}

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Wallet connector
	walletClient := nwc.NewClient(nwc.DialRelay, walletRepo, log,
		nwc.WithInfoDeadline(cfg.NWCInfoTimeout),
		nwc.WithRequestDeadline(cfg.NWCRequestTimeout),
		nwc.WithPollInterval(cfg.NWCPollInterval),
	)
	if cfg.NWCConnectURI != "" {
		if _, err := walletClient.Connect(ctx, cfg.NWCConnectURI); err != nil {
			// The API still serves awards; withdrawals fail until a wallet
			// is connected through the admin endpoint.
			log.Warn("startup wallet connect failed", zap.Error(err))
		}
	}

	// Services
	admissionControl := services.NewAdmissionControl(payoutRepo, policyRepo, log)
	adminService := services.NewAdminService(adminRepo, policyRepo, auditRepo, cfg, log)
	rewardService := services.NewRewardService(balanceRepo, payoutRepo, policyRepo, admissionControl, adminService, walletClient, auditRepo, publisher, log)
	walletService := services.NewWalletService(walletClient, walletRepo, adminService, auditRepo, publisher, log)

	// Handlers
	authHandler := handlers.NewAuthHandler(rewardService, cfg, log)
	balanceHandler := handlers.NewBalanceHandler(rewardService, log)
	rewardHandler := handlers.NewRewardHandler(rewardService, log)
	adminHandler := handlers.NewAdminHandler(adminService, rewardService, log)
	walletHandler := handlers.NewWalletHandler(walletService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, adminService, authHandler, balanceHandler, rewardHandler, adminHandler, walletHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		_ = walletClient.Disconnect(context.Background())
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
