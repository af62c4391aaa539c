package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/islandbitcoin/rewards-backend/internal/config"
	"github.com/islandbitcoin/rewards-backend/internal/db"
	"github.com/islandbitcoin/rewards-backend/internal/repositories"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	payoutRepo := repositories.NewPayoutRepo(pool)
	balanceRepo := repositories.NewBalanceRepo(pool)

	log.Info("worker started",
		zap.Int("payout_retention_days", cfg.PayoutRetentionDays),
	)

	retentionTicker := time.NewTicker(6 * time.Hour)
	auditTicker := time.NewTicker(1 * time.Hour)
	defer retentionTicker.Stop()
	defer auditTicker.Stop()

	// Run both once at startup so a rarely restarted worker still converges.
	runRetention(ctx, payoutRepo, cfg, log)
	runLedgerAudit(ctx, balanceRepo, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-retentionTicker.C:
			runRetention(ctx, payoutRepo, cfg, log)
		case <-auditTicker.C:
			runLedgerAudit(ctx, balanceRepo, log)
		case <-sigCh:
			log.Info("shutting down worker")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// runRetention trims settled history past the retention window. Pending
// payouts survive regardless of age, they represent unresolved money.
func runRetention(ctx context.Context, payoutRepo *repositories.PayoutRepo, cfg *config.Config, log *zap.Logger) {
	if cfg.PayoutRetentionDays <= 0 {
		return
	}
	retention := time.Duration(cfg.PayoutRetentionDays) * 24 * time.Hour
	deleted, err := payoutRepo.DeleteOlderThan(ctx, retention)
	if err != nil {
		log.Error("payout retention cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		log.Info("payout history trimmed",
			zap.Int64("deleted", deleted),
			zap.Int("retention_days", cfg.PayoutRetentionDays),
		)
	}
}

// runLedgerAudit compares each user's lifetime earnings with the sum of
// their paid payouts still in the log and reports drift.
func runLedgerAudit(ctx context.Context, balanceRepo *repositories.BalanceRepo, log *zap.Logger) {
	rows, err := balanceRepo.AuditTotals(ctx)
	if err != nil {
		log.Error("ledger audit failed", zap.Error(err))
		return
	}
	for _, row := range rows {
		log.Warn("ledger drift detected",
			zap.String("pubkey", row.Pubkey),
			zap.Int64("total_earned", row.TotalEarned),
			zap.Int64("replay_sum", row.ReplaySum),
		)
	}
	if len(rows) == 0 {
		log.Debug("ledger audit clean")
	}
}
