package services

import (
	"context"
	"fmt"

	"github.com/islandbitcoin/rewards-backend/internal/events"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
	"go.uber.org/zap"
)

// WalletService is the admin-facing management surface over the wallet
// connector. All operations are admin-gated: the funding wallet pays every
// reward in the system.
type WalletService struct {
	wallet    WalletClient
	history   ConnectionHistory
	admins    *AdminService
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

// ConnectionHistory lists past funding wallet sessions; WalletRepo satisfies it.
type ConnectionHistory interface {
	History(ctx context.Context, limit int) ([]models.WalletConnectionRecord, error)
}

func NewWalletService(wallet WalletClient, history ConnectionHistory, admins *AdminService, audit AuditLogger, publisher events.Publisher, log *zap.Logger) *WalletService {
	return &WalletService{wallet: wallet, history: history, admins: admins, audit: audit, publisher: publisher, log: log}
}

// History returns connection metadata for past sessions. Secrets are never
// stored, so there is nothing sensitive here beyond relay and pubkey.
func (s *WalletService) History(ctx context.Context, actor string, limit int) ([]models.WalletConnectionRecord, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.history.History(ctx, limit)
}

func (s *WalletService) Connect(ctx context.Context, actor, uri string) (*nwc.WalletInfo, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}

	info, err := s.wallet.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}

	conn := s.wallet.Connection()
	meta := map[string]any{"methods": info.Methods}
	if conn != nil {
		meta["wallet_pubkey"] = conn.WalletPubkey
		meta["relay"] = conn.RelayURL
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorPubkey: &actor,
		ActorType:   "admin",
		Action:      "wallet_connected",
		EntityType:  "wallet",
		Meta:        meta,
	})
	s.publishStatus(ctx, "connected")
	return info, nil
}

func (s *WalletService) Disconnect(ctx context.Context, actor string) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := s.wallet.Disconnect(ctx); err != nil {
		return err
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorPubkey: &actor,
		ActorType:   "admin",
		Action:      "wallet_disconnected",
		EntityType:  "wallet",
	})
	s.publishStatus(ctx, "disconnected")
	return nil
}

// Status returns the secret-free connection metadata, nil when disconnected.
func (s *WalletService) Status(ctx context.Context, actor string) (*nwc.StoredConnection, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if !s.wallet.Connected() {
		return nil, nil
	}
	return s.wallet.Connection(), nil
}

// Balance returns the funding wallet balance in sats.
func (s *WalletService) Balance(ctx context.Context, actor string) (int64, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return 0, err
	}
	res, err := s.wallet.GetBalance(ctx)
	if err != nil {
		return 0, err
	}
	return res.BalanceMsat / 1000, nil
}

func (s *WalletService) Transactions(ctx context.Context, actor string, limit int) ([]nwc.Transaction, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.wallet.ListTransactions(ctx, limit)
}

func (s *WalletService) requireAdmin(ctx context.Context, actor string) error {
	ok, err := s.admins.IsAdmin(ctx, actor)
	if err != nil {
		return fmt.Errorf("admin check: %w", err)
	}
	if !ok {
		return models.ErrNotAuthorized
	}
	return nil
}

func (s *WalletService) publishStatus(ctx context.Context, status string) {
	_ = s.publisher.Publish(ctx, events.Stream, events.Event{
		Type:    events.EventWalletStatus,
		Payload: map[string]any{"status": status},
	})
}
