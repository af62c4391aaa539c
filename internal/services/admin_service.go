package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/islandbitcoin/rewards-backend/internal/config"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/repositories"
	"go.uber.org/zap"
)

// AdminService guards policy mutation and admin-set changes. Pubkeys from
// ADMIN_PUBKEYS are always admins; the persisted set extends them and is
// seeded by first claim.
type AdminService struct {
	admins AdminStore
	policy PolicyStore
	audit  AuditStore
	cfg    *config.Config
	log    *zap.Logger
}

func NewAdminService(admins AdminStore, policy PolicyStore, audit AuditStore, cfg *config.Config, log *zap.Logger) *AdminService {
	return &AdminService{admins: admins, policy: policy, audit: audit, cfg: cfg, log: log}
}

func (s *AdminService) IsAdmin(ctx context.Context, pubkey string) (bool, error) {
	if s.cfg.IsAdminPubkey(pubkey) {
		return true, nil
	}
	return s.admins.IsAdmin(ctx, pubkey)
}

// Claim seeds an empty admin set with the caller. If the set is already
// populated the bootstrap window is closed and the call is rejected.
func (s *AdminService) Claim(ctx context.Context, pubkey string) error {
	err := s.admins.Claim(ctx, pubkey)
	if errors.Is(err, repositories.ErrAdminSetNotEmpty) {
		already, aerr := s.IsAdmin(ctx, pubkey)
		if aerr == nil && already {
			return nil
		}
		return models.ErrNotAuthorized
	}
	if err != nil {
		return err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorPubkey: &pubkey,
		ActorType:   "admin",
		Action:      "admin_claimed",
		EntityType:  "admin",
		EntityID:    &pubkey,
	})
	s.log.Info("admin set claimed", zap.String("pubkey", pubkey))
	return nil
}

func (s *AdminService) AddAdmin(ctx context.Context, actor, pubkey string) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}
	if err := s.admins.Add(ctx, pubkey, &actor); err != nil {
		return err
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorPubkey: &actor,
		ActorType:   "admin",
		Action:      "admin_added",
		EntityType:  "admin",
		EntityID:    &pubkey,
	})
	return nil
}

func (s *AdminService) RemoveAdmin(ctx context.Context, actor, pubkey string) error {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return err
	}

	admins, err := s.admins.List(ctx)
	if err != nil {
		return err
	}
	if len(admins) <= 1 && len(s.cfg.AdminPubkeys) == 0 {
		return fmt.Errorf("refusing to remove the last admin")
	}

	if err := s.admins.Remove(ctx, pubkey); err != nil {
		return err
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorPubkey: &actor,
		ActorType:   "admin",
		Action:      "admin_removed",
		EntityType:  "admin",
		EntityID:    &pubkey,
	})
	return nil
}

func (s *AdminService) ListAdmins(ctx context.Context, actor string) ([]models.Admin, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	return s.admins.List(ctx)
}

func (s *AdminService) GetPolicy(ctx context.Context) (*models.RewardPolicy, error) {
	return s.policy.Load(ctx)
}

func (s *AdminService) UpdatePolicy(ctx context.Context, actor string, patch models.PolicyPatch) (*models.RewardPolicy, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}

	policy, err := s.policy.Save(ctx, patch, actor)
	if err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorPubkey: &actor,
		ActorType:   "admin",
		Action:      "policy_updated",
		EntityType:  "policy",
		Meta:        patch,
	})
	s.log.Info("reward policy updated", zap.String("actor", actor))
	return policy, nil
}

// AuditTrail returns audit entries for one entity, newest first.
func (s *AdminService) AuditTrail(ctx context.Context, actor, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	if err := s.requireAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.audit.GetByEntity(ctx, entityType, entityID, limit, offset)
}

func (s *AdminService) requireAdmin(ctx context.Context, actor string) error {
	ok, err := s.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotAuthorized
	}
	return nil
}
