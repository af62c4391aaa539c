package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/islandbitcoin/rewards-backend/internal/events"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
	"go.uber.org/zap"
)

// ErrBelowMinWithdrawal rejects a withdrawal before any wallet RPC is made.
var ErrBelowMinWithdrawal = errors.New("balance below minimum withdrawal")

// RewardService orchestrates awards, settlements, withdrawals and
// reconciliation across the ledger, the payout log, admission control and
// the wallet connector.
type RewardService struct {
	balances  BalanceStore
	payouts   PayoutStore
	policy    PolicyStore
	admission *AdmissionControl
	admins    *AdminService
	wallet    WalletClient
	audit     AuditLogger
	publisher events.Publisher
	log       *zap.Logger
}

func NewRewardService(
	balances BalanceStore,
	payouts PayoutStore,
	policy PolicyStore,
	admission *AdmissionControl,
	admins *AdminService,
	wallet WalletClient,
	audit AuditLogger,
	publisher events.Publisher,
	log *zap.Logger,
) *RewardService {
	return &RewardService{
		balances:  balances,
		payouts:   payouts,
		policy:    policy,
		admission: admission,
		admins:    admins,
		wallet:    wallet,
		audit:     audit,
		publisher: publisher,
		log:       log,
	}
}

func (s *RewardService) GetBalance(ctx context.Context, pubkey string) (*models.UserBalance, error) {
	return s.balances.Get(ctx, pubkey)
}

func (s *RewardService) ListPayouts(ctx context.Context, f models.PayoutFilter) ([]models.Payout, error) {
	return s.payouts.List(ctx, f)
}

// Award credits a game reward. The payout is appended as pending and the
// amount lands in pending_balance; confirmation through the wallet happens
// separately in SettlePayout so a payment failure never strands half a flow.
func (s *RewardService) Award(ctx context.Context, pubkey string, amount int64, gameType string) (*models.Payout, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("award amount must be positive, got %d", amount)
	}
	if gameType == models.GameTypeWithdrawal || !models.IsValidGameType(gameType) {
		return nil, fmt.Errorf("invalid game type %q for an award", gameType)
	}

	decision, err := s.admission.CanEarn(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, &models.AdmissionDeniedError{Reason: decision.Reason}
	}

	payout, err := s.payouts.Create(ctx, models.PayoutRequest{
		UserPubkey: pubkey,
		Amount:     amount,
		GameType:   gameType,
	})
	if err != nil {
		return nil, fmt.Errorf("record payout: %w", err)
	}

	balance, err := s.balances.CreditPending(ctx, pubkey, amount)
	if err != nil {
		return nil, fmt.Errorf("credit pending: %w", err)
	}

	s.auditPayout(ctx, payout, &pubkey, "user", "payout_created")
	s.publishBalance(ctx, balance)
	s.publishPayout(ctx, payout)

	s.log.Info("reward awarded",
		zap.String("pubkey", pubkey),
		zap.Int64("amount", amount),
		zap.String("game_type", gameType),
		zap.String("payout_id", payout.ID.String()),
	)
	return payout, nil
}

// SettlePayout replays a pending reward through the connected wallet. On
// success the amount moves pending -> balance and the payout becomes paid
// with the payment preimage as external reference. On wallet failure the
// optimistic pending credit is reverted and the payout stays pending for
// another attempt; it is never silently retried.
func (s *RewardService) SettlePayout(ctx context.Context, actor string, payoutID uuid.UUID, invoice string) (*models.Payout, error) {
	payout, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.GameType == models.GameTypeWithdrawal {
		return nil, fmt.Errorf("withdrawals are not settled through this path")
	}
	if payout.Status != models.PayoutStatusPending {
		return nil, fmt.Errorf("%w: %s -> paid", models.ErrInvalidTransition, payout.Status)
	}
	if !s.wallet.Connected() {
		return nil, nwc.ErrNotConnected
	}

	amountMsat := payout.Amount * 1000
	res, err := s.wallet.PayInvoice(ctx, invoice, &amountMsat)
	if err != nil {
		// Pull the optimistic credit back out of pending; the payout row
		// stays pending so an operator can retry. A second failed attempt
		// finds nothing left to revert, which is fine.
		if rerr := s.balances.RevertPending(ctx, payout.UserPubkey, payout.Amount); rerr != nil && !errors.Is(rerr, models.ErrLedgerInvariant) {
			s.log.Error("failed to revert pending credit", zap.Error(rerr), zap.String("payout_id", payoutID.String()))
		}
		s.auditPayout(ctx, payout, &actor, "admin", "payout_settle_failed")
		return nil, fmt.Errorf("pay invoice: %w", err)
	}

	paid, err := s.payouts.UpdateStatus(ctx, payoutID, models.PayoutStatusPaid, &res.Preimage)
	if err != nil {
		return nil, err
	}
	balance, err := s.balances.SettleCredit(ctx, payout.UserPubkey, payout.Amount)
	if err != nil {
		return nil, fmt.Errorf("settle credit: %w", err)
	}

	s.auditPayout(ctx, paid, &actor, "admin", "payout_pending_to_paid")
	s.publishBalance(ctx, balance)
	s.publishPayout(ctx, paid)

	s.log.Info("payout settled",
		zap.String("payout_id", payoutID.String()),
		zap.Int64("amount", paid.Amount),
		zap.Int64("fees_paid_msat", res.FeesPaidMsat),
	)
	return paid, nil
}

// FailPayout abandons a pending reward: the payout becomes failed and the
// pending credit is removed, so the amount ends up in neither balance.
func (s *RewardService) FailPayout(ctx context.Context, actor string, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status != models.PayoutStatusPending || payout.GameType == models.GameTypeWithdrawal {
		return nil, fmt.Errorf("%w: %s -> failed", models.ErrInvalidTransition, payout.Status)
	}

	failed, err := s.payouts.UpdateStatus(ctx, payoutID, models.PayoutStatusFailed, nil)
	if err != nil {
		return nil, err
	}
	if rerr := s.balances.RevertPending(ctx, payout.UserPubkey, payout.Amount); rerr != nil && !errors.Is(rerr, models.ErrLedgerInvariant) {
		return nil, rerr
	}

	s.auditPayout(ctx, failed, &actor, "admin", "payout_pending_to_failed")
	s.publishPayout(ctx, failed)
	return failed, nil
}

// Withdraw pays the user's full withdrawable balance (minus the policy fee)
// to their invoice. The threshold check happens before any wallet RPC; the
// ledger is debited only after the wallet confirms, never speculatively.
func (s *RewardService) Withdraw(ctx context.Context, pubkey string, invoice string) (*models.Payout, error) {
	policy, err := s.policy.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	balance, err := s.balances.Get(ctx, pubkey)
	if err != nil {
		return nil, err
	}

	if balance.Balance < policy.MinWithdrawal {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrBelowMinWithdrawal, balance.Balance, policy.MinWithdrawal)
	}
	amount := balance.Balance - policy.WithdrawalFee
	if amount <= 0 {
		return nil, fmt.Errorf("%w: balance does not cover the %d sat fee", ErrBelowMinWithdrawal, policy.WithdrawalFee)
	}
	if !s.wallet.Connected() {
		return nil, nwc.ErrNotConnected
	}

	amountMsat := amount * 1000
	res, payErr := s.wallet.PayInvoice(ctx, invoice, &amountMsat)
	if payErr != nil {
		// Balance stays untouched; the failed attempt is still logged so
		// the payout log remains a complete account of what happened.
		failed, cerr := s.payouts.Create(ctx, models.PayoutRequest{
			UserPubkey: pubkey,
			Amount:     amount,
			FeeSats:    policy.WithdrawalFee,
			GameType:   models.GameTypeWithdrawal,
			Status:     models.PayoutStatusFailed,
		})
		if cerr != nil {
			s.log.Error("failed to record failed withdrawal", zap.Error(cerr))
		} else {
			s.auditPayout(ctx, failed, &pubkey, "user", "withdrawal_failed")
		}
		return nil, fmt.Errorf("pay invoice: %w", payErr)
	}

	if err := s.balances.DebitForWithdrawal(ctx, pubkey, balance.Balance); err != nil {
		// The wallet already paid but the balance moved underneath us.
		// Surface loudly; reconciliation is an operator decision.
		s.log.Error("withdrawal debit conflict",
			zap.String("pubkey", pubkey),
			zap.Int64("expected_balance", balance.Balance),
			zap.Error(err),
		)
		s.auditLedger(ctx, pubkey, "withdrawal_debit_conflict", map[string]any{
			"expected_balance": balance.Balance,
			"preimage":         res.Preimage,
		})
		return nil, err
	}

	payout, err := s.payouts.Create(ctx, models.PayoutRequest{
		UserPubkey:  pubkey,
		Amount:      amount,
		FeeSats:     policy.WithdrawalFee,
		GameType:    models.GameTypeWithdrawal,
		Status:      models.PayoutStatusPaid,
		ExternalRef: &res.Preimage,
	})
	if err != nil {
		return nil, fmt.Errorf("record withdrawal: %w", err)
	}

	updated, _ := s.balances.Get(ctx, pubkey)
	s.auditPayout(ctx, payout, &pubkey, "user", "withdrawal_paid")
	if updated != nil {
		s.publishBalance(ctx, updated)
	}
	s.publishPayout(ctx, payout)

	s.log.Info("withdrawal paid",
		zap.String("pubkey", pubkey),
		zap.Int64("amount", amount),
		zap.Int64("fee", policy.WithdrawalFee),
	)
	return payout, nil
}

// ReconcileWithdrawal resets a stuck withdrawal to failed and restores the
// debited funds. Admin-only; the reset itself additionally requires a
// uniquely generated external reference (enforced by the payout store).
func (s *RewardService) ReconcileWithdrawal(ctx context.Context, actor string, payoutID uuid.UUID) (*models.Payout, error) {
	ok, err := s.admins.IsAdmin(ctx, actor)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, models.ErrNotAuthorized
	}

	payout, err := s.payouts.ResetWithdrawal(ctx, payoutID)
	if err != nil {
		return nil, err
	}

	restore := payout.Amount + payout.FeeSats
	if err := s.balances.CreditBalance(ctx, payout.UserPubkey, restore); err != nil {
		return nil, fmt.Errorf("re-credit after reset: %w", err)
	}

	s.auditPayout(ctx, payout, &actor, "admin", "withdrawal_reset")
	balance, _ := s.balances.Get(ctx, payout.UserPubkey)
	if balance != nil {
		s.publishBalance(ctx, balance)
	}
	s.publishPayout(ctx, payout)

	s.log.Info("withdrawal reconciled",
		zap.String("payout_id", payoutID.String()),
		zap.Int64("restored", restore),
	)
	return payout, nil
}

func (s *RewardService) auditPayout(ctx context.Context, p *models.Payout, actor *string, actorType, action string) {
	id := p.ID.String()
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorPubkey: actor,
		ActorType:   actorType,
		Action:      action,
		EntityType:  "payout",
		EntityID:    &id,
		Meta: map[string]any{
			"user_pubkey": p.UserPubkey,
			"amount":      p.Amount,
			"game_type":   p.GameType,
			"status":      p.Status,
		},
	})
}

func (s *RewardService) auditLedger(ctx context.Context, pubkey, action string, meta map[string]any) {
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorPubkey: &pubkey,
		ActorType:   "system",
		Action:      action,
		EntityType:  "balance",
		EntityID:    &pubkey,
		Meta:        meta,
	})
}

func (s *RewardService) publishBalance(ctx context.Context, b *models.UserBalance) {
	_ = s.publisher.Publish(ctx, events.Stream, events.Event{
		Type:   events.EventBalanceChanged,
		Pubkey: b.Pubkey,
		Payload: map[string]any{
			"balance":         b.Balance,
			"pending_balance": b.PendingBalance,
			"total_earned":    b.TotalEarned,
			"total_withdrawn": b.TotalWithdrawn,
		},
	})
}

func (s *RewardService) publishPayout(ctx context.Context, p *models.Payout) {
	_ = s.publisher.Publish(ctx, events.Stream, events.Event{
		Type:   events.EventPayoutUpdated,
		Pubkey: p.UserPubkey,
		Payload: map[string]any{
			"payout_id": p.ID.String(),
			"status":    p.Status,
			"game_type": p.GameType,
			"amount":    p.Amount,
		},
	})
}
