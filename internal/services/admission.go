package services

import (
	"context"
	"fmt"
	"time"

	"github.com/islandbitcoin/rewards-backend/internal/models"
	"go.uber.org/zap"
)

// AdmissionControl enforces the daily payout caps. Caps count paid rewards
// only; pending payouts may still fail and withdrawals are not earnings.
type AdmissionControl struct {
	payouts PayoutStore
	policy  PolicyStore
	log     *zap.Logger

	// now is swappable for day-rollover tests.
	now func() time.Time
}

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func NewAdmissionControl(payouts PayoutStore, policy PolicyStore, log *zap.Logger) *AdmissionControl {
	return &AdmissionControl{
		payouts: payouts,
		policy:  policy,
		log:     log,
		now:     time.Now,
	}
}

// CanEarn reports whether the user may receive another reward today.
// Caps <= 0 are treated as disabled.
func (a *AdmissionControl) CanEarn(ctx context.Context, pubkey string) (Decision, error) {
	policy, err := a.policy.Load(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("load policy: %w", err)
	}

	dayStart := a.startOfUTCDay()

	if policy.MaxPayoutPerUser > 0 {
		userSum, err := a.payouts.SumPaidSince(ctx, pubkey, dayStart)
		if err != nil {
			return Decision{}, fmt.Errorf("sum user payouts: %w", err)
		}
		if userSum >= policy.MaxPayoutPerUser {
			return Decision{Allowed: false, Reason: models.ReasonUserDailyCapReached}, nil
		}
	}

	if policy.MaxDailyPayout > 0 {
		globalSum, err := a.payouts.SumAllPaidSince(ctx, dayStart)
		if err != nil {
			return Decision{}, fmt.Errorf("sum global payouts: %w", err)
		}
		if globalSum >= policy.MaxDailyPayout {
			return Decision{Allowed: false, Reason: models.ReasonGlobalDailyCapReached}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

func (a *AdmissionControl) startOfUTCDay() time.Time {
	now := a.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
