package repositories

import (
	"context"

	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PolicyRepo persists the single reward policy row. It is the storage side
// of the loadPolicy/savePolicy boundary; transport and caching live outside
// this module.
type PolicyRepo struct {
	pool *pgxpool.Pool
}

func NewPolicyRepo(pool *pgxpool.Pool) *PolicyRepo {
	return &PolicyRepo{pool: pool}
}

const policyColumns = `max_daily_payout, max_payout_per_user, min_withdrawal, withdrawal_fee, updated_at, updated_by`

func (r *PolicyRepo) Load(ctx context.Context) (*models.RewardPolicy, error) {
	var p models.RewardPolicy
	err := r.pool.QueryRow(ctx, `
		SELECT `+policyColumns+` FROM reward_policy WHERE id = 1
	`).Scan(&p.MaxDailyPayout, &p.MaxPayoutPerUser, &p.MinWithdrawal, &p.WithdrawalFee, &p.UpdatedAt, &p.UpdatedBy)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Seed inserts the bootstrap policy row if none exists yet.
func (r *PolicyRepo) Seed(ctx context.Context, defaults models.RewardPolicy) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reward_policy (id, max_daily_payout, max_payout_per_user, min_withdrawal, withdrawal_fee)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, defaults.MaxDailyPayout, defaults.MaxPayoutPerUser, defaults.MinWithdrawal, defaults.WithdrawalFee)
	return err
}

// Save applies a partial update; nil patch fields keep their current value.
func (r *PolicyRepo) Save(ctx context.Context, patch models.PolicyPatch, updatedBy string) (*models.RewardPolicy, error) {
	var p models.RewardPolicy
	err := r.pool.QueryRow(ctx, `
		UPDATE reward_policy SET
			max_daily_payout = COALESCE($1, max_daily_payout),
			max_payout_per_user = COALESCE($2, max_payout_per_user),
			min_withdrawal = COALESCE($3, min_withdrawal),
			withdrawal_fee = COALESCE($4, withdrawal_fee),
			updated_at = now(),
			updated_by = $5
		WHERE id = 1
		RETURNING `+policyColumns+`
	`, patch.MaxDailyPayout, patch.MaxPayoutPerUser, patch.MinWithdrawal, patch.WithdrawalFee, updatedBy).Scan(
		&p.MaxDailyPayout, &p.MaxPayoutPerUser, &p.MinWithdrawal, &p.WithdrawalFee, &p.UpdatedAt, &p.UpdatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
