package repositories

import (
	"context"
	"fmt"

	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BalanceRepo owns the user_balances table. All mutations are single guarded
// statements so concurrent award/withdraw calls for the same user cannot lose
// updates; a guard that matches zero rows surfaces as ErrLedgerInvariant.
type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

const balanceColumns = `pubkey, balance, pending_balance, total_earned, total_withdrawn, last_activity, created_at`

// Get returns the user's ledger record, lazily creating a zeroed one.
func (r *BalanceRepo) Get(ctx context.Context, pubkey string) (*models.UserBalance, error) {
	var b models.UserBalance
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_balances (pubkey)
		VALUES ($1)
		ON CONFLICT (pubkey) DO UPDATE SET pubkey = EXCLUDED.pubkey
		RETURNING `+balanceColumns+`
	`, pubkey).Scan(
		&b.Pubkey, &b.Balance, &b.PendingBalance, &b.TotalEarned, &b.TotalWithdrawn, &b.LastActivity, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreditPending adds a not-yet-confirmed reward to pending_balance.
func (r *BalanceRepo) CreditPending(ctx context.Context, pubkey string, amount int64) (*models.UserBalance, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be positive", models.ErrLedgerInvariant)
	}
	var b models.UserBalance
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_balances (pubkey, pending_balance, last_activity)
		VALUES ($1, $2, now())
		ON CONFLICT (pubkey) DO UPDATE SET
			pending_balance = user_balances.pending_balance + EXCLUDED.pending_balance,
			last_activity = now()
		RETURNING `+balanceColumns+`
	`, pubkey, amount).Scan(
		&b.Pubkey, &b.Balance, &b.PendingBalance, &b.TotalEarned, &b.TotalWithdrawn, &b.LastActivity, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SettleCredit confirms a reward: the full amount lands in balance and
// total_earned, and whatever part of it was still sitting in pending_balance
// is moved out. A pending credit that was previously reverted settles the
// same way, straight into balance.
func (r *BalanceRepo) SettleCredit(ctx context.Context, pubkey string, amount int64) (*models.UserBalance, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: settle amount must be positive", models.ErrLedgerInvariant)
	}
	var b models.UserBalance
	err := r.pool.QueryRow(ctx, `
		UPDATE user_balances SET
			pending_balance = pending_balance - LEAST(pending_balance, $2),
			balance = balance + $2,
			total_earned = total_earned + $2,
			last_activity = now()
		WHERE pubkey = $1
		RETURNING `+balanceColumns+`
	`, pubkey, amount).Scan(
		&b.Pubkey, &b.Balance, &b.PendingBalance, &b.TotalEarned, &b.TotalWithdrawn, &b.LastActivity, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// RevertPending removes a previously credited pending amount, e.g. after the
// payout it funded failed. Over-reverting is an invariant violation.
func (r *BalanceRepo) RevertPending(ctx context.Context, pubkey string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: revert amount must be positive", models.ErrLedgerInvariant)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_balances SET
			pending_balance = pending_balance - $2,
			last_activity = now()
		WHERE pubkey = $1 AND pending_balance >= $2
	`, pubkey, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: pending balance below revert amount %d for %s", models.ErrLedgerInvariant, amount, pubkey)
	}
	return nil
}

// DebitForWithdrawal zeroes the withdrawable balance after a confirmed
// withdrawal. expected is the balance observed before the wallet RPC; the
// guard makes a concurrent mutation fail instead of over-debiting.
func (r *BalanceRepo) DebitForWithdrawal(ctx context.Context, pubkey string, expected int64) error {
	if expected <= 0 {
		return fmt.Errorf("%w: nothing to withdraw", models.ErrLedgerInvariant)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_balances SET
			balance = 0,
			total_withdrawn = total_withdrawn + $2,
			last_activity = now()
		WHERE pubkey = $1 AND balance = $2
	`, pubkey, expected)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: balance changed under withdrawal for %s", models.ErrLedgerInvariant, pubkey)
	}
	return nil
}

// CreditBalance restores withdrawable funds after a withdrawal is reset
// during reconciliation.
func (r *BalanceRepo) CreditBalance(ctx context.Context, pubkey string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit amount must be positive", models.ErrLedgerInvariant)
	}
	_, err := r.pool.Exec(ctx, `
		UPDATE user_balances SET
			balance = balance + $2,
			last_activity = now()
		WHERE pubkey = $1
	`, pubkey, amount)
	return err
}

// AuditRow is one user's ledger totals next to the payout-log replay sum.
type AuditRow struct {
	Pubkey      string
	TotalEarned int64
	ReplaySum   int64
}

// AuditTotals compares total_earned against the sum of paid non-withdrawal
// payouts, returning only users whose ledger drifted from the log.
func (r *BalanceRepo) AuditTotals(ctx context.Context) ([]AuditRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.pubkey, b.total_earned, COALESCE(p.sum, 0) AS replay_sum
		FROM user_balances b
		LEFT JOIN (
			SELECT user_pubkey, SUM(amount) AS sum
			FROM payouts
			WHERE status = 'paid' AND game_type <> 'withdrawal'
			GROUP BY user_pubkey
		) p ON p.user_pubkey = b.pubkey
		WHERE b.total_earned <> COALESCE(p.sum, 0)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drift []AuditRow
	for rows.Next() {
		var a AuditRow
		if err := rows.Scan(&a.Pubkey, &a.TotalEarned, &a.ReplaySum); err != nil {
			return nil, err
		}
		drift = append(drift, a)
	}
	return drift, rows.Err()
}
