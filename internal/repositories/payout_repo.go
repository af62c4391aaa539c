package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PayoutRepo owns the append-only payouts log. Status changes are guarded
// UPDATEs; a guard that matches nothing means the transition was illegal for
// the row's current state.
type PayoutRepo struct {
	pool *pgxpool.Pool
}

func NewPayoutRepo(pool *pgxpool.Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

const payoutColumns = `id, user_pubkey, amount, fee, game_type, status, external_ref, created_at, updated_at`

func scanPayout(row pgx.Row) (*models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.UserPubkey, &p.Amount, &p.FeeSats, &p.GameType, &p.Status, &p.ExternalRef, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PayoutRepo) Create(ctx context.Context, req models.PayoutRequest) (*models.Payout, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("payout amount must be positive, got %d", req.Amount)
	}
	if !models.IsValidGameType(req.GameType) {
		return nil, fmt.Errorf("invalid game type %q", req.GameType)
	}
	status := req.Status
	if status == "" {
		status = models.PayoutStatusPending
	}

	return scanPayout(r.pool.QueryRow(ctx, `
		INSERT INTO payouts (user_pubkey, amount, fee, game_type, status, external_ref)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+payoutColumns+`
	`, req.UserPubkey, req.Amount, req.FeeSats, req.GameType, status, req.ExternalRef))
}

func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	p, err := scanPayout(r.pool.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrPayoutNotFound
	}
	return p, err
}

// UpdateStatus performs pending->paid or pending->failed. The reconciliation
// reset (paid->failed) goes through ResetWithdrawal only.
func (r *PayoutRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string, externalRef *string) (*models.Payout, error) {
	if status != models.PayoutStatusPaid && status != models.PayoutStatusFailed {
		return nil, fmt.Errorf("%w: cannot move to %q here", models.ErrInvalidTransition, status)
	}

	p, err := scanPayout(r.pool.QueryRow(ctx, `
		UPDATE payouts SET
			status = $2,
			external_ref = COALESCE($3, external_ref),
			updated_at = now()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+payoutColumns+`
	`, id, status, externalRef))
	if errors.Is(err, pgx.ErrNoRows) {
		cur, gerr := r.GetByID(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, cur.Status, status)
	}
	return p, err
}

// ResetWithdrawal restores a stuck withdrawal to failed so the balance can be
// re-credited. Only withdrawals in pending/paid qualify, and only when their
// external reference was uniquely generated: a reference shared with any
// other payout could already have moved shared funds.
func (r *PayoutRepo) ResetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	p, err := scanPayout(tx.QueryRow(ctx, `
		SELECT `+payoutColumns+` FROM payouts WHERE id = $1 FOR UPDATE
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.GameType != models.GameTypeWithdrawal {
		return nil, fmt.Errorf("payout %s is not a withdrawal", id)
	}
	if p.Status != models.PayoutStatusPending && p.Status != models.PayoutStatusPaid {
		return nil, fmt.Errorf("%w: %s -> failed", models.ErrInvalidTransition, p.Status)
	}
	if p.ExternalRef == nil || *p.ExternalRef == "" {
		return nil, models.ErrSharedExternalRef
	}

	var refCount int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM payouts WHERE external_ref = $1
	`, *p.ExternalRef).Scan(&refCount); err != nil {
		return nil, err
	}
	if refCount > 1 {
		return nil, models.ErrSharedExternalRef
	}

	p, err = scanPayout(tx.QueryRow(ctx, `
		UPDATE payouts SET status = 'failed', updated_at = now()
		WHERE id = $1
		RETURNING `+payoutColumns+`
	`, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PayoutRepo) List(ctx context.Context, f models.PayoutFilter) ([]models.Payout, error) {
	query := `SELECT ` + payoutColumns + ` FROM payouts WHERE 1=1`
	args := []any{}
	idx := 1

	if f.UserPubkey != nil {
		query += ` AND user_pubkey = $` + strconv.Itoa(idx)
		args = append(args, *f.UserPubkey)
		idx++
	}
	if f.Status != nil {
		query += ` AND status = $` + strconv.Itoa(idx)
		args = append(args, *f.Status)
		idx++
	}
	if f.GameType != nil {
		query += ` AND game_type = $` + strconv.Itoa(idx)
		args = append(args, *f.GameType)
		idx++
	}
	if f.Since != nil {
		query += ` AND created_at >= $` + strconv.Itoa(idx)
		args = append(args, *f.Since)
		idx++
	}
	query += ` ORDER BY created_at DESC`
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += ` LIMIT ` + strconv.Itoa(limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payouts []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	return payouts, rows.Err()
}

// SumPaidSince sums the user's paid rewards (withdrawals excluded) since the
// given instant. Used for the per-user daily cap.
func (r *PayoutRepo) SumPaidSince(ctx context.Context, pubkey string, since time.Time) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payouts
		WHERE user_pubkey = $1 AND status = 'paid' AND game_type <> 'withdrawal' AND created_at >= $2
	`, pubkey, since).Scan(&sum)
	return sum, err
}

// SumAllPaidSince is the global-cap variant of SumPaidSince.
func (r *PayoutRepo) SumAllPaidSince(ctx context.Context, since time.Time) (int64, error) {
	var sum int64
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM payouts
		WHERE status = 'paid' AND game_type <> 'withdrawal' AND created_at >= $1
	`, since).Scan(&sum)
	return sum, err
}

// DeleteOlderThan prunes settled log entries past the retention window.
// Pending payouts are always preserved; they are still owed.
func (r *PayoutRepo) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM payouts
		WHERE created_at < $1 AND status <> 'pending'
	`, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
