package repositories

import (
	"context"
	"errors"

	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAdminSetNotEmpty is returned by Claim when the bootstrap window has
// already closed.
var ErrAdminSetNotEmpty = errors.New("admin set is not empty")

type AdminRepo struct {
	pool *pgxpool.Pool
}

func NewAdminRepo(pool *pgxpool.Pool) *AdminRepo {
	return &AdminRepo{pool: pool}
}

func (r *AdminRepo) IsAdmin(ctx context.Context, pubkey string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM admins WHERE pubkey = $1)
	`, pubkey).Scan(&exists)
	return exists, err
}

func (r *AdminRepo) Add(ctx context.Context, pubkey string, addedBy *string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admins (pubkey, added_by)
		VALUES ($1, $2)
		ON CONFLICT (pubkey) DO NOTHING
	`, pubkey, addedBy)
	return err
}

func (r *AdminRepo) Remove(ctx context.Context, pubkey string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM admins WHERE pubkey = $1`, pubkey)
	return err
}

func (r *AdminRepo) List(ctx context.Context) ([]models.Admin, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT pubkey, added_by, added_at FROM admins ORDER BY added_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var admins []models.Admin
	for rows.Next() {
		var a models.Admin
		if err := rows.Scan(&a.Pubkey, &a.AddedBy, &a.AddedAt); err != nil {
			return nil, err
		}
		admins = append(admins, a)
	}
	return admins, rows.Err()
}

// Claim seeds the admin set with the caller iff it is still empty.
// Trust-on-first-use: the single INSERT ... WHERE NOT EXISTS keeps two
// concurrent claimants from both winning.
func (r *AdminRepo) Claim(ctx context.Context, pubkey string) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO admins (pubkey)
		SELECT $1 WHERE NOT EXISTS (SELECT 1 FROM admins)
	`, pubkey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAdminSetNotEmpty
	}
	return nil
}
