package repositories

import (
	"context"
	"errors"

	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoWalletConnection is returned when no active connection is stored.
var ErrNoWalletConnection = errors.New("no active wallet connection")

// WalletRepo persists wallet connection metadata. It implements
// nwc.ConnectionStore; the secret is never written here.
type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

var _ nwc.ConnectionStore = (*WalletRepo)(nil)

func (r *WalletRepo) SaveConnection(ctx context.Context, rec *nwc.StoredConnection) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Previous connections are closed out, not deleted, so the audit trail
	// keeps which wallet was funding what when.
	if _, err := tx.Exec(ctx, `
		UPDATE wallet_connections SET is_active = false, disconnected_at = now()
		WHERE is_active = true
	`); err != nil {
		return err
	}

	var lud16 *string
	if rec.LUD16 != "" {
		lud16 = &rec.LUD16
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO wallet_connections (wallet_pubkey, relay_url, lud16, methods, is_active)
		VALUES ($1, $2, $3, $4, true)
	`, rec.WalletPubkey, rec.RelayURL, lud16, rec.Methods); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *WalletRepo) LoadConnection(ctx context.Context) (*nwc.StoredConnection, error) {
	var (
		rec   nwc.StoredConnection
		lud16 *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT wallet_pubkey, relay_url, lud16, methods, connected_at
		FROM wallet_connections
		WHERE is_active = true
		ORDER BY connected_at DESC LIMIT 1
	`).Scan(&rec.WalletPubkey, &rec.RelayURL, &lud16, &rec.Methods, &rec.ConnectedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoWalletConnection
	}
	if err != nil {
		return nil, err
	}
	if lud16 != nil {
		rec.LUD16 = *lud16
	}
	return &rec, nil
}

func (r *WalletRepo) DeleteConnection(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE wallet_connections SET is_active = false, disconnected_at = now()
		WHERE is_active = true
	`)
	return err
}

// History lists past connections for the admin surface.
func (r *WalletRepo) History(ctx context.Context, limit int) ([]models.WalletConnectionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet_pubkey, relay_url, lud16, methods, connected_at, disconnected_at, is_active
		FROM wallet_connections
		ORDER BY connected_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []models.WalletConnectionRecord
	for rows.Next() {
		var w models.WalletConnectionRecord
		if err := rows.Scan(&w.ID, &w.WalletPubkey, &w.RelayURL, &w.LUD16, &w.Methods, &w.ConnectedAt, &w.DisconnectedAt, &w.IsActive); err != nil {
			return nil, err
		}
		recs = append(recs, w)
	}
	return recs, rows.Err()
}
