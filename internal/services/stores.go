package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
)

// Store interfaces consumed by the services. The pgx repositories satisfy
// them; tests plug in in-memory fakes.

type BalanceStore interface {
	Get(ctx context.Context, pubkey string) (*models.UserBalance, error)
	CreditPending(ctx context.Context, pubkey string, amount int64) (*models.UserBalance, error)
	SettleCredit(ctx context.Context, pubkey string, amount int64) (*models.UserBalance, error)
	RevertPending(ctx context.Context, pubkey string, amount int64) error
	DebitForWithdrawal(ctx context.Context, pubkey string, expected int64) error
	CreditBalance(ctx context.Context, pubkey string, amount int64) error
}

type PayoutStore interface {
	Create(ctx context.Context, req models.PayoutRequest) (*models.Payout, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, externalRef *string) (*models.Payout, error)
	ResetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	List(ctx context.Context, f models.PayoutFilter) ([]models.Payout, error)
	SumPaidSince(ctx context.Context, pubkey string, since time.Time) (int64, error)
	SumAllPaidSince(ctx context.Context, since time.Time) (int64, error)
}

type PolicyStore interface {
	Load(ctx context.Context) (*models.RewardPolicy, error)
	Save(ctx context.Context, patch models.PolicyPatch, updatedBy string) (*models.RewardPolicy, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, pubkey string) (bool, error)
	Add(ctx context.Context, pubkey string, addedBy *string) error
	Remove(ctx context.Context, pubkey string) error
	List(ctx context.Context) ([]models.Admin, error)
	Claim(ctx context.Context, pubkey string) error
}

type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// AuditStore additionally exposes the trail for the admin API.
type AuditStore interface {
	AuditLogger
	GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error)
}

// WalletClient is the wallet RPC surface the services need; *nwc.Client
// implements it.
type WalletClient interface {
	Connected() bool
	Connect(ctx context.Context, uri string) (*nwc.WalletInfo, error)
	Disconnect(ctx context.Context) error
	Connection() *nwc.StoredConnection
	PayInvoice(ctx context.Context, invoice string, amountMsat *int64) (*nwc.PayInvoiceResult, error)
	MakeInvoice(ctx context.Context, amountMsat int64, description string) (*nwc.MakeInvoiceResult, error)
	GetBalance(ctx context.Context) (*nwc.BalanceResult, error)
	ListTransactions(ctx context.Context, limit int) ([]nwc.Transaction, error)
}
