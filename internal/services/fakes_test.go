package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/islandbitcoin/rewards-backend/internal/events"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
	"github.com/islandbitcoin/rewards-backend/internal/repositories"
)

// In-memory stores implementing the same contracts as the pgx repositories.

type memBalances struct {
	mu   sync.Mutex
	rows map[string]*models.UserBalance
}

func newMemBalances() *memBalances {
	return &memBalances{rows: make(map[string]*models.UserBalance)}
}

func (m *memBalances) get(pubkey string) *models.UserBalance {
	if b, ok := m.rows[pubkey]; ok {
		return b
	}
	b := &models.UserBalance{Pubkey: pubkey, LastActivity: time.Now(), CreatedAt: time.Now()}
	m.rows[pubkey] = b
	return b
}

func (m *memBalances) Get(ctx context.Context, pubkey string) (*models.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := *m.get(pubkey)
	return &b, nil
}

func (m *memBalances) CreditPending(ctx context.Context, pubkey string, amount int64) (*models.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.get(pubkey)
	b.PendingBalance += amount
	b.LastActivity = time.Now()
	out := *b
	return &out, nil
}

func (m *memBalances) SettleCredit(ctx context.Context, pubkey string, amount int64) (*models.UserBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.get(pubkey)
	moved := b.PendingBalance
	if moved > amount {
		moved = amount
	}
	b.PendingBalance -= moved
	b.Balance += amount
	b.TotalEarned += amount
	out := *b
	return &out, nil
}

func (m *memBalances) RevertPending(ctx context.Context, pubkey string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.get(pubkey)
	if b.PendingBalance < amount {
		return fmt.Errorf("%w: pending below revert", models.ErrLedgerInvariant)
	}
	b.PendingBalance -= amount
	return nil
}

func (m *memBalances) DebitForWithdrawal(ctx context.Context, pubkey string, expected int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.get(pubkey)
	if b.Balance != expected {
		return fmt.Errorf("%w: balance changed", models.ErrLedgerInvariant)
	}
	b.Balance = 0
	b.TotalWithdrawn += expected
	return nil
}

func (m *memBalances) CreditBalance(ctx context.Context, pubkey string, amount int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.get(pubkey)
	b.Balance += amount
	return nil
}

type memPayouts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Payout
}

func newMemPayouts() *memPayouts {
	return &memPayouts{rows: make(map[uuid.UUID]*models.Payout)}
}

func (m *memPayouts) Create(ctx context.Context, req models.PayoutRequest) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := req.Status
	if status == "" {
		status = models.PayoutStatusPending
	}
	p := &models.Payout{
		ID:          uuid.New(),
		UserPubkey:  req.UserPubkey,
		Amount:      req.Amount,
		FeeSats:     req.FeeSats,
		GameType:    req.GameType,
		Status:      status,
		ExternalRef: req.ExternalRef,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	m.rows[p.ID] = p
	out := *p
	return &out, nil
}

func (m *memPayouts) GetByID(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, models.ErrPayoutNotFound
	}
	out := *p
	return &out, nil
}

func (m *memPayouts) UpdateStatus(ctx context.Context, id uuid.UUID, status string, externalRef *string) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, models.ErrPayoutNotFound
	}
	if p.Status != models.PayoutStatusPending {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, p.Status, status)
	}
	p.Status = status
	if externalRef != nil {
		p.ExternalRef = externalRef
	}
	p.UpdatedAt = time.Now()
	out := *p
	return &out, nil
}

func (m *memPayouts) ResetWithdrawal(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, models.ErrPayoutNotFound
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
	refCount := 0
	for _, other := range m.rows {
		if other.ExternalRef != nil && *other.ExternalRef == *p.ExternalRef {
			refCount++
		}
	}
	if refCount > 1 {
		return nil, models.ErrSharedExternalRef
	}
	p.Status = models.PayoutStatusFailed
	p.UpdatedAt = time.Now()
	out := *p
	return &out, nil
}

func (m *memPayouts) List(ctx context.Context, f models.PayoutFilter) ([]models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payout
	for _, p := range m.rows {
		if f.UserPubkey != nil && p.UserPubkey != *f.UserPubkey {
			continue
		}
		if f.Status != nil && p.Status != *f.Status {
			continue
		}
		if f.GameType != nil && p.GameType != *f.GameType {
			continue
		}
		if f.Since != nil && p.CreatedAt.Before(*f.Since) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *memPayouts) SumPaidSince(ctx context.Context, pubkey string, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, p := range m.rows {
		if p.UserPubkey == pubkey && p.Status == models.PayoutStatusPaid &&
			p.GameType != models.GameTypeWithdrawal && !p.CreatedAt.Before(since) {
			sum += p.Amount
		}
	}
	return sum, nil
}

func (m *memPayouts) SumAllPaidSince(ctx context.Context, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, p := range m.rows {
		if p.Status == models.PayoutStatusPaid && p.GameType != models.GameTypeWithdrawal && !p.CreatedAt.Before(since) {
			sum += p.Amount
		}
	}
	return sum, nil
}

// setCreatedAt backdates a payout for day-rollover tests.
func (m *memPayouts) setCreatedAt(id uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.rows[id]; ok {
		p.CreatedAt = at
	}
}

type memPolicy struct {
	mu     sync.Mutex
	policy models.RewardPolicy
}

func (m *memPolicy) Load(ctx context.Context) (*models.RewardPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.policy
	return &p, nil
}

func (m *memPolicy) Save(ctx context.Context, patch models.PolicyPatch, updatedBy string) (*models.RewardPolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if patch.MaxDailyPayout != nil {
		m.policy.MaxDailyPayout = *patch.MaxDailyPayout
	}
	if patch.MaxPayoutPerUser != nil {
		m.policy.MaxPayoutPerUser = *patch.MaxPayoutPerUser
	}
	if patch.MinWithdrawal != nil {
		m.policy.MinWithdrawal = *patch.MinWithdrawal
	}
	if patch.WithdrawalFee != nil {
		m.policy.WithdrawalFee = *patch.WithdrawalFee
	}
	m.policy.UpdatedAt = time.Now()
	m.policy.UpdatedBy = &updatedBy
	p := m.policy
	return &p, nil
}

type memAdmins struct {
	mu  sync.Mutex
	set map[string]models.Admin
}

func newMemAdmins() *memAdmins {
	return &memAdmins{set: make(map[string]models.Admin)}
}

func (m *memAdmins) IsAdmin(ctx context.Context, pubkey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.set[pubkey]
	return ok, nil
}

func (m *memAdmins) Add(ctx context.Context, pubkey string, addedBy *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set[pubkey] = models.Admin{Pubkey: pubkey, AddedBy: addedBy, AddedAt: time.Now()}
	return nil
}

func (m *memAdmins) Remove(ctx context.Context, pubkey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.set, pubkey)
	return nil
}

func (m *memAdmins) List(ctx context.Context) ([]models.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Admin
	for _, a := range m.set {
		out = append(out, a)
	}
	return out, nil
}

func (m *memAdmins) Claim(ctx context.Context, pubkey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.set) > 0 {
		return repositories.ErrAdminSetNotEmpty
	}
	m.set[pubkey] = models.Admin{Pubkey: pubkey, AddedAt: time.Now()}
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *memAudit) Log(ctx context.Context, entry models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) GetByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (m *memPublisher) Publish(ctx context.Context, stream string, event events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// fakeWalletClient is a deterministic WalletClient.
type fakeWalletClient struct {
	mu        sync.Mutex
	connected bool
	payErr    error
	preimage  string
	payCalls  int
	balance   int64
}

func (f *fakeWalletClient) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeWalletClient) Connect(ctx context.Context, uri string) (*nwc.WalletInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return &nwc.WalletInfo{Methods: []string{nwc.MethodPayInvoice, nwc.MethodGetBalance}}, nil
}

func (f *fakeWalletClient) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeWalletClient) Connection() *nwc.StoredConnection {
	return &nwc.StoredConnection{WalletPubkey: "fake", RelayURL: "wss://relay.test"}
}

func (f *fakeWalletClient) PayInvoice(ctx context.Context, invoice string, amountMsat *int64) (*nwc.PayInvoiceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payCalls++
	if !f.connected {
		return nil, nwc.ErrNotConnected
	}
	if f.payErr != nil {
		return nil, f.payErr
	}
	preimage := f.preimage
	if preimage == "" {
		preimage = "preimage-" + uuid.NewString()
	}
	return &nwc.PayInvoiceResult{Preimage: preimage, FeesPaidMsat: 1000}, nil
}

func (f *fakeWalletClient) MakeInvoice(ctx context.Context, amountMsat int64, description string) (*nwc.MakeInvoiceResult, error) {
	return &nwc.MakeInvoiceResult{Invoice: "lnbcfake", PaymentHash: "hash"}, nil
}

func (f *fakeWalletClient) GetBalance(ctx context.Context) (*nwc.BalanceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return nil, nwc.ErrNotConnected
	}
	return &nwc.BalanceResult{BalanceMsat: f.balance}, nil
}

func (f *fakeWalletClient) ListTransactions(ctx context.Context, limit int) ([]nwc.Transaction, error) {
	return nil, nil
}
