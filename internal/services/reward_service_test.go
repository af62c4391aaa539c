package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/islandbitcoin/rewards-backend/internal/config"
	"github.com/islandbitcoin/rewards-backend/internal/models"
	"github.com/islandbitcoin/rewards-backend/internal/nwc"
	"go.uber.org/zap"
)

type testEnv struct {
	svc      *RewardService
	admins   *AdminService
	balances *memBalances
	payouts  *memPayouts
	policy   *memPolicy
	adminSet *memAdmins
	wallet   *fakeWalletClient
	audit    *memAudit
	bus      *memPublisher
}

func newTestEnv(t *testing.T, policy models.RewardPolicy) *testEnv {
	t.Helper()
	log := zap.NewNop()
	env := &testEnv{
		balances: newMemBalances(),
		payouts:  newMemPayouts(),
		policy:   &memPolicy{policy: policy},
		adminSet: newMemAdmins(),
		wallet:   &fakeWalletClient{connected: true},
		audit:    &memAudit{},
		bus:      &memPublisher{},
	}
	admission := NewAdmissionControl(env.payouts, env.policy, log)
	env.admins = NewAdminService(env.adminSet, env.policy, env.audit, &config.Config{}, log)
	env.svc = NewRewardService(
		env.balances, env.payouts, env.policy, admission,
		env.admins, env.wallet, env.audit, env.bus, log,
	)
	return env
}

func (e *testEnv) mustBalance(t *testing.T, pubkey string) *models.UserBalance {
	t.Helper()
	b, err := e.balances.Get(context.Background(), pubkey)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return b
}

// fund awards and settles a reward so the user has a spendable balance.
func (e *testEnv) fund(t *testing.T, pubkey string, amount int64) {
	t.Helper()
	ctx := context.Background()
	p, err := e.svc.Award(ctx, pubkey, amount, models.GameTypeTrivia)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if _, err := e.svc.SettlePayout(ctx, "op", p.ID, "lnbcfund"); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func TestAwardAndSettle(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{})
	ctx := context.Background()

	p, err := env.svc.Award(ctx, "alice", 100, models.GameTypeTrivia)
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	if p.Status != models.PayoutStatusPending {
		t.Fatalf("status = %q, want pending", p.Status)
	}

	b := env.mustBalance(t, "alice")
	if b.PendingBalance != 100 || b.Balance != 0 || b.TotalEarned != 0 {
		t.Fatalf("after award: pending=%d balance=%d earned=%d", b.PendingBalance, b.Balance, b.TotalEarned)
	}

	paid, err := env.svc.SettlePayout(ctx, "op", p.ID, "lnbc100")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if paid.Status != models.PayoutStatusPaid {
		t.Fatalf("status = %q, want paid", paid.Status)
	}
	if paid.ExternalRef == nil || *paid.ExternalRef == "" {
		t.Fatal("paid payout must carry the payment preimage")
	}

	b = env.mustBalance(t, "alice")
	if b.Balance != 100 || b.PendingBalance != 0 || b.TotalEarned != 100 {
		t.Fatalf("after settle: pending=%d balance=%d earned=%d", b.PendingBalance, b.Balance, b.TotalEarned)
	}
}

func TestSettle_WalletFailureRevertsPendingAndAllowsRetry(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{})
	ctx := context.Background()

	p, err := env.svc.Award(ctx, "alice", 100, models.GameTypeStacker)
	if err != nil {
		t.Fatalf("award: %v", err)
	}

	env.wallet.payErr = &nwc.WalletError{Code: "PAYMENT_FAILED", Message: "no route"}
	if _, err := env.svc.SettlePayout(ctx, "op", p.ID, "lnbc100"); err == nil {
		t.Fatal("expected settle failure")
	}

	got, err := env.payouts.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get payout: %v", err)
	}
	if got.Status != models.PayoutStatusPending {
		t.Fatalf("status after failure = %q, want pending", got.Status)
	}
	b := env.mustBalance(t, "alice")
	if b.PendingBalance != 0 || b.Balance != 0 {
		t.Fatalf("after failed settle: pending=%d balance=%d, want both 0", b.PendingBalance, b.Balance)
	}

	// The operator retries once the route exists. The earlier revert must not
	// block settlement.
	env.wallet.payErr = nil
	if _, err := env.svc.SettlePayout(ctx, "op", p.ID, "lnbc100"); err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	b = env.mustBalance(t, "alice")
	if b.Balance != 100 || b.PendingBalance != 0 || b.TotalEarned != 100 {
		t.Fatalf("after retry: pending=%d balance=%d earned=%d", b.PendingBalance, b.Balance, b.TotalEarned)
	}
}

func TestSettle_NotConnected(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{})
	ctx := context.Background()

	p, err := env.svc.Award(ctx, "alice", 50, models.GameTypeAchievement)
	if err != nil {
		t.Fatalf("award: %v", err)
	}

	env.wallet.connected = false
	_, err = env.svc.SettlePayout(ctx, "op", p.ID, "lnbc50")
	if !errors.Is(err, nwc.ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	// Balance state is untouched when no RPC was attempted.
	b := env.mustBalance(t, "alice")
	if b.PendingBalance != 50 {
		t.Fatalf("pending = %d, want 50", b.PendingBalance)
	}
}

func TestAward_DeniedByDailyCap(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{MaxPayoutPerUser: 100})
	ctx := context.Background()

	env.fund(t, "alice", 100)

	_, err := env.svc.Award(ctx, "alice", 10, models.GameTypeTrivia)
	var denied *models.AdmissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want AdmissionDeniedError", err)
	}
	if denied.Reason != models.ReasonUserDailyCapReached {
		t.Fatalf("reason = %q, want %q", denied.Reason, models.ReasonUserDailyCapReached)
	}

	// The denied attempt must not leave a payout row or a pending credit.
	list, err := env.payouts.List(ctx, models.PayoutFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("payout rows = %d, want 1", len(list))
	}
	b := env.mustBalance(t, "alice")
	if b.PendingBalance != 0 {
		t.Fatalf("pending = %d, want 0", b.PendingBalance)
	}
}

func TestAward_RejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{})
	ctx := context.Background()

	if _, err := env.svc.Award(ctx, "alice", 0, models.GameTypeTrivia); err == nil {
		t.Fatal("zero amount must be rejected")
	}
	if _, err := env.svc.Award(ctx, "alice", -5, models.GameTypeTrivia); err == nil {
		t.Fatal("negative amount must be rejected")
	}
	if _, err := env.svc.Award(ctx, "alice", 10, "poker"); err == nil {
		t.Fatal("unknown game type must be rejected")
	}
	if _, err := env.svc.Award(ctx, "alice", 10, models.GameTypeWithdrawal); err == nil {
		t.Fatal("withdrawal is not an awardable game type")
	}
}

func TestFailPayout(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{})
	ctx := context.Background()

	p, err := env.svc.Award(ctx, "alice", 40, models.GameTypeReferral)
	if err != nil {
		t.Fatalf("award: %v", err)
	}

	failed, err := env.svc.FailPayout(ctx, "op", p.ID)
	if err != nil {
		t.Fatalf("fail payout: %v", err)
	}
	if failed.Status != models.PayoutStatusFailed {
		t.Fatalf("status = %q, want failed", failed.Status)
	}
	b := env.mustBalance(t, "alice")
	if b.PendingBalance != 0 || b.Balance != 0 || b.TotalEarned != 0 {
		t.Fatalf("failed payout must credit nothing: pending=%d balance=%d earned=%d", b.PendingBalance, b.Balance, b.TotalEarned)
	}

	// failed is terminal
	if _, err := env.svc.FailPayout(ctx, "op", p.ID); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestWithdraw(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{MinWithdrawal: 100, WithdrawalFee: 10})
	ctx := context.Background()

	env.fund(t, "alice", 500)

	p, err := env.svc.Withdraw(ctx, "alice", "lnbcwithdraw")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if p.GameType != models.GameTypeWithdrawal || p.Status != models.PayoutStatusPaid {
		t.Fatalf("payout = %s/%s, want withdrawal/paid", p.GameType, p.Status)
	}
	if p.Amount != 490 || p.FeeSats != 10 {
		t.Fatalf("amount=%d fee=%d, want 490/10", p.Amount, p.FeeSats)
	}
	if p.ExternalRef == nil || *p.ExternalRef == "" {
		t.Fatal("withdrawal must record the preimage")
	}

	b := env.mustBalance(t, "alice")
	if b.Balance != 0 {
		t.Fatalf("balance = %d, want 0 after full withdrawal", b.Balance)
	}
	if b.TotalWithdrawn != 500 {
		t.Fatalf("total_withdrawn = %d, want 500", b.TotalWithdrawn)
	}
	// Withdrawals never count as earnings.
	if b.TotalEarned != 500 {
		t.Fatalf("total_earned = %d, want unchanged 500", b.TotalEarned)
	}
}

func TestWithdraw_BelowMinimumSkipsWallet(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{MinWithdrawal: 1000})
	ctx := context.Background()

	env.fund(t, "alice", 500)
	env.wallet.payCalls = 0

	_, err := env.svc.Withdraw(ctx, "alice", "lnbcwithdraw")
	if !errors.Is(err, ErrBelowMinWithdrawal) {
		t.Fatalf("err = %v, want ErrBelowMinWithdrawal", err)
	}
	if env.wallet.payCalls != 0 {
		t.Fatalf("wallet RPCs = %d, want 0 before the threshold check", env.wallet.payCalls)
	}
	if b := env.mustBalance(t, "alice"); b.Balance != 500 {
		t.Fatalf("balance = %d, want untouched 500", b.Balance)
	}
}

func TestWithdraw_WalletFailureLeavesBalance(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{MinWithdrawal: 100})
	ctx := context.Background()

	env.fund(t, "alice", 300)
	env.wallet.payErr = &nwc.WalletError{Code: "INSUFFICIENT_BALANCE", Message: "wallet empty"}

	_, err := env.svc.Withdraw(ctx, "alice", "lnbcwithdraw")
	if err == nil {
		t.Fatal("expected withdrawal failure")
	}
	var werr *nwc.WalletError
	if !errors.As(err, &werr) || werr.Code != "INSUFFICIENT_BALANCE" {
		t.Fatalf("err = %v, want wrapped wallet error", err)
	}

	if b := env.mustBalance(t, "alice"); b.Balance != 300 {
		t.Fatalf("balance = %d, want untouched 300", b.Balance)
	}

	// The attempt is still visible in the payout log as failed.
	status := models.PayoutStatusFailed
	game := models.GameTypeWithdrawal
	list, err := env.payouts.List(ctx, models.PayoutFilter{Status: &status, GameType: &game})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("failed withdrawal rows = %d, want 1", len(list))
	}
}

func TestReconcileWithdrawal(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{MinWithdrawal: 100, WithdrawalFee: 10})
	ctx := context.Background()

	if err := env.admins.Claim(ctx, "admin"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	env.fund(t, "alice", 500)
	p, err := env.svc.Withdraw(ctx, "alice", "lnbcwithdraw")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	// Only admins may reset.
	if _, err := env.svc.ReconcileWithdrawal(ctx, "alice", p.ID); !errors.Is(err, models.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}

	reset, err := env.svc.ReconcileWithdrawal(ctx, "admin", p.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if reset.Status != models.PayoutStatusFailed {
		t.Fatalf("status = %q, want failed", reset.Status)
	}
	// Amount plus fee come back; the user lost nothing.
	if b := env.mustBalance(t, "alice"); b.Balance != 500 {
		t.Fatalf("balance = %d, want restored 500", b.Balance)
	}

	// failed is terminal, a second reset must not double-credit.
	if _, err := env.svc.ReconcileWithdrawal(ctx, "admin", p.ID); err == nil {
		t.Fatal("second reset must fail")
	}
	if b := env.mustBalance(t, "alice"); b.Balance != 500 {
		t.Fatalf("balance = %d after second reset attempt, want 500", b.Balance)
	}
}

func TestReconcileWithdrawal_SharedExternalRef(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{MinWithdrawal: 100})
	ctx := context.Background()

	if err := env.admins.Claim(ctx, "admin"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	env.wallet.preimage = "shared-preimage"
	env.fund(t, "alice", 200)
	p1, err := env.svc.Withdraw(ctx, "alice", "lnbc1")
	if err != nil {
		t.Fatalf("withdraw 1: %v", err)
	}
	env.fund(t, "bob", 200)
	if _, err := env.svc.Withdraw(ctx, "bob", "lnbc2"); err != nil {
		t.Fatalf("withdraw 2: %v", err)
	}

	_, err = env.svc.ReconcileWithdrawal(ctx, "admin", p1.ID)
	if !errors.Is(err, models.ErrSharedExternalRef) {
		t.Fatalf("err = %v, want ErrSharedExternalRef", err)
	}
	// No re-credit happened.
	if b := env.mustBalance(t, "alice"); b.Balance != 0 {
		t.Fatalf("balance = %d, want 0", b.Balance)
	}
}

func TestAdminClaim(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{})
	ctx := context.Background()

	if err := env.admins.Claim(ctx, "first"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// Claiming again with the same key is a no-op.
	if err := env.admins.Claim(ctx, "first"); err != nil {
		t.Fatalf("repeat claim by the admin: %v", err)
	}
	// Anyone else is locked out once the set is non-empty.
	if err := env.admins.Claim(ctx, "second"); !errors.Is(err, models.ErrNotAuthorized) {
		t.Fatalf("err = %v, want ErrNotAuthorized", err)
	}

	ok, err := env.admins.IsAdmin(ctx, "first")
	if err != nil || !ok {
		t.Fatalf("IsAdmin(first) = %v, %v", ok, err)
	}
}

func TestWithdraw_DebitConflictSurfaces(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{MinWithdrawal: 100})
	ctx := context.Background()

	env.fund(t, "alice", 300)

	// Simulate a concurrent credit between the balance read and the debit.
	read, _ := env.balances.Get(ctx, "alice")
	if err := env.balances.CreditBalance(ctx, "alice", 50); err != nil {
		t.Fatalf("credit: %v", err)
	}
	err := env.balances.DebitForWithdrawal(ctx, "alice", read.Balance)
	if !errors.Is(err, models.ErrLedgerInvariant) {
		t.Fatalf("err = %v, want ErrLedgerInvariant", err)
	}
	if b := env.mustBalance(t, "alice"); b.Balance != 350 {
		t.Fatalf("balance = %d, want 350 after refused debit", b.Balance)
	}
}

func TestBalanceTracksActivity(t *testing.T) {
	env := newTestEnv(t, models.RewardPolicy{})
	ctx := context.Background()

	before := time.Now()
	if _, err := env.svc.Award(ctx, "alice", 10, models.GameTypeTrivia); err != nil {
		t.Fatalf("award: %v", err)
	}
	b := env.mustBalance(t, "alice")
	if b.LastActivity.Before(before.Add(-time.Second)) {
		t.Fatalf("last_activity %v not updated", b.LastActivity)
	}
}
