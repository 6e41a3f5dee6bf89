package fairlaunch

import (
	"errors"
	"math"
	"testing"
)

func sealedState(bids uint64) *SaleState {
	return &SaleState{PhaseOneEnd: 2_000, BidsAccepted: bids, BitmapOnes: bids, LotterySealed: true}
}

func TestExpectedAllotment(t *testing.T) {
	got, err := ExpectedAllotment(2_000, 1_000_000)
	if err != nil || got != 800_000 {
		t.Fatalf("expected 800000, got %d %v", got, err)
	}
	got, err = ExpectedAllotment(0, math.MaxUint64)
	if err != nil || got != math.MaxUint64 {
		t.Fatalf("zero reserve keeps full snapshot, got %d %v", got, err)
	}
	if _, err := ExpectedAllotment(10_001, 1); !errors.Is(err, ErrInvalidReserveBP) {
		t.Fatalf("expected reserve error, got %v", err)
	}
}

func TestComputeWithdrawableAntiRugReserve(t *testing.T) {
	cfg := testConfig()
	cfg.AntiRug = &AntiRugSetting{ReserveBP: 2_000, TokenRequirement: 5, SelfDestructDate: 9_000}
	st := sealedState(10)

	amount, next, err := ComputeWithdrawable(cfg, st, WithdrawInput{Now: 3_000, TokenSupply: 10, TreasuryBalance: 1_000_000})
	if err != nil {
		t.Fatalf("withdrawable: %v", err)
	}
	if amount != 600_000 {
		t.Fatalf("expected 600000, got %d", amount)
	}
	if next.Snapshot == nil || *next.Snapshot != 1_000_000 || st.Snapshot != nil {
		t.Fatalf("snapshot must be taken on the returned state only")
	}

	if _, _, err := ComputeWithdrawable(cfg, next, WithdrawInput{Now: 3_001, TokenSupply: 10, TreasuryBalance: 400_000}); !errors.Is(err, ErrAlreadyWithdrawnAllotment) {
		t.Fatalf("expected already withdrawn, got %v", err)
	}

	// Once supply falls to the requirement the live balance applies.
	amount, again, err := ComputeWithdrawable(cfg, next, WithdrawInput{Now: 3_002, TokenSupply: 5, TreasuryBalance: 500})
	if err != nil || amount != 375 {
		t.Fatalf("expected 375, got %d %v", amount, err)
	}
	if *again.Snapshot != 1_000_000 {
		t.Fatalf("snapshot must be set once")
	}
}

func TestComputeWithdrawableWithoutAntiRug(t *testing.T) {
	cfg := testConfig()
	amount, _, err := ComputeWithdrawable(cfg, sealedState(1), WithdrawInput{Now: 3_000, TreasuryBalance: 400})
	if err != nil || amount != 300 {
		t.Fatalf("expected 300, got %d %v", amount, err)
	}
}

func TestComputeWithdrawableRequiresSettlement(t *testing.T) {
	cfg := testConfig()
	st := &SaleState{PhaseOneEnd: 2_000}
	if _, _, err := ComputeWithdrawable(cfg, st, WithdrawInput{Now: 2_500, TreasuryBalance: 400}); !errors.Is(err, ErrNotYetSettleable) {
		t.Fatalf("expected not settleable, got %v", err)
	}
}

func TestAntiRugRefundAmount(t *testing.T) {
	cfg := testConfig()
	if _, err := AntiRugRefundAmount(cfg, sealedState(4), 10_000); !errors.Is(err, ErrNoAntiRug) {
		t.Fatalf("expected no anti-rug, got %v", err)
	}
	cfg.AntiRug = &AntiRugSetting{ReserveBP: 2_000, TokenRequirement: 5, SelfDestructDate: 9_000}
	st := sealedState(4)
	if _, err := AntiRugRefundAmount(cfg, st, 8_999); !errors.Is(err, ErrSelfDestructNotPassed) {
		t.Fatalf("expected date error, got %v", err)
	}
	if _, err := AntiRugRefundAmount(cfg, st, 9_000); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected snapshot error, got %v", err)
	}
	snapshot := uint64(1_000_000)
	st.Snapshot = &snapshot
	if _, err := AntiRugRefundAmount(cfg, st, 9_000); !errors.Is(err, ErrNoWinnersProcessed) {
		t.Fatalf("expected no winners error, got %v", err)
	}
	st.WinnersProcessed = 3
	slice, err := AntiRugRefundAmount(cfg, st, 9_000)
	if err != nil || slice != 66_666 {
		t.Fatalf("expected 66666, got %d %v", slice, err)
	}
}
