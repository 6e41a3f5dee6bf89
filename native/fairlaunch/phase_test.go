package fairlaunch

import (
	"errors"
	"math"
	"testing"
)

func TestNewSaleStateAddsGrace(t *testing.T) {
	cfg := testConfig()
	st, err := NewSaleState(cfg)
	if err != nil {
		t.Fatalf("new state: %v", err)
	}
	if st.PhaseOneEnd != 2_000+6*60 {
		t.Fatalf("unexpected phase one end %d", st.PhaseOneEnd)
	}
	cfg.PhaseOneEnd = math.MaxInt64 - 10
	if _, err := NewSaleState(cfg); !errors.Is(err, ErrNumericalOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestCurrentPhaseBoundaries(t *testing.T) {
	cfg := testConfig()
	st := &SaleState{PhaseOneEnd: 2_000}
	if p := CurrentPhase(cfg, st, 2_000); p != PhaseBidding {
		t.Fatalf("deadline second is still bidding, got %s", p)
	}
	if p := CurrentPhase(cfg, st, 2_001); p != PhaseLotterySealing {
		t.Fatalf("expected lottery sealing, got %s", p)
	}
	st.LotterySealed = true
	if p := CurrentPhase(cfg, st, 0); p != PhaseSettlement {
		t.Fatalf("sealed sale is in settlement, got %s", p)
	}
}

func TestTimeUntilPhaseChange(t *testing.T) {
	cfg := testConfig()
	st := &SaleState{PhaseOneEnd: 2_000}
	if left, ok := TimeUntilPhaseChange(cfg, st, 1_990); !ok || left != 11 {
		t.Fatalf("unexpected remaining %d %v", left, ok)
	}
	if _, ok := TimeUntilPhaseChange(cfg, st, 2_001); ok {
		t.Fatalf("lottery sealing has no timed transition")
	}
}

func TestExtendDeadline(t *testing.T) {
	cfg := testConfig()
	end, extended, err := extendDeadline(cfg, 2_000, 1_940)
	if err != nil || extended || end != 2_000 {
		t.Fatalf("bid exactly one duration out must not extend: %d %v %v", end, extended, err)
	}
	end, extended, err = extendDeadline(cfg, 2_000, 1_941)
	if err != nil || !extended || end != 2_001 {
		t.Fatalf("expected extension to 2001, got %d %v %v", end, extended, err)
	}
	end, extended, err = extendDeadline(cfg, 2_000, 2_000)
	if err != nil || !extended || end != 2_060 {
		t.Fatalf("expected extension to 2060, got %d %v %v", end, extended, err)
	}
}

func TestRestartPhaseTwo(t *testing.T) {
	cfg := testConfig()
	st := &SaleState{PhaseOneEnd: 2_000, Last: 500}

	if _, err := RestartPhaseTwo(cfg, st, 1_999); !errors.Is(err, ErrRestartNotAllowed) {
		t.Fatalf("bidding sale cannot restart, got %v", err)
	}
	if _, err := RestartPhaseTwo(cfg, st, 2_060); !errors.Is(err, ErrRestartNotAllowed) {
		t.Fatalf("lottery window still open, got %v", err)
	}
	next, err := RestartPhaseTwo(cfg, st, 2_061)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if next.PhaseOneEnd != 2_121 || next.PhaseOneRestarted != 1 {
		t.Fatalf("unexpected restart state %+v", next)
	}
	if st.PhaseOneEnd != 2_000 || st.PhaseOneRestarted != 0 {
		t.Fatalf("input state mutated")
	}

	capped := st.Clone()
	capped.Last = cfg.PriceRangeEnd
	if _, err := RestartPhaseTwo(cfg, capped, 2_061); !errors.Is(err, ErrRestartNotAllowed) {
		t.Fatalf("capped price cannot restart, got %v", err)
	}
	sealed := st.Clone()
	sealed.LotterySealed = true
	if _, err := RestartPhaseTwo(cfg, sealed, 2_061); !errors.Is(err, ErrAlreadySealed) {
		t.Fatalf("sealed sale cannot restart, got %v", err)
	}
}
