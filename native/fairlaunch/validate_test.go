package fairlaunch

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var testAuthority = common.HexToAddress("0x00000000000000000000000000000000000000a1")

func testConfig() *SaleConfig {
	return &SaleConfig{
		Code:            "LAUNCH",
		Authority:       testAuthority,
		TokenMint:       "LNCH",
		PriceRangeStart: 100,
		PriceRangeEnd:   1_100,
		TickSize:        10,
		TokenSupply:     10,
		PhaseOneStart:   1_000,
		PhaseOneEnd:     2_000,
		PhaseTwoEnd:     3_000,
		LotteryDuration: 60,
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if err := Validate(testConfig()); err != nil {
		t.Fatalf("validate: %v", err)
	}
	cfg := testConfig()
	cfg.AntiRug = &AntiRugSetting{ReserveBP: 10_000, TokenRequirement: cfg.TokenSupply, SelfDestructDate: 5_000}
	if err := Validate(cfg); err != nil {
		t.Fatalf("validate with anti-rug at bounds: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SaleConfig)
		want   error
	}{
		{"phase one inverted", func(c *SaleConfig) { c.PhaseOneEnd = c.PhaseOneStart }, ErrTimestampsOutOfOrder},
		{"phase two before one", func(c *SaleConfig) { c.PhaseTwoEnd = c.PhaseOneEnd - 1 }, ErrTimestampsOutOfOrder},
		{"short code", func(c *SaleConfig) { c.Code = "ABC" }, ErrInvalidCode},
		{"long code", func(c *SaleConfig) { c.Code = "ABCDEFG" }, ErrInvalidCode},
		{"zero tick", func(c *SaleConfig) { c.TickSize = 0 }, ErrTickSizeZero},
		{"zero supply", func(c *SaleConfig) { c.TokenSupply = 0 }, ErrZeroTokenSupply},
		{"inverted range", func(c *SaleConfig) { c.PriceRangeEnd = c.PriceRangeStart }, ErrInvalidPriceRange},
		{"tick remainder", func(c *SaleConfig) { c.TickSize = 3 }, ErrTickRemainder},
		{"granularity", func(c *SaleConfig) { c.TickSize = 5 }, ErrTooMuchGranularity},
		{"negative lottery", func(c *SaleConfig) { c.LotteryDuration = -1 }, ErrInvalidLotteryDuration},
		{"reserve bp", func(c *SaleConfig) { c.AntiRug = &AntiRugSetting{ReserveBP: 10_001} }, ErrInvalidReserveBP},
		{"requirement", func(c *SaleConfig) { c.AntiRug = &AntiRugSetting{TokenRequirement: 11} }, ErrInvalidTokenRequirement},
		{"no authority", func(c *SaleConfig) { c.Authority = common.Address{} }, ErrMissingAuthority},
		{"no mint", func(c *SaleConfig) { c.TokenMint = "  " }, ErrMissingAuthority},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(cfg)
			if err := Validate(cfg); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateReportsFirstViolation(t *testing.T) {
	cfg := testConfig()
	cfg.Code = "X"
	cfg.TickSize = 0
	cfg.PhaseTwoEnd = 0
	if err := Validate(cfg); !errors.Is(err, ErrTimestampsOutOfOrder) {
		t.Fatalf("expected timestamp error first, got %v", err)
	}
	cfg.PhaseTwoEnd = 3_000
	if err := Validate(cfg); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected code error next, got %v", err)
	}
	if KindOf(Validate(cfg)) != KindConfig {
		t.Fatalf("expected config kind")
	}
}

func TestErrorCodes(t *testing.T) {
	if !errors.Is(ErrWithdrawOverflow, ErrNumericalOverflow) {
		t.Fatalf("overflow variants should compare equal")
	}
	if ErrWithdrawOverflow.Kind != KindWithdraw || ErrNumericalOverflow.Kind != KindBid {
		t.Fatalf("unexpected kinds")
	}
	if Code(errors.New("boom")) != "INTERNAL" {
		t.Fatalf("foreign errors map to INTERNAL")
	}
	wrapped := transferFailed(errors.New("insufficient"))
	if Code(wrapped) != "TRANSFER_FAILED" || !errors.Is(wrapped, ErrTransferFailed) {
		t.Fatalf("unexpected wrapped transfer error %v", wrapped)
	}
}
