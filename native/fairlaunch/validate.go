package fairlaunch

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Validate checks the internal consistency of a sale configuration and
// returns the first violation found.
func Validate(cfg *SaleConfig) error {
	if cfg == nil {
		return ErrMissingAuthority
	}
	if cfg.PhaseOneEnd <= cfg.PhaseOneStart {
		return ErrTimestampsOutOfOrder
	}
	if cfg.PhaseTwoEnd <= cfg.PhaseOneEnd {
		return ErrTimestampsOutOfOrder
	}
	if len(cfg.Code) != CodeLength {
		return ErrInvalidCode
	}
	if cfg.TickSize == 0 {
		return ErrTickSizeZero
	}
	if cfg.TokenSupply == 0 {
		return ErrZeroTokenSupply
	}
	if cfg.PriceRangeEnd <= cfg.PriceRangeStart {
		return ErrInvalidPriceRange
	}
	span := cfg.PriceRangeEnd - cfg.PriceRangeStart
	if span%cfg.TickSize != 0 {
		return ErrTickRemainder
	}
	if span/cfg.TickSize > MaxGranularity {
		return ErrTooMuchGranularity
	}
	if cfg.LotteryDuration < 0 {
		return ErrInvalidLotteryDuration
	}
	if anti := cfg.AntiRug; anti != nil {
		if uint64(anti.ReserveBP) > BasisPoints {
			return ErrInvalidReserveBP
		}
		if anti.TokenRequirement > cfg.TokenSupply {
			return ErrInvalidTokenRequirement
		}
	}
	if cfg.Authority == (common.Address{}) || strings.TrimSpace(cfg.TokenMint) == "" {
		return ErrMissingAuthority
	}
	return nil
}
