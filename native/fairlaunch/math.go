package fairlaunch

import (
	"math"

	"github.com/holiman/uint256"
)

const (
	// MaxGranularity caps the number of ticks a price range may span.
	MaxGranularity uint64 = 100
	// BasisPoints is the denominator of every reserve fraction.
	BasisPoints uint64 = 10_000

	withdrawCapNumerator   uint64 = 75
	withdrawCapDenominator uint64 = 100
	phaseOneGraceMultiple  int64  = 6
)

func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a
}

func checkedSub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

func checkedAddInt64(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}

func checkedSubInt64(a, b int64) (int64, bool) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, false
	}
	return a - b, true
}

func checkedMulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	product := a * b
	if product/b != a {
		return 0, false
	}
	return product, true
}

// mulDiv computes floor(x * y / d) with a 256-bit intermediate product. The
// boolean is false when d is zero or the quotient does not fit in 64 bits.
func mulDiv(x, y, d uint64) (uint64, bool) {
	if d == 0 {
		return 0, false
	}
	quotient, overflow := new(uint256.Int).MulDivOverflow(
		uint256.NewInt(x),
		uint256.NewInt(y),
		uint256.NewInt(d),
	)
	if overflow || !quotient.IsUint64() {
		return 0, false
	}
	return quotient.Uint64(), true
}

// fractionOfBasisPoints returns floor(amount * bp / 10000).
func fractionOfBasisPoints(amount uint64, bp uint64) (uint64, bool) {
	if bp > BasisPoints {
		return 0, false
	}
	return mulDiv(amount, bp, BasisPoints)
}

// applyWithdrawCap returns floor(amount * 75 / 100).
func applyWithdrawCap(amount uint64) (uint64, bool) {
	return mulDiv(amount, withdrawCapNumerator, withdrawCapDenominator)
}

// MaskAndIndex maps a bid index onto the lottery bitmap: byte seq/8, bit
// seq%8 counted from the most significant bit, so seq 0 is mask 0x80.
func MaskAndIndex(seq uint64) (byte, uint64) {
	index := seq / 8
	fromRight := 7 - seq%8
	return byte(1) << fromRight, index
}
