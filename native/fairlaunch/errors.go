package fairlaunch

import "errors"

// Kind groups failures by the operation that rejected them.
type Kind uint8

const (
	KindConfig Kind = iota + 1
	KindBid
	KindLottery
	KindWithdraw
	KindSettlement
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindBid:
		return "bid"
	case KindLottery:
		return "lottery"
	case KindWithdraw:
		return "withdraw"
	case KindSettlement:
		return "settlement"
	default:
		return "unknown"
	}
}

// Error is a rejected fair launch operation. Code is stable across releases
// and is what host wrappers surface to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return "fairlaunch: " + e.Message
}

// Is matches on Code so that kind-specific variants of the same failure, such
// as overflow during a bid or a withdrawal, compare equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil || e == nil {
		return false
	}
	return t.Code == e.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrTimestampsOutOfOrder    = newError(KindConfig, "TIMESTAMPS_OUT_OF_ORDER", "timestamps of phases should line up")
	ErrInvalidCode             = newError(KindConfig, "INVALID_CODE", "sale code must be exactly 6 characters")
	ErrTickSizeZero            = newError(KindConfig, "TICK_SIZE_ZERO", "tick size too small")
	ErrZeroTokenSupply         = newError(KindConfig, "ZERO_TOKEN_SUPPLY", "cannot offer zero tokens")
	ErrInvalidPriceRange       = newError(KindConfig, "INVALID_PRICE_RANGE", "invalid price range")
	ErrTickRemainder           = newError(KindConfig, "TICK_REMAINDER", "tick size leaves a remainder over the price range")
	ErrTooMuchGranularity      = newError(KindConfig, "TOO_MUCH_GRANULARITY", "price range has more than 100 ticks")
	ErrInvalidLotteryDuration  = newError(KindConfig, "INVALID_LOTTERY_DURATION", "invalid lottery duration")
	ErrInvalidReserveBP        = newError(KindConfig, "INVALID_RESERVE_BP", "anti-rug reserve must not exceed 10000 basis points")
	ErrInvalidTokenRequirement = newError(KindConfig, "INVALID_TOKEN_REQUIREMENT", "anti-rug token requirement exceeds token supply")
	ErrMissingAuthority        = newError(KindConfig, "MISSING_AUTHORITY", "sale authority and token mint are required")
	ErrSaleExists              = newError(KindConfig, "SALE_EXISTS", "sale already exists")
	ErrMintInUse               = newError(KindConfig, "MINT_IN_USE", "token mint is reserved or already sold by another sale")

	ErrPhaseClosed       = newError(KindBid, "PHASE_CLOSED", "cannot bid outside the bidding phase")
	ErrInsufficientFunds = newError(KindBid, "INSUFFICIENT_FUNDS", "not enough balance to cover the bid")
	ErrBidTooLow         = newError(KindBid, "BID_TOO_LOW", "bid must exceed the last accepted bid")
	ErrNumericalOverflow = newError(KindBid, "NUMERICAL_OVERFLOW", "numerical overflow")
	ErrTransferFailed    = newError(KindBid, "TRANSFER_FAILED", "custody transfer failed")

	ErrCardinalityMismatch = newError(KindLottery, "CARDINALITY_MISMATCH", "lottery ones must equal the number of bids accepted")
	ErrAlreadySealed       = newError(KindLottery, "ALREADY_SEALED", "lottery already sealed")
	ErrBiddingOpen         = newError(KindLottery, "BIDDING_OPEN", "lottery cannot be sealed while bidding is open")
	ErrStripOutOfRange     = newError(KindLottery, "STRIP_OUT_OF_RANGE", "lottery strip exceeds bitmap capacity")
	ErrRestartNotAllowed   = newError(KindLottery, "RESTART_NOT_ALLOWED", "bidding cannot be restarted yet")

	ErrNotYetSettleable          = newError(KindWithdraw, "NOT_YET_SETTLEABLE", "cannot withdraw until settlement")
	ErrAlreadyWithdrawnAllotment = newError(KindWithdraw, "ALREADY_WITHDRAWN_ALLOTMENT", "capital allotment already withdrawn")
	ErrNoSnapshot                = newError(KindWithdraw, "NO_SNAPSHOT", "no treasury snapshot present")
	ErrUnauthorized              = newError(KindWithdraw, "UNAUTHORIZED", "caller is not the sale authority")
	ErrWithdrawOverflow          = newError(KindWithdraw, "NUMERICAL_OVERFLOW", "numerical overflow")
	ErrTicketsOutstanding        = newError(KindWithdraw, "TICKETS_OUTSTANDING", "cannot withdraw until every winning ticket is punched")

	ErrSaleNotFound          = newError(KindSettlement, "SALE_NOT_FOUND", "sale not found")
	ErrBidNotFound           = newError(KindSettlement, "BID_NOT_FOUND", "bid not found")
	ErrTicketProcessed       = newError(KindSettlement, "TICKET_PROCESSED", "ticket already processed")
	ErrNotWinner             = newError(KindSettlement, "NOT_WINNER", "ticket did not win the lottery")
	ErrNoAntiRug             = newError(KindSettlement, "NO_ANTI_RUG", "sale has no anti-rug setting")
	ErrSelfDestructNotPassed = newError(KindSettlement, "SELF_DESTRUCT_NOT_PASSED", "self destruct date has not passed")
	ErrNoWinnersProcessed    = newError(KindSettlement, "NO_WINNERS_PROCESSED", "no winning tickets have been punched")
)

// Code returns the stable code for err, or "INTERNAL" when err is not a fair
// launch rejection.
func Code(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe != nil {
		return fe.Code
	}
	return "INTERNAL"
}

// KindOf returns the taxonomy group for err, or zero when err is foreign.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) && fe != nil {
		return fe.Kind
	}
	return 0
}
