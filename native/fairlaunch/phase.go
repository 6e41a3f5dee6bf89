package fairlaunch

// Phase is the temporal state of a sale.
type Phase uint8

const (
	PhaseBidding Phase = iota + 1
	PhaseLotterySealing
	PhaseSettlement
)

func (p Phase) String() string {
	switch p {
	case PhaseBidding:
		return "bidding"
	case PhaseLotterySealing:
		return "lottery_sealing"
	case PhaseSettlement:
		return "settlement"
	default:
		return "unknown"
	}
}

// InitialPhaseOneEnd returns the deadline a new sale starts with: the
// configured bidding end plus six lottery durations of slack that late bids
// will shrink back through the anti-snipe rule.
func InitialPhaseOneEnd(cfg *SaleConfig) (int64, error) {
	if cfg == nil {
		return 0, ErrMissingAuthority
	}
	grace, ok := checkedMulInt64(cfg.LotteryDuration, phaseOneGraceMultiple)
	if !ok {
		return 0, ErrNumericalOverflow
	}
	end, ok := checkedAddInt64(cfg.PhaseOneEnd, grace)
	if !ok {
		return 0, ErrNumericalOverflow
	}
	return end, nil
}

// NewSaleState returns the state a freshly created sale begins with.
func NewSaleState(cfg *SaleConfig) (*SaleState, error) {
	end, err := InitialPhaseOneEnd(cfg)
	if err != nil {
		return nil, err
	}
	return &SaleState{PhaseOneEnd: end}, nil
}

// CurrentPhase derives the phase from the configuration, state and clock.
func CurrentPhase(cfg *SaleConfig, st *SaleState, now int64) Phase {
	if st == nil {
		return PhaseBidding
	}
	if st.LotterySealed {
		return PhaseSettlement
	}
	if now <= st.PhaseOneEnd {
		return PhaseBidding
	}
	return PhaseLotterySealing
}

// TimeUntilPhaseChange reports how many seconds remain before the phase
// changes on its own. The boolean is false when the next transition is not
// driven by time.
func TimeUntilPhaseChange(cfg *SaleConfig, st *SaleState, now int64) (int64, bool) {
	if CurrentPhase(cfg, st, now) != PhaseBidding {
		return 0, false
	}
	remaining, ok := checkedSubInt64(st.PhaseOneEnd, now)
	if !ok {
		return 0, false
	}
	remaining, ok = checkedAddInt64(remaining, 1)
	if !ok {
		return 0, false
	}
	return remaining, true
}

// extendDeadline applies the anti-snipe rule: a bid landing within one
// lottery duration of the deadline pushes it to now + lottery duration.
func extendDeadline(cfg *SaleConfig, phaseOneEnd int64, now int64) (int64, bool, error) {
	left, ok := checkedSubInt64(phaseOneEnd, now)
	if !ok {
		return 0, false, ErrNumericalOverflow
	}
	if left >= cfg.LotteryDuration {
		return phaseOneEnd, false, nil
	}
	extended, ok := checkedAddInt64(now, cfg.LotteryDuration)
	if !ok {
		return 0, false, ErrNumericalOverflow
	}
	return extended, true, nil
}

// RestartPhaseTwo re-opens bidding for one lottery duration when the lottery
// window lapsed without a seal and the price has not reached the top of the
// range.
func RestartPhaseTwo(cfg *SaleConfig, st *SaleState, now int64) (*SaleState, error) {
	if cfg == nil || st == nil {
		return nil, ErrSaleNotFound
	}
	if st.LotterySealed {
		return nil, ErrAlreadySealed
	}
	if CurrentPhase(cfg, st, now) != PhaseLotterySealing {
		return nil, ErrRestartNotAllowed
	}
	lotteryEnd, ok := checkedAddInt64(st.PhaseOneEnd, cfg.LotteryDuration)
	if !ok {
		return nil, ErrNumericalOverflow
	}
	if now <= lotteryEnd || st.Last >= cfg.PriceRangeEnd {
		return nil, ErrRestartNotAllowed
	}
	end, ok := checkedAddInt64(now, cfg.LotteryDuration)
	if !ok {
		return nil, ErrNumericalOverflow
	}
	restarts, ok := checkedAdd(st.PhaseOneRestarted, 1)
	if !ok {
		return nil, ErrNumericalOverflow
	}
	next := st.Clone()
	next.PhaseOneEnd = end
	next.PhaseOneRestarted = restarts
	return next, nil
}
