package fairlaunch

// ExpectedAllotment is the part of the snapshot the issuer may draw on before
// the anti-rug condition is met: floor(snapshot * (10000 - bp) / 10000).
func ExpectedAllotment(reserveBP uint16, snapshot uint64) (uint64, error) {
	if uint64(reserveBP) > BasisPoints {
		return 0, ErrInvalidReserveBP
	}
	amount, ok := fractionOfBasisPoints(snapshot, BasisPoints-uint64(reserveBP))
	if !ok {
		return 0, ErrWithdrawOverflow
	}
	return amount, nil
}

// WithdrawInput holds the live readings a withdrawal quote is based on.
type WithdrawInput struct {
	Now             int64
	TokenSupply     uint64
	TreasuryBalance uint64
}

// ComputeWithdrawable returns the amount the issuer may take from the
// treasury right now, together with the state carrying the snapshot. The
// snapshot is taken from the live balance on the first call and reused
// afterwards. The amount is advisory; nothing is moved here.
func ComputeWithdrawable(cfg *SaleConfig, st *SaleState, in WithdrawInput) (uint64, *SaleState, error) {
	if cfg == nil || st == nil {
		return 0, nil, ErrSaleNotFound
	}
	if CurrentPhase(cfg, st, in.Now) != PhaseSettlement {
		return 0, nil, ErrNotYetSettleable
	}
	snapshot := in.TreasuryBalance
	if st.Snapshot != nil {
		snapshot = *st.Snapshot
	}

	base := in.TreasuryBalance
	if anti := cfg.AntiRug; anti != nil && in.TokenSupply > anti.TokenRequirement {
		if in.TreasuryBalance != snapshot {
			return 0, nil, ErrAlreadyWithdrawnAllotment
		}
		allotment, err := ExpectedAllotment(anti.ReserveBP, snapshot)
		if err != nil {
			return 0, nil, err
		}
		base = allotment
	}
	amount, ok := applyWithdrawCap(base)
	if !ok {
		return 0, nil, ErrWithdrawOverflow
	}

	next := st.Clone()
	if next.Snapshot == nil {
		next.Snapshot = &snapshot
	}
	return amount, next, nil
}

// AntiRugRefundAmount is the share of the locked reserve owed to one token
// holder once the self destruct date has passed:
// (snapshot - allotment) / winners punched.
func AntiRugRefundAmount(cfg *SaleConfig, st *SaleState, now int64) (uint64, error) {
	if cfg == nil || st == nil {
		return 0, ErrSaleNotFound
	}
	anti := cfg.AntiRug
	if anti == nil {
		return 0, ErrNoAntiRug
	}
	if now < anti.SelfDestructDate {
		return 0, ErrSelfDestructNotPassed
	}
	if st.Snapshot == nil {
		return 0, ErrNoSnapshot
	}
	if st.WinnersProcessed == 0 {
		return 0, ErrNoWinnersProcessed
	}
	allotment, err := ExpectedAllotment(anti.ReserveBP, *st.Snapshot)
	if err != nil {
		return 0, err
	}
	reserve, ok := checkedSub(*st.Snapshot, allotment)
	if !ok {
		return 0, ErrWithdrawOverflow
	}
	return reserve / st.WinnersProcessed, nil
}
