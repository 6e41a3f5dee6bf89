package fairlaunch

import "github.com/ethereum/go-ethereum/common"

// BidInput carries everything the ratchet needs to judge a bid. Available is
// the bidder's spendable balance and TreasuryBalance the pooled funds before
// the bid lands.
type BidInput struct {
	Bidder          common.Address
	Amount          uint64
	Available       uint64
	TreasuryBalance uint64
	Now             int64
}

// AcceptBid applies the ascending-price ratchet. On success it returns the
// next state and the bid that was recorded; st itself is never modified so a
// rejection leaves nothing to roll back.
func AcceptBid(cfg *SaleConfig, st *SaleState, in BidInput) (*SaleState, *Bid, bool, error) {
	if cfg == nil || st == nil {
		return nil, nil, false, ErrSaleNotFound
	}
	if CurrentPhase(cfg, st, in.Now) != PhaseBidding || in.Now > st.PhaseOneEnd {
		return nil, nil, false, ErrPhaseClosed
	}
	if in.Available < in.Amount {
		return nil, nil, false, ErrInsufficientFunds
	}
	if in.Amount <= st.Last {
		return nil, nil, false, ErrBidTooLow
	}
	bids, ok := checkedAdd(st.BidsAccepted, 1)
	if !ok {
		return nil, nil, false, ErrNumericalOverflow
	}
	raised, ok := checkedAdd(st.TotalRaised, in.Amount)
	if !ok {
		return nil, nil, false, ErrNumericalOverflow
	}
	if _, ok := checkedAdd(in.TreasuryBalance, in.Amount); !ok {
		return nil, nil, false, ErrNumericalOverflow
	}
	end, extended, err := extendDeadline(cfg, st.PhaseOneEnd, in.Now)
	if err != nil {
		return nil, nil, false, err
	}

	next := st.Clone()
	next.BidsAccepted = bids
	next.TotalRaised = raised
	next.Last = in.Amount
	next.PhaseOneEnd = end
	next.LeadingBidder = in.Bidder

	bid := &Bid{
		Sale:     cfg.Code,
		Index:    st.BidsAccepted,
		Bidder:   in.Bidder,
		Amount:   in.Amount,
		PlacedAt: in.Now,
		Status:   TicketPending,
	}
	return next, bid, extended, nil
}
