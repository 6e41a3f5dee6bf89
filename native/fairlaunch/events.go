package fairlaunch

import (
	"encoding/hex"
	"strconv"

	"fairlaunch/core/events"
	"fairlaunch/core/types"
)

const (
	// EventTypeSaleCreated is emitted when a sale is registered.
	EventTypeSaleCreated = "fairlaunch.sale.created"
	// EventTypeBidAccepted is emitted for every bid that clears the ratchet.
	EventTypeBidAccepted = "fairlaunch.bid.accepted"
	// EventTypeDeadlineExtended is emitted when a late bid pushes the bidding deadline.
	EventTypeDeadlineExtended = "fairlaunch.deadline.extended"
	// EventTypeBiddingRestarted is emitted when a lapsed lottery window re-opens bidding.
	EventTypeBiddingRestarted = "fairlaunch.bidding.restarted"
	// EventTypeLotteryUpdated is emitted when a bitmap strip is stored.
	EventTypeLotteryUpdated = "fairlaunch.lottery.updated"
	// EventTypeLotterySealed is emitted when the bitmap is sealed and settlement begins.
	EventTypeLotterySealed = "fairlaunch.lottery.sealed"
	// EventTypeTicketPunched is emitted when a winning ticket receives its token.
	EventTypeTicketPunched = "fairlaunch.ticket.punched"
	// EventTypeTreasuryWithdrawn is emitted when the issuer draws from the treasury.
	EventTypeTreasuryWithdrawn = "fairlaunch.treasury.withdrawn"
	// EventTypeAntiRugRefunded is emitted when a holder redeems a token for a reserve slice.
	EventTypeAntiRugRefunded = "fairlaunch.antirug.refunded"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func i64(v int64) string { return strconv.FormatInt(v, 10) }

func saleEvent(kind, sale string, at int64, attrs map[string]string) *types.Event {
	return &types.Event{Type: kind, Sale: sale, Timestamp: at, Attributes: attrs}
}

// SaleCreatedEvent announces a new sale.
func SaleCreatedEvent(cfg *SaleConfig, st *SaleState, at int64) *types.Event {
	return saleEvent(EventTypeSaleCreated, cfg.Code, at, map[string]string{
		"authority":   cfg.Authority.Hex(),
		"tokenMint":   cfg.TokenMint,
		"tokenSupply": u64(cfg.TokenSupply),
		"phaseOneEnd": i64(st.PhaseOneEnd),
	})
}

// BidAcceptedEvent records an accepted bid and the resulting high-water-mark.
func BidAcceptedEvent(bid *Bid, st *SaleState) *types.Event {
	return saleEvent(EventTypeBidAccepted, bid.Sale, bid.PlacedAt, map[string]string{
		"index":        u64(bid.Index),
		"bidder":       bid.Bidder.Hex(),
		"amount":       u64(bid.Amount),
		"last":         u64(st.Last),
		"bidsAccepted": u64(st.BidsAccepted),
		"phaseOneEnd":  i64(st.PhaseOneEnd),
	})
}

// DeadlineExtendedEvent records an anti-snipe extension.
func DeadlineExtendedEvent(sale string, previous, next, at int64) *types.Event {
	return saleEvent(EventTypeDeadlineExtended, sale, at, map[string]string{
		"previous":    i64(previous),
		"phaseOneEnd": i64(next),
	})
}

// BiddingRestartedEvent records a restart of the bidding window.
func BiddingRestartedEvent(sale string, st *SaleState, at int64) *types.Event {
	return saleEvent(EventTypeBiddingRestarted, sale, at, map[string]string{
		"phaseOneEnd": i64(st.PhaseOneEnd),
		"restarts":    u64(st.PhaseOneRestarted),
	})
}

// LotteryUpdatedEvent records a stored bitmap strip.
func LotteryUpdatedEvent(sale string, offset uint64, ones uint64, at int64) *types.Event {
	return saleEvent(EventTypeLotteryUpdated, sale, at, map[string]string{
		"offset": u64(offset),
		"ones":   u64(ones),
	})
}

// LotterySealedEvent records the sealed bitmap cardinality and its digest so
// off-line auditors can check the winner set they were handed.
func LotterySealedEvent(sale string, st *SaleState, bm *Bitmap, at int64) *types.Event {
	digest := bm.Digest()
	return saleEvent(EventTypeLotterySealed, sale, at, map[string]string{
		"bitmapOnes":   u64(st.BitmapOnes),
		"bidsAccepted": u64(st.BidsAccepted),
		"digest":       "0x" + hex.EncodeToString(digest[:]),
	})
}

// TicketPunchedEvent records a winner receiving their token.
func TicketPunchedEvent(bid *Bid, st *SaleState, at int64) *types.Event {
	return saleEvent(EventTypeTicketPunched, bid.Sale, at, map[string]string{
		"index":            u64(bid.Index),
		"bidder":           bid.Bidder.Hex(),
		"winnersProcessed": u64(st.WinnersProcessed),
	})
}

// TreasuryWithdrawnEvent records an issuer withdrawal.
func TreasuryWithdrawnEvent(sale string, authority string, amount uint64, st *SaleState, at int64) *types.Event {
	attrs := map[string]string{
		"authority": authority,
		"amount":    u64(amount),
	}
	if st.Snapshot != nil {
		attrs["snapshot"] = u64(*st.Snapshot)
	}
	return saleEvent(EventTypeTreasuryWithdrawn, sale, at, attrs)
}

// AntiRugRefundedEvent records a reserve slice paid out to a holder.
func AntiRugRefundedEvent(sale string, holder string, amount uint64, st *SaleState, at int64) *types.Event {
	return saleEvent(EventTypeAntiRugRefunded, sale, at, map[string]string{
		"holder":           holder,
		"amount":           u64(amount),
		"refundsProcessed": u64(st.RefundsProcessed),
	})
}
