package fairlaunch

import (
	"github.com/ethereum/go-ethereum/common"
)

// CodeLength is the exact length of a sale code.
const CodeLength = 6

// AntiRugSetting keeps part of the treasury locked until enough tokens have
// left circulation.
type AntiRugSetting struct {
	// ReserveBP is the share of the snapshot kept in the treasury until the
	// supply requirement is met.
	ReserveBP uint16 `json:"reserveBp"`
	// TokenRequirement is the supply level at or below which the reserve unlocks.
	TokenRequirement uint64 `json:"tokenRequirement"`
	// SelfDestructDate opens pro-rated refunds when the requirement is missed.
	SelfDestructDate int64 `json:"selfDestructDate"`
}

// SaleConfig is fixed when the sale is created.
type SaleConfig struct {
	Code            string          `json:"code"`
	Authority       common.Address  `json:"authority"`
	TokenMint       string          `json:"tokenMint"`
	PriceRangeStart uint64          `json:"priceRangeStart"`
	PriceRangeEnd   uint64          `json:"priceRangeEnd"`
	TickSize        uint64          `json:"tickSize"`
	TokenSupply     uint64          `json:"tokenSupply"`
	PhaseOneStart   int64           `json:"phaseOneStart"`
	PhaseOneEnd     int64           `json:"phaseOneEnd"`
	PhaseTwoEnd     int64           `json:"phaseTwoEnd"`
	LotteryDuration int64           `json:"lotteryDuration"`
	AntiRug         *AntiRugSetting `json:"antiRug,omitempty"`
}

// Clone returns a deep copy of the configuration.
func (c *SaleConfig) Clone() *SaleConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.AntiRug != nil {
		setting := *c.AntiRug
		clone.AntiRug = &setting
	}
	return &clone
}

// Ticks returns the number of price ticks in the configured range.
func (c *SaleConfig) Ticks() uint64 {
	if c == nil || c.TickSize == 0 || c.PriceRangeEnd <= c.PriceRangeStart {
		return 0
	}
	return (c.PriceRangeEnd - c.PriceRangeStart) / c.TickSize
}

// SaleState is the mutable half of a sale. Engine operations treat it as a
// value: transitions return a new state and leave their input untouched.
type SaleState struct {
	PhaseOneEnd       int64          `json:"phaseOneEnd"`
	Last              uint64         `json:"last"`
	BidsAccepted      uint64         `json:"bidsAccepted"`
	TotalRaised       uint64         `json:"totalRaised"`
	LeadingBidder     common.Address `json:"leadingBidder"`
	BitmapOnes        uint64         `json:"bitmapOnes"`
	LotterySealed     bool           `json:"lotterySealed"`
	Snapshot          *uint64        `json:"snapshot,omitempty"`
	WinnersProcessed  uint64         `json:"winnersProcessed"`
	RefundsProcessed  uint64         `json:"refundsProcessed"`
	PhaseOneRestarted uint64         `json:"phaseOneRestarted"`
}

// Clone returns a deep copy of the state.
func (s *SaleState) Clone() *SaleState {
	if s == nil {
		return nil
	}
	clone := *s
	if s.Snapshot != nil {
		snapshot := *s.Snapshot
		clone.Snapshot = &snapshot
	}
	return &clone
}

// HasSnapshot reports whether the treasury snapshot was taken.
func (s *SaleState) HasSnapshot() bool { return s != nil && s.Snapshot != nil }

// Sale pairs a configuration with its live state.
type Sale struct {
	Config *SaleConfig `json:"config"`
	State  *SaleState  `json:"state"`
}

// Clone returns a deep copy of the sale.
func (s *Sale) Clone() *Sale {
	if s == nil {
		return nil
	}
	return &Sale{Config: s.Config.Clone(), State: s.State.Clone()}
}

// TicketStatus tracks what happened to a bid after the lottery.
type TicketStatus uint8

const (
	TicketPending TicketStatus = iota
	TicketPunched
)

func (s TicketStatus) String() string {
	switch s {
	case TicketPending:
		return "pending"
	case TicketPunched:
		return "punched"
	default:
		return "unknown"
	}
}

// Valid reports whether the status is a known value.
func (s TicketStatus) Valid() bool { return s <= TicketPunched }

// Bid is one accepted ticket. Index is assigned in arrival order and doubles
// as the bit position in the lottery bitmap.
type Bid struct {
	Sale     string         `json:"sale"`
	Index    uint64         `json:"index"`
	Bidder   common.Address `json:"bidder"`
	Amount   uint64         `json:"amount"`
	PlacedAt int64          `json:"placedAt"`
	Status   TicketStatus   `json:"status"`
}

// Clone returns a copy of the bid.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	clone := *b
	return &clone
}

// BidReceipt is returned to a bidder whose bid was accepted.
type BidReceipt struct {
	Bid         *Bid  `json:"bid"`
	PhaseOneEnd int64 `json:"phaseOneEnd"`
	Extended    bool  `json:"extended"`
}
