package state

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"fairlaunch/native/fairlaunch"
	"fairlaunch/storage"
)

var (
	fairLaunchSalePrefix   = []byte("fairlaunch/sale/")
	fairLaunchBidPrefix    = []byte("fairlaunch/bid/")
	fairLaunchBitmapPrefix = []byte("fairlaunch/bitmap/")
	fairLaunchMintPrefix   = []byte("fairlaunch/mint/")
	fairLaunchIndexKey     = kvKey([]byte("fairlaunch/sales"))
)

func fairLaunchSaleKey(code string) []byte {
	return prefixedKey(fairLaunchSalePrefix, []byte(code))
}

func fairLaunchBidKey(code string, index uint64) []byte {
	var idx [8]byte
	binary.BigEndian.PutUint64(idx[:], index)
	return prefixedKey(fairLaunchBidPrefix, []byte(code), idx[:])
}

func fairLaunchBitmapKey(code string) []byte {
	return prefixedKey(fairLaunchBitmapPrefix, []byte(code))
}

func fairLaunchMintKey(mint string) []byte {
	return prefixedKey(fairLaunchMintPrefix, []byte(fairlaunch.NormalizeMint(mint)))
}

// Timestamps are stored as their two's complement bit pattern since RLP has
// no signed integers.
func packTime(v int64) uint64 { return uint64(v) }

func unpackTime(v uint64) int64 { return int64(v) }

type storedFairLaunchSale struct {
	Code             string
	Authority        common.Address
	TokenMint        string
	PriceRangeStart  uint64
	PriceRangeEnd    uint64
	TickSize         uint64
	TokenSupply      uint64
	PhaseOneStart    uint64
	ConfigPhaseOne   uint64
	PhaseTwoEnd      uint64
	LotteryDuration  uint64
	HasAntiRug       bool
	ReserveBP        uint16
	TokenRequirement uint64
	SelfDestructDate uint64

	PhaseOneEnd       uint64
	Last              uint64
	BidsAccepted      uint64
	TotalRaised       uint64
	LeadingBidder     common.Address
	BitmapOnes        uint64
	LotterySealed     bool
	HasSnapshot       bool
	Snapshot          uint64
	WinnersProcessed  uint64
	RefundsProcessed  uint64
	PhaseOneRestarted uint64
}

func newStoredFairLaunchSale(sale *fairlaunch.Sale) *storedFairLaunchSale {
	cfg, st := sale.Config, sale.State
	rec := &storedFairLaunchSale{
		Code:              cfg.Code,
		Authority:         cfg.Authority,
		TokenMint:         cfg.TokenMint,
		PriceRangeStart:   cfg.PriceRangeStart,
		PriceRangeEnd:     cfg.PriceRangeEnd,
		TickSize:          cfg.TickSize,
		TokenSupply:       cfg.TokenSupply,
		PhaseOneStart:     packTime(cfg.PhaseOneStart),
		ConfigPhaseOne:    packTime(cfg.PhaseOneEnd),
		PhaseTwoEnd:       packTime(cfg.PhaseTwoEnd),
		LotteryDuration:   packTime(cfg.LotteryDuration),
		PhaseOneEnd:       packTime(st.PhaseOneEnd),
		Last:              st.Last,
		BidsAccepted:      st.BidsAccepted,
		TotalRaised:       st.TotalRaised,
		LeadingBidder:     st.LeadingBidder,
		BitmapOnes:        st.BitmapOnes,
		LotterySealed:     st.LotterySealed,
		WinnersProcessed:  st.WinnersProcessed,
		RefundsProcessed:  st.RefundsProcessed,
		PhaseOneRestarted: st.PhaseOneRestarted,
	}
	if anti := cfg.AntiRug; anti != nil {
		rec.HasAntiRug = true
		rec.ReserveBP = anti.ReserveBP
		rec.TokenRequirement = anti.TokenRequirement
		rec.SelfDestructDate = packTime(anti.SelfDestructDate)
	}
	if st.Snapshot != nil {
		rec.HasSnapshot = true
		rec.Snapshot = *st.Snapshot
	}
	return rec
}

func (rec *storedFairLaunchSale) toSale() *fairlaunch.Sale {
	cfg := &fairlaunch.SaleConfig{
		Code:            rec.Code,
		Authority:       rec.Authority,
		TokenMint:       rec.TokenMint,
		PriceRangeStart: rec.PriceRangeStart,
		PriceRangeEnd:   rec.PriceRangeEnd,
		TickSize:        rec.TickSize,
		TokenSupply:     rec.TokenSupply,
		PhaseOneStart:   unpackTime(rec.PhaseOneStart),
		PhaseOneEnd:     unpackTime(rec.ConfigPhaseOne),
		PhaseTwoEnd:     unpackTime(rec.PhaseTwoEnd),
		LotteryDuration: unpackTime(rec.LotteryDuration),
	}
	if rec.HasAntiRug {
		cfg.AntiRug = &fairlaunch.AntiRugSetting{
			ReserveBP:        rec.ReserveBP,
			TokenRequirement: rec.TokenRequirement,
			SelfDestructDate: unpackTime(rec.SelfDestructDate),
		}
	}
	st := &fairlaunch.SaleState{
		PhaseOneEnd:       unpackTime(rec.PhaseOneEnd),
		Last:              rec.Last,
		BidsAccepted:      rec.BidsAccepted,
		TotalRaised:       rec.TotalRaised,
		LeadingBidder:     rec.LeadingBidder,
		BitmapOnes:        rec.BitmapOnes,
		LotterySealed:     rec.LotterySealed,
		WinnersProcessed:  rec.WinnersProcessed,
		RefundsProcessed:  rec.RefundsProcessed,
		PhaseOneRestarted: rec.PhaseOneRestarted,
	}
	if rec.HasSnapshot {
		snapshot := rec.Snapshot
		st.Snapshot = &snapshot
	}
	return &fairlaunch.Sale{Config: cfg, State: st}
}

type storedFairLaunchBid struct {
	Sale     string
	Index    uint64
	Bidder   common.Address
	Amount   uint64
	PlacedAt uint64
	Status   uint8
}

type storedFairLaunchBitmap struct {
	Capacity uint64
	Data     []byte
}

// FairLaunchSaleGet loads a sale by code.
func (m *Manager) FairLaunchSaleGet(code string) (*fairlaunch.Sale, bool, error) {
	code = strings.TrimSpace(code)
	rec := new(storedFairLaunchSale)
	ok, err := m.decode(fairLaunchSaleKey(code), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return rec.toSale(), true, nil
}

// FairLaunchSalePut stores a sale together with any bids written by the same
// transition. The sale index is extended when the sale is new, and the token
// mint is recorded against the code unless another sale already holds it.
func (m *Manager) FairLaunchSalePut(sale *fairlaunch.Sale, bids ...*fairlaunch.Bid) error {
	if sale == nil || sale.Config == nil || sale.State == nil {
		return fmt.Errorf("fairlaunch: nil sale")
	}
	code := strings.TrimSpace(sale.Config.Code)
	if code == "" {
		return fmt.Errorf("fairlaunch: sale code required")
	}
	batch := storage.NewBatch()

	codes, err := m.FairLaunchSaleCodes()
	if err != nil {
		return err
	}
	idx := sort.SearchStrings(codes, code)
	if idx == len(codes) || codes[idx] != code {
		codes = append(codes, "")
		copy(codes[idx+1:], codes[idx:])
		codes[idx] = code
		if err := encodeInto(batch, fairLaunchIndexKey, codes); err != nil {
			return err
		}
		if mint := fairlaunch.NormalizeMint(sale.Config.TokenMint); mint != "" {
			_, claimed, err := m.FairLaunchMintOwner(mint)
			if err != nil {
				return err
			}
			if !claimed {
				if err := encodeInto(batch, fairLaunchMintKey(mint), code); err != nil {
					return err
				}
			}
		}
	}

	if err := encodeInto(batch, fairLaunchSaleKey(code), newStoredFairLaunchSale(sale)); err != nil {
		return err
	}
	for _, bid := range bids {
		if bid == nil {
			continue
		}
		if !bid.Status.Valid() {
			return fmt.Errorf("fairlaunch: invalid ticket status %d", bid.Status)
		}
		rec := &storedFairLaunchBid{
			Sale:     code,
			Index:    bid.Index,
			Bidder:   bid.Bidder,
			Amount:   bid.Amount,
			PlacedAt: packTime(bid.PlacedAt),
			Status:   uint8(bid.Status),
		}
		if err := encodeInto(batch, fairLaunchBidKey(code, bid.Index), rec); err != nil {
			return err
		}
	}
	return m.commit(batch)
}

// FairLaunchSaleCodes lists every stored sale code in sorted order.
func (m *Manager) FairLaunchSaleCodes() ([]string, error) {
	var codes []string
	if _, err := m.decode(fairLaunchIndexKey, &codes); err != nil {
		return nil, err
	}
	if codes == nil {
		codes = []string{}
	}
	return codes, nil
}

// FairLaunchMintOwner returns the code of the sale that first claimed mint.
func (m *Manager) FairLaunchMintOwner(mint string) (string, bool, error) {
	var code string
	ok, err := m.decode(fairLaunchMintKey(mint), &code)
	if err != nil || !ok {
		return "", false, err
	}
	return code, true, nil
}

// FairLaunchBidGet loads a bid by its arrival index.
func (m *Manager) FairLaunchBidGet(code string, index uint64) (*fairlaunch.Bid, bool, error) {
	code = strings.TrimSpace(code)
	rec := new(storedFairLaunchBid)
	ok, err := m.decode(fairLaunchBidKey(code, index), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &fairlaunch.Bid{
		Sale:     rec.Sale,
		Index:    rec.Index,
		Bidder:   rec.Bidder,
		Amount:   rec.Amount,
		PlacedAt: unpackTime(rec.PlacedAt),
		Status:   fairlaunch.TicketStatus(rec.Status),
	}, true, nil
}

// FairLaunchBitmapGet loads the lottery bitmap of a sale, sealed or not.
func (m *Manager) FairLaunchBitmapGet(code string) (*fairlaunch.Bitmap, bool, error) {
	rec := new(storedFairLaunchBitmap)
	ok, err := m.decode(fairLaunchBitmapKey(strings.TrimSpace(code)), rec)
	if err != nil || !ok {
		return nil, false, err
	}
	bm, err := fairlaunch.BitmapFromBytes(rec.Capacity, rec.Data)
	if err != nil {
		return nil, false, err
	}
	return bm, true, nil
}

// FairLaunchBitmapPut stores the lottery bitmap of a sale.
func (m *Manager) FairLaunchBitmapPut(code string, bm *fairlaunch.Bitmap) error {
	if bm == nil {
		return fmt.Errorf("fairlaunch: nil bitmap")
	}
	return m.write(fairLaunchBitmapKey(strings.TrimSpace(code)), &storedFairLaunchBitmap{
		Capacity: bm.Capacity(),
		Data:     bm.Bytes(),
	})
}
