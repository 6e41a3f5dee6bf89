package state

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"fairlaunch/native/fairlaunch"
)

func testSale() *fairlaunch.Sale {
	snapshot := uint64(math.MaxUint64)
	return &fairlaunch.Sale{
		Config: &fairlaunch.SaleConfig{
			Code:            "LAUNCH",
			Authority:       common.HexToAddress("0xa1"),
			TokenMint:       "LNCH",
			PriceRangeStart: 100,
			PriceRangeEnd:   1_100,
			TickSize:        10,
			TokenSupply:     10,
			PhaseOneStart:   -5,
			PhaseOneEnd:     2_000,
			PhaseTwoEnd:     3_000,
			LotteryDuration: 60,
			AntiRug:         &fairlaunch.AntiRugSetting{ReserveBP: 2_000, TokenRequirement: 4, SelfDestructDate: 9_000},
		},
		State: &fairlaunch.SaleState{
			PhaseOneEnd:      2_360,
			Last:             500,
			BidsAccepted:     2,
			TotalRaised:      900,
			LeadingBidder:    common.HexToAddress("0xb2"),
			LotterySealed:    true,
			BitmapOnes:       2,
			Snapshot:         &snapshot,
			WinnersProcessed: 1,
		},
	}
}

func TestFairLaunchSaleRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	sale := testSale()
	bid := &fairlaunch.Bid{Sale: "LAUNCH", Index: 1, Bidder: common.HexToAddress("0xb2"), Amount: 500, PlacedAt: 1_500, Status: fairlaunch.TicketPunched}

	if err := mgr.FairLaunchSalePut(sale, bid); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := mgr.FairLaunchSaleGet("LAUNCH")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if !reflect.DeepEqual(got, sale) {
		t.Fatalf("sale mismatch:\n got %+v\nwant %+v", got, sale)
	}
	storedBid, ok, err := mgr.FairLaunchBidGet("LAUNCH", 1)
	if err != nil || !ok || !reflect.DeepEqual(storedBid, bid) {
		t.Fatalf("bid mismatch %+v %v %v", storedBid, ok, err)
	}
	if _, ok, _ := mgr.FairLaunchBidGet("LAUNCH", 0); ok {
		t.Fatalf("unexpected bid 0")
	}

	plain := testSale()
	plain.Config.Code = "ALPHA1"
	plain.Config.AntiRug = nil
	plain.State.Snapshot = nil
	if err := mgr.FairLaunchSalePut(plain); err != nil {
		t.Fatalf("put plain: %v", err)
	}
	got, _, _ = mgr.FairLaunchSaleGet("ALPHA1")
	if got.Config.AntiRug != nil || got.State.Snapshot != nil {
		t.Fatalf("optional fields should stay empty: %+v", got)
	}
	if err := mgr.FairLaunchSalePut(sale); err != nil {
		t.Fatalf("re-put: %v", err)
	}
	codes, err := mgr.FairLaunchSaleCodes()
	if err != nil || !reflect.DeepEqual(codes, []string{"ALPHA1", "LAUNCH"}) {
		t.Fatalf("unexpected codes %v %v", codes, err)
	}
}

func TestFairLaunchBitmapRoundTrip(t *testing.T) {
	mgr := newTestManager(t)
	if _, ok, err := mgr.FairLaunchBitmapGet("LAUNCH"); ok || err != nil {
		t.Fatalf("expected no bitmap, got %v %v", ok, err)
	}
	bm := fairlaunch.NewBitmap(10)
	_ = bm.Set(0)
	_ = bm.Set(9)
	if err := mgr.FairLaunchBitmapPut("LAUNCH", bm); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := mgr.FairLaunchBitmapGet("LAUNCH")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if got.Capacity() != 10 || got.Hex() != bm.Hex() {
		t.Fatalf("bitmap mismatch %s", got.Hex())
	}
}

func TestFairLaunchEngineOnManager(t *testing.T) {
	mgr := newTestManager(t)
	engine := fairlaunch.NewEngine()
	engine.SetState(mgr)
	engine.SetNowFunc(func() int64 { return 1_000 })

	cfg := testSale().Config
	if _, err := engine.CreateSale(cfg); err != nil {
		t.Fatalf("create: %v", err)
	}
	sale, err := engine.Sale("LAUNCH")
	if err != nil {
		t.Fatalf("sale: %v", err)
	}
	if sale.State.PhaseOneEnd != 2_360 || !reflect.DeepEqual(sale.Config, cfg) {
		t.Fatalf("unexpected stored sale %+v", sale)
	}
}

func TestFairLaunchMintOwnerKeepsFirstClaim(t *testing.T) {
	mgr := newTestManager(t)
	if _, ok, err := mgr.FairLaunchMintOwner("LNCH"); ok || err != nil {
		t.Fatalf("expected unclaimed mint, got %v %v", ok, err)
	}
	if err := mgr.FairLaunchSalePut(testSale()); err != nil {
		t.Fatalf("put: %v", err)
	}
	other := testSale()
	other.Config.Code = "ALPHA1"
	if err := mgr.FairLaunchSalePut(other); err != nil {
		t.Fatalf("put other: %v", err)
	}
	owner, ok, err := mgr.FairLaunchMintOwner(" lnch ")
	if err != nil || !ok || owner != "LAUNCH" {
		t.Fatalf("expected LAUNCH to own LNCH, got %q %v %v", owner, ok, err)
	}
}

func TestFairLaunchEngineRejectsSharedMint(t *testing.T) {
	mgr := newTestManager(t)
	engine := fairlaunch.NewEngine()
	engine.SetState(mgr)
	engine.SetNowFunc(func() int64 { return 1_000 })

	if _, err := engine.CreateSale(testSale().Config); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := testSale().Config
	dup.Code = "LAUNC2"
	dup.TokenMint = "lnch"
	if _, err := engine.CreateSale(dup); !errors.Is(err, fairlaunch.ErrMintInUse) {
		t.Fatalf("expected mint in use, got %v", err)
	}
	if _, ok, _ := mgr.FairLaunchSaleGet("LAUNC2"); ok {
		t.Fatalf("rejected sale was stored")
	}
}
