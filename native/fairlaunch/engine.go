package fairlaunch

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/text/unicode/norm"

	"fairlaunch/core/events"
	"fairlaunch/core/types"
	nativecommon "fairlaunch/native/common"
)

var (
	errNilState   = errors.New("fairlaunch engine: state not configured")
	errNilCustody = errors.New("fairlaunch engine: custody not configured")
	errNilTokens  = errors.New("fairlaunch engine: token ledger not configured")
)

// ModuleName is the pause switch consulted before every mutation.
const ModuleName = "fairlaunch"

// TicketsPerWinner is the number of sale tokens minted for a punched ticket.
const TicketsPerWinner uint64 = 1

type engineState interface {
	FairLaunchSaleGet(code string) (*Sale, bool, error)
	FairLaunchSalePut(sale *Sale, bids ...*Bid) error
	FairLaunchSaleCodes() ([]string, error)
	FairLaunchBidGet(code string, index uint64) (*Bid, bool, error)
	FairLaunchBitmapGet(code string) (*Bitmap, bool, error)
	FairLaunchBitmapPut(code string, bm *Bitmap) error
	FairLaunchMintOwner(mint string) (string, bool, error)
}

// reservedMints is implemented by token ledgers that hold symbols no sale
// may mint, such as the native currency.
type reservedMints interface {
	ReservedMint(mint string) bool
}

// Custody moves the native currency bids are paid in.
type Custody interface {
	BalanceOf(addr common.Address) (uint64, error)
	Transfer(from, to common.Address, amount uint64) error
}

// Tokens manages the fungible token being sold.
type Tokens interface {
	TotalSupply(mint string) (uint64, error)
	Mint(mint string, to common.Address, amount uint64) error
	Burn(mint string, from common.Address, amount uint64) error
}

// Status is a read-only view of a sale at a point in time.
type Status struct {
	Sale               *Sale          `json:"sale"`
	Phase              string         `json:"phase"`
	SecondsUntilChange int64          `json:"secondsUntilChange"`
	TimeDriven         bool           `json:"timeDriven"`
	Treasury           common.Address `json:"treasury"`
	Now                int64          `json:"now"`
}

// Engine serialises every mutation of a sale behind a per-sale lock and
// drives the pure transitions against the configured collaborators.
type Engine struct {
	state   engineState
	custody Custody
	tokens  Tokens
	emitter events.Emitter
	pauses  nativecommon.PauseView
	nowFn   func() int64

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	createMu sync.Mutex
}

// NewEngine creates a fair launch engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
		locks:   make(map[string]*sync.Mutex),
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the native balance collaborator.
func (e *Engine) SetCustody(custody Custody) { e.custody = custody }

// SetTokens configures the sale token collaborator.
func (e *Engine) SetTokens(tokens Tokens) { e.tokens = tokens }

// SetPauses configures the pause switches. A nil view never blocks.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(evt *types.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(WrapEvent(evt))
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

// lock acquires the single-writer lock for a sale.
func (e *Engine) lock(code string) func() {
	e.mu.Lock()
	if e.locks == nil {
		e.locks = make(map[string]*sync.Mutex)
	}
	l, ok := e.locks[code]
	if !ok {
		l = new(sync.Mutex)
		e.locks[code] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// TreasuryAddress derives the account that pools the bids of a sale.
func TreasuryAddress(code string) common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("fairlaunch:treasury:" + code)))
}

func normalizeCode(code string) string { return strings.TrimSpace(code) }

// NormalizeMint folds a token mint to the form sales are indexed by:
// compatibility-normalised, trimmed and upper case, so full-width or
// composed spellings of one symbol collide.
func NormalizeMint(mint string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(mint)))
}

func (e *Engine) loadSale(code string) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	sale, ok, err := e.state.FairLaunchSaleGet(code)
	if err != nil {
		return nil, err
	}
	if !ok || sale == nil || sale.Config == nil || sale.State == nil {
		return nil, ErrSaleNotFound
	}
	return sale, nil
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.custody == nil {
		return errNilCustody
	}
	if e.tokens == nil {
		return errNilTokens
	}
	return nil
}

func transferFailed(err error) error {
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}

// CreateSale validates and registers a new sale.
func (e *Engine) CreateSale(cfg *SaleConfig) (*Sale, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrMissingAuthority
	}
	cfg = cfg.Clone()
	cfg.Code = normalizeCode(cfg.Code)
	cfg.TokenMint = NormalizeMint(cfg.TokenMint)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	if reserved, ok := e.tokens.(reservedMints); ok && reserved.ReservedMint(cfg.TokenMint) {
		return nil, ErrMintInUse
	}
	// Mint ownership spans sales, so creations are serialised on top of the
	// per-sale lock.
	e.createMu.Lock()
	defer e.createMu.Unlock()
	unlock := e.lock(cfg.Code)
	defer unlock()
	if _, ok, err := e.state.FairLaunchSaleGet(cfg.Code); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrSaleExists
	}
	if _, owned, err := e.state.FairLaunchMintOwner(cfg.TokenMint); err != nil {
		return nil, err
	} else if owned {
		return nil, ErrMintInUse
	}
	st, err := NewSaleState(cfg)
	if err != nil {
		return nil, err
	}
	sale := &Sale{Config: cfg, State: st}
	if err := e.state.FairLaunchSalePut(sale); err != nil {
		return nil, err
	}
	e.emit(SaleCreatedEvent(cfg, st, e.now()))
	return sale.Clone(), nil
}

// Sale returns a copy of the stored sale.
func (e *Engine) Sale(code string) (*Sale, error) {
	sale, err := e.loadSale(normalizeCode(code))
	if err != nil {
		return nil, err
	}
	return sale.Clone(), nil
}

// Sales lists the codes of every registered sale.
func (e *Engine) Sales() ([]string, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.state.FairLaunchSaleCodes()
}

// Status reports the phase of a sale and the time left before it changes.
func (e *Engine) Status(code string) (*Status, error) {
	sale, err := e.loadSale(normalizeCode(code))
	if err != nil {
		return nil, err
	}
	now := e.now()
	remaining, timed := TimeUntilPhaseChange(sale.Config, sale.State, now)
	return &Status{
		Sale:               sale,
		Phase:              CurrentPhase(sale.Config, sale.State, now).String(),
		SecondsUntilChange: remaining,
		TimeDriven:         timed,
		Treasury:           TreasuryAddress(sale.Config.Code),
		Now:                now,
	}, nil
}

// CurrentPhase returns the phase the sale is in right now.
func (e *Engine) CurrentPhase(code string) (Phase, error) {
	sale, err := e.loadSale(normalizeCode(code))
	if err != nil {
		return 0, err
	}
	return CurrentPhase(sale.Config, sale.State, e.now()), nil
}

// Bid returns a stored bid by arrival index.
func (e *Engine) Bid(code string, index uint64) (*Bid, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	bid, ok, err := e.state.FairLaunchBidGet(normalizeCode(code), index)
	if err != nil {
		return nil, err
	}
	if !ok || bid == nil {
		return nil, ErrBidNotFound
	}
	return bid.Clone(), nil
}

// PlaceBid accepts a bid, moves the funds into the sale treasury and records
// the new high-water-mark. A rejected bid changes nothing.
func (e *Engine) PlaceBid(code string, bidder common.Address, amount uint64) (*BidReceipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()

	sale, err := e.loadSale(code)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if CurrentPhase(sale.Config, sale.State, now) != PhaseBidding {
		return nil, ErrPhaseClosed
	}
	available, err := e.custody.BalanceOf(bidder)
	if err != nil {
		return nil, err
	}
	treasury := TreasuryAddress(code)
	pooled, err := e.custody.BalanceOf(treasury)
	if err != nil {
		return nil, err
	}
	next, bid, extended, err := AcceptBid(sale.Config, sale.State, BidInput{
		Bidder:          bidder,
		Amount:          amount,
		Available:       available,
		TreasuryBalance: pooled,
		Now:             now,
	})
	if err != nil {
		return nil, err
	}
	if err := e.custody.Transfer(bidder, treasury, amount); err != nil {
		return nil, transferFailed(err)
	}
	if err := e.state.FairLaunchSalePut(&Sale{Config: sale.Config, State: next}, bid); err != nil {
		if revertErr := e.custody.Transfer(treasury, bidder, amount); revertErr != nil {
			return nil, fmt.Errorf("persist bid: %w (refund failed: %v)", err, revertErr)
		}
		return nil, fmt.Errorf("persist bid: %w", err)
	}
	e.emit(BidAcceptedEvent(bid, next))
	if extended {
		e.emit(DeadlineExtendedEvent(code, sale.State.PhaseOneEnd, next.PhaseOneEnd, now))
	}
	return &BidReceipt{Bid: bid.Clone(), PhaseOneEnd: next.PhaseOneEnd, Extended: extended}, nil
}

// RestartPhaseTwo re-opens bidding on a sale whose lottery window lapsed.
func (e *Engine) RestartPhaseTwo(code string) (*SaleState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()

	sale, err := e.loadSale(code)
	if err != nil {
		return nil, err
	}
	now := e.now()
	next, err := RestartPhaseTwo(sale.Config, sale.State, now)
	if err != nil {
		return nil, err
	}
	if err := e.state.FairLaunchSalePut(&Sale{Config: sale.Config, State: next}); err != nil {
		return nil, err
	}
	e.emit(BiddingRestartedEvent(code, next, now))
	return next.Clone(), nil
}

func (e *Engine) pendingBitmap(code string, st *SaleState) (*Bitmap, error) {
	bm, ok, err := e.state.FairLaunchBitmapGet(code)
	if err != nil {
		return nil, err
	}
	if !ok || bm == nil || bm.Capacity() != st.BidsAccepted {
		return NewBitmap(st.BidsAccepted), nil
	}
	return bm, nil
}

// UpdateLotteryStrip stores part of the lottery bitmap without sealing it and
// returns the number of winners marked so far.
func (e *Engine) UpdateLotteryStrip(code string, offset uint64, strip []byte) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return 0, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()

	sale, err := e.loadSale(code)
	if err != nil {
		return 0, err
	}
	if sale.State.LotterySealed {
		return 0, ErrAlreadySealed
	}
	now := e.now()
	if CurrentPhase(sale.Config, sale.State, now) == PhaseBidding {
		return 0, ErrBiddingOpen
	}
	bm, err := e.pendingBitmap(code, sale.State)
	if err != nil {
		return 0, err
	}
	if err := bm.WriteStrip(offset, strip); err != nil {
		return 0, err
	}
	if err := e.state.FairLaunchBitmapPut(code, bm); err != nil {
		return 0, err
	}
	ones := bm.Ones()
	e.emit(LotteryUpdatedEvent(code, offset, ones, now))
	return ones, nil
}

// SealLottery seals the sale with a complete bitmap and starts settlement.
func (e *Engine) SealLottery(code string, bm *Bitmap) (*SaleState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()
	return e.seal(code, bm)
}

// SealPendingLottery seals the sale with the bitmap assembled from strips.
func (e *Engine) SealPendingLottery(code string) (*SaleState, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()

	sale, err := e.loadSale(code)
	if err != nil {
		return nil, err
	}
	bm, err := e.pendingBitmap(code, sale.State)
	if err != nil {
		return nil, err
	}
	return e.seal(code, bm)
}

func (e *Engine) seal(code string, bm *Bitmap) (*SaleState, error) {
	sale, err := e.loadSale(code)
	if err != nil {
		return nil, err
	}
	now := e.now()
	next, err := Seal(sale.Config, sale.State, bm, now)
	if err != nil {
		return nil, err
	}
	if err := e.state.FairLaunchBitmapPut(code, bm); err != nil {
		return nil, err
	}
	if err := e.state.FairLaunchSalePut(&Sale{Config: sale.Config, State: next}); err != nil {
		return nil, err
	}
	e.emit(LotterySealedEvent(code, next, bm, now))
	return next.Clone(), nil
}

// ProcessTicket hands a winning ticket its token. Anyone may crank it.
func (e *Engine) ProcessTicket(code string, index uint64) (*Bid, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return nil, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()

	sale, err := e.loadSale(code)
	if err != nil {
		return nil, err
	}
	now := e.now()
	if CurrentPhase(sale.Config, sale.State, now) != PhaseSettlement {
		return nil, ErrNotYetSettleable
	}
	bid, ok, err := e.state.FairLaunchBidGet(code, index)
	if err != nil {
		return nil, err
	}
	if !ok || bid == nil {
		return nil, ErrBidNotFound
	}
	if bid.Status != TicketPending {
		return nil, ErrTicketProcessed
	}
	bm, ok, err := e.state.FairLaunchBitmapGet(code)
	if err != nil {
		return nil, err
	}
	if !ok || !bm.IsSet(index) {
		return nil, ErrNotWinner
	}
	winners, ok := checkedAdd(sale.State.WinnersProcessed, 1)
	if !ok {
		return nil, ErrNumericalOverflow
	}
	next := sale.State.Clone()
	next.WinnersProcessed = winners
	punched := bid.Clone()
	punched.Status = TicketPunched

	mint := sale.Config.TokenMint
	if err := e.tokens.Mint(mint, bid.Bidder, TicketsPerWinner); err != nil {
		return nil, transferFailed(err)
	}
	if err := e.state.FairLaunchSalePut(&Sale{Config: sale.Config, State: next}, punched); err != nil {
		if burnErr := e.tokens.Burn(mint, bid.Bidder, TicketsPerWinner); burnErr != nil {
			return nil, fmt.Errorf("persist ticket: %w (burn failed: %v)", err, burnErr)
		}
		return nil, fmt.Errorf("persist ticket: %w", err)
	}
	e.emit(TicketPunchedEvent(punched, next, now))
	return punched.Clone(), nil
}

func (e *Engine) quote(sale *Sale, now int64) (uint64, *SaleState, error) {
	supply, err := e.tokens.TotalSupply(sale.Config.TokenMint)
	if err != nil {
		return 0, nil, err
	}
	balance, err := e.custody.BalanceOf(TreasuryAddress(sale.Config.Code))
	if err != nil {
		return 0, nil, err
	}
	return ComputeWithdrawable(sale.Config, sale.State, WithdrawInput{
		Now:             now,
		TokenSupply:     supply,
		TreasuryBalance: balance,
	})
}

// Withdrawable quotes the current withdrawal allowance without recording the
// treasury snapshot.
func (e *Engine) Withdrawable(code string) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()

	sale, err := e.loadSale(code)
	if err != nil {
		return 0, err
	}
	amount, _, err := e.quote(sale, e.now())
	return amount, err
}

// Withdraw pays the issuer the amount the vesting schedule allows and records
// the treasury snapshot on first use. Every winning ticket must be punched
// first so the token supply reflects the finished distribution.
func (e *Engine) Withdraw(code string, caller common.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return 0, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()

	sale, err := e.loadSale(code)
	if err != nil {
		return 0, err
	}
	if caller != sale.Config.Authority {
		return 0, ErrUnauthorized
	}
	now := e.now()
	if CurrentPhase(sale.Config, sale.State, now) != PhaseSettlement {
		return 0, ErrNotYetSettleable
	}
	if sale.State.WinnersProcessed < sale.State.BitmapOnes {
		return 0, ErrTicketsOutstanding
	}
	amount, next, err := e.quote(sale, now)
	if err != nil {
		return 0, err
	}
	treasury := TreasuryAddress(code)
	if amount > 0 {
		if err := e.custody.Transfer(treasury, caller, amount); err != nil {
			return 0, transferFailed(err)
		}
	}
	if err := e.state.FairLaunchSalePut(&Sale{Config: sale.Config, State: next}); err != nil {
		if amount > 0 {
			if revertErr := e.custody.Transfer(caller, treasury, amount); revertErr != nil {
				return 0, fmt.Errorf("persist withdrawal: %w (revert failed: %v)", err, revertErr)
			}
		}
		return 0, fmt.Errorf("persist withdrawal: %w", err)
	}
	e.emit(TreasuryWithdrawnEvent(code, caller.Hex(), amount, next, now))
	return amount, nil
}

// ClaimAntiRugRefund burns one sale token from holder and pays out their
// slice of the locked reserve after the self destruct date.
func (e *Engine) ClaimAntiRugRefund(code string, holder common.Address) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	if err := nativecommon.Guard(e.pauses, ModuleName); err != nil {
		return 0, err
	}
	code = normalizeCode(code)
	unlock := e.lock(code)
	defer unlock()

	sale, err := e.loadSale(code)
	if err != nil {
		return 0, err
	}
	now := e.now()
	if CurrentPhase(sale.Config, sale.State, now) != PhaseSettlement {
		return 0, ErrNotYetSettleable
	}
	slice, err := AntiRugRefundAmount(sale.Config, sale.State, now)
	if err != nil {
		return 0, err
	}
	refunds, ok := checkedAdd(sale.State.RefundsProcessed, 1)
	if !ok {
		return 0, ErrWithdrawOverflow
	}
	next := sale.State.Clone()
	next.RefundsProcessed = refunds

	mint := sale.Config.TokenMint
	treasury := TreasuryAddress(code)
	if err := e.tokens.Burn(mint, holder, TicketsPerWinner); err != nil {
		return 0, transferFailed(err)
	}
	if slice > 0 {
		if err := e.custody.Transfer(treasury, holder, slice); err != nil {
			if mintErr := e.tokens.Mint(mint, holder, TicketsPerWinner); mintErr != nil {
				return 0, fmt.Errorf("%w: %v (re-mint failed: %v)", ErrTransferFailed, err, mintErr)
			}
			return 0, transferFailed(err)
		}
	}
	if err := e.state.FairLaunchSalePut(&Sale{Config: sale.Config, State: next}); err != nil {
		if slice > 0 {
			if revertErr := e.custody.Transfer(holder, treasury, slice); revertErr != nil {
				return 0, fmt.Errorf("persist refund: %w (revert failed: %v)", err, revertErr)
			}
		}
		if mintErr := e.tokens.Mint(mint, holder, TicketsPerWinner); mintErr != nil {
			return 0, fmt.Errorf("persist refund: %w (re-mint failed: %v)", err, mintErr)
		}
		return 0, fmt.Errorf("persist refund: %w", err)
	}
	e.emit(AntiRugRefundedEvent(code, holder.Hex(), slice, next, now))
	return slice, nil
}
