package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"fairlaunch/core/events"
	salestate "fairlaunch/core/state"
	"fairlaunch/crypto"
	"fairlaunch/native/bank"
	nativecommon "fairlaunch/native/common"
	"fairlaunch/native/fairlaunch"
	"fairlaunch/services/fairlaunchd/journal"
	"fairlaunch/services/fairlaunchd/middleware"
	"fairlaunch/storage"
)

const testSecret = "server-test-secret"

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

type harness struct {
	t       *testing.T
	handler http.Handler
	ledger  *bank.Ledger
	pauses  *nativecommon.PauseSet
	now     *int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	manager := salestate.NewManager(db)
	ledger, err := bank.NewLedger(manager, "")
	require.NoError(t, err)

	jdb, err := journal.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	j, err := journal.New(jdb, nil)
	require.NoError(t, err)

	now := int64(1_000)
	pauses := nativecommon.NewPauseSet()
	engine := fairlaunch.NewEngine()
	engine.SetState(manager)
	engine.SetCustody(ledger)
	engine.SetTokens(ledger)
	engine.SetPauses(pauses)
	engine.SetNowFunc(func() int64 { return now })
	engine.SetEmitter(events.MultiEmitter{j, events.NewBroadcaster(8)})

	srv, err := New(Config{
		Engine:       engine,
		Ledger:       ledger,
		Journal:      j,
		Pauses:       pauses,
		EnableFaucet: true,
		Auth: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    true,
			HMACSecret: testSecret,
		}, nil),
	})
	require.NoError(t, err)
	return &harness{t: t, handler: srv.Handler(), ledger: ledger, pauses: pauses, now: &now}
}

func (h *harness) token(subject string, scopes ...string) string {
	claims := jwt.MapClaims{"scope": scopes, "exp": time.Now().Add(time.Hour).Unix()}
	if subject != "" {
		claims["sub"] = subject
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(h.t, err)
	return signed
}

func (h *harness) do(method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res := httptest.NewRecorder()
	h.handler.ServeHTTP(res, req)
	decoded := map[string]any{}
	_ = json.Unmarshal(res.Body.Bytes(), &decoded)
	return res, decoded
}

func saleManifest() map[string]any {
	return map[string]any{
		"code":            "LAUNCH",
		"authority":       crypto.FromCommon(authority).String(),
		"tokenMint":       "LNCH",
		"priceRangeStart": 100,
		"priceRangeEnd":   1100,
		"tickSize":        10,
		"tokenSupply":     2,
		"phaseOneStart":   1000,
		"phaseOneEnd":     2000,
		"phaseTwoEnd":     3000,
		"lotteryDuration": "60s",
	}
}

func (h *harness) createSale() {
	h.t.Helper()
	res, body := h.do(http.MethodPost, "/v1/sales", h.token("", middleware.ScopeSalesAdmin), saleManifest())
	require.Equal(h.t, http.StatusCreated, res.Code, body)
	require.Equal(h.t, "bidding", body["phase"])
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	admin := h.token("", middleware.ScopeSalesAdmin)
	h.createSale()

	res, body := h.do(http.MethodPost, "/v1/accounts/"+alice.Hex()+"/fund", admin, map[string]any{"amount": 1000})
	require.Equal(t, http.StatusOK, res.Code, body)
	require.EqualValues(t, 1000, body["native"])

	bidder := h.token(alice.Hex(), middleware.ScopeBidsPlace)
	for _, amount := range []uint64{150, 250} {
		res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", bidder, map[string]any{"bidder": alice.Hex(), "amount": amount})
		require.Equal(t, http.StatusCreated, res.Code, body)
	}
	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", bidder, map[string]any{"amount": 200})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "BID_TOO_LOW", body["code"])

	res, body = h.do(http.MethodGet, "/v1/sales/LAUNCH", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.EqualValues(t, 400, body["treasuryBalance"])

	res, body = h.do(http.MethodGet, "/v1/sales/LAUNCH/bids/1", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.EqualValues(t, 250, body["amount"])

	*h.now = 5_000
	res, _ = h.do(http.MethodPost, "/v1/sales/LAUNCH/lottery/seal", "", map[string]any{"bits": "0xc0"})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	lottery := h.token("", middleware.ScopeLotteryWrite)
	res, body = h.do(http.MethodPut, "/v1/sales/LAUNCH/lottery/strips", lottery, map[string]any{"offset": 0, "bits": "c0"})
	require.Equal(t, http.StatusOK, res.Code, body)
	require.EqualValues(t, 2, body["ones"])
	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/lottery/seal", lottery, nil)
	require.Equal(t, http.StatusOK, res.Code, body)
	require.Equal(t, true, body["lotterySealed"])

	treasury := h.token(authority.Hex(), middleware.ScopeTreasuryWithdraw)
	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/withdrawals", treasury, nil)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "TICKETS_OUTSTANDING", body["code"])

	for _, index := range []string{"0", "1"} {
		res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/tickets/"+index+"/process", "", nil)
		require.Equal(t, http.StatusOK, res.Code, body)
	}
	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/tickets/0/process", "", nil)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "TICKET_PROCESSED", body["code"])

	res, body = h.do(http.MethodGet, "/v1/sales/LAUNCH/withdrawable", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.EqualValues(t, 300, body["amount"])

	intruder := h.token(alice.Hex(), middleware.ScopeTreasuryWithdraw)
	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/withdrawals", intruder, nil)
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "UNAUTHORIZED", body["code"])

	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/withdrawals", treasury, nil)
	require.Equal(t, http.StatusOK, res.Code, body)
	require.EqualValues(t, 300, body["amount"])

	res, body = h.do(http.MethodGet, "/v1/accounts/"+crypto.FromCommon(alice).String()+"?token=lnch", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.EqualValues(t, 600, body["native"])
	require.EqualValues(t, 2, body["held"])

	res, body = h.do(http.MethodGet, "/v1/sales/LAUNCH/events?type="+fairlaunch.EventTypeBidAccepted, "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Len(t, body["events"], 2)
}

func TestErrorMapping(t *testing.T) {
	h := newHarness(t)
	h.createSale()

	res, body := h.do(http.MethodPost, "/v1/sales", h.token("", middleware.ScopeSalesAdmin), saleManifest())
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "SALE_EXISTS", body["code"])

	bad := saleManifest()
	bad["code"] = "SHORT"
	res, body = h.do(http.MethodPost, "/v1/sales", h.token("", middleware.ScopeSalesAdmin), bad)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Equal(t, "INVALID_CODE", body["code"])

	res, body = h.do(http.MethodGet, "/v1/sales/NOSALE", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
	require.Equal(t, "SALE_NOT_FOUND", body["code"])

	bidder := h.token(alice.Hex(), middleware.ScopeBidsPlace)
	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", bidder, map[string]any{"bidder": "nope", "amount": 150})
	require.Equal(t, http.StatusBadRequest, res.Code)
	require.Equal(t, "BAD_REQUEST", body["code"])

	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", bidder, map[string]any{"bidder": alice.Hex(), "amount": 150})
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	require.Equal(t, "INSUFFICIENT_FUNDS", body["code"])

	res, _ = h.do(http.MethodGet, "/v1/sales/LAUNCH/bids/x", "", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res, body = h.do(http.MethodGet, "/v1/sales/LAUNCH/withdrawable", "", nil)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "NOT_YET_SETTLEABLE", body["code"])
}

func TestPauseBlocksMutations(t *testing.T) {
	h := newHarness(t)
	h.createSale()
	_, err := h.ledger.Credit(alice, 1_000)
	require.NoError(t, err)

	admin := h.token("", middleware.ScopeSalesAdmin)
	res, body := h.do(http.MethodPut, "/v1/admin/pauses/fairlaunch", admin, map[string]any{"paused": true})
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, true, body["paused"])

	bidder := h.token(alice.Hex(), middleware.ScopeBidsPlace)
	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", bidder, map[string]any{"bidder": alice.Hex(), "amount": 150})
	require.Equal(t, http.StatusServiceUnavailable, res.Code)
	require.Equal(t, "MODULE_PAUSED", body["code"])

	res, _ = h.do(http.MethodGet, "/v1/sales/LAUNCH", "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	h.do(http.MethodPut, "/v1/admin/pauses/fairlaunch", admin, map[string]any{"paused": false})
	res, _ = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", bidder, map[string]any{"bidder": alice.Hex(), "amount": 150})
	require.Equal(t, http.StatusCreated, res.Code)
}

func TestBidsRequireBidderToken(t *testing.T) {
	h := newHarness(t)
	h.createSale()
	_, err := h.ledger.Credit(alice, 1_000)
	require.NoError(t, err)
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")
	bid := map[string]any{"bidder": alice.Hex(), "amount": 150}

	res, body := h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", "", bid)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Equal(t, "UNAUTHENTICATED", body["code"])

	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", h.token(alice.Hex(), middleware.ScopeSalesAdmin), bid)
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "FORBIDDEN", body["code"])

	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", h.token(bob.Hex(), middleware.ScopeBidsPlace), bid)
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "UNAUTHORIZED", body["code"])

	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", h.token("", middleware.ScopeBidsPlace), bid)
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "UNAUTHORIZED", body["code"])

	native, err := h.ledger.BalanceOf(alice)
	require.NoError(t, err)
	require.EqualValues(t, 1_000, native)
	res, body = h.do(http.MethodGet, "/v1/sales/LAUNCH", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.EqualValues(t, 0, body["treasuryBalance"])

	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/bids", h.token(crypto.FromCommon(alice).String(), middleware.ScopeBidsPlace), bid)
	require.Equal(t, http.StatusCreated, res.Code, body)
	native, _ = h.ledger.BalanceOf(alice)
	require.EqualValues(t, 850, native)
}

func TestRestartRequiresAdmin(t *testing.T) {
	h := newHarness(t)
	h.createSale()

	res, body := h.do(http.MethodPost, "/v1/sales/LAUNCH/restart", "", nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Equal(t, "UNAUTHENTICATED", body["code"])

	res, _ = h.do(http.MethodPost, "/v1/sales/LAUNCH/restart", h.token(alice.Hex(), middleware.ScopeBidsPlace), nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/restart", h.token("", middleware.ScopeSalesAdmin), nil)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "RESTART_NOT_ALLOWED", body["code"])
}

func TestRefundsBindHolderToToken(t *testing.T) {
	h := newHarness(t)
	h.createSale()
	bob := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	res, _ := h.do(http.MethodPost, "/v1/sales/LAUNCH/refunds", "", map[string]any{"holder": alice.Hex()})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res, body := h.do(http.MethodPost, "/v1/sales/LAUNCH/refunds", h.token(bob.Hex(), middleware.ScopeRefundsClaim), map[string]any{"holder": alice.Hex()})
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Equal(t, "UNAUTHORIZED", body["code"])

	res, body = h.do(http.MethodPost, "/v1/sales/LAUNCH/refunds", h.token(alice.Hex(), middleware.ScopeRefundsClaim), map[string]any{"holder": alice.Hex()})
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "NOT_YET_SETTLEABLE", body["code"])
}

func TestSaleMintMustBeUnique(t *testing.T) {
	h := newHarness(t)
	h.createSale()
	admin := h.token("", middleware.ScopeSalesAdmin)

	shared := saleManifest()
	shared["code"] = "LAUNC2"
	res, body := h.do(http.MethodPost, "/v1/sales", admin, shared)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "MINT_IN_USE", body["code"])

	native := saleManifest()
	native["code"] = "LAUNC3"
	native["tokenMint"] = "native"
	res, body = h.do(http.MethodPost, "/v1/sales", admin, native)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Equal(t, "MINT_IN_USE", body["code"])

	res, body = h.do(http.MethodGet, "/v1/sales", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, []any{"LAUNCH"}, body["sales"])
}

func TestStatusMapping(t *testing.T) {
	cases := map[error]int{
		fairlaunch.ErrBidNotFound:         http.StatusNotFound,
		fairlaunch.ErrUnauthorized:        http.StatusForbidden,
		fairlaunch.ErrSaleExists:          http.StatusConflict,
		fairlaunch.ErrMintInUse:           http.StatusConflict,
		fairlaunch.ErrTickRemainder:       http.StatusUnprocessableEntity,
		fairlaunch.ErrCardinalityMismatch: http.StatusUnprocessableEntity,
		fairlaunch.ErrAlreadySealed:       http.StatusConflict,
		fairlaunch.ErrTransferFailed:      http.StatusInternalServerError,
		fmt.Errorf("disk on fire"):        http.StatusInternalServerError,
	}
	for err, want := range cases {
		require.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	res, body := h.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, "ok", body["status"])
}
