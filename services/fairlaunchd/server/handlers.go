package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"fairlaunch/config"
	"fairlaunch/crypto"
	"fairlaunch/native/fairlaunch"
	salemetrics "fairlaunch/observability/metrics"
	"fairlaunch/services/fairlaunchd/journal"
	"fairlaunch/services/fairlaunchd/middleware"
)

const maxBodyBytes = 1 << 20

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return badRequest("request body required")
		}
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func saleCode(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "code"))
}

func indexParam(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, badRequest("invalid ticket index " + strconv.Quote(raw))
	}
	return index, nil
}

func parseAccount(field, raw string) (common.Address, error) {
	addr, err := crypto.ParseAccount(raw)
	if err != nil {
		return common.Address{}, badRequest(field + ": " + err.Error())
	}
	return addr, nil
}

// callerFrom resolves the account acting on a request. With authentication
// on, the token subject is the caller and a body value must name the same
// account; with it off, the body value is taken as given.
func (s *Server) callerFrom(r *http.Request, field, raw string) (common.Address, error) {
	subject, ok := middleware.SubjectFrom(r.Context())
	if !ok {
		if s.cfg.Auth.Enabled() {
			return common.Address{}, fairlaunch.ErrUnauthorized
		}
		return parseAccount(field, raw)
	}
	caller, err := crypto.ParseAccount(subject)
	if err != nil {
		return common.Address{}, fairlaunch.ErrUnauthorized
	}
	if strings.TrimSpace(raw) != "" {
		claimed, err := parseAccount(field, raw)
		if err != nil {
			return common.Address{}, err
		}
		if claimed != caller {
			return common.Address{}, fairlaunch.ErrUnauthorized
		}
	}
	return caller, nil
}

func decodeBits(raw string) ([]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "0x") && !strings.HasPrefix(trimmed, "0X") {
		trimmed = "0x" + trimmed
	}
	bits, err := hexutil.Decode(trimmed)
	if err != nil {
		return nil, badRequest("bits: " + err.Error())
	}
	return bits, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	codes, err := s.engine.Sales()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": codes})
}

func (s *Server) handleCreateSale(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, badRequest("read body: "+err.Error()))
		return
	}
	cfg, err := config.ParseManifest(body)
	if err != nil {
		s.writeError(w, badRequest(err.Error()))
		return
	}
	if _, err := s.engine.CreateSale(cfg); err != nil {
		s.writeError(w, err)
		return
	}
	status, err := s.engine.Status(cfg.Code)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("sale created", "sale", cfg.Code, "authority", cfg.Authority.Hex())
	writeJSON(w, http.StatusCreated, status)
}

type saleView struct {
	*fairlaunch.Status
	TreasuryAccount string `json:"treasuryAccount"`
	TreasuryBalance uint64 `json:"treasuryBalance"`
}

func (s *Server) handleGetSale(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(saleCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.ledger.BalanceOf(status.Treasury)
	if err != nil {
		s.writeError(w, err)
		return
	}
	st := status.Sale.State
	salemetrics.Sales().Observe(salemetrics.SaleSnapshot{
		Code:             status.Sale.Config.Code,
		Phase:            status.Phase,
		BidsAccepted:     st.BidsAccepted,
		TotalRaised:      st.TotalRaised,
		Last:             st.Last,
		WinnersProcessed: st.WinnersProcessed,
		Treasury:         balance,
	})
	writeJSON(w, http.StatusOK, saleView{
		Status:          status,
		TreasuryAccount: crypto.FromCommon(status.Treasury).String(),
		TreasuryBalance: balance,
	})
}

type bidRequest struct {
	Bidder string `json:"bidder"`
	Amount uint64 `json:"amount"`
}

func (s *Server) handlePlaceBid(w http.ResponseWriter, r *http.Request) {
	var req bidRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	bidder, err := s.callerFrom(r, "bidder", req.Bidder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	receipt, err := s.engine.PlaceBid(saleCode(r), bidder, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (s *Server) handleGetBid(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	bid, err := s.engine.Bid(saleCode(r), index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

type stripRequest struct {
	Offset uint64 `json:"offset"`
	Bits   string `json:"bits"`
}

func (s *Server) handleLotteryStrip(w http.ResponseWriter, r *http.Request) {
	var req stripRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	strip, err := decodeBits(req.Bits)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ones, err := s.engine.UpdateLotteryStrip(saleCode(r), req.Offset, strip)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"ones": ones})
}

type sealRequest struct {
	Bits string `json:"bits,omitempty"`
}

func (s *Server) handleSeal(w http.ResponseWriter, r *http.Request) {
	var req sealRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	code := saleCode(r)
	var (
		state *fairlaunch.SaleState
		err   error
	)
	if strings.TrimSpace(req.Bits) == "" {
		state, err = s.engine.SealPendingLottery(code)
	} else {
		var sale *fairlaunch.Sale
		sale, err = s.engine.Sale(code)
		if err == nil {
			var bm *fairlaunch.Bitmap
			bm, err = fairlaunch.ParseBitmapHex(sale.State.BidsAccepted, req.Bits)
			if err != nil {
				if fairlaunch.KindOf(err) == 0 {
					err = badRequest("bits: " + err.Error())
				}
				s.writeError(w, err)
				return
			}
			state, err = s.engine.SealLottery(code, bm)
		}
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.RestartPhaseTwo(saleCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleProcessTicket(w http.ResponseWriter, r *http.Request) {
	index, err := indexParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	bid, err := s.engine.ProcessTicket(saleCode(r), index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bid)
}

func (s *Server) handleWithdrawable(w http.ResponseWriter, r *http.Request) {
	amount, err := s.engine.Withdrawable(saleCode(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

type withdrawRequest struct {
	Authority string `json:"authority"`
}

// handleWithdraw pays the caller named by the token subject.
func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	caller, err := s.callerFrom(r, "authority", req.Authority)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := s.engine.Withdraw(saleCode(r), caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("treasury withdrawn", "sale", saleCode(r), "amount", amount)
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

type refundRequest struct {
	Holder string `json:"holder"`
}

func (s *Server) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	holder, err := s.callerFrom(r, "holder", req.Holder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	amount, err := s.engine.ClaimAntiRugRefund(saleCode(r), holder)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		s.writeError(w, unavailable("event journal disabled"))
		return
	}
	code := saleCode(r)
	if _, err := s.engine.Sale(code); err != nil {
		s.writeError(w, err)
		return
	}
	q := journal.Query{Sale: code, Type: r.URL.Query().Get("type")}
	if raw := r.URL.Query().Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, badRequest("after must be an unsigned integer"))
			return
		}
		q.AfterSeq = after
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.writeError(w, badRequest("limit must be a positive integer"))
			return
		}
		q.Limit = limit
	}
	entries, err := s.cfg.Journal.List(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}

type accountView struct {
	Account string  `json:"account"`
	Hex     string  `json:"hex"`
	Native  uint64  `json:"native"`
	Token   string  `json:"token,omitempty"`
	Held    *uint64 `json:"held,omitempty"`
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount("account", chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	native, err := s.ledger.BalanceOf(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	view := accountView{Account: crypto.FromCommon(addr).String(), Hex: addr.Hex(), Native: native}
	if token := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("token"))); token != "" {
		held, err := s.ledger.TokenBalance(token, addr)
		if err != nil {
			s.writeError(w, err)
			return
		}
		view.Token = token
		view.Held = &held
	}
	writeJSON(w, http.StatusOK, view)
}

type fundRequest struct {
	Amount uint64 `json:"amount"`
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAccount("account", chi.URLParam(r, "addr"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req fundRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.ledger.Credit(addr, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"native": balance})
}

type pauseRequest struct {
	Paused bool `json:"paused"`
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	module := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "module")))
	var req pauseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	s.cfg.Pauses.Set(module, req.Paused)
	s.logger.Warn("module pause toggled", "module", module, "paused", req.Paused)
	writeJSON(w, http.StatusOK, map[string]any{"module": module, "paused": s.cfg.Pauses.IsPaused(module)})
}
