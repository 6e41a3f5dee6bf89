package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"fairlaunch/native/bank"
	nativecommon "fairlaunch/native/common"
	"fairlaunch/native/fairlaunch"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type requestError struct {
	status  int
	code    string
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(message string) error {
	return &requestError{status: http.StatusBadRequest, code: "BAD_REQUEST", message: message}
}

func unavailable(message string) error {
	return &requestError{status: http.StatusServiceUnavailable, code: "UNAVAILABLE", message: message}
}

// statusFor maps an engine rejection onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fairlaunch.ErrSaleNotFound), errors.Is(err, fairlaunch.ErrBidNotFound):
		return http.StatusNotFound
	case errors.Is(err, fairlaunch.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, fairlaunch.ErrSaleExists), errors.Is(err, fairlaunch.ErrMintInUse):
		return http.StatusConflict
	case errors.Is(err, fairlaunch.ErrTransferFailed):
		return http.StatusInternalServerError
	case errors.Is(err, fairlaunch.ErrInsufficientFunds),
		errors.Is(err, fairlaunch.ErrNumericalOverflow),
		errors.Is(err, fairlaunch.ErrStripOutOfRange),
		errors.Is(err, fairlaunch.ErrCardinalityMismatch):
		return http.StatusUnprocessableEntity
	}
	switch fairlaunch.KindOf(err) {
	case fairlaunch.KindConfig:
		return http.StatusUnprocessableEntity
	case fairlaunch.KindBid, fairlaunch.KindLottery, fairlaunch.KindWithdraw, fairlaunch.KindSettlement:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		writeJSON(w, reqErr.status, errorResponse{Code: reqErr.code, Message: reqErr.message})
	case errors.Is(err, nativecommon.ErrModulePaused):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Code: "MODULE_PAUSED", Message: err.Error()})
	case errors.Is(err, bank.ErrInvalidAmount), errors.Is(err, bank.ErrBalanceOverflow):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Code: "INVALID_AMOUNT", Message: err.Error()})
	default:
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("request failed", "error", err)
		}
		writeJSON(w, status, errorResponse{Code: fairlaunch.Code(err), Message: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
