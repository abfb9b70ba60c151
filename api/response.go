package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/blockberries/pollberry/engine"
	"github.com/blockberries/pollberry/processor"
	"github.com/blockberries/pollberry/types"
)

// errorResponse is the body of every non-2xx reply. Code and Kind are set for
// program rejections only.
type errorResponse struct {
	Error string `json:"error"`
	Code  uint32 `json:"code,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

// writeJSON writes data as a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// writeError is a shortcut for returning a plain error message
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps a submit or lookup error to an HTTP status
func statusFor(err error) int {
	if processor.IsRejection(err) {
		switch processor.Classify(err) {
		case processor.KindValidation:
			return http.StatusBadRequest
		case processor.KindStateConflict:
			return http.StatusConflict
		case processor.KindIntegrity:
			return http.StatusUnprocessableEntity
		}
	}

	switch {
	case errors.Is(err, engine.ErrDuplicateTx):
		return http.StatusConflict
	case errors.Is(err, engine.ErrUnknownProgram),
		errors.Is(err, types.ErrInvalidTransaction),
		errors.Is(err, types.ErrTxDataTooLarge),
		errors.Is(err, types.ErrMissingSignature),
		errors.Is(err, types.ErrInvalidTxSignature):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNotStarted),
		errors.Is(err, engine.ErrHalted),
		errors.Is(err, engine.ErrStoreCommit):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeSubmitError reports err with its program code and kind when it has one
func writeSubmitError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	if processor.IsRejection(err) {
		resp.Code = processor.ErrorCode(err)
		resp.Kind = processor.Classify(err).String()
	}
	writeJSON(w, statusFor(err), resp)
}
