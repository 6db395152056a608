package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"casino/domain/entities"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("Failed to write response body")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeValidationError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: "Validation failed", Code: "invalid_request"}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		resp.Details = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			resp.Details[fe.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", fe.Tag())
		}
	}
	writeJSON(w, http.StatusBadRequest, resp)
}

// writeDomainError maps engine and ledger errors to HTTP replies. Rejections
// keep their reason code; anything unexpected is logged and hidden.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *entities.ValidationError
	var fundsErr *entities.InsufficientFundsError
	var stateErr *entities.StateError

	switch {
	case errors.As(err, &validationErr):
		writeError(w, statusForRejection(validationErr.Code), string(validationErr.Code), validationErr.Message)
	case errors.As(err, &fundsErr):
		writeError(w, http.StatusUnprocessableEntity, string(entities.RejectInsufficientBalance), "insufficient balance")
	case errors.Is(err, entities.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &stateErr):
		writeError(w, http.StatusConflict, "invalid_state", stateErr.Error())
	default:
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func statusForRejection(code entities.RejectionCode) int {
	switch code {
	case entities.RejectUnknownGame, entities.RejectUnknownRoom:
		return http.StatusNotFound
	case entities.RejectRoundNotActive, entities.RejectBettingClosed, entities.RejectRoundNotSettled:
		return http.StatusConflict
	case entities.RejectCooldown:
		return http.StatusTooManyRequests
	case entities.RejectInsufficientBalance:
		return http.StatusUnprocessableEntity
	case entities.RejectNotInRoom:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
