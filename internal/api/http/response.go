package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"chipereganyu-settlement/internal/domain"
	"chipereganyu-settlement/internal/logger"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeStatusError(w http.ResponseWriter, status int, message, kind string) {
	writeJSON(w, status, envelope{Success: false, Error: message, Kind: kind})
}

// writeError renders a domain error. Anything without a kind is internal and
// its message is not exposed.
func writeError(w http.ResponseWriter, err error) {
	writeErrorWithData(w, err, nil)
}

// writeErrorWithData also returns the record the failed operation produced,
// e.g. a settlement the rail refused.
func writeErrorWithData(w http.ResponseWriter, err error, data any) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		logger.Error("Unhandled error", "error", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "internal error", Kind: string(domain.KindInternal), Data: data})
		return
	}
	status := statusForKind(derr.Kind)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "kind", derr.Kind, "error", err)
	}
	writeJSON(w, status, envelope{Error: derr.Error(), Kind: string(derr.Kind), Data: data})
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidAmount, domain.KindInvalidIntent, domain.KindUnsupportedOperator,
		domain.KindUnsupportedBank, domain.KindInvalidPhoneNumber, domain.KindInvalidReason,
		domain.KindMissingNotes:
		return http.StatusBadRequest
	case domain.KindNotAuthorized:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNotRetryable, domain.KindDuplicateDispute, domain.KindAlreadyResolved,
		domain.KindInvalidTransition, domain.KindInsufficientReserve:
		return http.StatusConflict
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindGatewayRejected:
		return http.StatusBadGateway
	case domain.KindGatewayTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.WrapError(domain.KindInvalidIntent, err, "malformed request body")
	}
	return nil
}
