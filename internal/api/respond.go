package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"dragonfly/internal/invoice"
	"dragonfly/internal/logger"
)

const (
	codeInternal = "INTERNAL_ERROR"
	codeNotFound = "ROUTE_NOT_FOUND"
)

type errorReply struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var kindStatus = map[invoice.Kind]int{
	invoice.KindNotAuthenticated: http.StatusUnauthorized,
	invoice.KindForbidden:        http.StatusForbidden,
	invoice.KindNotFound:         http.StatusNotFound,
	invoice.KindValidation:       http.StatusBadRequest,
	invoice.KindVersionConflict:  http.StatusConflict,
}

// Messages for bare sentinels that reach the adapter without engine context.
var kindMessage = map[invoice.Kind]string{
	invoice.KindNotAuthenticated: "You must be logged in.",
	invoice.KindForbidden:        "You are not allowed to do that.",
	invoice.KindNotFound:         "Not found.",
	invoice.KindValidation:       "Invalid request.",
	invoice.KindVersionConflict:  "Invoice was modified. Please refresh and try again.",
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithOK(w http.ResponseWriter, payload interface{}) {
	respondWithJSON(w, http.StatusOK, payload)
}

// respondWithError maps err onto its HTTP status. Errors outside the engine
// taxonomy are logged and hidden behind a 500.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	kind, ok := invoice.KindOf(err)
	if !ok {
		logger.FromContext(r.Context()).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("Unhandled error")
		respondWithJSON(w, http.StatusInternalServerError, errorReply{
			Code:    codeInternal,
			Message: "Internal server error.",
		})
		return
	}

	msg := kindMessage[kind]
	var ie *invoice.Error
	if errors.As(err, &ie) && ie.Message != "" {
		msg = ie.Message
	}
	respondWithJSON(w, kindStatus[kind], errorReply{Code: string(kind), Message: msg})
}

// respondWithUserError reports a malformed request.
func respondWithUserError(w http.ResponseWriter, msg string) {
	respondWithJSON(w, http.StatusBadRequest, errorReply{
		Code:    string(invoice.KindValidation),
		Message: msg,
	})
}
