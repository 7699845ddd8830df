package httpapi

import (
	"errors"
	"net/http"

	"github.com/hmaung/salesync/internal/errs"
)

// errorResponse is the standard error payload for the API.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }
func forbidden(w http.ResponseWriter, msg string) {
	writeErr(w, http.StatusForbidden, msg, "forbidden")
}
func unprocessable(w http.ResponseWriter, msg, code string) {
	writeErr(w, http.StatusUnprocessableEntity, msg, code)
}

// writeDomainErr maps sentinel errors onto HTTP statuses; anything unmapped
// is a 500 with a generic body so internals never leak.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrForbidden):
		forbidden(w, err.Error())
	case errors.Is(err, errs.ErrInvalid), errors.Is(err, errs.ErrInvalidWindow):
		badRequest(w, err.Error())
	case errors.Is(err, errs.ErrNotConnected):
		unprocessable(w, err.Error(), "not_connected")
	case errors.Is(err, errs.ErrUnprocessable):
		unprocessable(w, err.Error(), "validation_error")
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, err.Error(), "conflict")
	default:
		writeErr(w, http.StatusInternalServerError, "internal error", "")
	}
}
