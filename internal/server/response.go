package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/objex-dev/objex/internal/exchange"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Status: status, Error: msg})
}

// statusFor maps boundary errors onto HTTP statuses.
func statusFor(err error) int {
	var validationErrs validator.ValidationErrors
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &validationErrs):
		return http.StatusBadRequest
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, exchange.ErrChannelExists):
		return http.StatusConflict
	case errors.Is(err, exchange.ErrChannelNotFound), errors.Is(err, errMissingSubscriberID):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrWrongAnswer), errors.Is(err, exchange.ErrUnknownSubscriber):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func writeExchangeError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), errorMessage(err))
}

func errorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(validationErrs))
	for _, fe := range validationErrs {
		msgs = append(msgs, fe.Field()+" is "+fe.Tag())
	}
	return strings.Join(msgs, ", ")
}
