// Roomwatch - Live Chat Room Monitoring
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/roomwatch

package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/roomwatch/internal/logging"
	"github.com/tomtom215/roomwatch/internal/middleware"
	"github.com/tomtom215/roomwatch/internal/models"
	"github.com/tomtom215/roomwatch/internal/validation"
)

// maxBodyBytes caps request bodies; the largest is a list of session names.
const maxBodyBytes = 1 << 20

// sanitizeLogValue strips control characters so request data cannot forge
// log lines.
func sanitizeLogValue(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, response *models.APIResponse) {
	response.Metadata.Timestamp = time.Now()
	response.Metadata.RequestID = middleware.GetRequestID(r.Context())

	data, err := json.Marshal(response)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondOK(w http.ResponseWriter, r *http.Request, data interface{}) {
	respondJSON(w, r, http.StatusOK, &models.APIResponse{Status: "success", Data: data})
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, err error) {
	if err != nil {
		logging.Ctx(r.Context()).Warn().
			Str("code", code).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
	}
	respondJSON(w, r, status, &models.APIResponse{
		Status: "error",
		Error:  &models.APIError{Code: code, Message: message},
	})
}

// decodeAndValidate reads a JSON body into v and runs struct validation.
// An empty body leaves v at its zero value before validation.
func decodeAndValidate(r *http.Request, v interface{}) *models.APIError {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return &models.APIError{Code: codeValidation, Message: "could not read request body"}
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return &models.APIError{Code: codeValidation, Message: "invalid JSON body"}
		}
	}
	return validateRequest(v)
}

// validateRequest converts validator failures to an APIError with one
// detail entry per field.
func validateRequest(v interface{}) *models.APIError {
	err := validation.ValidateStruct(v)
	if err == nil {
		return nil
	}
	apiErr := &models.APIError{Code: codeValidation, Message: err.Error()}

	var reqErr *validation.RequestValidationError
	if errors.As(err, &reqErr) {
		apiErr.Details = make(map[string]interface{}, len(reqErr.Errors))
		for _, fe := range reqErr.Errors {
			apiErr.Details[fe.Field] = fe.Message
		}
	}
	return apiErr
}
