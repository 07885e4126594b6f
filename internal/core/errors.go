package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy shared by every component. Callers use errors.Is on these and
// errors.As on *HTTPError.
var (
	// ErrInvalidInput is returned before any network call when input is unusable.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransientNetwork wraps timeouts and connection failures; safe to retry.
	ErrTransientNetwork = errors.New("transient network error")
	// ErrMissingField is returned when a 2xx payload lacks a required field.
	ErrMissingField = errors.New("missing field in response")
	// ErrMalformedResponse is returned when a 2xx payload cannot be used.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrGeneration is returned when the generation endpoint rejects a request.
	ErrGeneration = errors.New("generation failed")
	// ErrSynthesisFailure is returned when primary and fallback synthesis both fail.
	ErrSynthesisFailure = errors.New("synthesis failed")
	// ErrDemoMode is returned when no API key is configured.
	ErrDemoMode = errors.New("API key not configured, running in demo mode")
)

const errFmtHTTP = "%s returned %d %s: %v"

// HTTPError is a non-2xx response from one of the hosted endpoints. Detail holds
// the decoded JSON body when it parses, otherwise the raw text.
type HTTPError struct {
	Endpoint   string
	StatusCode int
	Reason     string
	Detail     any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf(errFmtHTTP, e.Endpoint, e.StatusCode, e.Reason, e.Detail)
}

// NewHTTPError builds an HTTPError from a status line and raw body.
func NewHTTPError(endpoint string, statusCode int, status string, body []byte) *HTTPError {
	return &HTTPError{
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Reason:     reasonPhrase(statusCode, status),
		Detail:     DecodeDetail(body),
	}
}

// DecodeDetail returns the JSON-decoded body, or the raw text if it is not JSON.
func DecodeDetail(body []byte) any {
	var decoded any

	err := json.Unmarshal(body, &decoded)
	if err != nil {
		return string(body)
	}

	return decoded
}

// reasonPhrase strips the numeric code from an http.Response.Status value.
func reasonPhrase(statusCode int, status string) string {
	return strings.TrimSpace(strings.TrimPrefix(status, fmt.Sprint(statusCode)))
}
