package linear

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorType classifies Linear API errors for retry handling.
type ErrorType int

const (
	ErrRateLimit         ErrorType = iota // HTTP 429 or RATELIMITED
	ErrOverloaded                         // HTTP 5xx
	ErrAuth                               // HTTP 401, 403
	ErrMalformedResponse                  // JSON parse failure
	ErrTimeout                            // transport failure
	ErrGraphQL                            // errors[] in a 200 response
	ErrUnknown
)

// String returns the name of the error type.
func (e ErrorType) String() string {
	switch e {
	case ErrRateLimit:
		return "rate_limit"
	case ErrOverloaded:
		return "overloaded"
	case ErrAuth:
		return "auth_error"
	case ErrMalformedResponse:
		return "malformed_response"
	case ErrTimeout:
		return "timeout"
	case ErrGraphQL:
		return "graphql_error"
	default:
		return "unknown"
	}
}

// ClassifiedError is an API error with its classification.
type ClassifiedError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	RetryAfter time.Duration // only set for rate limits
}

func (e *ClassifiedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("linear %s (HTTP %d): %s (retry after %s)", e.Type, e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("linear %s (HTTP %d): %s", e.Type, e.StatusCode, e.Message)
}

// Retryable reports whether the request may be attempted again.
func (e *ClassifiedError) Retryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrTimeout, ErrMalformedResponse:
		return true
	default:
		return false
	}
}

// MaxRetries returns how many retries this error type allows.
func (e *ClassifiedError) MaxRetries() int {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded:
		return 3
	case ErrTimeout, ErrMalformedResponse:
		return 1
	default:
		return 0
	}
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

type errorBody struct {
	Errors []graphQLError `json:"errors"`
}

func classifyHTTPError(resp *http.Response) *ClassifiedError {
	body, _ := io.ReadAll(resp.Body)

	var eb errorBody
	json.Unmarshal(body, &eb) //nolint:errcheck // best-effort parse

	msg := joinMessages(eb.Errors)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	ce := &ClassifiedError{StatusCode: resp.StatusCode, Message: msg}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		ce.Type = ErrRateLimit
		ce.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		ce.Type = ErrAuth
	case resp.StatusCode >= 500:
		ce.Type = ErrOverloaded
	case hasCode(eb.Errors, "RATELIMITED"):
		ce.Type = ErrRateLimit
	case hasCode(eb.Errors, "AUTHENTICATION_ERROR"):
		ce.Type = ErrAuth
	default:
		ce.Type = ErrUnknown
	}
	return ce
}

// classifyGraphQLErrors handles errors[] returned alongside HTTP 200.
func classifyGraphQLErrors(errs []graphQLError) *ClassifiedError {
	ce := &ClassifiedError{Type: ErrGraphQL, StatusCode: http.StatusOK, Message: joinMessages(errs)}
	switch {
	case hasCode(errs, "RATELIMITED"):
		ce.Type = ErrRateLimit
	case hasCode(errs, "AUTHENTICATION_ERROR"):
		ce.Type = ErrAuth
	}
	return ce
}

func joinMessages(errs []graphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Message != "" {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

func hasCode(errs []graphQLError, code string) bool {
	for _, e := range errs {
		if strings.EqualFold(e.Extensions.Code, code) {
			return true
		}
	}
	return false
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}
