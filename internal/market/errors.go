package market

import (
	"errors"
	"fmt"
)

// ErrorKind classifies marketplace failures.
type ErrorKind string

const (
	KindNetwork     ErrorKind = "network"
	KindRateLimited ErrorKind = "rate_limited"
	KindNotFound    ErrorKind = "not_found"
	KindDecode      ErrorKind = "decode"
	KindStatus      ErrorKind = "status"
)

// APIError represents a failed marketplace request.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	URL        string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("warframe.market %s error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.URL != "" {
		msg += " for " + e.URL
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an APIError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsNotFound returns true if the item does not exist.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsRateLimited returns true if retries were exhausted on HTTP 429.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}
