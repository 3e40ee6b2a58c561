package oaipmh

import (
	"errors"
	"fmt"
)

// OAI-PMH error codes used by the client.
const (
	CodeNoRecordsMatch     = "noRecordsMatch"
	CodeBadResumptionToken = "badResumptionToken"
)

var (
	// ErrNoRecordsMatch indicates the request matched nothing. Harvest
	// treats it as an empty result.
	ErrNoRecordsMatch = errors.New("no records match")

	// ErrBadResumptionToken indicates an expired or invalid resumption token.
	ErrBadResumptionToken = errors.New("bad resumption token")

	// ErrInvalidResponse indicates a body that is not an OAI-PMH document.
	ErrInvalidResponse = errors.New("invalid OAI-PMH response")
)

// APIError is an error reported by the repository, either as an HTTP status
// or as an OAI-PMH error element.
type APIError struct {
	StatusCode int
	Code       string // OAI-PMH error code, empty for plain HTTP failures
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("OAI-PMH error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("OAI-PMH error (status %d): %s", e.StatusCode, e.Message)
}

// Is maps error codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNoRecordsMatch:
		return e.Code == CodeNoRecordsMatch
	case ErrBadResumptionToken:
		return e.Code == CodeBadResumptionToken
	}
	return false
}

// IsNoRecordsMatch returns true if err reports an empty result set.
func IsNoRecordsMatch(err error) bool {
	if errors.Is(err, ErrNoRecordsMatch) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == CodeNoRecordsMatch
	}
	return false
}
