package client

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrNotFound is returned when the collection or item does not exist.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the proxy answered 429 or the local
	// gate is holding requests until the quota window resets.
	ErrRateLimited = errors.New("rate limited")

	// ErrDecode is returned when a response body is not the expected JSON.
	ErrDecode = errors.New("decode response")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and local blocks.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// CMSError is a failed request to the CMS proxy.
type CMSError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *CMSError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("CMS %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("CMS %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CMSError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status to an error class. Statuses below 400
// have no class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// statusError builds the CMSError for a failed response.
func statusError(status int, message string) *CMSError {
	e := &CMSError{
		StatusCode: status,
		Class:      classifyStatus(status),
		Message:    message,
	}
	switch {
	case status == 404:
		e.Err = ErrNotFound
	case status == 429:
		e.Err = ErrRateLimited
	}
	return e
}
