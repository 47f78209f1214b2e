// Package remote classifies failures talking to another endpoint: the
// scenebridge server itself, the asset library, or the generation service.
package remote

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates nothing is listening at the address
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeAuth indicates rejected credentials
	ErrTypeAuth
	// ErrTypeHTTP indicates a non-2xx HTTP status
	ErrTypeHTTP
	// ErrTypeParse indicates a response that could not be decoded
	ErrTypeParse
	// ErrTypeNotFound indicates the requested item does not exist remotely
	ErrTypeNotFound
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeNotFound:
		return "Not Found"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// Error is a failure talking to a remote endpoint
type Error struct {
	Type       ErrorType // Category of error
	Service    string    // Which endpoint ("server", "asset library", ...)
	Message    string    // Human-readable error message
	StatusCode int       // HTTP status code (if applicable)
	Err        error     // Underlying error (if any)
	Retryable  bool      // Whether the error is retryable
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify analyzes a transport error and returns a more specific Error
func Classify(err error, service string) *Error {
	if err == nil {
		return nil
	}

	var already *Error
	if errors.As(err, &already) {
		return already
	}

	// Check for timeout errors
	if os.IsTimeout(err) || errors.Is(err, os.ErrDeadlineExceeded) {
		return &Error{
			Type:      ErrTypeTimeout,
			Service:   service,
			Message:   "Request timed out",
			Err:       err,
			Retryable: true,
		}
	}

	// Check for DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{
			Type:    ErrTypeDNS,
			Service: service,
			Message: fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:     err,
		}
	}

	// Check for connection refused
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{
			Type:      ErrTypeConnectionRefused,
			Service:   service,
			Message:   "Connection refused",
			Err:       err,
			Retryable: true,
		}
	}

	// Check for URL errors
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		// Recursively classify the underlying error
		return Classify(urlErr.Err, service)
	}

	// Generic network error
	return &Error{
		Type:      ErrTypeNetwork,
		Service:   service,
		Message:   "Network error occurred",
		Err:       err,
		Retryable: true,
	}
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(service, message string, err error) *Error {
	classified := Classify(err, service)
	classified.Message = message
	return classified
}

// NewHTTPError creates an error for a non-2xx HTTP response
func NewHTTPError(service string, statusCode int, body string) *Error {
	t := ErrTypeHTTP
	switch statusCode {
	case 401, 403:
		t = ErrTypeAuth
	case 404:
		t = ErrTypeNotFound
	}
	msg := fmt.Sprintf("%s returned HTTP %d", service, statusCode)
	if body = strings.TrimSpace(body); body != "" {
		if len(body) > 200 {
			body = body[:200] + "..."
		}
		msg += ": " + body
	}
	return &Error{
		Type:       t,
		Service:    service,
		Message:    msg,
		StatusCode: statusCode,
		Retryable:  statusCode >= 500, // Server errors are retryable
	}
}

// NewParseError creates a parsing error
func NewParseError(service, message string, err error) *Error {
	return &Error{
		Type:    ErrTypeParse,
		Service: service,
		Message: message,
		Err:     err,
	}
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// Short returns a concise, user-friendly error message
func Short(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	switch e.Type {
	case ErrTypeTimeout:
		return fmt.Sprintf("%s not responding (timeout)", e.Service)
	case ErrTypeConnectionRefused:
		return fmt.Sprintf("%s refused connection - is it running?", e.Service)
	case ErrTypeDNS:
		return fmt.Sprintf("Cannot resolve %s hostname", e.Service)
	case ErrTypeAuth:
		return fmt.Sprintf("%s rejected the credentials", e.Service)
	case ErrTypeNotFound:
		return e.Message
	case ErrTypeHTTP:
		return fmt.Sprintf("%s error (HTTP %d)", e.Service, e.StatusCode)
	case ErrTypeParse:
		return fmt.Sprintf("Failed to parse %s response", e.Service)
	default:
		return e.Message
	}
}

// Hint returns troubleshooting advice for an error
func Hint(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred. Please try again."
	}

	switch e.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			fmt.Sprintf("The %s did not respond in time.", e.Service),
			"Troubleshooting:",
			"  • A long running execute_code script holds the server until it finishes",
			"  • Try increasing the timeout with --timeout",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			fmt.Sprintf("The %s refused the connection.", e.Service),
			"Troubleshooting:",
			"  • Start it with: scenebridge serve",
			"  • Check the port (default 9876) matches --port",
			"  • Run 'scenebridge discover' to find servers on the local network",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			fmt.Sprintf("Could not resolve the %s hostname.", e.Service),
			"Troubleshooting:",
			"  • Use an IP address instead of a hostname",
			"  • Check your network DNS settings",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			fmt.Sprintf("The %s rejected the request credentials.", e.Service),
			"Troubleshooting:",
			"  • Check generated_content.api_key in the config file",
		}, "\n")

	case ErrTypeHTTP:
		if e.StatusCode >= 500 {
			return fmt.Sprintf("The %s had an internal error (HTTP %d). Try again later.", e.Service, e.StatusCode)
		}
		return fmt.Sprintf("The %s returned HTTP error %d. Check the request parameters.", e.Service, e.StatusCode)

	case ErrTypeParse:
		return fmt.Sprintf("The %s sent a response that could not be decoded. Check that the address points at the right service.", e.Service)

	default:
		return strings.Join([]string{
			"Network communication failed.",
			"Troubleshooting:",
			"  • Check your network connection",
			"  • Verify the address and port",
		}, "\n")
	}
}
