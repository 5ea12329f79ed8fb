package http

import "fmt"

// ActionError codes.
const (
	CodeRequest = "050"
	CodeBlocked = "051"
	CodeNetwork = "052"
	CodeTooBig  = "053"
)

// InvalidURLError represents a malformed or unsupported URL.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid URL %s: %s", e.URL, e.Reason)
}

// SecurityBlockedError represents a host or scheme policy violation.
type SecurityBlockedError struct {
	URL    string
	Reason string
}

func (e *SecurityBlockedError) Error() string {
	return fmt.Sprintf("security policy blocked URL %s: %s", e.URL, e.Reason)
}

// NetworkError represents a network-level error.
type NetworkError struct {
	URL    string
	Reason string
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %s", e.URL, e.Reason)
}
