package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")

	// Status document and admin flows
	ErrCorruptStatus   = errors.New("status document is corrupt")
	ErrCountryNotFound = errors.New("country code not found")
	ErrKeyAlreadySet   = errors.New("api key already set")
	ErrMissingAPIKey   = errors.New("api key is not configured")
	ErrNoCountries     = errors.New("no countries configured")
	ErrNoPendingInput  = errors.New("no pending admin input")
	ErrLockHeld        = errors.New("hunter lease is held by another process")
	ErrRateLimited     = errors.New("rate limited")
	ErrEmptyInput      = errors.New("empty input")
)

// UpstreamRejectedError is returned when the number provider answers with one
// of its known error tokens (NO_NUMBERS, NO_BALANCE, ...).
type UpstreamRejectedError struct {
	Op    string
	Token string
	Body  string
}

func (e *UpstreamRejectedError) Error() string {
	return fmt.Sprintf("%s: upstream rejected: %s", e.Op, e.Token)
}

// TransportError wraps network level failures talking to the provider.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError means the provider answered with a body we could not read.
type ParseError struct {
	Op   string
	Body string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unexpected response %q", e.Op, e.Body)
}

// IsUpstreamRejected reports whether err carries a provider error token and returns it.
func IsUpstreamRejected(err error) (string, bool) {
	var re *UpstreamRejectedError
	if errors.As(err, &re) {
		return re.Token, true
	}
	return "", false
}

// IsTransport reports whether err is a provider transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsParse reports whether err is a malformed provider response.
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
