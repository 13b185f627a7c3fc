// Package resilience classifies provider failures and paces outbound calls.
package resilience

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind groups provider failures by how a step should react to them.
type Kind int

const (
	// Generic is any failure without a more specific kind.
	Generic Kind = iota
	// AuthInvalid means the credentials were rejected (401, 403).
	AuthInvalid
	// RateLimited means the provider asked us to slow down (429).
	RateLimited
	// ServerError is a 5xx from the provider.
	ServerError
)

func (k Kind) String() string {
	switch k {
	case AuthInvalid:
		return "auth_invalid"
	case RateLimited:
		return "rate_limited"
	case ServerError:
		return "server_error"
	}
	return "generic"
}

// ProviderError is a failed call to an external collaborator. It is caught
// per record and recorded on the record; it never aborts a run by itself.
type ProviderError struct {
	Provider string
	Kind     Kind
	Status   int
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error { return e.Err }

// maxMessage bounds how much of a response body is kept on the error.
const maxMessage = 512

// ClassifyStatus maps a non-2xx response to a ProviderError. It returns nil
// for 2xx statuses.
func ClassifyStatus(provider string, status int, body []byte) *ProviderError {
	if status >= 200 && status < 300 {
		return nil
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > maxMessage {
		msg = msg[:maxMessage]
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &ProviderError{
		Provider: provider,
		Kind:     kindForStatus(status),
		Status:   status,
		Message:  msg,
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return AuthInvalid
	case status == http.StatusTooManyRequests:
		return RateLimited
	case status >= 500:
		return ServerError
	}
	return Generic
}

// Wrap tags a transport-level failure (DNS, reset, timeout) as a Generic
// ProviderError. An error that already is a ProviderError is returned as is.
func Wrap(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Kind: Generic, Message: err.Error(), Err: err}
}

// As extracts the ProviderError from err's chain.
func As(err error) (*ProviderError, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRateLimited reports whether err is a 429 from any provider.
func IsRateLimited(err error) bool {
	pe, ok := As(err)
	return ok && pe.Kind == RateLimited
}

// IsAuthInvalid reports whether err is a rejected-credentials failure.
func IsAuthInvalid(err error) bool {
	pe, ok := As(err)
	return ok && pe.Kind == AuthInvalid
}
