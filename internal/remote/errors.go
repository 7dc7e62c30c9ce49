package remote

import "errors"

var (
	// ErrRetryable marks a response that was malformed or refused. The gate
	// retries it and gives up with this error once attempts run out.
	ErrRetryable = errors.New("remote request failed")
	// ErrBadCredentials is returned when the catalog rejects the configured
	// member id and pass hash.
	ErrBadCredentials = errors.New("catalog credentials were rejected")
	// ErrBanned is returned when the catalog has banned this address.
	ErrBanned = errors.New("banned by the catalog")
	// ErrUnavailable is returned while the circuit breaker is open.
	ErrUnavailable = errors.New("remote service unavailable")
)

// IsFatal reports whether err must abort the whole batch.
func IsFatal(err error) bool {
	return errors.Is(err, ErrBadCredentials) || errors.Is(err, ErrBanned)
}

// FatalMessage is the user-facing text for a fatal error.
func FatalMessage(err error) string {
	switch {
	case errors.Is(err, ErrBadCredentials):
		return "Your user id/password hash combination is incorrect."
	case errors.Is(err, ErrBanned):
		return "You are currently banned by the catalog."
	}
	return err.Error()
}
