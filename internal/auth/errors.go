package auth

import (
	"errors"
	"fmt"

	"github.com/vidsplit/client/internal/api"
)

var (
	// ErrTOTPRequired indicates the backend wants a second factor for this login.
	ErrTOTPRequired = errors.New("two-factor code required")
	// ErrNoRefreshToken indicates there is nothing to exchange for a new session.
	ErrNoRefreshToken = errors.New("no refresh token")

	errSessionReplaced = errors.New("session replaced during refresh")
)

// AuthError reports a rejected login or refresh.
type AuthError struct {
	Op           string
	TOTPRequired bool
	Err          error
}

func (e *AuthError) Error() string {
	if detail := api.DetailOf(e.Err); detail != "" {
		return fmt.Sprintf("%s rejected: %s", e.Op, detail)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// AuthExpiredError reports an authorized call that still failed after its one
// refresh attempt. The session has been logged out by the time it is returned.
type AuthExpiredError struct {
	Err error
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("session expired: %v", e.Err)
}

func (e *AuthExpiredError) Unwrap() error {
	return e.Err
}

// IsAuthExpired reports whether err is, or wraps, an *AuthExpiredError.
func IsAuthExpired(err error) bool {
	var expired *AuthExpiredError
	return errors.As(err, &expired)
}
