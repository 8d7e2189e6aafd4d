package session

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateAccount is returned by Register when the email is already in the catalog.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrInvalidCredentials covers both an unknown email and a wrong secret.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrStorageUnavailable wraps every failure of the durable store, including undecodable records.
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnsupportedSchema  = errors.New("unsupported schema version")
)

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}

func invalidRequestErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
