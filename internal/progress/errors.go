package progress

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized means the caller must re-authenticate. It is never a
	// sign that data is missing.
	ErrUnauthorized = errors.New("progress: unauthorized")
	// ErrNotFound is a legitimate negative result, e.g. onboarding never
	// started.
	ErrNotFound = errors.New("progress: not found")
)

// RemoteError describes a failed call to the progress service.
type RemoteError struct {
	Op        string
	Status    int // 0 for transport failures
	Message   string
	Transient bool
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
}

// IsTransient reports whether err is worth retrying by the user.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient
}

// classify maps an HTTP status to the error taxonomy.
func classify(op string, status int, message string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrUnauthorized)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return &RemoteError{Op: op, Status: status, Message: message, Transient: true}
	default:
		return &RemoteError{Op: op, Status: status, Message: message}
	}
}
