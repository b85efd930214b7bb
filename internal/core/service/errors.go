package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/book-lending/internal/port"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrOutOfStock       = errors.New("out of stock")
	ErrUpdateFailed     = errors.New("update failed")
	ErrBookMissing      = errors.New("referenced book is missing")
	ErrNotModified      = errors.New("nothing changed")
	ErrValidation       = errors.New("validation failed")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrUnavailable      = errors.New("unavailable")
	ErrDuplicateRequest = errors.New("duplicate request")
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func isUnavailable(err error) bool {
	return errors.Is(err, port.ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// storeError wraps a store failure, tagging timeouts and unreachable stores as ErrUnavailable.
func storeError(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
