package workflow

import (
	"errors"
	"fmt"

	"github.com/maaaruch/tg-award-bot/internal/domain"
	"github.com/maaaruch/tg-award-bot/internal/storage"
)

var (
	// ErrUnauthorized means the actor is not in the required permission group.
	ErrUnauthorized = errors.New("not authorized")

	// ErrValidation means the caller supplied unusable input.
	ErrValidation = errors.New("invalid input")

	// ErrNotFoundOrResolved is what callers see for both an unknown id and a
	// nomination that is no longer pending.
	ErrNotFoundOrResolved = errors.New("invalid or already processed nomination")

	ErrUnknownNomination = fmt.Errorf("%w: unknown id", ErrNotFoundOrResolved)
	ErrAlreadyResolved   = fmt.Errorf("%w: already resolved", ErrNotFoundOrResolved)

	// ErrPersistence is the store's durable-write failure.
	ErrPersistence = storage.ErrPersistence
)

type AuthorizationError struct {
	Actor string
	Group domain.PermissionGroup
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s is not in the %s group", e.Actor, e.Group)
}

func (e *AuthorizationError) Unwrap() error { return ErrUnauthorized }

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Kind names the error class of err for logs and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "authorization"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFoundOrResolved):
		return "not_found_or_resolved"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "internal"
	}
}
