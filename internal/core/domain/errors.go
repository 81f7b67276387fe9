package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAdapterTimeout          = errors.New("retrieval adapter timeout")
	ErrAllAdaptersFailed       = errors.New("all retrieval adapters failed")
	ErrRerankerUnavailable     = errors.New("reranker unavailable")
	ErrProfileStoreUnavailable = errors.New("profile store unavailable")
	ErrProfileNotFound         = errors.New("profile not found")
	ErrSessionNotFound         = errors.New("session not found")
	ErrIdentityConflict        = errors.New("identity conflict")
	ErrBudgetExceeded          = errors.New("context budget exceeded")
	ErrInvalidInput            = errors.New("invalid input")
	ErrTemporary               = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
