package services

import (
	"errors"

	"physlab/internal/core/domain"
	apperrors "physlab/pkg/errors"
)

// classify maps repository errors onto the client-facing taxonomy.
// AppErrors pass through unchanged.
func classify(err error, resource string) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.NewNotFoundError(resource)
	case errors.Is(err, domain.ErrVersionConflict):
		return apperrors.NewConflictError(resource + " was modified by someone else")
	case errors.Is(err, domain.ErrDuplicate):
		return apperrors.NewConflictError(resource + " already exists")
	default:
		return apperrors.NewStoreError(err)
	}
}
