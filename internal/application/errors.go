package application

import (
	"errors"

	"github.com/wms-platform/distribution-service/internal/domain"
	apperrors "github.com/wms-platform/distribution-service/pkg/errors"
)

// ToAppError translates domain errors into the platform error shape.
// Unknown errors become internal errors with the cause attached.
func ToAppError(err error) *apperrors.AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr
	}

	var (
		invalidState *domain.InvalidStateError
		validation   *domain.ValidationError
		insufficient *domain.InsufficientStockError
	)

	switch {
	case errors.As(err, &invalidState):
		return apperrors.ErrInvalidState(invalidState.Error()).
			WithDetail("batchId", invalidState.BatchID).
			WithDetail("currentStatus", string(invalidState.CurrentStatus)).
			Wrap(err)
	case errors.Is(err, domain.ErrInvalidState):
		return apperrors.ErrInvalidState(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrNotFound):
		return apperrors.ErrNotFound("batch").Wrap(err)
	case errors.As(err, &validation):
		appErr := apperrors.ErrValidation(validation.Error()).Wrap(err)
		if validation.Field != "" {
			appErr.WithDetail(validation.Field, validation.Message)
		}
		return appErr
	case errors.Is(err, domain.ErrValidation):
		return apperrors.ErrValidation(err.Error()).Wrap(err)
	case errors.As(err, &insufficient):
		return apperrors.ErrInsufficientStock(insufficient.Error()).
			WithDetail("productId", insufficient.ProductID).
			Wrap(err)
	case errors.Is(err, domain.ErrInsufficientStock):
		return apperrors.ErrInsufficientStock(err.Error()).Wrap(err)
	case errors.Is(err, domain.ErrBatchLocked):
		return apperrors.ErrConflict(err.Error()).Wrap(err)
	}

	// EmptyBatch and InconsistentBatch land here: they are bugs, not user errors
	return apperrors.ErrInternal("").Wrap(err)
}
