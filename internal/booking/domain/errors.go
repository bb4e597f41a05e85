package domain

import (
	"errors"

	"github.com/smallbiznis/staybook/internal/businessday"
	directorydomain "github.com/smallbiznis/staybook/internal/directory/domain"
	"github.com/smallbiznis/staybook/internal/financial"
	"github.com/smallbiznis/staybook/pkg/db/pagination"
)

var validationErrors = []error{
	ErrInvalidID,
	ErrInvalidMessageID,
	ErrInvalidLocation,
	ErrInvalidUnit,
	ErrMissingAmount,
	ErrInvalidAgent,
	ErrInvalidMetadata,
	ErrEmptyUpdate,
	financial.ErrInvalidAmount,
	financial.ErrInvalidCommission,
	financial.ErrInvalidPaymentMethod,
	financial.ErrInvalidPolicy,
	businessday.ErrInvalidDate,
	businessday.ErrInvalidRange,
	pagination.ErrInvalidPageToken,
}

// IsValidationError reports whether err is caused by bad caller input
// rather than by storage or integrity failures.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return directorydomain.IsValidationError(err)
}

func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}
