package service

import (
	"context"
	"fmt"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
)

// DuplicateCounter is the store query the uniqueness check relies on.
type DuplicateCounter interface {
	CountDuplicates(ctx context.Context, productKey, serial string, excludeID *int64) (int, error)
}

// UniquenessValidator decides whether a (product, serial) pair is still free.
type UniquenessValidator interface {
	CheckUnique(ctx context.Context, productKey, serialNumber string, excludeID *int64) (bool, error)
}

type UniquenessValidatorImpl struct {
	store DuplicateCounter
}

// NewUniquenessValidator constructs a validator over the registration store.
func NewUniquenessValidator(store DuplicateCounter) *UniquenessValidatorImpl {
	return &UniquenessValidatorImpl{store: store}
}

// CheckUnique reports true iff no other registration holds the pair.
// Store failures come back as errs.ErrValidationUnavailable.
func (v *UniquenessValidatorImpl) CheckUnique(ctx context.Context, productKey, serialNumber string, excludeID *int64) (bool, error) {
	n, err := v.store.CountDuplicates(ctx, productKey, model.NormalizeSerial(serialNumber), excludeID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", errs.ErrValidationUnavailable, err)
	}
	return n == 0, nil
}
