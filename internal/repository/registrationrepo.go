// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/warranty-keeper/internal/model"
)

// RegistrationRepository provides persistence for warranty registrations.
type RegistrationRepository interface {
	// Create inserts a registration and fills its ID and timestamps.
	Create(ctx context.Context, r *model.Registration) error
	// GetByID loads a registration by ID.
	GetByID(ctx context.Context, id int64) (*model.Registration, error)
	// GetBySerialNumber returns the earliest registration with the given serial.
	GetBySerialNumber(ctx context.Context, serial string) (*model.Registration, error)
	// Update overwrites all mutable fields of an existing registration.
	Update(ctx context.Context, r *model.Registration) error
	// SetStatus changes only the status and returns the updated row.
	SetStatus(ctx context.Context, id int64, status model.Status) (*model.Registration, error)
	// TransitionStatus moves a registration from one status to another and
	// reports false when the row is missing or no longer in the from status.
	TransitionStatus(ctx context.Context, id int64, from, to model.Status) (bool, error)
	// Delete removes a registration and reports whether a row existed.
	Delete(ctx context.Context, id int64) (bool, error)
	// List returns one page of registrations and the total count.
	List(ctx context.Context, q model.ListQuery) ([]model.Registration, int, error)
	// CountDuplicates counts registrations with the same product and serial,
	// skipping excludeID when it is set.
	CountDuplicates(ctx context.Context, productKey, serial string, excludeID *int64) (int, error)
	// ListPendingCreatedBefore returns pending registrations created before cutoff.
	ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Registration, error)
}
