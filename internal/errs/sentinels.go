// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates failed authentication, or a guest attempting an
	// action that needs an identified customer.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller does not own the target registration.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput indicates a malformed or missing request field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates too many failed login attempts.
	ErrRateLimited = errors.New("rate limited")
)

// Registration workflow sentinels.
var (
	// ErrInvalidProduct indicates the product key is unknown to the catalog.
	ErrInvalidProduct = errors.New("invalid product")

	// ErrInvalidOrder indicates the order reference is missing or owned by someone else.
	ErrInvalidOrder = errors.New("invalid order")

	// ErrInvalidState indicates the registration is no longer pending.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidStatus indicates a status value outside Pending/Approved/Rejected.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrDuplicateRegistration indicates the (product, serial) pair is already registered.
	ErrDuplicateRegistration = errors.New("duplicate registration")

	// ErrValidationUnavailable indicates the uniqueness check could not be performed.
	ErrValidationUnavailable = errors.New("validation unavailable")
)

// Queue sentinels.
var (
	// ErrLockFailed indicates another consumer already holds the message lock.
	ErrLockFailed = errors.New("message lock failed")

	// ErrConnectionLost indicates the broker connection dropped mid-processing.
	ErrConnectionLost = errors.New("connection lost")

	// ErrQueueEmpty indicates there is nothing to receive right now.
	ErrQueueEmpty = errors.New("queue empty")

	// ErrMalformedMessage marks a received item that could not be decoded and
	// was moved to the dead list.
	ErrMalformedMessage = errors.New("malformed message")
)
