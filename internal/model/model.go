// Package model defines domain entities used by services and repositories.
package model

import (
	"strings"
	"time"
)

// Status is the moderation state of a registration.
type Status int

const (
	StatusPending  Status = 0
	StatusApproved Status = 1
	StatusRejected Status = 2
)

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusApproved || s == StatusRejected
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// DefaultPendingExpiryDays is used when no positive expiry window is configured.
const DefaultPendingExpiryDays = 90

// PurchaseDateLayout is the wire and storage layout of Registration.PurchaseDate.
const PurchaseDateLayout = "2006-01-02"

// Registration is a customer's claim of ownership of a serialized product.
type Registration struct {
	ID             int64
	OwnerID        *int64 // nil for guest submissions
	ProductKey     string // catalog SKU
	SerialNumber   string // always stored normalized, see NormalizeSerial
	PurchaseDate   string // YYYY-MM-DD
	OrderReference *string
	ProofURL       *string
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OwnedBy reports whether the registration belongs to the given account.
func (r *Registration) OwnedBy(accountID int64) bool {
	return r.OwnerID != nil && *r.OwnerID == accountID
}

// NormalizeSerial trims surrounding whitespace and uppercases the serial.
// Every stored and compared serial goes through it.
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// SubmitInput carries the fields a caller supplies when registering a product.
type SubmitInput struct {
	ProductKey     string
	SerialNumber   string
	PurchaseDate   string
	OrderReference *string
	ProofURL       *string
}

// AdminInput is the full set of fields an administrator writes when creating
// or editing a registration.
type AdminInput struct {
	OwnerID        *int64
	ProductKey     string
	SerialNumber   string
	PurchaseDate   string
	OrderReference *string
	ProofURL       *string
	Status         Status
}

// RegistrationPatch is a partial update; nil fields are left unchanged.
type RegistrationPatch struct {
	ProductKey     *string
	SerialNumber   *string
	PurchaseDate   *string
	OrderReference *string
	ProofURL       *string
}

// Empty reports whether the patch changes nothing.
func (p RegistrationPatch) Empty() bool {
	return p.ProductKey == nil && p.SerialNumber == nil && p.PurchaseDate == nil &&
		p.OrderReference == nil && p.ProofURL == nil
}

// ListFilter narrows a registration listing. Zero values mean "no filter".
type ListFilter struct {
	OwnerID            *int64
	Status             *Status
	ProductKeyContains string
	SerialContains     string
}

// Paging defaults and limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 200
)

// ListQuery combines filter, sort and pagination for a registration listing.
type ListQuery struct {
	Filter   ListFilter
	SortBy   string // column name, validated by the store
	SortDesc bool
	Page     int // 1-based
	PageSize int
}

// Normalize clamps paging values into their valid ranges.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	if q.SortBy == "" {
		q.SortBy = "id"
	}
	return q
}

// PageInfo describes where a page sits in the full result.
type PageInfo struct {
	PageSize    int `json:"page_size"`
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// ListResult is one page of registrations plus totals.
type ListResult struct {
	Items      []Registration
	TotalCount int
	PageInfo   PageInfo
}

// NewListResult computes page info for the given normalized query.
func NewListResult(items []Registration, total int, q ListQuery) ListResult {
	pages := 0
	if total > 0 {
		pages = (total + q.PageSize - 1) / q.PageSize
	}
	return ListResult{
		Items:      items,
		TotalCount: total,
		PageInfo:   PageInfo{PageSize: q.PageSize, CurrentPage: q.Page, TotalPages: pages},
	}
}

// Order is the minimal view of an external sales order.
type Order struct {
	Reference string
	OwnerID   int64
}

// Account represents a customer or administrator. Passwords are never stored in plaintext.
type Account struct {
	ID        int64
	Email     string // unique
	PwdHash   []byte // Argon2id(password, Salt)
	Salt      []byte
	Admin     bool
	CreatedAt time.Time
}

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Message is a unit of work received from the queue transport.
type Message struct {
	ID         string // UUID v4
	Topic      string
	Body       []byte
	EnqueuedAt time.Time
}

// Lock marks a message as being processed by a named consumer.
type Lock struct {
	ID           int64
	MessageID    string
	ConsumerName string
	CreatedAt    time.Time
}

// MassStatusCommand is the queue payload for an asynchronous mass status change.
type MassStatusCommand struct {
	RegistrationIDs []int64 `json:"registration_ids"`
	Status          Status  `json:"status"`
}

// ApprovedEvent is published when a registration transitions into Approved.
type ApprovedEvent struct {
	RegistrationID int64     `json:"registration_id"`
	ProductKey     string    `json:"product_sku"`
	SerialNumber   string    `json:"serial_number"`
	OwnerID        *int64    `json:"owner_id,omitempty"`
	ApprovedAt     time.Time `json:"approved_at"`
}
