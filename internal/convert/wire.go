// Package convert maps domain models to the JSON wire shapes shared by the
// HTTP API and the admin gRPC service.
package convert

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
)

// Registration is the wire form of model.Registration.
type Registration struct {
	ID             int64     `json:"id"`
	OwnerID        *int64    `json:"owner_id,omitempty"`
	ProductSKU     string    `json:"product_sku"`
	SerialNumber   string    `json:"serial_number"`
	PurchaseDate   string    `json:"purchase_date"`
	OrderReference *string   `json:"order_reference,omitempty"`
	ProofURL       *string   `json:"proof_url,omitempty"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RegistrationPage is one page of a listing.
type RegistrationPage struct {
	Items      []Registration `json:"items"`
	TotalCount int            `json:"total_count"`
	PageInfo   model.PageInfo `json:"page_info"`
}

// ToRegistration converts a domain registration.
func ToRegistration(r model.Registration) Registration {
	return Registration{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		ProductSKU:     r.ProductKey,
		SerialNumber:   r.SerialNumber,
		PurchaseDate:   r.PurchaseDate,
		OrderReference: r.OrderReference,
		ProofURL:       r.ProofURL,
		Status:         r.Status.String(),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

// ToRegistrationPage converts a listing result. Items is never nil.
func ToRegistrationPage(res model.ListResult) RegistrationPage {
	items := make([]Registration, 0, len(res.Items))
	for _, r := range res.Items {
		items = append(items, ToRegistration(r))
	}
	return RegistrationPage{Items: items, TotalCount: res.TotalCount, PageInfo: res.PageInfo}
}

// ParseStatus accepts a status name ("pending", "approved", "rejected") or its
// numeric code.
func ParseStatus(s string) (model.Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, st := range []model.Status{model.StatusPending, model.StatusApproved, model.StatusRejected} {
		if s == st.String() {
			return st, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil || !model.Status(n).Valid() {
		return 0, fmt.Errorf("status %q: %w", s, errs.ErrInvalidStatus)
	}
	return model.Status(n), nil
}

// ParseSort splits "field" or "-field" into a column and direction.
func ParseSort(s string) (col string, desc bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "-") {
		return s[1:], true
	}
	return s, false
}
