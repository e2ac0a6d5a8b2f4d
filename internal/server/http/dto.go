package httpserver

import (
	"regexp"

	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/go-playground/validator/v10"
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sku", func(fl validator.FieldLevel) bool {
		return skuPattern.MatchString(fl.Field().String())
	})
	return v
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	AccountID   int64  `json:"account_id"`
}

type registerResponse struct {
	AccountID int64 `json:"account_id"`
}

type createRegistrationRequest struct {
	ProductSKU     string  `json:"product_sku" validate:"required,max=64,sku"`
	SerialNumber   string  `json:"serial_number" validate:"required,max=128"`
	PurchaseDate   string  `json:"purchase_date" validate:"required,datetime=2006-01-02"`
	OrderReference *string `json:"order_reference" validate:"omitempty,max=64"`
	ProofURL       *string `json:"proof_url" validate:"omitempty,max=2048"`
}

func (r createRegistrationRequest) toInput() model.SubmitInput {
	return model.SubmitInput{
		ProductKey:     r.ProductSKU,
		SerialNumber:   r.SerialNumber,
		PurchaseDate:   r.PurchaseDate,
		OrderReference: r.OrderReference,
		ProofURL:       r.ProofURL,
	}
}

// updateRegistrationRequest is a partial update; absent fields stay unchanged.
// An empty order_reference or proof_url clears the field.
type updateRegistrationRequest struct {
	ProductSKU     *string `json:"product_sku" validate:"omitempty,max=64,sku"`
	SerialNumber   *string `json:"serial_number" validate:"omitempty,max=128"`
	PurchaseDate   *string `json:"purchase_date" validate:"omitempty,datetime=2006-01-02"`
	OrderReference *string `json:"order_reference" validate:"omitempty,max=64"`
	ProofURL       *string `json:"proof_url" validate:"omitempty,max=2048"`
}

func (r updateRegistrationRequest) toPatch() model.RegistrationPatch {
	return model.RegistrationPatch{
		ProductKey:     r.ProductSKU,
		SerialNumber:   r.SerialNumber,
		PurchaseDate:   r.PurchaseDate,
		OrderReference: r.OrderReference,
		ProofURL:       r.ProofURL,
	}
}
