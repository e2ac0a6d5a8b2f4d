package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/and161185/warranty-keeper/internal/repository"
	"go.uber.org/zap"
)

// Notifier is told about registrations that became approved.
type Notifier interface {
	NotifyApproved(ctx context.Context, r model.Registration) error
}

// RegistrationService is the warranty registration workflow.
type RegistrationService interface {
	// Submit registers a product for ownerID (nil for a guest).
	Submit(ctx context.Context, ownerID *int64, in model.SubmitInput) (*model.Registration, error)
	// UpdateOwned applies a partial update on behalf of the owner. Only pending records are editable.
	UpdateOwned(ctx context.Context, callerID *int64, id int64, patch model.RegistrationPatch) (*model.Registration, error)
	// AdminSave creates (id == 0) or fully rewrites a registration with no
	// ownership or status restrictions.
	AdminSave(ctx context.Context, id int64, in model.AdminInput) (*model.Registration, error)
	// SetStatus is the administrative status change.
	SetStatus(ctx context.Context, id int64, status model.Status) (*model.Registration, error)
	// MassSetStatus applies SetStatus to several ids and returns how many were updated.
	MassSetStatus(ctx context.Context, ids []int64, status model.Status) (int, error)
	// ExpirePending rejects pending registrations older than maxAgeDays.
	ExpirePending(ctx context.Context, maxAgeDays int) (int, error)
	// List returns one page of registrations with no ownership restriction.
	List(ctx context.Context, q model.ListQuery) (model.ListResult, error)
	// ListOwned restricts the listing to the caller's registrations.
	ListOwned(ctx context.Context, ownerID *int64, q model.ListQuery) (model.ListResult, error)
	GetByID(ctx context.Context, id int64) (*model.Registration, error)
	GetBySerialNumber(ctx context.Context, serial string) (*model.Registration, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

type RegistrationServiceImpl struct {
	regs     repository.RegistrationRepository
	unique   UniquenessValidator
	catalog  repository.ProductCatalog
	orders   repository.OrderLookup
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewRegistrationService constructs the workflow. A nil notifier disables
// approval notifications; a nil logger discards logs.
func NewRegistrationService(
	regs repository.RegistrationRepository,
	unique UniquenessValidator,
	catalog repository.ProductCatalog,
	orders repository.OrderLookup,
	notifier Notifier,
	log *zap.Logger,
) *RegistrationServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationServiceImpl{
		regs:     regs,
		unique:   unique,
		catalog:  catalog,
		orders:   orders,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func validPurchaseDate(s string) bool {
	_, err := time.Parse(model.PurchaseDateLayout, s)
	return err == nil
}

func validProofURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// nonEmpty turns a pointer to a blank string into nil.
func nonEmpty(p *string) *string {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil
	}
	v := strings.TrimSpace(*p)
	return &v
}

func (s *RegistrationServiceImpl) checkProduct(ctx context.Context, sku string) error {
	ok, err := s.catalog.ProductExists(ctx, sku)
	if err != nil {
		return fmt.Errorf("product lookup: %w", err)
	}
	if !ok {
		return fmt.Errorf("product %q: %w", sku, errs.ErrInvalidProduct)
	}
	return nil
}

func (s *RegistrationServiceImpl) checkOrder(ctx context.Context, ownerID *int64, ref string) error {
	if ownerID == nil {
		return fmt.Errorf("guest cannot reference an order: %w", errs.ErrUnauthorized)
	}
	o, err := s.lookupOrder(ctx, ref)
	if err != nil {
		return err
	}
	if o.OwnerID != *ownerID {
		return fmt.Errorf("order %q: %w", ref, errs.ErrInvalidOrder)
	}
	return nil
}

func (s *RegistrationServiceImpl) lookupOrder(ctx context.Context, ref string) (*model.Order, error) {
	o, err := s.orders.GetOrder(ctx, ref)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, fmt.Errorf("order %q: %w", ref, errs.ErrInvalidOrder)
	}
	if err != nil {
		return nil, fmt.Errorf("order lookup: %w", err)
	}
	return o, nil
}

func (s *RegistrationServiceImpl) checkUnique(ctx context.Context, sku, serial string, excludeID *int64) error {
	ok, err := s.unique.CheckUnique(ctx, sku, serial, excludeID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrDuplicateRegistration
	}
	return nil
}

// Submit validates and stores a new pending registration.
func (s *RegistrationServiceImpl) Submit(ctx context.Context, ownerID *int64, in model.SubmitInput) (*model.Registration, error) {
	sku := strings.TrimSpace(in.ProductKey)
	serial := model.NormalizeSerial(in.SerialNumber)
	if sku == "" || serial == "" {
		return nil, fmt.Errorf("product_sku and serial_number are required: %w", errs.ErrInvalidInput)
	}
	if !validPurchaseDate(in.PurchaseDate) {
		return nil, fmt.Errorf("purchase_date %q: %w", in.PurchaseDate, errs.ErrInvalidInput)
	}
	proof := nonEmpty(in.ProofURL)
	if proof != nil && !validProofURL(*proof) {
		return nil, fmt.Errorf("proof_url: %w", errs.ErrInvalidInput)
	}

	if err := s.checkProduct(ctx, sku); err != nil {
		return nil, err
	}
	ref := nonEmpty(in.OrderReference)
	if ref != nil {
		if err := s.checkOrder(ctx, ownerID, *ref); err != nil {
			return nil, err
		}
	}
	if err := s.checkUnique(ctx, sku, serial, nil); err != nil {
		return nil, err
	}

	r := &model.Registration{
		OwnerID:        ownerID,
		ProductKey:     sku,
		SerialNumber:   serial,
		PurchaseDate:   in.PurchaseDate,
		OrderReference: ref,
		ProofURL:       proof,
		Status:         model.StatusPending,
	}
	if err := s.regs.Create(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// UpdateOwned merges patch into a pending registration owned by callerID.
func (s *RegistrationServiceImpl) UpdateOwned(ctx context.Context, callerID *int64, id int64, patch model.RegistrationPatch) (*model.Registration, error) {
	if callerID == nil {
		return nil, errs.ErrUnauthorized
	}
	r, err := s.regs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.OwnedBy(*callerID) {
		return nil, errs.ErrForbidden
	}
	if r.Status != model.StatusPending {
		return nil, fmt.Errorf("registration %d is %s: %w", id, r.Status, errs.ErrInvalidState)
	}

	keyChanged := false
	if patch.ProductKey != nil {
		sku := strings.TrimSpace(*patch.ProductKey)
		if sku == "" {
			return nil, fmt.Errorf("product_sku: %w", errs.ErrInvalidInput)
		}
		if err := s.checkProduct(ctx, sku); err != nil {
			return nil, err
		}
		if sku != r.ProductKey {
			r.ProductKey = sku
			keyChanged = true
		}
	}
	if patch.SerialNumber != nil {
		serial := model.NormalizeSerial(*patch.SerialNumber)
		if serial == "" {
			return nil, fmt.Errorf("serial_number: %w", errs.ErrInvalidInput)
		}
		if serial != r.SerialNumber {
			r.SerialNumber = serial
			keyChanged = true
		}
	}
	if patch.PurchaseDate != nil {
		if !validPurchaseDate(*patch.PurchaseDate) {
			return nil, fmt.Errorf("purchase_date %q: %w", *patch.PurchaseDate, errs.ErrInvalidInput)
		}
		r.PurchaseDate = *patch.PurchaseDate
	}
	if patch.OrderReference != nil {
		ref := nonEmpty(patch.OrderReference)
		if ref != nil {
			if err := s.checkOrder(ctx, callerID, *ref); err != nil {
				return nil, err
			}
		}
		r.OrderReference = ref
	}
	if patch.ProofURL != nil {
		proof := nonEmpty(patch.ProofURL)
		if proof != nil && !validProofURL(*proof) {
			return nil, fmt.Errorf("proof_url: %w", errs.ErrInvalidInput)
		}
		r.ProofURL = proof
	}

	if keyChanged {
		if err := s.checkUnique(ctx, r.ProductKey, r.SerialNumber, &r.ID); err != nil {
			return nil, err
		}
	}
	if err := s.regs.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AdminSave validates every field like Submit, except that the order only has
// to exist when no owner is given. Saving a registration into Approved from any
// other state fires the notifier.
func (s *RegistrationServiceImpl) AdminSave(ctx context.Context, id int64, in model.AdminInput) (*model.Registration, error) {
	sku := strings.TrimSpace(in.ProductKey)
	serial := model.NormalizeSerial(in.SerialNumber)
	if sku == "" || serial == "" {
		return nil, fmt.Errorf("product_sku and serial_number are required: %w", errs.ErrInvalidInput)
	}
	if !validPurchaseDate(in.PurchaseDate) {
		return nil, fmt.Errorf("purchase_date %q: %w", in.PurchaseDate, errs.ErrInvalidInput)
	}
	if !in.Status.Valid() {
		return nil, fmt.Errorf("status %d: %w", in.Status, errs.ErrInvalidStatus)
	}
	proof := nonEmpty(in.ProofURL)
	if proof != nil && !validProofURL(*proof) {
		return nil, fmt.Errorf("proof_url: %w", errs.ErrInvalidInput)
	}

	r := &model.Registration{}
	wasApproved := false
	if id != 0 {
		cur, err := s.regs.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		r = cur
		wasApproved = cur.Status == model.StatusApproved
	}

	if err := s.checkProduct(ctx, sku); err != nil {
		return nil, err
	}
	ref := nonEmpty(in.OrderReference)
	if ref != nil {
		o, err := s.lookupOrder(ctx, *ref)
		if err != nil {
			return nil, err
		}
		if in.OwnerID != nil && o.OwnerID != *in.OwnerID {
			return nil, fmt.Errorf("order %q: %w", *ref, errs.ErrInvalidOrder)
		}
	}
	var exclude *int64
	if id != 0 {
		exclude = &id
	}
	if err := s.checkUnique(ctx, sku, serial, exclude); err != nil {
		return nil, err
	}

	r.OwnerID = in.OwnerID
	r.ProductKey = sku
	r.SerialNumber = serial
	r.PurchaseDate = in.PurchaseDate
	r.OrderReference = ref
	r.ProofURL = proof
	r.Status = in.Status
	if id == 0 {
		if err := s.regs.Create(ctx, r); err != nil {
			return nil, err
		}
	} else if err := s.regs.Update(ctx, r); err != nil {
		return nil, err
	}

	if r.Status == model.StatusApproved && !wasApproved {
		s.notifyApproved(ctx, *r)
	}
	return r, nil
}

// SetStatus changes the status without ownership checks. The notifier fires
// only when the registration moves into Approved from another state.
func (s *RegistrationServiceImpl) SetStatus(ctx context.Context, id int64, status model.Status) (*model.Registration, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("status %d: %w", status, errs.ErrInvalidStatus)
	}
	r, err := s.regs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	prev := r.Status
	r.Status = status
	if err := s.regs.Update(ctx, r); err != nil {
		return nil, err
	}
	if status == model.StatusApproved && prev != model.StatusApproved {
		s.notifyApproved(ctx, *r)
	}
	return r, nil
}

func (s *RegistrationServiceImpl) notifyApproved(ctx context.Context, r model.Registration) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyApproved(ctx, r); err != nil {
		s.log.Warn("approval notification failed", zap.Int64("registration_id", r.ID), zap.Error(err))
	}
}

// MassSetStatus skips unknown ids and stops at the first other failure.
func (s *RegistrationServiceImpl) MassSetStatus(ctx context.Context, ids []int64, status model.Status) (int, error) {
	if !status.Valid() {
		return 0, fmt.Errorf("status %d: %w", status, errs.ErrInvalidStatus)
	}
	updated := 0
	for _, id := range ids {
		_, err := s.SetStatus(ctx, id, status)
		switch {
		case err == nil:
			updated++
		case errors.Is(err, errs.ErrNotFound):
			s.log.Info("mass status: registration not found", zap.Int64("registration_id", id))
		default:
			return updated, fmt.Errorf("registration %d: %w", id, err)
		}
	}
	return updated, nil
}

// ExpirePending rejects every pending registration created more than
// maxAgeDays ago. Values <= 0 fall back to model.DefaultPendingExpiryDays.
// Rows that left Pending after the listing are skipped. Individual failures
// are logged and skipped; the count covers successes.
func (s *RegistrationServiceImpl) ExpirePending(ctx context.Context, maxAgeDays int) (int, error) {
	if maxAgeDays <= 0 {
		maxAgeDays = model.DefaultPendingExpiryDays
	}
	cutoff := s.now().AddDate(0, 0, -maxAgeDays)
	stale, err := s.regs.ListPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale pending: %w", err)
	}
	var (
		n    int
		errz []error
	)
	for _, r := range stale {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ok, err := s.regs.TransitionStatus(ctx, r.ID, model.StatusPending, model.StatusRejected)
		if err != nil {
			s.log.Warn("expire pending failed", zap.Int64("registration_id", r.ID), zap.Error(err))
			errz = append(errz, fmt.Errorf("registration %d: %w", r.ID, err))
			continue
		}
		if !ok {
			s.log.Info("expire pending: registration no longer pending", zap.Int64("registration_id", r.ID))
			continue
		}
		n++
	}
	return n, errors.Join(errz...)
}

// List returns a page of registrations.
func (s *RegistrationServiceImpl) List(ctx context.Context, q model.ListQuery) (model.ListResult, error) {
	q = q.Normalize()
	items, total, err := s.regs.List(ctx, q)
	if err != nil {
		return model.ListResult{}, err
	}
	return model.NewListResult(items, total, q), nil
}

// ListOwned lists the caller's registrations; guests always get an empty page.
func (s *RegistrationServiceImpl) ListOwned(ctx context.Context, ownerID *int64, q model.ListQuery) (model.ListResult, error) {
	q = q.Normalize()
	if ownerID == nil {
		return model.NewListResult([]model.Registration{}, 0, q), nil
	}
	id := *ownerID
	q.Filter.OwnerID = &id
	return s.List(ctx, q)
}

// GetByID loads a registration.
func (s *RegistrationServiceImpl) GetByID(ctx context.Context, id int64) (*model.Registration, error) {
	return s.regs.GetByID(ctx, id)
}

// GetBySerialNumber loads the earliest registration with the serial.
func (s *RegistrationServiceImpl) GetBySerialNumber(ctx context.Context, serial string) (*model.Registration, error) {
	serial = model.NormalizeSerial(serial)
	if serial == "" {
		return nil, fmt.Errorf("serial_number: %w", errs.ErrInvalidInput)
	}
	return s.regs.GetBySerialNumber(ctx, serial)
}

// Delete removes a registration.
func (s *RegistrationServiceImpl) Delete(ctx context.Context, id int64) (bool, error) {
	return s.regs.Delete(ctx, id)
}
