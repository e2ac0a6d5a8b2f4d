// Package grpcserver exposes the administrative gRPC API of the warranty service.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/and161185/warranty-keeper/internal/convert"
	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/and161185/warranty-keeper/internal/queue"
	"github.com/and161185/warranty-keeper/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Publisher enqueues mass-status commands for the consumer.
type Publisher interface {
	Publish(ctx context.Context, topic string, body []byte) (string, error)
}

// Admin implements AdminServer on top of the registration workflow.
type Admin struct {
	regs service.RegistrationService
	pub  Publisher
	log  *zap.Logger
}

// NewAdmin wires the admin handlers. pub may be nil, in which case
// EnqueueMassStatus reports Unavailable.
func NewAdmin(regs service.RegistrationService, pub Publisher, log *zap.Logger) *Admin {
	if log == nil {
		log = zap.NewNop()
	}
	return &Admin{regs: regs, pub: pub, log: log}
}

var _ AdminServer = (*Admin)(nil)

// toStatus maps domain errors to gRPC status codes.
func toStatus(op string, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, errs.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, errs.ErrInvalidInput),
		errors.Is(err, errs.ErrInvalidStatus),
		errors.Is(err, errs.ErrInvalidProduct),
		errors.Is(err, errs.ErrInvalidOrder):
		code = codes.InvalidArgument
	case errors.Is(err, errs.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, errs.ErrForbidden):
		code = codes.PermissionDenied
	case errors.Is(err, errs.ErrDuplicateRegistration), errors.Is(err, errs.ErrAlreadyExists):
		code = codes.AlreadyExists
	case errors.Is(err, errs.ErrInvalidState):
		code = codes.FailedPrecondition
	case errors.Is(err, errs.ErrValidationUnavailable), errors.Is(err, errs.ErrConnectionLost):
		code = codes.Unavailable
	case errors.Is(err, errs.ErrRateLimited):
		code = codes.ResourceExhausted
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		return status.Errorf(codes.Internal, "%s: internal error", op)
	}
	return status.Errorf(code, "%s: %v", op, err)
}

// GetRegistration looks a registration up by id, or by serial number when id is zero.
func (a *Admin) GetRegistration(ctx context.Context, req *GetRegistrationRequest) (*convert.Registration, error) {
	var (
		r   *model.Registration
		err error
	)
	switch {
	case req.ID > 0:
		r, err = a.regs.GetByID(ctx, req.ID)
	case req.SerialNumber != "":
		r, err = a.regs.GetBySerialNumber(ctx, req.SerialNumber)
	default:
		return nil, status.Error(codes.InvalidArgument, "id or serial_number required")
	}
	if err != nil {
		return nil, toStatus("get registration", err)
	}
	out := convert.ToRegistration(*r)
	return &out, nil
}

// ListRegistrations returns a page across all owners.
func (a *Admin) ListRegistrations(ctx context.Context, req *ListRegistrationsRequest) (*convert.RegistrationPage, error) {
	q := model.ListQuery{
		Filter: model.ListFilter{
			OwnerID:            req.OwnerID,
			ProductKeyContains: req.ProductSKU,
			SerialContains:     req.Serial,
		},
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	q.SortBy, q.SortDesc = convert.ParseSort(req.Sort)
	if req.Status != "" {
		st, err := convert.ParseStatus(req.Status)
		if err != nil {
			return nil, toStatus("list registrations", err)
		}
		q.Filter.Status = &st
	}
	res, err := a.regs.List(ctx, q)
	if err != nil {
		return nil, toStatus("list registrations", err)
	}
	out := convert.ToRegistrationPage(res)
	return &out, nil
}

func toAdminInput(in RegistrationInput) (model.AdminInput, error) {
	st := model.StatusPending
	if in.Status != "" {
		var err error
		if st, err = convert.ParseStatus(in.Status); err != nil {
			return model.AdminInput{}, err
		}
	}
	return model.AdminInput{
		OwnerID:        in.OwnerID,
		ProductKey:     in.ProductSKU,
		SerialNumber:   in.SerialNumber,
		PurchaseDate:   in.PurchaseDate,
		OrderReference: in.OrderReference,
		ProofURL:       in.ProofURL,
		Status:         st,
	}, nil
}

// CreateRegistration stores a registration on behalf of any customer, or none.
func (a *Admin) CreateRegistration(ctx context.Context, req *CreateRegistrationRequest) (*convert.Registration, error) {
	in, err := toAdminInput(req.Registration)
	if err != nil {
		return nil, toStatus("create registration", err)
	}
	r, err := a.regs.AdminSave(ctx, 0, in)
	if err != nil {
		return nil, toStatus("create registration", err)
	}
	out := convert.ToRegistration(*r)
	return &out, nil
}

// UpdateRegistration replaces every editable field of an existing registration.
func (a *Admin) UpdateRegistration(ctx context.Context, req *UpdateRegistrationRequest) (*convert.Registration, error) {
	if req.ID <= 0 {
		return nil, status.Error(codes.InvalidArgument, "id required")
	}
	in, err := toAdminInput(req.Registration)
	if err != nil {
		return nil, toStatus("update registration", err)
	}
	r, err := a.regs.AdminSave(ctx, req.ID, in)
	if err != nil {
		return nil, toStatus("update registration", err)
	}
	out := convert.ToRegistration(*r)
	return &out, nil
}

// SetStatus changes one registration's status.
func (a *Admin) SetStatus(ctx context.Context, req *SetStatusRequest) (*convert.Registration, error) {
	st, err := convert.ParseStatus(req.Status)
	if err != nil {
		return nil, toStatus("set status", err)
	}
	r, err := a.regs.SetStatus(ctx, req.ID, st)
	if err != nil {
		return nil, toStatus("set status", err)
	}
	out := convert.ToRegistration(*r)
	return &out, nil
}

// MassSetStatus applies a status to many registrations synchronously.
func (a *Admin) MassSetStatus(ctx context.Context, req *MassSetStatusRequest) (*MassSetStatusResponse, error) {
	if len(req.IDs) == 0 {
		return nil, status.Error(codes.InvalidArgument, "ids required")
	}
	st, err := convert.ParseStatus(req.Status)
	if err != nil {
		return nil, toStatus("mass set status", err)
	}
	n, err := a.regs.MassSetStatus(ctx, req.IDs, st)
	if err != nil {
		a.log.Warn("mass set status stopped", zap.Int("updated", n), zap.Error(err))
		return nil, toStatus("mass set status", err)
	}
	return &MassSetStatusResponse{Updated: n}, nil
}

// ExpirePending runs the expiry sweep on demand.
func (a *Admin) ExpirePending(ctx context.Context, req *ExpirePendingRequest) (*ExpirePendingResponse, error) {
	n, err := a.regs.ExpirePending(ctx, req.MaxAgeDays)
	if err != nil && n == 0 {
		return nil, toStatus("expire pending", err)
	}
	resp := &ExpirePendingResponse{Rejected: n}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp, nil
}

// DeleteRegistration removes a registration. Deleting a missing id is NotFound.
func (a *Admin) DeleteRegistration(ctx context.Context, req *DeleteRegistrationRequest) (*DeleteRegistrationResponse, error) {
	ok, err := a.regs.Delete(ctx, req.ID)
	if err != nil {
		return nil, toStatus("delete registration", err)
	}
	if !ok {
		return nil, status.Error(codes.NotFound, "delete registration: not found")
	}
	return &DeleteRegistrationResponse{Deleted: true}, nil
}

// EnqueueMassStatus publishes a mass-status command for asynchronous processing.
func (a *Admin) EnqueueMassStatus(ctx context.Context, req *EnqueueMassStatusRequest) (*EnqueueMassStatusResponse, error) {
	if a.pub == nil {
		return nil, status.Error(codes.Unavailable, "queue not configured")
	}
	if len(req.IDs) == 0 {
		return nil, status.Error(codes.InvalidArgument, "ids required")
	}
	st, err := convert.ParseStatus(req.Status)
	if err != nil {
		return nil, toStatus("enqueue mass status", err)
	}
	body, err := json.Marshal(model.MassStatusCommand{RegistrationIDs: req.IDs, Status: st})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode command: %v", err)
	}
	id, err := a.pub.Publish(ctx, queue.TopicMassStatus, body)
	if err != nil {
		a.log.Error("enqueue mass status", zap.Error(err))
		return nil, status.Error(codes.Unavailable, "enqueue mass status: queue unavailable")
	}
	return &EnqueueMassStatusResponse{MessageID: id}, nil
}
