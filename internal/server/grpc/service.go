package grpcserver

import (
	"context"

	"github.com/and161185/warranty-keeper/internal/convert"
	"google.golang.org/grpc"
)

// AdminServiceName is the fully qualified gRPC service name.
const AdminServiceName = "warranty.v1.Admin"

type GetRegistrationRequest struct {
	ID           int64  `json:"id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}

type ListRegistrationsRequest struct {
	Status     string `json:"status,omitempty"`
	OwnerID    *int64 `json:"owner_id,omitempty"`
	ProductSKU string `json:"product_sku,omitempty"`
	Serial     string `json:"serial,omitempty"`
	Sort       string `json:"sort,omitempty"` // "column" or "-column"
	Page       int    `json:"page,omitempty"`
	PageSize   int    `json:"page_size,omitempty"`
}

// RegistrationInput carries every administrator-editable field. An empty
// Status means pending.
type RegistrationInput struct {
	OwnerID        *int64  `json:"owner_id,omitempty"`
	ProductSKU     string  `json:"product_sku"`
	SerialNumber   string  `json:"serial_number"`
	PurchaseDate   string  `json:"purchase_date"`
	OrderReference *string `json:"order_reference,omitempty"`
	ProofURL       *string `json:"proof_url,omitempty"`
	Status         string  `json:"status,omitempty"`
}

type CreateRegistrationRequest struct {
	Registration RegistrationInput `json:"registration"`
}

type UpdateRegistrationRequest struct {
	ID           int64             `json:"id"`
	Registration RegistrationInput `json:"registration"`
}

type SetStatusRequest struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type MassSetStatusRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

type MassSetStatusResponse struct {
	Updated int `json:"updated"`
}

type ExpirePendingRequest struct {
	MaxAgeDays int `json:"max_age_days,omitempty"`
}

// ExpirePendingResponse reports the rejected count. Error is set when some
// registrations could not be expired.
type ExpirePendingResponse struct {
	Rejected int    `json:"rejected"`
	Error    string `json:"error,omitempty"`
}

type DeleteRegistrationRequest struct {
	ID int64 `json:"id"`
}

type DeleteRegistrationResponse struct {
	Deleted bool `json:"deleted"`
}

type EnqueueMassStatusRequest struct {
	IDs    []int64 `json:"ids"`
	Status string  `json:"status"`
}

type EnqueueMassStatusResponse struct {
	MessageID string `json:"message_id"`
}

// AdminServer is the server API of warranty.v1.Admin.
type AdminServer interface {
	GetRegistration(context.Context, *GetRegistrationRequest) (*convert.Registration, error)
	ListRegistrations(context.Context, *ListRegistrationsRequest) (*convert.RegistrationPage, error)
	CreateRegistration(context.Context, *CreateRegistrationRequest) (*convert.Registration, error)
	UpdateRegistration(context.Context, *UpdateRegistrationRequest) (*convert.Registration, error)
	SetStatus(context.Context, *SetStatusRequest) (*convert.Registration, error)
	MassSetStatus(context.Context, *MassSetStatusRequest) (*MassSetStatusResponse, error)
	ExpirePending(context.Context, *ExpirePendingRequest) (*ExpirePendingResponse, error)
	DeleteRegistration(context.Context, *DeleteRegistrationRequest) (*DeleteRegistrationResponse, error)
	EnqueueMassStatus(context.Context, *EnqueueMassStatusRequest) (*EnqueueMassStatusResponse, error)
}

func unaryMethod[Req, Resp any](name string, call func(AdminServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if ic == nil {
				return call(srv.(AdminServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + AdminServiceName + "/" + name}
			return ic(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(AdminServer), ctx, req.(*Req))
			})
		},
	}
}

// AdminServiceDesc describes warranty.v1.Admin for grpc.Server.RegisterService.
var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetRegistration", AdminServer.GetRegistration),
		unaryMethod("ListRegistrations", AdminServer.ListRegistrations),
		unaryMethod("CreateRegistration", AdminServer.CreateRegistration),
		unaryMethod("UpdateRegistration", AdminServer.UpdateRegistration),
		unaryMethod("SetStatus", AdminServer.SetStatus),
		unaryMethod("MassSetStatus", AdminServer.MassSetStatus),
		unaryMethod("ExpirePending", AdminServer.ExpirePending),
		unaryMethod("DeleteRegistration", AdminServer.DeleteRegistration),
		unaryMethod("EnqueueMassStatus", AdminServer.EnqueueMassStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "warranty/v1/admin",
}

// RegisterAdminServer registers srv on s.
func RegisterAdminServer(s grpc.ServiceRegistrar, srv AdminServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

// AdminClient calls warranty.v1.Admin using the JSON codec.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient wraps an established connection.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient { return &AdminClient{cc: cc} }

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+AdminServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) GetRegistration(ctx context.Context, in *GetRegistrationRequest, opts ...grpc.CallOption) (*convert.Registration, error) {
	return invoke[GetRegistrationRequest, convert.Registration](ctx, c.cc, "GetRegistration", in, opts)
}

func (c *AdminClient) ListRegistrations(ctx context.Context, in *ListRegistrationsRequest, opts ...grpc.CallOption) (*convert.RegistrationPage, error) {
	return invoke[ListRegistrationsRequest, convert.RegistrationPage](ctx, c.cc, "ListRegistrations", in, opts)
}

func (c *AdminClient) CreateRegistration(ctx context.Context, in *CreateRegistrationRequest, opts ...grpc.CallOption) (*convert.Registration, error) {
	return invoke[CreateRegistrationRequest, convert.Registration](ctx, c.cc, "CreateRegistration", in, opts)
}

func (c *AdminClient) UpdateRegistration(ctx context.Context, in *UpdateRegistrationRequest, opts ...grpc.CallOption) (*convert.Registration, error) {
	return invoke[UpdateRegistrationRequest, convert.Registration](ctx, c.cc, "UpdateRegistration", in, opts)
}

func (c *AdminClient) SetStatus(ctx context.Context, in *SetStatusRequest, opts ...grpc.CallOption) (*convert.Registration, error) {
	return invoke[SetStatusRequest, convert.Registration](ctx, c.cc, "SetStatus", in, opts)
}

func (c *AdminClient) MassSetStatus(ctx context.Context, in *MassSetStatusRequest, opts ...grpc.CallOption) (*MassSetStatusResponse, error) {
	return invoke[MassSetStatusRequest, MassSetStatusResponse](ctx, c.cc, "MassSetStatus", in, opts)
}

func (c *AdminClient) ExpirePending(ctx context.Context, in *ExpirePendingRequest, opts ...grpc.CallOption) (*ExpirePendingResponse, error) {
	return invoke[ExpirePendingRequest, ExpirePendingResponse](ctx, c.cc, "ExpirePending", in, opts)
}

func (c *AdminClient) DeleteRegistration(ctx context.Context, in *DeleteRegistrationRequest, opts ...grpc.CallOption) (*DeleteRegistrationResponse, error) {
	return invoke[DeleteRegistrationRequest, DeleteRegistrationResponse](ctx, c.cc, "DeleteRegistration", in, opts)
}

func (c *AdminClient) EnqueueMassStatus(ctx context.Context, in *EnqueueMassStatusRequest, opts ...grpc.CallOption) (*EnqueueMassStatusResponse, error) {
	return invoke[EnqueueMassStatusRequest, EnqueueMassStatusResponse](ctx, c.cc, "EnqueueMassStatus", in, opts)
}
