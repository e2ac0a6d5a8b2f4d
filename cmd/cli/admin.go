package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/and161185/warranty-keeper/internal/convert"
	grpcserver "github.com/and161185/warranty-keeper/internal/server/grpc"
	"google.golang.org/grpc"
)

// adminAPI is implemented by *grpcserver.AdminClient.
type adminAPI interface {
	GetRegistration(ctx context.Context, in *grpcserver.GetRegistrationRequest, opts ...grpc.CallOption) (*convert.Registration, error)
	ListRegistrations(ctx context.Context, in *grpcserver.ListRegistrationsRequest, opts ...grpc.CallOption) (*convert.RegistrationPage, error)
	CreateRegistration(ctx context.Context, in *grpcserver.CreateRegistrationRequest, opts ...grpc.CallOption) (*convert.Registration, error)
	UpdateRegistration(ctx context.Context, in *grpcserver.UpdateRegistrationRequest, opts ...grpc.CallOption) (*convert.Registration, error)
	SetStatus(ctx context.Context, in *grpcserver.SetStatusRequest, opts ...grpc.CallOption) (*convert.Registration, error)
	MassSetStatus(ctx context.Context, in *grpcserver.MassSetStatusRequest, opts ...grpc.CallOption) (*grpcserver.MassSetStatusResponse, error)
	ExpirePending(ctx context.Context, in *grpcserver.ExpirePendingRequest, opts ...grpc.CallOption) (*grpcserver.ExpirePendingResponse, error)
	DeleteRegistration(ctx context.Context, in *grpcserver.DeleteRegistrationRequest, opts ...grpc.CallOption) (*grpcserver.DeleteRegistrationResponse, error)
	EnqueueMassStatus(ctx context.Context, in *grpcserver.EnqueueMassStatusRequest, opts ...grpc.CallOption) (*grpcserver.EnqueueMassStatusResponse, error)
}

var errUnknownCommand = errors.New("unknown command")

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// registrationFlags binds the editable registration fields to fs. The returned
// func reads them after parsing.
func registrationFlags(fs *flag.FlagSet) func() (grpcserver.RegistrationInput, error) {
	owner := fs.Int64("owner", 0, "customer account id (0 = guest)")
	sku := fs.String("sku", "", "product sku")
	serial := fs.String("serial", "", "serial number")
	date := fs.String("date", "", "purchase date YYYY-MM-DD")
	order := fs.String("order", "", "order reference")
	proof := fs.String("proof", "", "proof of purchase URL")
	st := fs.String("status", "", "status (default pending)")
	return func() (grpcserver.RegistrationInput, error) {
		if *sku == "" || *serial == "" || *date == "" {
			return grpcserver.RegistrationInput{}, errors.New("need -sku, -serial and -date")
		}
		in := grpcserver.RegistrationInput{ProductSKU: *sku, SerialNumber: *serial, PurchaseDate: *date, Status: *st}
		if *owner > 0 {
			in.OwnerID = owner
		}
		if *order != "" {
			in.OrderReference = order
		}
		if *proof != "" {
			in.ProofURL = proof
		}
		return in, nil
	}
}

// runAdmin executes one admin subcommand and prints the JSON result to out.
func runAdmin(ctx context.Context, cli adminAPI, cmd string, args []string, out io.Writer) error {
	var (
		res any
		err error
	)
	switch cmd {
	case "get":
		fs := newFlagSet(cmd)
		id := fs.Int64("id", 0, "registration id")
		serial := fs.String("serial", "", "serial number")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id <= 0 && *serial == "" {
			return errors.New("need -id or -serial")
		}
		res, err = cli.GetRegistration(ctx, &grpcserver.GetRegistrationRequest{ID: *id, SerialNumber: *serial})

	case "list":
		fs := newFlagSet(cmd)
		req := &grpcserver.ListRegistrationsRequest{}
		owner := fs.Int64("owner", 0, "owner account id")
		fs.StringVar(&req.Status, "status", "", "status filter")
		fs.StringVar(&req.ProductSKU, "sku", "", "product sku contains")
		fs.StringVar(&req.Serial, "serial", "", "serial contains")
		fs.StringVar(&req.Sort, "sort", "", "sort column, prefix with - for descending")
		fs.IntVar(&req.Page, "page", 1, "page number")
		fs.IntVar(&req.PageSize, "size", 20, "page size")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *owner > 0 {
			req.OwnerID = owner
		}
		res, err = cli.ListRegistrations(ctx, req)

	case "create":
		fs := newFlagSet(cmd)
		input := registrationFlags(fs)
		if err := fs.Parse(args); err != nil {
			return err
		}
		in, ierr := input()
		if ierr != nil {
			return ierr
		}
		res, err = cli.CreateRegistration(ctx, &grpcserver.CreateRegistrationRequest{Registration: in})

	case "update":
		fs := newFlagSet(cmd)
		id := fs.Int64("id", 0, "registration id")
		input := registrationFlags(fs)
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id <= 0 {
			return errors.New("need -id")
		}
		in, ierr := input()
		if ierr != nil {
			return ierr
		}
		res, err = cli.UpdateRegistration(ctx, &grpcserver.UpdateRegistrationRequest{ID: *id, Registration: in})

	case "set-status":
		fs := newFlagSet(cmd)
		id := fs.Int64("id", 0, "registration id")
		st := fs.String("status", "", "new status")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id <= 0 || *st == "" {
			return errors.New("need -id and -status")
		}
		res, err = cli.SetStatus(ctx, &grpcserver.SetStatusRequest{ID: *id, Status: *st})

	case "mass-status", "enqueue":
		fs := newFlagSet(cmd)
		rawIDs := fs.String("ids", "", "comma-separated registration ids")
		st := fs.String("status", "", "new status")
		if err := fs.Parse(args); err != nil {
			return err
		}
		ids, perr := parseIDs(*rawIDs)
		if perr != nil {
			return perr
		}
		if *st == "" {
			return errors.New("need -status")
		}
		if cmd == "enqueue" {
			res, err = cli.EnqueueMassStatus(ctx, &grpcserver.EnqueueMassStatusRequest{IDs: ids, Status: *st})
		} else {
			res, err = cli.MassSetStatus(ctx, &grpcserver.MassSetStatusRequest{IDs: ids, Status: *st})
		}

	case "expire":
		fs := newFlagSet(cmd)
		days := fs.Int("days", 0, "max age in days (0 = server default)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		res, err = cli.ExpirePending(ctx, &grpcserver.ExpirePendingRequest{MaxAgeDays: *days})

	case "rm":
		fs := newFlagSet(cmd)
		id := fs.Int64("id", 0, "registration id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *id <= 0 {
			return errors.New("need -id")
		}
		res, err = cli.DeleteRegistration(ctx, &grpcserver.DeleteRegistrationRequest{ID: *id})

	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
	}
	if err != nil {
		return err
	}
	printJSON(out, res)
	return nil
}
