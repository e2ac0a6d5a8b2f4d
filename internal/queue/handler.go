package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// StatusSetter is the workflow operation the mass-status handler drives.
type StatusSetter interface {
	MassSetStatus(ctx context.Context, ids []int64, status model.Status) (int, error)
}

// MassStatusHandler applies queued MassStatusCommand messages.
type MassStatusHandler struct {
	svc StatusSetter
	log *zap.Logger
}

var _ Handler = (*MassStatusHandler)(nil)

// NewMassStatusHandler constructs the handler.
func NewMassStatusHandler(svc StatusSetter, log *zap.Logger) *MassStatusHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MassStatusHandler{svc: svc, log: log}
}

// Handle decodes the command and applies it. Malformed commands are declined
// (ok=false); a command none of whose registrations exist yields errs.ErrNotFound.
func (h *MassStatusHandler) Handle(ctx context.Context, msg model.Message) (bool, error) {
	var cmd model.MassStatusCommand
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		h.log.Warn("mass status: bad payload", zap.String("message_id", msg.ID), zap.Error(err))
		return false, nil
	}
	if len(cmd.RegistrationIDs) == 0 || !cmd.Status.Valid() {
		h.log.Warn("mass status: empty ids or invalid status",
			zap.String("message_id", msg.ID), zap.Int("status", int(cmd.Status)))
		return false, nil
	}

	n, err := h.svc.MassSetStatus(ctx, cmd.RegistrationIDs, cmd.Status)
	if err != nil {
		if isConnectionLost(err) {
			return false, fmt.Errorf("%w: %v", errs.ErrConnectionLost, err)
		}
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("mass status: none of %v: %w", cmd.RegistrationIDs, errs.ErrNotFound)
	}
	h.log.Info("mass status applied",
		zap.String("message_id", msg.ID), zap.Int("updated", n), zap.Stringer("status", cmd.Status))
	return true, nil
}

// isConnectionLost reports whether err comes from a dropped database or network connection.
func isConnectionLost(err error) bool {
	if errors.Is(err, errs.ErrConnectionLost) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return !ne.Timeout()
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		// class 08: connection exception
		return len(pg.Code) == 5 && pg.Code[:2] == "08"
	}
	return pgconn.SafeToRetry(err)
}
