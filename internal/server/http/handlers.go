package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/warranty-keeper/internal/authctx"
	"github.com/and161185/warranty-keeper/internal/convert"
	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 16

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR",
				fmt.Sprintf("field %s failed %q", ve[0].Field(), ve[0].Tag()))
			return false
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request")
		return false
	}
	return true
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.auth.Register(r.Context(), req.Email, req.Password, false)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{AccountID: id})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}
	tok, acc, err := h.auth.LoginWithIP(r.Context(), req.Email, req.Password, r.RemoteAddr)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt.UTC().Format(time.RFC3339),
		AccountID:   acc.ID,
	})
}

func (h *Handler) createRegistration(w http.ResponseWriter, r *http.Request) {
	var req createRegistrationRequest
	if !h.decode(w, r, &req) {
		return
	}
	reg, err := h.regs.Submit(r.Context(), authctx.AccountID(r.Context()), req.toInput())
	if err != nil {
		h.logFailure("submit registration", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToRegistration(*reg))
}

func (h *Handler) updateRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req updateRegistrationRequest
	if !h.decode(w, r, &req) {
		return
	}
	patch := req.toPatch()
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "nothing to update")
		return
	}
	reg, err := h.regs.UpdateOwned(r.Context(), authctx.AccountID(r.Context()), id, patch)
	if err != nil {
		h.logFailure("update registration", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToRegistration(*reg))
}

func (h *Handler) getRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	caller, _ := authctx.CallerFrom(r.Context())
	reg, err := h.regs.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !caller.Admin && !reg.OwnedBy(caller.AccountID) {
		writeDomainError(w, errs.ErrForbidden)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToRegistration(*reg))
}

// listRegistrations lists the caller's registrations. Admins see everyone's
// and may narrow by owner_id.
func (h *Handler) listRegistrations(w http.ResponseWriter, r *http.Request) {
	q, err := parseListQuery(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	caller, _ := authctx.CallerFrom(r.Context())

	var res model.ListResult
	if caller.Admin {
		res, err = h.regs.List(r.Context(), q)
	} else {
		res, err = h.regs.ListOwned(r.Context(), authctx.AccountID(r.Context()), q)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToRegistrationPage(res))
}

func parseListQuery(r *http.Request) (model.ListQuery, error) {
	v := r.URL.Query()
	var q model.ListQuery
	q.Filter.ProductKeyContains = v.Get("product_sku")
	q.Filter.SerialContains = v.Get("serial")
	q.SortBy, q.SortDesc = convert.ParseSort(v.Get("sort"))

	if s := v.Get("status"); s != "" {
		st, err := convert.ParseStatus(s)
		if err != nil {
			return q, err
		}
		q.Filter.Status = &st
	}
	ints := []struct {
		name string
		dst  *int
	}{{"page", &q.Page}, {"page_size", &q.PageSize}}
	for _, p := range ints {
		if s := v.Get(p.name); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil {
				return q, fmt.Errorf("%s: %w", p.name, errs.ErrInvalidInput)
			}
			*p.dst = n
		}
	}
	if s := v.Get("owner_id"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return q, fmt.Errorf("owner_id: %w", errs.ErrInvalidInput)
		}
		q.Filter.OwnerID = &n
	}
	return q, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "bad id")
		return 0, false
	}
	return id, true
}

// logFailure logs errors that map to 5xx; client errors are only logged by the access log.
func (h *Handler) logFailure(op string, err error) {
	if status, _, _ := mapDomainError(err); status >= http.StatusInternalServerError {
		h.log.Error(op, zap.Error(err))
	}
}
