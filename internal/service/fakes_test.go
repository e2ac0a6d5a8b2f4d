package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/and161185/warranty-keeper/internal/repository"
)

// fakeRegs is an in-memory RegistrationRepository.
type fakeRegs struct {
	mu     sync.Mutex
	rows   map[int64]model.Registration
	nextID int64
	now    time.Time

	countErr     error
	updateErr    error
	setStatusErr map[int64]error
	updates      int

	// afterListPending runs once the pending snapshot is taken, outside the lock.
	afterListPending func()
}

var _ repository.RegistrationRepository = (*fakeRegs)(nil)

func newFakeRegs() *fakeRegs {
	return &fakeRegs{rows: map[int64]model.Registration{}, now: time.Now()}
}

func (f *fakeRegs) dup(sku, serial string, exclude int64) bool {
	for id, r := range f.rows {
		if id != exclude && r.ProductKey == sku && r.SerialNumber == model.NormalizeSerial(serial) {
			return true
		}
	}
	return false
}

func (f *fakeRegs) Create(_ context.Context, r *model.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.SerialNumber = model.NormalizeSerial(r.SerialNumber)
	if f.dup(r.ProductKey, r.SerialNumber, 0) {
		return errs.ErrDuplicateRegistration
	}
	f.nextID++
	r.ID = f.nextID
	r.CreatedAt, r.UpdatedAt = f.now, f.now
	f.rows[r.ID] = *r
	return nil
}

func (f *fakeRegs) put(r model.Registration) model.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.ID == 0 {
		f.nextID++
		r.ID = f.nextID
	} else if r.ID > f.nextID {
		f.nextID = r.ID
	}
	f.rows[r.ID] = r
	return r
}

func (f *fakeRegs) GetByID(_ context.Context, id int64) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRegs) GetBySerialNumber(_ context.Context, serial string) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Registration
	for _, r := range f.rows {
		if r.SerialNumber != model.NormalizeSerial(serial) {
			continue
		}
		if best == nil || r.ID < best.ID {
			c := r
			best = &c
		}
	}
	if best == nil {
		return nil, errs.ErrNotFound
	}
	return best, nil
}

func (f *fakeRegs) Update(_ context.Context, r *model.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.rows[r.ID]; !ok {
		return errs.ErrNotFound
	}
	r.SerialNumber = model.NormalizeSerial(r.SerialNumber)
	if f.dup(r.ProductKey, r.SerialNumber, r.ID) {
		return errs.ErrDuplicateRegistration
	}
	f.updates++
	f.rows[r.ID] = *r
	return nil
}

func (f *fakeRegs) SetStatus(_ context.Context, id int64, st model.Status) (*model.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setStatusErr[id]; err != nil {
		return nil, err
	}
	r, ok := f.rows[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	r.Status = st
	f.rows[id] = r
	return &r, nil
}

func (f *fakeRegs) TransitionStatus(_ context.Context, id int64, from, to model.Status) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setStatusErr[id]; err != nil {
		return false, err
	}
	r, ok := f.rows[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	f.rows[id] = r
	return true, nil
}

func (f *fakeRegs) Delete(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[id]
	delete(f.rows, id)
	return ok, nil
}

func (f *fakeRegs) List(_ context.Context, q model.ListQuery) ([]model.Registration, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q = q.Normalize()
	var all []model.Registration
	for _, r := range f.rows {
		fl := q.Filter
		if fl.OwnerID != nil && !r.OwnedBy(*fl.OwnerID) {
			continue
		}
		if fl.Status != nil && r.Status != *fl.Status {
			continue
		}
		if fl.ProductKeyContains != "" && !strings.Contains(r.ProductKey, fl.ProductKeyContains) {
			continue
		}
		if fl.SerialContains != "" && !strings.Contains(r.SerialNumber, model.NormalizeSerial(fl.SerialContains)) {
			continue
		}
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if q.SortDesc {
		sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	}
	total := len(all)
	from := (q.Page - 1) * q.PageSize
	if from > total {
		from = total
	}
	to := from + q.PageSize
	if to > total {
		to = total
	}
	return all[from:to], total, nil
}

func (f *fakeRegs) CountDuplicates(_ context.Context, sku, serial string, exclude *int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	n := 0
	for id, r := range f.rows {
		if exclude != nil && id == *exclude {
			continue
		}
		if r.ProductKey == sku && r.SerialNumber == model.NormalizeSerial(serial) {
			n++
		}
	}
	return n, nil
}

func (f *fakeRegs) ListPendingCreatedBefore(_ context.Context, cutoff time.Time) ([]model.Registration, error) {
	f.mu.Lock()
	var out []model.Registration
	for _, r := range f.rows {
		if r.Status == model.StatusPending && r.CreatedAt.Before(cutoff) {
			out = append(out, r)
		}
	}
	hook := f.afterListPending
	f.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if hook != nil {
		hook()
	}
	return out, nil
}

type fakeCatalog struct {
	skus map[string]bool
	err  error
}

func (c *fakeCatalog) ProductExists(_ context.Context, sku string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.skus[sku], nil
}

type fakeOrders struct {
	byRef map[string]int64
}

func (o *fakeOrders) GetOrder(_ context.Context, ref string) (*model.Order, error) {
	owner, ok := o.byRef[ref]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &model.Order{Reference: ref, OwnerID: owner}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	approved []int64
	err      error
}

func (n *recordingNotifier) NotifyApproved(_ context.Context, r model.Registration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.approved = append(n.approved, r.ID)
	return n.err
}
