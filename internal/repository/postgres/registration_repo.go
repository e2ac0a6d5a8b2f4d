package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/and161185/warranty-keeper/internal/errs"
	"github.com/and161185/warranty-keeper/internal/model"
	"github.com/jackc/pgx/v5"
)

const registrationCols = `id, owner_id, product_sku, serial_number, to_char(purchase_date, 'YYYY-MM-DD'), order_reference, proof_url, status, created_at, updated_at`

// sortColumns whitelists the columns a listing may be ordered by.
var sortColumns = map[string]string{
	"id":            "id",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
	"purchase_date": "purchase_date",
	"status":        "status",
	"product_sku":   "product_sku",
	"serial_number": "serial_number",
}

// RegistrationRepo implements RegistrationRepository using PostgreSQL.
type RegistrationRepo struct{ db *DB }

// NewRegistrationRepo constructs a registration repository.
func NewRegistrationRepo(db *DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var r model.Registration
	if err := row.Scan(
		&r.ID, &r.OwnerID, &r.ProductKey, &r.SerialNumber, &r.PurchaseDate,
		&r.OrderReference, &r.ProofURL, &r.Status, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create inserts a registration; the serial is normalized on the way in.
func (r *RegistrationRepo) Create(ctx context.Context, reg *model.Registration) error {
	const q = `
INSERT INTO registrations (owner_id, product_sku, serial_number, purchase_date, order_reference, proof_url, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at, updated_at`
	reg.SerialNumber = model.NormalizeSerial(reg.SerialNumber)
	err := r.db.Pool.QueryRow(ctx, q,
		reg.OwnerID, reg.ProductKey, reg.SerialNumber, reg.PurchaseDate,
		reg.OrderReference, reg.ProofURL, reg.Status,
	).Scan(&reg.ID, &reg.CreatedAt, &reg.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateRegistration
	}
	return err
}

// GetByID selects a registration by ID.
func (r *RegistrationRepo) GetByID(ctx context.Context, id int64) (*model.Registration, error) {
	q := `SELECT ` + registrationCols + ` FROM registrations WHERE id=$1`
	reg, err := scanRegistration(r.db.Pool.QueryRow(ctx, q, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return reg, nil
}

// GetBySerialNumber selects the oldest registration carrying the serial.
func (r *RegistrationRepo) GetBySerialNumber(ctx context.Context, serial string) (*model.Registration, error) {
	q := `SELECT ` + registrationCols + ` FROM registrations WHERE serial_number=$1 ORDER BY created_at, id LIMIT 1`
	reg, err := scanRegistration(r.db.Pool.QueryRow(ctx, q, model.NormalizeSerial(serial)))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return reg, nil
}

// Update writes every mutable column and refreshes updated_at.
func (r *RegistrationRepo) Update(ctx context.Context, reg *model.Registration) error {
	const q = `
UPDATE registrations
SET owner_id=$2, product_sku=$3, serial_number=$4, purchase_date=$5,
    order_reference=$6, proof_url=$7, status=$8, updated_at=now()
WHERE id=$1
RETURNING updated_at`
	reg.SerialNumber = model.NormalizeSerial(reg.SerialNumber)
	err := r.db.Pool.QueryRow(ctx, q,
		reg.ID, reg.OwnerID, reg.ProductKey, reg.SerialNumber, reg.PurchaseDate,
		reg.OrderReference, reg.ProofURL, reg.Status,
	).Scan(&reg.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.ErrDuplicateRegistration
	}
	return mapNoRows(err)
}

// SetStatus updates only the status column.
func (r *RegistrationRepo) SetStatus(ctx context.Context, id int64, status model.Status) (*model.Registration, error) {
	q := `UPDATE registrations SET status=$2, updated_at=now() WHERE id=$1 RETURNING ` + registrationCols
	reg, err := scanRegistration(r.db.Pool.QueryRow(ctx, q, id, status))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return reg, nil
}

// TransitionStatus updates the status only while the row still holds from.
func (r *RegistrationRepo) TransitionStatus(ctx context.Context, id int64, from, to model.Status) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE registrations SET status=$3, updated_at=now() WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Delete removes a registration by ID.
func (r *RegistrationRepo) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM registrations WHERE id=$1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// List returns a filtered, sorted page and the total number of matches.
func (r *RegistrationRepo) List(ctx context.Context, lq model.ListQuery) ([]model.Registration, int, error) {
	lq = lq.Normalize()
	col, ok := sortColumns[lq.SortBy]
	if !ok {
		return nil, 0, fmt.Errorf("sort by %q: %w", lq.SortBy, errs.ErrInvalidInput)
	}

	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	f := lq.Filter
	if f.OwnerID != nil {
		add("owner_id=$%d", *f.OwnerID)
	}
	if f.Status != nil {
		add("status=$%d", *f.Status)
	}
	if f.ProductKeyContains != "" {
		add("product_sku LIKE $%d", containsPattern(f.ProductKeyContains))
	}
	if f.SerialContains != "" {
		add("serial_number LIKE $%d", containsPattern(model.NormalizeSerial(f.SerialContains)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM registrations`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	dir := "ASC"
	if lq.SortDesc {
		dir = "DESC"
	}
	order := col + " " + dir
	if col != "id" {
		order += ", id " + dir
	}
	q := fmt.Sprintf(`SELECT %s FROM registrations%s ORDER BY %s LIMIT %d OFFSET %d`,
		registrationCols, cond, order, lq.PageSize, (lq.Page-1)*lq.PageSize)
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Registration, 0, lq.PageSize)
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *reg)
	}
	return out, total, rows.Err()
}

// CountDuplicates counts rows sharing (product_sku, serial_number), optionally excluding one id.
func (r *RegistrationRepo) CountDuplicates(ctx context.Context, productKey, serial string, excludeID *int64) (int, error) {
	const q = `
SELECT count(*) FROM registrations
WHERE product_sku=$1 AND serial_number=$2 AND ($3::bigint IS NULL OR id <> $3)`
	var n int
	err := r.db.Pool.QueryRow(ctx, q, productKey, model.NormalizeSerial(serial), excludeID).Scan(&n)
	return n, err
}

// ListPendingCreatedBefore returns pending rows older than cutoff, oldest first.
func (r *RegistrationRepo) ListPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]model.Registration, error) {
	q := `SELECT ` + registrationCols + ` FROM registrations WHERE status=$1 AND created_at < $2 ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q, model.StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}
