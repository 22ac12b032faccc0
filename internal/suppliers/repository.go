package suppliers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/posadmin/posadmin/internal/platform/db"
	"github.com/posadmin/posadmin/internal/shared"
)

// Store is the persistence port of the suppliers service. Inside WithTx the
// callback receives a Store bound to the transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Store) error) error

	List(ctx context.Context, f ListFilters) ([]Supplier, int, error)
	ListAll(ctx context.Context, f ListFilters) ([]Supplier, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	FindByName(ctx context.Context, name string) (Supplier, error)
	NameTaken(ctx context.Context, name string, excludeID int64) (bool, error)
	CodeTaken(ctx context.Context, code string, excludeID int64) (bool, error)
	MaxCodeSuffix(ctx context.Context, prefix string) (int, error)
	Insert(ctx context.Context, s Supplier) (int64, error)
	Update(ctx context.Context, s Supplier) error
	Delete(ctx context.Context, id int64) error
	ProductCount(ctx context.Context, id int64) (int, error)
	SetStatus(ctx context.Context, ids []int64, status string) (int64, error)
	SetWorkflowState(ctx context.Context, id int64, state WorkflowState) error
	Names(ctx context.Context) ([]Supplier, error)
	Merge(ctx context.Context, keepID int64, dropIDs []int64) (map[string]int64, error)
	ActiveSupplierIDs(ctx context.Context) ([]int64, error)
	RecordActivity(ctx context.Context, log shared.ActivityLog) error

	ListDocuments(ctx context.Context, supplierID int64) ([]Document, error)
	GetDocument(ctx context.Context, supplierID, docID int64) (Document, error)
	InsertDocument(ctx context.Context, d Document) (int64, error)
	DeleteDocument(ctx context.Context, supplierID, docID int64) error
	DocumentFiles(ctx context.Context, supplierIDs []int64) ([]string, error)
	ExpiringDocuments(ctx context.Context, until time.Time) ([]Document, error)

	ListCommunications(ctx context.Context, supplierID int64, limit int) ([]Communication, error)
	InsertCommunication(ctx context.Context, c Communication) (int64, error)
	DeleteCommunication(ctx context.Context, supplierID, commID int64) error
	FollowUps(ctx context.Context, until time.Time) ([]Communication, error)

	InsertWorkflowChange(ctx context.Context, c WorkflowChange) error
	WorkflowHistory(ctx context.Context, supplierID int64) ([]WorkflowChange, error)

	Orders(ctx context.Context, supplierID int64, from, to time.Time) ([]Order, error)
	InsertMetric(ctx context.Context, m Metric) (int64, error)
	LatestMetric(ctx context.Context, supplierID int64) (*Metric, error)
	MetricHistory(ctx context.Context, supplierID int64, limit int) ([]Metric, error)
	Ranking(ctx context.Context) ([]Metric, error)

	InsertAlert(ctx context.Context, a Alert) (int64, error)
	ListAlerts(ctx context.Context, supplierID int64, status string) ([]Alert, error)
	OpenAlertExists(ctx context.Context, supplierID int64, metric string) (bool, error)
	ResolveAlert(ctx context.Context, id int64) error
	DeleteAlert(ctx context.Context, id int64) error
}

// Repository implements Store with pgx.
type Repository struct {
	pool *pgxpool.Pool
	db   db.DBTX
	inTx bool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// WithTx wraps fn in a repeatable-read transaction. Nested calls reuse the
// outer transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &Repository{pool: r.pool, db: tx, inTx: true})
	})
}

const supplierColumns = `s.id, s.code, s.name, s.contact_person, s.email, s.phone, s.address, s.city, s.country,
       s.tax_id, s.payment_terms, s.notes, s.status, s.workflow_state, s.created_by, s.created_at, s.updated_at,
       (SELECT COUNT(*) FROM products p WHERE p.supplier_id = s.id)`

func scanSupplier(row pgx.Row) (Supplier, error) {
	var s Supplier
	var state string
	err := row.Scan(&s.ID, &s.Code, &s.Name, &s.ContactPerson, &s.Email, &s.Phone, &s.Address, &s.City, &s.Country,
		&s.TaxID, &s.PaymentTerms, &s.Notes, &s.Status, &state, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &s.ProductCount)
	s.WorkflowState = WorkflowState(state)
	return s, err
}

func collectSuppliers(rows pgx.Rows) ([]Supplier, error) {
	defer rows.Close()
	var out []Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// whereClause builds the filter predicate shared by List, ListAll and the count.
func whereClause(f ListFilters) (string, []any) {
	var conds []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		p := next("%" + escapeLike(q) + "%")
		conds = append(conds, "(s.name ILIKE "+p+" OR s.code ILIKE "+p+" OR s.email ILIKE "+p+")")
	}
	if f.Status == StatusActive || f.Status == StatusInactive {
		conds = append(conds, "s.status = "+next(f.Status))
	}
	if WorkflowState(f.WorkflowState).Valid() {
		conds = append(conds, "s.workflow_state = "+next(f.WorkflowState))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if strings.EqualFold(sortDir, "desc") {
		dir = "DESC"
	}
	switch sortBy {
	case SortCode:
		return "s.code " + dir + ", s.id"
	case SortCreatedAt:
		return "s.created_at " + dir + ", s.id"
	default:
		return "lower(s.name) " + dir + ", s.id"
	}
}

// List returns one page of suppliers and the total match count.
func (r *Repository) List(ctx context.Context, f ListFilters) ([]Supplier, int, error) {
	where, args := whereClause(f)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM suppliers s`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := (f.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + supplierColumns + ` FROM suppliers s` + where +
		` ORDER BY ` + sortOrder(f.SortBy, f.SortDir) +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	rows, err := r.db.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collectSuppliers(rows)
	return out, total, err
}

// ListAll returns every supplier matching f, for export.
func (r *Repository) ListAll(ctx context.Context, f ListFilters) ([]Supplier, error) {
	where, args := whereClause(f)
	rows, err := r.db.Query(ctx, `SELECT `+supplierColumns+` FROM suppliers s`+where+` ORDER BY `+sortOrder(f.SortBy, f.SortDir), args...)
	if err != nil {
		return nil, err
	}
	return collectSuppliers(rows)
}

// Get fetches one supplier.
func (r *Repository) Get(ctx context.Context, id int64) (Supplier, error) {
	s, err := scanSupplier(r.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers s WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	return s, err
}

// FindByName looks a supplier up by its duplicate key (see NormalizeName).
// Rows written outside the app carry no key and match on the trimmed,
// lower-cased name instead.
func (r *Repository) FindByName(ctx context.Context, name string) (Supplier, error) {
	s, err := scanSupplier(r.db.QueryRow(ctx, `SELECT `+supplierColumns+` FROM suppliers s
WHERE s.name_key = $1 OR lower(btrim(s.name)) = lower(btrim($2))
ORDER BY s.id LIMIT 1`, NormalizeName(name), name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Supplier{}, ErrNotFound
	}
	return s, err
}

// NameTaken reports whether another supplier uses name.
func (r *Repository) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers
WHERE (name_key = $1 OR lower(btrim(name)) = lower(btrim($2))) AND id <> $3)`,
		NormalizeName(name), name, excludeID).Scan(&taken)
	return taken, err
}

// CodeTaken reports whether another supplier uses code.
func (r *Repository) CodeTaken(ctx context.Context, code string, excludeID int64) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM suppliers WHERE upper(code) = upper($1) AND id <> $2)`,
		code, excludeID).Scan(&taken)
	return taken, err
}

// MaxCodeSuffix returns the highest numeric suffix of codes starting with prefix.
func (r *Repository) MaxCodeSuffix(ctx context.Context, prefix string) (int, error) {
	var max int
	err := r.db.QueryRow(ctx, `SELECT COALESCE(MAX(CAST(substring(code FROM char_length($1) + 1) AS BIGINT)), 0)
FROM suppliers WHERE code ~ ('^' || $2 || '[0-9]+$')`, prefix, regexQuote(prefix)).Scan(&max)
	return max, err
}

func regexQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func mapUniqueViolation(err error) error {
	if !db.IsUniqueViolation(err) {
		return err
	}
	if strings.Contains(db.ConstraintName(err), "code") {
		return ErrDuplicateCode
	}
	return ErrDuplicateName
}

// Insert creates a supplier and returns its id.
func (r *Repository) Insert(ctx context.Context, s Supplier) (int64, error) {
	state := s.WorkflowState
	if state == "" {
		state = StatePendingApproval
	}
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO suppliers (code, name, contact_person, email, phone, address, city, country,
    tax_id, payment_terms, notes, status, workflow_state, created_by, name_key, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
RETURNING id`,
		s.Code, s.Name, s.ContactPerson, s.Email, s.Phone, s.Address, s.City, s.Country,
		s.TaxID, s.PaymentTerms, s.Notes, s.Status, string(state), s.CreatedBy, NormalizeName(s.Name)).Scan(&id)
	if err != nil {
		return 0, mapUniqueViolation(err)
	}
	return id, nil
}

// Update overwrites the editable columns.
func (r *Repository) Update(ctx context.Context, s Supplier) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET code = $1, name = $2, contact_person = $3, email = $4, phone = $5,
    address = $6, city = $7, country = $8, tax_id = $9, payment_terms = $10, notes = $11, status = $12,
    name_key = $13, updated_at = NOW()
WHERE id = $14`,
		s.Code, s.Name, s.ContactPerson, s.Email, s.Phone, s.Address, s.City, s.Country,
		s.TaxID, s.PaymentTerms, s.Notes, s.Status, NormalizeName(s.Name), s.ID)
	if err != nil {
		return mapUniqueViolation(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a supplier row; dependent documents and logs cascade.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return ErrHasProducts
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ProductCount counts products referencing the supplier.
func (r *Repository) ProductCount(ctx context.Context, id int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products WHERE supplier_id = $1`, id).Scan(&n)
	return n, err
}

// SetStatus updates status for ids and returns the affected row count.
func (r *Repository) SetStatus(ctx context.Context, ids []int64, status string) (int64, error) {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET status = $1, updated_at = NOW() WHERE id = ANY($2)`, status, ids)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SetWorkflowState stores the workflow state.
func (r *Repository) SetWorkflowState(ctx context.Context, id int64, state WorkflowState) error {
	tag, err := r.db.Exec(ctx, `UPDATE suppliers SET workflow_state = $1, updated_at = NOW() WHERE id = $2`, string(state), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Names returns the fields dedupe needs for every supplier.
func (r *Repository) Names(ctx context.Context) ([]Supplier, error) {
	rows, err := r.db.Query(ctx, `SELECT s.id, s.code, s.name, s.status, s.created_at,
       (SELECT COUNT(*) FROM products p WHERE p.supplier_id = s.id)
FROM suppliers s ORDER BY s.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Supplier
	for rows.Next() {
		var s Supplier
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.Status, &s.CreatedAt, &s.ProductCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// mergeTables lists every table carrying a supplier_id that merge repoints.
var mergeTables = []string{
	"products",
	"inventory_orders",
	"supplier_documents",
	"supplier_communications",
	"supplier_workflow_states",
	"supplier_performance_metrics",
	"supplier_performance_alerts",
}

// Merge repoints dependants of dropIDs to keepID and deletes dropIDs.
// It returns the number of rows moved per table.
func (r *Repository) Merge(ctx context.Context, keepID int64, dropIDs []int64) (map[string]int64, error) {
	moved := make(map[string]int64, len(mergeTables))
	for _, table := range mergeTables {
		tag, err := r.db.Exec(ctx, `UPDATE `+table+` SET supplier_id = $1 WHERE supplier_id = ANY($2)`, keepID, dropIDs)
		if err != nil {
			return nil, err
		}
		moved[table] = tag.RowsAffected()
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = ANY($1)`, dropIDs); err != nil {
		return nil, err
	}
	return moved, nil
}

// ActiveSupplierIDs lists suppliers included in nightly snapshots.
func (r *Repository) ActiveSupplierIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM suppliers WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordActivity writes an activity log row on the same connection.
func (r *Repository) RecordActivity(ctx context.Context, log shared.ActivityLog) error {
	return shared.NewActivityLogger(r.db).Record(ctx, log)
}

var _ Store = (*Repository)(nil)
