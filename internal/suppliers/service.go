package suppliers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/posadmin/posadmin/internal/shared"
)

// FileStore persists uploaded documents.
type FileStore interface {
	Save(ctx context.Context, key string, r io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// Thresholds trigger automatic performance alerts.
type Thresholds struct {
	MinOnTimeRate   float64
	MinQuality      float64
	MaxLeadTimeDays float64
}

// Config tunes document and performance behaviour.
type Config struct {
	ExpiryWindow      time.Duration
	PerformanceWindow time.Duration
	Thresholds        Thresholds
}

func (c Config) withDefaults() Config {
	if c.ExpiryWindow <= 0 {
		c.ExpiryWindow = 30 * 24 * time.Hour
	}
	if c.PerformanceWindow <= 0 {
		c.PerformanceWindow = 90 * 24 * time.Hour
	}
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = Thresholds{MinOnTimeRate: 0.8, MinQuality: 3.0, MaxLeadTimeDays: 14}
	}
	return c
}

// CodePrefix is prepended to generated supplier codes.
const CodePrefix = "SUP-"

// Actor identifies who performs a change.
type Actor struct {
	UserID int64
	IP     string
}

func (a Actor) ref() *int64 {
	if a.UserID <= 0 {
		return nil
	}
	id := a.UserID
	return &id
}

// Service holds supplier business rules.
type Service struct {
	store    Store
	files    FileStore
	cfg      Config
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a Service.
func NewService(store Store, files FileStore, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		files:    files,
		cfg:      cfg.withDefaults(),
		validate: newValidator(),
		logger:   logger,
		now:      time.Now,
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// List returns one page of suppliers.
func (s *Service) List(ctx context.Context, f ListFilters) (Page, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	items, total, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Suppliers: items, Filters: f, Pagination: shared.NewPagination(f.Page, f.Limit, total)}, nil
}

// Get returns one supplier.
func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, ErrNotFound
	}
	return s.store.Get(ctx, id)
}

// Detail loads the supplier page data concurrently.
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	var d Detail
	sup, err := s.Get(ctx, id)
	if err != nil {
		return d, err
	}
	d.Supplier = sup

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		d.Documents, err = s.store.ListDocuments(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		d.Communications, err = s.store.ListCommunications(gctx, id, 50)
		return err
	})
	g.Go(func() error {
		var err error
		d.History, err = s.store.WorkflowHistory(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		d.LatestMetric, err = s.store.LatestMetric(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		d.OpenAlerts, err = s.store.ListAlerts(gctx, id, AlertOpen)
		return err
	})
	if err := g.Wait(); err != nil {
		return Detail{}, fmt.Errorf("load supplier %d: %w", id, err)
	}
	return d, nil
}

// Create validates and inserts a supplier.
func (s *Service) Create(ctx context.Context, actor Actor, in Input) (Supplier, error) {
	in = in.Normalize()
	if err := s.Validate(in); err != nil {
		return Supplier{}, err
	}
	if err := s.checkUnique(ctx, s.store, in, 0); err != nil {
		return Supplier{}, err
	}

	var created Supplier
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		// Re-check inside the transaction; the unique index backs this up.
		if err := s.checkUnique(ctx, tx, in, 0); err != nil {
			return err
		}
		sup := in.toSupplier()
		if sup.Code == "" {
			code, err := s.nextCode(ctx, tx)
			if err != nil {
				return err
			}
			sup.Code = code
		}
		sup.WorkflowState = StatePendingApproval
		sup.CreatedBy = actor.ref()
		id, err := tx.Insert(ctx, sup)
		if err != nil {
			return err
		}
		if err := tx.InsertWorkflowChange(ctx, WorkflowChange{SupplierID: id, ToState: StatePendingApproval, Reason: "Supplier created", ChangedBy: actor.ref()}); err != nil {
			return err
		}
		if err := tx.RecordActivity(ctx, activity(actor, "supplier.created", id, map[string]any{"name": sup.Name, "code": sup.Code})); err != nil {
			return err
		}
		created, err = tx.Get(ctx, id)
		return err
	})
	if err != nil {
		return Supplier{}, err
	}
	return created, nil
}

// Update validates and saves changes to a supplier.
func (s *Service) Update(ctx context.Context, actor Actor, id int64, in Input) error {
	in = in.Normalize()
	if err := s.Validate(in); err != nil {
		return err
	}
	return s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		current, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkUnique(ctx, tx, in, id); err != nil {
			return err
		}
		sup := in.toSupplier()
		sup.ID = id
		if sup.Code == "" {
			sup.Code = current.Code
		}
		if err := tx.Update(ctx, sup); err != nil {
			return err
		}
		return tx.RecordActivity(ctx, activity(actor, "supplier.updated", id, changedFields(current, sup)))
	})
}

// Delete removes a supplier without products, then its document files.
func (s *Service) Delete(ctx context.Context, actor Actor, id int64) error {
	var files []string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		sup, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		n, err := tx.ProductCount(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrHasProducts
		}
		if files, err = tx.DocumentFiles(ctx, []int64{id}); err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		return tx.RecordActivity(ctx, activity(actor, "supplier.deleted", id, map[string]any{"name": sup.Name, "code": sup.Code}))
	})
	if err != nil {
		return err
	}
	s.removeFiles(ctx, files)
	return nil
}

// ToggleStatus flips active/inactive and returns the new status.
func (s *Service) ToggleStatus(ctx context.Context, actor Actor, id int64) (string, error) {
	var status string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		sup, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		status = StatusInactive
		if !sup.Active() {
			status = StatusActive
		}
		if _, err := tx.SetStatus(ctx, []int64{id}, status); err != nil {
			return err
		}
		return tx.RecordActivity(ctx, activity(actor, "supplier.status_changed", id, map[string]any{"status": status}))
	})
	return status, err
}

// Bulk actions.
const (
	BulkActivate   = "activate"
	BulkDeactivate = "deactivate"
	BulkDelete     = "delete"
)

// BulkResult reports the outcome of a bulk action.
type BulkResult struct {
	Action   string
	Affected int
	Skipped  int
}

// Message summarises the result for a flash.
func (r BulkResult) Message() string {
	var verb string
	switch r.Action {
	case BulkActivate:
		verb = "activated"
	case BulkDeactivate:
		verb = "deactivated"
	default:
		verb = "deleted"
	}
	msg := fmt.Sprintf("%d supplier(s) %s", r.Affected, verb)
	if r.Skipped > 0 {
		msg += fmt.Sprintf(", %d skipped because they have products", r.Skipped)
	}
	return msg
}

// Bulk applies action to ids. Deletes skip suppliers that have products.
func (s *Service) Bulk(ctx context.Context, actor Actor, action string, ids []int64) (BulkResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return BulkResult{}, ErrNoSelection
	}
	res := BulkResult{Action: action}
	var files []string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		switch action {
		case BulkActivate, BulkDeactivate:
			status := StatusActive
			if action == BulkDeactivate {
				status = StatusInactive
			}
			n, err := tx.SetStatus(ctx, ids, status)
			if err != nil {
				return err
			}
			res.Affected = int(n)
		case BulkDelete:
			var deletable []int64
			for _, id := range ids {
				n, err := tx.ProductCount(ctx, id)
				if err != nil {
					return err
				}
				if n > 0 {
					res.Skipped++
					continue
				}
				deletable = append(deletable, id)
			}
			if len(deletable) == 0 {
				return nil
			}
			var err error
			if files, err = tx.DocumentFiles(ctx, deletable); err != nil {
				return err
			}
			for _, id := range deletable {
				if err := tx.Delete(ctx, id); err != nil {
					if errors.Is(err, ErrNotFound) {
						continue
					}
					return err
				}
				res.Affected++
			}
		default:
			return ErrBulkAction
		}
		return tx.RecordActivity(ctx, shared.ActivityLog{
			UserID:     actor.UserID,
			Action:     "supplier.bulk_" + action,
			EntityType: "supplier",
			EntityID:   joinIDs(ids),
			Details:    map[string]any{"affected": res.Affected, "skipped": res.Skipped},
			IPAddress:  actor.IP,
		})
	})
	if err != nil {
		return BulkResult{}, err
	}
	s.removeFiles(ctx, files)
	return res, nil
}

func (s *Service) checkUnique(ctx context.Context, store Store, in Input, excludeID int64) error {
	taken, err := store.NameTaken(ctx, in.Name, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateName
	}
	if in.Code != "" {
		taken, err := store.CodeTaken(ctx, in.Code, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return ErrDuplicateCode
		}
	}
	return nil
}

func (s *Service) nextCode(ctx context.Context, store Store) (string, error) {
	max, err := store.MaxCodeSuffix(ctx, CodePrefix)
	if err != nil {
		return "", err
	}
	for i := 1; i <= 10; i++ {
		code := fmt.Sprintf("%s%05d", CodePrefix, max+i)
		taken, err := store.CodeTaken(ctx, code, 0)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodesExhausted
}

func (s *Service) removeFiles(ctx context.Context, keys []string) {
	if s.files == nil {
		return
	}
	for _, key := range keys {
		if err := s.files.Remove(ctx, key); err != nil {
			s.logger.Warn("remove supplier document", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func activity(actor Actor, action string, id int64, details map[string]any) shared.ActivityLog {
	return shared.ActivityLog{
		UserID:     actor.UserID,
		Action:     action,
		EntityType: "supplier",
		EntityID:   fmt.Sprint(id),
		Details:    details,
		IPAddress:  actor.IP,
	}
}

func changedFields(before, after Supplier) map[string]any {
	changes := map[string]any{}
	diff := func(field, a, b string) {
		if a != b {
			changes[field] = map[string]string{"from": a, "to": b}
		}
	}
	diff("code", before.Code, after.Code)
	diff("name", before.Name, after.Name)
	diff("contact_person", before.ContactPerson, after.ContactPerson)
	diff("email", before.Email, after.Email)
	diff("phone", before.Phone, after.Phone)
	diff("address", before.Address, after.Address)
	diff("city", before.City, after.City)
	diff("country", before.Country, after.Country)
	diff("tax_id", before.TaxID, after.TaxID)
	diff("payment_terms", before.PaymentTerms, after.PaymentTerms)
	diff("notes", before.Notes, after.Notes)
	diff("status", before.Status, after.Status)
	return changes
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
