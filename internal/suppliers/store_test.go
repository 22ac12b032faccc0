package suppliers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/posadmin/posadmin/internal/shared"
)

var errInjected = errors.New("injected failure")

// memStore is an in-memory Store. WithTx restores a snapshot when fn fails.
type memStore struct {
	mu        sync.Mutex
	suppliers map[int64]Supplier
	products  map[int64]int
	docs      []Document
	comms     []Communication
	history   []WorkflowChange
	orders    []Order
	metrics   []Metric
	alerts    []Alert
	activity  []shared.ActivityLog
	nextID    int64
	failOn    string
}

func newMemStore(list ...Supplier) *memStore {
	s := &memStore{suppliers: map[int64]Supplier{}, products: map[int64]int{}, nextID: 100}
	for _, sup := range list {
		if sup.Status == "" {
			sup.Status = StatusActive
		}
		if sup.WorkflowState == "" {
			sup.WorkflowState = StatePendingApproval
		}
		s.suppliers[sup.ID] = sup
	}
	return s
}

type memSnapshot struct {
	suppliers map[int64]Supplier
	products  map[int64]int
	docs      []Document
	comms     []Communication
	history   []WorkflowChange
	metrics   []Metric
	alerts    []Alert
	activity  []shared.ActivityLog
	nextID    int64
}

func (s *memStore) WithTx(ctx context.Context, fn func(context.Context, Store) error) error {
	s.mu.Lock()
	snap := memSnapshot{
		suppliers: maps.Clone(s.suppliers),
		products:  maps.Clone(s.products),
		docs:      slices.Clone(s.docs),
		comms:     slices.Clone(s.comms),
		history:   slices.Clone(s.history),
		metrics:   slices.Clone(s.metrics),
		alerts:    slices.Clone(s.alerts),
		activity:  slices.Clone(s.activity),
		nextID:    s.nextID,
	}
	s.mu.Unlock()
	if err := fn(ctx, s); err != nil {
		s.mu.Lock()
		s.suppliers, s.products, s.docs, s.comms = snap.suppliers, snap.products, snap.docs, snap.comms
		s.history, s.metrics, s.alerts, s.activity = snap.history, snap.metrics, snap.alerts, snap.activity
		s.nextID = snap.nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) fail(op string) error {
	if s.failOn == op {
		return errInjected
	}
	return nil
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) withCount(sup Supplier) Supplier {
	sup.ProductCount = s.products[sup.ID]
	return sup
}

func (s *memStore) matching(f ListFilters) []Supplier {
	var out []Supplier
	q := strings.ToLower(strings.TrimSpace(f.Search))
	for _, sup := range s.suppliers {
		if q != "" && !strings.Contains(strings.ToLower(sup.Name+" "+sup.Code+" "+sup.Email), q) {
			continue
		}
		if f.Status != "" && sup.Status != f.Status {
			continue
		}
		if f.WorkflowState != "" && string(sup.WorkflowState) != f.WorkflowState {
			continue
		}
		out = append(out, s.withCount(sup))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a == b {
			return out[i].ID < out[j].ID
		}
		return a < b
	})
	return out
}

func (s *memStore) List(ctx context.Context, f ListFilters) ([]Supplier, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.matching(f)
	start := (f.Page - 1) * f.Limit
	if start > len(all) {
		start = len(all)
	}
	end := min(start+f.Limit, len(all))
	return all[start:end], len(all), nil
}

func (s *memStore) ListAll(ctx context.Context, f ListFilters) ([]Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matching(f), nil
}

func (s *memStore) Get(ctx context.Context, id int64) (Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, ErrNotFound
	}
	return s.withCount(sup), nil
}

func sameName(a, b string) bool {
	return NormalizeName(a) == NormalizeName(b)
}

func (s *memStore) FindByName(ctx context.Context, name string) (Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *Supplier
	for _, sup := range s.suppliers {
		if sameName(sup.Name, name) && (found == nil || sup.ID < found.ID) {
			sup := sup
			found = &sup
		}
	}
	if found == nil {
		return Supplier{}, ErrNotFound
	}
	return s.withCount(*found), nil
}

func (s *memStore) NameTaken(ctx context.Context, name string, excludeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sup := range s.suppliers {
		if sup.ID != excludeID && sameName(sup.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) CodeTaken(ctx context.Context, code string, excludeID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sup := range s.suppliers {
		if sup.ID != excludeID && strings.EqualFold(sup.Code, code) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) MaxCodeSuffix(ctx context.Context, prefix string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, sup := range s.suppliers {
		rest, ok := strings.CutPrefix(sup.Code, prefix)
		if !ok || rest == "" {
			continue
		}
		n := 0
		digits := true
		for _, r := range rest {
			if r < '0' || r > '9' {
				digits = false
				break
			}
			n = n*10 + int(r-'0')
		}
		if digits && n > max {
			max = n
		}
	}
	return max, nil
}

func (s *memStore) Insert(ctx context.Context, sup Supplier) (int64, error) {
	if err := s.fail("Insert"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.suppliers {
		if sameName(other.Name, sup.Name) {
			return 0, ErrDuplicateName
		}
	}
	sup.ID = s.id()
	if sup.WorkflowState == "" {
		sup.WorkflowState = StatePendingApproval
	}
	sup.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sup.UpdatedAt = sup.CreatedAt
	s.suppliers[sup.ID] = sup
	return sup.ID, nil
}

func (s *memStore) Update(ctx context.Context, sup Supplier) error {
	if err := s.fail("Update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.suppliers[sup.ID]
	if !ok {
		return ErrNotFound
	}
	sup.WorkflowState = cur.WorkflowState
	sup.CreatedAt = cur.CreatedAt
	sup.CreatedBy = cur.CreatedBy
	s.suppliers[sup.ID] = sup
	return nil
}

func (s *memStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[id]; !ok {
		return ErrNotFound
	}
	delete(s.suppliers, id)
	s.docs = slices.DeleteFunc(s.docs, func(d Document) bool { return d.SupplierID == id })
	s.comms = slices.DeleteFunc(s.comms, func(c Communication) bool { return c.SupplierID == id })
	return nil
}

func (s *memStore) ProductCount(ctx context.Context, id int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id], nil
}

func (s *memStore) SetStatus(ctx context.Context, ids []int64, status string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if sup, ok := s.suppliers[id]; ok {
			sup.Status = status
			s.suppliers[id] = sup
			n++
		}
	}
	return n, nil
}

func (s *memStore) SetWorkflowState(ctx context.Context, id int64, state WorkflowState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sup, ok := s.suppliers[id]
	if !ok {
		return ErrNotFound
	}
	sup.WorkflowState = state
	s.suppliers[id] = sup
	return nil
}

func (s *memStore) Names(ctx context.Context) ([]Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Supplier, 0, len(s.suppliers))
	for _, sup := range s.suppliers {
		out = append(out, s.withCount(sup))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Merge(ctx context.Context, keepID int64, dropIDs []int64) (map[string]int64, error) {
	if err := s.fail("Merge"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := map[string]int64{}
	for _, id := range dropIDs {
		if n := s.products[id]; n > 0 {
			s.products[keepID] += n
			moved["products"] += int64(n)
			delete(s.products, id)
		}
		for i := range s.docs {
			if s.docs[i].SupplierID == id {
				s.docs[i].SupplierID = keepID
				moved["supplier_documents"]++
			}
		}
		for i := range s.comms {
			if s.comms[i].SupplierID == id {
				s.comms[i].SupplierID = keepID
				moved["supplier_communications"]++
			}
		}
		delete(s.suppliers, id)
	}
	return moved, nil
}

func (s *memStore) ActiveSupplierIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, sup := range s.suppliers {
		if sup.Active() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *memStore) RecordActivity(ctx context.Context, log shared.ActivityLog) error {
	if err := s.fail("RecordActivity"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, log)
	return nil
}

func (s *memStore) ListDocuments(ctx context.Context, supplierID int64) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Document
	for _, d := range s.docs {
		if d.SupplierID == supplierID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) GetDocument(ctx context.Context, supplierID, docID int64) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.ID == docID && d.SupplierID == supplierID {
			return d, nil
		}
	}
	return Document{}, ErrDocumentNotFound
}

func (s *memStore) InsertDocument(ctx context.Context, d Document) (int64, error) {
	if err := s.fail("InsertDocument"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d.ID = s.id()
	s.docs = append(s.docs, d)
	return d.ID, nil
}

func (s *memStore) DeleteDocument(ctx context.Context, supplierID, docID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.docs)
	s.docs = slices.DeleteFunc(s.docs, func(d Document) bool { return d.ID == docID && d.SupplierID == supplierID })
	if len(s.docs) == before {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *memStore) DocumentFiles(ctx context.Context, supplierIDs []int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, d := range s.docs {
		if slices.Contains(supplierIDs, d.SupplierID) {
			out = append(out, d.StoredName)
		}
	}
	return out, nil
}

func (s *memStore) ExpiringDocuments(ctx context.Context, until time.Time) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Document
	for _, d := range s.docs {
		if d.ExpiresAt != nil && d.ExpiresAt.Before(until) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *memStore) ListCommunications(ctx context.Context, supplierID int64, limit int) ([]Communication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Communication
	for _, c := range s.comms {
		if c.SupplierID == supplierID && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) InsertCommunication(ctx context.Context, c Communication) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.comms = append(s.comms, c)
	return c.ID, nil
}

func (s *memStore) DeleteCommunication(ctx context.Context, supplierID, commID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.comms)
	s.comms = slices.DeleteFunc(s.comms, func(c Communication) bool { return c.ID == commID && c.SupplierID == supplierID })
	if len(s.comms) == before {
		return ErrCommNotFound
	}
	return nil
}

func (s *memStore) FollowUps(ctx context.Context, until time.Time) ([]Communication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Communication
	for _, c := range s.comms {
		if c.FollowUpAt != nil && c.FollowUpAt.Before(until) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) InsertWorkflowChange(ctx context.Context, c WorkflowChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.history = append(s.history, c)
	return nil
}

func (s *memStore) WorkflowHistory(ctx context.Context, supplierID int64) ([]WorkflowChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []WorkflowChange
	for _, c := range s.history {
		if c.SupplierID == supplierID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) Orders(ctx context.Context, supplierID int64, from, to time.Time) ([]Order, error) {
	if err := s.fail("Orders"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Order
	for _, o := range s.orders {
		if o.SupplierID == supplierID && !o.OrderDate.Before(from) && o.OrderDate.Before(to) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) InsertMetric(ctx context.Context, m Metric) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	s.metrics = append(s.metrics, m)
	return m.ID, nil
}

func (s *memStore) LatestMetric(ctx context.Context, supplierID int64) (*Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.metrics) - 1; i >= 0; i-- {
		if s.metrics[i].SupplierID == supplierID {
			m := s.metrics[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memStore) MetricHistory(ctx context.Context, supplierID int64, limit int) ([]Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Metric
	for i := len(s.metrics) - 1; i >= 0 && len(out) < limit; i-- {
		if s.metrics[i].SupplierID == supplierID {
			out = append(out, s.metrics[i])
		}
	}
	return out, nil
}

func (s *memStore) Ranking(ctx context.Context) ([]Metric, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := map[int64]Metric{}
	for _, m := range s.metrics {
		latest[m.SupplierID] = m
	}
	out := slices.Collect(maps.Values(latest))
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

func (s *memStore) InsertAlert(ctx context.Context, a Alert) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	a.Status = AlertOpen
	s.alerts = append(s.alerts, a)
	return a.ID, nil
}

func (s *memStore) ListAlerts(ctx context.Context, supplierID int64, status string) ([]Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Alert
	for _, a := range s.alerts {
		if (supplierID == 0 || a.SupplierID == supplierID) && (status == "" || a.Status == status) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) OpenAlertExists(ctx context.Context, supplierID int64, metric string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.SupplierID == supplierID && a.Metric == metric && a.Status == AlertOpen {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) ResolveAlert(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id && s.alerts[i].Status == AlertOpen {
			s.alerts[i].Status = AlertResolved
			return nil
		}
	}
	return ErrAlertNotFound
}

func (s *memStore) DeleteAlert(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.alerts)
	s.alerts = slices.DeleteFunc(s.alerts, func(a Alert) bool { return a.ID == id })
	if len(s.alerts) == before {
		return ErrAlertNotFound
	}
	return nil
}

func (s *memStore) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.activity))
	for i, a := range s.activity {
		out[i] = a.Action
	}
	return out
}

var _ Store = (*memStore)(nil)

// memFiles is an in-memory FileStore.
type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFiles() *memFiles { return &memFiles{files: map[string][]byte{}} }

func (f *memFiles) Save(ctx context.Context, key string, r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = data
	return int64(len(data)), nil
}

func (f *memFiles) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[key]
	if !ok {
		return nil, errors.New("no such file")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *memFiles) Remove(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, key)
	return nil
}

func (f *memFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.files)
}

var fixedNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestService(store *memStore, files *memFiles) *Service {
	svc := NewService(store, files, Config{}, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc
}
