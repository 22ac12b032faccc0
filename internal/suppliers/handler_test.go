package suppliers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/shared"
	"github.com/posadmin/posadmin/internal/view"
)

type permSource map[int64][]string

func (p permSource) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return p[userID], nil
}

type fakePDF struct {
	html string
	err  error
}

func (f *fakePDF) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	f.html = html
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7"), nil
}

const (
	adminUser  int64 = 1
	viewerUser int64 = 2
	editorUser int64 = 3
)

func newTestRouter(t *testing.T, store *memStore, pdf PDFRenderer) http.Handler {
	t.Helper()
	engine, err := view.NewEngine()
	require.NoError(t, err)
	mw := rbac.Middleware{Service: permSource{
		adminUser:  shared.SupplierScopes(),
		viewerUser: {shared.PermSuppliersView},
		editorUser: {shared.PermSuppliersView, shared.PermSuppliersEdit},
	}}
	h := NewHandler(nil, newTestService(store, newMemFiles()), engine, shared.NewCSRFManager("test-secret"), mw, pdf)
	r := chi.NewRouter()
	r.Route("/suppliers", h.MountRoutes)
	return r
}

func serve(h http.Handler, userID int64, method, path string, form url.Values) (*httptest.ResponseRecorder, *shared.Session) {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, path, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	sess := &shared.Session{ID: "sess"}
	if userID > 0 {
		sess.SetUser(userID)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, sess
}

func TestHandlerPermissions(t *testing.T) {
	router := newTestRouter(t, newMemStore(Supplier{ID: 1, Name: "Acme"}), nil)

	rec, _ := serve(router, 0, http.MethodGet, "/suppliers", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = serve(router, viewerUser, http.MethodGet, "/suppliers/new", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(router, viewerUser, http.MethodPost, "/suppliers/1/delete", url.Values{})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = serve(router, viewerUser, http.MethodGet, "/suppliers/export.csv", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerListAndDetail(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Code: "SUP-0001", Name: "Acme Foods"}, Supplier{ID: 2, Code: "SUP-0002", Name: "Borneo Farms"})
	router := newTestRouter(t, store, nil)

	rec, _ := serve(router, viewerUser, http.MethodGet, "/suppliers?search=acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Acme Foods")
	assert.NotContains(t, rec.Body.String(), "Borneo Farms")
	assert.NotContains(t, rec.Body.String(), "/suppliers/new")

	rec, _ = serve(router, viewerUser, http.MethodGet, "/suppliers/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Borneo Farms")

	rec, _ = serve(router, viewerUser, http.MethodGet, "/suppliers/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = serve(router, viewerUser, http.MethodGet, "/suppliers/abc", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerCreate(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Code: "SUP-0001", Name: "Acme"})
	router := newTestRouter(t, store, nil)

	rec, sess := serve(router, adminUser, http.MethodPost, "/suppliers", url.Values{
		"name":   {"Borneo Farms"},
		"email":  {"sales@borneo.example"},
		"status": {StatusActive},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/suppliers/"))
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, shared.FlashSuccess, flash.Kind)
	assert.Len(t, store.suppliers, 2)

	rec, _ = serve(router, adminUser, http.MethodPost, "/suppliers", url.Values{"name": {" acme "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, store.suppliers, 2)

	rec, _ = serve(router, adminUser, http.MethodPost, "/suppliers", url.Values{"name": {""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerWorkflowSameState(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme", WorkflowState: StateApproved})
	router := newTestRouter(t, store, nil)

	rec, _ := serve(router, adminUser, http.MethodPost, "/suppliers/1/workflow", url.Values{"state": {string(StateApproved)}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already in that workflow state")

	rec, _ = serve(router, adminUser, http.MethodPost, "/suppliers/1/workflow", url.Values{
		"state":  {string(StateSuspended)},
		"reason": {"late deliveries"},
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/suppliers/1", rec.Header().Get("Location"))
	assert.Equal(t, StateSuspended, store.suppliers[1].WorkflowState)
}

func TestHandlerBulkDeleteNeedsDeletePermission(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "A"}, Supplier{ID: 2, Name: "B"})
	router := newTestRouter(t, store, nil)

	rec, _ := serve(router, editorUser, http.MethodPost, "/suppliers/bulk", url.Values{"action": {BulkDelete}, "ids[]": {"1", "2"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Len(t, store.suppliers, 2)

	rec, sess := serve(router, editorUser, http.MethodPost, "/suppliers/bulk", url.Values{"action": {BulkDeactivate}, "ids[]": {"1"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, StatusInactive, store.suppliers[1].Status)
	require.NotNil(t, sess.PopFlash())

	rec, _ = serve(router, adminUser, http.MethodPost, "/suppliers/bulk", url.Values{"action": {BulkDelete}, "ids": {"1", "2"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Empty(t, store.suppliers)
}

func TestHandlerExportCSV(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Code: "SUP-0001", Name: "Acme"})
	router := newTestRouter(t, store, nil)

	rec, _ := serve(router, adminUser, http.MethodGet, "/suppliers/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "suppliers-20260315-120000.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,code,name"))
	assert.Contains(t, lines[1], "SUP-0001")
}

func TestHandlerPerformanceReport(t *testing.T) {
	store := newMemStore(Supplier{ID: 1, Name: "Acme"})
	store.metrics = []Metric{{ID: 1, SupplierID: 1, SupplierName: "Acme", Score: 72.5, CalculatedAt: fixedNow}}

	pdf := &fakePDF{}
	rec, _ := serve(newTestRouter(t, store, pdf), adminUser, http.MethodGet, "/suppliers/performance/report.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, pdf.html, "Acme")
	assert.Contains(t, pdf.html, "72.50")

	rec, _ = serve(newTestRouter(t, store, &fakePDF{err: errors.New("gotenberg down")}), adminUser, http.MethodGet, "/suppliers/performance/report.pdf", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec, _ = serve(newTestRouter(t, store, nil), adminUser, http.MethodGet, "/suppliers/performance/report.pdf", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBackToOnlyAllowsSupplierPaths(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("back=//evil.example/suppliers"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "/suppliers", backTo(req, "/suppliers"))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("back=/suppliers/4"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "/suppliers/4", backTo(req, "/suppliers"))
}
