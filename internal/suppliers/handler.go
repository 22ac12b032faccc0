package suppliers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/shared"
	"github.com/posadmin/posadmin/internal/view"
)

// PDFRenderer converts HTML to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Handler serves the supplier pages.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	rbac      rbac.Middleware
	pdf       PDFRenderer
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, rbac rbac.Middleware, pdf PDFRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, rbac: rbac, pdf: pdf}
}

// MountRoutes registers the supplier routes under /suppliers.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersView))
		r.Get("/", h.list)
		r.Get("/documents/expiring", h.expiringDocuments)
		r.Get("/follow-ups", h.followUps)
		r.Get("/{id}", h.show)
		r.Get("/{id}/documents/{docID}", h.downloadDocument)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersCreate))
		r.Get("/new", h.newForm)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersEdit))
		r.Get("/{id}/edit", h.editForm)
		r.Post("/{id}/edit", h.update)
		r.Post("/{id}/toggle-status", h.toggleStatus)
		r.Post("/bulk", h.bulk)
		r.Post("/{id}/communications", h.logCommunication)
		r.Post("/{id}/communications/{commID}/delete", h.deleteCommunication)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersDelete))
		r.Post("/{id}/delete", h.delete)
		r.Get("/duplicates", h.duplicates)
		r.Post("/duplicates/merge", h.mergeDuplicates)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersExport))
		r.Get("/export.csv", h.exportCSV)
		r.Get("/export.xlsx", h.exportXLSX)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersImport))
		r.Get("/import", h.importForm)
		r.Post("/import", h.importFile)
		r.Get("/import/template.csv", h.importTemplate)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersDocuments))
		r.Post("/{id}/documents", h.uploadDocument)
		r.Post("/{id}/documents/{docID}/delete", h.deleteDocument)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersWorkflow))
		r.Post("/{id}/workflow", h.setWorkflow)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermSuppliersPerformance))
		r.Get("/performance", h.ranking)
		r.Get("/performance/report.pdf", h.performanceReport)
		r.Get("/{id}/performance", h.performance)
		r.Post("/{id}/performance/recalculate", h.recalculate)
		r.Post("/{id}/alerts", h.createAlert)
		r.Get("/alerts", h.alerts)
		r.Post("/alerts/{alertID}/resolve", h.resolveAlert)
		r.Post("/alerts/{alertID}/delete", h.deleteAlert)
	})
}

type formErrors map[string]string

type listPage struct {
	Page   Page
	States []WorkflowState
	Query  template.URL
}

type formPage struct {
	ID     int64
	Form   Input
	Errors formErrors
}

type detailPage struct {
	Detail        Detail
	States        []WorkflowState
	DocumentTypes []string
	Channels      []string
	Directions    []string
	Extensions    []string
	Metrics       []string
	ExpiryWindow  int
	Statuses      map[int64]string
}

func filtersFromQuery(r *http.Request) ListFilters {
	q := r.URL.Query()
	page, perPage := shared.PageFromQuery(q, 20, 100)
	return ListFilters{
		Page:          page,
		Limit:         perPage,
		Search:        strings.TrimSpace(q.Get("search")),
		Status:        q.Get("status"),
		WorkflowState: q.Get("workflow_state"),
		SortBy:        q.Get("sort"),
		SortDir:       q.Get("dir"),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	f := filtersFromQuery(r)
	page, err := h.service.List(r.Context(), f)
	if err != nil {
		h.logger.Error("list suppliers", slog.Any("error", err))
		h.render(w, r, "pages/suppliers/supplier_list.html", "Suppliers", listPage{Page: Page{Filters: f}, States: WorkflowStates()}, http.StatusInternalServerError)
		return
	}
	h.render(w, r, "pages/suppliers/supplier_list.html", "Suppliers", listPage{
		Page:   page,
		States: WorkflowStates(),
		Query:  template.URL(filterQuery(f)),
	}, http.StatusOK)
}

// filterQuery keeps filters across pagination and export links.
func filterQuery(f ListFilters) string {
	v := url.Values{}
	add := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	add("search", f.Search)
	add("status", f.Status)
	add("workflow_state", f.WorkflowState)
	add("sort", f.SortBy)
	add("dir", f.SortDir)
	return v.Encode()
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	h.renderDetail(w, r, id, http.StatusOK)
}

func (h *Handler) renderDetail(w http.ResponseWriter, r *http.Request, id int64, status int) {
	d, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.fail(w, r, "/suppliers", "load supplier", err)
		return
	}
	now := h.service.now()
	statuses := make(map[int64]string, len(d.Documents))
	for _, doc := range d.Documents {
		statuses[doc.ID] = doc.ExpiryStatus(now, h.service.cfg.ExpiryWindow)
	}
	h.render(w, r, "pages/suppliers/supplier_detail.html", d.Supplier.Name, detailPage{
		Detail:        d,
		States:        WorkflowStates(),
		DocumentTypes: DocumentTypes,
		Channels:      Channels,
		Directions:    Directions,
		Extensions:    AllowedDocumentExtensions(),
		Metrics:       AlertMetrics,
		ExpiryWindow:  int(h.service.cfg.ExpiryWindow.Hours() / 24),
		Statuses:      statuses,
	}, status)
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/suppliers/supplier_form.html", "New supplier", formPage{Form: Input{Status: StatusActive}, Errors: formErrors{}}, http.StatusOK)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := inputFromForm(r)
	sup, err := h.service.Create(r.Context(), actorFrom(r), in)
	if err != nil {
		h.formError(w, r, "New supplier", 0, in, err)
		return
	}
	h.redirectWithFlash(w, r, fmt.Sprintf("/suppliers/%d", sup.ID), shared.FlashSuccess, fmt.Sprintf("Supplier %s created", sup.Code))
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	sup, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "/suppliers", "load supplier", err)
		return
	}
	h.render(w, r, "pages/suppliers/supplier_form.html", "Edit supplier", formPage{ID: id, Form: InputFrom(sup), Errors: formErrors{}}, http.StatusOK)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := inputFromForm(r)
	if err := h.service.Update(r.Context(), actorFrom(r), id, in); err != nil {
		if errors.Is(err, ErrNotFound) {
			h.fail(w, r, "/suppliers", "update supplier", err)
			return
		}
		h.formError(w, r, "Edit supplier", id, in, err)
		return
	}
	h.redirectWithFlash(w, r, fmt.Sprintf("/suppliers/%d", id), shared.FlashSuccess, "Supplier updated")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), actorFrom(r), id); err != nil {
		h.fail(w, r, fmt.Sprintf("/suppliers/%d", id), "delete supplier", err)
		return
	}
	h.redirectWithFlash(w, r, "/suppliers", shared.FlashSuccess, "Supplier deleted")
}

func (h *Handler) toggleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	status, err := h.service.ToggleStatus(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, "/suppliers", "toggle supplier status", err)
		return
	}
	h.redirectWithFlash(w, r, backTo(r, "/suppliers"), shared.FlashSuccess, "Supplier is now "+status)
}

func (h *Handler) bulk(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	action := r.PostFormValue("action")
	if action == BulkDelete && !h.rbac.Can(r, shared.PermSuppliersDelete) {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}
	var ids []int64
	for _, raw := range r.PostForm["ids[]"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	for _, raw := range r.PostForm["ids"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	res, err := h.service.Bulk(r.Context(), actorFrom(r), action, ids)
	if err != nil {
		h.fail(w, r, "/suppliers", "bulk supplier action", err)
		return
	}
	kind := shared.FlashSuccess
	if res.Skipped > 0 {
		kind = shared.FlashWarning
	}
	h.redirectWithFlash(w, r, "/suppliers", kind, res.Message())
}

func inputFromForm(r *http.Request) Input {
	return Input{
		Code:          r.PostFormValue("code"),
		Name:          r.PostFormValue("name"),
		ContactPerson: r.PostFormValue("contact_person"),
		Email:         r.PostFormValue("email"),
		Phone:         r.PostFormValue("phone"),
		Address:       r.PostFormValue("address"),
		City:          r.PostFormValue("city"),
		Country:       r.PostFormValue("country"),
		TaxID:         r.PostFormValue("tax_id"),
		PaymentTerms:  r.PostFormValue("payment_terms"),
		Notes:         r.PostFormValue("notes"),
		Status:        r.PostFormValue("status"),
	}
}

// formError re-renders the supplier form with field or general errors.
func (h *Handler) formError(w http.ResponseWriter, r *http.Request, title string, id int64, in Input, err error) {
	errs := formErrors(FieldErrors(err))
	if errs == nil {
		errs = formErrors{}
		switch {
		case errors.Is(err, ErrDuplicateName):
			errs["name"] = httpx.Message(err)
		case errors.Is(err, ErrDuplicateCode):
			errs["code"] = httpx.Message(err)
		default:
			if httpx.StatusFor(err) == http.StatusInternalServerError {
				h.logger.Error("save supplier", slog.Any("error", err))
			}
			errs["general"] = httpx.Message(err)
		}
	}
	status := httpx.StatusFor(err)
	if status == http.StatusConflict {
		status = http.StatusBadRequest
	}
	h.render(w, r, "pages/suppliers/supplier_form.html", title, formPage{ID: id, Form: in, Errors: errs}, status)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, name, title string, data any, status int) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := h.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Permissions: rbac.PermissionsFromContext(r.Context()),
		Data:        data,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.templates.RenderTo(w, name, viewData); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// fail flashes err and redirects. Unknown errors are logged and hidden.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, location, op string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	if errors.Is(err, httpx.ErrNotFound) && r.Method == http.MethodGet {
		http.Error(w, httpx.Message(err), http.StatusNotFound)
		return
	}
	h.redirectWithFlash(w, r, location, shared.FlashError, httpx.Message(err))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

// backTo returns the local redirect target posted as "back", or fallback.
func backTo(r *http.Request, fallback string) string {
	back := r.PostFormValue("back")
	if strings.HasPrefix(back, "/suppliers") && !strings.HasPrefix(back, "//") {
		return back
	}
	return fallback
}

func actorFrom(r *http.Request) Actor {
	userID, _ := shared.CurrentUserID(r.Context())
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return Actor{UserID: userID, IP: ip}
}
