package audit

import (
	"context"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/rbac"
	"github.com/posadmin/posadmin/internal/shared"
	"github.com/posadmin/posadmin/internal/view"
)

const (
	exportRateLimit  = 10
	exportRateWindow = time.Minute
	defaultRange     = 7 * 24 * time.Hour
)

// TimelineService is the contract the handler needs.
type TimelineService interface {
	Timeline(ctx context.Context, f TimelineFilters) (Result, error)
	Export(ctx context.Context, f TimelineFilters) ([]TimelineRow, error)
}

// Handler serves /activity.
type Handler struct {
	logger    *slog.Logger
	service   TimelineService
	templates *view.Engine
	rbac      rbac.Middleware
	now       func() time.Time
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service TimelineService, templates *view.Engine, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, rbac: rbac, now: time.Now}
}

// MountRoutes registers the timeline and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireAny(shared.PermActivityView))
	r.Get("/", h.timeline)
	r.Group(func(r chi.Router) {
		r.Use(httprate.Limit(exportRateLimit, exportRateWindow,
			httprate.WithKeyFuncs(rateLimitKey),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			}),
		))
		r.Get("/export.csv", h.export)
	})
}

// rateLimitKey buckets exports per user, falling back to the client IP.
func rateLimitKey(r *http.Request) (string, error) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		http.Error(w, httpx.Message(err), http.StatusBadRequest)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.fail(w, "load activity timeline", err)
		return
	}
	data := view.TemplateData{
		Title:       "Activity log",
		CurrentPath: r.URL.Path,
		Permissions: rbac.PermissionsFromContext(r.Context()),
		Data:        timelinePage{Filters: filters, Result: result, Query: filterQuery(filters)},
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		data.Flash = sess.PopFlash()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.RenderTo(w, "pages/activity/timeline.html", data); err != nil {
		h.logger.Error("render activity timeline", slog.Any("error", err))
	}
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filters, err := h.parseFilters(r)
	if err != nil {
		http.Error(w, httpx.Message(err), http.StatusBadRequest)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.fail(w, "export activity timeline", err)
		return
	}
	body, err := WriteCSV(rows)
	if err != nil {
		h.fail(w, "encode activity csv", err)
		return
	}
	name := "activity-" + h.now().UTC().Format("20060102-150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write activity csv", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := httpx.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	http.Error(w, httpx.Message(err), status)
}

// parseFilters reads the query string. Missing dates default to the last
// seven days.
func (h *Handler) parseFilters(r *http.Request) (TimelineFilters, error) {
	q := r.URL.Query()
	today := h.now().UTC().Truncate(24 * time.Hour)

	to := today
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return TimelineFilters{}, httpx.Errorf(httpx.ErrValidation, "Invalid to date")
		}
		to = parsed
	}
	from := to.Add(-defaultRange)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		parsed, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return TimelineFilters{}, httpx.Errorf(httpx.ErrValidation, "Invalid from date")
		}
		from = parsed
	}
	page, perPage := shared.PageFromQuery(q, 25, 100)
	f := TimelineFilters{
		From:       from,
		To:         to,
		Actor:      strings.TrimSpace(q.Get("actor")),
		Action:     strings.TrimSpace(q.Get("action")),
		EntityType: strings.TrimSpace(q.Get("entity_type")),
		EntityID:   strings.TrimSpace(q.Get("entity_id")),
		Page:       page,
		PerPage:    perPage,
	}
	return f, f.validate()
}

func filterQuery(f TimelineFilters) template.URL {
	v := url.Values{}
	v.Set("from", f.From.Format(time.DateOnly))
	v.Set("to", f.To.Format(time.DateOnly))
	for key, val := range map[string]string{
		"actor":       f.Actor,
		"action":      f.Action,
		"entity_type": f.EntityType,
		"entity_id":   f.EntityID,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	return template.URL(v.Encode())
}
