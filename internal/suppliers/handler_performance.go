package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/posadmin/posadmin/internal/shared"
)

type rankingPage struct {
	Metrics    []Metric
	Thresholds Thresholds
	WindowDays int
}

type reportPage struct {
	Title       string
	GeneratedAt time.Time
	Metrics     []Metric
	Alerts      []Alert
	WindowDays  int
}

type performancePage struct {
	Supplier Supplier
	History  []Metric
	Metrics  []string
}

func (h *Handler) windowDays() int {
	return int(h.service.cfg.PerformanceWindow.Hours() / 24)
}

func (h *Handler) ranking(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.Ranking(r.Context())
	if err != nil {
		h.fail(w, r, "/suppliers", "load supplier ranking", err)
		return
	}
	h.render(w, r, "pages/suppliers/supplier_performance.html", "Supplier performance", rankingPage{
		Metrics:    metrics,
		Thresholds: h.service.cfg.Thresholds,
		WindowDays: h.windowDays(),
	}, http.StatusOK)
}

func (h *Handler) performanceReport(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	metrics, err := h.service.Ranking(r.Context())
	if err != nil {
		h.fail(w, r, "/suppliers/performance", "load supplier ranking", err)
		return
	}
	alerts, err := h.service.OpenAlerts(r.Context())
	if err != nil {
		h.fail(w, r, "/suppliers/performance", "load supplier alerts", err)
		return
	}
	now := h.service.now()
	html, err := h.templates.RenderString("pages/suppliers/supplier_performance_report.html", reportPage{
		Title:       "Supplier performance report",
		GeneratedAt: now,
		Metrics:     metrics,
		Alerts:      alerts,
		WindowDays:  h.windowDays(),
	})
	if err != nil {
		h.logger.Error("render performance report", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	pdf, err := h.pdf.RenderHTML(r.Context(), html)
	if err != nil {
		h.logger.Error("render performance pdf", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="supplier-performance-%s.pdf"`, now.Format("20060102")))
	_, _ = w.Write(pdf)
}

func (h *Handler) performance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	sup, history, err := h.service.PerformanceHistory(r.Context(), id)
	if err != nil {
		h.fail(w, r, "/suppliers/performance", "load supplier performance", err)
		return
	}
	h.render(w, r, "pages/suppliers/supplier_performance_detail.html", sup.Name+" performance", performancePage{
		Supplier: sup,
		History:  history,
		Metrics:  AlertMetrics,
	}, http.StatusOK)
}

func (h *Handler) recalculate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	back := fmt.Sprintf("/suppliers/%d/performance", id)
	m, err := h.service.Recalculate(r.Context(), actorFrom(r), id)
	if err != nil {
		h.fail(w, r, back, "recalculate supplier performance", err)
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, fmt.Sprintf("Performance recalculated, score %.1f", m.Score))
}

func (h *Handler) createAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	back := backTo(r, fmt.Sprintf("/suppliers/%d/performance", id))
	threshold, err := strconv.ParseFloat(r.PostFormValue("threshold"), 64)
	if err != nil {
		threshold = -1
	}
	_, err = h.service.CreateAlert(r.Context(), actorFrom(r), id, AlertInput{
		Metric:    r.PostFormValue("metric"),
		Threshold: threshold,
		Severity:  r.PostFormValue("severity"),
		Message:   r.PostFormValue("message"),
	})
	if err != nil {
		h.fail(w, r, back, "create supplier alert", err)
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, "Alert created")
}

func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.service.OpenAlerts(r.Context())
	if err != nil {
		h.fail(w, r, "/suppliers/performance", "list supplier alerts", err)
		return
	}
	h.render(w, r, "pages/suppliers/supplier_alerts.html", "Supplier alerts", map[string]any{"Alerts": alerts}, http.StatusOK)
}

func (h *Handler) resolveAlert(w http.ResponseWriter, r *http.Request) {
	h.alertAction(w, r, "resolve", h.service.ResolveAlert, "Alert resolved")
}

func (h *Handler) deleteAlert(w http.ResponseWriter, r *http.Request) {
	h.alertAction(w, r, "delete", h.service.DeleteAlert, "Alert deleted")
}

func (h *Handler) alertAction(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) error, done string) {
	id, err := strconv.ParseInt(chi.URLParam(r, "alertID"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return
	}
	back := backTo(r, "/suppliers/alerts")
	if err := fn(r.Context(), id); err != nil {
		h.fail(w, r, back, op+" supplier alert", err)
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, done)
}
