package suppliers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"
)

// Score weights.
const (
	weightOnTime     = 0.5
	weightQuality    = 0.3
	weightFulfilment = 0.2
	maxQuality       = 5.0
)

// ComputeMetric aggregates orders placed in [from, to) into a snapshot.
func ComputeMetric(supplierID int64, orders []Order, from, to, now time.Time) Metric {
	m := Metric{SupplierID: supplierID, PeriodStart: from, PeriodEnd: to, CalculatedAt: now}
	var (
		onTime     int
		leadDays   float64
		leadCount  int
		qualitySum float64
	)
	for _, o := range orders {
		m.TotalOrders++
		switch o.Status {
		case OrderCancelled:
			m.CancelledOrders++
			continue
		case OrderReceived, OrderCompleted:
			m.CompletedOrders++
		}
		if o.ReceivedDate != nil {
			m.TotalSpend += o.TotalAmount
			leadDays += o.ReceivedDate.Sub(o.OrderDate).Hours() / 24
			leadCount++
			if o.ExpectedDate != nil {
				m.TimedOrders++
				if !day(*o.ReceivedDate).After(day(*o.ExpectedDate)) {
					onTime++
				}
			}
		}
		if o.QualityRating != nil {
			qualitySum += *o.QualityRating
			m.RatedOrders++
		}
	}
	if m.TimedOrders > 0 {
		m.OnTimeRate = round(float64(onTime)/float64(m.TimedOrders), 4)
	}
	if leadCount > 0 {
		m.AvgLeadTimeDays = round(leadDays/float64(leadCount), 2)
	}
	if m.RatedOrders > 0 {
		m.AvgQuality = round(qualitySum/float64(m.RatedOrders), 2)
	}
	m.TotalSpend = round(m.TotalSpend, 2)
	m.Score = Score(m)
	return m
}

// Fulfilment is completed / (completed + cancelled).
func (m Metric) Fulfilment() float64 {
	den := m.CompletedOrders + m.CancelledOrders
	if den == 0 {
		return 0
	}
	return float64(m.CompletedOrders) / float64(den)
}

// CancelRatio is cancelled / total orders.
func (m Metric) CancelRatio() float64 {
	if m.TotalOrders == 0 {
		return 0
	}
	return float64(m.CancelledOrders) / float64(m.TotalOrders)
}

// Value returns the metric named by an alert.
func (m Metric) Value(name string) (float64, bool) {
	switch name {
	case MetricOnTimeRate:
		return m.OnTimeRate, true
	case MetricQuality:
		return m.AvgQuality, true
	case MetricLeadTime:
		return m.AvgLeadTimeDays, true
	case MetricScore:
		return m.Score, true
	case MetricCancelRatio:
		return round(m.CancelRatio(), 4), true
	}
	return 0, false
}

// Score is the 0-100 composite of on-time rate, quality and fulfilment.
// A component with no underlying orders is left out and the remaining
// weights are scaled up to cover it.
func Score(m Metric) float64 {
	var raw, weight float64
	if m.TimedOrders > 0 {
		raw += weightOnTime * m.OnTimeRate
		weight += weightOnTime
	}
	if m.RatedOrders > 0 {
		raw += weightQuality * math.Min(m.AvgQuality/maxQuality, 1)
		weight += weightQuality
	}
	if m.CompletedOrders+m.CancelledOrders > 0 {
		raw += weightFulfilment * m.Fulfilment()
		weight += weightFulfilment
	}
	if weight == 0 {
		return 0
	}
	return round(raw/weight*100, 2)
}

// EvaluateThresholds returns the alerts a snapshot breaches. Suppliers with
// no completed orders in the window are not judged, and a metric with no
// orders behind it raises nothing.
func EvaluateThresholds(m Metric, t Thresholds) []Alert {
	if m.CompletedOrders == 0 {
		return nil
	}
	var alerts []Alert
	if t.MinOnTimeRate > 0 && m.TimedOrders > 0 && m.OnTimeRate < t.MinOnTimeRate {
		alerts = append(alerts, Alert{
			SupplierID:  m.SupplierID,
			Metric:      MetricOnTimeRate,
			Threshold:   t.MinOnTimeRate,
			ActualValue: m.OnTimeRate,
			Severity:    severityBelow(m.OnTimeRate, t.MinOnTimeRate),
			Message:     fmt.Sprintf("On-time delivery %.0f%% is below %.0f%%", m.OnTimeRate*100, t.MinOnTimeRate*100),
		})
	}
	if t.MinQuality > 0 && m.RatedOrders > 0 && m.AvgQuality < t.MinQuality {
		alerts = append(alerts, Alert{
			SupplierID:  m.SupplierID,
			Metric:      MetricQuality,
			Threshold:   t.MinQuality,
			ActualValue: m.AvgQuality,
			Severity:    severityBelow(m.AvgQuality, t.MinQuality),
			Message:     fmt.Sprintf("Average quality %.2f is below %.2f", m.AvgQuality, t.MinQuality),
		})
	}
	if t.MaxLeadTimeDays > 0 && m.AvgLeadTimeDays > t.MaxLeadTimeDays {
		sev := SeverityMedium
		if m.AvgLeadTimeDays > t.MaxLeadTimeDays*1.5 {
			sev = SeverityHigh
		}
		alerts = append(alerts, Alert{
			SupplierID:  m.SupplierID,
			Metric:      MetricLeadTime,
			Threshold:   t.MaxLeadTimeDays,
			ActualValue: m.AvgLeadTimeDays,
			Severity:    sev,
			Message:     fmt.Sprintf("Average lead time %.1f days exceeds %.1f", m.AvgLeadTimeDays, t.MaxLeadTimeDays),
		})
	}
	return alerts
}

// severityBelow grades how far actual falls under floor.
func severityBelow(actual, floor float64) string {
	switch ratio := actual / floor; {
	case ratio < 0.75:
		return SeverityHigh
	case ratio < 0.9:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Recalculate computes and stores a snapshot for one supplier.
func (s *Service) Recalculate(ctx context.Context, actor Actor, supplierID int64) (Metric, error) {
	if _, err := s.store.Get(ctx, supplierID); err != nil {
		return Metric{}, err
	}
	m, err := s.snapshot(ctx, supplierID)
	if err != nil {
		return Metric{}, err
	}
	if err := s.store.RecordActivity(ctx, activity(actor, "supplier.performance_recalculated", supplierID, map[string]any{"score": m.Score})); err != nil {
		s.logger.Warn("record activity", slog.Any("error", err))
	}
	return m, nil
}

func (s *Service) snapshot(ctx context.Context, supplierID int64) (Metric, error) {
	now := s.now()
	from := now.Add(-s.cfg.PerformanceWindow)
	orders, err := s.store.Orders(ctx, supplierID, from, now)
	if err != nil {
		return Metric{}, err
	}
	m := ComputeMetric(supplierID, orders, from, now, now)
	id, err := s.store.InsertMetric(ctx, m)
	if err != nil {
		return Metric{}, err
	}
	m.ID = id
	return m, nil
}

// SnapshotResult summarises a nightly run.
type SnapshotResult struct {
	Suppliers    int
	AlertsOpened int
	Failed       int
}

// SnapshotAll stores snapshots for every active supplier and opens threshold
// alerts that are not already open. One supplier failing does not stop the run.
func (s *Service) SnapshotAll(ctx context.Context) (SnapshotResult, error) {
	var res SnapshotResult
	ids, err := s.store.ActiveSupplierIDs(ctx)
	if err != nil {
		return res, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		m, err := s.snapshot(ctx, id)
		if err != nil {
			res.Failed++
			s.logger.Error("supplier snapshot", slog.Int64("supplier_id", id), slog.Any("error", err))
			continue
		}
		res.Suppliers++
		for _, a := range EvaluateThresholds(m, s.cfg.Thresholds) {
			exists, err := s.store.OpenAlertExists(ctx, id, a.Metric)
			if err != nil {
				return res, err
			}
			if exists {
				continue
			}
			if _, err := s.store.InsertAlert(ctx, a); err != nil {
				return res, err
			}
			res.AlertsOpened++
		}
	}
	return res, nil
}

// Ranking returns latest snapshots ordered by score.
func (s *Service) Ranking(ctx context.Context) ([]Metric, error) {
	return s.store.Ranking(ctx)
}

// PerformanceHistory returns a supplier and its recent snapshots.
func (s *Service) PerformanceHistory(ctx context.Context, supplierID int64) (Supplier, []Metric, error) {
	sup, err := s.Get(ctx, supplierID)
	if err != nil {
		return Supplier{}, nil, err
	}
	history, err := s.store.MetricHistory(ctx, supplierID, 24)
	return sup, history, err
}

// AlertInput is the manual alert form.
type AlertInput struct {
	Metric    string
	Threshold float64
	Severity  string
	Message   string
}

// CreateAlert opens a manual alert, filling the actual value from the latest snapshot.
func (s *Service) CreateAlert(ctx context.Context, actor Actor, supplierID int64, in AlertInput) (int64, error) {
	in.Metric = strings.TrimSpace(in.Metric)
	in.Severity = strings.ToLower(strings.TrimSpace(in.Severity))
	in.Message = strings.TrimSpace(in.Message)
	fields := map[string]string{}
	if !slices.Contains(AlertMetrics, in.Metric) {
		fields["metric"] = "Choose a metric"
	}
	if !slices.Contains([]string{SeverityLow, SeverityMedium, SeverityHigh}, in.Severity) {
		fields["severity"] = "Choose a severity"
	}
	if in.Message == "" {
		fields["message"] = "message is required"
	}
	if math.IsNaN(in.Threshold) || math.IsInf(in.Threshold, 0) || in.Threshold < 0 {
		fields["threshold"] = "threshold must be a positive number"
	}
	if len(fields) > 0 {
		return 0, &ValidationError{Fields: fields}
	}
	if _, err := s.store.Get(ctx, supplierID); err != nil {
		return 0, err
	}
	latest, err := s.store.LatestMetric(ctx, supplierID)
	if err != nil {
		return 0, err
	}
	alert := Alert{
		SupplierID: supplierID,
		Metric:     in.Metric,
		Threshold:  in.Threshold,
		Severity:   in.Severity,
		Message:    in.Message,
		CreatedBy:  actor.ref(),
	}
	if latest != nil {
		alert.ActualValue, _ = latest.Value(in.Metric)
	}
	return s.store.InsertAlert(ctx, alert)
}

// ResolveAlert closes an alert.
func (s *Service) ResolveAlert(ctx context.Context, id int64) error {
	return s.store.ResolveAlert(ctx, id)
}

// DeleteAlert removes an alert.
func (s *Service) DeleteAlert(ctx context.Context, id int64) error {
	return s.store.DeleteAlert(ctx, id)
}

// OpenAlerts lists open alerts across suppliers.
func (s *Service) OpenAlerts(ctx context.Context) ([]Alert, error) {
	return s.store.ListAlerts(ctx, 0, AlertOpen)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
