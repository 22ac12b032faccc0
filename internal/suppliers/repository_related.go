package suppliers

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

const documentColumns = `d.id, d.supplier_id, s.name, d.document_type, d.title, d.original_name, d.stored_name,
       d.content_type, d.size_bytes, d.issued_at, d.expires_at, d.notes, d.uploaded_by, d.created_at`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.SupplierID, &d.SupplierName, &d.DocumentType, &d.Title, &d.OriginalName, &d.StoredName,
		&d.ContentType, &d.SizeBytes, &d.IssuedAt, &d.ExpiresAt, &d.Notes, &d.UploadedBy, &d.CreatedAt)
	return d, err
}

func collectDocuments(rows pgx.Rows) ([]Document, error) {
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListDocuments returns a supplier's documents, newest first.
func (r *Repository) ListDocuments(ctx context.Context, supplierID int64) ([]Document, error) {
	rows, err := r.db.Query(ctx, `SELECT `+documentColumns+`
FROM supplier_documents d JOIN suppliers s ON s.id = d.supplier_id
WHERE d.supplier_id = $1 ORDER BY d.created_at DESC, d.id DESC`, supplierID)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

// GetDocument fetches a document scoped to its supplier.
func (r *Repository) GetDocument(ctx context.Context, supplierID, docID int64) (Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx, `SELECT `+documentColumns+`
FROM supplier_documents d JOIN suppliers s ON s.id = d.supplier_id
WHERE d.supplier_id = $1 AND d.id = $2`, supplierID, docID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	return d, err
}

// InsertDocument stores document metadata.
func (r *Repository) InsertDocument(ctx context.Context, d Document) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO supplier_documents (supplier_id, document_type, title, original_name, stored_name,
    content_type, size_bytes, issued_at, expires_at, notes, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
RETURNING id`,
		d.SupplierID, d.DocumentType, d.Title, d.OriginalName, d.StoredName,
		d.ContentType, d.SizeBytes, d.IssuedAt, d.ExpiresAt, d.Notes, d.UploadedBy).Scan(&id)
	return id, err
}

// DeleteDocument removes document metadata.
func (r *Repository) DeleteDocument(ctx context.Context, supplierID, docID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM supplier_documents WHERE supplier_id = $1 AND id = $2`, supplierID, docID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// DocumentFiles returns stored names of the suppliers' documents.
func (r *Repository) DocumentFiles(ctx context.Context, supplierIDs []int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT stored_name FROM supplier_documents WHERE supplier_id = ANY($1)`, supplierIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ExpiringDocuments lists documents whose expiry is before until, soonest first.
func (r *Repository) ExpiringDocuments(ctx context.Context, until time.Time) ([]Document, error) {
	rows, err := r.db.Query(ctx, `SELECT `+documentColumns+`
FROM supplier_documents d JOIN suppliers s ON s.id = d.supplier_id
WHERE d.expires_at IS NOT NULL AND d.expires_at < $1
ORDER BY d.expires_at, d.id`, until)
	if err != nil {
		return nil, err
	}
	return collectDocuments(rows)
}

const communicationColumns = `c.id, c.supplier_id, s.name, c.channel, c.direction, c.subject, c.body, c.contact_person,
       c.occurred_at, c.follow_up_at, c.created_by, c.created_at`

func collectCommunications(rows pgx.Rows) ([]Communication, error) {
	defer rows.Close()
	var out []Communication
	for rows.Next() {
		var c Communication
		if err := rows.Scan(&c.ID, &c.SupplierID, &c.SupplierName, &c.Channel, &c.Direction, &c.Subject, &c.Body,
			&c.ContactPerson, &c.OccurredAt, &c.FollowUpAt, &c.CreatedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListCommunications returns the latest communications for a supplier.
func (r *Repository) ListCommunications(ctx context.Context, supplierID int64, limit int) ([]Communication, error) {
	rows, err := r.db.Query(ctx, `SELECT `+communicationColumns+`
FROM supplier_communications c JOIN suppliers s ON s.id = c.supplier_id
WHERE c.supplier_id = $1 ORDER BY c.occurred_at DESC, c.id DESC LIMIT $2`, supplierID, limit)
	if err != nil {
		return nil, err
	}
	return collectCommunications(rows)
}

// InsertCommunication logs an interaction.
func (r *Repository) InsertCommunication(ctx context.Context, c Communication) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO supplier_communications (supplier_id, channel, direction, subject, body,
    contact_person, occurred_at, follow_up_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
RETURNING id`,
		c.SupplierID, c.Channel, c.Direction, c.Subject, c.Body, c.ContactPerson, c.OccurredAt, c.FollowUpAt, c.CreatedBy).Scan(&id)
	return id, err
}

// DeleteCommunication removes an interaction.
func (r *Repository) DeleteCommunication(ctx context.Context, supplierID, commID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM supplier_communications WHERE supplier_id = $1 AND id = $2`, supplierID, commID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrCommNotFound
	}
	return nil
}

// FollowUps lists communications with a follow-up date before until.
func (r *Repository) FollowUps(ctx context.Context, until time.Time) ([]Communication, error) {
	rows, err := r.db.Query(ctx, `SELECT `+communicationColumns+`
FROM supplier_communications c JOIN suppliers s ON s.id = c.supplier_id
WHERE c.follow_up_at IS NOT NULL AND c.follow_up_at < $1
ORDER BY c.follow_up_at, c.id`, until)
	if err != nil {
		return nil, err
	}
	return collectCommunications(rows)
}

// InsertWorkflowChange appends to the workflow history.
func (r *Repository) InsertWorkflowChange(ctx context.Context, c WorkflowChange) error {
	_, err := r.db.Exec(ctx, `INSERT INTO supplier_workflow_states (supplier_id, from_state, to_state, reason, changed_by, changed_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, NOW())`,
		c.SupplierID, string(c.FromState), string(c.ToState), c.Reason, c.ChangedBy)
	return err
}

// WorkflowHistory returns state changes, newest first.
func (r *Repository) WorkflowHistory(ctx context.Context, supplierID int64) ([]WorkflowChange, error) {
	rows, err := r.db.Query(ctx, `SELECT id, supplier_id, COALESCE(from_state, ''), to_state, reason, changed_by, changed_at
FROM supplier_workflow_states WHERE supplier_id = $1 ORDER BY changed_at DESC, id DESC`, supplierID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkflowChange
	for rows.Next() {
		var c WorkflowChange
		var from, to string
		if err := rows.Scan(&c.ID, &c.SupplierID, &from, &to, &c.Reason, &c.ChangedBy, &c.ChangedAt); err != nil {
			return nil, err
		}
		c.FromState, c.ToState = WorkflowState(from), WorkflowState(to)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Orders returns a supplier's inventory orders dated in [from, to).
func (r *Repository) Orders(ctx context.Context, supplierID int64, from, to time.Time) ([]Order, error) {
	rows, err := r.db.Query(ctx, `SELECT id, supplier_id, order_date, expected_date, received_date, status,
       total_amount::double precision, quality_rating::double precision
FROM inventory_orders
WHERE supplier_id = $1 AND order_date >= $2 AND order_date < $3
ORDER BY order_date, id`, supplierID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.SupplierID, &o.OrderDate, &o.ExpectedDate, &o.ReceivedDate, &o.Status,
			&o.TotalAmount, &o.QualityRating); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const metricColumns = `m.id, m.supplier_id, s.name, m.period_start, m.period_end, m.total_orders, m.completed_orders,
       m.cancelled_orders, m.timed_orders, m.rated_orders, m.on_time_rate::double precision, m.avg_lead_time_days::double precision,
       m.avg_quality::double precision, m.total_spend::double precision, m.score::double precision, m.calculated_at`

func collectMetrics(rows pgx.Rows) ([]Metric, error) {
	defer rows.Close()
	var out []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ID, &m.SupplierID, &m.SupplierName, &m.PeriodStart, &m.PeriodEnd, &m.TotalOrders,
			&m.CompletedOrders, &m.CancelledOrders, &m.TimedOrders, &m.RatedOrders, &m.OnTimeRate, &m.AvgLeadTimeDays, &m.AvgQuality,
			&m.TotalSpend, &m.Score, &m.CalculatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertMetric stores a performance snapshot.
func (r *Repository) InsertMetric(ctx context.Context, m Metric) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO supplier_performance_metrics (supplier_id, period_start, period_end, total_orders,
    completed_orders, cancelled_orders, timed_orders, rated_orders, on_time_rate, avg_lead_time_days, avg_quality,
    total_spend, score, calculated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING id`,
		m.SupplierID, m.PeriodStart, m.PeriodEnd, m.TotalOrders, m.CompletedOrders, m.CancelledOrders,
		m.TimedOrders, m.RatedOrders, m.OnTimeRate, m.AvgLeadTimeDays, m.AvgQuality, m.TotalSpend, m.Score, m.CalculatedAt).Scan(&id)
	return id, err
}

// LatestMetric returns the newest snapshot for a supplier, or nil.
func (r *Repository) LatestMetric(ctx context.Context, supplierID int64) (*Metric, error) {
	metrics, err := r.MetricHistory(ctx, supplierID, 1)
	if err != nil || len(metrics) == 0 {
		return nil, err
	}
	return &metrics[0], nil
}

// MetricHistory returns snapshots, newest first.
func (r *Repository) MetricHistory(ctx context.Context, supplierID int64, limit int) ([]Metric, error) {
	rows, err := r.db.Query(ctx, `SELECT `+metricColumns+`
FROM supplier_performance_metrics m JOIN suppliers s ON s.id = m.supplier_id
WHERE m.supplier_id = $1 ORDER BY m.calculated_at DESC, m.id DESC LIMIT $2`, supplierID, limit)
	if err != nil {
		return nil, err
	}
	return collectMetrics(rows)
}

// Ranking returns the latest snapshot per supplier, best score first.
func (r *Repository) Ranking(ctx context.Context) ([]Metric, error) {
	rows, err := r.db.Query(ctx, `SELECT * FROM (
    SELECT DISTINCT ON (m.supplier_id) `+metricColumns+`
    FROM supplier_performance_metrics m JOIN suppliers s ON s.id = m.supplier_id
    ORDER BY m.supplier_id, m.calculated_at DESC, m.id DESC
) latest ORDER BY score DESC, name`)
	if err != nil {
		return nil, err
	}
	return collectMetrics(rows)
}

// InsertAlert opens an alert.
func (r *Repository) InsertAlert(ctx context.Context, a Alert) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `INSERT INTO supplier_performance_alerts (supplier_id, metric, threshold, actual_value, severity,
    message, status, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, 'open', $7, NOW())
RETURNING id`,
		a.SupplierID, a.Metric, a.Threshold, a.ActualValue, a.Severity, a.Message, a.CreatedBy).Scan(&id)
	return id, err
}

// ListAlerts returns alerts filtered by supplier (0 = all) and status ("" = all).
func (r *Repository) ListAlerts(ctx context.Context, supplierID int64, status string) ([]Alert, error) {
	rows, err := r.db.Query(ctx, `SELECT a.id, a.supplier_id, s.name, a.metric, a.threshold::double precision,
       a.actual_value::double precision, a.severity, a.message, a.status, a.created_by, a.created_at, a.resolved_at
FROM supplier_performance_alerts a JOIN suppliers s ON s.id = a.supplier_id
WHERE ($1 = 0 OR a.supplier_id = $1) AND ($2 = '' OR a.status = $2)
ORDER BY CASE a.severity WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END, a.created_at DESC, a.id DESC`,
		supplierID, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.SupplierID, &a.SupplierName, &a.Metric, &a.Threshold, &a.ActualValue,
			&a.Severity, &a.Message, &a.Status, &a.CreatedBy, &a.CreatedAt, &a.ResolvedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// OpenAlertExists reports whether an open alert already watches metric.
func (r *Repository) OpenAlertExists(ctx context.Context, supplierID int64, metric string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM supplier_performance_alerts
WHERE supplier_id = $1 AND metric = $2 AND status = 'open')`, supplierID, metric).Scan(&ok)
	return ok, err
}

// ResolveAlert closes an open alert.
func (r *Repository) ResolveAlert(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE supplier_performance_alerts SET status = 'resolved', resolved_at = NOW()
WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

// DeleteAlert removes an alert.
func (r *Repository) DeleteAlert(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM supplier_performance_alerts WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}
