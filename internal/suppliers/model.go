package suppliers

import (
	"time"

	"github.com/posadmin/posadmin/internal/shared"
)

// Supplier statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// WorkflowState is the approval state of a supplier.
type WorkflowState string

// Workflow states.
const (
	StatePendingApproval WorkflowState = "pending_approval"
	StateApproved        WorkflowState = "approved"
	StateOnProbation     WorkflowState = "on_probation"
	StateSuspended       WorkflowState = "suspended"
	StateBlacklisted     WorkflowState = "blacklisted"
)

// WorkflowStates lists states in display order.
func WorkflowStates() []WorkflowState {
	return []WorkflowState{StatePendingApproval, StateApproved, StateOnProbation, StateSuspended, StateBlacklisted}
}

// Valid reports whether s is a known state.
func (s WorkflowState) Valid() bool {
	for _, v := range WorkflowStates() {
		if v == s {
			return true
		}
	}
	return false
}

// Supplier is a row of the suppliers table.
type Supplier struct {
	ID            int64         `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	ContactPerson string        `json:"contact_person"`
	Email         string        `json:"email"`
	Phone         string        `json:"phone"`
	Address       string        `json:"address"`
	City          string        `json:"city"`
	Country       string        `json:"country"`
	TaxID         string        `json:"tax_id"`
	PaymentTerms  string        `json:"payment_terms"`
	Notes         string        `json:"notes"`
	Status        string        `json:"status"`
	WorkflowState WorkflowState `json:"workflow_state"`
	CreatedBy     *int64        `json:"created_by,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	ProductCount  int           `json:"product_count"`
}

// Active reports whether the supplier status is active.
func (s Supplier) Active() bool { return s.Status == StatusActive }

// Sort keys accepted by List.
const (
	SortName      = "name"
	SortCode      = "code"
	SortCreatedAt = "created_at"
)

// ListFilters represents list page filters.
type ListFilters struct {
	Page          int
	Limit         int
	Search        string
	Status        string
	WorkflowState string
	SortBy        string
	SortDir       string
}

// Page is one page of suppliers.
type Page struct {
	Suppliers  []Supplier
	Filters    ListFilters
	Pagination shared.Pagination
}

// Document types.
var DocumentTypes = []string{"contract", "certificate", "license", "insurance", "tax", "other"}

// Document expiry classifications.
const (
	ExpiryExpired  = "expired"
	ExpiryExpiring = "expiring"
	ExpiryValid    = "valid"
	ExpiryNone     = "none"
)

// Document is a file attached to a supplier.
type Document struct {
	ID           int64
	SupplierID   int64
	SupplierName string
	DocumentType string
	Title        string
	OriginalName string
	StoredName   string
	ContentType  string
	SizeBytes    int64
	IssuedAt     *time.Time
	ExpiresAt    *time.Time
	Notes        string
	UploadedBy   *int64
	CreatedAt    time.Time
}

// ExpiryStatus classifies the document relative to now and the warning window.
func (d Document) ExpiryStatus(now time.Time, window time.Duration) string {
	if d.ExpiresAt == nil {
		return ExpiryNone
	}
	if d.ExpiresAt.Before(now) {
		return ExpiryExpired
	}
	if d.ExpiresAt.Before(now.Add(window)) {
		return ExpiryExpiring
	}
	return ExpiryValid
}

// Communication channels and directions.
var (
	Channels   = []string{"email", "phone", "meeting", "note"}
	Directions = []string{"inbound", "outbound"}
)

// Communication is a logged interaction with a supplier.
type Communication struct {
	ID            int64
	SupplierID    int64
	SupplierName  string
	Channel       string
	Direction     string
	Subject       string
	Body          string
	ContactPerson string
	OccurredAt    time.Time
	FollowUpAt    *time.Time
	CreatedBy     *int64
	CreatedAt     time.Time
}

// WorkflowChange is a row of supplier_workflow_states.
type WorkflowChange struct {
	ID         int64
	SupplierID int64
	FromState  WorkflowState
	ToState    WorkflowState
	Reason     string
	ChangedBy  *int64
	ChangedAt  time.Time
}

// Order is the slice of an inventory order used by performance analytics.
type Order struct {
	ID            int64
	SupplierID    int64
	OrderDate     time.Time
	ExpectedDate  *time.Time
	ReceivedDate  *time.Time
	Status        string
	TotalAmount   float64
	QualityRating *float64
}

// Inventory order statuses that count for performance.
const (
	OrderReceived  = "received"
	OrderCompleted = "completed"
	OrderCancelled = "cancelled"
)

// Metric is a performance snapshot for one supplier over a window.
type Metric struct {
	ID              int64
	SupplierID      int64
	SupplierName    string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalOrders     int
	CompletedOrders int
	CancelledOrders int
	TimedOrders     int // received orders that had an expected date
	RatedOrders     int // orders with a quality rating
	OnTimeRate      float64
	AvgLeadTimeDays float64
	AvgQuality      float64
	TotalSpend      float64
	Score           float64
	CalculatedAt    time.Time
}

// Alert severities and statuses.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"

	AlertOpen     = "open"
	AlertResolved = "resolved"
)

// Alert metric names.
const (
	MetricOnTimeRate  = "on_time_rate"
	MetricQuality     = "avg_quality"
	MetricLeadTime    = "avg_lead_time_days"
	MetricScore       = "score"
	MetricCancelRatio = "cancel_ratio"
)

// AlertMetrics lists metric names an alert may watch.
var AlertMetrics = []string{MetricOnTimeRate, MetricQuality, MetricLeadTime, MetricScore, MetricCancelRatio}

// Alert is a performance alert raised for a supplier.
type Alert struct {
	ID           int64
	SupplierID   int64
	SupplierName string
	Metric       string
	Threshold    float64
	ActualValue  float64
	Severity     string
	Message      string
	Status       string
	CreatedBy    *int64
	CreatedAt    time.Time
	ResolvedAt   *time.Time
}

// Detail bundles everything shown on the supplier page.
type Detail struct {
	Supplier       Supplier
	Documents      []Document
	Communications []Communication
	History        []WorkflowChange
	LatestMetric   *Metric
	OpenAlerts     []Alert
}
