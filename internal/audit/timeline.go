// Package audit serves the activity log timeline.
package audit

import (
	"html/template"
	"time"

	"github.com/posadmin/posadmin/internal/shared"
)

// TimelineFilters narrows the activity log. From and To are inclusive days.
type TimelineFilters struct {
	From       time.Time
	To         time.Time
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Page       int
	PerPage    int
}

// TimelineRow is one activity log entry joined with its actor.
type TimelineRow struct {
	ID         int64     `json:"id"`
	At         time.Time `json:"at"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details"`
	IPAddress  string    `json:"ip_address"`
}

// ActorLabel is the display name, falling back to "system".
func (r TimelineRow) ActorLabel() string {
	if r.Actor == "" {
		return "system"
	}
	return r.Actor
}

// Result is one page of the timeline.
type Result struct {
	Rows       []TimelineRow
	Pagination shared.Pagination
}

type timelinePage struct {
	Filters TimelineFilters
	Result  Result
	Query   template.URL
}
