package audit

import (
	"context"
	"errors"
	"time"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/shared"
)

const (
	// MaxRange bounds the from/to window.
	MaxRange = 90 * 24 * time.Hour
	// MaxExportRows caps CSV exports.
	MaxExportRows = 10000
)

// ErrRange is returned when the date window is inverted or too wide.
var ErrRange = httpx.Errorf(httpx.ErrValidation, "Date range must be at most 90 days with from before to")

// Service pages and exports the activity log.
type Service struct {
	store Store
}

// NewService constructs a Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

func (f TimelineFilters) validate() error {
	if f.From.IsZero() || f.To.IsZero() {
		return nil
	}
	if f.From.After(f.To) || f.To.Sub(f.From) > MaxRange {
		return ErrRange
	}
	return nil
}

// Timeline returns one page of entries.
func (s *Service) Timeline(ctx context.Context, f TimelineFilters) (Result, error) {
	if s.store == nil {
		return Result{}, errors.New("audit: store not configured")
	}
	if err := f.validate(); err != nil {
		return Result{}, err
	}
	total, err := s.store.Count(ctx, f)
	if err != nil {
		return Result{}, err
	}
	p := shared.NewPagination(f.Page, f.PerPage, total)
	rows, err := s.store.Window(ctx, f, p.PerPage, p.Offset())
	if err != nil {
		return Result{}, err
	}
	return Result{Rows: rows, Pagination: p}, nil
}

// Export returns every matching entry up to MaxExportRows.
func (s *Service) Export(ctx context.Context, f TimelineFilters) ([]TimelineRow, error) {
	if s.store == nil {
		return nil, errors.New("audit: store not configured")
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return s.store.Window(ctx, f, MaxExportRows, 0)
}
