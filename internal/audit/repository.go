package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/posadmin/posadmin/internal/platform/db"
)

// Store reads activity_logs.
type Store interface {
	Count(ctx context.Context, f TimelineFilters) (int, error)
	Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const timelineFrom = `
FROM activity_logs a
LEFT JOIN users u ON u.id = a.user_id`

func whereClause(f TimelineFilters) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if !f.From.IsZero() {
		add("a.created_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("a.created_at < $%d", f.To.AddDate(0, 0, 1))
	}
	if f.Actor != "" {
		args = append(args, "%"+strings.ToLower(f.Actor)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(lower(u.name) LIKE $%d OR lower(u.email) LIKE $%d)", n, n))
	}
	if f.Action != "" {
		add("a.action = $%d", f.Action)
	}
	if f.EntityType != "" {
		add("a.entity_type = $%d", f.EntityType)
	}
	if f.EntityID != "" {
		add("a.entity_id = $%d", f.EntityID)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Count returns the number of matching entries.
func (r *Repository) Count(ctx context.Context, f TimelineFilters) (int, error) {
	where, args := whereClause(f)
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*)`+timelineFrom+where, args...).Scan(&n)
	return n, err
}

// Window returns entries newest first.
func (r *Repository) Window(ctx context.Context, f TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	where, args := whereClause(f)
	args = append(args, limit, offset)
	query := `SELECT a.id, a.created_at, a.user_id, COALESCE(u.name, ''), a.action, a.entity_type, a.entity_id,
       COALESCE(a.details::text, ''), COALESCE(a.ip_address, '')` + timelineFrom + where +
		fmt.Sprintf(` ORDER BY a.created_at DESC, a.id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var t TimelineRow
		err := row.Scan(&t.ID, &t.At, &t.ActorID, &t.Actor, &t.Action, &t.EntityType, &t.EntityID, &t.Details, &t.IPAddress)
		return t, err
	})
}
