package suppliers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/posadmin/posadmin/internal/shared"
)

// Import limits.
const (
	MaxImportBytes = 5 << 20
	MaxImportRows  = 5000
)

// Import modes for rows whose name already exists.
const (
	ImportSkip   = "skip"
	ImportUpdate = "update"
)

// RowError is a rejected import row. Line counts the header as line 1.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportResult summarises an import.
type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors"`
}

// Summary is the flash text for the result.
func (r ImportResult) Summary() string {
	msg := fmt.Sprintf("Import finished: %d created, %d updated, %d skipped", r.Created, r.Updated, r.Skipped)
	if n := len(r.Errors); n > 0 {
		msg += fmt.Sprintf(", %d row(s) with errors", n)
	}
	return msg
}

// importRow is one decoded data row.
type importRow struct {
	line  int
	input Input
	state WorkflowState
}

// parseImport maps the header case-insensitively and decodes data rows.
func parseImport(rows [][]string) ([]importRow, error) {
	if len(rows) == 0 {
		return nil, ErrImportEmpty
	}
	index := map[string]int{}
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}
	if _, ok := index["name"]; !ok {
		return nil, ErrImportNoName
	}
	cell := func(row []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []importRow
	for n, row := range rows[1:] {
		if blankRow(row) {
			continue
		}
		if len(out) == MaxImportRows {
			return nil, ErrImportTooManyRows
		}
		out = append(out, importRow{
			line: n + 2,
			input: Input{
				Code:          cell(row, "code"),
				Name:          cell(row, "name"),
				ContactPerson: cell(row, "contact_person"),
				Email:         cell(row, "email"),
				Phone:         cell(row, "phone"),
				Address:       cell(row, "address"),
				City:          cell(row, "city"),
				Country:       cell(row, "country"),
				TaxID:         cell(row, "tax_id"),
				PaymentTerms:  cell(row, "payment_terms"),
				Notes:         cell(row, "notes"),
				Status:        cell(row, "status"),
			},
			state: WorkflowState(strings.ToLower(cell(row, "workflow_state"))),
		})
	}
	if len(out) == 0 {
		return nil, ErrImportEmpty
	}
	return out, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Import loads suppliers from an uploaded file. Invalid rows are reported and
// skipped; any database error rolls the whole import back.
func (s *Service) Import(ctx context.Context, actor Actor, filename string, data []byte, mode string) (ImportResult, error) {
	if len(data) > MaxImportBytes {
		return ImportResult{}, ErrImportTooLarge
	}
	if mode != ImportUpdate {
		mode = ImportSkip
	}
	sheet, err := ReadRows(filename, data)
	if err != nil {
		return ImportResult{}, err
	}
	rows, err := parseImport(sheet)
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		res = ImportResult{}
		seen := map[string]int{}
		for _, row := range rows {
			in := row.input.Normalize()
			if err := s.Validate(in); err != nil {
				res.Errors = append(res.Errors, RowError{Line: row.line, Message: rowMessage(err)})
				continue
			}
			key := NormalizeName(in.Name)
			if first, dup := seen[key]; dup {
				res.Errors = append(res.Errors, RowError{Line: row.line, Message: fmt.Sprintf("Duplicate of line %d", first)})
				continue
			}
			seen[key] = row.line

			msg, err := s.importOne(ctx, tx, actor, in, row.state, mode, &res)
			if err != nil {
				return err
			}
			if msg != "" {
				res.Errors = append(res.Errors, RowError{Line: row.line, Message: msg})
			}
		}
		return tx.RecordActivity(ctx, shared.ActivityLog{
			UserID:     actor.UserID,
			Action:     "supplier.imported",
			EntityType: "supplier",
			Details: map[string]any{
				"file":    filename,
				"mode":    mode,
				"created": res.Created,
				"updated": res.Updated,
				"skipped": res.Skipped,
				"errors":  len(res.Errors),
			},
			IPAddress: actor.IP,
		})
	})
	if err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

// importOne applies one valid row. A non-empty message rejects the row.
func (s *Service) importOne(ctx context.Context, tx Store, actor Actor, in Input, state WorkflowState, mode string, res *ImportResult) (string, error) {
	existing, err := tx.FindByName(ctx, in.Name)
	switch {
	case err == nil:
		if mode == ImportSkip {
			res.Skipped++
			return "", nil
		}
		if in.Code != "" {
			taken, err := tx.CodeTaken(ctx, in.Code, existing.ID)
			if err != nil {
				return "", err
			}
			if taken {
				return ErrDuplicateCode.Error(), nil
			}
		}
		sup := in.toSupplier()
		sup.ID = existing.ID
		if sup.Code == "" {
			sup.Code = existing.Code
		}
		if err := tx.Update(ctx, sup); err != nil {
			return "", err
		}
		res.Updated++
		return "", nil
	case errors.Is(err, ErrNotFound):
	default:
		return "", err
	}

	sup := in.toSupplier()
	if sup.Code == "" {
		if sup.Code, err = s.nextCode(ctx, tx); err != nil {
			return "", err
		}
	} else {
		taken, err := tx.CodeTaken(ctx, sup.Code, 0)
		if err != nil {
			return "", err
		}
		if taken {
			return ErrDuplicateCode.Error(), nil
		}
	}
	sup.WorkflowState = StatePendingApproval
	if state.Valid() {
		sup.WorkflowState = state
	}
	sup.CreatedBy = actor.ref()
	id, err := tx.Insert(ctx, sup)
	if err != nil {
		return "", err
	}
	if err := tx.InsertWorkflowChange(ctx, WorkflowChange{SupplierID: id, ToState: sup.WorkflowState, Reason: "Imported", ChangedBy: actor.ref()}); err != nil {
		return "", err
	}
	res.Created++
	return "", nil
}

func rowMessage(err error) string {
	fields := FieldErrors(err)
	if len(fields) == 0 {
		return err.Error()
	}
	msgs := make([]string, 0, len(fields))
	for _, col := range ExportColumns {
		if msg, ok := fields[col]; ok {
			msgs = append(msgs, msg)
		}
	}
	return strings.Join(msgs, "; ")
}
