package suppliers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ExportColumns is the header of every export and of the import template.
var ExportColumns = []string{
	"id", "code", "name", "contact_person", "email", "phone", "address", "city",
	"country", "tax_id", "payment_terms", "notes", "status", "workflow_state", "created_at",
}

const exportSheet = "Suppliers"

func exportRow(s Supplier) []string {
	return []string{
		strconv.FormatInt(s.ID, 10),
		s.Code,
		s.Name,
		s.ContactPerson,
		s.Email,
		s.Phone,
		s.Address,
		s.City,
		s.Country,
		s.TaxID,
		s.PaymentTerms,
		s.Notes,
		s.Status,
		string(s.WorkflowState),
		s.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes suppliers with the export header.
func WriteCSV(w io.Writer, list []Supplier) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportColumns); err != nil {
		return err
	}
	for _, s := range list {
		if err := cw.Write(exportRow(s)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTemplateCSV writes the header-only import template.
func WriteTemplateCSV(w io.Writer) error {
	return WriteCSV(w, nil)
}

// WriteXLSX writes suppliers to a single-sheet workbook.
func WriteXLSX(w io.Writer, list []Supplier) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return err
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", toCells(ExportColumns)); err != nil {
		return err
	}
	for i, s := range list {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(exportRow(s))); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// Export writes the filtered list in format "csv" or "xlsx".
func (s *Service) Export(ctx context.Context, w io.Writer, format string, f ListFilters) error {
	list, err := s.store.ListAll(ctx, f)
	if err != nil {
		return err
	}
	switch format {
	case "csv":
		return WriteCSV(w, list)
	case "xlsx":
		return WriteXLSX(w, list)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// ReadRows decodes an uploaded sheet into rows, header first. The format is
// picked by file extension.
func ReadRows(filename string, data []byte) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		rows, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
		}
		return rows, nil
	case ".xlsx":
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
		}
		defer func() { _ = f.Close() }()
		sheet := f.GetSheetName(0)
		if sheet == "" {
			return nil, ErrImportEmpty
		}
		return f.GetRows(sheet)
	case ".xls":
		wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrImportFormat, err)
		}
		if wb.NumSheets() == 0 {
			return nil, ErrImportEmpty
		}
		return wb.ReadAllCells(MaxImportRows + 2), nil
	default:
		return nil, ErrImportFormat
	}
}
