package suppliers

import "github.com/posadmin/posadmin/internal/platform/httpx"

// Errors surfaced to users through flashes and envelopes.
var (
	ErrNotFound          = httpx.Errorf(httpx.ErrNotFound, "Supplier not found")
	ErrDuplicateName     = httpx.Errorf(httpx.ErrDuplicate, "A supplier with this name already exists")
	ErrDuplicateCode     = httpx.Errorf(httpx.ErrDuplicate, "A supplier with this code already exists")
	ErrHasProducts       = httpx.Errorf(httpx.ErrValidation, "Supplier has products and cannot be deleted")
	ErrInvalidState      = httpx.Errorf(httpx.ErrValidation, "Unknown workflow state")
	ErrSameState         = httpx.Errorf(httpx.ErrValidation, "Supplier is already in that workflow state")
	ErrDocumentNotFound  = httpx.Errorf(httpx.ErrNotFound, "Document not found")
	ErrDocumentTooLarge  = httpx.Errorf(httpx.ErrValidation, "Document exceeds the 10 MB limit")
	ErrDocumentType      = httpx.Errorf(httpx.ErrValidation, "File type is not allowed")
	ErrCommNotFound      = httpx.Errorf(httpx.ErrNotFound, "Communication not found")
	ErrAlertNotFound     = httpx.Errorf(httpx.ErrNotFound, "Alert not found")
	ErrImportTooLarge    = httpx.Errorf(httpx.ErrValidation, "Import file exceeds the 5 MB limit")
	ErrImportFormat      = httpx.Errorf(httpx.ErrValidation, "Import file must be .csv, .xlsx or .xls")
	ErrImportNoName      = httpx.Errorf(httpx.ErrValidation, "Import file must have a name column")
	ErrImportTooManyRows = httpx.Errorf(httpx.ErrValidation, "Import file has more than 5000 rows")
	ErrImportEmpty       = httpx.Errorf(httpx.ErrValidation, "Import file has no data rows")
	ErrNoSelection       = httpx.Errorf(httpx.ErrValidation, "Select at least one supplier")
	ErrBulkAction        = httpx.Errorf(httpx.ErrValidation, "Unknown bulk action")
	ErrCodesExhausted    = httpx.Errorf(httpx.ErrDuplicate, "Could not allocate a supplier code, try again")
)
