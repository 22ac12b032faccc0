package suppliers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/shared"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type importPage struct {
	Mode    string
	Result  *ImportResult
	Error   string
	Columns []string
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", "text/csv; charset=utf-8")
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", xlsxContentType)
}

// export buffers the file so a failure can still answer with an error page.
func (h *Handler) export(w http.ResponseWriter, r *http.Request, format, contentType string) {
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), &buf, format, filtersFromQuery(r)); err != nil {
		h.fail(w, r, "/suppliers", "export suppliers", err)
		return
	}
	filename := fmt.Sprintf("suppliers-%s.%s", h.service.now().Format("20060102-150405"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) importTemplate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="suppliers-template.csv"`)
	if err := WriteTemplateCSV(w); err != nil {
		h.logger.Error("write import template", slog.Any("error", err))
	}
}

func (h *Handler) importForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/suppliers/supplier_import.html", "Import suppliers", importPage{Mode: ImportSkip, Columns: ExportColumns}, http.StatusOK)
}

func (h *Handler) importFile(w http.ResponseWriter, r *http.Request) {
	page := importPage{Mode: r.FormValue("mode"), Columns: ExportColumns}
	if page.Mode != ImportUpdate {
		page.Mode = ImportSkip
	}
	data, filename, err := readUpload(r, "file", MaxImportBytes, ErrImportTooLarge)
	if err == nil {
		var res ImportResult
		res, err = h.service.Import(r.Context(), actorFrom(r), filename, data, page.Mode)
		if err == nil {
			page.Result = &res
			h.render(w, r, "pages/suppliers/supplier_import.html", "Import suppliers", page, http.StatusOK)
			return
		}
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("import suppliers", slog.Any("error", err))
	}
	page.Error = httpx.Message(err)
	h.render(w, r, "pages/suppliers/supplier_import.html", "Import suppliers", page, httpx.StatusFor(err))
}

var errMissingFile = httpx.Errorf(httpx.ErrValidation, "Choose a file to upload")

// readUpload reads a multipart file field, refusing anything over limit.
func readUpload(r *http.Request, field string, limit int64, tooLarge error) ([]byte, string, error) {
	if err := r.ParseMultipartForm(shared.MaxUploadBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, "", tooLarge
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", errMissingFile
	}
	defer func() { _ = file.Close() }()
	if header.Size > limit {
		return nil, "", tooLarge
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > limit {
		return nil, "", tooLarge
	}
	return data, header.Filename, nil
}

type duplicatesPage struct {
	Groups []DuplicateGroup
}

func (h *Handler) duplicates(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.Duplicates(r.Context())
	if err != nil {
		h.fail(w, r, "/suppliers", "find duplicate suppliers", err)
		return
	}
	h.render(w, r, "pages/suppliers/supplier_duplicates.html", "Duplicate suppliers", duplicatesPage{Groups: groups}, http.StatusOK)
}

func (h *Handler) mergeDuplicates(w http.ResponseWriter, r *http.Request) {
	results, err := h.service.MergeDuplicates(r.Context(), actorFrom(r), r.PostFormValue("key"))
	if err != nil {
		h.fail(w, r, "/suppliers/duplicates", "merge duplicate suppliers", err)
		return
	}
	if len(results) == 0 {
		h.redirectWithFlash(w, r, "/suppliers/duplicates", shared.FlashWarning, "No duplicates to merge")
		return
	}
	removed := 0
	for _, res := range results {
		removed += len(res.Removed)
	}
	h.redirectWithFlash(w, r, "/suppliers/duplicates", shared.FlashSuccess,
		fmt.Sprintf("Merged %d group(s), removed %d duplicate supplier(s)", len(results), removed))
}
