package suppliers

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/posadmin/posadmin/internal/platform/httpx"
	"github.com/posadmin/posadmin/internal/shared"
)

func (h *Handler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	back := fmt.Sprintf("/suppliers/%d", id)
	if err := r.ParseMultipartForm(shared.MaxUploadBytes); err != nil {
		h.redirectWithFlash(w, r, back, shared.FlashError, httpx.Message(ErrDocumentTooLarge))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.redirectWithFlash(w, r, back, shared.FlashError, httpx.Message(errMissingFile))
		return
	}
	defer func() { _ = file.Close() }()

	issued, err := ParseDate(r.FormValue("issued_at"))
	if err != nil {
		h.fail(w, r, back, "upload document", err)
		return
	}
	expires, err := ParseDate(r.FormValue("expires_at"))
	if err != nil {
		h.fail(w, r, back, "upload document", err)
		return
	}
	doc, err := h.service.UploadDocument(r.Context(), actorFrom(r), id, DocumentUpload{
		DocumentType: r.FormValue("document_type"),
		Title:        r.FormValue("title"),
		Notes:        r.FormValue("notes"),
		IssuedAt:     issued,
		ExpiresAt:    expires,
		OriginalName: header.Filename,
		Size:         header.Size,
		Content:      file,
	})
	if err != nil {
		h.fail(w, r, back, "upload document", err)
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, fmt.Sprintf("Document %q uploaded", doc.Title))
}

func (h *Handler) downloadDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := h.pathID(w, r, "docID")
	if !ok {
		return
	}
	doc, rc, err := h.service.OpenDocument(r.Context(), id, docID)
	if err != nil {
		h.fail(w, r, fmt.Sprintf("/suppliers/%d", id), "open document", err)
		return
	}
	defer func() { _ = rc.Close() }()
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(doc.SizeBytes, 10))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.OriginalName}))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream document", slog.Int64("document_id", docID), slog.Any("error", err))
	}
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	docID, ok := h.pathID(w, r, "docID")
	if !ok {
		return
	}
	back := fmt.Sprintf("/suppliers/%d", id)
	if err := h.service.DeleteDocument(r.Context(), actorFrom(r), id, docID); err != nil {
		h.fail(w, r, back, "delete document", err)
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, "Document deleted")
}

type expiringPage struct {
	Documents  []ExpiringDocument
	WindowDays int
}

func (h *Handler) expiringDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.service.ExpiringDocuments(r.Context())
	if err != nil {
		h.fail(w, r, "/suppliers", "list expiring documents", err)
		return
	}
	h.render(w, r, "pages/suppliers/supplier_documents_expiring.html", "Expiring documents", expiringPage{
		Documents:  docs,
		WindowDays: int(h.service.cfg.ExpiryWindow.Hours() / 24),
	}, http.StatusOK)
}

func (h *Handler) logCommunication(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	back := fmt.Sprintf("/suppliers/%d", id)
	occurred, err := ParseDate(r.PostFormValue("occurred_at"))
	if err != nil {
		h.fail(w, r, back, "log communication", err)
		return
	}
	followUp, err := ParseDate(r.PostFormValue("follow_up_at"))
	if err != nil {
		h.fail(w, r, back, "log communication", err)
		return
	}
	_, err = h.service.LogCommunication(r.Context(), actorFrom(r), id, CommunicationInput{
		Channel:       r.PostFormValue("channel"),
		Direction:     r.PostFormValue("direction"),
		Subject:       r.PostFormValue("subject"),
		Body:          r.PostFormValue("body"),
		ContactPerson: r.PostFormValue("contact_person"),
		OccurredAt:    occurred,
		FollowUpAt:    followUp,
	})
	if err != nil {
		h.fail(w, r, back, "log communication", err)
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, "Communication logged")
}

func (h *Handler) deleteCommunication(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	commID, ok := h.pathID(w, r, "commID")
	if !ok {
		return
	}
	back := fmt.Sprintf("/suppliers/%d", id)
	if err := h.service.DeleteCommunication(r.Context(), actorFrom(r), id, commID); err != nil {
		h.fail(w, r, back, "delete communication", err)
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, "Communication deleted")
}

func (h *Handler) followUps(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.FollowUps(r.Context())
	if err != nil {
		h.fail(w, r, "/suppliers", "list follow-ups", err)
		return
	}
	h.render(w, r, "pages/suppliers/supplier_follow_ups.html", "Follow-ups", map[string]any{"FollowUps": items}, http.StatusOK)
}

func (h *Handler) setWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	back := fmt.Sprintf("/suppliers/%d", id)
	state := WorkflowState(r.PostFormValue("state"))
	if err := h.service.SetWorkflowState(r.Context(), actorFrom(r), id, state, r.PostFormValue("reason")); err != nil {
		if httpx.StatusFor(err) == http.StatusBadRequest {
			if sess := shared.SessionFromContext(r.Context()); sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: shared.FlashError, Message: httpx.Message(err)})
			}
			h.renderDetail(w, r, id, http.StatusBadRequest)
			return
		}
		h.fail(w, r, back, "set workflow state", err)
		return
	}
	h.redirectWithFlash(w, r, back, shared.FlashSuccess, "Workflow state set to "+string(state))
}
