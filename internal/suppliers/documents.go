package suppliers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/posadmin/posadmin/internal/platform/storage"
)

// MaxDocumentBytes caps a single document upload.
const MaxDocumentBytes = 10 << 20

// allowedDocuments maps extensions to the sniffed MIME types accepted for them.
// Container formats fall back to their generic parent type.
var allowedDocuments = map[string][]string{
	".pdf":  {"application/pdf"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".doc":  {"application/msword", "application/x-ole-storage"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".xls":  {"application/vnd.ms-excel", "application/x-ole-storage"},
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"},
}

// AllowedDocumentExtensions lists accepted extensions for display.
func AllowedDocumentExtensions() []string {
	exts := make([]string, 0, len(allowedDocuments))
	for ext := range allowedDocuments {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// DocumentUpload is a validated multipart document.
type DocumentUpload struct {
	DocumentType string
	Title        string
	Notes        string
	IssuedAt     *time.Time
	ExpiresAt    *time.Time
	OriginalName string
	Size         int64
	Content      io.Reader
}

// sniff detects the content type of r and checks it against ext.
// The returned reader replays the sniffed prefix.
func sniff(ext string, r io.Reader) (string, io.Reader, error) {
	allowed, ok := allowedDocuments[ext]
	if !ok {
		return "", nil, ErrDocumentType
	}
	head := make([]byte, 3072)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, err
	}
	head = head[:n]
	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range allowed {
			if m.Is(want) {
				return detected.String(), io.MultiReader(bytes.NewReader(head), r), nil
			}
		}
	}
	return "", nil, ErrDocumentType
}

// UploadDocument stores the file and its metadata.
func (s *Service) UploadDocument(ctx context.Context, actor Actor, supplierID int64, up DocumentUpload) (Document, error) {
	up.DocumentType = strings.ToLower(strings.TrimSpace(up.DocumentType))
	up.Title = strings.TrimSpace(up.Title)
	up.OriginalName = filepath.Base(strings.TrimSpace(up.OriginalName))
	if up.Title == "" {
		up.Title = strings.TrimSuffix(up.OriginalName, filepath.Ext(up.OriginalName))
	}
	fields := map[string]string{}
	if !slices.Contains(DocumentTypes, up.DocumentType) {
		fields["document_type"] = "Choose a document type"
	}
	if up.Title == "" {
		fields["title"] = "title is required"
	} else if len(up.Title) > 200 {
		fields["title"] = "title must be at most 200 characters"
	}
	if up.IssuedAt != nil && up.ExpiresAt != nil && up.ExpiresAt.Before(*up.IssuedAt) {
		fields["expires_at"] = "Expiry date must be after the issue date"
	}
	if len(fields) > 0 {
		return Document{}, &ValidationError{Fields: fields}
	}
	if up.Size > MaxDocumentBytes {
		return Document{}, ErrDocumentTooLarge
	}
	if _, err := s.store.Get(ctx, supplierID); err != nil {
		return Document{}, err
	}

	ext := strings.ToLower(filepath.Ext(up.OriginalName))
	contentType, body, err := sniff(ext, up.Content)
	if err != nil {
		return Document{}, err
	}
	key := storage.NewKey(fmt.Sprintf("suppliers/%d", supplierID), up.OriginalName)
	written, err := s.files.Save(ctx, key, io.LimitReader(body, MaxDocumentBytes+1))
	if err != nil {
		return Document{}, fmt.Errorf("save document: %w", err)
	}
	if written > MaxDocumentBytes {
		_ = s.files.Remove(ctx, key)
		return Document{}, ErrDocumentTooLarge
	}

	doc := Document{
		SupplierID:   supplierID,
		DocumentType: up.DocumentType,
		Title:        up.Title,
		OriginalName: up.OriginalName,
		StoredName:   key,
		ContentType:  contentType,
		SizeBytes:    written,
		IssuedAt:     up.IssuedAt,
		ExpiresAt:    up.ExpiresAt,
		Notes:        strings.TrimSpace(up.Notes),
		UploadedBy:   actor.ref(),
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return tx.RecordActivity(ctx, activity(actor, "supplier.document_uploaded", supplierID, map[string]any{
			"document_id": id, "title": doc.Title, "type": doc.DocumentType,
		}))
	})
	if err != nil {
		s.removeFiles(ctx, []string{key})
		return Document{}, err
	}
	return doc, nil
}

// OpenDocument returns a document and its content. The caller closes the reader.
func (s *Service) OpenDocument(ctx context.Context, supplierID, docID int64) (Document, io.ReadCloser, error) {
	doc, err := s.store.GetDocument(ctx, supplierID, docID)
	if err != nil {
		return Document{}, nil, err
	}
	rc, err := s.files.Open(ctx, doc.StoredName)
	if err != nil {
		return Document{}, nil, fmt.Errorf("open document %d: %w", docID, err)
	}
	return doc, rc, nil
}

// DeleteDocument removes document metadata then its file.
func (s *Service) DeleteDocument(ctx context.Context, actor Actor, supplierID, docID int64) error {
	var key string
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		doc, err := tx.GetDocument(ctx, supplierID, docID)
		if err != nil {
			return err
		}
		key = doc.StoredName
		if err := tx.DeleteDocument(ctx, supplierID, docID); err != nil {
			return err
		}
		return tx.RecordActivity(ctx, activity(actor, "supplier.document_deleted", supplierID, map[string]any{
			"document_id": docID, "title": doc.Title,
		}))
	})
	if err != nil {
		return err
	}
	s.removeFiles(ctx, []string{key})
	return nil
}

// ExpiringDocument pairs a document with its expiry classification.
type ExpiringDocument struct {
	Document
	Status   string
	DaysLeft int
}

// ExpiringDocuments lists expired documents and those expiring within the window.
func (s *Service) ExpiringDocuments(ctx context.Context) ([]ExpiringDocument, error) {
	now := s.now()
	docs, err := s.store.ExpiringDocuments(ctx, now.Add(s.cfg.ExpiryWindow))
	if err != nil {
		return nil, err
	}
	out := make([]ExpiringDocument, 0, len(docs))
	for _, d := range docs {
		out = append(out, ExpiringDocument{
			Document: d,
			Status:   d.ExpiryStatus(now, s.cfg.ExpiryWindow),
			DaysLeft: int(d.ExpiresAt.Sub(now).Hours() / 24),
		})
	}
	return out, nil
}
