package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/internal/storage"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/textextract"
)

var (
	ErrNotFound        = errors.New("document not found")
	ErrUnsupportedType = errors.New("file type not allowed")
	ErrTooLarge        = errors.New("file too large")
	ErrEmptyFilename   = errors.New("no file name")
)

// PurgeEnqueuer schedules a background retry of a failed vector purge.
type PurgeEnqueuer interface {
	EnqueueVectorPurge(ctx context.Context, documentID string) error
}

type Options struct {
	AllowedExtensions []string
	MaxSize           int64
	// Purger is optional; without it failed purges are only logged.
	Purger PurgeEnqueuer
}

type Service struct {
	storage   storage.Storage
	registry  *Registry
	pipeline  rag.Pipeline
	index     vectorstore.Index
	extractor TextExtractor
	purger    PurgeEnqueuer
	allowed   map[string]bool
	maxSize   int64
	now       func() time.Time
}

func NewService(store storage.Storage, registry *Registry, pipeline rag.Pipeline, index vectorstore.Index, opts Options) *Service {
	allowed := make(map[string]bool, len(opts.AllowedExtensions))
	for _, ext := range opts.AllowedExtensions {
		allowed[strings.TrimPrefix(strings.ToLower(ext), ".")] = true
	}
	return &Service{
		storage:   store,
		registry:  registry,
		pipeline:  pipeline,
		index:     index,
		extractor: NewTextExtractor(),
		purger:    opts.Purger,
		allowed:   allowed,
		maxSize:   opts.MaxSize,
		now:       time.Now,
	}
}

// File is one uploaded file.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type UploadResult struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id,omitempty"`
	Chunks     int    `json:"chunks"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type UploadReport struct {
	Results []UploadResult `json:"results"`
	Status  string         `json:"status"`
}

// Listing is a document as shown to users.
type Listing struct {
	models.Document
	DisplayFilename string `json:"display_filename"`
}

// Allowed reports whether filename has an accepted extension.
func (s *Service) Allowed(filename string) bool {
	return s.allowed[textextract.TypeOf(filename)]
}

// UploadAll uploads each file independently.
func (s *Service) UploadAll(ctx context.Context, files []File) UploadReport {
	results := make([]UploadResult, 0, len(files))
	ok := 0
	for _, f := range files {
		res := UploadResult{Filename: f.Name}
		doc, n, err := s.Upload(ctx, f)
		if err != nil {
			res.Error = err.Error()
		} else {
			res.Success = true
			res.DocumentID = doc.ID
			res.Chunks = n
			ok++
		}
		results = append(results, res)
	}

	status := models.BatchFailure
	switch {
	case ok > 0 && ok == len(files):
		status = models.BatchSuccess
	case ok > 0:
		status = models.BatchPartial
	}
	return UploadReport{Results: results, Status: status}
}

// Upload stores the file, records its metadata and indexes its text. The
// document is queryable when Upload returns. On failure nothing is kept.
func (s *Service) Upload(ctx context.Context, f File) (*models.Document, int, error) {
	original := SecureFilename(f.Name)
	if original == "" {
		return nil, 0, ErrEmptyFilename
	}
	if !s.Allowed(original) {
		return nil, 0, fmt.Errorf("%w: %s", ErrUnsupportedType, original)
	}
	if s.maxSize > 0 && int64(len(f.Data)) > s.maxSize {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(f.Data))
	}

	stored := uuid.NewString() + "_" + original
	contentType := f.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.storage.Upload(ctx, stored, bytes.NewReader(f.Data), contentType); err != nil {
		return nil, 0, fmt.Errorf("store file: %w", err)
	}

	created := models.Timestamp(s.now())
	doc := &models.Document{
		ID:       stored,
		Filename: stored,
		Content:  f.Data,
		Metadata: map[string]string{
			models.MetaSource:           s.storage.Location(stored),
			models.MetaCreatedAt:        created,
			models.MetaOriginalFilename: f.Name,
		},
		CreatedAt: created,
	}

	n, err := s.process(ctx, doc)
	doc.Content = nil
	if err != nil {
		s.rollback(ctx, doc.ID)
		return nil, 0, err
	}

	if err := s.registry.Put(doc.ID, Record{Filename: doc.Filename, Metadata: doc.Metadata, CreatedAt: doc.CreatedAt}); err != nil {
		s.rollback(ctx, doc.ID)
		return nil, 0, fmt.Errorf("record metadata: %w", err)
	}

	slog.Info("document uploaded", "document_id", doc.ID, "original_filename", f.Name, "chunks", n)
	return doc, n, nil
}

func (s *Service) process(ctx context.Context, doc *models.Document) (int, error) {
	extracted, err := s.extractor.Extract(ctx, doc.Content, textextract.TypeOf(doc.Filename))
	if err != nil {
		return 0, err
	}
	n, err := s.pipeline.Ingest(ctx, doc.ID, extracted.Content)
	if err != nil {
		return 0, fmt.Errorf("index document: %w", err)
	}
	return n, nil
}

// rollback undoes a partially completed upload: vectors, any metadata
// record and the stored file. It uses a fresh context so a cancelled
// request still cleans up.
func (s *Service) rollback(ctx context.Context, id string) {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.index.DeleteByDocument(cleanup, id); err != nil {
		slog.Error("rollback vector purge failed", "document_id", id, "error", err)
		s.enqueuePurge(cleanup, id)
	}
	if _, err := s.registry.Remove(id); err != nil {
		slog.Error("rollback metadata removal failed", "document_id", id, "error", err)
	}
	s.discardFile(cleanup, id)
}

func (s *Service) discardFile(ctx context.Context, name string) {
	if err := s.storage.Delete(ctx, name); err != nil {
		slog.Error("failed to remove stored file", "file", name, "error", err)
	}
}

// List returns every document with a display name.
func (s *Service) List() []Listing {
	docs := s.registry.Documents()
	out := make([]Listing, len(docs))
	for i, d := range docs {
		out[i] = Listing{Document: d, DisplayFilename: DisplayFilename(d)}
	}
	return out
}

// Get returns a document's metadata.
func (s *Service) Get(id string) (*models.Document, bool) {
	rec, ok := s.registry.Get(id)
	if !ok {
		return nil, false
	}
	return &models.Document{ID: id, Filename: rec.Filename, Metadata: rec.Metadata, CreatedAt: rec.CreatedAt}, true
}

// Delete removes the stored file, every vector of the document and its
// metadata record. It returns false for unknown documents, and also when
// the vector purge failed; the purge is then retried in the background.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	rec, ok := s.registry.Get(id)
	if !ok {
		slog.Info("document not found for deletion", "document_id", id)
		return false, nil
	}

	if err := s.storage.Delete(ctx, rec.Filename); err != nil {
		return false, fmt.Errorf("delete file %s: %w", rec.Filename, err)
	}

	purgeErr := s.index.DeleteByDocument(ctx, id)
	if purgeErr != nil {
		slog.Error("vector purge failed", "document_id", id, "error", purgeErr)
		s.enqueuePurge(ctx, id)
	}

	if _, err := s.registry.Remove(id); err != nil {
		return false, fmt.Errorf("remove metadata %s: %w", id, err)
	}

	if purgeErr != nil {
		return false, nil
	}
	slog.Info("document deleted", "document_id", id)
	return true, nil
}

// DeleteMany deletes each id independently and reports per-id outcomes.
func (s *Service) DeleteMany(ctx context.Context, ids []string) models.BatchResult {
	var deleted, failed []string
	for _, id := range ids {
		ok, err := s.Delete(ctx, id)
		if err != nil {
			slog.Error("batch document delete failed", "document_id", id, "error", err)
		}
		if ok {
			deleted = append(deleted, id)
		} else {
			failed = append(failed, id)
		}
	}
	return models.NewBatchResult(deleted, failed)
}

// Reindex replaces a document's vectors with ones computed from its stored
// file. The existing vectors are kept when extraction or embedding fails.
func (s *Service) Reindex(ctx context.Context, id string) (int, error) {
	rec, ok := s.registry.Get(id)
	if !ok {
		return 0, ErrNotFound
	}

	rc, err := s.storage.Download(ctx, rec.Filename)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", rec.Filename, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", rec.Filename, err)
	}

	extracted, err := s.extractor.Extract(ctx, data, textextract.TypeOf(rec.Filename))
	if err != nil {
		return 0, err
	}
	n, err := s.pipeline.Reingest(ctx, id, extracted.Content)
	if err != nil {
		return 0, fmt.Errorf("reindex document: %w", err)
	}
	slog.Info("document reindexed", "document_id", id, "chunks", n)
	return n, nil
}

func (s *Service) enqueuePurge(ctx context.Context, id string) {
	if s.purger == nil {
		return
	}
	if err := s.purger.EnqueueVectorPurge(ctx, id); err != nil {
		slog.Error("failed to schedule vector purge retry", "document_id", id, "error", err)
	}
}

// DisplayFilename prefers the original upload name, falling back to the
// stored name without its uuid prefix.
func DisplayFilename(d models.Document) string {
	if name := d.Metadata[models.MetaOriginalFilename]; name != "" {
		return name
	}
	return StripIDPrefix(d.Filename)
}

// StripIDPrefix removes a leading "<36-char uuid>_" from name.
func StripIDPrefix(name string) string {
	prefix, rest, ok := strings.Cut(name, "_")
	if ok && len(prefix) == 36 {
		return rest
	}
	return name
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SecureFilename reduces name to a safe base name made of ASCII letters,
// digits, dots, dashes and underscores.
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeChars.ReplaceAllString(name, "")
	name = strings.Trim(name, "._")
	return name
}
