package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nikhilbhutani/docqa/internal/document"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

// ReindexEnqueuer schedules a background re-index of a stored document.
type ReindexEnqueuer interface {
	EnqueueDocumentReindex(ctx context.Context, documentID string) error
}

type DocumentHandler struct {
	svc      *document.Service
	maxBytes int64
	queue    ReindexEnqueuer
}

// NewDocumentHandler limits upload request bodies to maxBytes. Without a
// queue, re-indexing runs inside the request.
func NewDocumentHandler(svc *document.Service, maxBytes int64, queue ReindexEnqueuer) *DocumentHandler {
	return &DocumentHandler{svc: svc, maxBytes: maxBytes, queue: queue}
}

// Upload indexes every file of the multipart "document" field and reports
// per-file outcomes.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File["document"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no document part")
		return
	}

	files := make([]document.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read "+fh.Filename)
			return
		}
		files = append(files, document.File{
			Name:        fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	report := h.svc.UploadAll(r.Context(), files)
	writeBatch(w, report.Status, report)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	docs := h.svc.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "count": len(docs)})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.svc.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, document.Listing{Document: *doc, DisplayFilename: document.DisplayFilename(*doc)})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	deleted, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		slog.Error("delete document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not delete document")
		return
	}
	if !deleted {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"error":   "vectors could not be removed; the purge will be retried",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *DocumentHandler) DeleteMany(w http.ResponseWriter, r *http.Request) {
	var req idsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids required")
		return
	}
	res := h.svc.DeleteMany(r.Context(), req.IDs)
	writeBatch(w, res.Status, res)
}

// Reindex recomputes a document's vectors from its stored file.
func (h *DocumentHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.svc.Get(id); !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}

	if h.queue != nil {
		if err := h.queue.EnqueueDocumentReindex(r.Context(), id); err != nil {
			slog.Error("enqueue reindex failed", "document_id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "could not schedule reindex")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "document_id": id})
		return
	}

	n, err := h.svc.Reindex(r.Context(), id)
	if err != nil {
		slog.Error("reindex failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "could not reindex document")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"document_id": id, "chunks": n})
}
