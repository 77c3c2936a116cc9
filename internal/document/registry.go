package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nikhilbhutani/docqa/internal/models"
)

const registryFile = "document_metadata.json"

// Record is the persisted metadata of one uploaded document.
type Record struct {
	Filename  string            `json:"filename"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt string            `json:"created_at"`
}

// Registry is the document metadata file, keyed by document id. The whole
// file is rewritten after every change, and re-read whenever another
// process has replaced it.
type Registry struct {
	mu      sync.Mutex
	path    string
	docs    map[string]Record
	modTime time.Time
}

// OpenRegistry loads dir/document_metadata.json. A missing file starts an
// empty registry; a corrupt one is logged and ignored.
func OpenRegistry(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create metadata dir: %w", err)
	}
	r := &Registry{path: filepath.Join(dir, registryFile), docs: make(map[string]Record)}
	if err := r.refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// refresh must be called with mu held.
func (r *Registry) refresh() error {
	info, err := os.Stat(r.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat document metadata: %w", err)
	}
	if info.ModTime().Equal(r.modTime) {
		return nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read document metadata: %w", err)
	}
	docs := make(map[string]Record)
	if err := json.Unmarshal(data, &docs); err != nil {
		slog.Error("ignoring corrupt document metadata", "path", r.path, "error", err)
		docs = make(map[string]Record)
	}
	r.docs = docs
	r.modTime = info.ModTime()
	return nil
}

func (r *Registry) sync() {
	if err := r.refresh(); err != nil {
		slog.Warn("document metadata refresh failed", "path", r.path, "error", err)
	}
}

func (r *Registry) Get(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sync()
	rec, ok := r.docs[id]
	return rec, ok
}

func (r *Registry) Put(id string, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sync()
	prev, existed := r.docs[id]
	r.docs[id] = rec
	if err := r.save(); err != nil {
		if existed {
			r.docs[id] = prev
		} else {
			delete(r.docs, id)
		}
		return err
	}
	return nil
}

// Remove deletes a record and reports whether it existed.
func (r *Registry) Remove(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sync()
	rec, ok := r.docs[id]
	if !ok {
		return false, nil
	}
	delete(r.docs, id)
	if err := r.save(); err != nil {
		r.docs[id] = rec
		return false, err
	}
	return true, nil
}

// Documents returns every record as a Document, oldest first.
func (r *Registry) Documents() []models.Document {
	r.mu.Lock()
	r.sync()
	docs := make([]models.Document, 0, len(r.docs))
	for id, rec := range r.docs {
		docs = append(docs, models.Document{
			ID:        id,
			Filename:  rec.Filename,
			Metadata:  rec.Metadata,
			CreatedAt: rec.CreatedAt,
		})
	}
	r.mu.Unlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt != docs[j].CreatedAt {
			return docs[i].CreatedAt < docs[j].CreatedAt
		}
		return docs[i].ID < docs[j].ID
	})
	return docs
}

// save must be called with mu held.
func (r *Registry) save() error {
	data, err := json.MarshalIndent(r.docs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal document metadata: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write document metadata: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace document metadata: %w", err)
	}
	if info, err := os.Stat(r.path); err == nil {
		r.modTime = info.ModTime()
	}
	return nil
}
