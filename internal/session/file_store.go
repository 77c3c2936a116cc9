package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nikhilbhutani/docqa/internal/models"
)

// FileStore keeps each session in its own <id>.json file under dir.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

// Load reads a session file. A file holding a one-element array is
// unwrapped; any other unreadable payload counts as absent.
func (f *FileStore) Load(_ context.Context, id string) (*models.Session, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		slog.Warn("skipping unreadable session", "session_id", id, "error", err)
		return nil, ErrNotFound
	}
	return sess, nil
}

// Save writes to a temp file in the same directory and renames it over
// the old one, so readers never see a partial session.
func (f *FileStore) Save(_ context.Context, s *models.Session) error {
	if !validID(s.ID) {
		return fmt.Errorf("invalid session id %q", s.ID)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tmp, err := os.CreateTemp(f.dir, s.ID+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write session: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close session: %w", err)
	}
	if err := os.Rename(tmpName, f.path(s.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace session: %w", err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	err := os.Remove(f.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List reads every sess-*.json file and returns those owned by userID.
// Unreadable files are logged and skipped.
func (f *FileStore) List(ctx context.Context, userID string) ([]*models.Session, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sessions dir: %w", err)
	}

	var sessions []*models.Session
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "sess-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		sess, err := f.Load(ctx, strings.TrimSuffix(name, ".json"))
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				slog.Warn("skipping session file", "file", name, "error", err)
			}
			continue
		}
		if sess.UserID == userID {
			sessions = append(sessions, sess)
		}
	}
	return sessions, nil
}

func decodeSession(data []byte) (*models.Session, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var wrapped []json.RawMessage
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		if len(wrapped) != 1 {
			return nil, fmt.Errorf("session array holds %d elements", len(wrapped))
		}
		data = wrapped[0]
	}

	if !strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		return nil, errors.New("session payload is not an object")
	}
	var s models.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
