package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nikhilbhutani/docqa/internal/models"
)

var (
	ErrNotFound    = errors.New("session not found")
	ErrInvalidName = errors.New("session name must not be empty")
)

const Greeting = "Hello! I'm your Enterprise Q&A Assistant. How can I help you today?"

// nameWords is how many words of the first user message name a session.
const nameWords = 4

// Store persists one record per session. Load returns ErrNotFound for
// unknown or unreadable sessions.
type Store interface {
	Load(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session) error
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, userID string) ([]*models.Session, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Create starts a session for userID seeded with the greeting.
func (s *Service) Create(ctx context.Context, userID string) (*models.Session, error) {
	if userID == "" {
		userID = models.AnonymousUserID
	}
	ts := models.Timestamp(s.now())
	sess := &models.Session{
		ID:     models.NewSessionID(),
		Name:   models.DefaultSessionName,
		UserID: userID,
		Messages: []models.Message{{
			Role:    models.RoleBot,
			Content: Greeting,
			Time:    ts,
			Sources: []models.TextChunk{},
		}},
		CreatedAt: ts,
	}
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}
	slog.Info("session created", "session_id", sess.ID, "user_id", userID)
	return sess, nil
}

// Get returns the session, or false when it does not exist.
func (s *Service) Get(ctx context.Context, id string) (*models.Session, bool, error) {
	sess, err := s.store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return sess, true, nil
}

func (s *Service) Save(ctx context.Context, sess *models.Session) error {
	return s.store.Save(ctx, sess)
}

// AppendMessage adds a message to the end of the session. The first user
// message names the session after its first four words.
func (s *Service) AppendMessage(ctx context.Context, id, role, content string, sources []models.TextChunk) (*models.Session, error) {
	sess, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []models.TextChunk{}
	}

	firstUserMessage := role == models.RoleUser && sess.UserMessageCount() == 0

	sess.Messages = append(sess.Messages, models.Message{
		Role:    role,
		Content: content,
		Time:    models.Timestamp(s.now()),
		Sources: sources,
	})
	if firstUserMessage {
		sess.Name = deriveName(content)
	}

	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", id, err)
	}
	return sess, nil
}

// List returns summaries of userID's sessions, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]models.SessionSummary, error) {
	if userID == "" {
		userID = models.AnonymousUserID
	}
	sessions, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt > sessions[j].CreatedAt
	})

	summaries := make([]models.SessionSummary, len(sessions))
	for i, sess := range sessions {
		summaries[i] = sess.Summary()
	}
	return summaries, nil
}

// Rename overwrites the session's display name.
func (s *Service) Rename(ctx context.Context, id, name string) (*models.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	sess, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Name = name
	if err := s.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session %s: %w", id, err)
	}
	return sess, nil
}

// Delete removes the session and reports whether it existed.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	if ok {
		slog.Info("session deleted", "session_id", id)
	}
	return ok, nil
}

// DeleteMany deletes each id independently and reports per-id outcomes.
func (s *Service) DeleteMany(ctx context.Context, ids []string) models.BatchResult {
	var deleted, failed []string
	for _, id := range ids {
		ok, err := s.Delete(ctx, id)
		if err != nil {
			slog.Error("batch session delete failed", "session_id", id, "error", err)
		}
		if ok {
			deleted = append(deleted, id)
		} else {
			failed = append(failed, id)
		}
	}
	return models.NewBatchResult(deleted, failed)
}

func deriveName(content string) string {
	words := strings.Fields(content)
	if len(words) == 0 {
		return models.DefaultSessionName
	}
	if len(words) > nameWords {
		words = words[:nameWords]
	}
	return strings.Join(words, " ")
}

// validID guards storage keys and file names against arbitrary input.
func validID(id string) bool {
	rest, ok := strings.CutPrefix(id, "sess-")
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
