package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser = "user"
	RoleBot  = "bot"
)

// AnonymousUserID owns sessions created without an authenticated user.
const AnonymousUserID = "anonymous"

const DefaultSessionName = "New Chat"

type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id"`
	Messages  []Message `json:"messages"`
	CreatedAt string    `json:"created_at"`
}

type Message struct {
	Role    string      `json:"role"`
	Content string      `json:"content"`
	Time    string      `json:"time"`
	Sources []TextChunk `json:"sources"`
}

type SessionSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	CreatedAt    string `json:"created_at"`
	MessageCount int    `json:"message_count"`
}

func NewSessionID() string {
	return fmt.Sprintf("sess-%s", uuid.NewString())
}

// TimeLayout is fixed-width so persisted timestamps sort lexically.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Timestamp formats t the way persisted records store times.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Name:         s.Name,
		CreatedAt:    s.CreatedAt,
		MessageCount: len(s.Messages),
	}
}

func (s *Session) UserMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
