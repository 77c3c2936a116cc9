package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/docqa/internal/models"
)

// RedisStore keeps each session under its own key and indexes ids per user
// in a set. With a positive ttl every save refreshes the expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// errUnreadable is reported for records that exist but cannot be decoded.
// Callers outside the store see it as ErrNotFound.
var errUnreadable = fmt.Errorf("%w: unreadable record", ErrNotFound)

func sessionKey(id string) string     { return "session:" + id }
func userIndexKey(user string) string { return "sessions:user:" + user }

func (r *RedisStore) Load(ctx context.Context, id string) (*models.Session, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	sess, err := decodeSession(data)
	if err != nil {
		slog.Warn("skipping unreadable session", "session_id", id, "error", err)
		return nil, errUnreadable
	}
	return sess, nil
}

// Save writes the record and its user index entry in one transaction.
func (r *RedisStore) Save(ctx context.Context, s *models.Session) error {
	if !validID(s.ID) {
		return fmt.Errorf("invalid session id %q", s.ID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(s.ID), data, r.ttl)
		pipe.SAdd(ctx, userIndexKey(s.UserID), s.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

// Delete removes the session and its index entry. An unreadable record is
// removed too; its owner is unknown, so its index entry is left for List to
// prune.
func (r *RedisStore) Delete(ctx context.Context, id string) (bool, error) {
	sess, err := r.Load(ctx, id)
	if errors.Is(err, errUnreadable) {
		n, err := r.client.Del(ctx, sessionKey(id)).Result()
		if err != nil {
			return false, fmt.Errorf("delete session %s: %w", id, err)
		}
		return n > 0, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var del *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, sessionKey(id))
		pipe.SRem(ctx, userIndexKey(sess.UserID), id)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete session %s: %w", id, err)
	}
	return del.Val() > 0, nil
}

// List loads every session in the user's index. Ids whose key has expired
// or holds an unreadable record are pruned, together with the record.
func (r *RedisStore) List(ctx context.Context, userID string) ([]*models.Session, error) {
	ids, err := r.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}

	var (
		sessions []*models.Session
		stale    []any
	)
	for _, id := range ids {
		sess, err := r.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if sess.UserID == userID {
			sessions = append(sessions, sess)
		}
	}

	if len(stale) > 0 {
		keys := make([]string, len(stale))
		for i, id := range stale {
			keys[i] = sessionKey(id.(string))
		}
		_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, userIndexKey(userID), stale...)
			pipe.Del(ctx, keys...)
			return nil
		})
		if err != nil {
			slog.Warn("failed to prune session index", "user_id", userID, "error", err)
		}
	}
	return sessions, nil
}
