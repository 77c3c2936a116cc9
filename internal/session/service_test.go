package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/models"
)

func newTestService(t *testing.T) (*Service, *FileStore) {
	t.Helper()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return NewService(store), store
}

func TestCreate_SeedsGreeting(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "")
	require.NoError(t, err)

	assert.Regexp(t, `^sess-[0-9a-f-]{36}$`, sess.ID)
	assert.Equal(t, models.AnonymousUserID, sess.UserID)
	assert.Equal(t, models.DefaultSessionName, sess.Name)
	require.Len(t, sess.Messages, 1)
	assert.Equal(t, models.RoleBot, sess.Messages[0].Role)
	assert.Equal(t, Greeting, sess.Messages[0].Content)

	loaded, ok, err := svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sess, loaded)
}

func TestGet_Unknown(t *testing.T) {
	svc, _ := newTestService(t)

	for _, id := range []string{"sess-00000000-0000-0000-0000-000000000000", "../etc/passwd", ""} {
		_, ok, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, ok, id)
	}
}

func TestAppendMessage_FirstUserMessageNamesSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "alice")
	require.NoError(t, err)

	sess, err = svc.AppendMessage(ctx, sess.ID, models.RoleUser, "  How do  I reset my password please?", nil)
	require.NoError(t, err)
	assert.Equal(t, "How do I reset", sess.Name)

	sources := []models.TextChunk{models.NewTextChunk("doc", 0, "Use the portal.")}
	sess, err = svc.AppendMessage(ctx, sess.ID, models.RoleBot, "Use the portal.", sources)
	require.NoError(t, err)

	sess, err = svc.AppendMessage(ctx, sess.ID, models.RoleUser, "Something else entirely now", nil)
	require.NoError(t, err)
	assert.Equal(t, "How do I reset", sess.Name)

	require.Len(t, sess.Messages, 4)
	roles := []string{sess.Messages[0].Role, sess.Messages[1].Role, sess.Messages[2].Role, sess.Messages[3].Role}
	assert.Equal(t, []string{models.RoleBot, models.RoleUser, models.RoleBot, models.RoleUser}, roles)
	assert.Equal(t, sources, sess.Messages[2].Sources)
	assert.NotNil(t, sess.Messages[3].Sources)
}

func TestAppendMessage_ShortAndBlankFirstMessages(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, "u")
	require.NoError(t, err)
	a, err = svc.AppendMessage(ctx, a.ID, models.RoleUser, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", a.Name)

	b, err := svc.Create(ctx, "u")
	require.NoError(t, err)
	b, err = svc.AppendMessage(ctx, b.ID, models.RoleUser, "   ", nil)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultSessionName, b.Name)
}

func TestAppendMessage_UnknownSession(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.AppendMessage(context.Background(), models.NewSessionID(), models.RoleUser, "x", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList_FiltersByUserNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	var created []string
	for i, user := range []string{"alice", "bob", "alice", "alice"} {
		at := base.Add(time.Duration(i) * time.Minute)
		svc.now = func() time.Time { return at }
		sess, err := svc.Create(ctx, user)
		require.NoError(t, err)
		if user == "alice" {
			created = append(created, sess.ID)
		}
	}

	summaries, err := svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, created[2], summaries[0].ID)
	assert.Equal(t, created[1], summaries[1].ID)
	assert.Equal(t, created[0], summaries[2].ID)
	assert.Equal(t, 1, summaries[0].MessageCount)

	none, err := svc.List(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestList_SkipsCorruptAndForeignFiles(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	good, err := svc.Create(ctx, models.AnonymousUserID)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(store.dir, models.NewSessionID()+".json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "notes.json"), []byte(`{"id":"x"}`), 0o644))

	summaries, err := svc.List(ctx, models.AnonymousUserID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, good.ID, summaries[0].ID)
}

func TestFileStore_UnwrapsSingleElementArray(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	id := models.NewSessionID()
	payload := `[{"id":"` + id + `","name":"Legacy","user_id":"anonymous","messages":[],"created_at":"2024-01-01T00:00:00"}]`
	require.NoError(t, os.WriteFile(store.path(id), []byte(payload), 0o644))

	sess, ok, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Legacy", sess.Name)

	other := models.NewSessionID()
	require.NoError(t, os.WriteFile(store.path(other), []byte(`[1, 2]`), 0o644))
	_, ok, err = svc.Get(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "u")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = svc.AppendMessage(ctx, sess.ID, models.RoleUser, "message", nil)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(store.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, sess.ID+".json", entries[0].Name())
}

func TestRename(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "u")
	require.NoError(t, err)

	renamed, err := svc.Rename(ctx, sess.ID, "  Budget questions ")
	require.NoError(t, err)
	assert.Equal(t, "Budget questions", renamed.Name)
	assert.Len(t, renamed.Messages, 1)

	_, err = svc.Rename(ctx, sess.ID, "   ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = svc.Rename(ctx, models.NewSessionID(), "x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Create(ctx, "u")
	require.NoError(t, err)

	ok, err := svc.Delete(ctx, sess.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Delete(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteMany_PartialSuccess(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	existing, err := svc.Create(ctx, "u")
	require.NoError(t, err)
	missing := models.NewSessionID()

	result := svc.DeleteMany(ctx, []string{existing.ID, missing})
	assert.Equal(t, []string{existing.ID}, result.Deleted)
	assert.Equal(t, []string{missing}, result.Failed)
	assert.Equal(t, models.BatchPartial, result.Status)

	result = svc.DeleteMany(ctx, []string{missing})
	assert.Equal(t, models.BatchFailure, result.Status)
	assert.Empty(t, result.Deleted)
}
