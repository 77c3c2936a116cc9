package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/docqa/internal/app"
	"github.com/nikhilbhutani/docqa/internal/auth"
	"github.com/nikhilbhutani/docqa/internal/config"
	"github.com/nikhilbhutani/docqa/internal/document"
	"github.com/nikhilbhutani/docqa/internal/embedding"
	"github.com/nikhilbhutani/docqa/internal/identity"
	"github.com/nikhilbhutani/docqa/internal/llm"
	"github.com/nikhilbhutani/docqa/internal/models"
	"github.com/nikhilbhutani/docqa/internal/rag"
	"github.com/nikhilbhutani/docqa/internal/session"
	"github.com/nikhilbhutani/docqa/internal/storage"
	"github.com/nikhilbhutani/docqa/internal/vectorstore"
	"github.com/nikhilbhutani/docqa/pkg/chunker"
)

var vocabulary = []string{"holiday", "invoice", "security", "pricing"}

// keywordProvider embeds text as keyword counts and answers with a fixed
// string.
type keywordProvider struct{}

func (keywordProvider) Name() string { return "fake" }

func (keywordProvider) ChatCompletion(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Provider: "fake", Model: req.Model, Content: "Employees get 25 holiday days."}, nil
}

func (keywordProvider) GenerateEmbedding(_ context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	out := make([][]float32, len(req.Input))
	for i, text := range req.Input {
		vec := make([]float32, len(vocabulary))
		lower := strings.ToLower(text)
		for j, w := range vocabulary {
			vec[j] = float32(strings.Count(lower, w))
		}
		out[i] = vec
	}
	return &llm.EmbeddingResponse{Provider: "fake", Embeddings: out}, nil
}

const secret = "test-secret"

func newTestApp(t *testing.T, jwtSecret string) *app.App {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{
		Auth:   config.AuthConfig{JWTSecret: jwtSecret},
		Upload: config.UploadConfig{MaxContentLength: 1 << 20, AllowedExtensions: []string{"txt"}},
	}

	gw := llm.NewGatewayWithProviders("fake", "fake", 0, keywordProvider{})
	embedder := embedding.NewService(gw, "fake-embed", len(vocabulary))
	index := vectorstore.NewMemoryStore(len(vocabulary))

	pipeline, err := rag.NewPipeline(index, embedder, gw, rag.Options{
		Chunking: chunker.ChunkOptions{ChunkSize: 200, ChunkOverlap: 20},
		TopK:     rag.DefaultTopK,
		MinScore: rag.DefaultMinScore,
	})
	require.NoError(t, err)

	sessions, err := session.NewFileStore(filepath.Join(dir, "sessions"))
	require.NoError(t, err)
	blobs, err := storage.NewLocalStorage(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	registry, err := document.OpenRegistry(filepath.Join(dir, "data"))
	require.NoError(t, err)

	return &app.App{
		Config:    cfg,
		Gateway:   gw,
		Embedder:  embedder,
		Index:     index,
		Pipeline:  pipeline,
		Sessions:  session.NewService(sessions),
		Documents: document.NewService(blobs, registry, pipeline, index, document.Options{AllowedExtensions: cfg.Upload.AllowedExtensions}),
	}
}

func newServer(t *testing.T, jwtSecret string) *httptest.Server {
	t.Helper()
	rt := NewRouter(newTestApp(t, jwtSecret))
	srv := httptest.NewServer(rt.Setup())
	t.Cleanup(func() {
		srv.Close()
		rt.Close()
	})
	return srv
}

func token(t *testing.T, subject, role string) string {
	t.Helper()
	tok, err := auth.NewJWTMiddleware(secret).Issue(subject, role, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, srv *httptest.Server, method, path, tok string, body interface{}) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func upload(t *testing.T, srv *httptest.Server, tok string, files map[string]string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("document", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type queryResult struct {
	Content    string             `json:"content"`
	Sources    []models.TextChunk `json:"sources"`
	Confidence float64            `json:"confidence"`
	SessionID  string             `json:"session_id"`
}

func TestHealth(t *testing.T) {
	srv := newServer(t, "")

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "", nil).StatusCode)

	resp := do(t, srv, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestQuery_EmptyIndexGivesNoInformation(t *testing.T) {
	srv := newServer(t, "")

	resp := do(t, srv, http.MethodPost, "/api/query", "", map[string]string{"query": "holiday policy?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got queryResult
	decode(t, resp, &got)
	assert.Equal(t, rag.NoInfoAnswer, got.Content)
	assert.Empty(t, got.Sources)
	assert.Zero(t, got.Confidence)
	assert.True(t, strings.HasPrefix(got.SessionID, "sess-"))
}

func TestQuery_Validation(t *testing.T) {
	srv := newServer(t, "")

	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/api/query", "", map[string]string{"query": "  "}).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/query", "",
		map[string]string{"query": "holiday?", "session_id": "sess-00000000-0000-0000-0000-000000000000"}).StatusCode)
}

func TestUploadThenQueryRecordsTurn(t *testing.T) {
	srv := newServer(t, "")

	resp := upload(t, srv, "", map[string]string{"handbook.txt": "Every employee receives holiday allowance each year."})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var report document.UploadReport
	decode(t, resp, &report)
	require.Len(t, report.Results, 1)
	docID := report.Results[0].DocumentID
	assert.True(t, strings.HasSuffix(docID, "_handbook.txt"))

	resp = do(t, srv, http.MethodPost, "/api/query", "", map[string]string{"query": "How many holiday days do I get?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got queryResult
	decode(t, resp, &got)
	assert.Equal(t, "Employees get 25 holiday days.", got.Content)
	assert.InDelta(t, 0.8, got.Confidence, 1e-9)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, docID, got.Sources[0].DocumentID)
	assert.Equal(t, 0, got.Sources[0].Position)

	resp = do(t, srv, http.MethodGet, "/api/sessions/"+got.SessionID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var sess models.Session
	decode(t, resp, &sess)
	require.Len(t, sess.Messages, 3)
	assert.Equal(t, session.Greeting, sess.Messages[0].Content)
	assert.Equal(t, models.RoleUser, sess.Messages[1].Role)
	assert.Equal(t, models.RoleBot, sess.Messages[2].Role)
	assert.Len(t, sess.Messages[2].Sources, 1)
	assert.Equal(t, "How many holiday days", sess.Name)

	// A second question in the same session keeps its name.
	resp = do(t, srv, http.MethodPost, "/api/query", "", map[string]string{"query": "Pricing details?", "session_id": got.SessionID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, srv, http.MethodGet, "/api/sessions/"+got.SessionID, "", nil)
	decode(t, resp, &sess)
	assert.Len(t, sess.Messages, 5)
	assert.Equal(t, "How many holiday days", sess.Name)
}

func TestUpload_PartialAndRejected(t *testing.T) {
	srv := newServer(t, "")

	resp := upload(t, srv, "", map[string]string{"ok.txt": "security notes", "bad.exe": "MZ"})
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	var report document.UploadReport
	decode(t, resp, &report)
	assert.Equal(t, models.BatchPartial, report.Status)

	resp = upload(t, srv, "", map[string]string{"bad.exe": "MZ"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = upload(t, srv, "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDocuments_ListDeleteAndBatch(t *testing.T) {
	srv := newServer(t, "")

	resp := upload(t, srv, "", map[string]string{"a.txt": "invoice terms", "b.txt": "pricing sheet"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/documents", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Documents []document.Listing `json:"documents"`
		Count     int                `json:"count"`
	}
	decode(t, resp, &listing)
	require.Equal(t, 2, listing.Count)
	names := []string{listing.Documents[0].DisplayFilename, listing.Documents[1].DisplayFilename}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)

	first, second := listing.Documents[0].ID, listing.Documents[1].ID

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/api/document/"+first, "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/document/"+first, "", nil).StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/documents/delete", "", map[string][]string{"ids": {second, "missing"}})
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	var res models.BatchResult
	decode(t, resp, &res)
	assert.Equal(t, []string{second}, res.Deleted)
	assert.Equal(t, []string{"missing"}, res.Failed)

	// Deleted documents no longer back answers.
	resp = do(t, srv, http.MethodPost, "/api/query", "", map[string]string{"query": "pricing"})
	var got queryResult
	decode(t, resp, &got)
	assert.Equal(t, rag.NoInfoAnswer, got.Content)
}

func TestDocuments_ReindexInline(t *testing.T) {
	srv := newServer(t, "")

	resp := upload(t, srv, "", map[string]string{"a.txt": "holiday calendar"})
	var report document.UploadReport
	decode(t, resp, &report)
	id := report.Results[0].DocumentID

	resp = do(t, srv, http.MethodPost, "/api/document/"+id+"/reindex", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Chunks int `json:"chunks"`
	}
	decode(t, resp, &body)
	assert.Equal(t, 1, body.Chunks)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodPost, "/api/document/nope/reindex", "", nil).StatusCode)
}

func TestSessions_Lifecycle(t *testing.T) {
	srv := newServer(t, "")

	resp := do(t, srv, http.MethodPost, "/api/sessions", "", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var a models.Session
	decode(t, resp, &a)
	assert.Equal(t, models.DefaultSessionName, a.Name)
	assert.Equal(t, models.AnonymousUserID, a.UserID)

	resp = do(t, srv, http.MethodPost, "/api/sessions", "", nil)
	var b models.Session
	decode(t, resp, &b)

	resp = do(t, srv, http.MethodPost, "/api/sessions/"+a.ID+"/rename", "", map[string]string{"name": "Budget"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		do(t, srv, http.MethodPost, "/api/sessions/"+a.ID+"/rename", "", map[string]string{"name": " "}).StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/sessions", "", nil)
	var list struct {
		Sessions []models.SessionSummary `json:"sessions"`
	}
	decode(t, resp, &list)
	require.Len(t, list.Sessions, 2)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodDelete, "/api/sessions/"+a.ID, "", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/api/sessions/"+a.ID, "", nil).StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/sessions/delete", "", map[string][]string{"ids": {b.ID, a.ID}})
	assert.Equal(t, http.StatusMultiStatus, resp.StatusCode)

	resp = do(t, srv, http.MethodPost, "/api/sessions/delete", "", map[string][]string{"ids": {a.ID}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var res models.BatchResult
	decode(t, resp, &res)
	assert.Equal(t, models.BatchFailure, res.Status)
}

func TestAuth_AdminRoutesAndOwnership(t *testing.T) {
	srv := newServer(t, secret)
	alice := token(t, "alice", "user")
	bob := token(t, "bob", "user")
	admin := token(t, "root", identity.RoleAdmin)

	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/documents", "", nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, do(t, srv, http.MethodGet, "/api/documents", alice, nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/documents", admin, nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, do(t, srv, http.MethodGet, "/api/sessions", "garbage", nil).StatusCode)

	resp := do(t, srv, http.MethodPost, "/api/sessions", alice, nil)
	var sess models.Session
	decode(t, resp, &sess)
	assert.Equal(t, "alice", sess.UserID)

	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/sessions/"+sess.ID, alice, nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/sessions/"+sess.ID, bob, nil).StatusCode)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/sessions/"+sess.ID, admin, nil).StatusCode)

	resp = do(t, srv, http.MethodGet, "/api/sessions", bob, nil)
	var list struct {
		Sessions []models.SessionSummary `json:"sessions"`
	}
	decode(t, resp, &list)
	assert.Empty(t, list.Sessions)

	resp = do(t, srv, http.MethodPost, "/api/sessions/delete", bob, map[string][]string{"ids": {sess.ID}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/api/sessions/"+sess.ID, alice, nil).StatusCode)
}
