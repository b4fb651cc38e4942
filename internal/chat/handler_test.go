package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/health-chat-api/internal/conversation"
	"github.com/wolfman30/health-chat-api/pkg/logging"
)

type stubService struct {
	req     Request
	result  Result
	err     error
	history []HistoryEntry
	histErr error
}

func (s *stubService) Handle(_ context.Context, req Request) (Result, error) {
	s.req = req
	return s.result, s.err
}

func (s *stubService) History(context.Context, int64) ([]HistoryEntry, error) {
	return s.history, s.histErr
}

func newTestRouter(svc Service) http.Handler {
	h := NewHandler(svc, logging.Discard())
	r := chi.NewRouter()
	r.Post("/chat", h.Chat)
	r.Get("/conversations/{id}/history", h.History)
	return r
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHandler_Chat(t *testing.T) {
	id := int64(7)
	svc := &stubService{result: Result{
		ConversationID: &id,
		RiskLevel:      "ROUTINE",
		FinalMarkdown:  "## Summary\n\n- hi",
		Reply:          "reply",
	}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"  sore throat  ","conversation_id":7}`))
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "sore throat", svc.req.Message)
	require.NotNil(t, svc.req.ConversationID)
	assert.Equal(t, int64(7), *svc.req.ConversationID)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(7), body["conversation_id"])
	assert.Equal(t, "ROUTINE", body["risk_level"])
	assert.Equal(t, false, body["degraded"])
	assert.NotContains(t, body, "follow_up_questions")
}

func TestHandler_ChatNullConversationID(t *testing.T) {
	svc := &stubService{result: Result{RiskLevel: "EMERGENCY", FinalMarkdown: "md"}}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"chest pain"}`))
	newTestRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "conversation_id")
	assert.Nil(t, body["conversation_id"])
	assert.Nil(t, svc.req.ConversationID)
}

func TestHandler_ChatBadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"malformed json", `{"message":`, "invalid request body"},
		{"missing message", `{}`, "message is required"},
		{"blank message", `{"message":"   "}`, "message is required"},
		{"too long", `{"message":"` + strings.Repeat("a", 4001) + `"}`, "message is too long"},
		{"bad conversation id", `{"message":"hi","conversation_id":0}`, "conversation_id is invalid"},
		{"string conversation id", `{"message":"hi","conversation_id":"abc"}`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{}
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			newTestRouter(svc).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantMsg, decodeError(t, rec))
		})
	}
}

func TestHandler_ChatServiceErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", ErrValidation, http.StatusBadRequest},
		{"not found", ErrConversationNotFound, http.StatusNotFound},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi","conversation_id":99}`))
			newTestRouter(&stubService{err: tt.err}).ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.NotEmpty(t, decodeError(t, rec))
		})
	}
}

func TestHandler_History(t *testing.T) {
	svc := &stubService{history: []HistoryEntry{
		{Role: conversation.RoleUser, Content: "runny nose"},
		{Role: conversation.RoleAssistant, Content: "## Summary\n\n- colds are common"},
	}}
	rec := httptest.NewRecorder()
	newTestRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/3/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []HistoryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, conversation.RoleAssistant, entries[1].Role)
}

func TestHandler_HistoryErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&stubService{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/abc/history", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(&stubService{histErr: ErrConversationNotFound}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/5/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	newTestRouter(&stubService{histErr: errors.New("db down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conversations/5/history", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_EndToEndWithOrchestrator(t *testing.T) {
	o := newTestOrchestrator(conversation.NewMemoryStore(), &stubGenerator{draft: coldDraft()}, Options{})
	router := newTestRouter(o)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"I have a runny nose"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		ConversationID *int64 `json:"conversation_id"`
		FinalMarkdown  string `json:"final_markdown"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.ConversationID)
	assert.Contains(t, res.FinalMarkdown, "## Disclaimer")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"message":"hi","conversation_id":4242}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
