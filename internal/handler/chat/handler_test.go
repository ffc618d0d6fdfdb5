package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/finbot/backend/internal/model/chat"
	"github.com/zhouzirui/finbot/backend/internal/model/persona"
	"github.com/zhouzirui/finbot/backend/internal/service/ai"
	"github.com/zhouzirui/finbot/backend/internal/service/ai/aitest"
	chatservice "github.com/zhouzirui/finbot/backend/internal/service/chat"
)

func setupRouter(scripts ...aitest.Script) (*chi.Mux, *chatservice.Service) {
	factory := ai.NewServiceWithBackend(aitest.NewBackend(scripts...), ai.Sampling{Temperature: 0.7, TopP: 0.9}, nil)
	chatSvc := chatservice.NewService(persona.NewMemoryStore(persona.Seed()), factory, chatservice.Options{})

	r := chi.NewRouter()
	New(chatSvc, nil).RegisterRoutes(r)
	return r, chatSvc
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler, personaID string) chat.Session {
	t.Helper()
	resp := do(t, r, http.MethodPost, "/session", map[string]string{"personaId": personaID})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	var session chat.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	return session
}

func TestCreateSessionValidPersona(t *testing.T) {
	r, _ := setupRouter()
	session := createSession(t, r, persona.StudentID)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, persona.StudentID, session.PersonaID)
}

func TestCreateSessionInvalidPersona(t *testing.T) {
	r, _ := setupRouter()

	resp := do(t, r, http.MethodPost, "/session", map[string]string{"personaId": "non-existent"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, r, http.MethodPost, "/session", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	req := httptest.NewRequest(http.MethodPost, "/session", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSessionUnconfigured(t *testing.T) {
	var unconfigured *ai.Service
	chatSvc := chatservice.NewService(persona.NewMemoryStore(persona.Seed()), unconfigured, chatservice.Options{})
	r := chi.NewRouter()
	New(chatSvc, nil).RegisterRoutes(r)

	resp := do(t, r, http.MethodPost, "/session", map[string]string{"personaId": persona.StudentID})
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestGetSessionAndTranscript(t *testing.T) {
	r, _ := setupRouter()
	session := createSession(t, r, persona.ProfessionalID)

	resp := do(t, r, http.MethodGet, "/session/"+session.ID, nil)
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, r, http.MethodGet, "/session/"+session.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var transcript TranscriptResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&transcript))
	assert.False(t, transcript.Busy)
	require.Len(t, transcript.Messages, 1)
	assert.Equal(t, persona.Seed()[1].OpeningLine, transcript.Messages[0].Text)

	resp = do(t, r, http.MethodGet, "/session/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	resp = do(t, r, http.MethodGet, "/session/missing/messages", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestTurnEndpoint(t *testing.T) {
	r, _ := setupRouter(
		aitest.Text("Hello", " world"),
		aitest.Script{Fragments: []ai.Fragment{{Text: "Partial"}}, Err: errors.New("reset")},
	)
	session := createSession(t, r, persona.StudentID)

	resp := do(t, r, http.MethodPost, "/session/"+session.ID+"/turn", map[string]any{"text": "hi"})
	require.Equal(t, http.StatusOK, resp.Code)
	var ok TurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ok))
	assert.Equal(t, "Hello world", ok.Message.Text)
	assert.Empty(t, ok.Error)

	resp = do(t, r, http.MethodPost, "/session/"+session.ID+"/turn", map[string]any{"text": "again", "webSearch": true})
	require.Equal(t, http.StatusBadGateway, resp.Code)
	var failed TurnResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	assert.Equal(t, chatservice.ApologyText, failed.Message.Text)
	assert.Equal(t, chat.StateFailed, failed.Message.State)

	resp = do(t, r, http.MethodPost, "/session/"+session.ID+"/turn", map[string]any{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestSwitchPersonaEndpoint(t *testing.T) {
	r, chatSvc := setupRouter(aitest.Text("answer"))
	session := createSession(t, r, persona.StudentID)

	resp := do(t, r, http.MethodPost, "/session/"+session.ID+"/turn", map[string]any{"text": "hi"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, r, http.MethodPut, "/session/"+session.ID+"/persona", map[string]string{"personaId": persona.ProfessionalID})
	require.Equal(t, http.StatusOK, resp.Code)
	var switched chat.Session
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&switched))
	assert.Equal(t, persona.ProfessionalID, switched.PersonaID)

	transcript, err := chatSvc.LoadTranscript(t.Context(), session.ID)
	require.NoError(t, err)
	assert.Len(t, transcript, 1)

	resp = do(t, r, http.MethodPut, "/session/"+session.ID+"/persona", map[string]string{"personaId": "pirate"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCloseSessionEndpoint(t *testing.T) {
	r, _ := setupRouter()
	session := createSession(t, r, persona.StudentID)

	resp := do(t, r, http.MethodDelete, "/session/"+session.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)

	resp = do(t, r, http.MethodDelete, "/session/"+session.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestArchiveEndpoint(t *testing.T) {
	r, _ := setupRouter(aitest.Text("Pay yourself first."))
	session := createSession(t, r, persona.StudentID)

	resp := do(t, r, http.MethodPost, "/session/"+session.ID+"/turn", map[string]any{"text": "tips?"})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, r, http.MethodGet, "/session/"+session.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var archived TranscriptResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&archived))
	assert.Equal(t, session.ID, archived.SessionID)
	require.Len(t, archived.Messages, 3)
	assert.Equal(t, "Pay yourself first.", archived.Messages[2].Text)

	resp = do(t, r, http.MethodGet, "/session/missing/archive", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
