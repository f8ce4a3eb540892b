package chat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/moodmic/backend/internal/service/chat"
)

func setupRouter() (*chi.Mux, *chatservice.Store) {
	store := chatservice.NewStore()
	handler := New(store)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func serve(r http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestListReturnsSnapshot(t *testing.T) {
	r, store := setupRouter()
	store.AppendMessage(chat.AnalysisResult{Transcription: "hello", Emotion: "happy", GeminiResponse: "hi"})

	resp := serve(r, http.MethodGet, "/chats/")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var snap chat.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(snap.Histories) != 1 || len(snap.Active) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Active[0].Response != "hi" {
		t.Fatalf("gemini_response not carried: %+v", snap.Active[0])
	}
}

func TestNewChatClearsActive(t *testing.T) {
	r, store := setupRouter()
	store.AppendMessage(chat.AnalysisResult{Transcription: "hello", Emotion: "happy", GeminiResponse: "hi"})

	resp := serve(r, http.MethodPost, "/chats/new")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(store.Active()) != 0 || store.CurrentChatID() != "" {
		t.Fatal("expected an empty active conversation")
	}
}

func TestSwitchChat(t *testing.T) {
	r, store := setupRouter()
	store.AppendMessage(chat.AnalysisResult{Transcription: "first", Emotion: "calm", GeminiResponse: "ok"})
	id := store.CurrentChatID()
	store.StartNewChat()

	resp := serve(r, http.MethodPost, "/chats/"+id+"/switch")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if store.CurrentChatID() != id {
		t.Fatalf("expected current chat %s, got %s", id, store.CurrentChatID())
	}
}

func TestSwitchChatNotFound(t *testing.T) {
	r, _ := setupRouter()

	resp := serve(r, http.MethodPost, "/chats/missing/switch")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
