package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodmic/backend/internal/model/chat"
	chatService "github.com/zhouzirui/moodmic/backend/internal/service/chat"
	"github.com/zhouzirui/moodmic/backend/pkg/utils"
)

// Store 抽象会话存储，便于测试替换
type Store interface {
	StartNewChat() (chat.History, bool)
	SwitchToChat(id string) error
	Histories() []chat.History
	Active() []chat.Message
	CurrentChatID() string
	Snapshot() chat.Snapshot
}

// Handler 会话历史的HTTP处理器
type Handler struct {
	store Store
}

// New 创建会话处理器
func New(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chats", func(chats chi.Router) {
		chats.Get("/", h.handleList)
		chats.Get("/active", h.handleActive)
		chats.Post("/new", h.handleNew)
		chats.Post("/{chatID}/switch", h.handleSwitch)
	})
}

// handleList 返回完整快照
func (h *Handler) handleList(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *Handler) handleActive(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"currentChatId": h.store.CurrentChatID(),
		"messages":      h.store.Active(),
	})
}

// handleNew 保存未归档的对话并开启新对话
func (h *Handler) handleNew(w http.ResponseWriter, _ *http.Request) {
	saved, ok := h.store.StartNewChat()

	payload := map[string]any{"snapshot": h.store.Snapshot()}
	if ok {
		payload["saved"] = saved
	}
	utils.RespondJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleSwitch(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if chatID == "" {
		utils.RespondError(w, http.StatusBadRequest, "chatID is required")
		return
	}

	if err := h.store.SwitchToChat(chatID); err != nil {
		if errors.Is(err, chatService.ErrChatNotFound) {
			utils.RespondError(w, http.StatusNotFound, "chat not found")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"currentChatId": h.store.CurrentChatID(),
		"messages":      h.store.Active(),
	})
}
