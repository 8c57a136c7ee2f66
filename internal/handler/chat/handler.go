package chat

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/echosoul/backend/internal/core/errx"
	"github.com/echosoul/backend/internal/model/emotion"
	chatService "github.com/echosoul/backend/internal/service/chat"
	logx "github.com/echosoul/backend/pkg/logger"
	"github.com/echosoul/backend/pkg/utils"
)

// RecentConversationLimit caps the recent conversations listing.
const RecentConversationLimit = 10

// Handler 聊天服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Get("/chat/{chatID}/messages", h.handleMessages)
	r.Delete("/chat/{chatID}", h.handleDelete)
	r.Get("/chats", h.handleChats)
	r.Get("/conversations", h.handleRecentConversations)
	r.Get("/conversation_history", h.handleRecentConversations)
}

type chatRequest struct {
	Message   string `json:"message"`
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

type messageView struct {
	UserInput   string          `json:"user_input"`
	BotResponse string          `json:"bot_response"`
	Emotion     emotion.Emotion `json:"emotion"`
	Timestamp   time.Time       `json:"timestamp"`
}

type chatSummary struct {
	ID          string    `json:"id"`
	LastUpdated time.Time `json:"last_updated"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleChat 处理一轮对话
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.chatSvc.Process(r.Context(), chatService.TurnRequest{
		Message:        payload.Message,
		ConversationID: payload.ChatID,
		MessageID:      payload.MessageID,
	})
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}

// handleMessages 返回会话的全部消息
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.chatSvc.Messages(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	views := make([]messageView, len(messages))
	for i, m := range messages {
		views[i] = messageView{
			UserInput:   m.UserInput,
			BotResponse: m.BotResponse,
			Emotion:     m.Emotion,
			Timestamp:   m.Timestamp,
		}
	}
	utils.RespondJSON(w, http.StatusOK, views)
}

// handleDelete 删除会话及其消息
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.chatSvc.Delete(r.Context(), chi.URLParam(r, "chatID"))
	if err == nil {
		utils.RespondJSON(w, http.StatusOK, deleteResponse{Success: true, Message: "Chat deleted successfully"})
		return
	}

	status, message := errx.Resolve(err)
	if status >= http.StatusInternalServerError {
		logx.Error().Err(err).Msg("failed to delete chat")
	}
	utils.RespondJSON(w, status, deleteResponse{Success: false, Message: message})
}

// handleChats 按更新时间倒序列出全部会话
func (h *Handler) handleChats(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chatSvc.Conversations(r.Context(), 0)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}

	summaries := make([]chatSummary, len(convs))
	for i, c := range convs {
		summaries[i] = chatSummary{ID: c.ID, LastUpdated: c.LastUpdated}
	}
	utils.RespondJSON(w, http.StatusOK, summaries)
}

// handleRecentConversations 返回最近的会话摘要
func (h *Handler) handleRecentConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.chatSvc.Conversations(r.Context(), RecentConversationLimit)
	if err != nil {
		utils.RespondAppError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, convs)
}
