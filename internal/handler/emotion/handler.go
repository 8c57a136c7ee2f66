package emotion

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echosoul/backend/internal/emotionlog"
	"github.com/echosoul/backend/pkg/utils"
)

// Source exposes the rolling emotion log.
type Source interface {
	RecentEmotions() []emotionlog.Entry
}

// Handler 情绪日志的HTTP处理器
type Handler struct {
	source Source
}

// New 创建情绪日志处理器
func New(source Source) *Handler {
	return &Handler{source: source}
}

// RegisterRoutes 注册情绪相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/emotions/recent", h.handleRecent)
}

func (h *Handler) handleRecent(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.source.RecentEmotions())
}
