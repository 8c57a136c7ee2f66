package recommendation

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/echosoul/backend/internal/metrics"
	model "github.com/echosoul/backend/internal/model/recommendation"
	"github.com/echosoul/backend/internal/service/ai"
	"github.com/echosoul/backend/internal/store"
	"github.com/echosoul/backend/pkg/utils"
)

// Recommender produces recommendations for a conversation.
type Recommender interface {
	Recommend(ctx context.Context, conversationID string) (*model.Recommendation, error)
}

// Handler 推荐接口的HTTP处理器
type Handler struct {
	recommender Recommender
	metrics     *metrics.Metrics
}

// New 创建推荐处理器，m 可以为 nil
func New(recommender Recommender, m *metrics.Metrics) *Handler {
	return &Handler{recommender: recommender, metrics: m}
}

// RegisterRoutes 注册推荐相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/recommendations/{chatID}", h.handleRecommend)
	r.Get("/process_chat/{chatID}", h.handleRecommend)
}

func (h *Handler) handleRecommend(w http.ResponseWriter, r *http.Request) {
	rec, err := h.recommender.Recommend(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		h.metrics.ObserveRecommendation(resultLabel(err))
		utils.RespondAppError(w, err)
		return
	}

	h.metrics.ObserveRecommendation("ok")
	utils.RespondJSON(w, http.StatusOK, rec)
}

func resultLabel(err error) string {
	var parseErr *ai.ParseError
	switch {
	case errors.As(err, &parseErr):
		return "parse_error"
	case errors.Is(err, ai.ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, store.ErrConversationNotFound):
		return "not_found"
	default:
		return "store_error"
	}
}
