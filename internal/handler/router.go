package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/echosoul/backend/internal/handler/chat"
	"github.com/echosoul/backend/internal/handler/emotion"
	"github.com/echosoul/backend/internal/handler/recommendation"
	"github.com/echosoul/backend/internal/handler/ws"
	"github.com/echosoul/backend/internal/metrics"
	middlewarePkg "github.com/echosoul/backend/internal/middleware"
	chatService "github.com/echosoul/backend/internal/service/chat"
	"github.com/echosoul/backend/pkg/utils"
)

// Services 汇总路由需要的服务
type Services struct {
	Chat          *chatService.Service
	Recommender   recommendation.Recommender
	Metrics       *metrics.Metrics
	AllowedOrigin string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(svc.AllowedOrigin))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", svc.Metrics.Handler())
	}

	r.Route("/api", func(api chi.Router) {
		chat.New(svc.Chat).RegisterRoutes(api)
		emotion.New(svc.Chat).RegisterRoutes(api)
		ws.New(svc.Chat, svc.AllowedOrigin).RegisterRoutes(api)

		// 推荐模型未配置时返回 503
		if svc.Recommender != nil {
			recommendation.New(svc.Recommender, svc.Metrics).RegisterRoutes(api)
		} else {
			unavailable := func(w http.ResponseWriter, r *http.Request) {
				utils.RespondError(w, http.StatusServiceUnavailable, "recommendations unavailable")
			}
			api.Get("/recommendations/{chatID}", unavailable)
			api.Get("/process_chat/{chatID}", unavailable)
		}
	})

	return r
}
