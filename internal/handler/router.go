package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhouzirui/moodmic/backend/internal/handler/chat"
	"github.com/zhouzirui/moodmic/backend/internal/handler/speech"
	"github.com/zhouzirui/moodmic/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/moodmic/backend/internal/middleware"
	chatService "github.com/zhouzirui/moodmic/backend/internal/service/chat"
	"github.com/zhouzirui/moodmic/backend/internal/service/pipeline"
	"github.com/zhouzirui/moodmic/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(store *chatService.Store, orchestrator *pipeline.Orchestrator, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"busy":   orchestrator.Busy(),
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	chatHandler := chat.New(store)
	speechHandler := speech.New(orchestrator)
	streamHandler := stream.New(store, orchestrator)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	return r
}
