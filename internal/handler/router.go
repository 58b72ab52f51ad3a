package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	agentHandler "github.com/zhouzirui/voice-relay/internal/handler/agent"
	middlewarePkg "github.com/zhouzirui/voice-relay/internal/middleware"
	agentService "github.com/zhouzirui/voice-relay/internal/service/agent"
	"github.com/zhouzirui/voice-relay/pkg/utils"
)

// NewRouter wires HTTP routes to the agent pipeline.
func NewRouter(agentSvc *agentService.Service, staticDir string, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Handle("/metrics", promhttp.Handler())

	// Synthesized replies and fallback tones are served from here.
	fileServer := http.FileServer(http.Dir(staticDir))
	r.Handle("/static/*", http.StripPrefix("/static/", fileServer))

	h := agentHandler.New(agentSvc, log)
	h.RegisterRoutes(r)

	ws := agentHandler.NewWebSocketHandler(agentSvc, log)
	ws.RegisterRoutes(r)

	return r
}
