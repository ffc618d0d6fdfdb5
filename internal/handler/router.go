package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/finbot/backend/internal/handler/chat"
	"github.com/zhouzirui/finbot/backend/internal/handler/persona"
	"github.com/zhouzirui/finbot/backend/internal/handler/stream"
	"github.com/zhouzirui/finbot/backend/internal/handler/ws"
	"github.com/zhouzirui/finbot/backend/internal/logging"
	middlewarePkg "github.com/zhouzirui/finbot/backend/internal/middleware"
	personaModel "github.com/zhouzirui/finbot/backend/internal/model/persona"
	chatService "github.com/zhouzirui/finbot/backend/internal/service/chat"
	"github.com/zhouzirui/finbot/backend/internal/store"
	"github.com/zhouzirui/finbot/backend/pkg/utils"
)

// Deps carries what the router wires into handlers.
type Deps struct {
	Personas       personaModel.Store
	Chat           *chatService.Service
	Archive        store.Repository
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	logger := logging.OrNop(deps.Logger)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Archive != nil {
			if err := deps.Archive.Ping(r.Context()); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				utils.RespondError(w, http.StatusServiceUnavailable, "archive unavailable")
				return
			}
		}
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		persona.New(deps.Personas).RegisterRoutes(api)
		chat.New(deps.Chat, logger).RegisterRoutes(api)
		stream.New(deps.Chat, deps.Personas, logger).RegisterRoutes(api)
		ws.New(deps.Chat, deps.AllowedOrigins, logger).RegisterRoutes(api)
	})

	return r
}
