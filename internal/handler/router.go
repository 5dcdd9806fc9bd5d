package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	agentHandler "github.com/JustFluffie/fluffie/backend/internal/handler/agent"
	chatHandler "github.com/JustFluffie/fluffie/backend/internal/handler/chat"
	momentsHandler "github.com/JustFluffie/fluffie/backend/internal/handler/moments"
	settingsHandler "github.com/JustFluffie/fluffie/backend/internal/handler/settings"
	"github.com/JustFluffie/fluffie/backend/internal/handler/ws"
	middlewarePkg "github.com/JustFluffie/fluffie/backend/internal/middleware"
	momentsmodel "github.com/JustFluffie/fluffie/backend/internal/model/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/reaction"
)

// Deps 聚合路由层需要的全部依赖。
type Deps struct {
	Agents   *agentHandler.Handler
	Chats    *chatHandler.Handler
	Moments  *momentsHandler.Handler
	Settings *settingsHandler.Handler
	Hub      *ws.Hub
}

// NewRouter 把HTTP路由接到核心服务上。
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Route("/api", func(api chi.Router) {
		deps.Agents.RegisterRoutes(api)
		deps.Chats.RegisterRoutes(api)
		deps.Moments.RegisterRoutes(api)
		deps.Settings.RegisterRoutes(api)
		deps.Hub.RegisterRoutes(api)
	})

	return r
}

// PublishHook 返回用户发帖后的围观回调，reactions 为 nil 时返回 nil。
func PublishHook(reactions *reaction.Engine) func(post momentsmodel.Post) {
	if reactions == nil {
		return nil
	}
	return func(post momentsmodel.Post) {
		reactions.OnPostPublished(context.Background(), post)
	}
}
