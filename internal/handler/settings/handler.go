package settings

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	todoservice "github.com/JustFluffie/fluffie/backend/internal/service/todo"
	"github.com/JustFluffie/fluffie/backend/pkg/utils"
)

// ActivitySwitch 是主动消息全局开关的边界，由调度器实现。
type ActivitySwitch interface {
	Enabled() bool
	SetEnabled(v bool)
}

// Handler 全局设置与待办的HTTP处理器
type Handler struct {
	activity ActivitySwitch
	todos    *todoservice.Service
}

// New 创建设置处理器
func New(activity ActivitySwitch, todos *todoservice.Service) *Handler {
	return &Handler{activity: activity, todos: todos}
}

// RegisterRoutes 注册设置相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings/activity", h.handleGetActivity)
	r.Put("/settings/activity", h.handleSetActivity)
	r.Get("/todos", h.handleListTodos)
}

// handleGetActivity 返回主动消息全局开关状态
func (h *Handler) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"enabled": h.activity.Enabled()})
}

// handleSetActivity 设置主动消息全局开关
func (h *Handler) handleSetActivity(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Enabled == nil {
		utils.RespondError(w, http.StatusBadRequest, "enabled is required")
		return
	}

	h.activity.SetEnabled(*payload.Enabled)
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"enabled": *payload.Enabled})
}

// handleListTodos 返回角色登记的全部待办
func (h *Handler) handleListTodos(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.todos.List())
}
