package agent

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JustFluffie/fluffie/backend/internal/config"
	agentmodel "github.com/JustFluffie/fluffie/backend/internal/model/agent"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
	"github.com/JustFluffie/fluffie/backend/pkg/utils"
)

// Handler 角色管理的HTTP处理器
type Handler struct {
	agents  *agentmodel.Store
	chats   *chatservice.Service
	moments *momentsservice.Service
	cfg     config.SchedulerConfig
}

// New 创建角色处理器
func New(agents *agentmodel.Store, chats *chatservice.Service, momentsSvc *momentsservice.Service, cfg config.SchedulerConfig) *Handler {
	return &Handler{agents: agents, chats: chats, moments: momentsSvc, cfg: cfg}
}

// RegisterRoutes 注册角色相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents", h.handleList)
	r.Post("/agents", h.handleCreate)
	r.Get("/agents/{agentID}", h.handleGet)
	r.Put("/agents/{agentID}", h.handleUpdate)
	r.Delete("/agents/{agentID}", h.handleDelete)
}

type listItem struct {
	agentmodel.Agent
	UnreadCount int `json:"unreadCount"`
}

// handleList 列出全部角色及会话未读数
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	agents := h.agents.List()
	items := make([]listItem, 0, len(agents))
	for _, a := range agents {
		items = append(items, listItem{Agent: a, UnreadCount: h.chats.Unread(a.ID)})
	}
	utils.RespondJSON(w, http.StatusOK, items)
}

// handleGet 返回单个角色
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	a, ok := h.agents.FindByID(chi.URLParam(r, "agentID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, a)
}

// handleCreate 创建角色，调度档位未给出时取全局默认值
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload agentmodel.Agent
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}
	if _, exists := h.agents.FindByID(payload.ID); exists {
		utils.RespondError(w, http.StatusConflict, "agent already exists")
		return
	}
	h.applyScheduleDefaults(&payload)

	h.agents.Create(payload)
	created, _ := h.agents.FindByID(payload.ID)
	utils.RespondJSON(w, http.StatusCreated, created)
}

// handleUpdate 整体更新角色档案与调度档位，运行期计数保持不变
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var payload agentmodel.Agent
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Name) == "" {
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	ok := h.agents.Update(agentID, func(a *agentmodel.Agent) {
		a.Name = payload.Name
		a.Title = payload.Title
		a.Tone = payload.Tone
		a.PromptHint = payload.PromptHint
		a.AvatarURL = payload.AvatarURL
		a.Description = payload.Description
		a.Stickers = payload.Stickers
		a.IsOnlineMode = payload.IsOnlineMode
		a.IsBlockedByUser = payload.IsBlockedByUser
		a.IsExtra = payload.IsExtra
		a.StatusText = payload.StatusText

		// 档位可改，进行中的当日计数与触达时间不受请求体影响。
		a.Schedule.OverrideMode = payload.Schedule.OverrideMode
		a.Schedule.IntervalMinutes = payload.Schedule.IntervalMinutes
		a.Schedule.CooldownMinutes = payload.Schedule.CooldownMinutes
		a.Schedule.DailyLimit = payload.Schedule.DailyLimit
		a.Schedule.TriggerMode = payload.Schedule.TriggerMode
		a.Schedule.IdleThresholdMinutes = payload.Schedule.IdleThresholdMinutes
		a.Moments.IntervalMinutes = payload.Moments.IntervalMinutes
		a.Moments.DailyLimit = payload.Moments.DailyLimit
	})
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}

	updated, _ := h.agents.FindByID(agentID)
	utils.RespondJSON(w, http.StatusOK, updated)
}

// handleDelete 删除角色并级联清理其会话与朋友圈帖子
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if !h.agents.Delete(agentID) {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}

	h.chats.DeleteConversation(agentID)
	h.moments.DeletePostsBy(agentID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) applyScheduleDefaults(a *agentmodel.Agent) {
	if a.Schedule.OverrideMode == "" {
		a.Schedule.OverrideMode = agentmodel.OverrideDefault
	}
	if a.Schedule.TriggerMode == "" {
		a.Schedule.TriggerMode = agentmodel.TriggerAlways
	}
	if a.Schedule.IntervalMinutes <= 0 {
		a.Schedule.IntervalMinutes = h.cfg.DefaultIntervalMinutes
	}
	if a.Schedule.CooldownMinutes <= 0 {
		a.Schedule.CooldownMinutes = h.cfg.DefaultCooldownMinutes
	}
	if a.Schedule.DailyLimit <= 0 {
		a.Schedule.DailyLimit = h.cfg.DefaultDailyLimit
	}
	if a.Schedule.IdleThresholdMinutes <= 0 {
		a.Schedule.IdleThresholdMinutes = h.cfg.DefaultIdleThresholdMinutes
	}
	if a.Moments.IntervalMinutes <= 0 {
		a.Moments.IntervalMinutes = h.cfg.DefaultPostIntervalMinutes
	}
	if a.Moments.DailyLimit <= 0 {
		a.Moments.DailyLimit = h.cfg.DefaultPostDailyLimit
	}
}
