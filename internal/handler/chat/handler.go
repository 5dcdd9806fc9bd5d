package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	agentmodel "github.com/JustFluffie/fluffie/backend/internal/model/agent"
	chatmodel "github.com/JustFluffie/fluffie/backend/internal/model/chat"
	"github.com/JustFluffie/fluffie/backend/internal/service/ai"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	"github.com/JustFluffie/fluffie/backend/internal/service/pipeline"
	"github.com/JustFluffie/fluffie/backend/pkg/utils"
)

// ErrorSink 把后台回合的失败信息上抛给前端，实现可为空。
type ErrorSink interface {
	PushError(agentID, message string)
}

// 用户可以主动发送的消息类型。
var userMessageTypes = map[chatmodel.MessageType]bool{
	chatmodel.TypeText:     true,
	chatmodel.TypeImage:    true,
	chatmodel.TypeSticker:  true,
	chatmodel.TypeVoice:    true,
	chatmodel.TypeLocation: true,
	chatmodel.TypeTransfer: true,
}

// Handler 会话相关的HTTP处理器
type Handler struct {
	agents *agentmodel.Store
	chats  *chatservice.Service
	runner *pipeline.Runner
	errors ErrorSink

	// Spawn 可被测试注入，让回复回合同步执行。
	Spawn func(fn func())
}

// New 创建会话处理器。runner 为 nil 时只落库，不触发回复。
func New(agents *agentmodel.Store, chats *chatservice.Service, runner *pipeline.Runner, errSink ErrorSink) *Handler {
	return &Handler{
		agents: agents,
		chats:  chats,
		runner: runner,
		errors: errSink,
		Spawn:  func(fn func()) { go fn() },
	}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/agents/{agentID}/messages", h.handleHistory)
	r.Post("/agents/{agentID}/messages", h.handleSend)
	r.Patch("/agents/{agentID}/messages/{messageID}", h.handleEdit)
	r.Post("/agents/{agentID}/read", h.handleRead)
	r.Delete("/agents/{agentID}/conversation", h.handleDeleteConversation)
}

// handleHistory 返回会话消息，支持 limit 查询参数
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, ok := h.agents.FindByID(agentID); !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			utils.RespondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = v
	}

	utils.RespondJSON(w, http.StatusOK, h.chats.History(agentID, limit))
}

// handleSend 保存用户消息并异步触发一次回复回合。
// 角色已有进行中的回合时消息只落库，由后续回合通过历史追上。
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	ag, ok := h.agents.FindByID(agentID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}

	var payload struct {
		Type     string `json:"type"`
		Content  string `json:"content"`
		QuotedID string `json:"quotedId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	msgType := chatmodel.MessageType(payload.Type)
	if payload.Type == "" {
		msgType = chatmodel.TypeText
	}
	if !userMessageTypes[msgType] {
		utils.RespondError(w, http.StatusBadRequest, "unsupported message type")
		return
	}

	msg := chatmodel.Message{
		AgentID:  agentID,
		Sender:   chatmodel.SenderUser,
		Type:     msgType,
		Content:  payload.Content,
		QuotedID: payload.QuotedID,
	}
	if msgType == chatmodel.TypeTransfer {
		msg.TransferStatus = chatmodel.TransferPending
	}

	saved, err := h.chats.Append(r.Context(), msg)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// 用户发消息说明正在看这个会话。
	h.chats.ResetUnread(agentID)

	if h.runner != nil && h.agents.TryBeginTurn(agentID) {
		h.Spawn(func() { h.runReply(ag.ID) })
	}

	utils.RespondJSON(w, http.StatusCreated, saved)
}

// runReply 执行一次回复回合，失败时记录日志并上抛给前端。
func (h *Handler) runReply(agentID string) {
	defer h.agents.EndTurn(agentID)

	ag, ok := h.agents.FindByID(agentID)
	if !ok {
		return
	}

	history := h.chats.History(agentID, 0)
	if err := h.runner.RunTurn(context.Background(), ag, ai.BuildReplyTurns(ag, history)); err != nil {
		log.Printf("[chat] %s: reply turn failed: %v", agentID, err)
		if h.errors != nil {
			h.errors.PushError(agentID, err.Error())
		}
		return
	}

	h.agents.Update(agentID, func(a *agentmodel.Agent) {
		a.LastActiveAt = time.Now()
	})
}

// handleEdit 修改一条消息的正文
func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	messageID := chi.URLParam(r, "messageID")

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Content) == "" {
		utils.RespondError(w, http.StatusBadRequest, "content is required")
		return
	}

	edited, err := h.chats.EditMessage(agentID, messageID, payload.Content)
	if err != nil {
		if errors.Is(err, chatservice.ErrMessageNotFound) {
			utils.RespondError(w, http.StatusNotFound, err.Error())
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, edited)
}

// handleRead 清空会话未读数
func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, ok := h.agents.FindByID(agentID); !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}

	h.chats.ResetUnread(agentID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// handleDeleteConversation 清空会话消息
func (h *Handler) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if _, ok := h.agents.FindByID(agentID); !ok {
		utils.RespondError(w, http.StatusNotFound, "agent not found")
		return
	}

	h.chats.DeleteConversation(agentID)
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
