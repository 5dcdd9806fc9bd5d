package moments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	agentmodel "github.com/JustFluffie/fluffie/backend/internal/model/agent"
	chatmodel "github.com/JustFluffie/fluffie/backend/internal/model/chat"
	momentsmodel "github.com/JustFluffie/fluffie/backend/internal/model/moments"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
	"github.com/JustFluffie/fluffie/backend/pkg/utils"
)

// Handler 朋友圈的HTTP处理器
type Handler struct {
	moments   *momentsservice.Service
	agents    *agentmodel.Store
	onPublish func(post momentsmodel.Post)
}

// New 创建朋友圈处理器。onPublish 在用户发帖后回调（用于触发围观），可为 nil。
func New(momentsSvc *momentsservice.Service, agents *agentmodel.Store, onPublish func(post momentsmodel.Post)) *Handler {
	return &Handler{moments: momentsSvc, agents: agents, onPublish: onPublish}
}

// RegisterRoutes 注册朋友圈相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/moments", h.handleList)
	r.Post("/moments", h.handleCreate)
	r.Get("/moments/unseen", h.handleUnseen)
	r.Post("/moments/seen", h.handleSeen)
	r.Post("/moments/{postID}/like", h.handleToggleLike)
	r.Post("/moments/{postID}/comments", h.handleComment)
	r.Patch("/moments/{postID}", h.handleUpdateBody)
	r.Delete("/moments/{postID}", h.handleDelete)
}

// handleList 返回全部帖子，新帖在前
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.moments.List())
}

// handleCreate 用户发一条朋友圈，发布后触发角色围观
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Body       string                   `json:"body"`
		Images     []momentsmodel.PostImage `json:"images"`
		Visibility momentsmodel.Visibility  `json:"visibility"`
		VisibleTo  []string                 `json:"visibleTo"`
		Mentions   []string                 `json:"mentions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Body) == "" && len(payload.Images) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "body or images required")
		return
	}

	post, err := h.moments.CreatePost(momentsmodel.Post{
		AuthorID:   chatmodel.UserID,
		Body:       strings.TrimSpace(payload.Body),
		Images:     payload.Images,
		Visibility: payload.Visibility,
		VisibleTo:  payload.VisibleTo,
		Mentions:   payload.Mentions,
	})
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if h.onPublish != nil {
		h.onPublish(post)
	}
	utils.RespondJSON(w, http.StatusCreated, post)
}

// handleUnseen 返回朋友圈是否有未读动态
func (h *Handler) handleUnseen(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"unseen": h.moments.HasUnseen()})
}

// handleSeen 用户查看朋友圈后清除未读标记
func (h *Handler) handleSeen(w http.ResponseWriter, r *http.Request) {
	h.moments.MarkSeen()
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "seen"})
}

// handleToggleLike 用户切换点赞
func (h *Handler) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	post, err := h.moments.ToggleLike(chi.URLParam(r, "postID"), chatmodel.UserID)
	if err != nil {
		h.respondPostError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, post)
}

// handleComment 用户发表评论或回复
func (h *Handler) handleComment(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Body      string `json:"body"`
		ReplyToID string `json:"replyToId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Body) == "" {
		utils.RespondError(w, http.StatusBadRequest, "body is required")
		return
	}

	c := momentsmodel.Comment{
		AuthorID:  chatmodel.UserID,
		Body:      strings.TrimSpace(payload.Body),
		ReplyToID: payload.ReplyToID,
	}
	if payload.ReplyToID != "" {
		if a, ok := h.agents.FindByID(payload.ReplyToID); ok {
			c.ReplyToName = a.Name
		}
	}

	post, err := h.moments.AddComment(chi.URLParam(r, "postID"), c)
	if err != nil {
		h.respondPostError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, post)
}

// handleUpdateBody 用户编辑自己帖子的正文
func (h *Handler) handleUpdateBody(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(payload.Body) == "" {
		utils.RespondError(w, http.StatusBadRequest, "body is required")
		return
	}

	existing, ok := h.moments.FindByID(postID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "post not found")
		return
	}
	if existing.AuthorID != chatmodel.UserID {
		utils.RespondError(w, http.StatusForbidden, "only own posts can be edited")
		return
	}

	post, err := h.moments.UpdateBody(postID, strings.TrimSpace(payload.Body))
	if err != nil {
		h.respondPostError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, post)
}

// handleDelete 用户删除自己的帖子
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	existing, ok := h.moments.FindByID(postID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "post not found")
		return
	}
	if existing.AuthorID != chatmodel.UserID {
		utils.RespondError(w, http.StatusForbidden, "only own posts can be deleted")
		return
	}

	if err := h.moments.DeletePost(postID); err != nil {
		h.respondPostError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) respondPostError(w http.ResponseWriter, err error) {
	if errors.Is(err, momentsservice.ErrPostNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}
