package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
)

const sendBuffer = 32

type inboundMessage struct {
	Type    string `json:"type"`
	AgentID string `json:"agentId,omitempty"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type connection struct {
	sock *websocket.Conn
	send chan []byte
}

// Hub 维护前端的 WebSocket 连接，同时充当投递引擎的可见性来源：
// 前端通过 focus/blur/foreground/background 汇报自己的状态，
// 投递引擎据此决定未读数与桌面通知。
type Hub struct {
	upgrader websocket.Upgrader

	mu         sync.RWMutex
	conns      map[*connection]struct{}
	viewing    string // 正在查看的会话，空表示不在会话页
	foreground bool
}

// NewHub 创建连接集线器。
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[*connection]struct{}),
	}
}

// RegisterRoutes 注册 WebSocket 路由。
func (h *Hub) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWebSocket)
}

func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	c := &connection{sock: sock, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) writeLoop(c *connection) {
	for payload := range c.send {
		if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (h *Hub) readLoop(c *connection) {
	defer h.drop(c)

	for {
		_, payload, err := c.sock.ReadMessage()
		if err != nil {
			return
		}

		var in inboundMessage
		if err := json.Unmarshal(payload, &in); err != nil {
			log.Printf("[ws] drop malformed inbound message: %v", err)
			continue
		}

		h.mu.Lock()
		switch in.Type {
		case "focus":
			h.viewing = in.AgentID
		case "blur":
			h.viewing = ""
		case "foreground":
			h.foreground = true
		case "background":
			h.foreground = false
		default:
			log.Printf("[ws] drop unknown inbound type %q", in.Type)
		}
		h.mu.Unlock()
	}
}

// drop 注销连接；最后一个连接断开后视为页面不可见。
func (h *Hub) drop(c *connection) {
	h.mu.Lock()
	if _, ok := h.conns[c]; ok {
		delete(h.conns, c)
		close(c.send)
	}
	if len(h.conns) == 0 {
		h.viewing = ""
		h.foreground = false
	}
	h.mu.Unlock()

	c.sock.Close()
}

// ViewingConversation 返回用户是否正在查看指定会话。
func (h *Hub) ViewingConversation(agentID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.foreground && h.viewing == agentID
}

// Foregrounded 返回页面是否处于前台。
func (h *Hub) Foregrounded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.foreground
}

// MessageDelivered 把新投递的消息推送给全部连接。
func (h *Hub) MessageDelivered(m chat.Message) {
	h.broadcast(outgoingMessage{Type: "message", Data: m, Timestamp: time.Now().UnixMilli()})
}

// FeedUpdated 通知前端朋友圈出现了未读动态。
func (h *Hub) FeedUpdated() {
	h.broadcast(outgoingMessage{Type: "feed", Timestamp: time.Now().UnixMilli()})
}

// PushError 把后台回合的失败信息推送给前端。
func (h *Hub) PushError(agentID, message string) {
	h.broadcast(outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"agentId": agentID, "message": message},
		Timestamp: time.Now().UnixMilli(),
	})
}

// broadcast 序列化一次、投给全部连接；写缓冲已满的慢连接直接丢弃该帧。
func (h *Hub) broadcast(out outgoingMessage) {
	payload, err := json.Marshal(out)
	if err != nil {
		log.Printf("[ws] marshal outgoing message failed: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		select {
		case c.send <- payload:
		default:
		}
	}
}
