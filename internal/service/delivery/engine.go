package delivery

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	"github.com/JustFluffie/fluffie/backend/internal/service/dispatch"
)

// Notifier 是通知边界。
type Notifier interface {
	Notify(title, body string, msgType chat.MessageType) error
}

// Visibility 是可见性边界：用户当前是否正在查看某个会话、页面是否在前台。
type Visibility interface {
	ViewingConversation(agentID string) bool
	Foregrounded() bool
}

// Events 把投递结果推送给前端（如 websocket 集线器）。实现可为空。
type Events interface {
	MessageDelivered(m chat.Message)
}

// Engine 逐条投递消息，模拟真人的发送节奏。
type Engine struct {
	chats      *chatservice.Service
	notifier   Notifier
	visibility Visibility
	events     Events

	// Pace 返回两条消息之间的停顿时长，可被测试注入。
	Pace func() time.Duration
}

// New 创建投递引擎。notifier、visibility、events 均可为 nil。
func New(chats *chatservice.Service, notifier Notifier, visibility Visibility, events Events) *Engine {
	return &Engine{
		chats:      chats,
		notifier:   notifier,
		visibility: visibility,
		events:     events,
		Pace: func() time.Duration {
			// 约 1~2 秒的拟人停顿，仅作观感，不影响顺序与正确性。
			return time.Second + time.Duration(rand.Int63n(int64(time.Second)))
		},
	}
}

// Deliver 把一次分发产物按顺序投递到会话。
//
// 回合开始时若存在用户发出的待收转账，在第一条消息之后插入一条
// 合成的收款消息（本回合没有可投递消息时则在末尾插入），并把这些
// 转账置为已收；已收的转账不会重复合成。
func (e *Engine) Deliver(ctx context.Context, ag agent.Agent, res dispatch.Result) {
	// 接受通话指令与回合开始时的待收转账都会触发收款合成；
	// acceptTransfers 本身幂等，没有待收转账时不会产生消息。
	needAccept := res.AcceptCall || len(e.chats.PendingUserTransfers(ag.ID)) > 0
	delivered := 0

	for _, m := range res.Messages {
		if delivered > 0 && !e.pause(ctx) {
			return
		}
		e.deliverOne(ctx, ag, m)
		delivered++

		if needAccept {
			e.acceptTransfers(ctx, ag)
			needAccept = false
			delivered++
		}
	}

	if needAccept {
		e.acceptTransfers(ctx, ag)
	}
}

// acceptTransfers 合成收款消息并把待收转账置为已收。
func (e *Engine) acceptTransfers(ctx context.Context, ag agent.Agent) {
	accepted := e.chats.AcceptPendingTransfers(ag.ID)
	if accepted == 0 {
		return
	}

	e.deliverOne(ctx, ag, chat.Message{
		AgentID: ag.ID,
		Sender:  chat.SenderAgent,
		Type:    chat.TypeSystem,
		Content: fmt.Sprintf("%s收下了你的转账", ag.Name),
		Blocked: ag.IsBlockedByUser,
	})
}

// deliverOne 落库一条消息并处理未读数、事件推送与通知。
// 拉黑角色的消息照常落库（blocked 快照），但对外不产生任何动静。
func (e *Engine) deliverOne(ctx context.Context, ag agent.Agent, m chat.Message) {
	saved, err := e.chats.Append(ctx, m)
	if err != nil {
		log.Printf("[delivery] %s: append failed: %v", ag.ID, err)
		return
	}
	if saved.Blocked {
		return
	}

	if e.events != nil {
		e.events.MessageDelivered(saved)
	}

	viewing := e.visibility != nil && e.visibility.ViewingConversation(ag.ID)
	foregrounded := e.visibility != nil && e.visibility.Foregrounded()

	if !viewing {
		e.chats.IncrementUnread(ag.ID)
	}
	if !viewing && !foregrounded && e.notifier != nil {
		if err := e.notifier.Notify(ag.Name, Preview(saved), saved.Type); err != nil {
			log.Printf("[delivery] %s: notify failed: %v", ag.ID, err)
		}
	}
}

// pause 在两条投递之间停顿，返回 false 表示上下文已取消。
func (e *Engine) pause(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(e.Pace()):
		return true
	}
}

var previewLabels = map[chat.MessageType]string{
	chat.TypeImage:    "[图片]",
	chat.TypeSticker:  "[表情包]",
	chat.TypeVoice:    "[语音]",
	chat.TypeLocation: "[位置]",
	chat.TypeTransfer: "[转账]",
}

// Preview 返回通知用的内容预览：非文本类型只展示类型标签，不泄露载荷。
func Preview(m chat.Message) string {
	if label, ok := previewLabels[m.Type]; ok {
		return label
	}
	return truncatePreview(m.Content, 50)
}

func truncatePreview(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-1]) + "…"
}
