package dispatch

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/JustFluffie/fluffie/backend/internal/command"
	"github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
	"github.com/JustFluffie/fluffie/backend/internal/model/moments"
	"github.com/JustFluffie/fluffie/backend/internal/model/todo"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
	todoservice "github.com/JustFluffie/fluffie/backend/internal/service/todo"
	"github.com/JustFluffie/fluffie/backend/pkg/utils"
)

// todoTitleLimit 是待办内容的展示长度上限（按字符数截断）。
const todoTitleLimit = 20

// 未显式给出时间的待办，在当前时刻上加一个随机的短延迟。
var todoDelayChoices = []time.Duration{
	3 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// Result 是一次指令分发的产物：可投递消息与给投递引擎的信号。
type Result struct {
	Messages   []chat.Message
	AcceptCall bool
}

// Dispatcher 按顺序消费解析片段，应用非消息副作用并产出可投递消息。
type Dispatcher struct {
	agents  *agent.Store
	chats   *chatservice.Service
	moments *momentsservice.Service
	todos   *todoservice.Service

	// Now 与 PickDelay 可被测试注入。
	Now       func() time.Time
	PickDelay func() time.Duration

	// OnPostCreated 在指令发帖成功后回调（用于触发围观），可为空。
	OnPostCreated func(p moments.Post)
}

// New 创建指令分发器。
func New(agents *agent.Store, chats *chatservice.Service, momentsSvc *momentsservice.Service, todos *todoservice.Service) *Dispatcher {
	return &Dispatcher{
		agents:  agents,
		chats:   chats,
		moments: momentsSvc,
		todos:   todos,
		Now:     func() time.Time { return time.Now() },
		PickDelay: func() time.Duration {
			return todoDelayChoices[rand.Intn(len(todoDelayChoices))]
		},
	}
}

// Dispatch 按片段顺序应用副作用，返回待投递的消息列表。
// 单个片段的载荷解析失败只记录日志，不影响后续片段。
func (d *Dispatcher) Dispatch(_ context.Context, ag agent.Agent, segments []command.Segment) Result {
	var res Result

	emit := func(m chat.Message) {
		m.AgentID = ag.ID
		m.Sender = chat.SenderAgent
		m.Blocked = ag.IsBlockedByUser
		res.Messages = append(res.Messages, m)
	}

	for _, seg := range segments {
		switch seg.Kind {
		case command.KindText:
			emit(chat.Message{Type: chat.TypeText, Content: seg.Content})

		case command.KindImage:
			emit(chat.Message{
				Type:          chat.TypeImage,
				Content:       seg.Content,
				TextGenerated: !isAssetURL(seg.Content),
			})

		case command.KindSticker:
			if url, ok := ag.Stickers[seg.Content]; ok {
				emit(chat.Message{Type: chat.TypeSticker, Content: url, StickerName: seg.Content})
			} else {
				// 未注册的表情包降级为文本，保留原始方括号形式，绝不静默丢弃。
				emit(chat.Message{Type: chat.TypeText, Content: fmt.Sprintf("[表情包：%s]", seg.Content)})
			}

		case command.KindVoice:
			emit(chat.Message{Type: chat.TypeVoice, Content: seg.Content})

		case command.KindLocation:
			emit(chat.Message{Type: chat.TypeLocation, Content: seg.Content})

		case command.KindTransfer:
			emit(chat.Message{Type: chat.TypeTransfer, Content: seg.Content, TransferStatus: chat.TransferPending})

		case command.KindStatus:
			d.agents.Update(ag.ID, func(a *agent.Agent) {
				a.StatusText = seg.Content
			})

		case command.KindPost:
			d.applyPost(ag, seg.Content)

		case command.KindPostInteraction:
			d.applyPostInteraction(ag, seg.Content)

		case command.KindTodo:
			d.applyTodo(ag, seg.Content)

		case command.KindRecall:
			if _, ok := d.chats.RecallLatestAgentMessage(ag.ID); !ok {
				log.Printf("[dispatch] %s: recall directive with no recallable message", ag.ID)
			}

		case command.KindAcceptCall:
			res.AcceptCall = true
		}
	}

	return res
}

// applyPost 解析 {text, imageDescription} 并发布朋友圈。
func (d *Dispatcher) applyPost(ag agent.Agent, payload string) {
	var body struct {
		Text             string `json:"text"`
		ImageDescription string `json:"imageDescription"`
	}
	if err := utils.UnmarshalLoose(payload, &body); err != nil || strings.TrimSpace(body.Text) == "" {
		log.Printf("[dispatch] %s: drop malformed post payload: %q", ag.ID, payload)
		return
	}

	post := moments.Post{
		AuthorID:   ag.ID,
		Body:       strings.TrimSpace(body.Text),
		Visibility: moments.VisibilityPublic,
	}
	if desc := strings.TrimSpace(body.ImageDescription); desc != "" {
		post.Images = []moments.PostImage{{Description: desc}}
	}
	created, err := d.moments.CreatePost(post)
	if err != nil {
		log.Printf("[dispatch] %s: create post failed: %v", ag.ID, err)
		return
	}
	if d.OnPostCreated != nil {
		d.OnPostCreated(created)
	}
}

// applyPostInteraction 解析 {action, text} 并作用于用户最近的帖子。
func (d *Dispatcher) applyPostInteraction(ag agent.Agent, payload string) {
	var body struct {
		Action string `json:"action"`
		Text   string `json:"text"`
	}
	if err := utils.UnmarshalLoose(payload, &body); err != nil {
		log.Printf("[dispatch] %s: drop malformed post interaction payload: %q", ag.ID, payload)
		return
	}

	post, ok := d.moments.LatestPostBy(chat.UserID)
	if !ok {
		log.Printf("[dispatch] %s: post interaction with no user post", ag.ID)
		return
	}

	switch strings.ToLower(strings.TrimSpace(body.Action)) {
	case "like":
		if _, err := d.moments.Like(post.ID, ag.ID); err != nil {
			log.Printf("[dispatch] %s: like failed: %v", ag.ID, err)
			return
		}
	case "comment":
		text := strings.TrimSpace(body.Text)
		if text == "" {
			log.Printf("[dispatch] %s: drop comment interaction without text", ag.ID)
			return
		}
		if _, err := d.moments.AddComment(post.ID, moments.Comment{AuthorID: ag.ID, Body: text}); err != nil {
			log.Printf("[dispatch] %s: comment failed: %v", ag.ID, err)
			return
		}
	default:
		log.Printf("[dispatch] %s: drop unknown post interaction action %q", ag.ID, body.Action)
		return
	}

	// 别人对用户的帖子有了动作，标记朋友圈未读。
	d.moments.MarkUnseen()
}

// applyTodo 解析可选的时间前缀与内容，登记待办。
func (d *Dispatcher) applyTodo(ag agent.Agent, payload string) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		log.Printf("[dispatch] %s: drop empty todo payload", ag.ID)
		return
	}

	now := d.Now()
	date, clock, title := splitTodoPayload(payload)
	if title == "" {
		log.Printf("[dispatch] %s: drop todo payload without content: %q", ag.ID, payload)
		return
	}
	if clock == "" {
		// 没有显式时间，补一个短随机延迟。
		at := now.Add(d.PickDelay())
		date = at.Format("2006-01-02")
		clock = at.Format("15:04")
	}
	if date == "" {
		date = now.Format("2006-01-02")
	}

	d.todos.Add(todo.Item{
		AgentID: ag.ID,
		Title:   truncateRunes(title, todoTitleLimit),
		Date:    date,
		Time:    clock,
	})
}

// splitTodoPayload 识别 "2006-01-02 15:04 内容"、"15:04 内容" 或纯内容三种形式。
func splitTodoPayload(payload string) (date, clock, title string) {
	fields := strings.Fields(payload)
	if len(fields) >= 3 {
		if _, err := time.Parse("2006-01-02", fields[0]); err == nil {
			if _, err := time.Parse("15:04", fields[1]); err == nil {
				return fields[0], fields[1], strings.Join(fields[2:], " ")
			}
		}
	}
	if len(fields) >= 2 {
		if _, err := time.Parse("15:04", fields[0]); err == nil {
			return "", fields[0], strings.Join(fields[1:], " ")
		}
	}
	return "", "", payload
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func isAssetURL(s string) bool {
	return strings.HasPrefix(s, "http://") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "data:")
}

