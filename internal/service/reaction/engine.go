package reaction

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/JustFluffie/fluffie/backend/internal/config"
	"github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
	"github.com/JustFluffie/fluffie/backend/internal/model/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/ai"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/pipeline"
	"github.com/JustFluffie/fluffie/backend/pkg/utils"
)

// staleAfter 之后的帖子视为旧闻，角色不再主动围观（用户的帖子除外）。
const staleAfter = 72 * time.Hour

// Completer 是生成服务契约。
type Completer interface {
	Complete(ctx context.Context, turns []ai.Turn) (string, error)
}

// Engine 驱动角色对朋友圈动态的围观：点赞、评论或转为私聊。
type Engine struct {
	cfg     config.SchedulerConfig
	agents  *agent.Store
	moments *momentsservice.Service
	ai      Completer
	runner  *pipeline.Runner

	// 以下钩子可被测试注入。
	Roll         func(p float64) bool
	Now          func() time.Time
	Spawn        func(fn func())
	MentionDelay func() time.Duration
}

// New 创建围观引擎。
func New(cfg config.SchedulerConfig, agents *agent.Store, momentsSvc *momentsservice.Service, completer Completer, runner *pipeline.Runner) *Engine {
	return &Engine{
		cfg:     cfg,
		agents:  agents,
		moments: momentsSvc,
		ai:      completer,
		runner:  runner,
		Roll:    func(p float64) bool { return rand.Float64() < p },
		Now:     func() time.Time { return time.Now() },
		Spawn:   func(fn func()) { go fn() },
		MentionDelay: func() time.Duration {
			return 2*time.Second + time.Duration(rand.Int63n(int64(2*time.Second)))
		},
	}
}

// OnPostPublished 在新帖发布后挑选围观者。
//
// 被点名的角色总会反应；部分可见的帖子只有名单内的角色有机会看到；
// 其余按公开/受限两档概率决定是否围观。每个围观者独立异步执行。
func (e *Engine) OnPostPublished(ctx context.Context, post moments.Post) {
	authorName := e.displayName(post.AuthorID)

	for _, a := range e.agents.List() {
		if a.ID == post.AuthorID {
			continue
		}

		mentioned := post.Mentioned(a.ID)
		if !mentioned {
			if !post.VisibleToActor(a.ID) {
				continue
			}
			chance := e.cfg.ReactPublic
			if post.Visibility == moments.VisibilityRestricted {
				chance = e.cfg.ReactRestricted
			}
			if !e.Roll(chance) {
				continue
			}
		}

		ag := a
		e.Spawn(func() { e.reactToPost(ctx, ag, post, authorName, mentioned) })
	}
}

// reactToPost 让角色对一条新帖做出一次互动。
// 决策内容解析失败时降级为点赞，绝不静默放弃。
func (e *Engine) reactToPost(ctx context.Context, ag agent.Agent, post moments.Post, authorName string, mentioned bool) {
	if mentioned && !e.wait(ctx, e.MentionDelay()) {
		return
	}

	action, response := "like", ""
	content, err := e.ai.Complete(ctx, ai.BuildReactionTurns(ag, post, authorName))
	if err != nil {
		log.Printf("[reaction] %s: reaction decision failed, fall back to like: %v", ag.ID, err)
	} else if a, r, ok := parseDecision(content); ok {
		action, response = a, r
	} else {
		log.Printf("[reaction] %s: malformed reaction decision %q, fall back to like", ag.ID, content)
	}

	switch action {
	case "reply":
		if response == "" {
			e.like(ag, post)
			break
		}
		// 转为私聊：回复内容走完整的解析/分发/投递链路。
		e.runner.Deliver(ctx, ag, response)
		e.touch(ag.ID)
		return
	case "like_comment":
		e.like(ag, post)
		if response != "" {
			e.comment(ag, post, moments.Comment{AuthorID: ag.ID, Body: response})
		}
	default:
		e.like(ag, post)
	}
	e.touch(ag.ID)

	if post.AuthorID == chat.UserID {
		e.moments.MarkUnseen()
	}
}

// SweepAgent 周期性巡查：先处理角色自己帖子下欠回复的评论，
// 再以小概率补充对他人旧帖的互动。每次巡查最多执行一个动作。
func (e *Engine) SweepAgent(ctx context.Context, ag agent.Agent) bool {
	now := e.Now()

	for _, post := range e.moments.List() {
		if post.AuthorID == ag.ID {
			if c, ok := e.pendingComment(post, ag, now); ok {
				e.Spawn(func() { e.replyToComment(ctx, ag, post, c) })
				return true
			}
			continue
		}

		if !post.VisibleToActor(ag.ID) {
			continue
		}
		if post.AuthorID != chat.UserID && now.Sub(post.CreatedAt) > staleAfter {
			continue
		}
		if post.LikedBy(ag.ID) || post.CommentedBy(ag.ID) {
			continue
		}
		if !e.Roll(e.cfg.SweepReactChance) {
			continue
		}

		e.Spawn(func() { e.sweepReact(ctx, ag, post) })
		return true
	}
	return false
}

// pendingComment 在角色自己的帖子下找一条欠回复的评论。
//
// 定向回复只回用户的，且同一条最多回一轮，避免角色之间无限对话；
// 顶层评论回用户的不限时效，回其他角色的仅限新鲜帖子。
func (e *Engine) pendingComment(post moments.Post, ag agent.Agent, now time.Time) (moments.Comment, bool) {
	for i, c := range post.Comments {
		if c.AuthorID == ag.ID {
			continue
		}

		switch {
		case c.ReplyToID == ag.ID:
			if c.AuthorID != chat.UserID {
				continue
			}
		case c.ReplyToID == "":
			if c.AuthorID != chat.UserID && now.Sub(post.CreatedAt) > staleAfter {
				continue
			}
		default:
			continue
		}

		if repliedAfter(post.Comments[i+1:], ag.ID, c.AuthorID) {
			continue
		}
		return c, true
	}
	return moments.Comment{}, false
}

// repliedAfter 返回 authorID 在后续评论中是否已回复过 targetID。
func repliedAfter(later []moments.Comment, authorID, targetID string) bool {
	for _, c := range later {
		if c.AuthorID == authorID && c.ReplyToID == targetID {
			return true
		}
	}
	return false
}

// replyToComment 让角色回复自己帖子下的一条评论。
func (e *Engine) replyToComment(ctx context.Context, ag agent.Agent, post moments.Post, c moments.Comment) {
	commenterName := e.displayName(c.AuthorID)

	content, err := e.ai.Complete(ctx, ai.BuildCommentReplyTurns(ag, post, c, commenterName))
	if err != nil {
		log.Printf("[reaction] %s: comment reply failed: %v", ag.ID, err)
		return
	}
	body := strings.TrimSpace(content)
	if body == "" {
		return
	}

	e.comment(ag, post, moments.Comment{
		AuthorID:    ag.ID,
		Body:        body,
		ReplyToID:   c.AuthorID,
		ReplyToName: commenterName,
	})
	e.touch(ag.ID)
	if c.AuthorID == chat.UserID {
		e.moments.MarkUnseen()
	}
}

// sweepReact 巡查时对一条错过的帖子补充点赞或评论。
func (e *Engine) sweepReact(ctx context.Context, ag agent.Agent, post moments.Post) {
	authorName := e.displayName(post.AuthorID)

	action, response := "like", ""
	content, err := e.ai.Complete(ctx, ai.BuildSweepReactionTurns(ag, post, authorName))
	if err != nil {
		log.Printf("[reaction] %s: sweep decision failed, fall back to like: %v", ag.ID, err)
	} else if a, r, ok := parseDecision(content); ok {
		action, response = a, r
	}

	e.like(ag, post)
	if action == "like_comment" && response != "" {
		e.comment(ag, post, moments.Comment{AuthorID: ag.ID, Body: response})
	}
	e.touch(ag.ID)

	if post.AuthorID == chat.UserID {
		e.moments.MarkUnseen()
	}
}

// touch 记录角色刚刚完成了一次自主动作。
func (e *Engine) touch(agentID string) {
	e.agents.Update(agentID, func(a *agent.Agent) {
		a.LastActiveAt = e.Now()
	})
}

func (e *Engine) like(ag agent.Agent, post moments.Post) {
	if _, err := e.moments.Like(post.ID, ag.ID); err != nil {
		log.Printf("[reaction] %s: like failed: %v", ag.ID, err)
	}
}

func (e *Engine) comment(ag agent.Agent, post moments.Post, c moments.Comment) {
	if _, err := e.moments.AddComment(post.ID, c); err != nil {
		log.Printf("[reaction] %s: comment failed: %v", ag.ID, err)
	}
}

// displayName 把参与者标识映射为提示词里的称呼。
func (e *Engine) displayName(actorID string) string {
	if actorID == chat.UserID {
		return "对方"
	}
	if a, ok := e.agents.FindByID(actorID); ok {
		return a.Name
	}
	return actorID
}

func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// parseDecision 解析 {"action":...,"response":...} 形式的决策输出。
func parseDecision(raw string) (action, response string, ok bool) {
	var body struct {
		Action   string `json:"action"`
		Response string `json:"response"`
	}
	if err := utils.UnmarshalLoose(raw, &body); err != nil {
		return "", "", false
	}

	action = strings.ToLower(strings.TrimSpace(body.Action))
	switch action {
	case "reply", "like", "like_comment":
		return action, strings.TrimSpace(body.Response), true
	}
	return "", "", false
}
