package scheduler

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JustFluffie/fluffie/backend/internal/config"
	"github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/model/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/ai"
	chatservice "github.com/JustFluffie/fluffie/backend/internal/service/chat"
	momentsservice "github.com/JustFluffie/fluffie/backend/internal/service/moments"
	"github.com/JustFluffie/fluffie/backend/internal/service/pipeline"
	"github.com/JustFluffie/fluffie/backend/internal/service/reaction"
	"github.com/JustFluffie/fluffie/backend/pkg/utils"
)

const dayLayout = "2006-01-02"

// Completer 是生成服务契约。
type Completer interface {
	Complete(ctx context.Context, turns []ai.Turn) (string, error)
}

// Scheduler 周期性巡查全部角色，驱动主动消息、自主发帖与朋友圈围观。
type Scheduler struct {
	cfg       config.SchedulerConfig
	agents    *agent.Store
	chats     *chatservice.Service
	moments   *momentsservice.Service
	ai        Completer
	runner    *pipeline.Runner
	reactions *reaction.Engine

	cron *cron.Cron

	mu      sync.RWMutex
	enabled bool

	// 以下钩子可被测试注入。
	Roll  func(p float64) bool
	Now   func() time.Time
	Spawn func(fn func())
}

// New 创建调度器，全局开关取配置的初始值。
func New(cfg config.SchedulerConfig, agents *agent.Store, chats *chatservice.Service, momentsSvc *momentsservice.Service, completer Completer, runner *pipeline.Runner, reactions *reaction.Engine) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		agents:    agents,
		chats:     chats,
		moments:   momentsSvc,
		ai:        completer,
		runner:    runner,
		reactions: reactions,
		enabled:   cfg.Enabled,
		Roll:      func(p float64) bool { return rand.Float64() < p },
		Now:       func() time.Time { return time.Now() },
		Spawn:     func(fn func()) { go fn() },
	}
}

// Start 按配置的表达式启动周期巡查。
func (s *Scheduler) Start() error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.cfg.TickSpec, func() {
		s.Tick(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	log.Printf("[scheduler] started, tick=%s", s.cfg.TickSpec)
	return nil
}

// Stop 停止周期巡查。已经派发出去的回合不会被打断。
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// SetEnabled 设置主动消息的全局开关。
func (s *Scheduler) SetEnabled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = v
}

// Enabled 返回主动消息的全局开关状态。
func (s *Scheduler) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled
}

// Tick 执行一轮巡查：先做跨天计数归零，再依次评估每个角色的
// 主动消息、自主发帖与朋友圈巡查。通过全部闸门的动作异步执行，
// 不阻塞其余角色。
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.Now()
	today := now.Format(dayLayout)

	for _, ag := range s.agents.List() {
		s.rolloverDay(ag.ID, today)
	}

	for _, ag := range s.agents.List() {
		// 覆盖档位 off 完全沉默；全局开关只约束主动消息，
		// 发帖与朋友圈巡查照常进行。
		if ag.Schedule.OverrideMode == agent.OverrideOff {
			continue
		}
		if !ag.IsExtra && s.allowed(ag.Schedule.OverrideMode) {
			s.maybeProactive(ctx, ag, now)
		}
		s.maybePost(ctx, ag, now)
		s.reactions.SweepAgent(ctx, ag)
	}
}

// rolloverDay 跨天时把当日计数归零一次，以日期戳判断，不依赖上次触达时间。
// 日期戳未变时不触发写入，避免每轮巡查都打一次检查点。
func (s *Scheduler) rolloverDay(id, today string) {
	a, ok := s.agents.FindByID(id)
	if !ok || (a.Schedule.LastResetDay == today && a.Moments.LastResetDay == today) {
		return
	}
	s.agents.Update(id, func(a *agent.Agent) {
		if a.Schedule.LastResetDay != today {
			a.Schedule.LastResetDay = today
			a.Schedule.TodayProactiveCount = 0
		}
		if a.Moments.LastResetDay != today {
			a.Moments.LastResetDay = today
			a.Moments.TodayPostCount = 0
		}
	})
}

// allowed 结合角色覆盖档位与全局开关判断是否允许自主活动。
func (s *Scheduler) allowed(mode agent.OverrideMode) bool {
	switch mode {
	case agent.OverrideOn:
		return true
	case agent.OverrideOff:
		return false
	default:
		return s.Enabled()
	}
}

// maybeProactive 依次通过主动消息的闸门链，全部放行才派发生成回合：
// 当日额度 → 主动冷却 → 主动间隔 → 冷场阈值 → 进行中回合占位。
// 冷却与间隔都相对上次主动触达计时，刚主动过的角色无条件跳过。
func (s *Scheduler) maybeProactive(ctx context.Context, ag agent.Agent, now time.Time) {
	st := ag.Schedule

	if st.TodayProactiveCount >= intOr(st.DailyLimit, s.cfg.DefaultDailyLimit) {
		return
	}

	if !st.LastProactiveAt.IsZero() {
		since := now.Sub(st.LastProactiveAt)
		if since < minutesOr(st.CooldownMinutes, s.cfg.DefaultCooldownMinutes) {
			return
		}
		if since < minutesOr(st.IntervalMinutes, s.cfg.DefaultIntervalMinutes) {
			return
		}
	}
	if st.TriggerMode == agent.TriggerIdle {
		// 空会话视为冷场。
		lastMsg := s.chats.LastMessageAt(ag.ID)
		if !lastMsg.IsZero() && now.Sub(lastMsg) < minutesOr(st.IdleThresholdMinutes, s.cfg.DefaultIdleThresholdMinutes) {
			return
		}
	}

	if !s.agents.TryBeginTurn(ag.ID) {
		return
	}
	s.Spawn(func() { s.runProactive(ctx, ag) })
}

// runProactive 执行一次主动消息回合。
// 无论成败都消耗一次当日额度并刷新触达时间，避免失败的调用被反复重试。
func (s *Scheduler) runProactive(ctx context.Context, ag agent.Agent) {
	defer s.agents.EndTurn(ag.ID)

	history := s.chats.History(ag.ID, 0)
	err := s.runner.RunTurn(ctx, ag, ai.BuildProactiveTurns(ag, history))

	s.agents.Update(ag.ID, func(a *agent.Agent) {
		a.Schedule.LastProactiveAt = s.Now()
		a.Schedule.TodayProactiveCount++
		a.LastActiveAt = s.Now()
	})

	if err != nil {
		log.Printf("[scheduler] %s: proactive turn failed: %v", ag.ID, err)
	}
}

// maybePost 评估自主发帖：当日额度与发帖间隔放行后，再过一道概率闸门。
func (s *Scheduler) maybePost(ctx context.Context, ag agent.Agent, now time.Time) {
	mo := ag.Moments

	if mo.TodayPostCount >= intOr(mo.DailyLimit, s.cfg.DefaultPostDailyLimit) {
		return
	}
	if !mo.LastPostAt.IsZero() && now.Sub(mo.LastPostAt) < minutesOr(mo.IntervalMinutes, s.cfg.DefaultPostIntervalMinutes) {
		return
	}
	if !s.Roll(s.cfg.PostChance) {
		return
	}

	if !s.agents.TryBeginTurn(ag.ID) {
		return
	}
	s.Spawn(func() { s.runPost(ctx, ag) })
}

// runPost 执行一次自主发帖回合，发布成功后触发围观。
func (s *Scheduler) runPost(ctx context.Context, ag agent.Agent) {
	defer s.agents.EndTurn(ag.ID)

	content, err := s.ai.Complete(ctx, ai.BuildPostTurns(ag))

	s.agents.Update(ag.ID, func(a *agent.Agent) {
		a.Moments.LastPostAt = s.Now()
		a.Moments.TodayPostCount++
		a.LastActiveAt = s.Now()
	})

	if err != nil {
		log.Printf("[scheduler] %s: post turn failed: %v", ag.ID, err)
		return
	}

	var body struct {
		Text             string `json:"text"`
		ImageDescription string `json:"imageDescription"`
	}
	if err := utils.UnmarshalLoose(content, &body); err != nil || strings.TrimSpace(body.Text) == "" {
		log.Printf("[scheduler] %s: drop malformed post payload: %q", ag.ID, content)
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

	created, err := s.moments.CreatePost(post)
	if err != nil {
		log.Printf("[scheduler] %s: create post failed: %v", ag.ID, err)
		return
	}
	s.reactions.OnPostPublished(ctx, created)
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func minutesOr(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Minute
}
