package pipeline

import (
	"context"

	"github.com/JustFluffie/fluffie/backend/internal/command"
	"github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/service/ai"
	"github.com/JustFluffie/fluffie/backend/internal/service/delivery"
	"github.com/JustFluffie/fluffie/backend/internal/service/dispatch"
)

// Completer 是生成服务契约：错误或空内容都表示本回合无动作。
type Completer interface {
	Complete(ctx context.Context, turns []ai.Turn) (string, error)
}

// Runner 把一次生成调用串成完整回合：生成 → 解析 → 分发 → 投递。
type Runner struct {
	ai         Completer
	dispatcher *dispatch.Dispatcher
	delivery   *delivery.Engine
}

// NewRunner 创建回合执行器。
func NewRunner(completer Completer, dispatcher *dispatch.Dispatcher, deliveryEngine *delivery.Engine) *Runner {
	return &Runner{ai: completer, dispatcher: dispatcher, delivery: deliveryEngine}
}

// RunTurn 执行一个完整回合。生成内容为空时不产生任何效果。
func (r *Runner) RunTurn(ctx context.Context, ag agent.Agent, turns []ai.Turn) error {
	content, err := r.ai.Complete(ctx, turns)
	if err != nil {
		return err
	}
	if content == "" {
		return nil
	}

	segments := command.Parse(content, ag.IsOnlineMode)
	result := r.dispatcher.Dispatch(ctx, ag, segments)
	r.delivery.Deliver(ctx, ag, result)
	return nil
}

// Deliver 跳过生成步骤，直接把已有文本当作回合产物投递。
func (r *Runner) Deliver(ctx context.Context, ag agent.Agent, content string) {
	segments := command.Parse(content, ag.IsOnlineMode)
	result := r.dispatcher.Dispatch(ctx, ag, segments)
	r.delivery.Deliver(ctx, ag, result)
}
