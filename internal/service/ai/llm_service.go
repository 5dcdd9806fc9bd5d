package ai

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/JustFluffie/fluffie/backend/internal/config"
)

// Turn 是生成调用的一条带角色标记的消息。
type Turn struct {
	Role    string `json:"role"` // system / user / assistant
	Content string `json:"content"`
}

// Service 封装大模型调用，对外提供 complete(messages) -> content 契约。
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService 创建生成服务实例。
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chatModel: chatModel, chain: runnable}, nil
}

// 内心独白包裹块在进入命令解析前剥除。
var (
	thinkBlockRe     = regexp.MustCompile(`(?s)<think>.*?</think>`)
	monologueBlockRe = regexp.MustCompile(`(?s)【内心独白】.*?【/内心独白】`)
)

// Complete 执行一次生成调用并返回剥除推理块后的文本。
// 出错或内容为空时调用方应视为"本回合无动作"。
func (s *Service) Complete(ctx context.Context, turns []Turn) (string, error) {
	input := buildChainInput(turns)

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", nil
	}

	content := StripReasoning(response.Content)
	log.Printf("[ai] completion finished, length=%d", len(content))
	return content, nil
}

// StripReasoning 剥除生成文本中的内心独白/推理包裹块。
func StripReasoning(content string) string {
	content = thinkBlockRe.ReplaceAllString(content, "")
	content = monologueBlockRe.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// buildChainInput 把带角色标记的消息列表映射到链模板输入。
// 约定：system 消息拼接为系统提示，最后一条 user 消息作为 query，
// 其余按顺序进入 history。
func buildChainInput(turns []Turn) map[string]any {
	var systems []string
	queryIdx := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" {
			queryIdx = i
			break
		}
	}

	query := ""
	history := make([]*schema.Message, 0, len(turns))
	for i, turn := range turns {
		switch turn.Role {
		case "system":
			systems = append(systems, turn.Content)
		case "assistant":
			history = append(history, schema.AssistantMessage(turn.Content, nil))
		case "user":
			if i == queryIdx {
				query = turn.Content
			} else {
				history = append(history, schema.UserMessage(turn.Content))
			}
		}
	}

	return map[string]any{
		"system":  strings.Join(systems, "\n\n"),
		"history": history,
		"query":   query,
	}
}
