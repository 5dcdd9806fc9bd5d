package ai

import (
	"fmt"
	"strings"

	"github.com/JustFluffie/fluffie/backend/internal/model/agent"
	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
	"github.com/JustFluffie/fluffie/backend/internal/model/moments"
)

const historyLimit = 10

// directiveCheatsheet 告诉模型可用的指令语法，与命令解析器识别的集合一致。
const directiveCheatsheet = `你可以用 ||| 分隔多条消息，也可以在消息中嵌入方括号指令：
[图片：描述]、[表情包：名称]、[语音：内容]、[位置：地点]、[转账：金额和留言]、
[状态：当前状态]、[朋友圈：{"text":"正文","imageDescription":"配图描述"}]、
[朋友圈互动：{"action":"like"}] 或 [朋友圈互动：{"action":"comment","text":"评论"}]、
[待办：可选时间 内容]、[撤回]、[接受通话]。
普通聊天直接写文字即可，不要滥用指令。`

// buildPersonaSystem 组装角色一致性的系统提示。
func buildPersonaSystem(a agent.Agent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "你是%s", a.Name)
	if a.Title != "" {
		fmt.Fprintf(&b, "，%s", a.Title)
	}
	b.WriteString("。\n")
	if a.Tone != "" {
		fmt.Fprintf(&b, "性格特点：%s。\n", a.Tone)
	}
	if a.PromptHint != "" {
		fmt.Fprintf(&b, "补充设定：%s\n", a.PromptHint)
	}
	if a.StatusText != "" {
		fmt.Fprintf(&b, "你当前的状态是：%s\n", a.StatusText)
	}
	b.WriteString("请始终保持角色一致性，像真人在手机上聊天一样说话。\n\n")
	b.WriteString(directiveCheatsheet)
	return b.String()
}

// historyTurns 把最近的会话消息映射为生成调用的历史。
func historyTurns(messages []chat.Message) []Turn {
	start := 0
	if len(messages) > historyLimit {
		start = len(messages) - historyLimit
	}

	turns := make([]Turn, 0, len(messages)-start)
	for _, msg := range messages[start:] {
		if msg.Revoked || msg.Type == chat.TypeSystem {
			continue
		}
		role := "assistant"
		if msg.Sender == chat.SenderUser {
			role = "user"
		}
		content := msg.Content
		if msg.Type != chat.TypeText {
			content = fmt.Sprintf("[%s] %s", msg.Type, msg.Content)
		}
		turns = append(turns, Turn{Role: role, Content: content})
	}
	return turns
}

// BuildProactiveTurns 构造"主动发一条消息"的生成请求。
func BuildProactiveTurns(a agent.Agent, history []chat.Message) []Turn {
	turns := []Turn{{Role: "system", Content: buildPersonaSystem(a)}}
	turns = append(turns, historyTurns(history)...)
	turns = append(turns, Turn{
		Role: "user",
		Content: "（系统提示：对方已经有一段时间没有说话了。" +
			"请你主动发起一条符合人设的消息，可以分享日常、关心对方或接续之前的话题。" +
			"如果实在没有值得说的内容，输出空字符串。）",
	})
	return turns
}

// BuildPostTurns 构造"发一条朋友圈"的生成请求。
func BuildPostTurns(a agent.Agent) []Turn {
	return []Turn{
		{Role: "system", Content: buildPersonaSystem(a)},
		{Role: "user", Content: "（系统提示：请以你的身份发一条朋友圈。" +
			`只输出 JSON：{"text":"正文","imageDescription":"配图描述，可为空"}。）`},
	}
}

// BuildReactionTurns 构造"对一条帖子选择互动方式"的生成请求。
func BuildReactionTurns(a agent.Agent, post moments.Post, authorName string) []Turn {
	var images []string
	for _, img := range post.Images {
		if img.Description != "" {
			images = append(images, img.Description)
		}
	}
	desc := post.Body
	if len(images) > 0 {
		desc += "（配图：" + strings.Join(images, "；") + "）"
	}

	return []Turn{
		{Role: "system", Content: buildPersonaSystem(a)},
		{Role: "user", Content: fmt.Sprintf("（系统提示：%s 发了一条朋友圈：%q。"+
			"请从三种互动里选一种：私聊回复(reply)、只点赞(like)、点赞并评论(like_comment)。"+
			`只输出 JSON：{"action":"reply|like|like_comment","response":"私聊内容或评论内容，点赞可省略"}。）`,
			authorName, desc)},
	}
}

// BuildCommentReplyTurns 构造"回复帖子下某条评论"的生成请求。
func BuildCommentReplyTurns(a agent.Agent, post moments.Post, comment moments.Comment, commenterName string) []Turn {
	return []Turn{
		{Role: "system", Content: buildPersonaSystem(a)},
		{Role: "user", Content: fmt.Sprintf("（系统提示：你之前发的朋友圈 %q 下，%s 评论道：%q。"+
			"请写一句符合人设的简短回复，直接输出回复内容即可。）",
			post.Body, commenterName, comment.Body)},
	}
}

// BuildSweepReactionTurns 构造巡查时对旧帖补充评论的生成请求。
func BuildSweepReactionTurns(a agent.Agent, post moments.Post, authorName string) []Turn {
	return []Turn{
		{Role: "system", Content: buildPersonaSystem(a)},
		{Role: "user", Content: fmt.Sprintf("（系统提示：你刷朋友圈时看到 %s 之前发的：%q。"+
			`决定是否评论。只输出 JSON：{"action":"like|like_comment","response":"评论内容，点赞可省略"}。）`,
			authorName, post.Body)},
	}
}

// BuildReplyTurns 构造"回复用户消息"的生成请求（用户主动发送路径）。
func BuildReplyTurns(a agent.Agent, history []chat.Message) []Turn {
	turns := []Turn{{Role: "system", Content: buildPersonaSystem(a)}}
	turns = append(turns, historyTurns(history)...)
	return turns
}
