package command

import (
	"encoding/json"
	"regexp"
	"strings"
)

// 多条消息分隔符：连续 3 个及以上的竖线，兼容全角与转义写法。
var delimiterRe = regexp.MustCompile(`(?:\\?[|｜]){3,}`)

// 方括号指令，形如 [图片：一只猫]。撤回、接受通话允许省略载荷。
// 朋友圈互动必须排在朋友圈之前，保证最长匹配。
var directiveRe = regexp.MustCompile(`\[(图片|表情包|语音|位置|转账|状态|朋友圈互动|朋友圈|待办|撤回|接受通话)(?:[：:]\s*([^\[\]]*))?\]`)

var directiveKinds = map[string]Kind{
	"图片":    KindImage,
	"表情包":   KindSticker,
	"语音":    KindVoice,
	"位置":    KindLocation,
	"转账":    KindTransfer,
	"状态":    KindStatus,
	"朋友圈":   KindPost,
	"朋友圈互动": KindPostInteraction,
	"待办":    KindTodo,
	"撤回":    KindRecall,
	"接受通话":  KindAcceptCall,
}

// JSON 结构块中允许出现的类型。
var structuredKinds = map[string]Kind{
	"text":             KindText,
	"image":            KindImage,
	"sticker":          KindSticker,
	"voice":            KindVoice,
	"location":         KindLocation,
	"transfer":         KindTransfer,
	"status":           KindStatus,
	"post":             KindPost,
	"post_interaction": KindPostInteraction,
	"todo":             KindTodo,
	"recall":           KindRecall,
	"accept_call":      KindAcceptCall,
}

// Parse 把一次生成调用返回的原始文本解析为有序片段列表。
//
// 解析是纯函数且永不失败：无法识别的输入退化为单个纯文本片段，
// 输出顺序与输入中出现的顺序一致。online 为 false（线下模式）时，
// 所有非文本指令片段会被丢弃。
func Parse(raw string, online bool) []Segment {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	var chunks []string
	if delimiterRe.MatchString(trimmed) {
		chunks = delimiterRe.Split(trimmed, -1)
	} else if strings.Contains(trimmed, "\n") {
		chunks = strings.Split(trimmed, "\n")
	} else {
		chunks = []string{trimmed}
	}

	var segments []Segment
	for _, chunk := range chunks {
		segments = append(segments, parseChunk(chunk)...)
	}

	if online {
		return segments
	}

	// 线下模式只保留纯文本。
	filtered := segments[:0]
	for _, seg := range segments {
		if seg.Kind == KindText {
			filtered = append(filtered, seg)
		}
	}
	return filtered
}

// parseChunk 解析单个片段：优先尝试 JSON 结构块，其次方括号指令，
// 两者都不匹配时整体视为纯文本。
func parseChunk(chunk string) []Segment {
	chunk = strings.TrimSpace(chunk)
	if chunk == "" {
		return nil
	}

	if seg, ok := parseStructured(chunk); ok {
		return []Segment{seg}
	}

	matches := directiveRe.FindAllStringSubmatchIndex(chunk, -1)
	if len(matches) == 0 {
		return []Segment{{Kind: KindText, Content: chunk}}
	}

	var segments []Segment
	cursor := 0
	for _, m := range matches {
		if text := strings.TrimSpace(chunk[cursor:m[0]]); text != "" {
			segments = append(segments, Segment{Kind: KindText, Content: text})
		}

		name := chunk[m[2]:m[3]]
		payload := ""
		if m[4] >= 0 {
			payload = strings.TrimSpace(chunk[m[4]:m[5]])
		}
		segments = append(segments, Segment{Kind: directiveKinds[name], Content: payload})
		cursor = m[1]
	}
	if text := strings.TrimSpace(chunk[cursor:]); text != "" {
		segments = append(segments, Segment{Kind: KindText, Content: text})
	}
	return segments
}

// parseStructured 尝试把片段解析为 {"type": ..., "content": ...} 结构块。
func parseStructured(chunk string) (Segment, bool) {
	if !strings.HasPrefix(chunk, "{") || !strings.HasSuffix(chunk, "}") {
		return Segment{}, false
	}

	var payload struct {
		Type    string `json:"type"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(chunk), &payload); err != nil {
		return Segment{}, false
	}

	kind, ok := structuredKinds[strings.ToLower(strings.TrimSpace(payload.Type))]
	if !ok {
		return Segment{}, false
	}
	return Segment{Kind: kind, Content: strings.TrimSpace(payload.Content)}, true
}
