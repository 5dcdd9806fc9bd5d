package command

// Kind 枚举生成文本解析出的片段类型。
type Kind string

const (
	KindText            Kind = "text"
	KindImage           Kind = "image"
	KindSticker         Kind = "sticker"
	KindVoice           Kind = "voice"
	KindLocation        Kind = "location"
	KindTransfer        Kind = "transfer"
	KindStatus          Kind = "status"
	KindPost            Kind = "post"
	KindPostInteraction Kind = "post_interaction"
	KindTodo            Kind = "todo"
	KindRecall          Kind = "recall"
	KindAcceptCall      Kind = "accept_call"
)

// Segment 是解析结果中的一个有序片段。
// 指令片段与其前后的普通文本互相独立，不会合并。
type Segment struct {
	Kind    Kind   `json:"kind"`
	Content string `json:"content"`
}
