package chat

import "time"

// Sender 标识消息的发出方。
type Sender string

const (
	SenderUser   Sender = "user"
	SenderAgent  Sender = "agent"
	SenderSystem Sender = "system"
)

// UserID 是人类用户在点赞、评论等场景下的参与者标识。
const UserID = "user"

// MessageType 枚举消息载荷类型。
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeSticker  MessageType = "sticker"
	TypeVoice    MessageType = "voice"
	TypeLocation MessageType = "location"
	TypeTransfer MessageType = "transfer"
	TypeSystem   MessageType = "system"
)

// TransferStatus 表示转账消息的状态，pending 只允许流转到 accepted 一次。
type TransferStatus string

const (
	TransferPending  TransferStatus = "pending"
	TransferAccepted TransferStatus = "accepted"
)

// Message 是某个角色会话中的一条消息记录。
type Message struct {
	ID      string `json:"id"`
	AgentID string `json:"agentId"`
	// Seq 在会话内单调递增，同一批投递的消息也能稳定排序。
	Seq     int64       `json:"seq"`
	Sender  Sender      `json:"sender"`
	Type    MessageType `json:"type"`
	Content string      `json:"content"`

	StickerName    string         `json:"stickerName,omitempty"`
	TransferStatus TransferStatus `json:"transferStatus,omitempty"`
	// TextGenerated 表示图片内容是文字描述而非素材地址，由前端负责示意渲染。
	TextGenerated bool   `json:"textGenerated,omitempty"`
	QuotedID      string `json:"quotedId,omitempty"`

	Blocked   bool      `json:"blocked,omitempty"` // 创建时刻的拉黑快照
	Revoked   bool      `json:"revoked,omitempty"`
	EditedAt  time.Time `json:"editedAt,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
