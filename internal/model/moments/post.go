package moments

import (
	"time"

	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
)

// Visibility 表示朋友圈帖子的可见范围。
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityRestricted Visibility = "restricted" // 仅 VisibleTo 名单内的角色可见
)

// PostImage 是帖子附图：要么是素材地址，要么是待示意的文字描述。
type PostImage struct {
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Comment 是帖子下的一条评论，ReplyTo 不为空时表示对某人的回复。
type Comment struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	Body        string    `json:"body"`
	ReplyToID   string    `json:"replyToId,omitempty"`   // 被回复者的参与者标识
	ReplyToName string    `json:"replyToName,omitempty"` // 被回复者的展示名
	CreatedAt   time.Time `json:"createdAt"`
}

// Post 是一条朋友圈帖子。
type Post struct {
	ID         string      `json:"id"`
	AuthorID   string      `json:"authorId"`
	Body       string      `json:"body"`
	Images     []PostImage `json:"images,omitempty"`
	Visibility Visibility  `json:"visibility"`
	VisibleTo  []string    `json:"visibleTo,omitempty"`
	Mentions   []string    `json:"mentions,omitempty"`
	Likes      []string    `json:"likes,omitempty"` // 点赞者集合，重复点击取消
	Comments   []Comment   `json:"comments,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// LikedBy 返回指定参与者是否已点赞。
func (p Post) LikedBy(actorID string) bool {
	for _, id := range p.Likes {
		if id == actorID {
			return true
		}
	}
	return false
}

// CommentedBy 返回指定参与者是否已评论过。
func (p Post) CommentedBy(actorID string) bool {
	for _, c := range p.Comments {
		if c.AuthorID == actorID {
			return true
		}
	}
	return false
}

// Mentioned 返回帖子是否显式提到了指定角色。
func (p Post) Mentioned(agentID string) bool {
	for _, id := range p.Mentions {
		if id == agentID {
			return true
		}
	}
	return false
}

// VisibleToActor 返回帖子对指定参与者是否可见。作者与用户总是可见。
func (p Post) VisibleToActor(actorID string) bool {
	if p.Visibility != VisibilityRestricted || actorID == p.AuthorID || actorID == chat.UserID {
		return true
	}
	for _, id := range p.VisibleTo {
		if id == actorID {
			return true
		}
	}
	return false
}
