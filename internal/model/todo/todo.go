package todo

import "time"

// Item 是一条待办提醒，由生成指令或用户手动创建。
type Item struct {
	ID        string    `json:"id"`
	AgentID   string    `json:"agentId,omitempty"` // 创建该提醒的角色，用户手动创建时为空
	Title     string    `json:"title"`
	Date      string    `json:"date"` // "2006-01-02"
	Time      string    `json:"time"` // "15:04"
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"createdAt"`
}
