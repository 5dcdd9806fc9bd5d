package notify

import (
	"github.com/gen2brain/beeep"

	"github.com/JustFluffie/fluffie/backend/internal/model/chat"
)

// Desktop 通过系统通知中心弹出新消息提醒。
type Desktop struct {
	enabled bool
}

// NewDesktop 创建桌面通知器。enabled 为 false 时所有通知直接吞掉。
func NewDesktop(enabled bool) *Desktop {
	return &Desktop{enabled: enabled}
}

// Notify 弹出一条桌面通知，标题为角色名，正文为内容预览。
func (d *Desktop) Notify(title, body string, _ chat.MessageType) error {
	if !d.enabled {
		return nil
	}
	return beeep.Notify(title, body, "")
}
