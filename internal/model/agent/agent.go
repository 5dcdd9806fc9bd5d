package agent

import "time"

// OverrideMode 表示单个角色相对全局主动消息开关的覆盖档位。
type OverrideMode string

const (
	OverrideDefault OverrideMode = "default" // 跟随全局开关
	OverrideOn      OverrideMode = "on"      // 始终允许
	OverrideOff     OverrideMode = "off"     // 始终禁止
)

// TriggerMode 表示主动消息的触发条件。
type TriggerMode string

const (
	TriggerAlways TriggerMode = "always"
	TriggerIdle   TriggerMode = "idle" // 仅在会话冷场超过阈值后触发
)

// ScheduleState 保存主动消息的档位与运行期计数。
type ScheduleState struct {
	OverrideMode         OverrideMode `json:"overrideMode"`
	IntervalMinutes      int          `json:"intervalMinutes"`
	CooldownMinutes      int          `json:"cooldownMinutes"`
	DailyLimit           int          `json:"dailyLimit"`
	TriggerMode          TriggerMode  `json:"triggerMode"`
	IdleThresholdMinutes int          `json:"idleThresholdMinutes"`

	LastProactiveAt     time.Time `json:"lastProactiveAt"`
	TodayProactiveCount int       `json:"todayProactiveCount"`
	LastResetDay        string    `json:"lastResetDay"` // "2006-01-02"，跨天时计数归零一次
}

// MomentsState 保存朋友圈发帖节奏的档位与运行期计数。
type MomentsState struct {
	IntervalMinutes int       `json:"intervalMinutes"`
	DailyLimit      int       `json:"dailyLimit"`
	LastPostAt      time.Time `json:"lastPostAt"`
	TodayPostCount  int       `json:"todayPostCount"`
	LastResetDay    string    `json:"lastResetDay"`
}

// Agent 描述一个可自主行动的陪伴角色。
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Tone        string `json:"tone,omitempty"`
	PromptHint  string `json:"promptHint,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Description string `json:"description,omitempty"`

	// Stickers 是角色已注册的表情包，名称到素材地址的映射。
	Stickers map[string]string `json:"stickers,omitempty"`

	IsOnlineMode    bool   `json:"isOnlineMode"`    // 线下(见面)模式只允许纯文本
	IsBlockedByUser bool   `json:"isBlockedByUser"` // 拉黑后仍生成，消息带 blocked 标记
	IsExtra         bool   `json:"isExtra"`         // 路人角色：只参与朋友圈，不参与私聊主动消息
	StatusText      string `json:"statusText,omitempty"`

	LastActiveAt time.Time     `json:"lastActiveAt"`
	Schedule     ScheduleState `json:"schedule"`
	Moments      MomentsState  `json:"moments"`

	CreatedAt time.Time `json:"createdAt"`
}

// Seed 返回一组默认角色，便于首次启动即可体验。
func Seed() []Agent {
	return []Agent{
		{
			ID:         "lin-wanqing",
			Name:       "林晚晴",
			Title:      "温柔学姐",
			Tone:       "体贴、细腻、偶尔撒娇",
			PromptHint: "喜欢分享日常，会主动关心对方有没有好好吃饭。",
			Stickers: map[string]string{
				"开心":  "stickers/wanqing-happy.png",
				"晚安":  "stickers/wanqing-goodnight.png",
				"摸摸头": "stickers/wanqing-pat.png",
			},
			IsOnlineMode: true,
		},
		{
			ID:         "xu-yan",
			Name:       "徐延",
			Title:      "毒舌损友",
			Tone:       "犀利、幽默、嘴硬心软",
			PromptHint: "说话带刺但关键时刻靠得住，喜欢在朋友圈抖机灵。",
			Stickers: map[string]string{
				"无语": "stickers/xuyan-speechless.png",
				"狗头": "stickers/xuyan-doge.png",
			},
			IsOnlineMode: true,
		},
		{
			ID:           "passerby-momo",
			Name:         "陌陌",
			Title:        "爱凑热闹的路人",
			Tone:         "活泼、话多",
			IsOnlineMode: true,
			IsExtra:      true,
		},
	}
}
